package export

import (
	"context"
	"strings"

	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/mmclient"
	"github.com/insoln/slack-mm2/services/slack"
)

var skinToneSuffixes = []string{
	"::skin-tone-2", "::skin-tone-3", "::skin-tone-4",
	"::skin-tone-5", "::skin-tone-6", "::skin-tone-1",
}

// normalizeStandardEmoji strips one skin tone suffix and maps Slack thumb
// aliases to Mattermost names.
func normalizeStandardEmoji(name string) string {
	for _, suffix := range skinToneSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	switch name {
	case "+1":
		return "thumbs_up"
	case "-1":
		return "thumbs_down"
	}
	return name
}

// emojiCandidates lists names to try in order; the thumbs have several
// spellings across servers.
func emojiCandidates(original string) []string {
	switch base := normalizeStandardEmoji(original); base {
	case "thumbs_up":
		return []string{"thumbs_up", "thumbsup", "+1"}
	case "thumbs_down":
		return []string{"thumbs_down", "thumbsdown", "-1"}
	default:
		return []string{base}
	}
}

func (e *Exporters) exportReaction(ctx context.Context, run *Run, ent *models.Entity) error {
	raw := ent.RawData

	postID, channelID := e.resolveReactionTarget(ctx, ent)
	if postID == "" {
		return e.fail(ctx, ent, "Target post_id not found for reaction", nil)
	}

	userID := e.resolveReactionUser(ctx, run, ent)
	if userID == "" {
		return e.fail(ctx, ent, "Reacting user not resolved", nil)
	}

	emojiName := strings.TrimSpace(raw.GetString("name"))
	if emojiName == "" {
		emojiName = strings.TrimSpace(raw.GetString("emoji"))
	}
	if emojiName == "" {
		return e.fail(ctx, ent, "Emoji name missing", nil)
	}

	candidates := emojiCandidates(emojiName)
	// Custom emojis were created under transliterated names; standard names
	// stay as they are.
	if e.isCustomEmoji(ctx, candidates[0]) {
		candidates[0] = transliterateCyrillic(candidates[0])
	}

	run.EnsureChannelMember(ctx, channelID, userID)

	// Slack exports carry no per-reaction timestamp, so the reaction lands
	// at the message's ts.
	createAt := slack.TSToMillis(raw.GetString("message_ts"))
	if createAt == 0 {
		createAt = slack.TSToMillis(raw.GetString("ts"))
	}

	var lastErr error
	for _, name := range candidates {
		err := e.mm.PluginPost(ctx, "/reaction", map[string]any{
			"user_id":    userID,
			"post_id":    postID,
			"emoji_name": name,
			"create_at":  createAt,
		}, nil)
		if err == nil || mmclient.IsDuplicate(err) {
			// Tone variants collapse to the base emoji in Mattermost, so a
			// duplicate means the reaction is already there.
			return e.entities.MarkExported(ctx, ent, "")
		}
		lastErr = err
		if mmclient.IsEmojiNotFound(err) {
			continue
		}
		break
	}

	if mmclient.IsEmojiNotFound(lastErr) {
		return e.skip(ctx, ent, lastErr.Error())
	}
	return e.fail(ctx, ent, "failed to add reaction", lastErr)
}

// resolveReactionTarget finds the Mattermost post the reaction lands on and
// the channel it lives in. The channel is only needed for membership and may
// be empty.
func (e *Exporters) resolveReactionTarget(ctx context.Context, ent *models.Entity) (postID, channelID string) {
	msg := e.reactionMessage(ctx, ent)
	if msg == nil || msg.MattermostID == "" {
		return "", ""
	}

	channel, err := e.entities.Relations().GetTargetEntity(ctx, msg.ID, models.RelationPostedIn, models.EntityTypeChannel)
	if err != nil {
		e.logger.WithError(err).Debugf("Reaction %s channel lookup failed", ent.SlackID)
	} else if ch, ok := channel.Get(); ok {
		channelID = ch.MattermostID
	}
	return msg.MattermostID, channelID
}

func (e *Exporters) reactionMessage(ctx context.Context, ent *models.Entity) *models.Entity {
	target, err := e.entities.Relations().GetTargetEntity(ctx, ent.ID, models.RelationReactedTo, models.EntityTypeMessage)
	if err != nil {
		e.logger.WithError(err).Debugf("Reaction %s message relation lookup failed", ent.SlackID)
	} else if msg, ok := target.Get(); ok {
		return msg
	}

	// Fall back to the message ts recorded in the raw payload, or the prefix
	// of the composite slack_id.
	raw := ent.RawData
	ts := raw.GetString("message_ts")
	if ts == "" {
		if item, ok := raw["item"].(map[string]any); ok {
			ts = stringValue(item["ts"])
		}
	}
	if ts == "" {
		ts = raw.GetString("ts")
	}
	if i := strings.Index(ts, "_"); i >= 0 {
		ts = ts[:i]
	}
	if ts == "" {
		ts, _, _ = strings.Cut(ent.SlackID, "_")
	}
	if ts == "" {
		return nil
	}

	msg, err := e.entities.Resolve(ctx, models.EntityTypeMessage, ts, ent.JobID)
	if err != nil {
		e.logger.WithError(err).Debugf("Reaction %s message lookup by ts failed", ent.SlackID)
		return nil
	}
	return msg
}

func (e *Exporters) resolveReactionUser(ctx context.Context, run *Run, ent *models.Entity) string {
	source, err := e.entities.Relations().GetSourceEntity(ctx, ent.ID, models.RelationReactedBy, models.EntityTypeUser)
	if err != nil {
		e.logger.WithError(err).Debugf("Reaction %s user relation lookup failed", ent.SlackID)
	} else if user, ok := source.Get(); ok && user.MattermostID != "" {
		return user.MattermostID
	}
	if slackUID := ent.RawData.GetString("user"); slackUID != "" {
		return run.UserMMID(ctx, slackUID)
	}
	return ""
}

func (e *Exporters) isCustomEmoji(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}
	ent, err := e.entities.Resolve(ctx, models.EntityTypeCustomEmoji, name, nil)
	if err != nil {
		e.logger.WithError(err).Debugf("Custom emoji lookup failed for %s", name)
		return false
	}
	return ent != nil
}
