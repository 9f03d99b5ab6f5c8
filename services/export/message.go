package export

import (
	"context"
	"strings"

	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/slack"
)

type pluginPostResponse struct {
	PostID string `json:"post_id"`
}

func (e *Exporters) exportMessage(ctx context.Context, run *Run, ent *models.Entity) error {
	raw := ent.RawData

	channelID := e.resolveMessageChannel(ctx, run, ent)
	if channelID == "" {
		return e.fail(ctx, ent, "No target channel for message", nil)
	}
	userID := e.resolveMessageAuthor(ctx, run, ent)
	if userID == "" {
		return e.fail(ctx, ent, "No author (user_id) for message", nil)
	}

	fileIDs := e.collectFileIDs(ctx, ent)

	text := NewMarkdownConverter(run).Convert(ctx, raw)
	if strings.TrimSpace(text) == "" {
		// Mattermost rejects empty posts; attachments carry the content.
		if len(fileIDs) > 0 {
			text = " "
		} else {
			text = "-"
		}
	}

	createAt := slack.TSToMillis(raw.GetString("ts"))

	rootID := e.resolveRootPostID(ctx, ent)
	if raw.GetString("thread_ts") != "" && rootID == "" {
		e.logger.Debugf("Message %s is a reply but its root post is not exported yet; posting top-level", ent.SlackID)
	}

	run.EnsureChannelMember(ctx, channelID, userID)

	payload := map[string]any{
		"user_id":    userID,
		"channel_id": channelID,
		"message":    text,
		"create_at":  createAt,
	}
	if rootID != "" {
		payload["root_id"] = rootID
	}
	if len(fileIDs) > 0 {
		payload["file_ids"] = fileIDs
	}

	var resp pluginPostResponse
	if err := e.mm.PluginPost(ctx, "/import", payload, &resp); err != nil {
		return e.fail(ctx, ent, "failed to import message", err)
	}
	if resp.PostID == "" {
		return e.fail(ctx, ent, "No post_id in plugin response", nil)
	}

	e.logger.Debugf("Message exported, post_id=%s", resp.PostID)
	return e.entities.MarkExported(ctx, ent, resp.PostID)
}

func (e *Exporters) resolveMessageChannel(ctx context.Context, run *Run, ent *models.Entity) string {
	channel, err := e.entities.Relations().GetTargetEntity(ctx, ent.ID, models.RelationPostedIn, models.EntityTypeChannel)
	if err != nil {
		e.logger.WithError(err).Debugf("Message %s channel relation lookup failed", ent.SlackID)
	} else if ch, ok := channel.Get(); ok && ch.MattermostID != "" {
		return ch.MattermostID
	}
	if slackChannelID := ent.RawData.GetString("channel_id"); slackChannelID != "" {
		return run.ChannelMMID(ctx, slackChannelID)
	}
	return ""
}

// resolveMessageAuthor prefers the posted_by relation, then a lookup by the
// raw author id. Unknown authors post as the admin rather than dropping the
// message.
func (e *Exporters) resolveMessageAuthor(ctx context.Context, run *Run, ent *models.Entity) string {
	author, err := e.entities.Relations().GetSourceEntity(ctx, ent.ID, models.RelationPostedBy, models.EntityTypeUser)
	if err != nil {
		e.logger.WithError(err).Debugf("Message %s author relation lookup failed", ent.SlackID)
	} else if user, ok := author.Get(); ok && user.MattermostID != "" {
		return user.MattermostID
	}

	slackUID := ent.RawData.GetString("user")
	if slackUID == "" {
		slackUID = ent.RawData.GetString("bot_id")
	}
	if slackUID != "" {
		if id := run.UserMMID(ctx, slackUID); id != "" {
			return id
		}
	}
	return run.AdminUserID()
}

func (e *Exporters) collectFileIDs(ctx context.Context, ent *models.Entity) []string {
	sources, err := e.entities.Relations().ListSourceEntities(ctx, ent.ID, models.RelationAttachedTo)
	if err != nil {
		e.logger.WithError(err).Debugf("Message %s attachment lookup failed", ent.SlackID)
		return nil
	}
	var fileIDs []string
	for _, att := range sources {
		if att.MattermostID != "" {
			fileIDs = append(fileIDs, att.MattermostID)
		}
	}
	return fileIDs
}

// resolveRootPostID returns the Mattermost post id of the thread root, ""
// for top-level messages and for replies whose root has not exported yet.
func (e *Exporters) resolveRootPostID(ctx context.Context, ent *models.Entity) string {
	ts := ent.RawData.GetString("ts")
	threadTS := ent.RawData.GetString("thread_ts")
	if threadTS == "" || threadTS == ts {
		return ""
	}
	parent, err := e.entities.Resolve(ctx, models.EntityTypeMessage, threadTS, ent.JobID)
	if err != nil {
		e.logger.WithError(err).Debugf("Message %s parent lookup failed", ent.SlackID)
		return ""
	}
	if parent == nil {
		return ""
	}
	return parent.MattermostID
}
