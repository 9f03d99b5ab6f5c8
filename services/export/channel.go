package export

import (
	"context"
	"strings"

	"github.com/insoln/slack-mm2/models"
)

type pluginChannelResponse struct {
	ChannelID string `json:"channel_id"`
	ID        string `json:"id"`
}

func (r pluginChannelResponse) id() string {
	if r.ChannelID != "" {
		return r.ChannelID
	}
	return r.ID
}

func (e *Exporters) exportChannel(ctx context.Context, run *Run, ent *models.Entity) error {
	if strings.HasPrefix(ent.SlackID, "D") {
		return e.exportDM(ctx, run, ent)
	}
	if boolValue(ent.RawData["is_mpim"]) || strings.HasPrefix(ent.RawData.GetString("name"), "mpdm-") {
		return e.exportGroupDM(ctx, run, ent)
	}
	return e.exportRegularChannel(ctx, run, ent)
}

func (e *Exporters) exportDM(ctx context.Context, run *Run, ent *models.Entity) error {
	memberIDs := e.resolveMemberIDs(ctx, run, ent.RawData)
	if len(memberIDs) != 2 {
		e.logger.Warnf("Expected 2 DM members for %s, found %d", ent.SlackID, len(memberIDs))
		return e.skip(ctx, ent, "Invalid DM members count")
	}

	var resp pluginChannelResponse
	if err := e.mm.PluginPost(ctx, "/dm", map[string]any{"user_ids": memberIDs}, &resp); err != nil {
		return e.fail(ctx, ent, "failed to create DM channel", err)
	}
	e.logger.Debugf("DM channel ready, ID: %s", resp.id())
	return e.entities.MarkExported(ctx, ent, resp.id())
}

func (e *Exporters) exportGroupDM(ctx context.Context, run *Run, ent *models.Entity) error {
	memberIDs := e.resolveMemberIDs(ctx, run, ent.RawData)
	if len(memberIDs) < 2 {
		e.logger.Warnf("Too few group DM members for %s: %d", ent.SlackID, len(memberIDs))
		return e.skip(ctx, ent, "Insufficient GDM members")
	}

	var resp pluginChannelResponse
	if err := e.mm.PluginPost(ctx, "/gdm", map[string]any{"user_ids": memberIDs}, &resp); err != nil {
		return e.fail(ctx, ent, "failed to create group DM channel", err)
	}
	e.logger.Debugf("Group DM channel ready, ID: %s", resp.id())
	return e.entities.MarkExported(ctx, ent, resp.id())
}

func (e *Exporters) exportRegularChannel(ctx context.Context, run *Run, ent *models.Entity) error {
	raw := ent.RawData
	name := raw.GetString("name")
	if name == "" {
		return e.fail(ctx, ent, "No channel name found in raw_data for non-DM channel", nil)
	}

	display := name
	if strings.HasPrefix(name, "D") {
		display = "DM-" + name
	}
	display = sanitizeDisplayName(display, strings.ReplaceAll(name, "-", " "))

	channelType := "O"
	if strings.HasPrefix(ent.SlackID, "G") {
		channelType = "P"
	}

	payload := map[string]any{
		"team_id":      run.TeamID(ctx),
		"name":         name,
		"display_name": display,
		"type":         channelType,
	}
	if purpose := nestedValueString(raw, "purpose"); purpose != "" {
		payload["purpose"] = purpose
	}
	if header := nestedValueString(raw, "topic"); header != "" {
		payload["header"] = header
	}

	// The plugin normalizes the name and returns the existing channel on
	// conflict, so creation is idempotent.
	var resp pluginChannelResponse
	if err := e.mm.PluginPost(ctx, "/channel", payload, &resp); err != nil {
		return e.fail(ctx, ent, "failed to create channel", err)
	}
	mmID := resp.id()
	if err := e.entities.MarkExported(ctx, ent, mmID); err != nil {
		return err
	}

	if memberIDs := e.resolveMemberIDs(ctx, run, raw); len(memberIDs) > 0 {
		e.ensureTeamMembers(ctx, run, memberIDs)
		err := e.mm.PluginPost(ctx, "/channel/members", map[string]any{
			"channel_id": mmID,
			"user_ids":   memberIDs,
		}, nil)
		if err != nil {
			e.logger.WithError(err).Errorf("Failed to add members to channel %s", name)
		}
	}

	if boolValue(raw["is_archived"]) {
		if err := e.mm.PluginPost(ctx, "/channel/archive", map[string]any{"channel_id": mmID}, nil); err != nil {
			e.logger.WithError(err).Errorf("Failed to archive channel %s", name)
		}
	}

	e.logger.Debugf("Channel %s exported to Mattermost, ID: %s", name, mmID)
	return nil
}

// resolveMemberIDs maps the channel's Slack member ids to Mattermost user
// ids, dropping members that never exported.
func (e *Exporters) resolveMemberIDs(ctx context.Context, run *Run, raw models.JSONMap) []string {
	var out []string
	for _, m := range listValue(raw["members"]) {
		slackID := stringValue(m)
		if slackID == "" {
			continue
		}
		if id := run.UserMMID(ctx, slackID); id != "" {
			out = append(out, id)
		} else {
			e.logger.Warnf("No Mattermost user id for Slack user %s", slackID)
		}
	}
	return out
}

// ensureTeamMembers joins users to the team before channel membership is
// applied. Already-a-member conflicts are expected and logged at debug.
func (e *Exporters) ensureTeamMembers(ctx context.Context, run *Run, userIDs []string) {
	teamID := run.TeamID(ctx)
	for _, uid := range userIDs {
		if _, _, err := e.mm.API.AddTeamMember(ctx, teamID, uid); err != nil {
			e.logger.WithError(err).Debugf("Adding user %s to team %s", uid, teamID)
		}
	}
}

// sanitizeDisplayName fits a display name into Mattermost's constraints:
// no line breaks, at most 64 characters, never empty.
func sanitizeDisplayName(display, fallback string) string {
	val := display
	if val == "" {
		val = fallback
	}
	if val == "" {
		val = "channel"
	}
	val = strings.ReplaceAll(val, "\r", " ")
	val = strings.ReplaceAll(val, "\n", " ")
	val = strings.TrimSpace(val)
	val = truncateRunes(val, 64)
	if val == "" {
		if fallback == "" {
			fallback = "channel"
		}
		val = truncateRunes(fallback, 64)
	}
	return val
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func nestedValueString(raw models.JSONMap, key string) string {
	obj, _ := raw[key].(map[string]any)
	return stringValue(obj["value"])
}
