package export

import (
	"context"
	"sync"

	"github.com/insoln/slack-mm2/models"
)

// fallbackTeamID is the last resort when neither MM_TEAM_ID nor a lookup by
// MM_TEAM name yields a team.
const fallbackTeamID = "b7u9rycm43nip86mdiuqsxdcbe"

type memberKey struct {
	channelID string
	userID    string
}

// Run is the shared state of one export pass: the admin identity the run
// posts as, the lazily resolved target team, and lookup caches shared by
// every worker. All methods are safe for concurrent use.
type Run struct {
	exp         *Exporters
	adminUserID string

	mu           sync.Mutex
	teamID       string
	channelMMIDs map[string]string
	channelNames map[string]string
	userMMIDs    map[string]string
	usernames    map[string]string
	members      map[memberKey]struct{}
}

func newRun(exp *Exporters, adminUserID string) *Run {
	return &Run{
		exp:          exp,
		adminUserID:  adminUserID,
		channelMMIDs: make(map[string]string),
		channelNames: make(map[string]string),
		userMMIDs:    make(map[string]string),
		usernames:    make(map[string]string),
		members:      make(map[memberKey]struct{}),
	}
}

// AdminUserID is the Mattermost id of the token's user. Emoji creation and
// authorless messages fall back to it.
func (r *Run) AdminUserID() string {
	return r.adminUserID
}

// TeamID resolves the target team once per run: MM_TEAM_ID wins, then a
// lookup by MM_TEAM name, then a fixed last-resort id.
func (r *Run) TeamID(ctx context.Context) string {
	r.mu.Lock()
	cached := r.teamID
	r.mu.Unlock()
	if cached != "" {
		return cached
	}

	id := r.exp.cfg.Mattermost.TeamID
	if id == "" {
		team, _, err := r.exp.mm.API.GetTeamByName(ctx, r.exp.cfg.Mattermost.Team, "")
		if err != nil {
			r.exp.logger.WithError(err).Errorf("Failed to resolve team id for %q", r.exp.cfg.Mattermost.Team)
		} else {
			id = team.Id
		}
	}
	if id == "" {
		id = fallbackTeamID
	}

	r.mu.Lock()
	r.teamID = id
	r.mu.Unlock()
	return id
}

// UsernameBySlackID implements NameResolver. Known users resolve to their
// Slack handle, falling back to the id itself; unknown users resolve to "".
func (r *Run) UsernameBySlackID(ctx context.Context, slackID string) string {
	r.mu.Lock()
	if name, ok := r.usernames[slackID]; ok {
		r.mu.Unlock()
		return name
	}
	r.mu.Unlock()

	ent, err := r.exp.entities.Resolve(ctx, models.EntityTypeUser, slackID, nil)
	if err != nil {
		r.exp.logger.WithError(err).Debugf("Username lookup failed for %s", slackID)
		return ""
	}
	name := ""
	if ent != nil {
		if name = ent.RawData.GetString("name"); name == "" {
			name = slackID
		}
	}

	r.mu.Lock()
	r.usernames[slackID] = name
	r.mu.Unlock()
	return name
}

// ChannelNameBySlackID implements NameResolver. Unknown or nameless channels
// resolve to "".
func (r *Run) ChannelNameBySlackID(ctx context.Context, slackID string) string {
	r.mu.Lock()
	if name, ok := r.channelNames[slackID]; ok {
		r.mu.Unlock()
		return name
	}
	r.mu.Unlock()

	ent, err := r.exp.entities.Resolve(ctx, models.EntityTypeChannel, slackID, nil)
	if err != nil {
		r.exp.logger.WithError(err).Debugf("Channel name lookup failed for %s", slackID)
		return ""
	}
	name := ""
	if ent != nil {
		name = ent.RawData.GetString("name")
	}

	r.mu.Lock()
	r.channelNames[slackID] = name
	r.mu.Unlock()
	return name
}

// UserMMID maps a Slack user id to the Mattermost id its entity exported to,
// "" when the user is unknown or not exported yet.
func (r *Run) UserMMID(ctx context.Context, slackID string) string {
	r.mu.Lock()
	if id, ok := r.userMMIDs[slackID]; ok {
		r.mu.Unlock()
		return id
	}
	r.mu.Unlock()

	ent, err := r.exp.entities.Resolve(ctx, models.EntityTypeUser, slackID, nil)
	if err != nil {
		r.exp.logger.WithError(err).Debugf("User id lookup failed for %s", slackID)
		return ""
	}
	id := ""
	if ent != nil {
		id = ent.MattermostID
	}
	if id == "" {
		// Not cached: the user may still be exported later in the run.
		return ""
	}

	r.mu.Lock()
	r.userMMIDs[slackID] = id
	r.mu.Unlock()
	return id
}

// ChannelMMID maps a Slack channel id to its Mattermost channel id, "" when
// unknown or not exported yet.
func (r *Run) ChannelMMID(ctx context.Context, slackID string) string {
	r.mu.Lock()
	if id, ok := r.channelMMIDs[slackID]; ok {
		r.mu.Unlock()
		return id
	}
	r.mu.Unlock()

	ent, err := r.exp.entities.Resolve(ctx, models.EntityTypeChannel, slackID, nil)
	if err != nil {
		r.exp.logger.WithError(err).Debugf("Channel id lookup failed for %s", slackID)
		return ""
	}
	id := ""
	if ent != nil {
		id = ent.MattermostID
	}
	if id == "" {
		return ""
	}

	r.mu.Lock()
	r.channelMMIDs[slackID] = id
	r.mu.Unlock()
	return id
}

// EnsureChannelMember adds a user to a channel through the plugin, once per
// (channel, user) pair per run. Failures are logged and swallowed: posting
// proceeds regardless.
func (r *Run) EnsureChannelMember(ctx context.Context, channelID, userID string) {
	if channelID == "" || userID == "" {
		return
	}
	key := memberKey{channelID: channelID, userID: userID}

	r.mu.Lock()
	if _, done := r.members[key]; done {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	err := r.exp.mm.PluginPost(ctx, "/channel/members", map[string]any{
		"channel_id": channelID,
		"user_ids":   []string{userID},
	}, nil)
	if err != nil {
		r.exp.logger.WithError(err).Debugf("Failed to add user %s to channel %s", userID, channelID)
		return
	}

	r.mu.Lock()
	r.members[key] = struct{}{}
	r.mu.Unlock()
}
