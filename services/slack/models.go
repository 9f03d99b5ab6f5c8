package slack

import (
	"encoding/json"

	"github.com/mattermost/mattermost/server/public/model"
)

// SlackChannel represents a channel row from channels.json, groups.json,
// dms.json or mpims.json
type SlackChannel struct {
	Id         string          `json:"id"`
	Name       string          `json:"name"`
	Creator    string          `json:"creator"`
	Members    []string        `json:"members"`
	Purpose    SlackChannelSub `json:"purpose"`
	Topic      SlackChannelSub `json:"topic"`
	IsArchived bool            `json:"is_archived"`
	IsMpim     bool            `json:"is_mpim"`
	Created    int64           `json:"created"`
}

// SlackChannelSub represents a sub-field in Slack channel data (purpose/topic)
type SlackChannelSub struct {
	Value string `json:"value"`
}

// SlackProfile represents a Slack user profile
type SlackProfile struct {
	BotID         string `json:"bot_id"`
	RealName      string `json:"real_name"`
	DisplayName   string `json:"display_name"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Title         string `json:"title"`
	ImageOriginal string `json:"image_original"`
	Image512      string `json:"image_512"`
	Image192      string `json:"image_192"`
	Image72       string `json:"image_72"`
}

// ImageCandidates returns avatar URLs in resolution order, highest first.
func (p *SlackProfile) ImageCandidates() []string {
	candidates := []string{}
	for _, url := range []string{p.ImageOriginal, p.Image512, p.Image192, p.Image72} {
		if url != "" {
			candidates = append(candidates, url)
		}
	}
	return candidates
}

// SlackUser represents a Slack user in the export
type SlackUser struct {
	Id        string       `json:"id"`
	Username  string       `json:"name"`
	IsBot     bool         `json:"is_bot"`
	IsAppUser bool         `json:"is_app_user"`
	Profile   SlackProfile `json:"profile"`
	Deleted   bool         `json:"deleted"`
	TZ        string       `json:"tz"`
}

// SlackFile represents an uploaded file in Slack
type SlackFile struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Mimetype    string `json:"mimetype"`
	Size        int64  `json:"size"`
	Mode        string `json:"mode"`
	URLPrivate  string `json:"url_private"`
	DownloadURL string `json:"url_private_download"`
}

// SlackReaction represents a reaction on a Slack post
type SlackReaction struct {
	Name  string   `json:"name"`
	Count int64    `json:"count"`
	Users []string `json:"users"`
}

// SlackPost represents a Slack message/post in the export
type SlackPost struct {
	User        string                   `json:"user"`
	BotId       string                   `json:"bot_id"`
	BotUsername string                   `json:"username"`
	Text        string                   `json:"text"`
	TimeStamp   string                   `json:"ts"`
	ThreadTS    string                   `json:"thread_ts"`
	Type        string                   `json:"type"`
	SubType     string                   `json:"subtype"`
	Upload      bool                     `json:"upload"`
	File        *SlackFile               `json:"file"`
	Files       []*SlackFile             `json:"files"`
	Attachments []*model.SlackAttachment `json:"attachments"`
	Reactions   []*SlackReaction         `json:"reactions"`
	Blocks      json.RawMessage          `json:"blocks"`
}

// AuthorID returns the user id when present, otherwise the bot id. Empty
// when the post has no attributable author.
func (p *SlackPost) AuthorID() string {
	if p.User != "" {
		return p.User
	}
	return p.BotId
}

// IsBotAuthored returns true when the post is attributed to a bot rather
// than a workspace member.
func (p *SlackPost) IsBotAuthored() bool {
	return p.User == "" && p.BotId != ""
}

// IsThreadReply returns true when the post belongs to a thread it did not
// start.
func (p *SlackPost) IsThreadReply() bool {
	return p.ThreadTS != "" && p.ThreadTS != p.TimeStamp
}

// AllFiles returns the post's files, normalizing the legacy singular form.
func (p *SlackPost) AllFiles() []*SlackFile {
	if len(p.Files) > 0 {
		return p.Files
	}
	if p.File != nil {
		return []*SlackFile{p.File}
	}
	return nil
}
