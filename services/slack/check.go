package slack

import (
	"fmt"
	"sort"
	"strings"
)

// Summary aggregates what a check pass found in an export archive.
type Summary struct {
	Users        int
	Bots         int
	DeletedUsers int

	// Channel counts keyed by kind: public, private, direct, group.
	Channels map[string]int

	Posts         int
	ThreadReplies int
	Reactions     int
	HostedFiles   int

	Warnings []string
}

func (s *Summary) warnf(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

func directChannelNameFromMembers(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	return strings.Join(sorted, "_")
}

// Check walks the whole archive and reports what an import would find:
// user and channel counts, post volume per folder, and anything that looks
// wrong, like duplicate channel names, posts by unknown users or folders
// without a matching channel entry.
func (a *Archive) Check() (*Summary, error) {
	summary := &Summary{Channels: map[string]int{}}

	users, err := a.ParseUsers()
	if err != nil {
		return nil, err
	}
	usersByID := make(map[string]SlackUser, len(users))
	for _, user := range users {
		usersByID[user.Id] = user
		summary.Users++
		if user.IsBot {
			summary.Bots++
		}
		if user.Deleted {
			summary.DeletedUsers++
		}
	}

	// Duplicate names across the public and private lists collide in
	// Mattermost; direct and group channels collide on their member set.
	channelsByName := map[string]string{}
	channelsByID := map[string]string{}
	for _, listFile := range []string{"channels.json", "groups.json", "dms.json", "mpims.json"} {
		kind := ChannelListFiles[listFile]
		channels, err := a.ParseChannelList(listFile)
		if err != nil {
			return nil, err
		}
		summary.Channels[kind] += len(channels)

		for _, channel := range channels {
			key := channel.Name
			if kind == "direct" || kind == "group" {
				key = directChannelNameFromMembers(channel.Members)
			}
			if key == "" {
				key = channel.Id
			}
			if previous, ok := channelsByName[key]; ok {
				summary.warnf("Duplicate %s channel name %q (also in %s)", kind, key, previous)
			} else {
				channelsByName[key] = listFile
			}
			channelsByID[channel.Id] = kind

			for _, member := range channel.Members {
				if _, ok := usersByID[member]; !ok && summary.Users > 0 {
					summary.warnf("Channel %q lists unknown member %s", channel.Name, member)
				}
			}
		}
	}

	postsByFolder := map[string]int{}
	unknownAuthors := map[string]struct{}{}
	err = a.EachPost(func(folder string, post *SlackPost) error {
		if post.TimeStamp == "" {
			return nil
		}
		summary.Posts++
		postsByFolder[folder]++
		if post.IsThreadReply() {
			summary.ThreadReplies++
		}
		for _, reaction := range post.Reactions {
			summary.Reactions += len(reaction.Users)
		}
		for _, file := range post.AllFiles() {
			if strings.HasPrefix(file.URLPrivate, "https://files.slack.com") {
				summary.HostedFiles++
			}
		}
		if author := post.AuthorID(); author != "" && summary.Users > 0 {
			if _, ok := usersByID[author]; !ok && !post.IsBotAuthored() && author != "USLACKBOT" {
				unknownAuthors[author] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	folders := make([]string, 0, len(postsByFolder))
	for folder := range postsByFolder {
		folders = append(folders, folder)
	}
	sort.Strings(folders)
	for _, folder := range folders {
		_, byName := channelsByName[folder]
		_, byID := channelsByID[folder]
		if !byName && !byID {
			summary.warnf("Folder %s has %d posts but no channel entry", folder, postsByFolder[folder])
		}
		a.logger.Infof("> Channel %q: %d posts", folder, postsByFolder[folder])
	}

	authors := make([]string, 0, len(unknownAuthors))
	for author := range unknownAuthors {
		authors = append(authors, author)
	}
	sort.Strings(authors)
	for _, author := range authors {
		summary.warnf("Posts authored by unknown user %s", author)
	}

	return summary, nil
}
