package importer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/slack"
)

const slackFileHost = "https://files.slack.com"

// messageBatchSize is how many saved messages accumulate between progress
// counter flushes.
const messageBatchSize = 200

var channelFiles = []string{"channels.json", "groups.json", "dms.json", "mpims.json"}

func isSlackHostedFile(url string) bool {
	return strings.HasPrefix(url, slackFileHost)
}

func sortedFolderNames(folders map[string]models.JSONMap) []string {
	names := make([]string, 0, len(folders))
	for name := range folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// importUsers streams users.json and upserts a global user entity per
// element. A missing users.json is tolerated: bot-only exports have none.
func (s *Service) importUsers(ctx context.Context, extractDir string) (int, error) {
	usersPath := filepath.Join(extractDir, "users.json")
	if _, err := os.Stat(usersPath); err != nil {
		s.logger.WithField("dir", extractDir).Warn("users.json not found in export")
		return 0, nil
	}

	count := 0
	err := slack.EachInArrayFile(usersPath, func(item json.RawMessage) error {
		var raw models.JSONMap
		if err := json.Unmarshal(item, &raw); err != nil {
			return err
		}
		slackID := raw.GetString("id")
		if slackID == "" {
			return nil
		}
		if _, _, err := s.entities.UpsertUser(ctx, slackID, raw); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	s.logger.WithField("count", count).Info("Imported users")
	return count, nil
}

// importChannels parses the four channel listing files, upserts a global
// channel entity per element and links listed members. It returns all parsed
// channel payloads for folder mapping.
func (s *Service) importChannels(ctx context.Context, extractDir string) ([]models.JSONMap, error) {
	var channels []models.JSONMap
	for _, name := range channelFiles {
		path := filepath.Join(extractDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		err := slack.EachInArrayFile(path, func(item json.RawMessage) error {
			var raw models.JSONMap
			if err := json.Unmarshal(item, &raw); err != nil {
				return err
			}
			channels = append(channels, raw)
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("file", name).Error("Failed to read channel file")
		}
	}

	for _, raw := range channels {
		slackID := raw.GetString("id")
		if slackID == "" {
			continue
		}
		channel, _, err := s.entities.UpsertChannel(ctx, slackID, raw)
		if err != nil {
			return nil, err
		}
		if err := s.linkChannelMembers(ctx, channel, raw); err != nil {
			return nil, err
		}
	}
	s.logger.WithField("count", len(channels)).Info("Imported channels and chats")
	return channels, nil
}

// linkChannelMembers creates member_of relations for the channel's member
// list, deduplicated in order. Members without a known user entity are
// skipped.
func (s *Service) linkChannelMembers(ctx context.Context, channel *models.Entity, raw models.JSONMap) error {
	members := rawList(raw["members"])
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		userID := stringValue(m)
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		user, err := s.entities.Resolve(ctx, models.EntityTypeUser, userID, nil)
		if err != nil {
			return err
		}
		if user == nil {
			s.logger.WithFields(log.Fields{"user": userID, "channel": channel.SlackID}).Debug("Skipping member_of for unknown user")
			continue
		}
		if err := s.entities.EnsureRelation(ctx, user, channel, models.RelationMemberOf, nil); err != nil {
			return err
		}
	}
	return nil
}

// mapFoldersToChannels assigns every directory of the extracted export to a
// parsed channel, matching by channel id first and name second. Unmatched
// folders map to nil and are skipped by the message stages.
func mapFoldersToChannels(extractDir string, channels []models.JSONMap) (map[string]models.JSONMap, error) {
	byID := make(map[string]models.JSONMap, len(channels))
	byName := make(map[string]models.JSONMap, len(channels))
	for _, c := range channels {
		if id := c.GetString("id"); id != "" {
			byID[id] = c
		}
		if name := c.GetString("name"); name != "" {
			byName[name] = c
		}
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return nil, err
	}
	result := make(map[string]models.JSONMap)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if c, ok := byID[name]; ok {
			result[name] = c
			continue
		}
		result[name] = byName[name]
	}
	return result, nil
}

// importMessages streams every day file of every mapped folder, upserting
// job-scoped message entities with their relations. Message-level failures
// are logged and skipped; the progress counter flushes in batches with the
// remainder flushed once at the end.
func (s *Service) importMessages(ctx context.Context, jobID int64, extractDir string, folders map[string]models.JSONMap) error {
	var saved int64
	for _, folder := range sortedFolderNames(folders) {
		channel := folders[folder]
		if channel == nil {
			s.logger.WithField("folder", folder).Debug("Skipping folder without a matched channel")
			continue
		}
		channelID := channel.GetString("id")
		folderPath := filepath.Join(extractDir, folder)
		info, err := os.Stat(folderPath)
		if err != nil || !info.IsDir() {
			continue
		}

		dayFiles, _ := filepath.Glob(filepath.Join(folderPath, "*.json"))
		sort.Strings(dayFiles)
		for _, dayFile := range dayFiles {
			err := slack.EachInArrayFile(dayFile, func(item json.RawMessage) error {
				var raw models.JSONMap
				if err := json.Unmarshal(item, &raw); err != nil {
					return err
				}
				if raw.GetString("ts") == "" {
					return nil
				}
				if err := s.saveMessage(ctx, jobID, channelID, raw); err != nil {
					s.logger.WithError(err).WithField("file", dayFile).Error("Failed to save message")
					return nil
				}
				saved++
				if saved%messageBatchSize == 0 {
					if err := s.jobs.IncrementMetaCounter(ctx, jobID, models.MetaMessagesProcessed, messageBatchSize); err != nil {
						s.logger.WithError(err).Warn("Failed to flush message progress")
					}
				}
				return nil
			})
			if err != nil {
				s.logger.WithError(err).WithField("file", dayFile).Error("Failed to read day file")
				continue
			}
			if err := s.jobs.IncrementMetaCounter(ctx, jobID, models.MetaJSONFilesProcessed, 1); err != nil {
				s.logger.WithError(err).Warn("Failed to flush file progress")
			}
		}
	}

	if rem := saved % messageBatchSize; rem > 0 {
		if err := s.jobs.IncrementMetaCounter(ctx, jobID, models.MetaMessagesProcessed, rem); err != nil {
			s.logger.WithError(err).Warn("Failed to flush message progress")
		}
	}
	s.logger.WithField("count", saved).Info("Imported messages")
	return nil
}

// saveMessage upserts one message and its relations. The channel id is
// stamped into raw_data so exporters can resolve the channel even without
// the posted_in relation. Authors that look like bots get a synthetic user
// entity when users.json did not list them.
func (s *Service) saveMessage(ctx context.Context, jobID int64, channelID string, raw models.JSONMap) error {
	ts := raw.GetString("ts")
	if _, ok := raw["channel_id"]; !ok {
		raw["channel_id"] = channelID
	}

	msg, _, err := s.entities.UpsertMessage(ctx, jobID, ts, raw)
	if err != nil {
		return err
	}

	channel, err := s.entities.Resolve(ctx, models.EntityTypeChannel, channelID, nil)
	if err != nil {
		return err
	}
	if err := s.entities.EnsureRelation(ctx, msg, channel, models.RelationPostedIn, nil); err != nil {
		return err
	}

	author := raw.GetString("user")
	if author == "" {
		author = raw.GetString("bot_id")
	}
	if author != "" {
		user, err := s.entities.Resolve(ctx, models.EntityTypeUser, author, nil)
		if err != nil {
			return err
		}
		if user == nil && (strings.HasPrefix(author, "B") || author == "USLACKBOT") {
			user, _, err = s.entities.UpsertUser(ctx, author, models.JSONMap{
				"is_bot":     true,
				"first_name": raw["username"],
			})
			if err != nil {
				return err
			}
		}
		if err := s.entities.EnsureRelation(ctx, user, msg, models.RelationPostedBy, nil); err != nil {
			return err
		}
	}

	threadTS := raw.GetString("thread_ts")
	if threadTS != "" && threadTS != ts {
		parent, err := s.entities.Resolve(ctx, models.EntityTypeMessage, threadTS, &jobID)
		if err != nil {
			return err
		}
		if err := s.entities.EnsureRelation(ctx, msg, parent, models.RelationThreadReply, nil); err != nil {
			return err
		}
	}
	return nil
}

// importEmojis re-streams all day files collecting every :shortcode: usage,
// resolves aliases against the Slack emoji list and creates custom_emoji
// entities for shortcodes with a real image URL.
func (s *Service) importEmojis(ctx context.Context, jobID int64, extractDir string, folders map[string]models.JSONMap, emojiList map[string]string) error {
	if len(emojiList) == 0 {
		s.logger.Info("Slack emoji list empty, skipping custom emoji discovery")
		return nil
	}

	wanted := make(map[string]struct{})
	for _, folder := range sortedFolderNames(folders) {
		if folders[folder] == nil {
			continue
		}
		folderPath := filepath.Join(extractDir, folder)
		info, err := os.Stat(folderPath)
		if err != nil || !info.IsDir() {
			continue
		}
		dayFiles, _ := filepath.Glob(filepath.Join(folderPath, "*.json"))
		for _, dayFile := range dayFiles {
			err := slack.EachInArrayFile(dayFile, func(item json.RawMessage) error {
				var raw models.JSONMap
				if err := json.Unmarshal(item, &raw); err != nil {
					return err
				}
				collectMessageShortcodes(raw, wanted)
				return nil
			})
			if err != nil {
				s.logger.WithError(err).WithField("file", dayFile).Error("Failed to scan day file for emojis")
			}
		}
	}

	names := make([]string, 0, len(wanted))
	for name := range wanted {
		if resolveEmojiURL(name, emojiList) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	created := 0
	for _, name := range names {
		url := resolveEmojiURL(name, emojiList)
		_, isNew, err := s.entities.UpsertCustomEmoji(ctx, name, models.JSONMap{"name": name, "url": url})
		if err != nil {
			return err
		}
		if isNew {
			created++
			if err := s.jobs.IncrementMetaCounter(ctx, jobID, models.MetaEmojisProcessed, 1); err != nil {
				s.logger.WithError(err).Warn("Failed to flush emoji progress")
			}
		}
	}
	s.logger.WithField("count", created).Info("Imported custom emojis")
	return nil
}

// importReactions emits one job-scoped reaction entity per (reaction, user)
// pair, linking the reacting user and the target message. Reactions whose
// emoji appears in the Slack emoji list also get a custom_emoji entity and a
// custom_emoji_used relation.
func (s *Service) importReactions(ctx context.Context, jobID int64, extractDir string, folders map[string]models.JSONMap, emojiList map[string]string) error {
	var saved int64
	for _, folder := range sortedFolderNames(folders) {
		channel := folders[folder]
		if channel == nil {
			continue
		}
		folderPath := filepath.Join(extractDir, folder)
		info, err := os.Stat(folderPath)
		if err != nil || !info.IsDir() {
			continue
		}

		dayFiles, _ := filepath.Glob(filepath.Join(folderPath, "*.json"))
		sort.Strings(dayFiles)
		for _, dayFile := range dayFiles {
			err := slack.EachInArrayFile(dayFile, func(item json.RawMessage) error {
				var raw models.JSONMap
				if err := json.Unmarshal(item, &raw); err != nil {
					return err
				}
				n, err := s.saveMessageReactions(ctx, jobID, raw, emojiList)
				if err != nil {
					s.logger.WithError(err).WithField("file", dayFile).Error("Failed to save reactions")
					return nil
				}
				saved += n
				return nil
			})
			if err != nil {
				s.logger.WithError(err).WithField("file", dayFile).Error("Failed to read day file")
			}
		}
	}
	s.logger.WithField("count", saved).Info("Imported reactions")
	return nil
}

func (s *Service) saveMessageReactions(ctx context.Context, jobID int64, raw models.JSONMap, emojiList map[string]string) (int64, error) {
	ts := raw.GetString("ts")
	if ts == "" {
		return 0, nil
	}
	reactions := rawList(raw["reactions"])
	if len(reactions) == 0 {
		return 0, nil
	}

	msg, err := s.entities.Resolve(ctx, models.EntityTypeMessage, ts, &jobID)
	if err != nil {
		return 0, err
	}

	var saved int64
	for _, r := range reactions {
		reaction, ok := r.(map[string]any)
		if !ok {
			continue
		}
		name := stringValue(reaction["name"])
		if name == "" {
			continue
		}

		var emoji *models.Entity
		if emojiList[name] != "" {
			emoji, _, err = s.entities.UpsertCustomEmoji(ctx, name, models.JSONMap{"name": name, "url": emojiList[name]})
			if err != nil {
				return saved, err
			}
		}

		for _, u := range rawList(reaction["users"]) {
			userID := stringValue(u)
			if userID == "" {
				continue
			}

			reactionRaw := make(models.JSONMap, len(reaction)+4)
			for k, v := range reaction {
				reactionRaw[k] = v
			}
			reactionRaw["user"] = userID
			reactionRaw["message_ts"] = ts
			reactionRaw["emoji_name"] = name
			reactionRaw["composite_id"] = ts + "_" + name

			entity, _, err := s.entities.UpsertReaction(ctx, jobID, ts+"_"+name+"_"+userID, reactionRaw)
			if err != nil {
				return saved, err
			}

			user, err := s.entities.Resolve(ctx, models.EntityTypeUser, userID, nil)
			if err != nil {
				return saved, err
			}
			if err := s.entities.EnsureRelation(ctx, user, entity, models.RelationReactedBy, nil); err != nil {
				return saved, err
			}
			if err := s.entities.EnsureRelation(ctx, entity, msg, models.RelationReactedTo, nil); err != nil {
				return saved, err
			}
			if err := s.entities.EnsureRelation(ctx, entity, emoji, models.RelationCustomEmojiUsed, nil); err != nil {
				return saved, err
			}

			saved++
			if err := s.jobs.IncrementMetaCounter(ctx, jobID, models.MetaReactionsProcessed, 1); err != nil {
				s.logger.WithError(err).Warn("Failed to flush reaction progress")
			}
		}
	}
	return saved, nil
}

// importAttachments creates a job-scoped attachment entity per Slack-hosted
// file reference and links it to its message.
func (s *Service) importAttachments(ctx context.Context, jobID int64, extractDir string, folders map[string]models.JSONMap) error {
	var saved int64
	for _, folder := range sortedFolderNames(folders) {
		channel := folders[folder]
		if channel == nil {
			continue
		}
		folderPath := filepath.Join(extractDir, folder)
		info, err := os.Stat(folderPath)
		if err != nil || !info.IsDir() {
			continue
		}

		dayFiles, _ := filepath.Glob(filepath.Join(folderPath, "*.json"))
		sort.Strings(dayFiles)
		for _, dayFile := range dayFiles {
			err := slack.EachInArrayFile(dayFile, func(item json.RawMessage) error {
				var raw models.JSONMap
				if err := json.Unmarshal(item, &raw); err != nil {
					return err
				}
				n, err := s.saveMessageAttachments(ctx, jobID, raw)
				if err != nil {
					s.logger.WithError(err).WithField("file", dayFile).Error("Failed to save attachments")
					return nil
				}
				saved += n
				return nil
			})
			if err != nil {
				s.logger.WithError(err).WithField("file", dayFile).Error("Failed to read day file")
			}
		}
	}
	s.logger.WithField("count", saved).Info("Imported attachments")
	return nil
}

func (s *Service) saveMessageAttachments(ctx context.Context, jobID int64, raw models.JSONMap) (int64, error) {
	ts := raw.GetString("ts")
	if ts == "" {
		return 0, nil
	}
	files := rawList(raw["files"])
	if len(files) == 0 {
		return 0, nil
	}

	var msg *models.Entity
	var saved int64
	for _, f := range files {
		file, ok := f.(map[string]any)
		if !ok {
			continue
		}
		fileID := stringValue(file["id"])
		if fileID == "" || !isSlackHostedFile(stringValue(file["url_private"])) {
			continue
		}

		if msg == nil {
			var err error
			msg, err = s.entities.Resolve(ctx, models.EntityTypeMessage, ts, &jobID)
			if err != nil {
				return saved, err
			}
		}

		entity, _, err := s.entities.UpsertAttachment(ctx, jobID, fileID, models.JSONMap(file))
		if err != nil {
			return saved, err
		}
		if err := s.entities.EnsureRelation(ctx, entity, msg, models.RelationAttachedTo, nil); err != nil {
			return saved, err
		}

		saved++
		if err := s.jobs.IncrementMetaCounter(ctx, jobID, models.MetaAttachmentsProcessed, 1); err != nil {
			s.logger.WithError(err).Warn("Failed to flush attachment progress")
		}
	}
	return saved, nil
}
