package importer

import (
	"encoding/json"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/slack"
)

// countJSONFiles counts the JSON payload files of an extracted export: the
// five top-level files plus every per-channel day file. The presence map
// tells later stages which top-level files to credit as processed.
func countJSONFiles(extractDir string) (int64, map[string]bool, error) {
	topFiles := []string{"users.json", "channels.json", "groups.json", "dms.json", "mpims.json"}
	presence := make(map[string]bool, len(topFiles))
	var total int64
	for _, name := range topFiles {
		_, err := os.Stat(filepath.Join(extractDir, name))
		exists := err == nil
		presence[name] = exists
		if exists {
			total++
		}
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return 0, nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dayFiles, err := filepath.Glob(filepath.Join(extractDir, entry.Name(), "*.json"))
		if err != nil {
			continue
		}
		total += int64(len(dayFiles))
	}
	return total, presence, nil
}

// precountTotals streams every day file once before the heavy stages so that
// progress percentages have denominators. Emoji counting here is a rough
// shallow scan; the emojis stage itself performs the full one.
func precountTotals(extractDir string, folders map[string]models.JSONMap, emojiList map[string]string, logger log.FieldLogger) models.Totals {
	totals := models.Totals{}
	seenEmoji := make(map[string]struct{})

	for _, folder := range sortedFolderNames(folders) {
		// Unmatched folders are skipped by the import stages, so their rows
		// must not inflate the totals either.
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
				shortcodesInto(raw.GetString("text"), seenEmoji)
				collectAttachmentShortcodes(rawList(raw["attachments"]), seenEmoji)
				collectBlockShortcodesShallow(rawList(raw["blocks"]), seenEmoji)
				// Rows without a ts never become message entities.
				if raw.GetString("ts") == "" {
					return nil
				}
				totals.Messages++
				for _, r := range rawList(raw["reactions"]) {
					reaction, ok := r.(map[string]any)
					if !ok {
						continue
					}
					totals.Reactions += int64(len(rawList(reaction["users"])))
				}
				for _, f := range rawList(raw["files"]) {
					file, ok := f.(map[string]any)
					if !ok {
						continue
					}
					if isSlackHostedFile(stringValue(file["url_private"])) {
						totals.Attachments++
					}
				}
				return nil
			})
			if err != nil {
				logger.WithError(err).WithField("file", dayFile).Error("Failed to pre-count day file")
			}
		}
	}

	for name := range seenEmoji {
		if emojiList[name] != "" {
			totals.Emojis++
		}
	}
	return totals
}
