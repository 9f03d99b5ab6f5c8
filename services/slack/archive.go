package slack

import (
	"archive/zip"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ChannelListFiles maps each top-level channel list file to the kind of
// channel it declares.
var ChannelListFiles = map[string]string{
	"channels.json": "public",
	"groups.json":   "private",
	"dms.json":      "direct",
	"mpims.json":    "group",
}

// Archive is a read-only view over a Slack export ZIP. It parses the
// workspace lists and streams posts straight from the archive, without
// extracting anything to disk.
type Archive struct {
	reader *zip.Reader
	logger log.FieldLogger
}

func NewArchive(reader *zip.Reader, logger log.FieldLogger) *Archive {
	return &Archive{reader: reader, logger: logger}
}

// OpenArchive opens the export ZIP at path. The returned close function
// releases the file handle.
func OpenArchive(path string, logger log.FieldLogger) (*Archive, func() error, error) {
	zipReader, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open export archive %s", path)
	}
	return NewArchive(&zipReader.Reader, logger), zipReader.Close, nil
}

// HasFile reports whether name exists at the archive root. A hit in a
// subdirectory is logged separately: exports re-zipped by hand often end up
// with everything nested one level down.
func (a *Archive) HasFile(name string) bool {
	found := false
	foundInSubdirectory := false

	for _, file := range a.reader.File {
		if file.Name == name {
			found = true
		} else if strings.HasSuffix(file.Name, "/"+name) {
			foundInSubdirectory = true
		}
	}

	if !found && foundInSubdirectory {
		a.logger.Errorf("Found %s in a subdirectory instead of the archive root. Re-zip the export contents directly.", name)
	}
	return found
}

// Precheck verifies the archive has the files the import pipeline needs.
func (a *Archive) Precheck() error {
	if !a.HasFile("channels.json") {
		return errors.New("channels.json not found in the archive root")
	}
	if !a.HasFile("users.json") {
		a.logger.Warn("users.json not found, posts will import without author profiles")
	}
	return nil
}

func (a *Archive) openRoot(name string) (io.ReadCloser, error) {
	for _, file := range a.reader.File {
		if file.Name == name {
			return file.Open()
		}
	}
	return nil, nil
}

// ParseUsers decodes users.json. An absent file yields an empty list.
func (a *Archive) ParseUsers() ([]SlackUser, error) {
	reader, err := a.openRoot("users.json")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open users.json")
	}
	if reader == nil {
		return nil, nil
	}
	defer reader.Close()

	var users []SlackUser
	if err := json.NewDecoder(reader).Decode(&users); err != nil {
		return nil, errors.Wrap(err, "failed to parse users.json")
	}
	return users, nil
}

// ParseChannelList decodes one of the top-level channel list files. Absent
// files yield an empty list: only channels.json is mandatory in an export.
func (a *Archive) ParseChannelList(name string) ([]SlackChannel, error) {
	reader, err := a.openRoot(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", name)
	}
	if reader == nil {
		return nil, nil
	}
	defer reader.Close()

	var channels []SlackChannel
	if err := json.NewDecoder(reader).Decode(&channels); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", name)
	}
	return channels, nil
}

// EachPost streams every post of every channel folder. fn receives the
// folder name alongside the decoded post; parse failures of single day
// files are logged and skipped so one corrupt file does not hide the rest
// of the archive.
func (a *Archive) EachPost(fn func(folder string, post *SlackPost) error) error {
	for _, file := range a.reader.File {
		parts := strings.Split(file.Name, "/")
		if len(parts) != 2 || !strings.HasSuffix(parts[1], ".json") {
			continue
		}
		folder := parts[0]
		if folder == "__uploads" || folder == "profile_pictures" {
			continue
		}

		reader, err := file.Open()
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", file.Name)
		}
		err = EachInArray(reader, func(raw json.RawMessage) error {
			var post SlackPost
			if err := json.Unmarshal(raw, &post); err != nil {
				a.logger.WithError(err).Warnf("Skipping unparseable post in %s", file.Name)
				return nil
			}
			return fn(folder, &post)
		})
		reader.Close()
		if err != nil {
			a.logger.WithError(err).Warnf("Skipping unreadable day file %s", file.Name)
		}
	}
	return nil
}

// UploadEntryCount counts file payloads bundled under __uploads.
func (a *Archive) UploadEntryCount() int {
	count := 0
	for _, file := range a.reader.File {
		parts := strings.Split(file.Name, "/")
		if len(parts) == 3 && parts[0] == "__uploads" && parts[2] != "" {
			count++
		}
	}
	return count
}
