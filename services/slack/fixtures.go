package slack

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// defaultPostDate is the day file used when a test does not care about
// per-day layout.
const defaultPostDate = "2025-01-01"

// SlackExportBuilder helps construct Slack export ZIP files for testing
type SlackExportBuilder struct {
	channels        []SlackChannel
	privateChannels []SlackChannel
	groupChannels   []SlackChannel
	directChannels  []SlackChannel
	users           []SlackUser
	posts           map[string]map[string][]SlackPost // channel name -> date -> posts
	uploads         map[string][]byte                 // "<file id>/<name>" -> content
}

// NewSlackExportBuilder creates a new builder for Slack exports
func NewSlackExportBuilder() *SlackExportBuilder {
	return &SlackExportBuilder{
		channels:        []SlackChannel{},
		privateChannels: []SlackChannel{},
		groupChannels:   []SlackChannel{},
		directChannels:  []SlackChannel{},
		users:           []SlackUser{},
		posts:           make(map[string]map[string][]SlackPost),
		uploads:         make(map[string][]byte),
	}
}

// AddChannel adds a public channel to the export
func (b *SlackExportBuilder) AddChannel(channel SlackChannel) *SlackExportBuilder {
	b.channels = append(b.channels, channel)
	return b
}

// AddPrivateChannel adds a private channel (group) to the export
func (b *SlackExportBuilder) AddPrivateChannel(channel SlackChannel) *SlackExportBuilder {
	b.privateChannels = append(b.privateChannels, channel)
	return b
}

// AddGroupChannel adds a group DM (mpim) to the export
func (b *SlackExportBuilder) AddGroupChannel(channel SlackChannel) *SlackExportBuilder {
	b.groupChannels = append(b.groupChannels, channel)
	return b
}

// AddDirectChannel adds a direct message channel to the export
func (b *SlackExportBuilder) AddDirectChannel(channel SlackChannel) *SlackExportBuilder {
	b.directChannels = append(b.directChannels, channel)
	return b
}

// AddUser adds a user to the export
func (b *SlackExportBuilder) AddUser(user SlackUser) *SlackExportBuilder {
	b.users = append(b.users, user)
	return b
}

// AddPost adds a post to a channel's default day file
func (b *SlackExportBuilder) AddPost(channelName string, post SlackPost) *SlackExportBuilder {
	return b.AddPostOn(channelName, defaultPostDate, post)
}

// AddPostOn adds a post to a specific day file of a channel
func (b *SlackExportBuilder) AddPostOn(channelName, date string, post SlackPost) *SlackExportBuilder {
	if _, ok := b.posts[channelName]; !ok {
		b.posts[channelName] = make(map[string][]SlackPost)
	}
	b.posts[channelName][date] = append(b.posts[channelName][date], post)
	return b
}

// AddPosts adds multiple posts to a channel's default day file
func (b *SlackExportBuilder) AddPosts(channelName string, posts []SlackPost) *SlackExportBuilder {
	for _, post := range posts {
		b.AddPost(channelName, post)
	}
	return b
}

// AddUpload places file content under __uploads/<fileID>/<name>
func (b *SlackExportBuilder) AddUpload(fileID, name string, content []byte) *SlackExportBuilder {
	b.uploads[filepath.Join(fileID, name)] = content
	return b
}

// Build creates a ZIP file at the specified path containing the Slack export
func (b *SlackExportBuilder) Build(outputPath string) error {
	tempDir, err := os.MkdirTemp("", "slack-export-fixture-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := b.writeJSONFile(tempDir, "channels.json", b.channels); err != nil {
		return err
	}
	if len(b.privateChannels) > 0 {
		if err := b.writeJSONFile(tempDir, "groups.json", b.privateChannels); err != nil {
			return err
		}
	}
	if len(b.groupChannels) > 0 {
		if err := b.writeJSONFile(tempDir, "mpims.json", b.groupChannels); err != nil {
			return err
		}
	}
	if len(b.directChannels) > 0 {
		if err := b.writeJSONFile(tempDir, "dms.json", b.directChannels); err != nil {
			return err
		}
	}
	if err := b.writeJSONFile(tempDir, "users.json", b.users); err != nil {
		return err
	}

	for channelName, days := range b.posts {
		channelDir := filepath.Join(tempDir, channelName)
		if err := os.MkdirAll(channelDir, 0755); err != nil {
			return fmt.Errorf("failed to create channel dir %s: %w", channelName, err)
		}
		for date, posts := range days {
			if err := b.writeJSONFile(channelDir, date+".json", posts); err != nil {
				return err
			}
		}
	}

	for relPath, content := range b.uploads {
		uploadPath := filepath.Join(tempDir, "__uploads", relPath)
		if err := os.MkdirAll(filepath.Dir(uploadPath), 0755); err != nil {
			return fmt.Errorf("failed to create upload dir: %w", err)
		}
		if err := os.WriteFile(uploadPath, content, 0644); err != nil {
			return fmt.Errorf("failed to write upload %s: %w", relPath, err)
		}
	}

	return b.createZipFile(outputPath, tempDir)
}

// writeJSONFile writes data as JSON to a file in the given directory
func (b *SlackExportBuilder) writeJSONFile(dir, filename string, data interface{}) error {
	filePath := filepath.Join(dir, filename)
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return nil
}

// createZipFile creates a ZIP file from the directory contents
func (b *SlackExportBuilder) createZipFile(outputPath, sourceDir string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create zip file: %w", err)
	}
	defer zipFile.Close()

	archive := zip.NewWriter(zipFile)
	defer archive.Close()

	return filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == sourceDir {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			_, err := archive.Create(relPath + "/")
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = relPath
		header.Method = zip.Deflate

		writer, err := archive.CreateHeader(header)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(writer, file)
		return err
	})
}

// === Convenience builders for common test scenarios ===

// BasicExport creates a simple export with users and channels (no posts)
func BasicExport() *SlackExportBuilder {
	return NewSlackExportBuilder().
		AddUser(SlackUser{
			Id:       "U001",
			Username: "john.doe",
			IsBot:    false,
			Profile: SlackProfile{
				RealName: "John Doe",
				Email:    "john.doe@example.com",
				Title:    "Software Engineer",
			},
			Deleted: false,
		}).
		AddUser(SlackUser{
			Id:       "U002",
			Username: "jane.smith",
			IsBot:    false,
			Profile: SlackProfile{
				RealName: "Jane Smith",
				Email:    "jane.smith@example.com",
				Title:    "Product Manager",
			},
			Deleted: false,
		}).
		AddChannel(SlackChannel{
			Id:      "C001",
			Name:    "general",
			Creator: "U001",
			Members: []string{"U001", "U002"},
			Purpose: SlackChannelSub{Value: "Company-wide announcements"},
			Topic:   SlackChannelSub{Value: "Welcome to the team!"},
		}).
		AddChannel(SlackChannel{
			Id:      "C002",
			Name:    "random",
			Creator: "U002",
			Members: []string{"U001", "U002"},
			Purpose: SlackChannelSub{Value: "Non-work banter"},
			Topic:   SlackChannelSub{Value: "Water cooler chat"},
		})
}

// ExportWithPosts creates an export with users, channels, and posts
func ExportWithPosts() *SlackExportBuilder {
	return BasicExport().
		AddPost("general", SlackPost{
			User:      "U001",
			Text:      "Hello everyone!",
			TimeStamp: "1704067200.000100",
			Type:      "message",
		}).
		AddPost("general", SlackPost{
			User:      "U002",
			Text:      "Welcome to the team, *john*!",
			TimeStamp: "1704067260.000200",
			Type:      "message",
			Reactions: []*SlackReaction{
				{Name: "wave", Count: 1, Users: []string{"U001"}},
			},
		}).
		AddPost("random", SlackPost{
			User:      "U001",
			Text:      "Anyone up for coffee?",
			TimeStamp: "1704070800.000300",
			Type:      "message",
		})
}

// ExportWithThreads creates an export with threaded conversations
func ExportWithThreads() *SlackExportBuilder {
	return BasicExport().
		AddPost("general", SlackPost{
			User:      "U001",
			Text:      "Let's discuss the new feature",
			TimeStamp: "1704067200.000100",
			ThreadTS:  "1704067200.000100", // Root of thread
			Type:      "message",
		}).
		AddPost("general", SlackPost{
			User:      "U002",
			Text:      "I think we should prioritize performance",
			TimeStamp: "1704067260.000200",
			ThreadTS:  "1704067200.000100", // Reply to thread
			Type:      "message",
		}).
		AddPost("general", SlackPost{
			User:      "U001",
			Text:      "Good point, let's add benchmarks",
			TimeStamp: "1704067320.000300",
			ThreadTS:  "1704067200.000100", // Another reply
			Type:      "message",
		})
}

// ExportWithUploads creates an export with a file-bearing post and its
// payload under __uploads
func ExportWithUploads() *SlackExportBuilder {
	return BasicExport().
		AddPost("general", SlackPost{
			User:      "U001",
			Text:      "see attached",
			TimeStamp: "1704067200.000100",
			Type:      "message",
			Upload:    true,
			Files: []*SlackFile{
				{
					Id:          "F001",
					Name:        "notes.txt",
					Size:        11,
					URLPrivate:  "https://files.slack.com/files-pri/T001-F001/notes.txt",
					DownloadURL: "https://files.slack.com/files-pri/T001-F001/download/notes.txt",
				},
			},
		}).
		AddUpload("F001", "notes.txt", []byte("hello world"))
}

// ExportWithDeletedUser creates an export with a deleted user
func ExportWithDeletedUser() *SlackExportBuilder {
	return NewSlackExportBuilder().
		AddUser(SlackUser{
			Id:       "U001",
			Username: "john.doe",
			IsBot:    false,
			Profile: SlackProfile{
				RealName: "John Doe",
				Email:    "john.doe@example.com",
			},
			Deleted: false,
		}).
		AddUser(SlackUser{
			Id:       "U003",
			Username: "deleted.user",
			IsBot:    false,
			Profile: SlackProfile{
				RealName: "Former Employee",
				Email:    "former@example.com",
			},
			Deleted: true,
		}).
		AddChannel(SlackChannel{
			Id:      "C001",
			Name:    "general",
			Creator: "U001",
			Members: []string{"U001", "U003"},
			Purpose: SlackChannelSub{Value: "General discussion"},
			Topic:   SlackChannelSub{Value: ""},
		})
}
