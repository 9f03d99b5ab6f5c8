package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/insoln/slack-mm2/models"
)

type pluginFileResponse struct {
	FileID string `json:"file_id"`
}

func (e *Exporters) exportAttachment(ctx context.Context, run *Run, ent *models.Entity) error {
	raw := ent.RawData

	filename := raw.GetString("name")
	if filename == "" {
		filename = raw.GetString("title")
	}
	if filename == "" {
		filename = raw.GetString("filename")
	}
	if filename == "" {
		filename = "file.bin"
	}
	// Exports carry both composed and decomposed unicode filenames;
	// Mattermost wants a single form.
	filename = norm.NFC.String(filename)

	channelID := e.resolveAttachmentChannel(ctx, run, ent)
	if channelID == "" {
		return e.fail(ctx, ent, "No target channel for attachment", nil)
	}

	if maxMB := e.cfg.Export.AttachmentMaxMB; maxMB > 0 {
		if size := raw.GetInt("size"); size > int64(maxMB)*1024*1024 {
			return e.skip(ctx, ent, fmt.Sprintf("Attachment size %d exceeds %d MB limit", size, maxMB))
		}
	}

	path, cleanup, err := e.stageAttachment(ctx, raw)
	if err != nil {
		return e.fail(ctx, ent, "failed to fetch attachment content", err)
	}
	defer cleanup()

	var resp pluginFileResponse
	if e.cfg.Export.MultipartUpload {
		err = e.mm.PluginPostMultipart(ctx, "/attachment_multipart", path, map[string]string{
			"channel_id": channelID,
			"filename":   filename,
		}, &resp)
	} else {
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			err = e.mm.PluginPost(ctx, "/attachment", map[string]any{
				"channel_id":     channelID,
				"filename":       filename,
				"content_base64": base64.StdEncoding.EncodeToString(data),
			}, &resp)
		}
	}
	if err != nil {
		return e.fail(ctx, ent, "failed to upload attachment", err)
	}
	if resp.FileID == "" {
		return e.fail(ctx, ent, "No file_id in plugin response", nil)
	}

	e.logger.Debugf("Attachment uploaded, file_id=%s", resp.FileID)
	return e.entities.MarkExported(ctx, ent, resp.FileID)
}

// resolveAttachmentChannel finds the Mattermost channel the file should be
// uploaded into: the raw channel_id mapping when present, otherwise the
// channel of the message it is attached to.
func (e *Exporters) resolveAttachmentChannel(ctx context.Context, run *Run, ent *models.Entity) string {
	if slackChannelID := ent.RawData.GetString("channel_id"); slackChannelID != "" {
		if id := run.ChannelMMID(ctx, slackChannelID); id != "" {
			return id
		}
	}

	message, err := e.entities.Relations().GetTargetEntity(ctx, ent.ID, models.RelationAttachedTo, models.EntityTypeMessage)
	if err != nil {
		e.logger.WithError(err).Debugf("Attachment %s message lookup failed", ent.SlackID)
		return ""
	}
	msg, ok := message.Get()
	if !ok {
		return ""
	}
	channel, err := e.entities.Relations().GetTargetEntity(ctx, msg.ID, models.RelationPostedIn, models.EntityTypeChannel)
	if err != nil {
		e.logger.WithError(err).Debugf("Attachment %s channel lookup failed", ent.SlackID)
		return ""
	}
	if ch, ok := channel.Get(); ok {
		return ch.MattermostID
	}
	return ""
}

// stageAttachment materializes the file content on disk: the inline
// content_base64 when the row carries one, otherwise a download from Slack.
func (e *Exporters) stageAttachment(ctx context.Context, raw models.JSONMap) (string, func(), error) {
	tmp, err := os.CreateTemp("", "slack-attachment-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create temp file")
	}
	path := tmp.Name()
	cleanup := func() { _ = os.Remove(path) }

	if b64 := raw.GetString("content_base64"); b64 != "" {
		data, decErr := base64.StdEncoding.DecodeString(b64)
		if decErr == nil {
			_, decErr = tmp.Write(data)
		}
		if closeErr := tmp.Close(); decErr == nil {
			decErr = closeErr
		}
		if decErr != nil {
			cleanup()
			return "", nil, errors.Wrap(decErr, "failed to write inline content")
		}
		return path, cleanup, nil
	}
	_ = tmp.Close()

	url := raw.GetString("url_private")
	if url == "" {
		url = raw.GetString("url_private_download")
	}
	if url == "" {
		cleanup()
		return "", nil, errors.New("no content source: neither content_base64 nor url_private")
	}
	if err := e.slack.DownloadFile(ctx, url, path, raw.GetInt("size")); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
