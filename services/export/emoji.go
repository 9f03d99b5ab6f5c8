package export

import (
	"context"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/pkg/errors"

	"github.com/insoln/slack-mm2/models"
)

func (e *Exporters) exportCustomEmoji(ctx context.Context, run *Run, ent *models.Entity) error {
	name := transliterateCyrillic(ent.SlackID)
	if name != ent.SlackID {
		e.logger.Debugf("Transliterated emoji name %s -> %s", ent.SlackID, name)
	}

	url := ent.RawData.GetString("url")
	if url == "" {
		return e.fail(ctx, ent, "No emoji URL found in raw_data", nil)
	}
	creatorID := run.AdminUserID()
	if creatorID == "" {
		return e.fail(ctx, ent, "No creator user id for emoji", nil)
	}

	image, err := e.mm.DownloadBytes(ctx, url)
	if err != nil {
		return e.fail(ctx, ent, "failed to download emoji image", err)
	}

	emoji := &model.Emoji{Name: name, CreatorId: creatorID}
	created, _, err := e.mm.API.CreateEmoji(ctx, emoji, image, name+".png")
	if err == nil {
		e.logger.Debugf("Custom emoji %s exported to Mattermost", name)
		return e.entities.MarkExported(ctx, ent, created.Id)
	}

	var appErr *model.AppError
	if errors.As(err, &appErr) && appErr.Id == "api.emoji.create.duplicate.app_error" {
		existing, _, getErr := e.mm.API.GetEmojiByName(ctx, name)
		if getErr == nil {
			e.logger.Debugf("Custom emoji %s already exists as %s", name, existing.Id)
			return e.entities.MarkExported(ctx, ent, existing.Id)
		}
	}
	return e.fail(ctx, ent, "failed to create emoji", err)
}
