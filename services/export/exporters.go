package export

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/insoln/slack-mm2/config"
	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/entity"
	"github.com/insoln/slack-mm2/services/mmclient"
	"github.com/insoln/slack-mm2/services/slackclient"
)

// Exporters pushes mapped entities into Mattermost. One instance serves the
// whole process; per-run state (admin identity, caches) lives in Run.
type Exporters struct {
	entities *entity.Service
	mm       *mmclient.Client
	slack    *slackclient.Client
	cfg      *config.AppConfig
	logger   log.FieldLogger
}

func NewExporters(entities *entity.Service, mm *mmclient.Client, slack *slackclient.Client, cfg *config.AppConfig, logger log.FieldLogger) *Exporters {
	return &Exporters{
		entities: entities,
		mm:       mm,
		slack:    slack,
		cfg:      cfg,
		logger:   logger,
	}
}

// ExportEntity exports a single entity and records the outcome on its row.
// The returned error reports bookkeeping problems only; an export that fails
// or is skipped still returns nil after the row is updated, so one bad
// entity never stops a batch.
func (e *Exporters) ExportEntity(ctx context.Context, run *Run, ent *models.Entity) error {
	switch ent.EntityType {
	case models.EntityTypeUser:
		return e.exportUser(ctx, run, ent)
	case models.EntityTypeCustomEmoji:
		return e.exportCustomEmoji(ctx, run, ent)
	case models.EntityTypeChannel:
		return e.exportChannel(ctx, run, ent)
	case models.EntityTypeAttachment:
		return e.exportAttachment(ctx, run, ent)
	case models.EntityTypeMessage:
		return e.exportMessage(ctx, run, ent)
	case models.EntityTypeReaction:
		return e.exportReaction(ctx, run, ent)
	}
	return e.entities.MarkFailed(ctx, ent, fmt.Sprintf("no exporter for entity type %q", ent.EntityType))
}

// fail records a failed export. The original error is logged, a short
// message lands on the row.
func (e *Exporters) fail(ctx context.Context, ent *models.Entity, message string, err error) error {
	entry := e.logger.WithField("entity_type", ent.EntityType).WithField("slack_id", ent.SlackID)
	if err != nil {
		entry = entry.WithError(err)
		message = fmt.Sprintf("%s: %v", message, err)
	}
	entry.Errorf("Export failed: %s", message)
	return e.entities.MarkFailed(ctx, ent, message)
}

func (e *Exporters) skip(ctx context.Context, ent *models.Entity, reason string) error {
	e.logger.WithField("entity_type", ent.EntityType).WithField("slack_id", ent.SlackID).Infof("Export skipped: %s", reason)
	return e.entities.MarkSkipped(ctx, ent, reason)
}
