package entity

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
)

// Service owns entity and relation persistence semantics: scoped upserts
// that converge under concurrency, relation insertion that requires both
// endpoints, and the status transitions exporters apply.
type Service struct {
	entities  *db.PostgresEntitiesRepository
	relations *db.PostgresRelationsRepository
	logger    log.FieldLogger
}

func NewService(entities *db.PostgresEntitiesRepository, relations *db.PostgresRelationsRepository, logger log.FieldLogger) *Service {
	return &Service{
		entities:  entities,
		relations: relations,
		logger:    logger,
	}
}

func (s *Service) Entities() *db.PostgresEntitiesRepository {
	return s.entities
}

func (s *Service) Relations() *db.PostgresRelationsRepository {
	return s.relations
}

// upsert inserts or fetches the entity for (entityType, slackID) in the
// given scope. Concurrent racers converge on the unique index: a losing
// insert re-selects the winner's row. Existing rows get their raw payload
// refreshed.
func (s *Service) upsert(ctx context.Context, entityType models.EntityType, slackID string, jobID *int64, raw models.JSONMap) (*models.Entity, bool, error) {
	existing, err := s.entities.GetScoped(ctx, entityType, slackID, jobID)
	if err != nil {
		return nil, false, err
	}
	if found, ok := existing.Get(); ok {
		if len(raw) > 0 {
			if err := s.entities.UpdateRawData(ctx, found.ID, raw); err != nil {
				return nil, false, err
			}
			found.RawData = raw
		}
		return found, false, nil
	}

	inserted, err := s.entities.Insert(ctx, &models.Entity{
		EntityType: entityType,
		SlackID:    slackID,
		RawData:    raw,
		Status:     models.MappingStatusPending,
		JobID:      jobID,
	})
	if err != nil {
		return nil, false, err
	}
	if created, ok := inserted.Get(); ok {
		return created, true, nil
	}

	// Lost the race: another worker inserted the row between our select
	// and insert.
	again, err := s.entities.GetScoped(ctx, entityType, slackID, jobID)
	if err != nil {
		return nil, false, err
	}
	if found, ok := again.Get(); ok {
		return found, false, nil
	}
	return nil, false, errors.Errorf("upsert of %s %q did not converge", entityType, slackID)
}

// UpsertUser creates or fetches a global user entity. A user whose slack id
// is unknown but whose name matches an existing row (bots reappearing under
// a different bot id) reuses that row.
func (s *Service) UpsertUser(ctx context.Context, slackID string, raw models.JSONMap) (*models.Entity, bool, error) {
	existing, err := s.entities.GetScoped(ctx, models.EntityTypeUser, slackID, nil)
	if err != nil {
		return nil, false, err
	}
	if found, ok := existing.Get(); ok {
		if len(raw) > 0 {
			if err := s.entities.UpdateRawData(ctx, found.ID, raw); err != nil {
				return nil, false, err
			}
			found.RawData = raw
		}
		return found, false, nil
	}

	if name := raw.GetString("name"); name != "" {
		byName, err := s.entities.FindGlobalByRawKey(ctx, models.EntityTypeUser, "name", name)
		if err != nil {
			return nil, false, err
		}
		if found, ok := byName.Get(); ok {
			return found, false, nil
		}
	}

	return s.upsert(ctx, models.EntityTypeUser, slackID, nil, raw)
}

// UpsertChannel creates or fetches a global channel entity. A channel whose
// slack id is unknown but whose name matches an existing row (re-exports
// where ids shift) reuses that row.
func (s *Service) UpsertChannel(ctx context.Context, slackID string, raw models.JSONMap) (*models.Entity, bool, error) {
	existing, err := s.entities.GetScoped(ctx, models.EntityTypeChannel, slackID, nil)
	if err != nil {
		return nil, false, err
	}
	if found, ok := existing.Get(); ok {
		if len(raw) > 0 {
			if err := s.entities.UpdateRawData(ctx, found.ID, raw); err != nil {
				return nil, false, err
			}
			found.RawData = raw
		}
		return found, false, nil
	}

	if name := raw.GetString("name"); name != "" {
		byName, err := s.entities.FindGlobalByRawKey(ctx, models.EntityTypeChannel, "name", name)
		if err != nil {
			return nil, false, err
		}
		if found, ok := byName.Get(); ok {
			return found, false, nil
		}
	}

	return s.upsert(ctx, models.EntityTypeChannel, slackID, nil, raw)
}

// UpsertCustomEmoji creates or fetches a global custom emoji entity keyed
// by its shortcode.
func (s *Service) UpsertCustomEmoji(ctx context.Context, shortcode string, raw models.JSONMap) (*models.Entity, bool, error) {
	return s.upsert(ctx, models.EntityTypeCustomEmoji, shortcode, nil, raw)
}

// UpsertMessage creates or fetches a job-scoped message entity keyed by its
// Slack timestamp.
func (s *Service) UpsertMessage(ctx context.Context, jobID int64, ts string, raw models.JSONMap) (*models.Entity, bool, error) {
	return s.upsert(ctx, models.EntityTypeMessage, ts, &jobID, raw)
}

// UpsertReaction creates or fetches a job-scoped reaction entity keyed by
// "<ts>_<emoji>_<user>".
func (s *Service) UpsertReaction(ctx context.Context, jobID int64, compositeID string, raw models.JSONMap) (*models.Entity, bool, error) {
	return s.upsert(ctx, models.EntityTypeReaction, compositeID, &jobID, raw)
}

// UpsertAttachment creates or fetches a job-scoped attachment entity keyed
// by its Slack file id.
func (s *Service) UpsertAttachment(ctx context.Context, jobID int64, fileID string, raw models.JSONMap) (*models.Entity, bool, error) {
	return s.upsert(ctx, models.EntityTypeAttachment, fileID, &jobID, raw)
}

// EnsureRelation links two entities, ignoring duplicates. Callers pass the
// entities they already hold so a relation is only written when both
// endpoints exist.
func (s *Service) EnsureRelation(ctx context.Context, from, to *models.Entity, relationType models.RelationType, jobID *int64) error {
	if from == nil || to == nil {
		return nil
	}
	_, err := s.relations.InsertIfAbsent(ctx, from.ID, to.ID, relationType, jobID, nil)
	return err
}

// Resolve finds an entity for export-time lookups under the scoping rule:
// job-scoped types prefer the job's row but fall back to global, global
// types ignore jobs entirely.
func (s *Service) Resolve(ctx context.Context, entityType models.EntityType, slackID string, jobID *int64) (*models.Entity, error) {
	found, err := s.entities.Resolve(ctx, entityType, slackID, jobID)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}

// ResolveChannelByName finds a channel entity by its Slack name, used to
// map export directory names onto channels.
func (s *Service) ResolveChannelByName(ctx context.Context, name string) (*models.Entity, error) {
	found, err := s.entities.FindGlobalByRawKey(ctx, models.EntityTypeChannel, "name", name)
	if err != nil {
		return nil, err
	}
	if e, ok := found.Get(); ok {
		return e, nil
	}
	return nil, nil
}

// MarkExported transitions an entity to success and records its Mattermost
// id.
func (s *Service) MarkExported(ctx context.Context, e *models.Entity, mattermostID string) error {
	var mmID *string
	if mattermostID != "" {
		mmID = &mattermostID
	}
	if err := s.entities.UpdateStatus(ctx, e.ID, models.MappingStatusSuccess, nil, mmID); err != nil {
		return err
	}
	e.Status = models.MappingStatusSuccess
	if mattermostID != "" {
		e.MattermostID = mattermostID
	}
	return nil
}

// MarkFailed records an export failure.
func (s *Service) MarkFailed(ctx context.Context, e *models.Entity, message string) error {
	if err := s.entities.UpdateStatus(ctx, e.ID, models.MappingStatusFailed, &message, nil); err != nil {
		return err
	}
	e.Status = models.MappingStatusFailed
	e.ErrorMessage = message
	return nil
}

// MarkSkipped records that an entity was deliberately not exported.
func (s *Service) MarkSkipped(ctx context.Context, e *models.Entity, reason string) error {
	if err := s.entities.UpdateStatus(ctx, e.ID, models.MappingStatusSkipped, &reason, nil); err != nil {
		return err
	}
	e.Status = models.MappingStatusSkipped
	e.ErrorMessage = reason
	return nil
}
