package importer

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/entity"
	"github.com/insoln/slack-mm2/services/slack"
	"github.com/insoln/slack-mm2/services/slackclient"
)

// ExportRunner hands a finished import over to the export phase. The job is
// the anchor: only it and earlier jobs are exported by the run.
type ExportRunner interface {
	Run(ctx context.Context, anchor *models.ImportJob) error
}

// Service drives one Slack export archive through the staged import
// pipeline and into the export phase.
type Service struct {
	jobs     *db.PostgresJobsRepository
	entities *entity.Service
	slack    *slackclient.Client
	exporter ExportRunner
	logger   log.FieldLogger
}

func NewService(jobs *db.PostgresJobsRepository, entities *entity.Service, slackClient *slackclient.Client, exporter ExportRunner, logger log.FieldLogger) *Service {
	return &Service{
		jobs:     jobs,
		entities: entities,
		slack:    slackClient,
		exporter: exporter,
		logger:   logger,
	}
}

// Begin creates the job row for an uploaded archive. The caller decides
// whether Run happens inline or in the background.
func (s *Service) Begin(ctx context.Context, zipPath string) (*models.ImportJob, error) {
	job, err := s.jobs.Create(ctx, models.JobStatusRunning, models.StageExtracting, models.JSONMap{
		models.MetaZipPath: zipPath,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create import job")
	}
	s.logger.WithFields(log.Fields{"job_id": job.ID, "zip": zipPath}).Info("Import job created")
	return job, nil
}

// Run executes the full pipeline for a job created by Begin. Any stage
// error marks the job failed; the extraction directory is always cleaned up
// and its path stripped from job meta.
func (s *Service) Run(ctx context.Context, job *models.ImportJob) error {
	logger := s.logger.WithField("job_id", job.ID)
	zipPath := job.Meta.GetString(models.MetaZipPath)

	extractDir, err := os.MkdirTemp("", "slack-extract-*")
	if err != nil {
		err = errors.Wrap(err, "failed to create extraction directory")
		s.failJob(job.ID, err, logger)
		return err
	}
	// Persisted so /jobs can derive file totals while the import runs.
	if metaErr := s.jobs.SetMetaKey(ctx, job.ID, models.MetaExtractDir, extractDir); metaErr != nil {
		logger.WithError(metaErr).Warn("Failed to persist extract_dir")
	}

	defer func() {
		if rmErr := os.RemoveAll(extractDir); rmErr != nil {
			logger.WithError(rmErr).Error("Failed to remove extraction directory")
		}
		if stripErr := s.jobs.StripMetaKey(context.Background(), job.ID, models.MetaExtractDir); stripErr != nil {
			logger.WithError(stripErr).Warn("Failed to strip extract_dir from job meta")
		}
	}()

	if err := s.run(ctx, job, zipPath, extractDir, logger); err != nil {
		s.failJob(job.ID, err, logger)
		return err
	}
	return nil
}

func (s *Service) failJob(jobID int64, cause error, logger log.FieldLogger) {
	logger.WithError(cause).Error("Import failed")
	// Deliberately not the caller's context: the failure must be recorded
	// even when the pipeline died from cancellation.
	if err := s.jobs.Fail(context.Background(), jobID, cause.Error()); err != nil {
		logger.WithError(err).Error("Failed to mark job failed")
	}
}

func (s *Service) run(ctx context.Context, job *models.ImportJob, zipPath, extractDir string, logger log.FieldLogger) error {
	logger.WithFields(log.Fields{"zip": zipPath, "dir": extractDir}).Info("Extracting Slack export archive")
	if err := slack.ExtractZip(zipPath, extractDir, logger); err != nil {
		return err
	}

	// Fetched once per run; every stage that needs shortcode URLs shares it.
	emojiList, err := s.slack.ListEmoji(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to fetch Slack emoji list, continuing without it")
		emojiList = map[string]string{}
	}

	jsonTotal, presence, err := countJSONFiles(extractDir)
	if err != nil {
		return errors.Wrap(err, "failed to count export files")
	}
	if err := s.jobs.SetMetaKey(ctx, job.ID, models.MetaJSONFilesTotal, jsonTotal); err != nil {
		return err
	}
	if err := s.jobs.IncrementMetaCounter(ctx, job.ID, models.MetaJSONFilesProcessed, 0); err != nil {
		return err
	}

	if err := s.jobs.SetStage(ctx, job.ID, models.StageUsers); err != nil {
		return err
	}
	if _, err := s.importUsers(ctx, extractDir); err != nil {
		return err
	}
	if presence["users.json"] {
		if err := s.jobs.IncrementMetaCounter(ctx, job.ID, models.MetaJSONFilesProcessed, 1); err != nil {
			return err
		}
	}

	if err := s.jobs.SetStage(ctx, job.ID, models.StageChannels); err != nil {
		return err
	}
	channels, err := s.importChannels(ctx, extractDir)
	if err != nil {
		return err
	}
	var processedChannelFiles int64
	for _, name := range channelFiles {
		if presence[name] {
			processedChannelFiles++
		}
	}
	if processedChannelFiles > 0 {
		if err := s.jobs.IncrementMetaCounter(ctx, job.ID, models.MetaJSONFilesProcessed, processedChannelFiles); err != nil {
			return err
		}
	}

	folders, err := mapFoldersToChannels(extractDir, channels)
	if err != nil {
		return errors.Wrap(err, "failed to map folders to channels")
	}
	logger.WithField("folders", len(folders)).Debug("Mapped export folders to channels")

	totals := precountTotals(extractDir, folders, emojiList, logger)
	if err := s.jobs.SetMetaKey(ctx, job.ID, models.MetaTotals, totals.AsMap()); err != nil {
		return err
	}
	if err := s.jobs.SetMetaKey(ctx, job.ID, models.MetaStages, models.StageNames()); err != nil {
		return err
	}

	if err := s.jobs.SetStage(ctx, job.ID, models.StageMessages); err != nil {
		return err
	}
	if err := s.importMessages(ctx, job.ID, extractDir, folders); err != nil {
		return err
	}

	if err := s.jobs.SetStage(ctx, job.ID, models.StageEmojis); err != nil {
		return err
	}
	if err := s.importEmojis(ctx, job.ID, extractDir, folders, emojiList); err != nil {
		return err
	}

	if err := s.jobs.SetStage(ctx, job.ID, models.StageReactions); err != nil {
		return err
	}
	if err := s.importReactions(ctx, job.ID, extractDir, folders, emojiList); err != nil {
		return err
	}

	if err := s.jobs.SetStage(ctx, job.ID, models.StageAttachments); err != nil {
		return err
	}
	if err := s.importAttachments(ctx, job.ID, extractDir, folders); err != nil {
		return err
	}

	if err := s.jobs.SetStage(ctx, job.ID, models.StageExporting); err != nil {
		return err
	}
	if s.exporter != nil {
		if err := s.exporter.Run(ctx, job); err != nil {
			return err
		}
	}

	return s.jobs.Complete(ctx, job.ID)
}
