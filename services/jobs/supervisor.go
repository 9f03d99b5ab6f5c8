package jobs

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
)

// ExportRunner re-enters the export phase for jobs that survived a restart.
type ExportRunner interface {
	Run(ctx context.Context, anchor *models.ImportJob) error
}

// Supervisor owns the job lifecycle concerns that live outside a single
// pipeline run: progress views for the HTTP surface and the restart policy
// for jobs the previous process left running.
type Supervisor struct {
	jobs     *db.PostgresJobsRepository
	entities *db.PostgresEntitiesRepository
	exporter ExportRunner
	logger   log.FieldLogger
}

func NewSupervisor(jobs *db.PostgresJobsRepository, entities *db.PostgresEntitiesRepository, exporter ExportRunner, logger log.FieldLogger) *Supervisor {
	return &Supervisor{
		jobs:     jobs,
		entities: entities,
		exporter: exporter,
		logger:   logger,
	}
}

// ResumeInterrupted sorts out the running jobs a restart left behind. Jobs
// stuck in an import stage lost their goroutine and extraction directory
// with the old process, so they are failed. Jobs in the exporting stage
// carry all their state in the database and re-enter the orchestrator in
// the background, anchored at the newest of them so uploads arriving after
// startup get their own run.
func (s *Supervisor) ResumeInterrupted(ctx context.Context) error {
	running, err := s.jobs.ListByStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return err
	}

	var anchor *models.ImportJob
	for _, job := range running {
		if job.CurrentStage == models.StageExporting {
			anchor = job
			continue
		}
		s.logger.WithFields(log.Fields{"job_id": job.ID, "stage": job.CurrentStage}).Warn("Failing job interrupted mid-import")
		if err := s.jobs.Fail(ctx, job.ID, "import interrupted by restart"); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to mark interrupted job failed")
		}
	}
	if anchor == nil {
		return nil
	}

	s.logger.WithField("job_id", anchor.ID).Info("Resuming interrupted export")
	go func() {
		if err := s.exporter.Run(ctx, anchor); err != nil {
			s.logger.WithError(err).Error("Resumed export run failed")
		}
	}()
	return nil
}
