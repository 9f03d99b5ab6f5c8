package export

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/insoln/slack-mm2/config"
	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
)

// Orchestrator drains jobs that reached the exporting stage through a
// type barrier: every user first, then every custom emoji, and so on down
// the dependency order, so a message never races the channel it lands in.
// A single mutex serializes runs; concurrent imports finishing mid-run are
// picked up by the next loop iteration instead of starting a second run.
type Orchestrator struct {
	exp    *Exporters
	jobs   *db.PostgresJobsRepository
	cfg    *config.AppConfig
	logger log.FieldLogger

	mu sync.Mutex
}

func NewOrchestrator(exp *Exporters, jobs *db.PostgresJobsRepository, cfg *config.AppConfig, logger log.FieldLogger) *Orchestrator {
	return &Orchestrator{
		exp:    exp,
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
	}
}

// Run exports every job in the exporting stage, waiting for jobs still in
// earlier stages to arrive there. With a non-nil anchor only the anchor and
// earlier jobs are considered, which keeps a run from hijacking uploads
// that started after it.
func (o *Orchestrator) Run(ctx context.Context, anchor *models.ImportJob) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	me, err := o.exp.mm.Me(ctx)
	if err != nil {
		return errors.Wrap(err, "mattermost admin check failed")
	}
	run := newRun(o.exp, me.Id)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := o.jobs.ListExporting(ctx, anchor)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			waiting, err := o.jobs.CountRunningBeforeExport(ctx, anchor)
			if err != nil {
				return err
			}
			if waiting == 0 {
				return nil
			}
			o.logger.Debugf("%d job(s) still importing, polling again in %s", waiting, o.cfg.Export.QueuePollInterval)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.Export.QueuePollInterval):
			}
			continue
		}

		if err := o.exportBatch(ctx, run, batch); err != nil {
			return err
		}
		for _, job := range batch {
			if err := o.jobs.Complete(ctx, job.ID); err != nil {
				return err
			}
			o.logger.WithField("job_id", job.ID).Info("Job export complete")
		}
	}
}

func (o *Orchestrator) exportBatch(ctx context.Context, run *Run, batch []*models.ImportJob) error {
	jobIDs := make([]int64, len(batch))
	for i, job := range batch {
		jobIDs[i] = job.ID
	}
	o.logger.WithField("jobs", jobIDs).Info("Starting export batch")

	for _, entityType := range models.ExportOrder {
		if err := o.exportTypeBarrier(ctx, run, entityType, batch, jobIDs); err != nil {
			return err
		}
	}
	return nil
}

// exportTypeBarrier pushes every exportable row of one type and repeats
// until none is pending, so rows upserted while the pass ran (another job
// entering the stage) are drained before the next type starts.
func (o *Orchestrator) exportTypeBarrier(ctx context.Context, run *Run, entityType models.EntityType, batch []*models.ImportJob, jobIDs []int64) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if entityType.JobScoped() {
			for _, job := range batch {
				if entityType == models.EntityTypeMessage {
					if err := o.exp.exportMessagesForJob(ctx, run, job.ID); err != nil {
						return err
					}
					continue
				}
				jobID := job.ID
				rows, err := o.exp.entities.Entities().ListExportable(ctx, entityType, &jobID)
				if err != nil {
					return err
				}
				if entityType == models.EntityTypeReaction {
					sortByTS(rows)
				}
				if err := o.exportPool(ctx, run, entityType, rows); err != nil {
					return err
				}
			}
		} else {
			rows, err := o.exp.entities.Entities().ListExportable(ctx, entityType, nil)
			if err != nil {
				return err
			}
			if err := o.exportPool(ctx, run, entityType, rows); err != nil {
				return err
			}
		}

		// Global types gate on every pending row in the database, scoped
		// types only on the batch's jobs.
		var scope []int64
		if entityType.JobScoped() {
			scope = jobIDs
		}
		pending, err := o.exp.entities.Entities().CountPending(ctx, entityType, scope)
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
		o.logger.Debugf("%d %s row(s) still pending after pass, repeating", pending, entityType)
	}
}

// exportPool fans rows out to a bounded worker pool. Export outcomes land
// on the rows themselves; a worker error here means the bookkeeping write
// failed, which is logged and never aborts the batch.
func (o *Orchestrator) exportPool(ctx context.Context, run *Run, entityType models.EntityType, rows []*models.Entity) error {
	if len(rows) == 0 {
		return nil
	}

	workers := o.cfg.Export.Workers
	if entityType == models.EntityTypeAttachment && o.cfg.Export.AttachmentWorkers > 0 {
		workers = o.cfg.Export.AttachmentWorkers
	}
	if workers < 1 {
		workers = 1
	}
	o.logger.Infof("Exporting %d %s row(s) with %d workers", len(rows), entityType, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, row := range rows {
		if gctx.Err() != nil {
			break
		}
		row := row
		g.Go(func() error {
			if err := o.exp.ExportEntity(gctx, run, row); err != nil {
				o.exp.logger.WithError(err).Errorf("Failed to record %s export outcome for %s", entityType, row.SlackID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
