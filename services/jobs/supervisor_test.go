package jobs

import (
	"context"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/testhelper"
)

func discardLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

type resumeRunner struct {
	anchor *models.ImportJob
	done   chan struct{}
}

func newResumeRunner() *resumeRunner {
	return &resumeRunner{done: make(chan struct{})}
}

func (r *resumeRunner) Run(_ context.Context, anchor *models.ImportJob) error {
	r.anchor = anchor
	close(r.done)
	return nil
}

func TestResumeInterrupted(t *testing.T) {
	conn := testhelper.SetupDB(t)
	ctx := context.Background()

	jobsRepo := db.NewPostgresJobsRepository(conn, "public")
	entitiesRepo := db.NewPostgresEntitiesRepository(conn, "public")

	midImport, err := jobsRepo.Create(ctx, models.JobStatusRunning, models.StageMessages, nil)
	require.NoError(t, err)
	olderExport, err := jobsRepo.Create(ctx, models.JobStatusRunning, models.StageExporting, nil)
	require.NoError(t, err)
	newerExport, err := jobsRepo.Create(ctx, models.JobStatusRunning, models.StageExporting, nil)
	require.NoError(t, err)
	finished, err := jobsRepo.Create(ctx, models.JobStatusSuccess, models.StageDone, nil)
	require.NoError(t, err)

	runner := newResumeRunner()
	supervisor := NewSupervisor(jobsRepo, entitiesRepo, runner, discardLogger())
	require.NoError(t, supervisor.ResumeInterrupted(ctx))

	select {
	case <-runner.done:
	case <-time.After(5 * time.Second):
		t.Fatal("export run was not resumed")
	}

	t.Run("Jobs interrupted mid-import are failed", func(t *testing.T) {
		stored, err := jobsRepo.GetByID(ctx, midImport.ID)
		require.NoError(t, err)
		job, ok := stored.Get()
		require.True(t, ok)
		assert.Equal(t, models.JobStatusFailed, job.Status)
		assert.Contains(t, job.ErrorMessage, "interrupted by restart")
	})

	t.Run("The export run anchors at the newest exporting job", func(t *testing.T) {
		require.NotNil(t, runner.anchor)
		assert.Equal(t, newerExport.ID, runner.anchor.ID)
		assert.NotEqual(t, olderExport.ID, runner.anchor.ID)
	})

	t.Run("Finished jobs are untouched", func(t *testing.T) {
		stored, err := jobsRepo.GetByID(ctx, finished.ID)
		require.NoError(t, err)
		job, ok := stored.Get()
		require.True(t, ok)
		assert.Equal(t, models.JobStatusSuccess, job.Status)
	})

	t.Run("Without exporting jobs nothing resumes", func(t *testing.T) {
		require.NoError(t, jobsRepo.Fail(ctx, olderExport.ID, "cleanup"))
		require.NoError(t, jobsRepo.Fail(ctx, newerExport.ID, "cleanup"))
		_, err := jobsRepo.Create(ctx, models.JobStatusRunning, models.StageUsers, nil)
		require.NoError(t, err)

		idle := newResumeRunner()
		supervisor := NewSupervisor(jobsRepo, entitiesRepo, idle, discardLogger())
		require.NoError(t, supervisor.ResumeInterrupted(ctx))

		select {
		case <-idle.done:
			t.Fatal("no export run should start without exporting jobs")
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestDescribeJob(t *testing.T) {
	conn := testhelper.SetupDB(t)
	ctx := context.Background()

	jobsRepo := db.NewPostgresJobsRepository(conn, "public")
	entitiesRepo := db.NewPostgresEntitiesRepository(conn, "public")
	supervisor := NewSupervisor(jobsRepo, entitiesRepo, nil, discardLogger())

	t.Run("Derives file totals from the uploaded archive", func(t *testing.T) {
		zipPath := writeTestZip(t, map[string]string{
			"users.json":              "[]",
			"channels.json":           "[]",
			"general/2025-01-01.json": "[]",
		})
		job, err := jobsRepo.Create(ctx, models.JobStatusRunning, models.StageUsers, models.JSONMap{
			models.MetaZipPath: zipPath,
		})
		require.NoError(t, err)

		described := supervisor.DescribeJob(ctx, job)
		assert.Equal(t, int64(3), described.Meta.GetInt(models.MetaJSONFilesTotal))
		// The original row is left alone.
		assert.NotContains(t, job.Meta, models.MetaJSONFilesTotal)
	})

	t.Run("Derives entity totals and progress from the database", func(t *testing.T) {
		job, err := jobsRepo.Create(ctx, models.JobStatusRunning, models.StageMessages, nil)
		require.NoError(t, err)

		insert := func(entityType models.EntityType, slackID string, status models.MappingStatus) {
			row, err := entitiesRepo.Insert(ctx, &models.Entity{
				EntityType: entityType,
				SlackID:    slackID,
				RawData:    models.JSONMap{},
				Status:     models.MappingStatusPending,
				JobID:      &job.ID,
			})
			require.NoError(t, err)
			stored, ok := row.Get()
			require.True(t, ok)
			if status != models.MappingStatusPending {
				require.NoError(t, entitiesRepo.UpdateStatus(ctx, stored.ID, status, nil, nil))
			}
		}
		insert(models.EntityTypeMessage, "1704067200.000100", models.MappingStatusSuccess)
		insert(models.EntityTypeMessage, "1704067260.000200", models.MappingStatusPending)
		insert(models.EntityTypeReaction, "1704067260.000200_wave_U001", models.MappingStatusPending)

		described := supervisor.DescribeJob(ctx, job)

		totals, ok := described.Meta[models.MetaTotals].(models.JSONMap)
		require.True(t, ok)
		assert.Equal(t, int64(2), totals.GetInt("messages"))
		assert.Equal(t, int64(1), totals.GetInt("reactions"))
		assert.Equal(t, int64(0), totals.GetInt("attachments"))

		// During import the stored counter and the live count race; the
		// larger one wins.
		assert.EqualValues(t, 1, described.Meta.GetInt(models.MetaMessagesProcessed))
		assert.EqualValues(t, 0, described.Meta.GetInt(models.MetaReactionsProcessed))

		require.NoError(t, jobsRepo.SetMetaKey(ctx, job.ID, models.MetaMessagesProcessed, 2))
		refetched, err := jobsRepo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		current, ok := refetched.Get()
		require.True(t, ok)
		described = supervisor.DescribeJob(ctx, current)
		assert.EqualValues(t, 2, described.Meta.GetInt(models.MetaMessagesProcessed))
	})

	t.Run("Exporting jobs report live non-pending counts", func(t *testing.T) {
		job, err := jobsRepo.Create(ctx, models.JobStatusRunning, models.StageExporting, models.JSONMap{
			models.MetaMessagesProcessed: 99,
		})
		require.NoError(t, err)

		row, err := entitiesRepo.Insert(ctx, &models.Entity{
			EntityType: models.EntityTypeMessage,
			SlackID:    "1704070800.000300",
			RawData:    models.JSONMap{},
			Status:     models.MappingStatusPending,
			JobID:      &job.ID,
		})
		require.NoError(t, err)
		stored, ok := row.Get()
		require.True(t, ok)
		require.NoError(t, entitiesRepo.UpdateStatus(ctx, stored.ID, models.MappingStatusSuccess, nil, nil))

		described := supervisor.DescribeJob(ctx, job)
		assert.EqualValues(t, 1, described.Meta.GetInt(models.MetaMessagesProcessed))
	})

	t.Run("ListJobs returns newest first with derived meta", func(t *testing.T) {
		listed, err := supervisor.ListJobs(ctx, 100)
		require.NoError(t, err)
		require.NotEmpty(t, listed)
		for i := 1; i < len(listed); i++ {
			assert.Greater(t, listed[i-1].ID, listed[i].ID)
		}
	})
}
