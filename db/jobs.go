package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	"github.com/insoln/slack-mm2/models"
)

type PostgresJobsRepository struct {
	db     *sqlx.DB
	schema string
}

// DBImportJob represents the database schema for the import_jobs table
type DBImportJob struct {
	ID           int64          `db:"id"`
	Status       string         `db:"status"`
	CurrentStage *string        `db:"current_stage"`
	Meta         models.JSONMap `db:"meta"`
	ErrorMessage *string        `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

var jobsColumns = []string{
	"id",
	"status",
	"current_stage",
	"meta",
	"error_message",
	"created_at",
	"updated_at",
}

func NewPostgresJobsRepository(db *sqlx.DB, schema string) *PostgresJobsRepository {
	return &PostgresJobsRepository{db: db, schema: schema}
}

func dbJobToModel(j *DBImportJob) *models.ImportJob {
	job := &models.ImportJob{
		ID:        j.ID,
		Status:    models.JobStatus(j.Status),
		Meta:      j.Meta,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.CurrentStage != nil {
		job.CurrentStage = models.JobStage(*j.CurrentStage)
	}
	if j.ErrorMessage != nil {
		job.ErrorMessage = *j.ErrorMessage
	}
	return job
}

func (r *PostgresJobsRepository) Create(ctx context.Context, status models.JobStatus, stage models.JobStage, meta models.JSONMap) (*models.ImportJob, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s.import_jobs (status, current_stage, meta)
		VALUES ($1, $2, $3)
		RETURNING %s`, r.schema, strings.Join(jobsColumns, ", "))

	var row DBImportJob
	err := r.db.QueryRowxContext(ctx, query, string(status), string(stage), meta).StructScan(&row)
	if err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}
	return dbJobToModel(&row), nil
}

func (r *PostgresJobsRepository) GetByID(ctx context.Context, id int64) (mo.Option[*models.ImportJob], error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s.import_jobs WHERE id = $1`,
		strings.Join(jobsColumns, ", "), r.schema)

	var row DBImportJob
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[*models.ImportJob](), nil
	}
	if err != nil {
		return mo.None[*models.ImportJob](), fmt.Errorf("failed to get import job: %w", err)
	}
	return mo.Some(dbJobToModel(&row)), nil
}

// List returns the most recent jobs, newest first.
func (r *PostgresJobsRepository) List(ctx context.Context, limit int) ([]*models.ImportJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s.import_jobs ORDER BY id DESC LIMIT $1`,
		strings.Join(jobsColumns, ", "), r.schema)

	var rows []DBImportJob
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	out := make([]*models.ImportJob, 0, len(rows))
	for i := range rows {
		out = append(out, dbJobToModel(&rows[i]))
	}
	return out, nil
}

func (r *PostgresJobsRepository) Latest(ctx context.Context) (mo.Option[*models.ImportJob], error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s.import_jobs ORDER BY id DESC LIMIT 1`,
		strings.Join(jobsColumns, ", "), r.schema)

	var row DBImportJob
	err := r.db.GetContext(ctx, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[*models.ImportJob](), nil
	}
	if err != nil {
		return mo.None[*models.ImportJob](), fmt.Errorf("failed to get latest import job: %w", err)
	}
	return mo.Some(dbJobToModel(&row)), nil
}

func (r *PostgresJobsRepository) SetStage(ctx context.Context, id int64, stage models.JobStage) error {
	query := fmt.Sprintf(`
		UPDATE %s.import_jobs SET current_stage = $2, updated_at = now() WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id, string(stage)); err != nil {
		return fmt.Errorf("failed to set job stage: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) SetStatus(ctx context.Context, id int64, status models.JobStatus) error {
	query := fmt.Sprintf(`
		UPDATE %s.import_jobs SET status = $2, updated_at = now() WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id, string(status)); err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) Fail(ctx context.Context, id int64, message string) error {
	query := fmt.Sprintf(`
		UPDATE %s.import_jobs
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id, message); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) Complete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`
		UPDATE %s.import_jobs
		SET status = 'success', current_stage = 'done', updated_at = now()
		WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// SetMetaKey writes one key into meta. The merge happens inside a single
// statement so concurrent counter updates on other keys are not lost.
func (r *PostgresJobsRepository) SetMetaKey(ctx context.Context, id int64, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode meta value: %w", err)
	}
	query := fmt.Sprintf(`
		UPDATE %s.import_jobs
		SET meta = jsonb_set(COALESCE(meta, '{}'::jsonb), ARRAY[$2], $3::jsonb, true),
		    updated_at = now()
		WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id, key, string(encoded)); err != nil {
		return fmt.Errorf("failed to set job meta key: %w", err)
	}
	return nil
}

// IncrementMetaCounter atomically adds delta to a numeric meta key. The
// read-compute-write happens inside one UPDATE; N concurrent increments
// always sum to exactly N.
func (r *PostgresJobsRepository) IncrementMetaCounter(ctx context.Context, id int64, key string, delta int64) error {
	query := fmt.Sprintf(`
		UPDATE %s.import_jobs
		SET meta = COALESCE(meta, '{}'::jsonb) ||
		           jsonb_build_object($2::text, COALESCE((meta ->> $2)::bigint, 0) + $3),
		    updated_at = now()
		WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id, key, delta); err != nil {
		return fmt.Errorf("failed to increment job meta counter: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) StripMetaKey(ctx context.Context, id int64, key string) error {
	query := fmt.Sprintf(`
		UPDATE %s.import_jobs
		SET meta = COALESCE(meta, '{}'::jsonb) - $2::text, updated_at = now()
		WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id, key); err != nil {
		return fmt.Errorf("failed to strip job meta key: %w", err)
	}
	return nil
}

// ListExporting returns running jobs in the exporting stage, FIFO by
// (created_at, id). When anchor is set, only jobs at or before it are
// returned.
func (r *PostgresJobsRepository) ListExporting(ctx context.Context, anchor *models.ImportJob) ([]*models.ImportJob, error) {
	filter := ""
	args := []any{}
	if anchor != nil {
		filter = "AND (created_at, id) <= ($1::timestamptz, $2::bigint)"
		args = append(args, anchor.CreatedAt, anchor.ID)
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s.import_jobs
		WHERE status = 'running' AND current_stage = 'exporting' %s
		ORDER BY created_at, id`,
		strings.Join(jobsColumns, ", "), r.schema, filter)

	var rows []DBImportJob
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list exporting jobs: %w", err)
	}
	out := make([]*models.ImportJob, 0, len(rows))
	for i := range rows {
		out = append(out, dbJobToModel(&rows[i]))
	}
	return out, nil
}

// CountRunningBeforeExport counts running jobs still in an import stage,
// i.e. work that will reach the export queue later.
func (r *PostgresJobsRepository) CountRunningBeforeExport(ctx context.Context, anchor *models.ImportJob) (int64, error) {
	filter := ""
	args := []any{}
	if anchor != nil {
		filter = "AND (created_at, id) <= ($1::timestamptz, $2::bigint)"
		args = append(args, anchor.CreatedAt, anchor.ID)
	}
	query := fmt.Sprintf(`
		SELECT count(*) FROM %s.import_jobs
		WHERE status = 'running' AND current_stage <> 'exporting' %s`, r.schema, filter)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count running jobs: %w", err)
	}
	return count, nil
}

func (r *PostgresJobsRepository) ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.ImportJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s.import_jobs WHERE status = $1 ORDER BY created_at, id`,
		strings.Join(jobsColumns, ", "), r.schema)

	var rows []DBImportJob
	if err := r.db.SelectContext(ctx, &rows, query, string(status)); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	out := make([]*models.ImportJob, 0, len(rows))
	for i := range rows {
		out = append(out, dbJobToModel(&rows[i]))
	}
	return out, nil
}
