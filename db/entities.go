package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/mo"

	"github.com/insoln/slack-mm2/models"
)

type PostgresEntitiesRepository struct {
	db     *sqlx.DB
	schema string
}

// DBEntity represents the database schema for the entities table
type DBEntity struct {
	ID           int64          `db:"id"`
	EntityType   string         `db:"entity_type"`
	SlackID      string         `db:"slack_id"`
	MattermostID *string        `db:"mattermost_id"`
	RawData      models.JSONMap `db:"raw_data"`
	Status       string         `db:"status"`
	ErrorMessage *string        `db:"error_message"`
	JobID        *int64         `db:"job_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

var entitiesColumns = []string{
	"id",
	"entity_type",
	"slack_id",
	"mattermost_id",
	"raw_data",
	"status",
	"error_message",
	"job_id",
	"created_at",
	"updated_at",
}

func NewPostgresEntitiesRepository(db *sqlx.DB, schema string) *PostgresEntitiesRepository {
	return &PostgresEntitiesRepository{db: db, schema: schema}
}

func dbEntityToModel(e *DBEntity) *models.Entity {
	entity := &models.Entity{
		ID:         e.ID,
		EntityType: models.EntityType(e.EntityType),
		SlackID:    e.SlackID,
		RawData:    e.RawData,
		Status:     models.MappingStatus(e.Status),
		JobID:      e.JobID,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.MattermostID != nil {
		entity.MattermostID = *e.MattermostID
	}
	if e.ErrorMessage != nil {
		entity.ErrorMessage = *e.ErrorMessage
	}
	return entity
}

func dbEntitiesToModels(rows []DBEntity) []*models.Entity {
	out := make([]*models.Entity, 0, len(rows))
	for i := range rows {
		out = append(out, dbEntityToModel(&rows[i]))
	}
	return out
}

// prefixColumns qualifies column names with a table alias for join queries.
func prefixColumns(alias string, columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, alias+"."+c)
	}
	return strings.Join(out, ", ")
}

// Insert attempts to insert a new entity row. It returns None when a
// conflicting row already exists (either unique partial index); the caller
// re-selects in that case.
func (r *PostgresEntitiesRepository) Insert(ctx context.Context, entity *models.Entity) (mo.Option[*models.Entity], error) {
	query := fmt.Sprintf(`
		INSERT INTO %s.entities (entity_type, slack_id, raw_data, status, job_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING %s`, r.schema, strings.Join(entitiesColumns, ", "))

	var row DBEntity
	err := r.db.QueryRowxContext(ctx, query,
		string(entity.EntityType), entity.SlackID, entity.RawData,
		string(entity.Status), entity.JobID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[*models.Entity](), nil
	}
	if err != nil {
		return mo.None[*models.Entity](), fmt.Errorf("failed to insert entity: %w", err)
	}
	return mo.Some(dbEntityToModel(&row)), nil
}

// GetScoped fetches the row under the exact upsert scope: job-scoped rows
// match their job_id, everything else matches job_id IS NULL.
func (r *PostgresEntitiesRepository) GetScoped(ctx context.Context, entityType models.EntityType, slackID string, jobID *int64) (mo.Option[*models.Entity], error) {
	scope := "job_id IS NULL"
	args := []any{string(entityType), slackID}
	if jobID != nil {
		scope = "job_id = $3"
		args = append(args, *jobID)
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s.entities
		WHERE entity_type = $1 AND slack_id = $2 AND %s`,
		strings.Join(entitiesColumns, ", "), r.schema, scope)

	var row DBEntity
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[*models.Entity](), nil
	}
	if err != nil {
		return mo.None[*models.Entity](), fmt.Errorf("failed to get entity: %w", err)
	}
	return mo.Some(dbEntityToModel(&row)), nil
}

// Resolve fetches the row for export-time lookups. Job-scoped types match
// the given job or legacy unscoped rows, preferring the job's own row;
// global types are unconstrained by job.
func (r *PostgresEntitiesRepository) Resolve(ctx context.Context, entityType models.EntityType, slackID string, jobID *int64) (mo.Option[*models.Entity], error) {
	scope := "TRUE"
	args := []any{string(entityType), slackID}
	if entityType.JobScoped() {
		if jobID != nil {
			scope = "(job_id = $3 OR job_id IS NULL)"
			args = append(args, *jobID)
		} else {
			scope = "job_id IS NULL"
		}
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s.entities
		WHERE entity_type = $1 AND slack_id = $2 AND %s
		ORDER BY job_id NULLS LAST
		LIMIT 1`, strings.Join(entitiesColumns, ", "), r.schema, scope)

	var row DBEntity
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[*models.Entity](), nil
	}
	if err != nil {
		return mo.None[*models.Entity](), fmt.Errorf("failed to resolve entity: %w", err)
	}
	return mo.Some(dbEntityToModel(&row)), nil
}

// FindGlobalByRawKey looks a global entity up by one of its raw_data keys.
// Used as the fallback for users (key "username") and channels (key "name")
// whose slack_id changed between runs.
func (r *PostgresEntitiesRepository) FindGlobalByRawKey(ctx context.Context, entityType models.EntityType, key, value string) (mo.Option[*models.Entity], error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s.entities
		WHERE entity_type = $1 AND raw_data ->> $2 = $3 AND job_id IS NULL
		LIMIT 1`, strings.Join(entitiesColumns, ", "), r.schema)

	var row DBEntity
	err := r.db.GetContext(ctx, &row, query, string(entityType), key, value)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[*models.Entity](), nil
	}
	if err != nil {
		return mo.None[*models.Entity](), fmt.Errorf("failed to find entity by raw key: %w", err)
	}
	return mo.Some(dbEntityToModel(&row)), nil
}

func (r *PostgresEntitiesRepository) UpdateRawData(ctx context.Context, id int64, raw models.JSONMap) error {
	query := fmt.Sprintf(`
		UPDATE %s.entities SET raw_data = $2, updated_at = now() WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id, raw); err != nil {
		return fmt.Errorf("failed to update entity raw_data: %w", err)
	}
	return nil
}

// UpdateStatus writes the outcome of an export attempt. mattermost_id is
// only overwritten when a new value is supplied.
func (r *PostgresEntitiesRepository) UpdateStatus(ctx context.Context, id int64, status models.MappingStatus, errorMessage *string, mattermostID *string) error {
	query := fmt.Sprintf(`
		UPDATE %s.entities
		SET status = $2,
		    error_message = $3,
		    mattermost_id = COALESCE($4, mattermost_id),
		    updated_at = now()
		WHERE id = $1`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, id, string(status), errorMessage, mattermostID); err != nil {
		return fmt.Errorf("failed to update entity status: %w", err)
	}
	return nil
}

// ListExportable returns rows an export pass should visit, FIFO by
// (created_at, id). jobID narrows job-scoped types; pass nil for the global
// union.
func (r *PostgresEntitiesRepository) ListExportable(ctx context.Context, entityType models.EntityType, jobID *int64) ([]*models.Entity, error) {
	scope := ""
	args := []any{string(entityType), statusStrings(models.ExportableStatuses)}
	if jobID != nil {
		scope = "AND job_id = $3"
		args = append(args, *jobID)
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s.entities
		WHERE entity_type = $1 AND status = ANY($2) %s
		ORDER BY created_at, id`,
		strings.Join(entitiesColumns, ", "), r.schema, scope)

	var rows []DBEntity
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list exportable entities: %w", err)
	}
	return dbEntitiesToModels(rows), nil
}

// CountPending counts pending rows of a type. A nil jobIDs slice means no
// job filter (global types); otherwise rows of the given jobs are counted.
func (r *PostgresEntitiesRepository) CountPending(ctx context.Context, entityType models.EntityType, jobIDs []int64) (int64, error) {
	scope := ""
	args := []any{string(entityType)}
	if jobIDs != nil {
		scope = "AND job_id = ANY($2)"
		args = append(args, pq.Array(jobIDs))
	}
	query := fmt.Sprintf(`
		SELECT count(*) FROM %s.entities
		WHERE entity_type = $1 AND status = 'pending' %s`, r.schema, scope)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count pending entities: %w", err)
	}
	return count, nil
}

func (r *PostgresEntitiesRepository) CountByTypeForJob(ctx context.Context, jobID int64, nonPendingOnly bool) (map[models.EntityType]int64, error) {
	filter := ""
	if nonPendingOnly {
		filter = "AND status <> 'pending'"
	}
	query := fmt.Sprintf(`
		SELECT entity_type, count(*) FROM %s.entities
		WHERE job_id = $1 %s
		GROUP BY entity_type`, r.schema, filter)

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities for job: %w", err)
	}
	defer rows.Close()

	out := map[models.EntityType]int64{}
	for rows.Next() {
		var entityType string
		var count int64
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan entity count: %w", err)
		}
		out[models.EntityType(entityType)] = count
	}
	return out, rows.Err()
}

// MappingStats is the grouped (type, status) count matrix for the stats
// endpoint.
type MappingStats struct {
	Total    int64
	ByType   map[models.EntityType]int64
	ByStatus map[models.MappingStatus]int64
	Matrix   map[models.EntityType]map[models.MappingStatus]int64
}

func (r *PostgresEntitiesRepository) GetMappingStats(ctx context.Context) (*MappingStats, error) {
	query := fmt.Sprintf(`
		SELECT entity_type, status, count(*) FROM %s.entities
		GROUP BY entity_type, status`, r.schema)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping stats: %w", err)
	}
	defer rows.Close()

	stats := &MappingStats{
		ByType:   map[models.EntityType]int64{},
		ByStatus: map[models.MappingStatus]int64{},
		Matrix:   map[models.EntityType]map[models.MappingStatus]int64{},
	}
	for rows.Next() {
		var entityType, status string
		var count int64
		if err := rows.Scan(&entityType, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan mapping stats: %w", err)
		}
		et := models.EntityType(entityType)
		st := models.MappingStatus(status)
		stats.Total += count
		stats.ByType[et] += count
		stats.ByStatus[st] += count
		if stats.Matrix[et] == nil {
			stats.Matrix[et] = map[models.MappingStatus]int64{}
		}
		stats.Matrix[et][st] = count
	}
	return stats, rows.Err()
}

func statusStrings(statuses []models.MappingStatus) pq.StringArray {
	out := make(pq.StringArray, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
