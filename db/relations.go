package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/mo"

	"github.com/insoln/slack-mm2/models"
)

type PostgresRelationsRepository struct {
	db     *sqlx.DB
	schema string
}

// DBEntityRelation represents the database schema for the entity_relations table
type DBEntityRelation struct {
	ID           int64          `db:"id"`
	FromEntityID int64          `db:"from_entity_id"`
	ToEntityID   int64          `db:"to_entity_id"`
	RelationType string         `db:"relation_type"`
	JobID        *int64         `db:"job_id"`
	RawData      models.JSONMap `db:"raw_data"`
	CreatedAt    time.Time      `db:"created_at"`
}

func NewPostgresRelationsRepository(db *sqlx.DB, schema string) *PostgresRelationsRepository {
	return &PostgresRelationsRepository{db: db, schema: schema}
}

// InsertIfAbsent creates the edge unless it already exists. Returns whether
// a row was inserted.
func (r *PostgresRelationsRepository) InsertIfAbsent(ctx context.Context, fromID, toID int64, relationType models.RelationType, jobID *int64, raw models.JSONMap) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s.entity_relations (from_entity_id, to_entity_id, relation_type, job_id, raw_data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (from_entity_id, to_entity_id, relation_type) DO NOTHING`, r.schema)

	res, err := r.db.ExecContext(ctx, query, fromID, toID, string(relationType), jobID, raw)
	if err != nil {
		return false, fmt.Errorf("failed to insert relation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetTargetEntity follows an edge from the given entity and returns the
// target when it matches the wanted type, e.g. posted_in: message → channel.
func (r *PostgresRelationsRepository) GetTargetEntity(ctx context.Context, fromID int64, relationType models.RelationType, entityType models.EntityType) (mo.Option[*models.Entity], error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.entity_relations r
		JOIN %s.entities e ON e.id = r.to_entity_id
		WHERE r.from_entity_id = $1 AND r.relation_type = $2 AND e.entity_type = $3
		LIMIT 1`, prefixColumns("e", entitiesColumns), r.schema, r.schema)

	var row DBEntity
	err := r.db.GetContext(ctx, &row, query, fromID, string(relationType), string(entityType))
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[*models.Entity](), nil
	}
	if err != nil {
		return mo.None[*models.Entity](), fmt.Errorf("failed to get relation target: %w", err)
	}
	return mo.Some(dbEntityToModel(&row)), nil
}

// GetSourceEntity follows an edge backwards and returns the source entity,
// e.g. posted_by: user → message resolves the user from the message side.
func (r *PostgresRelationsRepository) GetSourceEntity(ctx context.Context, toID int64, relationType models.RelationType, entityType models.EntityType) (mo.Option[*models.Entity], error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.entity_relations r
		JOIN %s.entities e ON e.id = r.from_entity_id
		WHERE r.to_entity_id = $1 AND r.relation_type = $2 AND e.entity_type = $3
		LIMIT 1`, prefixColumns("e", entitiesColumns), r.schema, r.schema)

	var row DBEntity
	err := r.db.GetContext(ctx, &row, query, toID, string(relationType), string(entityType))
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[*models.Entity](), nil
	}
	if err != nil {
		return mo.None[*models.Entity](), fmt.Errorf("failed to get relation source: %w", err)
	}
	return mo.Some(dbEntityToModel(&row)), nil
}

// ListSourceEntities returns all sources pointing at the given entity, e.g.
// attached_to: every attachment of a message.
func (r *PostgresRelationsRepository) ListSourceEntities(ctx context.Context, toID int64, relationType models.RelationType) ([]*models.Entity, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.entity_relations r
		JOIN %s.entities e ON e.id = r.from_entity_id
		WHERE r.to_entity_id = $1 AND r.relation_type = $2
		ORDER BY e.id`, prefixColumns("e", entitiesColumns), r.schema, r.schema)

	var rows []DBEntity
	if err := r.db.SelectContext(ctx, &rows, query, toID, string(relationType)); err != nil {
		return nil, fmt.Errorf("failed to list relation sources: %w", err)
	}
	return dbEntitiesToModels(rows), nil
}

// TargetIDsBySource maps from_entity_id → to_entity_id for the given edge
// type over a set of source ids. Used by the message scheduler to group
// messages per channel in one query.
func (r *PostgresRelationsRepository) TargetIDsBySource(ctx context.Context, fromIDs []int64, relationType models.RelationType) (map[int64]int64, error) {
	if len(fromIDs) == 0 {
		return map[int64]int64{}, nil
	}
	query := fmt.Sprintf(`
		SELECT from_entity_id, to_entity_id FROM %s.entity_relations
		WHERE relation_type = $1 AND from_entity_id = ANY($2)`, r.schema)

	rows, err := r.db.QueryContext(ctx, query, string(relationType), pq.Array(fromIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to map relation targets: %w", err)
	}
	defer rows.Close()

	out := map[int64]int64{}
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan relation pair: %w", err)
		}
		out[from] = to
	}
	return out, rows.Err()
}

// SourceIDSet returns the set of from_entity_ids having the given edge type
// within the candidate set. Used to flag thread replies.
func (r *PostgresRelationsRepository) SourceIDSet(ctx context.Context, fromIDs []int64, relationType models.RelationType) (map[int64]struct{}, error) {
	if len(fromIDs) == 0 {
		return map[int64]struct{}{}, nil
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT from_entity_id FROM %s.entity_relations
		WHERE relation_type = $1 AND from_entity_id = ANY($2)`, r.schema)

	rows, err := r.db.QueryContext(ctx, query, string(relationType), pq.Array(fromIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query relation sources: %w", err)
	}
	defer rows.Close()

	out := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan relation source id: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
