// Package postgres implements the glucose repository on PostgreSQL
// using pgx connection pools.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glucolog/glucolog/internal/glucose"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL-backed glucose.Repository implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an existing connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ glucose.Repository = (*Repository)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS glucose_levels (
	id            UUID PRIMARY KEY,
	user_id       UUID NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL,
	glucose_value DOUBLE PRECISION NOT NULL,
	device_type   TEXT NOT NULL,
	device_id     TEXT NOT NULL,
	record_type   TEXT,
	notes         TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_glucose_levels_user_id ON glucose_levels (user_id);
CREATE INDEX IF NOT EXISTS idx_glucose_levels_timestamp ON glucose_levels (timestamp);
`

// EnsureSchema creates the glucose_levels table and indexes if missing.
// Called once at startup.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensuring glucose_levels schema: %w", err)
	}
	return nil
}

const recordColumns = `id, user_id, timestamp, glucose_value, device_type, device_id, record_type, notes, created_at, updated_at`

// sortColumns whitelists ORDER BY targets. The service normalizes sort
// parameters already; this guards the SQL layer independently.
var sortColumns = map[string]string{
	"id":            "id",
	"timestamp":     "timestamp",
	"glucose_value": "glucose_value",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
}

// GetByID returns one record, or glucose.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*glucose.Record, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM glucose_levels WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, glucose.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting record %s: %w", id, err)
	}
	return rec, nil
}

// ListByUser returns one page of a user's records and the total count of
// records matching the filter.
func (r *Repository) ListByUser(ctx context.Context, params glucose.ListParams) ([]glucose.Record, int, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{params.UserID}
	)
	if params.Start != nil {
		args = append(args, *params.Start)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if params.End != nil {
		args = append(args, *params.End)
		where = append(where, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	filter := strings.Join(where, " AND ")

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM glucose_levels WHERE `+filter, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting records: %w", err)
	}

	orderBy, ok := sortColumns[params.SortBy]
	if !ok {
		orderBy = "timestamp"
	}
	direction := "DESC"
	if strings.EqualFold(params.SortOrder, "asc") {
		direction = "ASC"
	}

	offset := (params.Page - 1) * params.PageSize
	args = append(args, params.PageSize, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM glucose_levels WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		recordColumns, filter, orderBy, direction, len(args)-1, len(args),
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("selecting records: %w", err)
	}
	defer rows.Close()

	var records []glucose.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating records: %w", err)
	}

	return records, total, nil
}

// Create inserts a single record.
func (r *Repository) Create(ctx context.Context, rec *glucose.Record) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO glucose_levels (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.UserID, rec.Timestamp, rec.GlucoseValue,
		rec.DeviceType, rec.DeviceID, rec.RecordType, rec.Notes,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", rec.ID, err)
	}
	return nil
}

// CreateMany inserts a batch of records atomically using COPY inside a
// transaction. Any failure rolls back the whole batch.
func (r *Repository) CreateMany(ctx context.Context, recs []glucose.Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning batch insert: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"glucose_levels"},
		[]string{"id", "user_id", "timestamp", "glucose_value", "device_type", "device_id", "record_type", "notes", "created_at", "updated_at"},
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			rec := &recs[i]
			return []any{
				rec.ID, rec.UserID, rec.Timestamp, rec.GlucoseValue,
				rec.DeviceType, rec.DeviceID, rec.RecordType, rec.Notes,
				rec.CreatedAt, rec.UpdatedAt,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copying %d records: %w", len(recs), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch insert: %w", err)
	}
	return nil
}

// Update replaces a record's mutable fields, or returns glucose.ErrNotFound.
func (r *Repository) Update(ctx context.Context, rec *glucose.Record) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE glucose_levels
		 SET timestamp = $2, glucose_value = $3, device_type = $4,
		     device_id = $5, record_type = $6, notes = $7, updated_at = $8
		 WHERE id = $1`,
		rec.ID, rec.Timestamp, rec.GlucoseValue, rec.DeviceType,
		rec.DeviceID, rec.RecordType, rec.Notes, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return glucose.ErrNotFound
	}
	return nil
}

// Delete removes a record, or returns glucose.ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM glucose_levels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return glucose.ErrNotFound
	}
	return nil
}

// scanRecord reads one row in recordColumns order.
func scanRecord(row pgx.Row) (*glucose.Record, error) {
	var rec glucose.Record
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Timestamp, &rec.GlucoseValue,
		&rec.DeviceType, &rec.DeviceID, &rec.RecordType, &rec.Notes,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
