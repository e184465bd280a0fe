package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is the subset of *pgxpool.Pool the repository needs.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS power_readings (
    id          BIGSERIAL PRIMARY KEY,
    apartment   TEXT NOT NULL,
    floor       TEXT NOT NULL DEFAULT '',
    voltage     DOUBLE PRECISION NOT NULL,
    current     DOUBLE PRECISION NOT NULL,
    power       DOUBLE PRECISION NOT NULL,
    arrived_at  TIMESTAMPTZ NOT NULL,
    reported_at TEXT NOT NULL DEFAULT '',
    extra       JSONB NOT NULL DEFAULT '{}'::jsonb,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_power_readings_apartment_recorded
    ON power_readings (apartment, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_power_readings_recorded
    ON power_readings (recorded_at);
`

// PostgresRepository implements Repository on PostgreSQL through pgx.
type PostgresRepository struct {
	db pgxQuerier
}

// NewPostgresRepository returns a repository backed by db, usually a
// *pgxpool.Pool.
func NewPostgresRepository(db pgxQuerier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the history table and indexes if missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	return nil
}

// Save inserts rec.
func (r *PostgresRepository) Save(ctx context.Context, rec Record) error {
	if rec.Apartment == "" {
		return ErrApartmentRequired
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	extra := rec.Extra
	if extra == nil {
		extra = map[string]any{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO power_readings
		 (apartment, floor, voltage, current, power, arrived_at, reported_at, extra, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.Apartment, rec.Floor, rec.Voltage, rec.Current, rec.Power,
		rec.ArrivedAt.UTC(), rec.ReportedAt, extra, rec.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting reading snapshot: %w", err)
	}
	return nil
}

// Recent returns the newest records for apartment.
func (r *PostgresRepository) Recent(ctx context.Context, apartment string, limit int) ([]Record, error) {
	if apartment == "" {
		return nil, ErrApartmentRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.Query(ctx,
		`SELECT id, apartment, floor, voltage, current, power, arrived_at, reported_at, extra, recorded_at
		 FROM power_readings
		 WHERE apartment = $1
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT $2`,
		apartment, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying reading history: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.Apartment, &rec.Floor, &rec.Voltage, &rec.Current,
			&rec.Power, &rec.ArrivedAt, &rec.ReportedAt, &rec.Extra, &rec.RecordedAt)
		rec.ArrivedAt = rec.ArrivedAt.UTC()
		rec.RecordedAt = rec.RecordedAt.UTC()
		if len(rec.Extra) == 0 {
			rec.Extra = nil
		}
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning reading history: %w", err)
	}
	return records, nil
}

// Prune deletes records recorded before now-olderThan.
func (r *PostgresRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	tag, err := r.db.Exec(ctx,
		"DELETE FROM power_readings WHERE recorded_at < $1",
		time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting reading history: %w", err)
	}
	return tag.RowsAffected(), nil
}
