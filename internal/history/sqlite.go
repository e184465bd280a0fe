package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// storageLayout keeps a fixed-width fraction so timestamps sort as text.
const storageLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository implements Repository on the power_readings table
// created by the embedded migrations.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository backed by db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts rec.
func (r *SQLiteRepository) Save(ctx context.Context, rec Record) error {
	if rec.Apartment == "" {
		return ErrApartmentRequired
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	extra, err := marshalExtra(rec.Extra)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO power_readings
		 (apartment, floor, voltage, current, power, arrived_at, reported_at, extra, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Apartment,
		rec.Floor,
		rec.Voltage,
		rec.Current,
		rec.Power,
		rec.ArrivedAt.UTC().Format(storageLayout),
		rec.ReportedAt,
		extra,
		rec.RecordedAt.UTC().Format(storageLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting reading snapshot: %w", err)
	}
	return nil
}

// Recent returns the newest records for apartment.
func (r *SQLiteRepository) Recent(ctx context.Context, apartment string, limit int) ([]Record, error) {
	if apartment == "" {
		return nil, ErrApartmentRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, apartment, floor, voltage, current, power, arrived_at, reported_at, extra, recorded_at
		 FROM power_readings
		 WHERE apartment = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		apartment,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying reading history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var arrivedAt, recordedAt, extra string

		if err := rows.Scan(&rec.ID, &rec.Apartment, &rec.Floor, &rec.Voltage, &rec.Current,
			&rec.Power, &arrivedAt, &rec.ReportedAt, &extra, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning reading history: %w", err)
		}

		if rec.ArrivedAt, err = parseTimestamp(arrivedAt); err != nil {
			return nil, err
		}
		if rec.RecordedAt, err = parseTimestamp(recordedAt); err != nil {
			return nil, err
		}
		if rec.Extra, err = unmarshalExtra([]byte(extra)); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reading history: %w", err)
	}
	return records, nil
}

// Prune deletes records recorded before now-olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(storageLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM power_readings WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting reading history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func marshalExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("marshalling extra fields: %w", err)
	}
	return string(data), nil
}

func unmarshalExtra(data []byte) (map[string]any, error) {
	var extra map[string]any
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("unmarshalling extra fields: %w", err)
	}
	if len(extra) == 0 {
		return nil, nil
	}
	return extra, nil
}

// parseTimestamp parses a stored timestamp. Rows written by SQLite defaults
// carry second precision without a fraction.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return ts.UTC(), nil
}
