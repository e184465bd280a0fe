package history

import (
	"context"
	"time"

	"github.com/nerrad567/powerwatch/internal/reading"
)

// Limits for Recent.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Record is one persisted reading snapshot.
type Record struct {
	// ID is assigned by the repository on Save.
	ID int64 `json:"id"`

	Apartment string  `json:"apartment"`
	Floor     string  `json:"floor,omitempty"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Power     float64 `json:"power"`

	// ArrivedAt is when the reading reached the service.
	ArrivedAt time.Time `json:"arrived_at"`

	// ReportedAt is the meter's own timestamp string, if it sent one.
	ReportedAt string `json:"reported_at,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`

	// RecordedAt is when the snapshot was taken (UTC).
	RecordedAt time.Time `json:"recorded_at"`
}

// FromReading builds a Record for apartment from a stored reading.
func FromReading(apartment string, r reading.Reading, recordedAt time.Time) Record {
	r = r.Clone()
	return Record{
		Apartment:  apartment,
		Floor:      r.Floor,
		Voltage:    r.Voltage,
		Current:    r.Current,
		Power:      r.Power,
		ArrivedAt:  r.ArrivedAt.UTC(),
		ReportedAt: r.ReportedAt,
		Extra:      r.Extra,
		RecordedAt: recordedAt.UTC(),
	}
}

// Repository stores and retrieves reading snapshots.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	// Save appends rec. RecordedAt defaults to now when zero.
	Save(ctx context.Context, rec Record) error

	// Recent returns up to limit records for apartment, newest first.
	// A limit outside [1, MaxLimit] is clamped.
	Recent(ctx context.Context, apartment string, limit int) ([]Record, error)

	// Prune deletes records older than olderThan and returns how many.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// clampLimit applies DefaultLimit and MaxLimit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
