package history

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/powerwatch/internal/metrics"
	"github.com/nerrad567/powerwatch/internal/reading"
)

// Source is where the Persister reads the latest readings from.
// *store.Store satisfies it.
type Source interface {
	Get(key string) (reading.Reading, bool)
	Snapshot() map[string]reading.Reading
}

// Logger is the logging surface the Persister needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Persister copies readings from a Source into a Repository.
type Persister struct {
	source Source
	repo   Repository
	logger Logger

	now func() time.Time
}

// NewPersister creates a Persister.
func NewPersister(source Source, repo Repository) *Persister {
	return &Persister{
		source: source,
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger. A nil logger discards output.
func (p *Persister) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Repository returns the underlying repository for read access.
func (p *Persister) Repository() Repository {
	return p.repo
}

// PersistSnapshot saves the current reading for apartment.
//
// It returns ErrNoData when nothing has arrived for the apartment yet. The
// returned Record is what was written, without the repository ID.
func (p *Persister) PersistSnapshot(ctx context.Context, apartment string) (Record, error) {
	if apartment == "" {
		return Record{}, ErrApartmentRequired
	}

	r, ok := p.source.Get(apartment)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNoData, apartment)
	}

	rec := FromReading(apartment, r, p.now())
	if err := p.repo.Save(ctx, rec); err != nil {
		return Record{}, err
	}

	metrics.SnapshotSaved()
	return rec, nil
}

// PersistAll saves one record per apartment in the Source and returns how
// many were written. It keeps going after a failed save and returns the
// first error.
func (p *Persister) PersistAll(ctx context.Context) (int, error) {
	snap := p.source.Snapshot()
	recordedAt := p.now()

	saved := 0
	var firstErr error
	for apartment, r := range snap {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if err := p.repo.Save(ctx, FromReading(apartment, r, recordedAt)); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("saving %s: %w", apartment, err)
			}
			continue
		}
		metrics.SnapshotSaved()
		saved++
	}
	return saved, firstErr
}

// Run persists every apartment each interval and, when retention is
// positive, prunes older records on the same tick. It blocks until ctx is
// done and returns nil. A non-positive interval returns immediately.
func (p *Persister) Run(ctx context.Context, interval, retention time.Duration) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx, retention)
		}
	}
}

func (p *Persister) tick(ctx context.Context, retention time.Duration) {
	saved, err := p.PersistAll(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.Warn("periodic snapshot incomplete", "saved", saved, "error", err)
	}

	if retention <= 0 {
		return
	}
	pruned, err := p.repo.Prune(ctx, retention)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("pruning reading history failed", "error", err)
		}
		return
	}
	if pruned > 0 {
		p.logger.Info("pruned reading history", "rows", pruned, "retention", retention.String())
	}
}
