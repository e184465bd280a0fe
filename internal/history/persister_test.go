package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/powerwatch/internal/reading"
	"github.com/nerrad567/powerwatch/internal/store"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu      sync.Mutex
	records []Record
	saveErr error
	pruned  int
}

func (m *memRepo) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return nil
}

func (m *memRepo) Recent(_ context.Context, apartment string, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for i := len(m.records) - 1; i >= 0 && len(out) < clampLimit(limit); i-- {
		if m.records[i].Apartment == apartment {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *memRepo) Prune(context.Context, time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned++
	return 0, nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestPersistSnapshot(t *testing.T) {
	st := store.New()
	repo := &memRepo{}
	p := NewPersister(st, repo)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	r := reading.New(230, 2, fixed.Add(-time.Second))
	r.Floor = "3"
	r.Extra = map[string]any{"humidity": 40.0}
	st.Put("301", r)

	rec, err := p.PersistSnapshot(context.Background(), "301")
	if err != nil {
		t.Fatalf("PersistSnapshot() error = %v", err)
	}
	if rec.Apartment != "301" || rec.Power != 460 || rec.Floor != "3" {
		t.Errorf("PersistSnapshot() = %+v", rec)
	}
	if !rec.RecordedAt.Equal(fixed) {
		t.Errorf("RecordedAt = %v, want %v", rec.RecordedAt, fixed)
	}

	// The saved record must not alias the stored reading's Extra map.
	rec.Extra["humidity"] = 99.0
	if got, _ := st.Get("301"); got.Extra["humidity"] != 40.0 {
		t.Error("snapshot shares Extra with the store")
	}

	if repo.count() != 1 {
		t.Errorf("repository holds %d records, want 1", repo.count())
	}
}

func TestPersistSnapshotNoData(t *testing.T) {
	p := NewPersister(store.New(), &memRepo{})

	_, err := p.PersistSnapshot(context.Background(), "999")
	if !errors.Is(err, ErrNoData) {
		t.Errorf("PersistSnapshot() error = %v, want ErrNoData", err)
	}

	_, err = p.PersistSnapshot(context.Background(), "")
	if !errors.Is(err, ErrApartmentRequired) {
		t.Errorf("PersistSnapshot(\"\") error = %v, want ErrApartmentRequired", err)
	}
}

func TestPersistSnapshotSaveError(t *testing.T) {
	st := store.New()
	st.Put("301", reading.New(230, 1, time.Now()))
	boom := errors.New("disk full")
	p := NewPersister(st, &memRepo{saveErr: boom})

	if _, err := p.PersistSnapshot(context.Background(), "301"); !errors.Is(err, boom) {
		t.Errorf("PersistSnapshot() error = %v, want %v", err, boom)
	}
}

func TestPersistAll(t *testing.T) {
	st := store.New()
	for _, key := range []string{"101", "102", "201"} {
		st.Put(key, reading.New(230, 1, time.Now()))
	}
	repo := &memRepo{}
	p := NewPersister(st, repo)

	saved, err := p.PersistAll(context.Background())
	if err != nil {
		t.Fatalf("PersistAll() error = %v", err)
	}
	if saved != 3 || repo.count() != 3 {
		t.Errorf("PersistAll() saved %d (repo %d), want 3", saved, repo.count())
	}
}

func TestRunPersistsAndPrunes(t *testing.T) {
	st := store.New()
	st.Put("301", reading.New(230, 1, time.Now()))
	repo := &memRepo{}
	p := NewPersister(st, repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 10*time.Millisecond, time.Hour) }()

	deadline := time.Now().Add(2 * time.Second)
	for repo.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if repo.count() < 2 {
		t.Errorf("Run() saved %d records, want at least 2", repo.count())
	}
	repo.mu.Lock()
	pruned := repo.pruned
	repo.mu.Unlock()
	if pruned == 0 {
		t.Error("Run() never pruned")
	}
}

func TestRunDisabled(t *testing.T) {
	p := NewPersister(store.New(), &memRepo{})
	if err := p.Run(context.Background(), 0, 0); err != nil {
		t.Errorf("Run() with zero interval error = %v", err)
	}
}
