package store

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/powerwatch/internal/reading"
)

func TestGetAbsent(t *testing.T) {
	s := New()

	r, ok := s.Get("301")
	if ok {
		t.Fatalf("Get() ok = true for unknown key, reading = %+v", r)
	}
	if r.Voltage != 0 || r.Current != 0 || !r.ArrivedAt.IsZero() {
		t.Errorf("Get() returned non-zero reading for absent key: %+v", r)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestPutGetLastWriteWins(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 10 {
		s.Put("301", reading.New(220+float64(i), 1, base.Add(time.Duration(i)*time.Second)))
	}

	got, ok := s.Get("301")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Voltage != 229 {
		t.Errorf("Voltage = %v, want 229", got.Voltage)
	}
	if !got.ArrivedAt.Equal(base.Add(9 * time.Second)) {
		t.Errorf("ArrivedAt = %v", got.ArrivedAt)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestKeysAndSnapshot(t *testing.T) {
	s := New()
	now := time.Now()
	s.Put("302", reading.New(230, 2, now))
	s.Put("101", reading.New(231, 3, now))
	s.Put("201", reading.New(232, 4, now))

	keys := s.Keys()
	want := []string{"101", "201", "302"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(snap))
	}
	if snap["201"].Power != 928 {
		t.Errorf("Snapshot()[201].Power = %v, want 928", snap["201"].Power)
	}

	// Snapshot is detached from later writes.
	s.Put("401", reading.New(230, 1, now))
	if _, ok := snap["401"]; ok {
		t.Error("Snapshot() observed a later Put")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	r := reading.New(230, 1, time.Now())
	r.Extra = map[string]any{"humidity": 40.0}
	s.Put("101", r)

	// Mutating the caller's value after Put must not leak in.
	r.Extra["humidity"] = 1.0

	got, _ := s.Get("101")
	if got.Extra["humidity"] != 40.0 {
		t.Errorf("stored Extra mutated by caller: %v", got.Extra["humidity"])
	}

	got.Extra["humidity"] = 2.0
	again, _ := s.Get("101")
	if again.Extra["humidity"] != 40.0 {
		t.Errorf("stored Extra mutated through Get copy: %v", again.Extra["humidity"])
	}
}

// TestConcurrentReadersNeverSeeTornReading writes readings whose fields are
// all derived from one counter, so any mix of two writes is detectable.
func TestConcurrentReadersNeverSeeTornReading(t *testing.T) {
	const (
		writes  = 1000
		readers = 8
	)

	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sample := func(i int) reading.Reading {
		return reading.New(float64(i), float64(i)*2, base.Add(time.Duration(i)*time.Millisecond))
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan string, readers)

	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				r, ok := s.Get("301")
				if !ok {
					continue
				}
				i := r.Voltage
				if r.Current != i*2 || r.Power != i*i*2 || !r.ArrivedAt.Equal(base.Add(time.Duration(i)*time.Millisecond)) {
					select {
					case errs <- "torn reading observed":
					default:
					}
					return
				}
			}
		}()
	}

	for i := 1; i <= writes; i++ {
		s.Put("301", sample(i))
	}
	close(done)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}

	got, ok := s.Get("301")
	if !ok {
		t.Fatal("Get() ok = false after writes")
	}
	if got.Voltage != writes {
		t.Errorf("final Voltage = %v, want %d", got.Voltage, writes)
	}
}
