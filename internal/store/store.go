// Package store holds the most recent Reading per apartment.
//
// The Store is written by a single ingestion path and read by any number of
// HTTP handlers and background jobs. Writes build a new map and publish it
// with an atomic pointer swap, so readers never take a lock and never observe
// a partially written Reading.
//
// Entries are never evicted. The key space is bounded by the number of
// metered apartments, not by message volume.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/powerwatch/internal/reading"
)

// snapshot is an immutable view of every stored reading.
type snapshot map[string]reading.Reading

// Store is the concurrent latest-reading cache.
//
// Thread Safety:
//   - Get, Len, Keys and Snapshot are lock-free and safe from any goroutine.
//   - Put is serialised internally; concurrent writers are safe but the
//     ingestion design uses exactly one.
type Store struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex
}

// New creates an empty store.
func New() *Store {
	s := &Store{}
	empty := make(snapshot)
	s.current.Store(&empty)
	return s
}

// Put replaces the reading for key. Later calls win.
func (s *Store) Put(key string, r reading.Reading) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old := *s.current.Load()
	next := make(snapshot, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[key] = r.Clone()

	s.current.Store(&next)
}

// Get returns a copy of the reading for key.
// The boolean is false when key has never received a reading.
func (s *Store) Get(key string) (reading.Reading, bool) {
	r, ok := (*s.current.Load())[key]
	if !ok {
		return reading.Reading{}, false
	}
	return r.Clone(), true
}

// Len returns the number of keys with a reading.
func (s *Store) Len() int {
	return len(*s.current.Load())
}

// Keys returns every key with a reading, sorted.
func (s *Store) Keys() []string {
	snap := *s.current.Load()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a point-in-time copy of every stored reading.
func (s *Store) Snapshot() map[string]reading.Reading {
	snap := *s.current.Load()
	out := make(map[string]reading.Reading, len(snap))
	for k, v := range snap {
		out[k] = v.Clone()
	}
	return out
}
