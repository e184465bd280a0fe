// Package mirror copies the latest reading per apartment into Redis so
// dashboards outside this process can read it without calling the API.
//
// Keys are <prefix><apartment> (default "powerwatch:last:301") holding the
// reading as JSON with a TTL, so apartments whose meters go silent age out.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
	"github.com/nerrad567/powerwatch/internal/metrics"
	"github.com/nerrad567/powerwatch/internal/reading"
)

const (
	defaultKeyPrefix = "powerwatch:last:"
	defaultQueueSize = 256
	writeTimeout     = 2 * time.Second
)

// Client is the subset of *redis.Client the mirror uses.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Logger is the logging surface the mirror needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

type entry struct {
	apartment string
	reading   reading.Reading
}

// Mirror is an ingest.Observer that writes readings to Redis from a bounded
// queue. Observe never blocks; when the queue is full the reading is dropped
// and counted.
type Mirror struct {
	client Client
	prefix string
	ttl    time.Duration
	queue  chan entry
	logger Logger
}

// New creates a Mirror. Run must be started to drain the queue.
func New(client Client, cfg config.RedisConfig) *Mirror {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Mirror{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		queue:  make(chan entry, size),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. A nil logger discards output.
func (m *Mirror) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// key returns the Redis key for apartment.
func (m *Mirror) key(apartment string) string {
	return m.prefix + apartment
}

// Observe enqueues the reading, dropping it when the queue is full.
func (m *Mirror) Observe(apartment string, r reading.Reading) {
	m.enqueue(apartment, r)
}

func (m *Mirror) enqueue(apartment string, r reading.Reading) bool {
	select {
	case m.queue <- entry{apartment: apartment, reading: r.Clone()}:
		return true
	default:
		metrics.MirrorDropped()
		return false
	}
}

// Run writes queued readings until ctx is done. Write failures are logged
// and the reading is skipped; the next reading for the apartment replaces
// it anyway.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-m.queue:
			if err := m.write(ctx, e); err != nil && ctx.Err() == nil {
				m.logger.Warn("mirroring reading failed", "apartment", e.apartment, "error", err)
			}
		}
	}
}

func (m *Mirror) write(ctx context.Context, e entry) error {
	data, err := json.Marshal(e.reading)
	if err != nil {
		return fmt.Errorf("mirror: encoding reading: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := m.client.Set(ctx, m.key(e.apartment), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror: set %s: %w", m.key(e.apartment), err)
	}
	return nil
}
