// Package simulator generates synthetic meter readings for a set of
// apartments and publishes them through a publisher.Publisher.
//
// Each apartment runs in its own goroutine with its own voltage and current
// range and a jittered interval, so readings arrive interleaved the way a
// building full of independent meters would send them.
package simulator

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/powerwatch/internal/publisher"
)

// Default timing between two readings of one apartment.
const (
	DefaultMinInterval = 2 * time.Second
	DefaultMaxInterval = 5 * time.Second

	// retryDelay is the pause after a failed publish.
	retryDelay = 5 * time.Second
)

// Extra payload fields added when extras are enabled.
const (
	ExtraRoomTemperature = "room_temperature"
	ExtraHumidity        = "humidity"
	ExtraDeviceID        = "device_id"
	ExtraBatteryLevel    = "battery_level"
)

// Profile describes one simulated meter.
type Profile struct {
	Apartment  string
	Floor      string
	VoltageMin float64
	VoltageMax float64
	CurrentMin float64
	CurrentMax float64
}

// DefaultProfiles is a six-apartment building over three floors.
var DefaultProfiles = []Profile{
	{Apartment: "101", Floor: "1", VoltageMin: 220, VoltageMax: 240, CurrentMin: 0.5, CurrentMax: 8},
	{Apartment: "102", Floor: "1", VoltageMin: 220, VoltageMax: 240, CurrentMin: 0.5, CurrentMax: 12},
	{Apartment: "201", Floor: "2", VoltageMin: 220, VoltageMax: 240, CurrentMin: 0.5, CurrentMax: 15},
	{Apartment: "202", Floor: "2", VoltageMin: 220, VoltageMax: 240, CurrentMin: 0.5, CurrentMax: 10},
	{Apartment: "301", Floor: "3", VoltageMin: 220, VoltageMax: 240, CurrentMin: 0.5, CurrentMax: 6},
	{Apartment: "302", Floor: "3", VoltageMin: 220, VoltageMax: 240, CurrentMin: 0.5, CurrentMax: 9},
}

// SingleProfile returns a profile for one apartment with the ranges used by
// the single-shot publisher.
func SingleProfile(apartment, floor string) Profile {
	return Profile{
		Apartment:  apartment,
		Floor:      floor,
		VoltageMin: 220,
		VoltageMax: 240,
		CurrentMin: 0.5,
		CurrentMax: 15,
	}
}

// Publisher is the outbound surface the Simulator needs.
// *publisher.Publisher implements it.
type Publisher interface {
	PublishSample(ctx context.Context, s publisher.Sample) error
}

// Logger defines the logging interface used by the Simulator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Option configures a Simulator.
type Option func(*Simulator)

// WithInterval sets the bounds of the per-apartment delay.
func WithInterval(minInterval, maxInterval time.Duration) Option {
	return func(s *Simulator) {
		s.minInterval = minInterval
		s.maxInterval = maxInterval
	}
}

// WithExtras adds room temperature, humidity, device id and battery level
// to every sample.
func WithExtras() Option {
	return func(s *Simulator) { s.extras = true }
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSeed makes sample generation deterministic.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) } //nolint:gosec // simulated data
}

// Simulator publishes synthetic readings for a fixed set of profiles.
//
// Thread Safety:
//   - Sample and Run are safe for concurrent use.
type Simulator struct {
	pub      Publisher
	profiles []Profile
	logger   Logger

	minInterval time.Duration
	maxInterval time.Duration
	extras      bool

	mu        sync.Mutex
	rng       *rand.Rand
	deviceIDs map[string]string
}

// New creates a Simulator for profiles. An empty list uses DefaultProfiles.
func New(pub Publisher, profiles []Profile, opts ...Option) *Simulator {
	if len(profiles) == 0 {
		profiles = DefaultProfiles
	}
	s := &Simulator{
		pub:         pub,
		profiles:    profiles,
		logger:      noopLogger{},
		minInterval: DefaultMinInterval,
		maxInterval: DefaultMaxInterval,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // simulated data
		deviceIDs:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxInterval < s.minInterval {
		s.maxInterval = s.minInterval
	}
	return s
}

// Profiles returns the simulated profiles.
func (s *Simulator) Profiles() []Profile {
	return s.profiles
}

// Sample draws one reading for p. Values are rounded to two decimals and
// stay within the profile's ranges.
func (s *Simulator) Sample(p Profile) publisher.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := publisher.Sample{
		Apartment: p.Apartment,
		Floor:     p.Floor,
		Voltage:   s.uniform(p.VoltageMin, p.VoltageMax, 2),
		Current:   s.uniform(p.CurrentMin, p.CurrentMax, 2),
	}

	if s.extras {
		sample.Extra = map[string]any{
			ExtraRoomTemperature: s.uniform(20, 25, 1),
			ExtraHumidity:        s.uniform(40, 60, 1),
			ExtraBatteryLevel:    s.uniform(80, 100, 1),
			ExtraDeviceID:        s.deviceID(p.Apartment),
		}
	}
	return sample
}

// uniform returns a value in [lo, hi] rounded to places decimals.
// Caller holds s.mu.
func (s *Simulator) uniform(lo, hi float64, places int) float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	scale := math.Pow(10, float64(places))
	v := math.Round((lo+s.rng.Float64()*(hi-lo))*scale) / scale
	return math.Min(math.Max(v, lo), hi)
}

// deviceID returns the stable device id of one apartment. Caller holds s.mu.
func (s *Simulator) deviceID(apartment string) string {
	id, ok := s.deviceIDs[apartment]
	if !ok {
		id = uuid.NewString()
		s.deviceIDs[apartment] = id
	}
	return id
}

// nextDelay returns a jittered delay in [minInterval, maxInterval].
func (s *Simulator) nextDelay() time.Duration {
	span := s.maxInterval - s.minInterval
	if span <= 0 {
		return s.minInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minInterval + time.Duration(s.rng.Int64N(int64(span)+1))
}

// Run publishes readings for every profile until ctx is cancelled.
//
// A failed publish is logged and retried after a pause; it never stops the
// other apartments. Run returns nil on cancellation.
func (s *Simulator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.profiles {
		g.Go(func() error {
			return s.runProfile(gctx, p)
		})
		s.logger.Info("simulation started", "apartment", p.Apartment, "floor", p.Floor)
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Simulator) runProfile(ctx context.Context, p Profile) error {
	for {
		sample := s.Sample(p)
		delay := s.nextDelay()

		if err := s.pub.PublishSample(ctx, sample); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("simulated publish failed", "apartment", p.Apartment, "error", err)
			delay = retryDelay
		} else {
			s.logger.Info("simulated reading published",
				"apartment", p.Apartment,
				"voltage", sample.Voltage,
				"current", sample.Current,
				"power", sample.Voltage*sample.Current,
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
