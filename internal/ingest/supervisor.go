package ingest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
	"github.com/nerrad567/powerwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/powerwatch/internal/metrics"
	"github.com/nerrad567/powerwatch/internal/reading"
	"github.com/nerrad567/powerwatch/internal/store"
	"github.com/nerrad567/powerwatch/internal/topic"
)

// Transport is the broker session the Supervisor drives.
// *mqtt.Client implements it.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, filter string, qos byte) error
	Disconnect()
	SetMessageHandler(handler mqtt.MessageHandler)
	SetOnConnectionLost(callback func(err error))
}

// Logger is the logging surface the Supervisor needs.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer is told about every reading after it is stored.
//
// Observe runs on the message delivery goroutine and must not block.
// Observers that do I/O hand the reading to their own queue.
type Observer interface {
	Observe(key string, r reading.Reading)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(key string, r reading.Reading)

// Observe calls f.
func (f ObserverFunc) Observe(key string, r reading.Reading) { f(key, r) }

// Config tunes the Supervisor.
type Config struct {
	// Prefix is the topic prefix, e.g. "electricity/building".
	Prefix string

	// QoS is requested for every subscription.
	QoS byte

	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	ConnectTimeout   time.Duration
	SubscribeTimeout time.Duration
}

// ConfigFrom derives a Supervisor config from the MQTT section.
func ConfigFrom(cfg config.MQTTConfig) Config {
	return Config{
		Prefix:           cfg.TopicPrefix,
		QoS:              byte(cfg.QoS), //nolint:gosec // validated to 0..2
		InitialBackoff:   cfg.Reconnect.InitialDelay,
		MaxBackoff:       cfg.Reconnect.MaxDelay,
		ConnectTimeout:   cfg.Timeouts.Connect,
		SubscribeTimeout: cfg.Timeouts.Subscribe,
	}
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = mqtt.DefaultPrefix
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(time.Minute, c.InitialBackoff)
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	return c
}

// Supervisor keeps one broker session alive and is the only writer of the
// Store it was built with.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Messages are handled one at a time in delivery order.
type Supervisor struct {
	transport Transport
	store     *store.Store
	cfg       Config
	topics    mqtt.Topics

	state atomic.Int32

	// subMu orders registration against the session's issue pass, so a
	// filter registered at any moment is issued on the current session or
	// the next one.
	subMu  sync.Mutex
	router *topic.Router

	// lost carries the latest connection-lost signal; buffered so the
	// transport callback never blocks.
	lost chan error

	// handleMu is held for the duration of each message; Stop takes it to
	// wait out the message in flight.
	handleMu sync.Mutex

	observers []Observer
	obsMu     sync.RWMutex

	onState func(State)
	cbMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	// now and jitter are swapped out by tests.
	now    func() time.Time
	jitter func() float64

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewSupervisor creates a Supervisor for transport and st. The catch-all
// filter <prefix>/+/+ is registered immediately.
func NewSupervisor(transport Transport, st *store.Store, cfg Config) *Supervisor {
	cfg = cfg.withDefaults()

	s := &Supervisor{
		transport: transport,
		store:     st,
		cfg:       cfg,
		topics:    mqtt.Topics{Prefix: cfg.Prefix},
		router:    topic.NewRouter(),
		lost:      make(chan error, 1),
		logger:    noopLogger{},
		now:       time.Now,
		jitter:    rand.Float64,
		done:      make(chan struct{}),
	}

	catchAll, err := topic.NewSubscription(s.topics.CatchAll(), topic.KeyLast)
	if err == nil {
		s.router.Add(catchAll)
	}

	transport.SetMessageHandler(s.handleMessage)
	transport.SetOnConnectionLost(s.connectionLost)

	return s
}

// SetLogger sets the logger. A nil logger discards output.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Supervisor) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// SetOnStateChange registers a callback invoked after every state change.
// It runs synchronously on the goroutine that made the change.
func (s *Supervisor) SetOnStateChange(callback func(State)) {
	s.cbMu.Lock()
	s.onState = callback
	s.cbMu.Unlock()
}

// AddObserver registers o for every stored reading.
func (s *Supervisor) AddObserver(o Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// HealthCheck returns nil while a session is up.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ingest health check: %w", err)
	}
	if st := s.State(); st != StateConnected {
		return fmt.Errorf("%w: state %s", ErrNotConnected, st)
	}
	return nil
}

// Filters returns every registered filter in registration order.
func (s *Supervisor) Filters() []string {
	subs := s.router.Subscriptions()
	out := make([]string, len(subs))
	for i, sub := range subs {
		out[i] = sub.Filter()
	}
	return out
}

// swapState moves to next unless that would leave a terminal state.
// It reports whether the state changed.
func (s *Supervisor) swapState(next State) bool {
	for {
		cur := State(s.state.Load())
		if cur == next || (cur.terminal() && next < cur) {
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}

func (s *Supervisor) notifyState(st State) {
	metrics.SetConnectionState(int(st))
	s.log().Debug("supervisor state changed", "state", st.String())

	s.cbMu.RLock()
	callback := s.onState
	s.cbMu.RUnlock()
	if callback != nil {
		callback(st)
	}
}

func (s *Supervisor) setState(next State) {
	if s.swapState(next) {
		s.notifyState(next)
	}
}

// Start launches the connection loop. It returns immediately; use State or
// SetOnStateChange to follow progress. The loop runs until Stop or until
// ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)
	return nil
}

// Stop ends the session and waits until no message is being handled.
// After Stop returns the Store is never written again. Stop is idempotent.
func (s *Supervisor) Stop() {
	s.lifecycleMu.Lock()
	if s.stopped {
		s.lifecycleMu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	cancel := s.cancel
	s.lifecycleMu.Unlock()

	s.setState(StateShuttingDown)

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
	}

	// A handler past its state check finishes before this lock is granted;
	// any later one sees ShuttingDown and drops its message.
	s.handleMu.Lock()
	s.transport.Disconnect()
	s.handleMu.Unlock()

	s.setState(StateStopped)
	s.log().Info("supervisor stopped")
}

// connectionLost is the transport callback for a dropped session.
func (s *Supervisor) connectionLost(err error) {
	select {
	case s.lost <- err:
	default:
	}
}

// drainLost discards a connection-lost signal left over from an earlier
// session.
func (s *Supervisor) drainLost() {
	select {
	case <-s.lost:
	default:
	}
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	backoff := s.cfg.InitialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		if s.connect(ctx) {
			backoff = s.cfg.InitialBackoff

			select {
			case <-ctx.Done():
				return
			case err := <-s.lost:
				s.setState(StateDisconnected)
				s.log().Warn("broker connection lost", "error", err, "retry_in", backoff)
			}
		}

		if !s.wait(ctx, backoff) {
			return
		}
		backoff = s.nextBackoff(backoff)
	}
}

// connect runs one attempt: connect, then issue every registered filter.
// It reports whether the session reached Connected.
func (s *Supervisor) connect(ctx context.Context) bool {
	s.drainLost()
	s.setState(StateConnecting)
	metrics.ConnectionAttempt()

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	err := s.transport.Connect(connectCtx)
	cancel()
	if err != nil {
		s.setState(StateDisconnected)
		if ctx.Err() == nil {
			s.log().Warn("broker connect failed", "error", err)
		}
		return false
	}

	if err := s.issueAll(ctx); err != nil {
		s.transport.Disconnect()
		s.setState(StateDisconnected)
		if ctx.Err() == nil {
			s.log().Warn("subscribing after connect failed", "error", err)
		}
		return false
	}

	s.log().Info("connected to broker", "filters", s.router.Len())
	return true
}

// issueAll subscribes every registered filter on the fresh session, each
// exactly once, and moves to Connected once nothing is left. Filters
// registered while it runs are picked up by the next pass.
func (s *Supervisor) issueAll(ctx context.Context) error {
	issued := make(map[string]struct{})

	for {
		s.subMu.Lock()
		var pending []string
		for _, sub := range s.router.Subscriptions() {
			if _, ok := issued[sub.Filter()]; !ok {
				pending = append(pending, sub.Filter())
			}
		}
		if len(pending) == 0 {
			changed := s.swapState(StateConnected)
			s.subMu.Unlock()
			if changed {
				s.notifyState(StateConnected)
			}
			return nil
		}
		s.subMu.Unlock()

		for _, filter := range pending {
			if err := s.issue(ctx, filter); err != nil {
				return err
			}
			issued[filter] = struct{}{}
		}
	}
}

func (s *Supervisor) issue(ctx context.Context, filter string) error {
	subCtx, cancel := context.WithTimeout(ctx, s.cfg.SubscribeTimeout)
	defer cancel()
	if err := s.transport.Subscribe(subCtx, filter, s.cfg.QoS); err != nil {
		return err
	}
	s.log().Debug("subscribed", "filter", filter)
	return nil
}

// wait sleeps for d or until ctx is done. It reports whether the full
// duration elapsed.
func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextBackoff grows cur by a random factor in [1.5, 2.0), capped at
// MaxBackoff.
func (s *Supervisor) nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * (1.5 + s.jitter()*0.5))
	if next > s.cfg.MaxBackoff {
		next = s.cfg.MaxBackoff
	}
	return next
}

// Subscribe registers the per-apartment filter <prefix>/floor/<key>.
// See SubscribeFilter.
func (s *Supervisor) Subscribe(ctx context.Context, key string) error {
	return s.SubscribeFilter(ctx, s.topics.Apartment(key), topic.KeyLast)
}

// SubscribeFilter registers filter with the device key taken from level
// keyIndex of matching topics.
//
// Registering a filter twice is a no-op. While Connected the filter is issued
// at once and an issue failure is returned; the filter stays registered and
// is issued again on the next session. In any other state the filter is
// queued for the next successful connection.
func (s *Supervisor) SubscribeFilter(ctx context.Context, filter string, keyIndex int) error {
	sub, err := topic.NewSubscription(filter, keyIndex)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	s.subMu.Lock()
	if s.State().terminal() {
		s.subMu.Unlock()
		return ErrStopped
	}
	if !s.router.Add(sub) {
		s.subMu.Unlock()
		return nil
	}
	connected := s.State() == StateConnected
	s.subMu.Unlock()

	if !connected {
		s.log().Debug("subscription queued", "filter", filter)
		return nil
	}

	if err := s.issue(ctx, filter); err != nil {
		return fmt.Errorf("ingest: issuing %s: %w", filter, err)
	}
	return nil
}

// handleMessage runs on the transport's delivery goroutine.
// It always returns nil so the transport never reacts to bad input.
func (s *Supervisor) handleMessage(topicName string, payload []byte) error {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	if s.State().terminal() {
		metrics.MessageHandled(metrics.ResultDropped)
		return nil
	}

	_, key, ok := s.router.Match(topicName)
	if !ok {
		metrics.MessageHandled(metrics.ResultUnrouted)
		s.log().Info("no subscription matches topic", "topic", topicName)
		return nil
	}
	// A trailing separator matches "+" with an empty level, which names no meter.
	if key == "" {
		metrics.MessageHandled(metrics.ResultUnrouted)
		s.log().Info("topic carries an empty apartment key", "topic", topicName)
		return nil
	}

	r, err := reading.Decode(payload, s.now())
	if err != nil {
		metrics.MessageHandled(metrics.ResultMalformed)
		s.log().Warn("dropping undecodable reading", "topic", topicName, "apartment", key, "error", err)
		return nil
	}

	s.store.Put(key, r)
	metrics.MessageHandled(metrics.ResultStored)
	metrics.SetStoreSize(s.store.Len())

	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, o := range observers {
		o.Observe(key, r.Clone())
	}

	return nil
}
