package apartment

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Subscriber issues the per-apartment MQTT subscription.
// *ingest.Supervisor satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, number string) error
}

// Logger defines the logging interface used by the Registry.
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

// Registry manages apartments with an in-memory cache in front of a
// Repository. All methods are safe for concurrent use.
type Registry struct {
	repo       Repository
	subscriber Subscriber

	cache   map[string]Apartment
	cacheMu sync.RWMutex

	logger Logger
}

// NewRegistry creates a registry. subscriber may be nil, in which case
// registration only persists.
func NewRegistry(repo Repository, subscriber Subscriber) *Registry {
	return &Registry{
		repo:       repo,
		subscriber: subscriber,
		cache:      make(map[string]Apartment),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Load fills the cache from the repository and subscribes every apartment.
// Subscription failures are logged, not returned: the Supervisor keeps
// each filter and issues it once the broker is reachable.
func (r *Registry) Load(ctx context.Context) error {
	apartments, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading apartments: %w", err)
	}

	cache := make(map[string]Apartment, len(apartments))
	for _, a := range apartments {
		cache[a.Number] = a
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	for _, a := range apartments {
		if err := r.subscribe(ctx, a.Number); err != nil {
			r.logger.Warn("apartment subscription pending", "apartment", a.Number, "error", err)
		}
	}

	r.logger.Info("apartments loaded", "count", len(apartments))
	return nil
}

// Register validates, stores and subscribes a new apartment.
//
// When storing succeeds but the subscription cannot be issued right now,
// the apartment stays registered and the returned error matches
// ErrSubscribePending.
func (r *Registry) Register(ctx context.Context, a *Apartment) error {
	if a.Floor == "" {
		a.Floor = FloorOf(a.Number)
	}
	if err := Validate(a); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, a); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[a.Number] = *a
	r.cacheMu.Unlock()

	r.logger.Info("apartment registered", "apartment", a.Number, "floor", a.Floor)

	if err := r.subscribe(ctx, a.Number); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribePending, a.Number, err)
	}
	return nil
}

func (r *Registry) subscribe(ctx context.Context, number string) error {
	if r.subscriber == nil {
		return nil
	}
	return r.subscriber.Subscribe(ctx, number)
}

// Get returns one apartment, consulting the repository on a cache miss.
func (r *Registry) Get(ctx context.Context, number string) (Apartment, error) {
	r.cacheMu.RLock()
	a, ok := r.cache[number]
	r.cacheMu.RUnlock()
	if ok {
		return a, nil
	}

	stored, err := r.repo.Get(ctx, number)
	if err != nil {
		return Apartment{}, err
	}

	r.cacheMu.Lock()
	r.cache[number] = *stored
	r.cacheMu.Unlock()
	return *stored, nil
}

// List returns every cached apartment ordered by number.
func (r *Registry) List() []Apartment {
	r.cacheMu.RLock()
	out := make([]Apartment, 0, len(r.cache))
	for _, a := range r.cache {
		out = append(out, a)
	}
	r.cacheMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Count returns the number of cached apartments.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
