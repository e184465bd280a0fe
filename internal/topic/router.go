package topic

import (
	"fmt"
	"strings"
	"sync"
)

// KeyLast selects the last level of the matched topic as the device key.
const KeyLast = -1

// Subscription pairs a filter with the rule that extracts a device key
// from topics matching it.
type Subscription struct {
	Pattern Pattern

	// KeyIndex is the topic level holding the device key, or KeyLast.
	KeyIndex int
}

// NewSubscription parses filter and validates the key index against it.
//
// Parameters:
//   - filter: MQTT topic filter, e.g. "electricity/building/+/+"
//   - keyIndex: Zero-based level of the device key, or KeyLast
//
// Returns:
//   - Subscription: Ready to register with a Router
//   - error: If the filter is invalid or the index falls outside it
func NewSubscription(filter string, keyIndex int) (Subscription, error) {
	p, err := ParsePattern(filter)
	if err != nil {
		return Subscription{}, err
	}
	if keyIndex != KeyLast && (keyIndex < 0 || keyIndex >= p.Len()) {
		return Subscription{}, fmt.Errorf("%w: index %d, filter %q", ErrInvalidKeyIndex, keyIndex, filter)
	}
	return Subscription{Pattern: p, KeyIndex: keyIndex}, nil
}

// Filter returns the subscription's filter text.
func (s Subscription) Filter() string {
	return s.Pattern.String()
}

// Key extracts the device key from the levels of a topic that matched
// this subscription. Extraction cannot fail once the pattern matched.
func (s Subscription) Key(levels []string) string {
	if s.KeyIndex == KeyLast || s.KeyIndex >= len(levels) {
		return levels[len(levels)-1]
	}
	return levels[s.KeyIndex]
}

// ValidateKey reports whether key can be used as one concrete topic level:
// non-empty, with no separator, wildcard or NUL character.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, Separator+"+#\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Router selects the single most specific subscription for a topic.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Router struct {
	mu   sync.RWMutex
	subs []Subscription
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Add registers a subscription. Registering a filter that is already
// present is a no-op and returns false.
func (r *Router) Add(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.subs {
		if existing.Filter() == sub.Filter() {
			return false
		}
	}
	r.subs = append(r.subs, sub)
	return true
}

// Subscriptions returns the registered subscriptions in registration order.
func (r *Router) Subscriptions() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// Len returns the number of registered subscriptions.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Match finds the subscription that handles topic and extracts its key.
//
// When several filters match, the most specific one wins (see
// Pattern.moreSpecificThan); remaining ties go to the earliest registration.
//
// Returns:
//   - Subscription: The winning subscription
//   - string: The device key extracted from topic
//   - bool: false when no registered filter matches
func (r *Router) Match(topic string) (Subscription, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Match(topic, r.subs)
}

// Match is the stateless form of Router.Match over an explicit list.
func Match(topic string, subs []Subscription) (Subscription, string, bool) {
	levels := Split(topic)

	var (
		best  Subscription
		found bool
	)
	for _, sub := range subs {
		if !sub.Pattern.match(levels) {
			continue
		}
		if !found || sub.Pattern.moreSpecificThan(best.Pattern) {
			best = sub
			found = true
		}
	}

	if !found {
		return Subscription{}, "", false
	}
	return best, best.Key(levels), true
}
