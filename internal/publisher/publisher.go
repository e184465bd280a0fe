// Package publisher sends meter readings to the broker.
//
// It is the outbound half of the wire format: each sample becomes one JSON
// message on <prefix>/floor/<apartment>, readable by any subscriber of the
// catch-all filter, including this service's own ingest path.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/powerwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/powerwatch/internal/metrics"
	"github.com/nerrad567/powerwatch/internal/reading"
	"github.com/nerrad567/powerwatch/internal/topic"
)

// Sender is the broker surface the Publisher needs.
// *mqtt.Client implements it.
type Sender interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
}

// Sample is one reading to publish.
type Sample struct {
	Apartment string
	Voltage   float64
	Current   float64
	Floor     string
	Extra     map[string]any
}

// Publisher encodes samples and hands them to a Sender.
//
// Thread Safety:
//   - Safe for concurrent use if the Sender is.
type Publisher struct {
	sender Sender
	topics mqtt.Topics
	qos    byte
	now    func() time.Time
}

// New creates a Publisher writing under prefix at qos.
func New(sender Sender, prefix string, qos byte) *Publisher {
	return &Publisher{
		sender: sender,
		topics: mqtt.Topics{Prefix: prefix},
		qos:    qos,
		now:    time.Now,
	}
}

// Publish sends one reading for apartment key.
//
// The payload carries voltage, current, apartment, floor (when set), the
// current UTC time and the derived power, merged with extra. It waits for
// the QoS handshake bounded by ctx.
//
// Returns:
//   - error: wraps mqtt.ErrInvalidTopic (and topic.ErrInvalidKey) when key
//     is empty or contains "/", "+" or "#"; otherwise mqtt.ErrNotConnected,
//     mqtt.ErrTimeout or mqtt.ErrPublishFailed
func (p *Publisher) Publish(ctx context.Context, key string, voltage, current float64, floor string, extra map[string]any) error {
	if err := topic.ValidateKey(key); err != nil {
		metrics.Published(metrics.PublishFailed)
		return fmt.Errorf("publisher: %w: %w", mqtt.ErrInvalidTopic, err)
	}

	payload, err := reading.Encode(reading.Payload{
		Voltage:   voltage,
		Current:   current,
		Apartment: key,
		Floor:     floor,
		Timestamp: p.now().UTC(),
		Extra:     extra,
	})
	if err != nil {
		metrics.Published(metrics.PublishFailed)
		return fmt.Errorf("publisher: %w: encoding: %w", mqtt.ErrPublishFailed, err)
	}

	name := p.topics.Apartment(key)
	if err := p.sender.Publish(ctx, name, payload, p.qos, false); err != nil {
		metrics.Published(result(err))
		return fmt.Errorf("publisher: %s: %w", name, err)
	}

	metrics.Published(metrics.PublishOK)
	return nil
}

// PublishSample is Publish for a Sample.
func (p *Publisher) PublishSample(ctx context.Context, s Sample) error {
	return p.Publish(ctx, s.Apartment, s.Voltage, s.Current, s.Floor, s.Extra)
}

// PublishBatch publishes every sample in order. It keeps going after a
// failure and returns how many succeeded together with the joined errors.
func (p *Publisher) PublishBatch(ctx context.Context, samples []Sample) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, s := range samples {
		if err := p.PublishSample(ctx, s); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// result maps a publish error to its metrics label.
func result(err error) string {
	switch {
	case errors.Is(err, mqtt.ErrNotConnected):
		return metrics.PublishNotConnected
	case errors.Is(err, mqtt.ErrTimeout):
		return metrics.PublishTimeout
	default:
		return metrics.PublishFailed
	}
}
