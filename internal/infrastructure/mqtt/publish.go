package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - ctx: Bounds the wait for the QoS handshake. Without a deadline a
//     5 second default applies.
//   - topic: The topic to publish to (e.g., "electricity/building/floor/301")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// QoS Levels:
//   - 0: At most once. Success only means the packet was written.
//   - 1: At least once (PUBACK received, may duplicate)
//   - 2: Exactly once (PUBCOMP received)
//
// Returns:
//   - error: ErrInvalidTopic for an empty topic or one containing + or #;
//     ErrNotConnected, ErrTimeout, or ErrPublishFailed wrapping the cause
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	// Brokers close the session on a wildcard publish.
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %s: wildcards are not allowed when publishing", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := withDefaultTimeout(ctx)
	token := c.client.Publish(topic, qos, retained, payload)
	if err := await(ctx, token, cancel); err != nil {
		if errors.Is(err, ErrTimeout) {
			return err
		}
		if !c.IsConnected() {
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (c *Client) PublishString(ctx context.Context, topic, payload string, qos byte, retained bool) error {
	return c.Publish(ctx, topic, []byte(payload), qos, retained)
}
