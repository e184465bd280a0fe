package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe issues filter on the current session.
//
// Messages matching the filter are delivered to the handler set with
// SetMessageHandler; there is no per-filter callback. The subscription lives
// only as long as the session. After a reconnect the caller must issue it
// again.
//
// Subscribing to a filter that is already active on the session is not an
// error; the broker replaces the existing subscription.
//
// Returns:
//   - error: ErrNotConnected, ErrTimeout, or ErrSubscribeFailed (including a
//     SUBACK rejection by the broker)
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := withDefaultTimeout(ctx)
	token := c.client.Subscribe(filter, qos, nil)
	if err := await(ctx, token, cancel); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if code, found := st.Result()[filter]; found && code == subackFailure {
			return fmt.Errorf("%w: %s: rejected by broker", ErrSubscribeFailed, filter)
		}
	}

	return nil
}

// Unsubscribe removes filter from the current session.
//
// Messages already in flight may still be delivered.
func (c *Client) Unsubscribe(ctx context.Context, filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := withDefaultTimeout(ctx)
	token := c.client.Unsubscribe(filter)
	if err := await(ctx, token, cancel); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, filter, err)
	}

	return nil
}
