package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang as a single broker session.
//
// A Client does not reconnect or resubscribe on its own. The caller decides
// when to Connect again after the connection-lost callback fires, and which
// filters to issue on the new session.
//
// Every inbound message, whatever filter it arrived on, is delivered once to
// the handler set with SetMessageHandler, in arrival order.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// statusTopic receives retained online/offline messages when set.
	statusTopic string

	connected atomic.Bool

	handler    MessageHandler
	onLost     func(err error)
	callbackMu sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// It runs on paho's delivery goroutine. Messages are handed over one at a
// time, so a slow handler delays every later message.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Option customises a Client.
type Option func(*Client)

// WithStatusTopic publishes a retained online message to topic after each
// connect, a retained offline message on Disconnect, and registers the
// offline message as the session's Last Will.
func WithStatusTopic(topic string) Option {
	return func(c *Client) {
		c.statusTopic = topic
	}
}

// New creates a disconnected client for cfg.
func New(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}

	po := buildClientOptions(cfg)
	if c.statusTopic != "" {
		configureLWT(po, c.statusTopic, cfg.Broker.ClientID)
	}

	po.SetDefaultPublishHandler(c.dispatch)
	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.publishStatus("online", "")
	})
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(po)
	return c
}

// Connect opens a session with the broker.
//
// It returns when the broker acknowledges the connection, the attempt fails,
// or ctx is done. An abandoned attempt is cancelled.
//
// Returns:
//   - error: wraps ErrConnectionFailed, or ErrTimeout when ctx expired first
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
	case <-ctx.Done():
		c.client.Disconnect(0)
		return fmt.Errorf("%w: %w: %w", ErrConnectionFailed, ErrTimeout, ctx.Err())
	}

	c.connected.Store(true)
	return nil
}

// handleConnectionLost is called by paho when an established session drops.
func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)

	c.callbackMu.RLock()
	callback := c.onLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishStatus sends a retained status message, best effort.
func (c *Client) publishStatus(status, reason string) {
	if c.statusTopic == "" {
		return
	}
	token := c.client.Publish(c.statusTopic, 1, true, statusPayload(status, c.cfg.Broker.ClientID, reason))
	if !token.WaitTimeout(defaultPublishTimeout) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT status publish timed out", "status", status)
		}
	}
}

// Disconnect closes the session. Pending publishes get a short quiesce period.
// The connection-lost callback is not invoked for a requested disconnect.
func (c *Client) Disconnect() {
	if c.IsConnected() {
		c.publishStatus("offline", "graceful_shutdown")
	}
	c.connected.Store(false)
	c.client.Disconnect(defaultDisconnectQuiesce)
}

// Close disconnects and always returns nil. It lets the client sit in a
// deferred cleanup list next to other io.Closer resources.
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}

// HealthCheck reports whether the session is currently up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnected()
}

// SetMessageHandler sets the single receiver for inbound messages.
// Messages arriving with no handler set are dropped.
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.callbackMu.Lock()
	c.handler = handler
	c.callbackMu.Unlock()
}

// SetOnConnectionLost sets a callback invoked once each time an established
// session drops. The error describes why.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onLost = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// dispatch is paho's default publish handler. Subscriptions are issued with
// no per-filter callback, so every message lands here exactly once.
func (c *Client) dispatch(_ pahomqtt.Client, msg pahomqtt.Message) {
	c.callbackMu.RLock()
	handler := c.handler
	c.callbackMu.RUnlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	if err := handler(msg.Topic(), msg.Payload()); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

// await waits for token under ctx, applying fallback when ctx has no deadline.
// It returns ErrTimeout (wrapping the context error) if ctx finishes first.
func await(ctx context.Context, token pahomqtt.Token, fallback context.CancelFunc) error {
	if fallback != nil {
		defer fallback()
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// withDefaultTimeout bounds ctx by defaultPublishTimeout unless it already
// carries a deadline.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, nil
	}
	return context.WithTimeout(ctx, defaultPublishTimeout)
}
