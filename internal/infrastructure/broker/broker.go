// Package broker runs an in-process MQTT broker.
//
// It backs the development mode of the service (mqtt.embedded.enabled) and
// the integration tests of the transport and ingest packages, which need a
// real broker without an external Mosquitto.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
)

// listenerID names the single TCP listener.
const listenerID = "powerwatch-tcp"

// ErrKicked is the reason recorded when Disconnect drops a client.
var ErrKicked = errors.New("broker: client disconnected by operator")

// Broker is an embedded MQTT broker that accepts any client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Broker struct {
	server  *mqttserver.Server
	address string

	closeOnce sync.Once
}

// New creates a broker listening on cfg.Address once Start is called.
func New(cfg config.EmbeddedBrokerConfig, logger *slog.Logger) (*Broker, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("broker: address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := mqttserver.New(&mqttserver.Options{
		InlineClient: false,
		Logger:       logger.With("component", "broker"),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("broker: adding auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      listenerID,
		Address: cfg.Address,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("broker: adding listener on %s: %w", cfg.Address, err)
	}

	return &Broker{
		server:  server,
		address: cfg.Address,
	}, nil
}

// Start begins accepting connections. It returns once listeners are serving.
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("broker: serve: %w", err)
	}
	return nil
}

// Address returns the configured listen address.
func (b *Broker) Address() string {
	return b.address
}

// Port returns the numeric port of the listen address.
func (b *Broker) Port() int {
	_, port, err := net.SplitHostPort(b.address)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

// ClientsConnected returns the number of connected clients.
func (b *Broker) ClientsConnected() int64 {
	return atomic.LoadInt64(&b.server.Info.ClientsConnected)
}

// Disconnect drops the client with id, as if its network link failed.
// It reports whether the client was connected.
func (b *Broker) Disconnect(id string) bool {
	cl, ok := b.server.Clients.Get(id)
	if !ok {
		return false
	}
	cl.Stop(ErrKicked)
	return true
}

// Close stops every listener and disconnects all clients.
func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.server.Close()
	})
	return err
}

// FreeAddress returns a loopback address with a port that was free a moment
// ago. Tests use it to run several brokers side by side.
func FreeAddress() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("broker: finding free port: %w", err)
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		return "", fmt.Errorf("broker: releasing probe port: %w", err)
	}
	return addr, nil
}
