// Package metrics holds the Prometheus collectors exported by PowerWatch.
//
// Collectors are registered with the default registry at init and served by
// the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "powerwatch"

// Message results.
const (
	ResultStored    = "stored"
	ResultUnrouted  = "unrouted"
	ResultMalformed = "malformed"
	ResultDropped   = "dropped"
)

// Publish results.
const (
	PublishOK           = "ok"
	PublishNotConnected = "not_connected"
	PublishTimeout      = "timeout"
	PublishFailed       = "failed"
)

var messagesHandled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "messages_handled_total",
		Help:      "Total number of inbound messages handled, by result.",
	}, []string{"result"},
)

var connectionState = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "connection_state",
		Help:      "Supervisor state: 0 disconnected, 1 connecting, 2 connected, 3 shutting down, 4 stopped.",
	},
)

var reconnects = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "connection_attempts_total",
		Help:      "Total number of broker connection attempts.",
	},
)

var storeSize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "apartments",
		Help:      "Number of apartments with a latest reading.",
	},
)

var published = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "messages_total",
		Help:      "Total number of readings published, by result.",
	}, []string{"result"},
)

var mirrorDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mirror",
		Name:      "dropped_total",
		Help:      "Readings not mirrored because the queue was full.",
	},
)

var snapshots = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "snapshots_total",
		Help:      "Total number of readings persisted to history.",
	},
)

// MessageHandled counts one inbound message with result.
func MessageHandled(result string) {
	messagesHandled.WithLabelValues(result).Inc()
}

// SetConnectionState records the supervisor state as its ordinal.
func SetConnectionState(state int) {
	connectionState.Set(float64(state))
}

// ConnectionAttempt counts one broker connection attempt.
func ConnectionAttempt() {
	reconnects.Inc()
}

// SetStoreSize records the number of stored apartments.
func SetStoreSize(n int) {
	storeSize.Set(float64(n))
}

// Published counts one publish with result.
func Published(result string) {
	published.WithLabelValues(result).Inc()
}

// MirrorDropped counts one reading dropped by the Redis mirror.
func MirrorDropped() {
	mirrorDropped.Inc()
}

// SnapshotSaved counts one persisted history record.
func SnapshotSaved() {
	snapshots.Inc()
}

func init() {
	prometheus.MustRegister(messagesHandled)
	prometheus.MustRegister(connectionState)
	prometheus.MustRegister(reconnects)
	prometheus.MustRegister(storeSize)
	prometheus.MustRegister(published)
	prometheus.MustRegister(mirrorDropped)
	prometheus.MustRegister(snapshots)
}
