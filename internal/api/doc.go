// Package api implements the HTTP REST API and WebSocket server for PowerWatch.
//
// This package provides:
//   - Read endpoints for the latest reading of every apartment
//   - Apartment registration, which subscribes the apartment's own topic
//   - Snapshot and history endpoints backed by the history repository
//   - WebSocket hub broadcasting each accepted reading
//   - Liveness, readiness and Prometheus endpoints
//
// # Architecture
//
// The API sits beside the ingest Supervisor. Readings flow from the broker
// into the store; the Supervisor notifies the Hub, which pushes a
// reading.updated event to subscribed WebSocket clients. HTTP reads go
// straight to the store and never touch the broker.
//
// # Graceful Degradation
//
// The server runs while the broker is unreachable. Reads keep serving the
// last known values, /readyz answers 503, and registering an apartment
// answers 202 until the subscription can be issued.
package api
