// Package ingest owns the broker session and feeds the latest-reading store.
//
// The Supervisor connects through a Transport, issues every registered
// subscription once per session, and runs each inbound message through
// topic routing, payload decoding and Store.Put. When the session drops it
// reconnects with jittered exponential backoff until stopped.
//
// State machine:
//
//	Disconnected → Connecting → Connected → Disconnected → ...
//	any state → ShuttingDown → Stopped
//
// Routing misses and undecodable payloads are logged, counted and dropped.
// They never affect the session.
package ingest
