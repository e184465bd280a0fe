package ingest

import "errors"

var (
	// ErrNotConnected is returned by HealthCheck while no session is up.
	ErrNotConnected = errors.New("ingest: not connected")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("ingest: supervisor already started")

	// ErrStopped is returned when starting or subscribing after Stop.
	ErrStopped = errors.New("ingest: supervisor stopped")
)
