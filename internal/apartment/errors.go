package apartment

import "errors"

// Domain errors for the apartment package.
var (
	// ErrNotFound is returned when an apartment number is not registered.
	ErrNotFound = errors.New("apartment: not found")

	// ErrExists is returned when registering a number twice.
	ErrExists = errors.New("apartment: already registered")

	// ErrInvalidNumber is returned when a number fails validation.
	ErrInvalidNumber = errors.New("apartment: invalid number")

	// ErrInvalidLabel is returned when a label is too long.
	ErrInvalidLabel = errors.New("apartment: invalid label")

	// ErrSubscribePending is returned by Register when the apartment was
	// stored but its subscription could not be issued yet. The ingest
	// Supervisor keeps the filter and issues it on the next connection.
	ErrSubscribePending = errors.New("apartment: subscription pending")
)
