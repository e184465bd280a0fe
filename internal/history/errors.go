package history

import "errors"

var (
	// ErrNoData is returned by PersistSnapshot when the Store holds no
	// reading for the apartment yet.
	ErrNoData = errors.New("history: no data for apartment")

	// ErrApartmentRequired indicates an empty apartment key.
	ErrApartmentRequired = errors.New("history: apartment is required")

	// ErrInvalidRetention indicates a non-positive prune duration.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)
