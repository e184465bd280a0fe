package topic

import "errors"

// Errors returned while parsing filters and building subscriptions.
var (
	// ErrEmptyFilter is returned for an empty filter string.
	ErrEmptyFilter = errors.New("topic: filter cannot be empty")

	// ErrMultiLevelNotLast is returned when "#" appears before the last segment.
	ErrMultiLevelNotLast = errors.New("topic: multi-level wildcard must be the last segment")

	// ErrInvalidWildcard is returned when a wildcard shares a segment with other characters.
	ErrInvalidWildcard = errors.New("topic: wildcard must occupy an entire segment")

	// ErrInvalidKey is returned for a device key that cannot stand as a
	// single topic level.
	ErrInvalidKey = errors.New("topic: invalid device key")

	// ErrInvalidKeyIndex is returned when the key-extraction index is outside the filter.
	ErrInvalidKeyIndex = errors.New("topic: key index outside filter")
)
