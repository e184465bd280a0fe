package reading

import (
	"errors"
	"fmt"
)

// Decode errors. Use errors.Is to classify a failure.
var (
	// ErrMalformedPayload is returned when the payload is not a JSON object or
	// a required field is not a finite real number.
	ErrMalformedPayload = errors.New("reading: malformed payload")

	// ErrMissingField is matched by every *MissingFieldError.
	ErrMissingField = errors.New("reading: missing required field")
)

// MissingFieldError reports which required field was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("reading: missing required field %q", e.Field)
}

// Is makes errors.Is(err, ErrMissingField) true for any missing field.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}
