package apartment

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxNumberLength = 10
	MaxLabelLength  = 100
)

// ValidateNumber checks that number can be used as a topic level.
func ValidateNumber(number string) error {
	n := utf8.RuneCountInString(number)
	if n == 0 {
		return fmt.Errorf("%w: number is required", ErrInvalidNumber)
	}
	if n > MaxNumberLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidNumber, number, MaxNumberLength)
	}
	if strings.ContainsAny(number, "/+#") {
		return fmt.Errorf("%w: %q contains a topic separator or wildcard", ErrInvalidNumber, number)
	}
	if strings.IndexFunc(number, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidNumber, number)
	}
	return nil
}

// Validate checks every field of a.
func Validate(a *Apartment) error {
	if err := ValidateNumber(a.Number); err != nil {
		return err
	}
	if utf8.RuneCountInString(a.Label) > MaxLabelLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidLabel, MaxLabelLength)
	}
	return nil
}
