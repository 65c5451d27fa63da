package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found or is no
	// longer active.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a concurrent writer got there first, e.g. a
	// duplicate active-cart insert. Callers are expected to absorb it by
	// re-reading rather than surfacing it.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports a malformed or out-of-range input field. It is
// always raised before any storage access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Invalid builds a field-level ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
