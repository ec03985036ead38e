// Package faults defines the error taxonomy shared by the warden services.
// Using typed errors and sentinel variables allows callers to reliably detect
// conditions via errors.Is/As instead of brittle string comparisons.
package faults

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable indicates that the backing store has not been
// provisioned. Write operations surface it to the caller; read operations
// degrade to empty results instead.
var ErrStorageUnavailable = errors.New("storage is not provisioned")

// ValidationError reports a missing or malformed required field. It is
// always surfaced to the caller and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%v: %v", e.Field, e.Message)
}

// NewValidation creates a ValidationError for the supplied field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}
