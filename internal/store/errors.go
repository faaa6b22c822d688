package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for the caller-recoverable failure modes. Callers should
// test with errors.Is; anything else coming out of this package is a
// persistence failure wrapped with %w.
var (
	// ErrNotFound is returned when a prediction, strategy, or anomaly id
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePeriod is returned when a checkpoint already exists for
	// the current period.
	ErrDuplicatePeriod = errors.New("checkpoint already exists for period")

	// ErrDuplicateName is returned when a strategy name is already registered.
	ErrDuplicateName = errors.New("strategy name already registered")

	// ErrAlreadyReconciled is returned when a prediction outcome has
	// already been recorded.
	ErrAlreadyReconciled = errors.New("prediction already reconciled")
)

// ValidationError reports malformed input rejected at the boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
