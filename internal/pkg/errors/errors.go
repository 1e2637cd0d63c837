package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources. A room whose
	// schedule or lesson plan cannot be resolved wraps this: scoring is
	// meaningless without one and callers must surface the miss.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError marks a telemetry record that failed normalization. It is
// never fatal to a batch; the reason travels with the record onto the error
// stream.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil || e.Reason == "" {
		return "invalid telemetry"
	}
	return fmt.Sprintf("invalid telemetry: %s", e.Reason)
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
