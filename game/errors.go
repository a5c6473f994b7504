package game

import (
	"errors"
	"fmt"
)

// Conflict-style errors: an admin command is invalid for the current phase.
// The HTTP layer maps these to 409; no state is mutated when they occur.
var (
	ErrMatchOpen  = errors.New("a match is already open")
	ErrNoMatch    = errors.New("no current match")
	ErrWrongPhase = errors.New("operation not valid in current phase")
)

// ValidationError is a malformed redemption input. It is always resolved via
// the rejection path (attempted refund), never silently swallowed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err should surface as an HTTP conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrMatchOpen) || errors.Is(err, ErrNoMatch) || errors.Is(err, ErrWrongPhase)
}

// IsValidation reports whether err is a malformed-input rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
