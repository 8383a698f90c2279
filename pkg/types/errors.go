package types

import (
	"errors"
	"fmt"
)

// Domain errors shared by the search components
var (
	ErrValidation          = errors.New("validation failed")
	ErrIndexUnavailable    = errors.New("index unavailable")
	ErrStaleEntry          = errors.New("stale index entry")
	ErrInvalidFreelancerID = errors.New("freelancer id must be positive")
)

// ValidationError reports a malformed request parameter. It is surfaced to the
// caller as a request error and never retried.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IndexUnavailableError means a component (embedding backend, vector file)
// could not be reached or loaded.
type IndexUnavailableError struct {
	Component string
	Err       error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Component, e.Err)
}

// Is makes errors.Is(err, ErrIndexUnavailable) hold for every IndexUnavailableError.
func (e *IndexUnavailableError) Is(target error) bool { return target == ErrIndexUnavailable }

func (e *IndexUnavailableError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
