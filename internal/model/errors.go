package model

import (
	"errors"
	"fmt"
)

// Sentinel errors, compared with errors.Is.
var (
	// ErrInvalidEvent marks a malformed event payload. Never retried.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrPoolNotFound is returned when a mutating event references a pool
	// that has not been created.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrStoreUnavailable wraps transient aggregate store failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSource wraps event source transport failures.
	ErrSource = errors.New("event source failure")
)

// InvalidEventError describes which field of an event failed validation.
type InvalidEventError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s event: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s event: %s: %s", e.Kind, e.Field, e.Reason)
}

// Is reports ErrInvalidEvent as the error's category.
func (e *InvalidEventError) Is(target error) bool {
	return target == ErrInvalidEvent
}
