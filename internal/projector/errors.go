package projector

import (
	"errors"
	"fmt"

	"poolindexer/internal/model"
	"poolindexer/internal/store"
)

// Code classifies an Apply failure.
type Code string

const (
	// CodeInvalid: the payload failed validation. Never retried.
	CodeInvalid Code = "invalid"
	// CodeNotFound: a mutating event referenced an unknown pool. Reported,
	// not retried.
	CodeNotFound Code = "not_found"
	// CodeStoreUnavailable: the store call failed and may succeed on retry.
	CodeStoreUnavailable Code = "store_unavailable"
)

// Error is returned by Apply. It matches the model sentinel for its Code
// under errors.Is.
type Error struct {
	Code   Code
	Kind   model.Kind
	PoolID uint64
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("apply %s pool=%d: %s", e.Kind, e.PoolID, e.Code)
	}
	return fmt.Sprintf("apply %s pool=%d: %s: %v", e.Kind, e.PoolID, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch e.Code {
	case CodeInvalid:
		return target == model.ErrInvalidEvent
	case CodeNotFound:
		return target == model.ErrPoolNotFound
	case CodeStoreUnavailable:
		return target == model.ErrStoreUnavailable
	}
	return false
}

// storeCode classifies a failed store call. Values the store rejects outright
// are invalid; anything else may pass on retry.
func storeCode(err error) Code {
	if errors.Is(err, store.ErrRejected) {
		return CodeInvalid
	}
	return CodeStoreUnavailable
}

// Retryable reports whether err is a transient Apply failure.
func Retryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == CodeStoreUnavailable
	}
	return false
}
