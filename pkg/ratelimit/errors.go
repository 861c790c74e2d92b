package ratelimit

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable is the sentinel for shared store failures.
//
// It is internal to the layer: callers apply the fail-open policy and
// never surface it to end users as a distinct error.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// StoreError wraps a shared store failure with the operation that
// failed. It unwraps to ErrStoreUnavailable so callers can branch on
// the sentinel without losing the cause.
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("rate limit store %s: %v", e.Op, e.Err)
}

// Unwrap returns ErrStoreUnavailable so errors.Is matches the sentinel.
func (e *StoreError) Unwrap() error {
	return ErrStoreUnavailable
}

// Cause returns the underlying store error.
func (e *StoreError) Cause() error {
	return e.Err
}

func newStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}
