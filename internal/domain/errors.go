package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")
)

// ValidationError reports caller-supplied data that violates a field or
// business constraint. It is always returned before any side effect occurs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for the given field.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InsufficientFundsError reports that an account balance is below the
// minimum required for a publish or transfer.
type InsufficientFundsError struct {
	Account   string
	Required  string
	Available string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %s needs %s, has %s",
		e.Account, e.Required, e.Available)
}

// NetworkError wraps a transport-level failure from an external port.
// Idempotent reads may be retried; writes must not be retried automatically.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network: %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError reports an external operation that exceeded its deadline.
// A timed-out operation is treated as failed, never silently retried.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %s", e.Op) }

// IsRetryable reports whether err is a transient transport failure that an
// idempotent read may retry with backoff.
func IsRetryable(err error) bool {
	var ne *NetworkError
	var te *TimeoutError
	return errors.As(err, &ne) || errors.As(err, &te)
}

// StateConflictError reports a lifecycle transition that is invalid for the
// entity's current state (bidding on a sold item, cancelling with bids, ...).
type StateConflictError struct {
	Entity string
	ID     string
	State  string
	Op     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict: cannot %s %s %s in state %q", e.Op, e.Entity, e.ID, e.State)
}

// IsStateConflict reports whether err is (or wraps) a StateConflictError.
func IsStateConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}

// IntegrityError reports that the recomputed hash of retrieved content does
// not match the expected hash. Treated as data corruption, never accepted.
type IntegrityError struct {
	ContentID string
	Expected  string
	Actual    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: content %s hash mismatch: expected %s, got %s",
		e.ContentID, e.Expected, e.Actual)
}
