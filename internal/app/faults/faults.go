// Package faults defines the engine's error taxonomy. Validation and
// business-rule rejections are synchronous and surfaced to the caller;
// transient store errors are retryable with the same idempotency key;
// inconsistencies are fatal for the affected venture and always routed to an
// operator alert, never auto-corrected.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrVentureNotOpen rejects investment creation against a venture that
	// is not accepting investments.
	ErrVentureNotOpen = errors.New("venture is not open for investment")

	// ErrAmountOutOfBounds rejects an amount outside the venture's
	// per-investment range.
	ErrAmountOutOfBounds = errors.New("investment amount out of bounds")

	// ErrCapacityExceeded rejects an investment that would push funding past
	// the goal. Overshooting requests are rejected outright, never capped.
	ErrCapacityExceeded = errors.New("investment exceeds remaining capacity")

	// ErrInvalidTransition rejects a lifecycle edge outside the transition
	// table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound marks a missing venture, tier or investment.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by stores when a conditional funding
	// update lost a concurrent race; callers retry the read-compute-write
	// cycle.
	ErrVersionConflict = errors.New("funding version conflict")

	// ErrFundingHalted rejects funding updates for a venture frozen by a
	// previous inconsistency. Cleared only by operator action.
	ErrFundingHalted = errors.New("venture funding updates are halted")

	// ErrFundingIndeterminate reports a funding write whose outcome is
	// unknown: the store failed after the increment may have committed.
	// Callers must not re-apply the increment; redelivery resolves through
	// the duplicate-completion path.
	ErrFundingIndeterminate = errors.New("funding update outcome unknown")
)

// ValidationError reports a bad venture or investment parameter. It is not
// retryable without changing the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...interface{}) error {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// TransientError wraps a store or transport failure the caller may retry
// using the same idempotency key.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string { return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err) }
func (e TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable; a nil err yields nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is safely retryable.
func IsTransient(err error) bool {
	var t TransientError
	return errors.As(err, &t)
}

// InconsistencyError is fatal: an over-funding attempt or a completion for an
// already-cancelled investment. It halts automatic funding updates for the
// affected venture and requires operator intervention.
type InconsistencyError struct {
	VentureID    string
	InvestmentID string
	Reason       string
}

func (e InconsistencyError) Error() string {
	return fmt.Sprintf("inconsistency on venture %s (investment %s): %s",
		e.VentureID, e.InvestmentID, e.Reason)
}

// IsInconsistency reports whether err is a fatal inconsistency.
func IsInconsistency(err error) bool {
	var i InconsistencyError
	return errors.As(err, &i)
}
