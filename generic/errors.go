/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Client errors - InvalidInput, InsufficientBalance, InvalidState
  2. Conflicts - DuplicatePendingRequest, DuplicateIdempotencyKey
  3. Lookups - NotFound (callers decide if absence is valid)

GUARANTEES:
  Every error is raised before any write. An InsufficientBalance error
  means no ledger transaction was appended.

USAGE:
  if errors.Is(err, generic.ErrInsufficientBalance) {
      var ib *generic.InsufficientBalanceError
      errors.As(err, &ib)
      // ib.Available, ib.Requested
  }

SEE ALSO:
  - ledger.go: Uses these errors
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed or out-of-range input.
	// Always caller-correctable; never retried automatically.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientBalance is returned when consumption exceeds the remaining balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicatePendingRequest is returned when an employee already has a
	// pending leave request for the month.
	ErrDuplicatePendingRequest = errors.New("duplicate pending request")

	// ErrNotFound is returned when a record or slip does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned for a transition out of a terminal state.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrUnclassifiedDay is returned when an absence day cannot be assigned to
	// exactly one bucket. Indicates a bug in a resolution policy.
	ErrUnclassifiedDay = errors.New("absence day not classified")

	// ErrConcurrentModification is returned when a compare-and-swap update lost the race.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EntityID     EntityID
	ResourceType ResourceType
	Available    Amount
	Requested    Amount
}

func (e *InsufficientBalanceError) Error() string {
	resource := "total"
	if e.ResourceType != nil {
		resource = e.ResourceType.ResourceID()
	}
	return fmt.Sprintf("insufficient %s balance for %s: available %v, requested %v",
		resource, e.EntityID, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// InvalidStateError reports a rejected transition.
type InvalidStateError struct {
	ID      string
	Current string
	Action  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s: status is %s", e.Action, e.ID, e.Current)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// NotFoundError names what was missing.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input or a
// business rule the caller must resolve.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidState)
}

// IsConflict returns true for uniqueness and idempotency violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicatePendingRequest) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
