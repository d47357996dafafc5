/*
errors.go - Centralized error types for the balance engine

ERROR CATEGORIES:
  1. Invariant violations - caller broke the engine's contract
  2. Missing period row - cascade asked to run where no row exists
  3. Engine failure - a storage read/write failed mid-mutation
  4. Consistency assertion - post-cascade sanity check failed

Every failure aborts the enclosing transaction; the engine never
partially commits. Retry policy belongs to the calling layer.
*/
package balance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvariantViolation is returned when a mutation breaks the engine's
	// dispatch contract (wrong snapshots for the kind, account_changed with
	// equal accounts, update with no balance-relevant change).
	ErrInvariantViolation = errors.New("mutation invariant violation")

	// ErrMissingPeriodRow is returned when a cascade that was told history
	// is affected finds no period rows to recompute. This is a programming
	// contract error, not a recoverable condition.
	ErrMissingPeriodRow = errors.New("missing period balance row")

	// ErrEngineFailure wraps any storage failure during a mutation. The
	// enclosing transaction is rolled back; no partial cascade persists.
	ErrEngineFailure = errors.New("balance engine failure")

	// ErrConsistencyAssertion indicates the period row chain failed a
	// post-cascade sanity check (overlap, gap inside the recomputed range,
	// or a span that is not one calendar month). It signals a logic bug.
	ErrConsistencyAssertion = errors.New("period balance consistency assertion failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvariantError carries the reason a mutation was rejected before any
// write occurred.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Reason
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

func invariant(reason string) error {
	return &InvariantError{Reason: reason}
}

// EngineError wraps a storage failure with the operation that hit it.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngineFailure }

func engineErr(op string, err error) error {
	return &EngineError{Op: op, Err: err}
}

// IsClientError returns true if the error is due to invalid caller input
// rather than a storage or logic failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
