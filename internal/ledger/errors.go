package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the obligation, installment or instrument does
	// not exist or is not owned by the caller.
	ErrNotFound = errors.New("ledger: not found")
	// ErrInvariantViolation indicates the declared/undeclared or cash/check
	// split does not add up to the paid amount within tolerance.
	ErrInvariantViolation = errors.New("ledger: amount invariant violated")
	// ErrInvalidMode indicates the settlement mode is unknown or incompatible
	// with the cash/check split supplied.
	ErrInvalidMode = errors.New("ledger: settlement mode incompatible with amounts")
	// ErrImmutableVirtual indicates a mutation targeted the synthesized
	// advance entry.
	ErrImmutableVirtual = errors.New("ledger: the advance entry is synthesized and cannot be modified")
	// ErrConcurrencyConflict indicates a sequence number race with a
	// concurrent writer; the operation is safe to retry.
	ErrConcurrencyConflict = errors.New("ledger: concurrent write conflict, retry")
)

// AmountExceedsRemainingError rejects a paid amount above the obligation's
// remaining balance, carrying the concrete legal bound for the caller.
type AmountExceedsRemainingError struct {
	Limit       float64
	AlreadyPaid float64
}

func (e *AmountExceedsRemainingError) Error() string {
	return fmt.Sprintf("ledger: amount cannot exceed %.2f given %.2f already paid", e.Limit, e.AlreadyPaid)
}

// Unwrap classifies the bound as an invariant violation.
func (e *AmountExceedsRemainingError) Unwrap() error { return ErrInvariantViolation }

// ReconciliationFailure records one tolerated instrument operation failure
// during a reconcile pass. The surrounding installment write still commits.
type ReconciliationFailure struct {
	InstrumentID int64  `json:"instrument_id,omitempty"`
	Op           string `json:"op"`
	Reason       string `json:"reason"`
}
