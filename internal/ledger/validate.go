package ledger

import (
	"fmt"
	"math"
)

// ValidateSettlement checks the settlement amount invariants before any
// write.
//
// For every installment, paid must equal declared plus undeclared within
// tolerance. The cash/check split must match the mode: cash and check settle
// fully on their side, cash_and_check needs both sides positive and summing
// to paid, transfer carries neither.
func ValidateSettlement(s SettlementInput) error {
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidMode, s.Mode)
	}
	if s.PaidAmount < 0 || s.CashAmount < 0 || s.CheckAmount < 0 || s.DeclaredAmount < 0 || s.UndeclaredAmount < 0 {
		return fmt.Errorf("%w: amounts must not be negative", ErrInvariantViolation)
	}
	if !withinTolerance(s.PaidAmount, s.DeclaredAmount+s.UndeclaredAmount) {
		return fmt.Errorf("%w: declared %.2f + undeclared %.2f does not equal paid %.2f",
			ErrInvariantViolation, s.DeclaredAmount, s.UndeclaredAmount, s.PaidAmount)
	}

	switch s.Mode {
	case ModeCash:
		if s.CheckAmount > AmountTolerance {
			return fmt.Errorf("%w: cash mode cannot carry a check amount", ErrInvalidMode)
		}
		if !withinTolerance(s.CashAmount, s.PaidAmount) {
			return fmt.Errorf("%w: cash %.2f does not equal paid %.2f", ErrInvariantViolation, s.CashAmount, s.PaidAmount)
		}
	case ModeCheck:
		if s.CashAmount > AmountTolerance {
			return fmt.Errorf("%w: check mode cannot carry a cash amount", ErrInvalidMode)
		}
		if !withinTolerance(s.CheckAmount, s.PaidAmount) {
			return fmt.Errorf("%w: check %.2f does not equal paid %.2f", ErrInvariantViolation, s.CheckAmount, s.PaidAmount)
		}
	case ModeCashAndCheck:
		if s.CashAmount <= AmountTolerance || s.CheckAmount <= AmountTolerance {
			return fmt.Errorf("%w: cash_and_check mode needs both a cash and a check amount", ErrInvalidMode)
		}
		if !withinTolerance(s.CashAmount+s.CheckAmount, s.PaidAmount) {
			return fmt.Errorf("%w: cash %.2f + check %.2f does not equal paid %.2f",
				ErrInvariantViolation, s.CashAmount, s.CheckAmount, s.PaidAmount)
		}
	case ModeTransfer:
		if s.CashAmount > AmountTolerance || s.CheckAmount > AmountTolerance {
			return fmt.Errorf("%w: transfer mode carries neither cash nor check amounts", ErrInvalidMode)
		}
	}

	return nil
}

func withinTolerance(a, b float64) bool {
	return math.Abs(a-b) <= AmountTolerance
}
