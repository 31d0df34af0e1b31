package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeTotalsSynthesizesVirtualAdvance(t *testing.T) {
	parent := &ParentObligation{
		ID:                1,
		TotalAmount:       500000,
		AdvanceDeclared:   100000,
		AdvanceUndeclared: 50000,
		AdvanceCash:       150000,
	}

	totals := ComputeTotals(parent, nil)

	require.Len(t, totals.Entries, 1)
	virtual, ok := totals.Entries[0].(*VirtualAdvance)
	require.True(t, ok)
	require.Equal(t, 1, virtual.Sequence())
	require.InDelta(t, 150000, virtual.PaidAmount, AmountTolerance)
	require.InDelta(t, 100000, virtual.DeclaredAmount, AmountTolerance)
	require.InDelta(t, 50000, virtual.UndeclaredAmount, AmountTolerance)
	require.Equal(t, ModeCash, virtual.Mode)

	require.InDelta(t, 150000, totals.TotalPaid, AmountTolerance)
	require.InDelta(t, 350000, totals.RemainingAmount, AmountTolerance)
	require.InDelta(t, 30, totals.Percentage, 0.001)
}

func TestComputeTotalsMergesInstallments(t *testing.T) {
	parent := &ParentObligation{
		ID:                1,
		TotalAmount:       500000,
		AdvanceDeclared:   100000,
		AdvanceUndeclared: 50000,
		AdvanceCash:       150000,
	}
	installments := []Installment{
		{ID: 10, ObligationID: 1, SequenceNumber: 2, PaidAmount: 100000, DeclaredAmount: 100000, Mode: ModeCash, CashAmount: 100000},
	}

	totals := ComputeTotals(parent, installments)

	require.Len(t, totals.Entries, 2)
	_, virtualFirst := totals.Entries[0].(*VirtualAdvance)
	require.True(t, virtualFirst)
	require.InDelta(t, 250000, totals.TotalPaid, AmountTolerance)
	require.InDelta(t, 250000, totals.RemainingAmount, AmountTolerance)
	require.InDelta(t, 50, totals.Percentage, 0.001)
}

func TestComputeTotalsAdvanceAlreadyRepresented(t *testing.T) {
	parent := &ParentObligation{
		ID:              1,
		TotalAmount:     500000,
		AdvanceDeclared: 150000,
		AdvanceCash:     150000,
	}
	installments := []Installment{
		{ID: 10, ObligationID: 1, SequenceNumber: 1, RepresentsAdvance: true, PaidAmount: 150000, DeclaredAmount: 150000, Mode: ModeCash, CashAmount: 150000},
	}

	totals := ComputeTotals(parent, installments)

	// The advance must never be counted twice.
	require.Len(t, totals.Entries, 1)
	_, isVirtual := totals.Entries[0].(*VirtualAdvance)
	require.False(t, isVirtual)
	require.InDelta(t, 150000, totals.TotalPaid, AmountTolerance)
}

func TestComputeTotalsNoAdvance(t *testing.T) {
	parent := &ParentObligation{ID: 1, TotalAmount: 1000}

	totals := ComputeTotals(parent, nil)

	require.Empty(t, totals.Entries)
	require.InDelta(t, 0, totals.TotalPaid, AmountTolerance)
	require.InDelta(t, 1000, totals.RemainingAmount, AmountTolerance)
	require.InDelta(t, 0, totals.Percentage, 0.001)
}

func TestComputeTotalsIsPure(t *testing.T) {
	parent := &ParentObligation{
		ID:              1,
		TotalAmount:     500000,
		AdvanceDeclared: 150000,
		AdvanceCash:     150000,
	}
	installments := []Installment{
		{ID: 10, ObligationID: 1, SequenceNumber: 3, PaidAmount: 50000, DeclaredAmount: 50000, Mode: ModeCash, CashAmount: 50000},
		{ID: 11, ObligationID: 1, SequenceNumber: 2, PaidAmount: 100000, DeclaredAmount: 100000, Mode: ModeCash, CashAmount: 100000},
	}

	first := ComputeTotals(parent, installments)
	second := ComputeTotals(parent, installments)

	require.Equal(t, first.TotalPaid, second.TotalPaid)
	require.Equal(t, first.RemainingAmount, second.RemainingAmount)
	require.Equal(t, first.Percentage, second.Percentage)
	require.Len(t, second.Entries, len(first.Entries))

	// Inputs come back untouched, including the slice order.
	require.Equal(t, 3, installments[0].SequenceNumber)
	require.Equal(t, 2, installments[1].SequenceNumber)
	require.InDelta(t, 150000, parent.AdvanceDeclared, AmountTolerance)

	// Entries are ordered by sequence with the virtual advance first.
	require.Equal(t, 1, first.Entries[0].Sequence())
	require.Equal(t, 2, first.Entries[1].Sequence())
	require.Equal(t, 3, first.Entries[2].Sequence())
}

func TestComputeTotalsCapsPercentage(t *testing.T) {
	parent := &ParentObligation{ID: 1, TotalAmount: 1000}
	installments := []Installment{
		{ID: 10, ObligationID: 1, SequenceNumber: 1, PaidAmount: 1500, DeclaredAmount: 1500, Mode: ModeCash, CashAmount: 1500},
	}

	totals := ComputeTotals(parent, installments)

	require.InDelta(t, 100, totals.Percentage, 0.001)
	require.InDelta(t, 0, totals.RemainingAmount, AmountTolerance)
}

func TestAggregatesFrom(t *testing.T) {
	open := AggregatesFrom(Totals{TotalDue: 1000, TotalPaid: 0, RemainingAmount: 1000})
	require.Equal(t, ObligationOpen, open.Status)

	partial := AggregatesFrom(Totals{TotalDue: 1000, TotalPaid: 400, RemainingAmount: 600})
	require.Equal(t, ObligationPartial, partial.Status)

	settled := AggregatesFrom(Totals{TotalDue: 1000, TotalPaid: 1000, RemainingAmount: 0})
	require.Equal(t, ObligationSettled, settled.Status)
}
