package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func storedInstrument(repo *memoryLedgerRepo, obligationID, installmentID int64, number string, amount float64, sequence int) Instrument {
	ins := Instrument{
		ObligationID:  &obligationID,
		InstallmentID: &installmentID,
		Number:        number,
		Amount:        amount,
		Status:        InstrumentIssued,
		Direction:     DirectionReceived,
		Description:   ensureCorrelationTag("", sequence),
	}
	_, _ = repo.CreateInstrument(context.Background(), &ins)
	return ins
}

func TestReconcileCreatesInstruments(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	rc := NewReconciler(testLogger())

	parent := &ParentObligation{ID: 1, Kind: KindPayable}
	inst := &Installment{ID: 10, ObligationID: 1, SequenceNumber: 2}

	result, failures := rc.Reconcile(ctx, repo, parent, inst, nil, []InstrumentInput{
		{Number: "0012345", PayeeName: "BTP Atlas Sud", Amount: 40000},
		{Number: "0012346", PayeeName: "BTP Atlas Sud", Amount: 20000},
	})

	require.Empty(t, failures)
	require.Len(t, result, 2)
	require.Len(t, repo.instruments, 2)
	for _, ins := range result {
		require.Equal(t, DirectionGiven, ins.Direction)
		require.Equal(t, int64(1), *ins.ObligationID)
		require.Equal(t, int64(10), *ins.InstallmentID)
		require.Contains(t, ins.Description, "paiement #2")
	}
}

func TestReconcileOverwritesById(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	rc := NewReconciler(testLogger())

	parent := &ParentObligation{ID: 1, Kind: KindReceivable}
	inst := &Installment{ID: 10, ObligationID: 1, SequenceNumber: 1}
	first := storedInstrument(repo, 1, 10, "0012345", 40000, 1)
	second := storedInstrument(repo, 1, 10, "0012346", 20000, 1)

	// Submitting in reverse order must still hit each row by id.
	result, failures := rc.Reconcile(ctx, repo, parent, inst, []Instrument{first, second}, []InstrumentInput{
		{ID: second.ID, Number: "0012346", Amount: 25000},
		{ID: first.ID, Number: "0012345", Amount: 35000},
	})

	require.Empty(t, failures)
	require.Len(t, result, 2)
	require.InDelta(t, 35000, repo.instruments[first.ID].Amount, AmountTolerance)
	require.InDelta(t, 25000, repo.instruments[second.ID].Amount, AmountTolerance)
}

func TestReconcileDeletesOmitted(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	rc := NewReconciler(testLogger())

	parent := &ParentObligation{ID: 1, Kind: KindReceivable}
	inst := &Installment{ID: 10, ObligationID: 1, SequenceNumber: 1}
	first := storedInstrument(repo, 1, 10, "0012345", 40000, 1)
	second := storedInstrument(repo, 1, 10, "0012346", 20000, 1)

	result, failures := rc.Reconcile(ctx, repo, parent, inst, []Instrument{first, second}, []InstrumentInput{
		{ID: first.ID, Number: "0012345", Amount: 60000},
	})

	require.Empty(t, failures)
	require.Len(t, result, 1)
	require.Len(t, repo.instruments, 1)
	require.InDelta(t, 60000, repo.instruments[first.ID].Amount, AmountTolerance)
}

func TestReconcileReportsUnknownID(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	rc := NewReconciler(testLogger())

	parent := &ParentObligation{ID: 1, Kind: KindReceivable}
	inst := &Installment{ID: 10, ObligationID: 1, SequenceNumber: 1}

	result, failures := rc.Reconcile(ctx, repo, parent, inst, nil, []InstrumentInput{
		{ID: 999, Number: "0012345", Amount: 40000},
		{Number: "0012346", Amount: 20000},
	})

	// The bad entry is reported, the good one still lands.
	require.Len(t, failures, 1)
	require.Equal(t, int64(999), failures[0].InstrumentID)
	require.Equal(t, "update", failures[0].Op)
	require.Len(t, result, 1)
	require.Len(t, repo.instruments, 1)
}

func TestReconcileIsBestEffort(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	rc := NewReconciler(testLogger())

	parent := &ParentObligation{ID: 1, Kind: KindReceivable}
	inst := &Installment{ID: 10, ObligationID: 1, SequenceNumber: 1}
	first := storedInstrument(repo, 1, 10, "0012345", 40000, 1)
	second := storedInstrument(repo, 1, 10, "0012346", 20000, 1)
	repo.failDeleteInstrument[second.ID] = true

	result, failures := rc.Reconcile(ctx, repo, parent, inst, []Instrument{first, second}, []InstrumentInput{
		{ID: first.ID, Number: "0012345", Amount: 60000},
	})

	require.Len(t, failures, 1)
	require.Equal(t, "delete", failures[0].Op)
	// The surviving row is still reported as part of the set.
	require.Len(t, result, 2)
	require.InDelta(t, 60000, repo.instruments[first.ID].Amount, AmountTolerance)
}

func TestEnsureCorrelationTag(t *testing.T) {
	require.Equal(t, "paiement #3", ensureCorrelationTag("", 3))
	require.Equal(t, "LOT-A12 - paiement #3", ensureCorrelationTag("LOT-A12", 3))
	require.Equal(t, "LOT-A12 - paiement #3", ensureCorrelationTag("LOT-A12 - paiement #3", 3))
	// A longer sequence sharing the prefix does not count as the tag.
	require.Equal(t, "LOT-A12 - paiement #12 - paiement #1", ensureCorrelationTag("LOT-A12 - paiement #12", 1))
}

func TestContainsCorrelationTag(t *testing.T) {
	require.True(t, ContainsCorrelationTag("paiement #1", 1))
	require.True(t, ContainsCorrelationTag("LOT-A12 - paiement #1 (solde)", 1))
	require.True(t, ContainsCorrelationTag("paiement #12 et paiement #1", 1))
	require.False(t, ContainsCorrelationTag("paiement #10", 1))
	require.False(t, ContainsCorrelationTag("paiement #12", 1))
	require.False(t, ContainsCorrelationTag("LOT-A12", 1))
	require.True(t, ContainsCorrelationTag("paiement #10", 10))
}
