package ledger

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedInstallment(repo *memoryLedgerRepo, obligationID int64, sequence int, amount float64, mode SettlementMode) *Installment {
	inst := &Installment{
		ObligationID:   obligationID,
		SequenceNumber: sequence,
		PaidAmount:     amount,
		DeclaredAmount: amount,
		Mode:           mode,
		CashAmount:     amount,
		Status:         InstallmentPaid,
	}
	if mode == ModeCheck {
		inst.CashAmount = 0
		inst.CheckAmount = amount
	}
	_, _ = repo.CreateInstallment(context.Background(), inst)
	return repo.installments[inst.ID]
}

func sequencesOf(repo *memoryLedgerRepo, obligationID int64) []int {
	var out []int
	for _, inst := range repo.installments {
		if inst.ObligationID == obligationID {
			out = append(out, inst.SequenceNumber)
		}
	}
	sort.Ints(out)
	return out
}

func TestDeleteLastEntryRemovesParent(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	parent := repo.addObligation(ParentObligation{ID: 1, OwnerID: 7, Kind: KindReceivable, TotalAmount: 500000})
	target := seedInstallment(repo, 1, 1, 500000, ModeCash)
	storedInstrument(repo, 1, target.ID, "0012345", 500000, 1)
	engine := NewCascadeEngine(testLogger())

	result, err := engine.Delete(ctx, repo, parent, target)

	require.NoError(t, err)
	require.True(t, result.ParentDeleted)
	require.Empty(t, repo.obligations)
	require.Empty(t, repo.installments)
	require.Empty(t, repo.instruments)
}

func TestDeleteSoleInstallmentKeepsParentWithAdvance(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	parent := repo.addObligation(ParentObligation{
		ID: 1, OwnerID: 7, Kind: KindReceivable, TotalAmount: 500000,
		AdvanceDeclared: 150000, AdvanceCash: 150000,
	})
	target := seedInstallment(repo, 1, 2, 100000, ModeCheck)
	storedInstrument(repo, 1, target.ID, "0012345", 100000, 2)
	engine := NewCascadeEngine(testLogger())

	result, err := engine.Delete(ctx, repo, parent, target)

	require.NoError(t, err)
	require.False(t, result.ParentDeleted)
	require.Equal(t, 0, result.RenumberedCount)
	// The advance keeps the obligation alive.
	require.Contains(t, repo.obligations, int64(1))
	require.Empty(t, repo.installments)
	require.Empty(t, repo.instruments)
}

func TestDeleteMiddleInstallmentRenumbers(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	parent := repo.addObligation(ParentObligation{ID: 1, OwnerID: 7, Kind: KindReceivable, TotalAmount: 900000})
	first := seedInstallment(repo, 1, 1, 100000, ModeCash)
	second := seedInstallment(repo, 1, 2, 200000, ModeCheck)
	third := seedInstallment(repo, 1, 3, 300000, ModeCheck)
	storedInstrument(repo, 1, second.ID, "0012345", 200000, 2)
	thirdCheck := storedInstrument(repo, 1, third.ID, "0012346", 300000, 3)
	engine := NewCascadeEngine(testLogger())

	result, err := engine.Delete(ctx, repo, parent, second)

	require.NoError(t, err)
	require.False(t, result.ParentDeleted)
	require.Equal(t, 1, result.RenumberedCount)
	require.Equal(t, []int{1, 2}, sequencesOf(repo, 1))
	require.Equal(t, 1, repo.installments[first.ID].SequenceNumber)
	require.Equal(t, 2, repo.installments[third.ID].SequenceNumber)

	// "paiement #3" in the shifted installment's check became "paiement #2",
	// and the deleted installment's check went with it.
	require.Contains(t, repo.instruments[thirdCheck.ID].Description, "paiement #2")
	require.Len(t, repo.instruments, 1)
}

func TestDeleteLastOfManyNoRenumbering(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	parent := repo.addObligation(ParentObligation{ID: 1, OwnerID: 7, Kind: KindReceivable, TotalAmount: 900000})
	seedInstallment(repo, 1, 1, 100000, ModeCash)
	last := seedInstallment(repo, 1, 2, 200000, ModeCheck)
	storedInstrument(repo, 1, last.ID, "0012345", 200000, 2)
	engine := NewCascadeEngine(testLogger())

	result, err := engine.Delete(ctx, repo, parent, last)

	require.NoError(t, err)
	require.False(t, result.ParentDeleted)
	require.Equal(t, 0, result.RenumberedCount)
	require.Equal(t, []int{1}, sequencesOf(repo, 1))
	require.Empty(t, repo.instruments)
}

func TestDeleteRemovesLegacyTaggedInstruments(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	parent := repo.addObligation(ParentObligation{ID: 1, OwnerID: 7, Kind: KindReceivable, TotalAmount: 900000})
	seedInstallment(repo, 1, 1, 100000, ModeCash)
	target := seedInstallment(repo, 1, 2, 200000, ModeCheck)

	// Legacy row: no installment FK, correlated only through the description.
	obligationID := int64(1)
	legacy := Instrument{
		ObligationID: &obligationID,
		Number:       "0099881",
		Amount:       200000,
		Status:       InstrumentIssued,
		Direction:    DirectionReceived,
		Description:  "LOT-A12 - paiement #2",
	}
	_, err := repo.CreateInstrument(ctx, &legacy)
	require.NoError(t, err)

	engine := NewCascadeEngine(testLogger())
	result, err := engine.Delete(ctx, repo, parent, target)

	require.NoError(t, err)
	require.False(t, result.ParentDeleted)
	require.Empty(t, repo.instruments)
}

func TestDeleteFirstSparesLongerLegacyTags(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	parent := repo.addObligation(ParentObligation{ID: 1, OwnerID: 7, Kind: KindReceivable, TotalAmount: 120000})
	var target *Installment
	for seq := 1; seq <= 12; seq++ {
		inst := seedInstallment(repo, 1, seq, 1000, ModeCheck)
		if seq == 1 {
			target = inst
		}
	}

	obligationID := int64(1)
	legacy := func(tag string) *Instrument {
		ins := Instrument{
			ObligationID: &obligationID,
			Number:       "0088" + tag,
			Amount:       1000,
			Status:       InstrumentIssued,
			Direction:    DirectionReceived,
			Description:  "LOT-B4 - " + tag,
		}
		_, err := repo.CreateInstrument(ctx, &ins)
		require.NoError(t, err)
		return repo.instruments[ins.ID]
	}
	legacy("paiement #1")
	tenth := legacy("paiement #10")
	twelfth := legacy("paiement #12")

	engine := NewCascadeEngine(testLogger())
	result, err := engine.Delete(ctx, repo, parent, target)

	require.NoError(t, err)
	require.False(t, result.ParentDeleted)
	require.Equal(t, 11, result.RenumberedCount)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, sequencesOf(repo, 1))

	// Only installment #1's legacy check went; #10 and #12 kept theirs and
	// were renumbered along with their installments.
	require.Len(t, repo.instruments, 2)
	require.Equal(t, "LOT-B4 - paiement #9", repo.instruments[tenth.ID].Description)
	require.Equal(t, "LOT-B4 - paiement #11", repo.instruments[twelfth.ID].Description)
}

func TestRenumberingLeavesLongerTagsIntact(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	parent := repo.addObligation(ParentObligation{ID: 1, OwnerID: 7, Kind: KindReceivable, TotalAmount: 210000})
	var target *Installment
	for seq := 1; seq <= 21; seq++ {
		inst := seedInstallment(repo, 1, seq, 1000, ModeCheck)
		if seq == 1 {
			target = inst
		}
	}

	obligationID := int64(1)
	legacy := Instrument{
		ObligationID: &obligationID,
		Number:       "0099021",
		Amount:       1000,
		Status:       InstrumentIssued,
		Direction:    DirectionReceived,
		Description:  "LOT-C7 - paiement #21",
	}
	_, err := repo.CreateInstrument(ctx, &legacy)
	require.NoError(t, err)

	engine := NewCascadeEngine(testLogger())
	result, err := engine.Delete(ctx, repo, parent, target)

	require.NoError(t, err)
	require.Equal(t, 20, result.RenumberedCount)

	// The #2 -> #1 rewrite must not touch "paiement #21"; only its own
	// #21 -> #20 step does.
	require.Equal(t, "LOT-C7 - paiement #20", repo.instruments[legacy.ID].Description)
}

func TestSequencesStayContiguousAcrossDeletes(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	parent := repo.addObligation(ParentObligation{ID: 1, OwnerID: 7, Kind: KindReceivable, TotalAmount: 10000})
	for seq := 1; seq <= 5; seq++ {
		seedInstallment(repo, 1, seq, 1000, ModeCash)
	}
	engine := NewCascadeEngine(testLogger())

	// Delete from the middle repeatedly; the range must never develop a gap.
	for want := 4; want >= 1; want-- {
		var target *Installment
		for _, inst := range repo.installments {
			if inst.SequenceNumber == 2 {
				target = inst
				break
			}
		}
		require.NotNil(t, target)
		_, err := engine.Delete(ctx, repo, parent, target)
		require.NoError(t, err)

		seqs := sequencesOf(repo, 1)
		require.Len(t, seqs, want)
		for i, s := range seqs {
			require.Equal(t, i+1, s)
		}
	}
}
