package ledger

import (
	"context"
	"log/slog"
)

// CascadeEngine owns the deletion policy for installments.
//
// Deleting the last settlement event of an obligation that carries no
// advance removes the obligation itself together with every instrument tied
// to it. Otherwise only the target goes: every higher installment is shifted
// down by one and the "paiement #N" correlation inside instrument
// descriptions is rewritten to match, so sequence numbers stay contiguous
// after any successful delete.
type CascadeEngine struct {
	logger *slog.Logger
}

// NewCascadeEngine constructs a CascadeEngine.
func NewCascadeEngine(logger *slog.Logger) *CascadeEngine {
	return &CascadeEngine{logger: logger}
}

// Delete applies the two-branch policy inside the caller's transaction.
// The virtual advance never counts towards the installment total.
func (e *CascadeEngine) Delete(ctx context.Context, tx TxRepository, parent *ParentObligation, target *Installment) (DeleteResult, error) {
	count, err := tx.CountInstallments(ctx, parent.ID)
	if err != nil {
		return DeleteResult{}, err
	}

	// The obligation goes away only when nothing would remain at all: an
	// advance still on record keeps the parent alive after its last
	// persisted installment is removed.
	if count <= 1 && parent.AdvanceTotal() <= AmountTolerance {
		return e.deleteParent(ctx, tx, parent, target)
	}
	return e.deleteAndRenumber(ctx, tx, parent, target)
}

func (e *CascadeEngine) deleteParent(ctx context.Context, tx TxRepository, parent *ParentObligation, target *Installment) (DeleteResult, error) {
	if err := tx.DeleteInstrumentsForInstallment(ctx, parent.ID, target.ID, target.SequenceNumber); err != nil {
		return DeleteResult{}, err
	}
	if err := tx.DeleteInstallment(ctx, target.ID); err != nil {
		return DeleteResult{}, err
	}
	if err := tx.DeleteInstrumentsForObligation(ctx, parent.ID); err != nil {
		return DeleteResult{}, err
	}
	if err := tx.DeleteObligation(ctx, parent.ID); err != nil {
		return DeleteResult{}, err
	}
	if e.logger != nil {
		e.logger.Info("obligation deleted with its last installment",
			slog.Int64("obligation_id", parent.ID), slog.Int64("installment_id", target.ID))
	}
	return DeleteResult{ParentDeleted: true}, nil
}

func (e *CascadeEngine) deleteAndRenumber(ctx context.Context, tx TxRepository, parent *ParentObligation, target *Installment) (DeleteResult, error) {
	if err := tx.DeleteInstrumentsForInstallment(ctx, parent.ID, target.ID, target.SequenceNumber); err != nil {
		return DeleteResult{}, err
	}
	if err := tx.DeleteInstallment(ctx, target.ID); err != nil {
		return DeleteResult{}, err
	}

	remaining, err := tx.ListInstallments(ctx, parent.ID)
	if err != nil {
		return DeleteResult{}, err
	}

	renumbered := 0
	for i := range remaining {
		inst := &remaining[i]
		if inst.SequenceNumber <= target.SequenceNumber {
			continue
		}
		oldSeq := inst.SequenceNumber
		newSeq := oldSeq - 1
		if err := tx.UpdateSequence(ctx, inst.ID, newSeq); err != nil {
			return DeleteResult{}, err
		}
		if err := tx.RewriteInstrumentTag(ctx, parent.ID, oldSeq, newSeq); err != nil {
			return DeleteResult{}, err
		}
		renumbered++
	}

	if e.logger != nil && renumbered > 0 {
		e.logger.Info("installments renumbered after delete",
			slog.Int64("obligation_id", parent.ID), slog.Int("renumbered", renumbered))
	}
	return DeleteResult{ParentDeleted: false, RenumberedCount: renumbered}, nil
}
