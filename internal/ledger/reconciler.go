package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// CorrelationTag is the legacy textual correlation between an instrument
// description and an installment. Historical sale-side records rely on it, so
// it is written on every new instrument and rewritten on renumbering.
func CorrelationTag(sequence int) string {
	return fmt.Sprintf("paiement #%d", sequence)
}

// ContainsCorrelationTag reports whether description carries the tag of
// exactly this sequence. An occurrence followed by a digit belongs to a
// longer sequence number ("paiement #12" does not carry "paiement #1").
func ContainsCorrelationTag(description string, sequence int) bool {
	tag := CorrelationTag(sequence)
	for start := 0; ; {
		i := strings.Index(description[start:], tag)
		if i < 0 {
			return false
		}
		end := start + i + len(tag)
		if end == len(description) || description[end] < '0' || description[end] > '9' {
			return true
		}
		start = start + i + 1
	}
}

func ensureCorrelationTag(description string, sequence int) string {
	if ContainsCorrelationTag(description, sequence) {
		return description
	}
	if description == "" {
		return CorrelationTag(sequence)
	}
	return description + " - " + CorrelationTag(sequence)
}

// Reconciler keeps an installment's instrument set consistent with a
// caller-submitted list.
//
// Diffing is id-based: submitted entries carrying the id of a persisted
// instrument overwrite it, entries without an id are created, and persisted
// instruments absent from the submission are deleted. Every sub-operation is
// best-effort: a single bad check record must never block recording that
// money changed hands, so failures are logged, collected and skipped.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(logger *slog.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile applies the submitted instrument list against the persisted set
// of one installment inside the caller's transaction. It returns the
// resulting instrument set and the tolerated per-instrument failures.
func (rc *Reconciler) Reconcile(
	ctx context.Context,
	tx TxRepository,
	parent *ParentObligation,
	inst *Installment,
	existing []Instrument,
	submitted []InstrumentInput,
) ([]Instrument, []ReconciliationFailure) {
	var failures []ReconciliationFailure

	existingByID := make(map[int64]*Instrument, len(existing))
	for i := range existing {
		existingByID[existing[i].ID] = &existing[i]
	}

	submittedIDs := make(map[int64]struct{}, len(submitted))
	var result []Instrument

	for _, in := range submitted {
		if in.ID > 0 {
			submittedIDs[in.ID] = struct{}{}
			current, ok := existingByID[in.ID]
			if !ok {
				failures = rc.fail(failures, in.ID, "update", fmt.Errorf("%w: instrument %d does not belong to installment %d", ErrNotFound, in.ID, inst.ID))
				continue
			}
			updated := *current
			applyInstrumentInput(&updated, in, inst.SequenceNumber)
			if err := tx.UpdateInstrument(ctx, &updated); err != nil {
				failures = rc.fail(failures, in.ID, "update", err)
				result = append(result, *current)
				continue
			}
			result = append(result, updated)
			continue
		}

		created := Instrument{
			ObligationID:  &parent.ID,
			InstallmentID: &inst.ID,
			Direction:     DirectionForKind(parent.Kind),
		}
		applyInstrumentInput(&created, in, inst.SequenceNumber)
		if _, err := tx.CreateInstrument(ctx, &created); err != nil {
			failures = rc.fail(failures, 0, "create", err)
			continue
		}
		result = append(result, created)
	}

	for i := range existing {
		if _, keep := submittedIDs[existing[i].ID]; keep {
			continue
		}
		if err := tx.DeleteInstrument(ctx, existing[i].ID); err != nil {
			failures = rc.fail(failures, existing[i].ID, "delete", err)
			result = append(result, existing[i])
		}
	}

	return result, failures
}

func applyInstrumentInput(dst *Instrument, in InstrumentInput, sequence int) {
	dst.Number = in.Number
	dst.PayerName = in.PayerName
	dst.PayeeName = in.PayeeName
	dst.IssueDate = in.IssueDate
	dst.ClearanceDate = in.ClearanceDate
	dst.Amount = in.Amount
	dst.Status = in.Status
	if dst.Status == "" {
		dst.Status = InstrumentIssued
	}
	dst.Description = ensureCorrelationTag(in.Description, sequence)
}

func (rc *Reconciler) fail(failures []ReconciliationFailure, id int64, op string, err error) []ReconciliationFailure {
	if rc.logger != nil {
		rc.logger.Warn("instrument reconciliation step failed",
			slog.String("op", op), slog.Int64("instrument_id", id), slog.Any("error", err))
	}
	return append(failures, ReconciliationFailure{InstrumentID: id, Op: op, Reason: err.Error()})
}
