package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/atlas-promo/atlas-promo/internal/shared"
)

// Auditor records ledger mutations into the audit trail.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the public surface of the installment ledger. Every mutation
// runs as one atomic transaction spanning the installment write, the parent
// aggregate recompute and the instrument reconciliation; the only tolerated
// partial outcome is a reconciliation failure list on an otherwise committed
// write.
type Service struct {
	repo       RepositoryPort
	reconciler *Reconciler
	cascade    *CascadeEngine
	cache      *ViewCache
	audit      Auditor
	logger     *slog.Logger
}

// NewService builds a Service instance. Cache and auditor may be nil.
func NewService(repo RepositoryPort, reconciler *Reconciler, cascade *CascadeEngine, cache *ViewCache, audit Auditor, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		reconciler: reconciler,
		cascade:    cascade,
		cache:      cache,
		audit:      audit,
		logger:     logger,
	}
}

// CreateInstallmentInput registers one settlement event.
type CreateInstallmentInput struct {
	Kind         ObligationKind
	ObligationID int64
	OwnerID      int64
	ActorID      int64
	Settlement   SettlementInput
	Instruments  []InstrumentInput
}

// UpdateInstallmentInput overwrites one installment's settlement data.
type UpdateInstallmentInput struct {
	InstallmentID int64
	OwnerID       int64
	ActorID       int64
	Settlement    SettlementInput
	Instruments   []InstrumentInput
}

// DeleteInstallmentInput removes one installment.
type DeleteInstallmentInput struct {
	InstallmentID int64
	OwnerID       int64
	ActorID       int64
}

// CreateInstallment verifies ownership and invariants, assigns the next
// sequence number, persists the installment, reconciles instruments for
// check-bearing modes and recomputes the parent aggregates.
func (s *Service) CreateInstallment(ctx context.Context, in CreateInstallmentInput) (*InstallmentResult, error) {
	if err := ValidateSettlement(in.Settlement); err != nil {
		return nil, err
	}

	result := &InstallmentResult{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		parent, err := tx.GetObligation(ctx, in.ObligationID, in.OwnerID)
		if err != nil {
			return err
		}
		if in.Kind != "" && parent.Kind != in.Kind {
			return ErrNotFound
		}

		existing, err := tx.ListInstallments(ctx, parent.ID)
		if err != nil {
			return err
		}

		totals := ComputeTotals(parent, existing)
		limit := totals.RemainingAmount
		alreadyPaid := totals.TotalPaid
		// Sequences continue the enriched view: with a virtual advance
		// holding slot 1, the first persisted installment is #2.
		sequence := len(totals.Entries) + 1

		if in.Settlement.RepresentsAdvance {
			if advanceRepresented(existing) {
				return fmt.Errorf("%w: another installment already represents the advance", ErrInvariantViolation)
			}
			if len(existing) > 0 {
				return fmt.Errorf("%w: only the first recorded installment can represent the advance", ErrInvariantViolation)
			}
			// The row replaces the virtual entry in slot 1, so the advance no
			// longer consumes the remaining amount.
			sequence = 1
			limit = parent.TotalAmount
			alreadyPaid = 0
		}

		if in.Settlement.PaidAmount > limit+AmountTolerance {
			return &AmountExceedsRemainingError{Limit: limit, AlreadyPaid: alreadyPaid}
		}

		inst := installmentFromSettlement(in.Settlement)
		inst.ObligationID = parent.ID
		inst.SequenceNumber = sequence
		if _, err := tx.CreateInstallment(ctx, inst); err != nil {
			return err
		}

		if inst.Mode.NeedsInstruments() {
			result.Instruments, result.Failures = s.reconciler.Reconcile(ctx, tx, parent, inst, nil, in.Instruments)
		}

		if err := s.refreshAggregates(ctx, tx, parent); err != nil {
			return err
		}
		result.Installment = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, in.ActorID, "ledger.installment.create", result.Installment)
	return result, nil
}

// UpdateInstallment overwrites the full settlement state of an installment
// and reconciles its instrument set against the submitted list. The sequence
// number is never touched.
func (s *Service) UpdateInstallment(ctx context.Context, in UpdateInstallmentInput) (*InstallmentResult, error) {
	if err := ValidateSettlement(in.Settlement); err != nil {
		return nil, err
	}

	result := &InstallmentResult{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetInstallment(ctx, in.InstallmentID)
		if err != nil {
			return err
		}
		parent, err := tx.GetObligation(ctx, inst.ObligationID, in.OwnerID)
		if err != nil {
			return err
		}
		if in.Settlement.RepresentsAdvance != inst.RepresentsAdvance {
			return fmt.Errorf("%w: whether an installment represents the advance is fixed at creation", ErrInvariantViolation)
		}

		existing, err := tx.ListInstallments(ctx, parent.ID)
		if err != nil {
			return err
		}
		others := existing[:0:0]
		for _, e := range existing {
			if e.ID != inst.ID {
				others = append(others, e)
			}
		}

		totals := ComputeTotals(parent, others)
		limit := totals.RemainingAmount
		alreadyPaid := totals.TotalPaid
		if inst.RepresentsAdvance {
			// The virtual entry synthesized over the other rows stands in for
			// this row, so it does not constrain the new amount.
			limit += parent.AdvanceTotal()
			alreadyPaid -= parent.AdvanceTotal()
		}
		if in.Settlement.PaidAmount > limit+AmountTolerance {
			return &AmountExceedsRemainingError{Limit: limit, AlreadyPaid: alreadyPaid}
		}

		applySettlement(inst, in.Settlement)
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return err
		}

		current, err := tx.ListInstruments(ctx, parent.ID, inst.ID, inst.SequenceNumber)
		if err != nil {
			return err
		}
		result.Instruments, result.Failures = s.reconciler.Reconcile(ctx, tx, parent, inst, current, in.Instruments)

		if err := s.refreshAggregates(ctx, tx, parent); err != nil {
			return err
		}
		result.Installment = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, in.ActorID, "ledger.installment.update", result.Installment)
	return result, nil
}

// DeleteInstallment delegates to the cascade engine and, when the parent
// survives, recomputes its aggregates over the renumbered set.
func (s *Service) DeleteInstallment(ctx context.Context, in DeleteInstallmentInput) (*DeleteResult, error) {
	var result DeleteResult
	var deleted *Installment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetInstallment(ctx, in.InstallmentID)
		if err != nil {
			return err
		}
		parent, err := tx.GetObligation(ctx, inst.ObligationID, in.OwnerID)
		if err != nil {
			return err
		}

		result, err = s.cascade.Delete(ctx, tx, parent, inst)
		if err != nil {
			return err
		}
		deleted = inst

		if !result.ParentDeleted {
			return s.refreshAggregates(ctx, tx, parent)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, in.ActorID, "ledger.installment.delete", deleted)
	return &result, nil
}

// ListInstallments returns the enriched ledger view for one obligation,
// served from the view cache when possible.
func (s *Service) ListInstallments(ctx context.Context, kind ObligationKind, obligationID, ownerID int64) (*LedgerView, error) {
	load := func(ctx context.Context) (*LedgerView, error) {
		return s.buildView(ctx, kind, obligationID, ownerID)
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Fetch(ctx, kind, obligationID, ownerID, load)
}

func (s *Service) buildView(ctx context.Context, kind ObligationKind, obligationID, ownerID int64) (*LedgerView, error) {
	parent, err := s.repo.GetObligation(ctx, obligationID, ownerID)
	if err != nil {
		return nil, err
	}
	if kind != "" && parent.Kind != kind {
		return nil, ErrNotFound
	}

	installments, err := s.repo.ListInstallments(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	totals := ComputeTotals(parent, installments)

	view := &LedgerView{
		ObligationID:     parent.ID,
		Kind:             parent.Kind,
		Reference:        parent.Reference,
		CounterpartyName: parent.CounterpartyName,
		TotalDue:         totals.TotalDue,
		TotalPaid:        totals.TotalPaid,
		RemainingAmount:  totals.RemainingAmount,
		Percentage:       totals.Percentage,
	}

	for _, e := range totals.Entries {
		ev := entryViewFrom(e)
		if inst, ok := e.(*Installment); ok && inst.Mode.NeedsInstruments() {
			instruments, err := s.repo.ListInstruments(ctx, parent.ID, inst.ID, inst.SequenceNumber)
			if err != nil {
				return nil, err
			}
			ev.Instruments = instruments
		}
		view.Entries = append(view.Entries, ev)
	}
	return view, nil
}

func (s *Service) refreshAggregates(ctx context.Context, tx TxRepository, parent *ParentObligation) error {
	installments, err := tx.ListInstallments(ctx, parent.ID)
	if err != nil {
		return err
	}
	totals := ComputeTotals(parent, installments)
	return tx.UpdateAggregates(ctx, parent.ID, AggregatesFrom(totals))
}

func (s *Service) afterMutation(ctx context.Context, actorID int64, action string, inst *Installment) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("bump ledger view cache", slog.Any("error", err))
		}
	}
	if s.audit == nil || inst == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "installment",
		EntityID: strconv.FormatInt(inst.ID, 10),
		Meta: map[string]any{
			"obligation_id":   inst.ObligationID,
			"sequence_number": inst.SequenceNumber,
			"paid_amount":     inst.PaidAmount,
		},
		At: time.Now(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("record ledger audit entry", slog.Any("error", err), slog.String("action", action))
	}
}

func installmentFromSettlement(s SettlementInput) *Installment {
	inst := &Installment{}
	applySettlement(inst, s)
	return inst
}

func applySettlement(inst *Installment, s SettlementInput) {
	inst.DueDate = s.DueDate
	inst.ScheduledAmount = s.ScheduledAmount
	inst.PaidAmount = s.PaidAmount
	inst.DeclaredAmount = s.DeclaredAmount
	inst.UndeclaredAmount = s.UndeclaredAmount
	inst.PaymentDate = s.PaymentDate
	inst.Mode = s.Mode
	inst.CashAmount = s.CashAmount
	inst.CheckAmount = s.CheckAmount
	inst.Status = s.Status
	if inst.Status == "" {
		// Settlement registration records money that already changed hands.
		inst.Status = InstallmentPaid
	}
	inst.RepresentsAdvance = s.RepresentsAdvance
	inst.Notes = s.Notes
}

// LedgerView is the enriched wire representation of one obligation's ledger.
type LedgerView struct {
	ObligationID     int64          `json:"obligation_id"`
	Kind             ObligationKind `json:"kind"`
	Reference        string         `json:"reference"`
	CounterpartyName string         `json:"counterparty_name"`
	TotalDue         float64        `json:"total_due"`
	TotalPaid        float64        `json:"total_paid"`
	RemainingAmount  float64        `json:"remaining_amount"`
	Percentage       float64        `json:"percentage"`
	Entries          []EntryView    `json:"entries"`
}

// EntryView is one ledger line on the wire. Virtual marks the synthesized
// advance, which cannot be mutated.
type EntryView struct {
	ID                string            `json:"id"`
	Virtual           bool              `json:"virtual"`
	SequenceNumber    int               `json:"sequence_number"`
	DueDate           *time.Time        `json:"due_date,omitempty"`
	ScheduledAmount   float64           `json:"scheduled_amount"`
	PaidAmount        float64           `json:"paid_amount"`
	DeclaredAmount    float64           `json:"declared_amount"`
	UndeclaredAmount  float64           `json:"undeclared_amount"`
	PaymentDate       *time.Time        `json:"payment_date,omitempty"`
	Mode              SettlementMode    `json:"mode"`
	CashAmount        float64           `json:"cash_amount"`
	CheckAmount       float64           `json:"check_amount"`
	Status            InstallmentStatus `json:"status"`
	RepresentsAdvance bool              `json:"represents_advance,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	Instruments       []Instrument      `json:"instruments,omitempty"`
}

func entryViewFrom(e Entry) EntryView {
	switch v := e.(type) {
	case *Installment:
		return EntryView{
			ID:                v.EntryID(),
			SequenceNumber:    v.SequenceNumber,
			DueDate:           v.DueDate,
			ScheduledAmount:   v.ScheduledAmount,
			PaidAmount:        v.PaidAmount,
			DeclaredAmount:    v.DeclaredAmount,
			UndeclaredAmount:  v.UndeclaredAmount,
			PaymentDate:       v.PaymentDate,
			Mode:              v.Mode,
			CashAmount:        v.CashAmount,
			CheckAmount:       v.CheckAmount,
			Status:            v.Status,
			RepresentsAdvance: v.RepresentsAdvance,
			Notes:             v.Notes,
		}
	case *VirtualAdvance:
		return EntryView{
			ID:               v.EntryID(),
			Virtual:          true,
			SequenceNumber:   1,
			PaidAmount:       v.PaidAmount,
			DeclaredAmount:   v.DeclaredAmount,
			UndeclaredAmount: v.UndeclaredAmount,
			Mode:             v.Mode,
			CashAmount:       v.CashAmount,
			CheckAmount:      v.CheckAmount,
			Status:           InstallmentPaid,
		}
	}
	return EntryView{}
}
