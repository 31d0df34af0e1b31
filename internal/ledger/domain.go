// Package ledger implements the installment ledger: partial settlement
// events recorded against a parent obligation (a client sale receivable or a
// supplier expense payable), check instrument reconciliation, deletion with
// sequence renumbering, and the unified totals view.
package ledger

import (
	"fmt"
	"time"
)

// AmountTolerance is the permitted drift for monetary invariants.
const AmountTolerance = 0.01

// ObligationKind distinguishes the two sides of the ledger.
type ObligationKind string

const (
	KindReceivable ObligationKind = "RECEIVABLE"
	KindPayable    ObligationKind = "PAYABLE"
)

// Valid reports whether the kind is one of the two known sides.
func (k ObligationKind) Valid() bool {
	return k == KindReceivable || k == KindPayable
}

// ObligationStatus enumerates parent obligation settlement states.
type ObligationStatus string

const (
	ObligationOpen    ObligationStatus = "OPEN"
	ObligationPartial ObligationStatus = "PARTIAL"
	ObligationSettled ObligationStatus = "SETTLED"
)

// SettlementMode enumerates how an installment was paid.
type SettlementMode string

const (
	ModeCash         SettlementMode = "cash"
	ModeCheck        SettlementMode = "check"
	ModeCashAndCheck SettlementMode = "cash_and_check"
	ModeTransfer     SettlementMode = "transfer"
)

// Valid reports whether the mode is known.
func (m SettlementMode) Valid() bool {
	switch m {
	case ModeCash, ModeCheck, ModeCashAndCheck, ModeTransfer:
		return true
	}
	return false
}

// NeedsInstruments reports whether the mode settles through check instruments.
func (m SettlementMode) NeedsInstruments() bool {
	return m == ModeCheck || m == ModeCashAndCheck
}

// InstallmentStatus enumerates installment states.
type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentLate      InstallmentStatus = "late"
	InstallmentCancelled InstallmentStatus = "cancelled"
)

// InstrumentStatus enumerates check instrument states.
type InstrumentStatus string

const (
	InstrumentIssued    InstrumentStatus = "issued"
	InstrumentCleared   InstrumentStatus = "cleared"
	InstrumentCancelled InstrumentStatus = "cancelled"
)

// InstrumentDirection records which way a check travelled.
type InstrumentDirection string

const (
	DirectionReceived InstrumentDirection = "RECEIVED"
	DirectionGiven    InstrumentDirection = "GIVEN"
)

// DirectionForKind returns the instrument direction implied by the obligation
// side: checks are received against receivables and given against payables.
func DirectionForKind(kind ObligationKind) InstrumentDirection {
	if kind == KindPayable {
		return DirectionGiven
	}
	return DirectionReceived
}

// ParentObligation is a sale receivable or expense payable with a total
// amount and an optional initial advance recorded on the aggregate itself.
type ParentObligation struct {
	ID                int64
	OwnerID           int64
	Kind              ObligationKind
	Reference         string
	CounterpartyName  string
	TotalAmount       float64
	AdvanceDeclared   float64
	AdvanceUndeclared float64
	AdvanceCash       float64
	AdvanceCheck      float64
	PaidAmount        float64
	RemainingAmount   float64
	Status            ObligationStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AdvanceTotal returns the declared plus undeclared advance.
func (p *ParentObligation) AdvanceTotal() float64 {
	return p.AdvanceDeclared + p.AdvanceUndeclared
}

// AdvanceMode derives the settlement mode of the implicit advance from its
// cash/check split.
func (p *ParentObligation) AdvanceMode() SettlementMode {
	switch {
	case p.AdvanceCash > 0 && p.AdvanceCheck > 0:
		return ModeCashAndCheck
	case p.AdvanceCheck > 0:
		return ModeCheck
	case p.AdvanceCash > 0:
		return ModeCash
	}
	return ModeTransfer
}

// Installment is one persisted partial-payment event against an obligation.
// Sequence numbers for a given obligation are always contiguous; when the
// obligation carries an advance, the synthesized advance entry occupies
// slot 1 and persisted sequences start at 2.
type Installment struct {
	ID                int64
	ObligationID      int64
	SequenceNumber    int
	DueDate           *time.Time
	ScheduledAmount   float64
	PaidAmount        float64
	DeclaredAmount    float64
	UndeclaredAmount  float64
	PaymentDate       *time.Time
	Mode              SettlementMode
	CashAmount        float64
	CheckAmount       float64
	Status            InstallmentStatus
	RepresentsAdvance bool
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// VirtualAdvance is the synthesized first entry representing an obligation's
// initial advance. It is never persisted and the mutation API cannot address
// it: installments are addressed by int64 row ids, which a virtual entry does
// not have.
type VirtualAdvance struct {
	ObligationID     int64
	PaidAmount       float64
	DeclaredAmount   float64
	UndeclaredAmount float64
	CashAmount       float64
	CheckAmount      float64
	Mode             SettlementMode
}

// Entry is a single line of the enriched ledger view, either a persisted
// installment or the synthesized virtual advance.
type Entry interface {
	// EntryID is the wire identifier: the row id for persisted installments,
	// "virtual-<obligationID>" for the synthesized advance.
	EntryID() string
	Sequence() int
	Paid() float64
	isEntry()
}

func (i *Installment) EntryID() string { return fmt.Sprintf("%d", i.ID) }
func (i *Installment) Sequence() int   { return i.SequenceNumber }
func (i *Installment) Paid() float64   { return i.PaidAmount }
func (i *Installment) isEntry()        {}

// VirtualEntryPrefix marks wire identifiers of synthesized entries.
const VirtualEntryPrefix = "virtual-"

func (v *VirtualAdvance) EntryID() string { return fmt.Sprintf("%s%d", VirtualEntryPrefix, v.ObligationID) }
func (v *VirtualAdvance) Sequence() int   { return 1 }
func (v *VirtualAdvance) Paid() float64   { return v.PaidAmount }
func (v *VirtualAdvance) isEntry()        {}

// Instrument is a bank check record, optionally correlated to an installment
// both through the installment_id column and, for compatibility with legacy
// sale-side records, through the "paiement #N" pattern in its description.
type Instrument struct {
	ID            int64
	ObligationID  *int64
	InstallmentID *int64
	Number        string
	PayerName     string
	PayeeName     string
	IssueDate     *time.Time
	ClearanceDate *time.Time
	Amount        float64
	Status        InstrumentStatus
	Direction     InstrumentDirection
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SettlementInput carries the full settlement state of an installment.
// Updates overwrite every field here; the sequence number is never touched.
type SettlementInput struct {
	DueDate           *time.Time
	ScheduledAmount   float64
	PaidAmount        float64
	DeclaredAmount    float64
	UndeclaredAmount  float64
	PaymentDate       *time.Time
	Mode              SettlementMode
	CashAmount        float64
	CheckAmount       float64
	Status            InstallmentStatus
	RepresentsAdvance bool
	Notes             string
}

// InstrumentInput is one check in a caller-submitted instrument list.
// ID identifies an already persisted instrument; zero means a new one.
type InstrumentInput struct {
	ID            int64
	Number        string
	PayerName     string
	PayeeName     string
	IssueDate     *time.Time
	ClearanceDate *time.Time
	Amount        float64
	Status        InstrumentStatus
	Description   string
}

// Aggregates are the obligation fields recomputed after each ledger mutation.
type Aggregates struct {
	PaidAmount      float64
	RemainingAmount float64
	Status          ObligationStatus
}

// DeleteResult reports the outcome of an installment deletion.
type DeleteResult struct {
	ParentDeleted   bool `json:"parent_deleted"`
	RenumberedCount int  `json:"renumbered_count"`
}

// InstallmentResult is a committed installment write plus any tolerated
// per-instrument reconciliation failures.
type InstallmentResult struct {
	Installment *Installment
	Instruments []Instrument
	Failures    []ReconciliationFailure
}
