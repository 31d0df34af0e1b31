// Package obligation manages the parent obligations the ledger records
// settlements against: client sale receivables and supplier expense
// payables. The ledger only ever touches their aggregate fields; creation
// and listing live here.
package obligation

import (
	"time"

	"github.com/atlas-promo/atlas-promo/internal/ledger"
)

// CreateInput describes a new obligation.
type CreateInput struct {
	OwnerID           int64
	Kind              ledger.ObligationKind
	Reference         string
	CounterpartyName  string
	TotalAmount       float64
	AdvanceDeclared   float64
	AdvanceUndeclared float64
	AdvanceCash       float64
	AdvanceCheck      float64
}

// ListRequest filters obligation listings. Obligations are always scoped to
// their owner.
type ListRequest struct {
	OwnerID  int64
	Kind     ledger.ObligationKind
	Status   ledger.ObligationStatus
	FromDate time.Time
	ToDate   time.Time
	Limit    int
	Offset   int
}
