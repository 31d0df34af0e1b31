package ledger

import "sort"

// Totals is the unified "amount paid / amount remaining / % complete" view.
// Every consumer (list, detail, receipt) derives it through ComputeTotals;
// the numbers are never recomputed elsewhere.
type Totals struct {
	TotalPaid       float64
	TotalDue        float64
	RemainingAmount float64
	Percentage      float64
	Entries         []Entry
}

// ComputeTotals merges an obligation's implicit advance with its persisted
// installments into a single totals view. It is a pure function: it never
// reads storage and never mutates its inputs.
//
// The virtual advance entry is synthesized only when the obligation carries a
// positive advance and no persisted installment is flagged as representing
// it, so the advance is never counted twice.
func ComputeTotals(parent *ParentObligation, installments []Installment) Totals {
	entries := make([]Entry, 0, len(installments)+1)

	if parent.AdvanceTotal() > 0 && !advanceRepresented(installments) {
		entries = append(entries, &VirtualAdvance{
			ObligationID:     parent.ID,
			PaidAmount:       parent.AdvanceTotal(),
			DeclaredAmount:   parent.AdvanceDeclared,
			UndeclaredAmount: parent.AdvanceUndeclared,
			CashAmount:       parent.AdvanceCash,
			CheckAmount:      parent.AdvanceCheck,
			Mode:             parent.AdvanceMode(),
		})
	}

	for i := range installments {
		inst := installments[i]
		entries = append(entries, &inst)
	}

	sort.SliceStable(entries, func(a, b int) bool {
		_, virtualA := entries[a].(*VirtualAdvance)
		_, virtualB := entries[b].(*VirtualAdvance)
		if virtualA != virtualB {
			// The virtual advance always leads.
			return virtualA
		}
		return entries[a].Sequence() < entries[b].Sequence()
	})

	var totalPaid float64
	for _, e := range entries {
		totalPaid += e.Paid()
	}

	totalDue := parent.TotalAmount
	remaining := totalDue - totalPaid
	if remaining < 0 {
		remaining = 0
	}

	var pct float64
	if totalDue > 0 {
		pct = totalPaid / totalDue * 100
		if pct > 100 {
			pct = 100
		}
	}

	return Totals{
		TotalPaid:       totalPaid,
		TotalDue:        totalDue,
		RemainingAmount: remaining,
		Percentage:      pct,
		Entries:         entries,
	}
}

// AggregatesFrom derives the obligation aggregate fields from a totals view.
func AggregatesFrom(t Totals) Aggregates {
	status := ObligationOpen
	switch {
	case t.TotalDue > 0 && t.RemainingAmount <= AmountTolerance:
		status = ObligationSettled
	case t.TotalPaid > AmountTolerance:
		status = ObligationPartial
	}
	return Aggregates{
		PaidAmount:      t.TotalPaid,
		RemainingAmount: t.RemainingAmount,
		Status:          status,
	}
}

func advanceRepresented(installments []Installment) bool {
	for i := range installments {
		if installments[i].RepresentsAdvance {
			return true
		}
	}
	return false
}
