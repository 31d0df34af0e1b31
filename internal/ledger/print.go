package ledger

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Receipt is the printable rendering of a ledger view. Amounts are formatted
// for the French locale used on printed settlement receipts.
type Receipt struct {
	Reference        string        `json:"reference"`
	CounterpartyName string        `json:"counterparty_name"`
	TotalDue         string        `json:"total_due"`
	TotalPaid        string        `json:"total_paid"`
	RemainingAmount  string        `json:"remaining_amount"`
	Percentage       string        `json:"percentage"`
	Lines            []ReceiptLine `json:"lines"`
}

// ReceiptLine is one printed installment row, labelled "paiement #N de M".
type ReceiptLine struct {
	Label      string `json:"label"`
	PaidAmount string `json:"paid_amount"`
	Mode       string `json:"mode"`
	Advance    bool   `json:"advance,omitempty"`
}

var receiptPrinter = message.NewPrinter(language.French)

// BuildReceipt renders the receipt from an already computed ledger view; it
// never recomputes totals on its own.
func BuildReceipt(view *LedgerView) Receipt {
	r := Receipt{
		Reference:        view.Reference,
		CounterpartyName: view.CounterpartyName,
		TotalDue:         formatAmount(view.TotalDue),
		TotalPaid:        formatAmount(view.TotalPaid),
		RemainingAmount:  formatAmount(view.RemainingAmount),
		Percentage:       fmt.Sprintf("%.0f%%", view.Percentage),
	}
	total := len(view.Entries)
	for i, e := range view.Entries {
		// Labels are positional over the enriched view: the virtual advance
		// shifts every persisted line one slot down.
		position := i + 1
		line := ReceiptLine{
			Label:      fmt.Sprintf("paiement #%d de %d", position, total),
			PaidAmount: formatAmount(e.PaidAmount),
			Mode:       string(e.Mode),
			Advance:    e.Virtual || e.RepresentsAdvance,
		}
		if line.Advance {
			line.Label = fmt.Sprintf("avance (paiement #%d de %d)", position, total)
		}
		r.Lines = append(r.Lines, line)
	}
	return r
}

func formatAmount(v float64) string {
	return receiptPrinter.Sprintf("%.2f", v)
}
