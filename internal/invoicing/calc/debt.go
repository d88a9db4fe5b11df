package calc

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// StatusPaid marks a prior invoice that no longer carries debt.
const StatusPaid = "paid"

// PriorInvoice is the slice of an earlier invoice that debt carry-forward needs.
type PriorInvoice struct {
	ID              string           `json:"id"`
	InvoiceDate     time.Time        `json:"invoice_date"`
	Status          string           `json:"status"`
	RemainingAmount *decimal.Decimal `json:"remaining_amount"`
}

// PreviousDebt sums the remaining amount of unpaid invoices dated before
// invoiceDate. excludingID skips the invoice being edited.
func PreviousDebt(invoices []PriorInvoice, invoiceDate time.Time, excludingID string) decimal.Decimal {
	cutoff := DateOnly(invoiceDate)
	excludingID = strings.TrimSpace(excludingID)

	carried := lo.Filter(invoices, func(inv PriorInvoice, _ int) bool {
		if excludingID != "" && inv.ID == excludingID {
			return false
		}
		if !DateOnly(inv.InvoiceDate).Before(cutoff) {
			return false
		}
		return !strings.EqualFold(strings.TrimSpace(inv.Status), StatusPaid)
	})

	return lo.Reduce(carried, func(acc decimal.Decimal, inv PriorInvoice, _ int) decimal.Decimal {
		if inv.RemainingAmount == nil {
			return acc
		}
		return acc.Add(*inv.RemainingAmount)
	}, decimal.Zero)
}
