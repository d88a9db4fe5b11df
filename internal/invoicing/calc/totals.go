package calc

import "github.com/shopspring/decimal"

// InvoiceTotals are the headline figures of an invoice.
type InvoiceTotals struct {
	RentAmount      decimal.Decimal `json:"rent_amount"`
	ServiceAmount   decimal.Decimal `json:"service_amount"`
	PreviousDebt    decimal.Decimal `json:"previous_debt"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// ComputeTotals adds up the invoice. Missing inputs count as zero and the
// remaining amount goes negative on overpayment.
func ComputeTotals(rent, service, debt, paid *decimal.Decimal) InvoiceTotals {
	t := InvoiceTotals{
		RentAmount:    orZero(rent),
		ServiceAmount: orZero(service),
		PreviousDebt:  orZero(debt),
		PaidAmount:    orZero(paid),
	}
	t.TotalAmount = t.RentAmount.Add(t.ServiceAmount).Add(t.PreviousDebt)
	t.RemainingAmount = t.TotalAmount.Sub(t.PaidAmount)
	return t
}

func orZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
