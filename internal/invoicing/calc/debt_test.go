package calc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPreviousDebt_ExcludesPaid(t *testing.T) {
	invoices := []PriorInvoice{
		{ID: "1", InvoiceDate: date(2024, 1, 1), Status: "pending", RemainingAmount: decPtr(500_000)},
		{ID: "2", InvoiceDate: date(2024, 2, 1), Status: "paid", RemainingAmount: decPtr(0)},
	}
	got := PreviousDebt(invoices, date(2024, 3, 1), "")
	assert.Equal(t, "500000", got.String())
}

func TestPreviousDebt_Filters(t *testing.T) {
	invoices := []PriorInvoice{
		{ID: "1", InvoiceDate: date(2024, 1, 1), Status: "partial", RemainingAmount: decPtr(200_000)},
		{ID: "2", InvoiceDate: date(2024, 2, 1), Status: "pending", RemainingAmount: decPtr(300_000)},
		{ID: "3", InvoiceDate: date(2024, 3, 1), Status: "pending", RemainingAmount: decPtr(999)},
		{ID: "4", InvoiceDate: date(2024, 4, 1), Status: "pending", RemainingAmount: decPtr(999)},
		{ID: "5", InvoiceDate: date(2024, 1, 15), Status: "PAID", RemainingAmount: decPtr(999)},
		{ID: "6", InvoiceDate: date(2024, 1, 20), Status: "pending"},
	}

	// Same-day and later invoices never carry into this one.
	got := PreviousDebt(invoices, date(2024, 3, 1), "")
	assert.Equal(t, "500000", got.String())

	got = PreviousDebt(invoices, date(2024, 3, 1), "2")
	assert.Equal(t, "200000", got.String())
}

func TestPreviousDebt_OrderIndependent(t *testing.T) {
	a := PriorInvoice{ID: "a", InvoiceDate: date(2024, 1, 1), Status: "pending", RemainingAmount: decPtr(10)}
	b := PriorInvoice{ID: "b", InvoiceDate: date(2024, 2, 1), Status: "partial", RemainingAmount: decPtr(32)}

	first := PreviousDebt([]PriorInvoice{a, b}, date(2024, 5, 1), "")
	second := PreviousDebt([]PriorInvoice{b, a}, date(2024, 5, 1), "")
	assert.True(t, first.Equal(second))
	assert.Equal(t, "42", first.String())
}

func TestPreviousDebt_ComparesCalendarDays(t *testing.T) {
	invoices := []PriorInvoice{
		{ID: "1", InvoiceDate: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), Status: "pending", RemainingAmount: decPtr(10)},
	}
	got := PreviousDebt(invoices, time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), "")
	assert.True(t, got.IsZero())
}
