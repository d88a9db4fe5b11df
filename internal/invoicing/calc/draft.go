package calc

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ContractSnapshot is the read-only view of a contract an invoice is billed from.
type ContractSnapshot struct {
	ContractID  string              `json:"contract_id"`
	RoomID      string              `json:"room_id"`
	MonthlyRent decimal.Decimal     `json:"monthly_rent"`
	Services    []ContractedService `json:"services"`
}

// InvoiceDraft is an immutable set of invoice inputs. Every With method
// returns a new draft and leaves the receiver untouched.
type InvoiceDraft struct {
	contract    ContractSnapshot
	period      BillingPeriod
	invoiceDate time.Time
	excludeID   string

	quantities map[string]int
	readings   map[string]MeterReading

	priorInvoices []PriorInvoice
	debtErr       error

	paid     *decimal.Decimal
	rounding Rounding
}

func NewDraft(contract ContractSnapshot, period BillingPeriod, invoiceDate time.Time) InvoiceDraft {
	return InvoiceDraft{
		contract:    contract,
		period:      period,
		invoiceDate: DateOnly(invoiceDate),
		quantities:  map[string]int{},
		readings:    map[string]MeterReading{},
		rounding:    DefaultRounding,
	}
}

func (d InvoiceDraft) clone() InvoiceDraft {
	next := d
	next.quantities = maps.Clone(d.quantities)
	next.readings = maps.Clone(d.readings)
	next.priorInvoices = slices.Clone(d.priorInvoices)
	if next.quantities == nil {
		next.quantities = map[string]int{}
	}
	if next.readings == nil {
		next.readings = map[string]MeterReading{}
	}
	return next
}

func (d InvoiceDraft) WithContract(contract ContractSnapshot) InvoiceDraft {
	next := d.clone()
	next.contract = contract
	return next
}

func (d InvoiceDraft) WithPeriod(month, year int) InvoiceDraft {
	next := d.clone()
	next.period.Month = month
	next.period.Year = year
	return next
}

func (d InvoiceDraft) WithActualDays(days *int) InvoiceDraft {
	next := d.clone()
	if days == nil {
		next.period.ActualDays = nil
		return next
	}
	v := *days
	next.period.ActualDays = &v
	return next
}

func (d InvoiceDraft) WithInvoiceDate(date time.Time) InvoiceDraft {
	next := d.clone()
	next.invoiceDate = DateOnly(date)
	return next
}

func (d InvoiceDraft) WithExcludedInvoice(invoiceID string) InvoiceDraft {
	next := d.clone()
	next.excludeID = invoiceID
	return next
}

func (d InvoiceDraft) WithQuantity(serviceID string, quantity int) InvoiceDraft {
	next := d.clone()
	next.quantities[serviceID] = quantity
	return next
}

func (d InvoiceDraft) WithMeterReading(serviceID string, reading MeterReading) InvoiceDraft {
	next := d.clone()
	next.readings[serviceID] = reading
	return next
}

// WithPriorInvoices sets the invoice history and clears any earlier lookup failure.
func (d InvoiceDraft) WithPriorInvoices(invoices []PriorInvoice) InvoiceDraft {
	next := d.clone()
	next.priorInvoices = slices.Clone(invoices)
	next.debtErr = nil
	return next
}

// WithDebtLookupError records that the invoice history could not be fetched.
func (d InvoiceDraft) WithDebtLookupError(err error) InvoiceDraft {
	next := d.clone()
	next.priorInvoices = nil
	next.debtErr = err
	return next
}

func (d InvoiceDraft) WithPaidAmount(amount *decimal.Decimal) InvoiceDraft {
	next := d.clone()
	if amount == nil {
		next.paid = nil
		return next
	}
	v := *amount
	next.paid = &v
	return next
}

func (d InvoiceDraft) WithRounding(r Rounding) InvoiceDraft {
	next := d.clone()
	next.rounding = r
	return next
}

func (d InvoiceDraft) Contract() ContractSnapshot { return d.contract }
func (d InvoiceDraft) Period() BillingPeriod     { return d.period }
func (d InvoiceDraft) InvoiceDate() time.Time    { return d.invoiceDate }
func (d InvoiceDraft) ExcludedInvoice() string   { return d.excludeID }
func (d InvoiceDraft) Rounding() Rounding        { return d.rounding }

func (d InvoiceDraft) Reading(serviceID string) (MeterReading, bool) {
	r, ok := d.readings[serviceID]
	return r, ok
}

func (d InvoiceDraft) Quantity(serviceID string) (int, bool) {
	q, ok := d.quantities[serviceID]
	return q, ok
}

// Result is the computed state of a draft.
type Result struct {
	Services []ServiceLineItem `json:"services"`
	Totals   InvoiceTotals     `json:"totals"`
	Warnings []Warning         `json:"warnings,omitempty"`
	Complete bool              `json:"complete"`
}

// HasWarning reports whether a warning with code was raised.
func (r Result) HasWarning(code WarningCode) bool {
	return slices.ContainsFunc(r.Warnings, func(w Warning) bool { return w.Code == code })
}

// Compute runs the whole pipeline over a draft. Identical drafts always yield
// identical results.
func Compute(d InvoiceDraft) (Result, error) {
	period := d.period
	if err := period.Validate(); err != nil {
		return Result{}, err
	}

	rent, err := ProrateRent(d.contract.MonthlyRent, period.ActualDays, period.Month, period.Year, d.rounding)
	if err != nil {
		return Result{}, err
	}

	items := make([]ServiceLineItem, 0, len(d.contract.Services))
	for _, svc := range d.contract.Services {
		var reading *MeterReading
		if r, ok := d.readings[svc.ServiceID]; ok {
			reading = &r
		}
		var quantity *int
		if q, ok := d.quantities[svc.ServiceID]; ok {
			quantity = &q
		}

		item, err := ComputeServiceAmount(svc, reading, quantity, period.ActualDays, period.Month, period.Year, d.rounding)
		if err != nil {
			return Result{}, err
		}
		items = append(items, item)
	}

	serviceAmount, pending := AggregateServiceAmount(items)

	var warnings []Warning
	if len(pending) > 0 {
		warnings = append(warnings, Warning{
			Code:       WarningIncompleteServiceData,
			Message:    "meter readings missing for some services",
			ServiceIDs: pending,
		})
	}

	debt := decimal.Zero
	if d.debtErr != nil {
		warnings = append(warnings, Warning{
			Code:    WarningDebtLookupFailed,
			Message: "previous debt lookup failed, treated as zero: " + d.debtErr.Error(),
		})
	} else {
		debt = PreviousDebt(d.priorInvoices, d.invoiceDate, d.excludeID)
	}

	return Result{
		Services: items,
		Totals:   ComputeTotals(&rent, &serviceAmount, &debt, d.paid),
		Warnings: warnings,
		Complete: len(pending) == 0,
	}, nil
}
