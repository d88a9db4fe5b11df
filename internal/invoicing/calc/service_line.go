package calc

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ServiceUnit tells how a contracted service is billed.
type ServiceUnit string

const (
	UnitMeter    ServiceUnit = "meter"
	UnitQuantity ServiceUnit = "quantity"
)

func (u ServiceUnit) Valid() bool {
	return u == UnitMeter || u == UnitQuantity
}

// ContractedService is one billable service attached to a contract.
type ContractedService struct {
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name"`
	Unit        ServiceUnit     `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// MeterReading holds the two readings a metered line is billed from.
type MeterReading struct {
	MeterStart *decimal.Decimal `json:"meter_start,omitempty"`
	MeterEnd   *decimal.Decimal `json:"meter_end,omitempty"`
}

// ServiceLineItem is the computed charge for one contracted service.
// Amount is nil while a metered line still waits for readings.
type ServiceLineItem struct {
	ServiceID   string           `json:"service_id"`
	ServiceName string           `json:"service_name"`
	Unit        ServiceUnit      `json:"unit"`
	Price       decimal.Decimal  `json:"price"`
	Quantity    int              `json:"quantity,omitempty"`
	MeterStart  *decimal.Decimal `json:"meter_start,omitempty"`
	MeterEnd    *decimal.Decimal `json:"meter_end,omitempty"`
	Usage       *decimal.Decimal `json:"usage,omitempty"`
	Amount      *decimal.Decimal `json:"amount"`
}

// Pending reports whether the line still lacks a defined amount.
func (i ServiceLineItem) Pending() bool {
	return i.Amount == nil
}

// ComputeServiceAmount prices one service for the period. Metered lines are
// billed on consumption and never prorated; quantity lines follow the rent
// proration rule.
func ComputeServiceAmount(svc ContractedService, reading *MeterReading, adjustedQuantity *int, actualDays *int, month, year int, r Rounding) (ServiceLineItem, error) {
	item := ServiceLineItem{
		ServiceID:   svc.ServiceID,
		ServiceName: svc.ServiceName,
		Unit:        svc.Unit,
		Price:       svc.Price,
	}

	switch svc.Unit {
	case UnitMeter:
		if reading == nil {
			return item, nil
		}
		item.MeterStart = reading.MeterStart
		item.MeterEnd = reading.MeterEnd
		if reading.MeterStart == nil || reading.MeterEnd == nil {
			return item, nil
		}
		usage := reading.MeterEnd.Sub(*reading.MeterStart)
		if usage.IsNegative() {
			return item, &MeterReadingError{
				ServiceID:  svc.ServiceID,
				MeterStart: *reading.MeterStart,
				MeterEnd:   *reading.MeterEnd,
			}
		}
		amount := r.Apply(svc.Price.Mul(usage))
		item.Usage = &usage
		item.Amount = &amount
		return item, nil

	case UnitQuantity:
		quantity := svc.Quantity
		if quantity < 1 {
			quantity = 1
		}
		if adjustedQuantity != nil {
			if *adjustedQuantity < 1 {
				return item, errors.Wrapf(ErrInvalidQuantity, "service %s quantity=%d", svc.ServiceID, *adjustedQuantity)
			}
			quantity = *adjustedQuantity
		}
		item.Quantity = quantity

		base := svc.Price.Mul(decimal.NewFromInt(int64(quantity)))
		amount, err := prorate(base, actualDays, month, year, r)
		if err != nil {
			return item, err
		}
		item.Amount = &amount
		return item, nil

	default:
		return item, errors.Wrapf(ErrInvalidUnit, "service %s unit=%q", svc.ServiceID, svc.Unit)
	}
}

// AggregateServiceAmount sums every defined line amount and returns the ids of
// lines still pending.
func AggregateServiceAmount(items []ServiceLineItem) (decimal.Decimal, []string) {
	total := lo.Reduce(items, func(acc decimal.Decimal, item ServiceLineItem, _ int) decimal.Decimal {
		if item.Amount == nil {
			return acc
		}
		return acc.Add(*item.Amount)
	}, decimal.Zero)

	pending := lo.FilterMap(items, func(item ServiceLineItem, _ int) (string, bool) {
		return item.ServiceID, item.Pending()
	})
	return total, pending
}
