package calc

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// ProrateRent scales the monthly rent to actualDays of the month. A nil
// actualDays leaves the rent untouched. Rounding happens once, after the
// division.
func ProrateRent(monthlyRent decimal.Decimal, actualDays *int, month, year int, r Rounding) (decimal.Decimal, error) {
	return prorate(monthlyRent, actualDays, month, year, r)
}

func prorate(amount decimal.Decimal, actualDays *int, month, year int, r Rounding) (decimal.Decimal, error) {
	if actualDays == nil {
		return amount, nil
	}
	days, err := DaysIn(month, year)
	if err != nil {
		return decimal.Zero, err
	}
	if *actualDays < 0 || *actualDays > days {
		return decimal.Zero, errors.Wrapf(ErrInvalidActualDays, "actual_days=%d days_in_month=%d", *actualDays, days)
	}
	scaled := amount.Mul(decimal.NewFromInt(int64(*actualDays))).Div(decimal.NewFromInt(int64(days)))
	return r.Apply(scaled), nil
}
