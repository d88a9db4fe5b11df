package calc

import (
	"time"

	"github.com/cockroachdb/errors"
)

// BillingPeriod is the calendar month an invoice covers. ActualDays, when set,
// prorates quantity-based charges and rent to the occupied part of the month.
type BillingPeriod struct {
	Month      int  `json:"month"`
	Year       int  `json:"year"`
	ActualDays *int `json:"actual_days,omitempty"`
}

// DaysIn returns the number of calendar days in month/year.
func DaysIn(month, year int) (int, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return 0, errors.Wrapf(ErrInvalidPeriod, "month=%d year=%d", month, year)
	}
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day(), nil
}

// Validate checks the month/year pair and the actual days bound.
func (p BillingPeriod) Validate() error {
	days, err := DaysIn(p.Month, p.Year)
	if err != nil {
		return err
	}
	if p.ActualDays != nil && (*p.ActualDays < 0 || *p.ActualDays > days) {
		return errors.Wrapf(ErrInvalidActualDays, "actual_days=%d days_in_month=%d", *p.ActualDays, days)
	}
	return nil
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
