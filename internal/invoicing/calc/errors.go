package calc

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidActualDays   = errors.New("invalid_actual_days")
	ErrInvalidMeterReading = errors.New("invalid_meter_reading")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidUnit         = errors.New("invalid_unit")
	ErrInvalidRoundingMode = errors.New("invalid_rounding_mode")
)

// MeterReadingError reports a metered line whose end reading is below its start reading.
type MeterReadingError struct {
	ServiceID  string
	MeterStart decimal.Decimal
	MeterEnd   decimal.Decimal
}

func (e *MeterReadingError) Error() string {
	return fmt.Sprintf("invalid_meter_reading: service %s expected meter_end >= %s, got %s",
		e.ServiceID, e.MeterStart.String(), e.MeterEnd.String())
}

func (e *MeterReadingError) Is(target error) bool {
	return target == ErrInvalidMeterReading
}

// WarningCode identifies a recoverable condition surfaced alongside a result.
type WarningCode string

const (
	WarningDebtLookupFailed      WarningCode = "debt_lookup_failed"
	WarningIncompleteServiceData WarningCode = "incomplete_service_data"
)

// Warning is a non-fatal condition the caller must be able to observe.
type Warning struct {
	Code       WarningCode `json:"code"`
	Message    string      `json:"message"`
	ServiceIDs []string    `json:"service_ids,omitempty"`
}
