package calc

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// RoundingMode selects how fractional currency amounts are resolved.
type RoundingMode string

const (
	RoundHalfUp   RoundingMode = "half_up"
	RoundHalfEven RoundingMode = "half_even"
)

// Rounding applies a mode at a fixed number of decimal places.
type Rounding struct {
	Mode   RoundingMode `json:"mode"`
	Places int32        `json:"places"`
}

// DefaultRounding rounds half-up to whole currency units.
var DefaultRounding = Rounding{Mode: RoundHalfUp, Places: 0}

func ParseRoundingMode(value string) (RoundingMode, error) {
	switch RoundingMode(strings.ToLower(strings.TrimSpace(value))) {
	case RoundHalfUp, "":
		return RoundHalfUp, nil
	case RoundHalfEven:
		return RoundHalfEven, nil
	default:
		return "", errors.Wrapf(ErrInvalidRoundingMode, "mode=%q", value)
	}
}

func (r Rounding) Apply(amount decimal.Decimal) decimal.Decimal {
	if r.Mode == RoundHalfEven {
		return amount.RoundBank(r.Places)
	}
	return amount.Round(r.Places)
}
