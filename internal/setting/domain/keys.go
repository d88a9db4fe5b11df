package domain

import (
	"strconv"
	"strings"

	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
)

// Normalize validates value for key and returns its canonical form.
func Normalize(key, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch key {
	case KeyRoundingMode:
		mode, err := calc.ParseRoundingMode(value)
		if err != nil {
			return "", ErrInvalidValue
		}
		return string(mode), nil
	case KeyDueDays:
		days, err := strconv.Atoi(value)
		if err != nil || days < 0 || days > 365 {
			return "", ErrInvalidValue
		}
		return strconv.Itoa(days), nil
	case KeyNumberTemplate:
		if value == "" || (!strings.Contains(value, "{ULID}") && !strings.Contains(value, "{SEQ")) {
			return "", ErrInvalidValue
		}
		return value, nil
	default:
		return "", ErrUnknownKey
	}
}

func KnownKeys() []string {
	return []string{KeyRoundingMode, KeyDueDays, KeyNumberTemplate}
}
