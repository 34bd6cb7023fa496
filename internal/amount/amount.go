// Package amount converts user supplied currency text into minor units (centavos).
package amount

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPrefix is the Brazilian real symbol users commonly type before a value.
const CurrencyPrefix = "R$"

// ErrInvalid is returned when the text cannot be read as a decimal number.
var ErrInvalid = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// ParseCents reads values such as "19.90", "12,34" or "R$ 5" and returns the
// amount in centavos. Rounding to whole centavos is half away from zero
// ("0.005" -> 1, "0.015" -> 2). Negative values are clamped to zero; callers
// treat zero as an invalid payment amount.
func ParseCents(text string) (int64, error) {
	normalized := strings.TrimSpace(text)
	normalized = strings.ReplaceAll(normalized, CurrencyPrefix, "")
	normalized = strings.TrimSpace(strings.ReplaceAll(normalized, ",", "."))
	if normalized == "" {
		return 0, ErrInvalid
	}

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, ErrInvalid
	}

	cents := value.Mul(hundred).Round(0)
	if cents.IsNegative() {
		return 0, nil
	}
	if !cents.BigInt().IsInt64() {
		return 0, ErrInvalid
	}

	return cents.IntPart(), nil
}

// Valid reports whether a parse result can be charged.
func Valid(cents int64, err error) bool {
	return err == nil && cents > 0
}

// FormatCents renders centavos as a plain decimal with two places ("1990" -> "19.90").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
