package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// MinorUnitDigits is the number of decimal places carried by Money.
const MinorUnitDigits = 2

// ErrInvalidAmount is returned when an amount cannot be parsed, is negative or
// does not fit in Money.
var ErrInvalidAmount = errors.New("pricing: invalid amount")

var maxMoney = decimal.NewFromInt(math.MaxInt64)

// ParseAmount converts a decimal string such as "5.99" into minor units.
func ParseAmount(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, value)
	}
	minor := d.Shift(MinorUnitDigits).Round(0)
	if minor.GreaterThan(maxMoney) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, value)
	}
	return minor.IntPart(), nil
}

// ToMinor converts a major-unit decimal such as 4.00 into minor units,
// rounding half away from zero. Non-positive values yield zero and values
// beyond the Money range saturate at math.MaxInt64.
func ToMinor(d decimal.Decimal) Money {
	return saturate(d.Shift(MinorUnitDigits).Round(0))
}

// FormatAmount renders minor units as a fixed-point decimal string.
func FormatAmount(m Money) string {
	return decimal.New(m, -MinorUnitDigits).StringFixed(MinorUnitDigits)
}

// ApplyRate multiplies amount by rate and rounds half away from zero to a whole
// minor unit. Non-positive amounts or rates yield zero.
func ApplyRate(amount Money, rate decimal.Decimal) Money {
	if amount <= 0 || !rate.IsPositive() {
		return 0
	}
	return saturate(decimal.NewFromInt(amount).Mul(rate).Round(0))
}

// saturate converts a whole minor-unit decimal into Money without wrapping.
func saturate(minor decimal.Decimal) Money {
	if !minor.IsPositive() {
		return 0
	}
	if minor.GreaterThan(maxMoney) {
		return math.MaxInt64
	}
	return minor.IntPart()
}

func nonNegative(m Money) Money {
	if m < 0 {
		return 0
	}
	return m
}

func clamp(m, lo, hi Money) Money {
	if hi < lo {
		hi = lo
	}
	if m < lo {
		return lo
	}
	if m > hi {
		return hi
	}
	return m
}
