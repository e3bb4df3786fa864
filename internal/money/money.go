// Package money holds the integer-cents representation used by the sale
// engine. Amounts cross the system boundary as decimal dollars and are
// converted exactly once, here; everything downstream is integer arithmetic.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Cents is an amount in minor currency units. Never a float.
type Cents int64

var hundred = decimal.NewFromInt(100)

// FromDecimal converts a decimal-dollar amount to cents, rounding half away
// from zero at the conversion point only.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// NonNegative converts a decimal-dollar amount to cents and rejects negative
// input. Used for prices, discounts and any field that disallows negatives.
func NonNegative(d decimal.Decimal) (Cents, error) {
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	return FromDecimal(d), nil
}

// Parse converts a decimal-dollar string to cents.
func Parse(raw string) (Cents, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return FromDecimal(d), nil
}

// ParseNonNegative is Parse with the negative-input rejection of NonNegative.
func ParseNonNegative(raw string) (Cents, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return NonNegative(d)
}

// Dollars formats cents as a fixed two-decimal dollar string, e.g. 1234 -> "12.34".
func (c Cents) Dollars() string {
	return decimal.New(int64(c), -2).StringFixed(2)
}

// Decimal returns the cents value as exact decimal dollars.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}
