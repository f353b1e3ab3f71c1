package money

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by an Amount.
const Scale = 2

// Max bounds any single amount accepted from callers (one trillion major units).
const Max Amount = 1_000_000_000_000 * 100

var (
	// ErrPrecision is returned when an amount carries more fractional digits than the currency allows.
	ErrPrecision = errors.New("amount has more than 2 decimal places")
	// ErrOutOfRange is returned when an amount exceeds Max or is negative where not allowed.
	ErrOutOfRange = errors.New("amount out of range")
)

var hundred = decimal.NewFromInt(100)

// Amount is a currency value in minor units (e.g. paisa or cents).
type Amount int64

// FromMinor wraps a raw minor-unit integer.
func FromMinor(v int64) Amount { return Amount(v) }

// FromDecimal converts a decimal major-unit value into minor units, rejecting
// values that cannot be represented exactly.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrPrecision
	}
	if minor.Abs().GreaterThan(decimal.NewFromInt(int64(Max))) {
		return 0, ErrOutOfRange
	}
	return Amount(minor.IntPart()), nil
}

// Parse reads a major-unit decimal string such as "1491.00".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Minor returns the raw minor-unit value.
func (a Amount) Minor() int64 { return int64(a) }

// Decimal returns the major-unit decimal representation.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// BasisPoints returns a × bps / 10000 rounded half-up to the minor unit.
func (a Amount) BasisPoints(bps int64) Amount {
	if a <= 0 || bps <= 0 {
		return 0
	}
	v := decimal.NewFromInt(int64(a)).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10_000)).
		Round(0)
	return Amount(v.IntPart())
}

// MarshalJSON renders amounts as fixed-point strings so clients never see binary floats.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
