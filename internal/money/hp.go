// Package money implements the fixed-point Happy Paisa amount type and the
// fixed HP/INR conversion rules.
//
// Amounts are held as an integer count of milli-HP (0.001 HP). With the fixed
// rate of 1 HP = 1000 INR one milli-HP is exactly one rupee, so conversions are
// exact in the HP -> INR direction and need only one rounding step in the
// other.
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// HP is an amount of Happy Paisa in milli-HP.
type HP int64

const (
	// Places is the number of decimal places an HP amount carries.
	Places = 3
	// MilliPerHP is the number of HP units in one whole HP.
	MilliPerHP = 1000
	// INRPerHP is the fixed conversion rate.
	INRPerHP = 1000
)

var maxMilli = decimal.NewFromInt(math.MaxInt64)

// FromMilli returns the amount of m milli-HP.
func FromMilli(m int64) HP { return HP(m) }

// FromWhole returns the amount of n whole HP.
func FromWhole(n int64) HP { return HP(n * MilliPerHP) }

// Milli returns the amount as an integer count of milli-HP.
func (h HP) Milli() int64 { return int64(h) }

// Decimal returns the amount as a decimal number of HP.
func (h HP) Decimal() decimal.Decimal { return decimal.New(int64(h), -Places) }

// String formats the amount with exactly three decimals, e.g. "2.500".
func (h HP) String() string { return h.Decimal().StringFixed(Places) }

func (h HP) IsPositive() bool { return h > 0 }

func (h HP) Neg() HP { return -h }

func (h HP) Abs() HP {
	if h < 0 {
		return -h
	}
	return h
}

// FromDecimal converts d HP into an HP amount. Values with more than three
// decimal places or outside the int64 range are rejected.
func FromDecimal(d decimal.Decimal) (HP, error) {
	m := d.Shift(Places)
	if !m.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), Places)
	}
	if m.Abs().GreaterThan(maxMilli) {
		return 0, fmt.Errorf("amount %s out of range", d.String())
	}
	return HP(m.IntPart()), nil
}

// Parse reads a decimal HP amount such as "12.5" or "0.001".
func Parse(s string) (HP, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// INRToHP converts rupees into HP at the fixed rate, rounding half-to-even to
// three decimal places.
func INRToHP(inr decimal.Decimal) (HP, error) {
	hp := inr.Div(decimal.NewFromInt(INRPerHP)).RoundBank(Places)
	return FromDecimal(hp)
}

// INR returns the rupee value of the amount at the fixed rate.
func (h HP) INR() decimal.Decimal {
	return h.Decimal().Mul(decimal.NewFromInt(INRPerHP))
}

// MarshalText encodes the amount as its three-decimal string form.
func (h HP) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses a decimal HP amount.
func (h *HP) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
