package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NanoPerUnit is the number of nano sub-units in one whole currency unit.
const NanoPerUnit = 1_000_000_000

// CashAmount is a fixed-point money value: whole Units plus a Nano fraction.
// Nano is always in [0, NanoPerUnit); the sign lives in Units, so -1.25 is
// stored as Units -2, Nano 750000000.
type CashAmount struct {
	Units int64 `json:"units" msgpack:"units"`
	Nano  int32 `json:"nano" msgpack:"nano"`
}

// NewCashAmount builds a normalized CashAmount. Nano may be out of range or
// negative (as broker APIs report it) and is folded into Units.
func NewCashAmount(units, nano int64) CashAmount {
	units += nano / NanoPerUnit
	nano %= NanoPerUnit
	if nano < 0 {
		nano += NanoPerUnit
		units--
	}
	return CashAmount{Units: units, Nano: int32(nano)}
}

// CashFromDecimal converts a decimal into a CashAmount, rounding to nano precision.
func CashFromDecimal(d decimal.Decimal) CashAmount {
	d = d.Round(9)
	units := d.Floor()
	nano := d.Sub(units).Shift(9).IntPart()
	return NewCashAmount(units.IntPart(), nano)
}

// CashFromFloat converts a float into a CashAmount.
func CashFromFloat(f float64) CashAmount {
	return CashFromDecimal(decimal.NewFromFloat(f))
}

// Decimal returns the exact decimal value.
func (c CashAmount) Decimal() decimal.Decimal {
	return decimal.New(c.Units, 0).Add(decimal.New(int64(c.Nano), -9))
}

// Float64 returns the floating approximation used by weight arithmetic.
func (c CashAmount) Float64() float64 {
	f, _ := c.Decimal().Float64()
	return f
}

// IsZero reports whether the amount is exactly zero.
func (c CashAmount) IsZero() bool {
	return c.Units == 0 && c.Nano == 0
}

// IsPositive reports whether the amount is strictly greater than zero.
func (c CashAmount) IsPositive() bool {
	return c.Units > 0 || (c.Units == 0 && c.Nano > 0)
}

// Add returns c + other.
func (c CashAmount) Add(other CashAmount) CashAmount {
	return CashFromDecimal(c.Decimal().Add(other.Decimal()))
}

// Sub returns c - other.
func (c CashAmount) Sub(other CashAmount) CashAmount {
	return CashFromDecimal(c.Decimal().Sub(other.Decimal()))
}

// Validate checks the nano invariant.
func (c CashAmount) Validate() error {
	if c.Nano < 0 || c.Nano >= NanoPerUnit {
		return fmt.Errorf("%w: cash fraction %d out of range [0, %d)", ErrDataInconsistency, c.Nano, NanoPerUnit)
	}
	return nil
}

func (c CashAmount) String() string {
	return c.Decimal().StringFixed(2)
}
