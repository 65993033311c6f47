package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// moneyExp is the fixed exponent for collateral-unit precision: 6 fraction
// digits, matching the on-chain USDC decimals used throughout the venue.
const moneyExp = -6

// Money is a fixed-point collateral amount with 6 fraction digits. It wraps
// decimal.Decimal rather than float64 so that split/merge/redeem accounting
// never accumulates binary-floating-point rounding error.
type Money struct {
	d decimal.Decimal
}

// NewMoney builds a Money from a decimal string, e.g. "2.5".
func NewMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return Money{d: d.Truncate(-moneyExp)}, nil
}

// MoneyFromFloat builds a Money from a float64. Only used at config-load and
// venue-response boundaries, never in internal arithmetic chains.
func MoneyFromFloat(f float64) Money {
	return Money{d: decimal.NewFromFloat(f).Truncate(-moneyExp)}
}

func (m Money) Decimal() decimal.Decimal { return m.d }
func (m Money) String() string           { return m.d.StringFixed(-moneyExp) }
func (m Money) Float64() float64         { f, _ := m.d.Float64(); return f }
func (m Money) IsZero() bool             { return m.d.IsZero() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }

func (m Money) Add(other Money) Money { return Money{d: m.d.Add(other.d)} }
func (m Money) Sub(other Money) Money { return Money{d: m.d.Sub(other.d)} }

// Mul multiplies by an arbitrary decimal factor (e.g. a Price), truncated
// back to moneyExp fraction digits — used for cost = size * price math that
// must never round-trip through a binary float.
func (m Money) Mul(factor decimal.Decimal) Money { return Money{d: m.d.Mul(factor).Truncate(-moneyExp)} }

func (m Money) Cmp(other Money) int   { return m.d.Cmp(other.d) }
func (m Money) LessThan(other Money) bool    { return m.d.LessThan(other.d) }
func (m Money) GreaterThan(other Money) bool { return m.d.GreaterThan(other.d) }

// Min returns the smaller of two Money values — used for the neither-filled
// merge amount min(yes_balance, no_balance) and for redeemer balance caps.
func MinMoney(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Price is a fixed-point probability/price in [0, 1], tick-aligned.
// Rounding is always explicit: floor-to-tick for sells, ceil-to-tick for
// buys, per the money-representation rule. decimal's default Round uses
// banker's rounding, which is never used here.
type Price struct {
	d decimal.Decimal
}

// NewPrice builds a Price from a decimal string, e.g. "0.605".
func NewPrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return Price{d: d}, nil
}

// PriceFromFloat builds a Price from a float64 (venue-response boundary only).
func PriceFromFloat(f float64) Price {
	return Price{d: decimal.NewFromFloat(f)}
}

func (p Price) Decimal() decimal.Decimal { return p.d }
func (p Price) Float64() float64         { f, _ := p.d.Float64(); return f }
func (p Price) String() string           { return p.d.String() }

func (p Price) Add(other Price) Price      { return Price{d: p.d.Add(other.d)} }
func (p Price) Sub(other Price) Price      { return Price{d: p.d.Sub(other.d)} }
func (p Price) Mul(factor decimal.Decimal) Price { return Price{d: p.d.Mul(factor)} }
func (p Price) Cmp(other Price) int        { return p.d.Cmp(other.d) }
func (p Price) LessThan(other Price) bool    { return p.d.LessThan(other.d) }
func (p Price) GreaterThan(other Price) bool { return p.d.GreaterThan(other.d) }

// tickStep returns the tick size as a decimal, e.g. Tick001 -> 0.01.
func tickStep(t TickSize) decimal.Decimal {
	d, err := decimal.NewFromString(string(t))
	if err != nil {
		return decimal.New(1, -2) // 0.01 fallback, matches TickSize's own default
	}
	return d
}

// RoundFloorTick rounds down to the nearest tick — used for SELL prices, so
// the maker never quotes above what it actually wants to receive.
// Generalizes the float roundDownToTick helper.
func (p Price) RoundFloorTick(t TickSize) Price {
	step := tickStep(t)
	if step.IsZero() {
		return p
	}
	units := p.d.Div(step).Floor()
	return Price{d: units.Mul(step)}
}

// RoundCeilTick rounds up to the nearest tick — used for BUY prices, so the
// maker never underpays relative to what it intended to bid.
// Generalizes the float roundUpToTick helper.
func (p Price) RoundCeilTick(t TickSize) Price {
	step := tickStep(t)
	if step.IsZero() {
		return p
	}
	units := p.d.Div(step).Ceil()
	return Price{d: units.Mul(step)}
}
