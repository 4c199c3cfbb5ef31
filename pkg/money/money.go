// Package money provides exact fixed-point decimal arithmetic for
// monetary quantities: prices, balances, P&L, fees. It wraps
// shopspring/decimal and fixes the scale and rounding mode at every
// public boundary so that two independently-constructed Money values
// for "the same number" always compare equal and format identically.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the fixed number of decimal digits every Money value is
// rounded to. Chosen to hold satoshi-level precision (8 digits) for
// crypto-denominated quantities.
const Scale = 8

// Zero is the additive identity.
var Zero = Money{d: decimal.Zero}

// Money is an exact, fixed-scale decimal quantity. The zero value
// represents zero, the same amount as Zero.
type Money struct {
	d decimal.Decimal
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

// New builds a Money from an integer number of units and an exponent,
// mirroring decimal.New.
func New(value int64, exp int32) Money {
	return Money{d: round(decimal.New(value, exp))}
}

// NewFromInt builds a Money representing a whole number.
func NewFromInt(value int64) Money {
	return Money{d: round(decimal.NewFromInt(value))}
}

// NewFromString parses a decimal string such as "1234.56780000".
func NewFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Money{d: round(d)}, nil
}

// NewFromFloat converts a float64 to Money. This conversion is lossy —
// float64 cannot represent most decimal fractions exactly — and exists
// only for boundary code (legacy doubles, JSON payloads from systems
// that never adopted decimal). Core simulation math must never round
// trip through this function.
func NewFromFloat(f float64) Money {
	return Money{d: round(decimal.NewFromFloat(f))}
}

// Decimal exposes the underlying decimal.Decimal for callers (e.g.
// analytics ratios and the cost model's total percent) that need shopspring/decimal's comparison
// helpers directly. The returned value is already rounded to Scale.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Add returns m + other.
func (m Money) Add(other Money) Money { return Money{d: round(m.d.Add(other.d))} }

// Sub returns m - other.
func (m Money) Sub(other Money) Money { return Money{d: round(m.d.Sub(other.d))} }

// Mul returns m * other, rounded to Scale.
func (m Money) Mul(other Money) Money { return Money{d: round(m.d.Mul(other.d))} }

// MulFrac multiplies by a plain decimal fraction/ratio (e.g. a
// percentage already divided by 100, or a slippage multiplier). Kept
// distinct from Mul so call sites are explicit about which operand is
// a Money and which is a dimensionless ratio.
func (m Money) MulFrac(ratio decimal.Decimal) Money { return Money{d: round(m.d.Mul(ratio))} }

// Div returns m / other. Division by zero is defined as returning Zero
// rather than panicking or producing Inf/NaN — backtests must be able
// to run through degenerate configuration (e.g. a zero-equity peak
// before the first trade) without crashing.
func (m Money) Div(other Money) Money {
	if other.IsZero() {
		return Zero
	}
	return Money{d: round(m.d.Div(other.d))}
}

// DivInt divides by a plain integer count (e.g. averaging over N
// trades), with the same safe-division-by-zero contract as Div.
func (m Money) DivInt(n int64) Money {
	if n == 0 {
		return Zero
	}
	return Money{d: round(m.d.Div(decimal.NewFromInt(n)))}
}

// Neg returns -m.
func (m Money) Neg() Money { return Money{d: round(m.d.Neg())} }

// Abs returns |m|.
func (m Money) Abs() Money { return Money{d: round(m.d.Abs())} }

// PercentOf returns m * (pct/100), the monetary value of a percentage
// of m. Safe for pct == 0.
func (m Money) PercentOf(pct decimal.Decimal) Money {
	return Money{d: round(m.d.Mul(pct).Div(decimal.NewFromInt(100)))}
}

// ApplyPercent returns m grown (or shrunk, for negative pct) by pct
// percent: m * (1 + pct/100).
func (m Money) ApplyPercent(pct decimal.Decimal) Money {
	factor := decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
	return Money{d: round(m.d.Mul(factor))}
}

// CompoundGrowth applies `periods` successive applications of rate
// (as a fraction, not a percent) to m: m * (1+rate)^periods.
func (m Money) CompoundGrowth(rate decimal.Decimal, periods int64) Money {
	factor := decimal.NewFromInt(1).Add(rate).Pow(decimal.NewFromInt(periods))
	return Money{d: round(m.d.Mul(factor))}
}

// SimpleGrowth applies simple (non-compounding) growth: m * (1 + rate*periods).
func (m Money) SimpleGrowth(rate decimal.Decimal, periods int64) Money {
	factor := decimal.NewFromInt(1).Add(rate.Mul(decimal.NewFromInt(periods)))
	return Money{d: round(m.d.Mul(factor))}
}

// Cmp compares m to other: -1, 0, or 1.
func (m Money) Cmp(other Money) int { return m.d.Cmp(other.d) }

// Equal reports value equality, not identity — two Money values built
// different ways but representing the same amount compare equal.
func (m Money) Equal(other Money) bool { return m.d.Equal(other.d) }

// GreaterThan reports m > other.
func (m Money) GreaterThan(other Money) bool { return m.d.GreaterThan(other.d) }

// GreaterThanOrEqual reports m >= other.
func (m Money) GreaterThanOrEqual(other Money) bool { return m.d.GreaterThanOrEqual(other.d) }

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool { return m.d.LessThan(other.d) }

// LessThanOrEqual reports m <= other.
func (m Money) LessThanOrEqual(other Money) bool { return m.d.LessThanOrEqual(other.d) }

// IsZero reports whether m is exactly zero.
func (m Money) IsZero() bool { return m.d.IsZero() }

// IsPositive reports m > 0.
func (m Money) IsPositive() bool { return m.d.IsPositive() }

// IsNegative reports m < 0.
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds a slice of Money values, returning Zero for an empty slice.
func Sum(values []Money) Money {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Float64 converts to float64 for boundary code only (JSON export to
// legacy consumers, human-facing reports). Lossy for values that
// cannot be represented exactly by IEEE 754 double precision.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// String formats with the full fixed scale, e.g. "1234.56780000".
func (m Money) String() string { return m.d.StringFixed(Scale) }

// Display formats with a caller-chosen number of decimals for
// human-facing output (reports, summaries), never used internally.
func (m Money) Display(decimals int32) string { return m.d.StringFixed(decimals) }

// MarshalJSON renders Money as a JSON string (not a float) so that
// round-tripping through JSON never loses precision.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON parses a JSON string back into Money.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewFromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
