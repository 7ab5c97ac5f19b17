// Package money provides the fixed-point amount type used by every ledger and
// derived figure. Values are exact decimals; floats never enter arithmetic.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Fraction is the number of minor-unit digits amounts are persisted with.
const Fraction = 2

// Money is an exact monetary amount in major units (e.g. dollars).
// The zero value is zero.
type Money struct {
	value decimal.Decimal
}

// Zero returns a zero amount.
func Zero() Money { return Money{} }

// FromCents builds an amount from integer minor units.
func FromCents(cents int64) Money {
	return Money{value: decimal.New(cents, -Fraction)}
}

// FromDecimal wraps a decimal value.
func FromDecimal(d decimal.Decimal) Money { return Money{value: d} }

// New builds an amount from an integer number of major units.
func New(units int64) Money { return Money{value: decimal.NewFromInt(units)} }

// Parse reads a decimal string such as "1234.50" or "-12".
// Thousands separators and a leading "$" are tolerated.
func Parse(s string) (Money, error) {
	clean := strings.TrimSpace(s)
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimPrefix(clean, "$")
	if clean == "" {
		return Money{}, fmt.Errorf("parsing amount: empty value")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return Money{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return Money{value: d}, nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.value }

// Cents returns the amount in minor units, rounding half away from zero
// when the value carries sub-cent digits.
func (m Money) Cents() int64 { return m.value.Shift(Fraction).Round(0).IntPart() }

// Exact reports whether the amount is representable in whole cents.
func (m Money) Exact() bool { return m.value.Equal(m.value.Round(Fraction)) }

// Round returns the amount rounded to whole cents.
func (m Money) Round() Money { return Money{value: m.value.Round(Fraction)} }

// Truncate drops sub-cent digits toward zero.
func (m Money) Truncate() Money { return Money{value: m.value.Truncate(Fraction)} }

func (m Money) Add(n Money) Money           { return Money{value: m.value.Add(n.value)} }
func (m Money) Sub(n Money) Money           { return Money{value: m.value.Sub(n.value)} }
func (m Money) Neg() Money                  { return Money{value: m.value.Neg()} }
func (m Money) Mul(q decimal.Decimal) Money { return Money{value: m.value.Mul(q)} }
func (m Money) IsZero() bool                { return m.value.IsZero() }
func (m Money) IsPositive() bool            { return m.value.IsPositive() }
func (m Money) IsNegative() bool            { return m.value.IsNegative() }
func (m Money) Equal(n Money) bool          { return m.value.Equal(n.value) }
func (m Money) LessThan(n Money) bool       { return m.value.LessThan(n.value) }
func (m Money) GreaterThan(n Money) bool    { return m.value.GreaterThan(n.value) }
func (m Money) Cmp(n Money) int             { return m.value.Cmp(n.value) }

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.LessThan(b) {
		return b
	}
	return a
}

// Sum adds all amounts.
func Sum(ms ...Money) Money {
	var total Money
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}

// String renders the amount with exactly two decimals, no grouping.
func (m Money) String() string { return m.value.StringFixed(Fraction) }

// Format renders the amount for display in the given ISO currency,
// e.g. "$1,234.50". Unknown currencies fall back to the plain string.
func (m Money) Format(currency string) string {
	if gomoney.GetCurrency(currency) == nil {
		return m.String()
	}
	return gomoney.New(m.Cents(), currency).Display()
}

// MarshalJSON encodes the amount as a quoted two-decimal string so clients
// never round-trip it through binary floating point.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Money{}
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
