// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/costroll/internal/money"
)

// FormatMoney formats an amount in the given currency, e.g. "$1,234.56".
func FormatMoney(m money.Money, currency string) string {
	return m.Format(currency)
}

// FormatAmount formats an amount without a currency symbol, with comma
// separators and two decimals: 1234.5 -> "1,234.50".
func FormatAmount(m money.Money) string {
	cents := m.Cents()
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s.%02d", sign, FormatNumber(cents/100), cents%100)
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats part/whole as a percentage, "-" when whole is zero.
func FormatPercent(part, whole money.Money) string {
	if whole.IsZero() {
		return "-"
	}
	pct := part.Decimal().Div(whole.Decimal()).Mul(decimal.NewFromInt(100))
	return pct.StringFixed(1) + "%"
}

// FormatTime formats an optional timestamp in local time, "-" when unset.
func FormatTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

// OrDash returns s, or "-" when it is empty.
func OrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
