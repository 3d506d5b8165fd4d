package settlement

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// DefaultPrecision is used for any currency missing from the table.
	DefaultPrecision int32 = 2

	// MaxPrecision is the most fractional digits a currency may have.
	// The expenses.amount column stores four.
	MaxPrecision = 4

	// MaxMinor is the largest single amount, in minor units, the engine accepts.
	MaxMinor int64 = 1_000_000_000_000_000
)

var maxMinor = decimal.NewFromInt(MaxMinor)

// Currencies maps an upper-case currency code to its number of fractional digits.
type Currencies map[string]int32

// DefaultCurrencies returns the built-in precision table.
// Two-decimal currencies are not listed since they match DefaultPrecision.
func DefaultCurrencies() Currencies {
	return Currencies{
		// zero-decimal
		"JPY": 0,
		"KRW": 0,
		"VND": 0,
		"CLP": 0,
		"ISK": 0,
		"PYG": 0,
		"UGX": 0,
		"XAF": 0,
		"XOF": 0,
		"TWD": 0,
		// three-decimal
		"BHD": 3,
		"JOD": 3,
		"KWD": 3,
		"OMR": 3,
		"TND": 3,
	}
}

// NormalizeCode trims and upper-cases a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Precision returns the fractional digits for code, falling back to DefaultPrecision.
func (c Currencies) Precision(code string) int32 {
	if p, ok := c[NormalizeCode(code)]; ok {
		return p
	}
	return DefaultPrecision
}

// ToMinor rounds amount to the currency's precision (half away from zero)
// and returns it as an integer count of minor units.
// Amounts beyond MaxMinor in either direction yield 0.
func (c Currencies) ToMinor(amount decimal.Decimal, code string) int64 {
	minor, ok := c.toMinor(amount, code)
	if !ok {
		return 0
	}
	return minor
}

// InRange reports whether amount fits within MaxMinor minor units.
func (c Currencies) InRange(amount decimal.Decimal, code string) bool {
	_, ok := c.toMinor(amount, code)
	return ok
}

func (c Currencies) toMinor(amount decimal.Decimal, code string) (int64, bool) {
	p := c.Precision(code)
	minor := amount.Round(p).Shift(p)
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, false
	}
	return minor.IntPart(), true
}

// FromMinor converts an integer count of minor units back to a decimal amount.
func (c Currencies) FromMinor(minor int64, code string) decimal.Decimal {
	return decimal.New(minor, -c.Precision(code))
}

// Format renders amount with the currency's display precision, e.g. "1000 JPY" or "5.00 USD".
func (c Currencies) Format(amount decimal.Decimal, code string) string {
	return amount.StringFixed(c.Precision(code)) + " " + NormalizeCode(code)
}

// Merge returns a copy of c with the entries of other applied on top.
func (c Currencies) Merge(other Currencies) Currencies {
	out := make(Currencies, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		out[NormalizeCode(k)] = v
	}
	return out
}

// ParseCurrencies parses an override list such as "JPY:0,BHD:3".
// An empty string yields an empty table.
func ParseCurrencies(s string) (Currencies, error) {
	out := Currencies{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		code, digits, ok := strings.Cut(item, ":")
		code = NormalizeCode(code)
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid currency entry %q", item)
		}
		p, err := strconv.Atoi(strings.TrimSpace(digits))
		if err != nil || p < 0 || p > MaxPrecision {
			return nil, fmt.Errorf("invalid precision for %s: %q", code, digits)
		}
		out[code] = int32(p)
	}
	return out, nil
}
