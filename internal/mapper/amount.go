package mapper

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("empty amount")

// ParseAmount reads a bank-formatted number. It tolerates currency symbols,
// three-letter currency codes, thousands separators, a leading or trailing
// minus and accounting parentheses. With decimalComma the roles of '.' and ','
// are swapped.
func ParseAmount(raw string, decimalComma bool) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "-") {
		neg = !neg
		s = strings.TrimSpace(strings.TrimSuffix(s, "-"))
	}
	s = stripCurrencyCode(s)

	var b strings.Builder
	digits, points := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '.' || r == ',':
			if (r == ',') == decimalComma {
				if points > 0 {
					return decimal.Zero, fmt.Errorf("amount %q: more than one decimal separator", raw)
				}
				b.WriteByte('.')
				points++
			} else if points > 0 {
				return decimal.Zero, fmt.Errorf("amount %q: grouping separator after the decimal point", raw)
			}
		case r == '-' || r == '−':
			if digits > 0 {
				return decimal.Zero, fmt.Errorf("amount %q: misplaced minus", raw)
			}
			neg = !neg
		case r == '+':
			if digits > 0 {
				return decimal.Zero, fmt.Errorf("amount %q: misplaced plus", raw)
			}
		case r == '\'' || unicode.IsSpace(r) || unicode.Is(unicode.Sc, r):
		default:
			return decimal.Zero, fmt.Errorf("amount %q: unexpected %q", raw, r)
		}
	}
	if digits == 0 {
		return decimal.Zero, fmt.Errorf("amount %q: no digits", raw)
	}

	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", raw, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// stripCurrencyCode drops a leading or trailing ISO code such as "USD".
func stripCurrencyCode(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return s
	}
	if isCurrencyCode(fields[0]) {
		return strings.Join(fields[1:], " ")
	}
	if isCurrencyCode(fields[len(fields)-1]) {
		return strings.Join(fields[:len(fields)-1], " ")
	}
	return s
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
