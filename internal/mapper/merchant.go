package mapper

import (
	"strings"
	"unicode"
)

// Processor prefixes that carry no merchant identity.
var merchantPrefixes = map[string]bool{
	"POS":           true,
	"ACH":           true,
	"DEBIT":         true,
	"CREDIT":        true,
	"PURCHASE":      true,
	"CHECKCARD":     true,
	"RECURRING":     true,
	"PREAUTHORIZED": true,
}

const maxMerchantFields = 6

// NormalizeMerchant derives the grouping key used for recurrence detection.
// It uppercases, drops punctuation, strips processor prefixes, cuts at the
// first reference-number token and drops trailing tokens containing digits.
// NormalizeMerchant(NormalizeMerchant(s)) == NormalizeMerchant(s).
func NormalizeMerchant(desc string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' {
			return r
		}
		return ' '
	}, strings.ToUpper(desc))

	fields := strings.Fields(cleaned)
	for len(fields) > 1 && merchantPrefixes[fields[0]] {
		fields = fields[1:]
	}
	for i := 1; i < len(fields); i++ {
		if countDigits(fields[i]) >= 4 {
			fields = fields[:i]
			break
		}
	}
	if len(fields) > maxMerchantFields {
		fields = fields[:maxMerchantFields]
	}
	for len(fields) > 0 && countDigits(fields[len(fields)-1]) > 0 {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
