package fulfillment

import (
	"strings"
	"unicode"
)

// orderNumberPrefixes are source-specific document prefixes stripped during
// normalization, longest first. A prefix is only stripped when a digit
// follows it, so "SOUTH123" keeps its leading letters.
var orderNumberPrefixes = []string{"ORD", "SO", "PO"}

// NormalizeOrderNumber canonicalizes an order number for matching.
//
// Steps: uppercase, drop every non-alphanumeric rune, strip one known
// document prefix when followed by a digit, then strip leading zeros.
//
// Leading-zero policy: zeros are stripped only from purely numeric
// remainders, so "SO 0000125" and "0000125" both normalize to "125" while
// "A00125" keeps its zeros. An all-zero number normalizes to "0".
// Returns the empty string when no alphanumeric content remains; such
// records are excluded from number matching.
func NormalizeOrderNumber(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return ""
	}

	for _, p := range orderNumberPrefixes {
		if len(s) > len(p) && strings.HasPrefix(s, p) && isASCIIDigit(s[len(p)]) {
			s = s[len(p):]
			break
		}
	}

	if isAllDigits(s) {
		s = strings.TrimLeft(s, "0")
		if s == "" {
			return "0"
		}
	}

	return s
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isASCIIDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}
