package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are organization suffix tokens dropped during key derivation.
// Both abbreviated and spelled-out forms are recognized.
var legalSuffixes = map[string]bool{
	"INC":          true,
	"LLC":          true,
	"CORP":         true,
	"LTD":          true,
	"CO":           true,
	"INCORPORATED": true,
	"CORPORATION":  true,
	"LIMITED":      true,
	"COMPANY":      true,
}

// foldTransformer decomposes characters and drops combining marks so that
// accented names compare equal to their unaccented spellings.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CanonicalKey derives the unique matching key for an identity name.
//
// Derivation: fold diacritics, uppercase, treat every non-alphanumeric rune
// as a token boundary, drop trailing legal-suffix tokens, then join the
// remaining tokens without separators. "Acme Hospital, Inc." and
// "ACME HOSPITAL" both derive ACMEHOSPITAL.
//
// Returns the empty string when the name carries no usable tokens; callers
// must treat that as a validation failure, not a key.
func CanonicalKey(name string) string {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return ""
	}

	// Strip trailing suffix tokens, but never strip the name to nothing:
	// a company literally named "Co" keeps its only token.
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, "")
}

// KeyPrefix returns the first n characters of a canonical key, or the whole
// key when it is shorter. Prefix agreement is the similarity signal for the
// corroborated and weak match tiers.
func KeyPrefix(key string, n int) string {
	if n <= 0 || len(key) <= n {
		return key
	}
	return key[:n]
}

// SharedKeyPrefix reports whether two canonical keys agree on their first n
// characters. Keys shorter than n only agree when identical; equal keys
// always agree.
func SharedKeyPrefix(a, b string, n int) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len(a) < n || len(b) < n {
		return false
	}
	return a[:n] == b[:n]
}

// EmailDomain extracts the lowercased domain part of an email address.
// Returns the empty string when the input does not look like an address.
func EmailDomain(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// NormalizeAddressPart canonicalizes one address component (city, state or
// postal code) for comparison: fold diacritics, uppercase, drop punctuation,
// collapse interior whitespace to single spaces.
func NormalizeAddressPart(s string) string {
	tokens := nameTokens(s)
	return strings.Join(tokens, " ")
}

// SameAddress reports whether two (city, state, postal code) triples compare
// equal after normalization. Triples with any blank side never match.
func SameAddress(cityA, stateA, zipA, cityB, stateB, zipB string) bool {
	ca, sa, za := NormalizeAddressPart(cityA), NormalizeAddressPart(stateA), NormalizeAddressPart(zipA)
	cb, sb, zb := NormalizeAddressPart(cityB), NormalizeAddressPart(stateB), NormalizeAddressPart(zipB)
	if ca == "" || sa == "" || za == "" || cb == "" || sb == "" || zb == "" {
		return false
	}
	return ca == cb && sa == sb && za == zb
}

// SameState reports whether two state names compare equal after
// normalization. Blank states never match.
func SameState(a, b string) bool {
	na, nb := NormalizeAddressPart(a), NormalizeAddressPart(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}

// nameTokens folds, uppercases and splits a raw name into alphanumeric
// tokens. Punctuation and whitespace both act as token boundaries.
func nameTokens(name string) []string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		// Fold failures only occur on malformed UTF-8; fall back to the
		// raw bytes so the key stays deterministic.
		folded = name
	}

	upper := strings.ToUpper(folded)
	fields := strings.FieldsFunc(upper, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	return fields
}
