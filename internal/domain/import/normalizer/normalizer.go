// Package normalizer provides the text canonicalization shared by column
// detection, profile signatures and deduplication hashing: accent folding,
// whitespace collapsing and punctuation stripping.
package normalizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	spacePattern  = regexp.MustCompile(`\s+`)
	parenPattern  = regexp.MustCompile(`\([^)]*\)`)
	punctPattern  = regexp.MustCompile(`[^\p{L}\p{N} ]+`)
	diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// StripDiacritics folds accented letters to their base form ("Débito" →
// "Debito"). Falls back to the input on malformed UTF-8.
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticFold, s)
	if err != nil {
		return s
	}
	return out
}

// CleanDescription trims and collapses whitespace in free-text cells.
func CleanDescription(raw string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(raw, " "))
}

// NormalizeHeader canonicalizes a column header for keyword matching and
// profile signatures: lowercase, unaccented, parenthesized qualifiers and
// extra spaces removed.
func NormalizeHeader(raw string) string {
	s := StripDiacritics(strings.ToLower(raw))
	s = parenPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// NormalizeForHash canonicalizes free text for fingerprinting: lowercase,
// unaccented, punctuation stripped, whitespace collapsed. Two renderings of
// the same movement description must map to the same string.
func NormalizeForHash(raw string) string {
	s := StripDiacritics(strings.ToLower(raw))
	s = punctPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// NormalizeReference canonicalizes bank references: uppercase, no spaces.
func NormalizeReference(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
}
