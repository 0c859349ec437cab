// Package locale infers the number formatting convention (decimal and
// thousands separators) used by a statement file from sample amount cells.
// The inference runs once per file and the result is reused for every cell.
package locale

import (
	"regexp"
	"strings"
	"unicode"
)

// NumberLocale describes the separator convention of a file.
type NumberLocale struct {
	DecimalSep  rune     `json:"decimal_sep"`
	ThousandSep rune     `json:"thousand_sep"` // 0 when the file uses no grouping
	Confidence  float64  `json:"confidence"`
	Samples     []string `json:"samples,omitempty"`
}

// IsEuropean reports whether the locale uses a decimal comma.
func (l NumberLocale) IsEuropean() bool { return l.DecimalSep == ',' }

// Family returns the coarse locale family used in telemetry ("EU" or "EN").
func (l NumberLocale) Family() string {
	if l.IsEuropean() {
		return "EU"
	}
	return "EN"
}

// Scoring weights. Spanish bank exports dominate the corpus this importer is
// tuned for, so comma-decimal evidence carries the most weight.
const (
	commaDecimalWeight   = 0.5
	dotThousandsWeight   = 0.3
	spaceThousandsWeight = 0.2
	dotDecimalWeight     = 0.5
	commaThousandsWeight = 0.3

	minWinningScore   = 0.2
	confidenceBoost   = 0.4
	maxConfidence     = 0.95
	defaultConfidence = 0.6
)

var (
	trailingCommaDecimal = regexp.MustCompile(`,\d{1,2}$`)
	trailingDotDecimal   = regexp.MustCompile(`\.\d{1,2}$`)
	spaceGrouping        = regexp.MustCompile(`\d[ \x{00a0}]\d{3}`)
)

// DefaultSpanish is the fallback when samples carry no usable evidence.
func DefaultSpanish() NumberLocale {
	return NumberLocale{DecimalSep: ',', ThousandSep: '.', Confidence: defaultConfidence}
}

// Detect aggregates separator evidence over the given samples and picks the
// winning convention. Ties and weak evidence fall back to the Spanish locale.
func Detect(samples []string) NumberLocale {
	var (
		eligible       int
		commaDecimals  int
		dotDecimals    int
		dotThousands   int
		commaThousands int
		spaceThousands int
	)

	kept := make([]string, 0, len(samples))
	for _, raw := range samples {
		s := strings.TrimSpace(raw)
		if !containsDigit(s) {
			continue
		}
		eligible++
		if len(kept) < 10 {
			kept = append(kept, s)
		}

		hasTrailingComma := trailingCommaDecimal.MatchString(s)
		hasTrailingDot := trailingDotDecimal.MatchString(s)

		if hasTrailingComma {
			commaDecimals++
		}
		if hasTrailingDot {
			dotDecimals++
		}
		if strings.Count(s, ".") > 1 || (strings.Contains(s, ".") && hasTrailingComma) {
			dotThousands++
		}
		if strings.Count(s, ",") > 1 || (strings.Contains(s, ",") && hasTrailingDot) {
			commaThousands++
		}
		if spaceGrouping.MatchString(s) {
			spaceThousands++
		}
	}

	if eligible == 0 {
		return DefaultSpanish()
	}

	n := float64(eligible)
	spanishScore := (float64(commaDecimals)*commaDecimalWeight +
		float64(dotThousands)*dotThousandsWeight +
		float64(spaceThousands)*spaceThousandsWeight) / n
	angloScore := (float64(dotDecimals)*dotDecimalWeight +
		float64(commaThousands)*commaThousandsWeight) / n

	switch {
	case spanishScore > angloScore && spanishScore > minWinningScore:
		loc := NumberLocale{DecimalSep: ',', ThousandSep: '.', Confidence: capConfidence(spanishScore + confidenceBoost), Samples: kept}
		if spaceThousands > dotThousands {
			loc.ThousandSep = ' '
		}
		return loc
	case angloScore > spanishScore && angloScore > minWinningScore:
		return NumberLocale{DecimalSep: '.', ThousandSep: ',', Confidence: capConfidence(angloScore + confidenceBoost), Samples: kept}
	default:
		loc := DefaultSpanish()
		loc.Samples = kept
		return loc
	}
}

func capConfidence(v float64) float64 {
	if v > maxConfidence {
		return maxConfidence
	}
	return v
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
