// Package amount converts human/bank-formatted amount strings into integer
// cents. Integer cents are the canonical unit everywhere in the importer;
// float euro views are derived at the edges only.
package amount

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/inmoledger/inmoledger/internal/domain/import/locale"
)

// Result is the outcome of parsing a single amount cell.
type Result struct {
	Cents int64
	OK    bool
}

var (
	drMarker    = regexp.MustCompile(`(?i)\bDR\b`)
	crMarker    = regexp.MustCompile(`(?i)\bCR\b`)
	eurText     = regexp.MustCompile(`(?i)EUR`)
	letterStrip = regexp.MustCompile(`[^\d.,+()\-]`)
	allDigits   = regexp.MustCompile(`^\d+$`)
)

// ParseToCents parses an arbitrary bank-formatted amount string. It handles
// DR/CR markers, currency symbols, parentheses and trailing-minus negatives,
// and resolves the decimal separator from the string itself (rightmost of
// '.'/',' when both appear, group length otherwise). Returns ok=false on any
// malformed input; never panics.
func ParseToCents(raw string) Result {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Result{}
	}

	forceNegative := drMarker.MatchString(s)
	forcePositive := !forceNegative && crMarker.MatchString(s)
	s = drMarker.ReplaceAllString(s, "")
	s = crMarker.ReplaceAllString(s, "")

	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == ' ' || r == '€' {
			return -1
		}
		return r
	}, s)
	s = eurText.ReplaceAllString(s, "")

	s = strings.TrimPrefix(s, "+")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}

	// Anything non-numeric left over (stray letters, symbols) is dropped.
	s = letterStrip.ReplaceAllString(s, "")
	if s == "" || strings.ContainsAny(s, "+()-") {
		return Result{}
	}

	intPart, decPart, ok := splitSeparators(s)
	if !ok {
		return Result{}
	}

	assembled := intPart
	if decPart != "" {
		assembled = intPart + "." + decPart
	}
	d, err := decimal.NewFromString(assembled)
	if err != nil {
		return Result{}
	}
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	switch {
	case forceNegative:
		cents = -abs(cents)
	case forcePositive:
		cents = abs(cents)
	case negative:
		cents = -cents
	}
	return Result{Cents: cents, OK: true}
}

// splitSeparators resolves which of '.'/',' is the decimal separator and
// returns validated integer and decimal digit strings.
func splitSeparators(s string) (intPart, decPart string, ok bool) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Rightmost separator is the decimal one, the other is grouping.
		thouSep := ","
		decIdx := lastDot
		if lastComma > lastDot {
			thouSep = "."
			decIdx = lastComma
		}
		intPart = strings.ReplaceAll(s[:decIdx], thouSep, "")
		decPart = s[decIdx+1:]
	case lastComma >= 0:
		tail := s[lastComma+1:]
		if len(tail) >= 1 && len(tail) <= 2 {
			intPart, decPart = s[:lastComma], tail
		} else {
			intPart = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		tail := s[lastDot+1:]
		if len(tail) >= 1 && len(tail) <= 2 {
			intPart, decPart = s[:lastDot], tail
		} else {
			intPart = strings.ReplaceAll(s, ".", "")
		}
	default:
		intPart = s
	}

	if intPart == "" || !allDigits.MatchString(intPart) {
		return "", "", false
	}
	if decPart != "" && !allDigits.MatchString(decPart) {
		return "", "", false
	}
	return intPart, decPart, true
}

// Euros returns the float euro view of an integer cent amount.
func Euros(cents int64) float64 {
	return float64(cents) / 100
}

// FormatCents renders cents in the canonical two-decimal form of the given
// locale, without grouping. Re-parsing the output yields the same cents.
func FormatCents(cents int64, loc locale.NumberLocale) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d%c%02d", sign, cents/100, loc.DecimalSep, cents%100)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
