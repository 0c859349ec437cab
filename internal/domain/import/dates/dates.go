// Package dates detects and parses the date formats found in bank exports.
// The catalog is fixed and biased towards Spanish statements: DD/MM/YYYY and
// ISO rank highest, US MM/DD/YYYY ranks low.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FormatSpec is one entry of the fixed format catalog.
type FormatSpec struct {
	Name       string
	Pattern    *regexp.Regexp
	Confidence float64

	// order maps capture groups to day/month/year positions.
	dayIdx, monthIdx, yearIdx int
	twoDigitYear              bool
}

// DetectionResult names the winning format for a sample set.
type DetectionResult struct {
	Format     string
	Confidence float64
}

const (
	defaultFormat     = "DD/MM/YYYY"
	defaultConfidence = 0.5

	// Plausibility window: parses outside it are treated as misparses.
	maxYearsPast   = 10
	maxYearsFuture = 1

	twoDigitYearPivot = 50
)

// Catalog order is descending prior confidence; Parse walks it in order.
var catalog = []FormatSpec{
	{Name: "DD/MM/YYYY", Pattern: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), Confidence: 0.95, dayIdx: 1, monthIdx: 2, yearIdx: 3},
	{Name: "YYYY-MM-DD", Pattern: regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), Confidence: 0.9, yearIdx: 1, monthIdx: 2, dayIdx: 3},
	{Name: "DD-MM-YYYY", Pattern: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), Confidence: 0.85, dayIdx: 1, monthIdx: 2, yearIdx: 3},
	{Name: "YYYY/MM/DD", Pattern: regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`), Confidence: 0.8, yearIdx: 1, monthIdx: 2, dayIdx: 3},
	{Name: "DD/MM/YY", Pattern: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`), Confidence: 0.75, dayIdx: 1, monthIdx: 2, yearIdx: 3, twoDigitYear: true},
	{Name: "DD-MM-YY", Pattern: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2})$`), Confidence: 0.7, dayIdx: 1, monthIdx: 2, yearIdx: 3, twoDigitYear: true},
	{Name: "DDMMYYYY", Pattern: regexp.MustCompile(`^(\d{2})(\d{2})(\d{4})$`), Confidence: 0.65, dayIdx: 1, monthIdx: 2, yearIdx: 3},
	{Name: "YYYYMMDD", Pattern: regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`), Confidence: 0.6, yearIdx: 1, monthIdx: 2, dayIdx: 3},
	{Name: "MM/DD/YYYY", Pattern: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), Confidence: 0.3, monthIdx: 1, dayIdx: 2, yearIdx: 3},
}

// Detect scores every catalog format against the samples and returns the
// highest scoring one. Score is successRate x prior confidence; a sample only
// counts as a success when it matches the regex and parses to a plausible
// date, which guards against MM/DD misparses being accepted.
func Detect(samples []string) DetectionResult {
	now := time.Now()
	best := DetectionResult{Format: defaultFormat, Confidence: defaultConfidence}
	bestScore := 0.0

	total := 0
	cleaned := make([]string, 0, len(samples))
	for _, s := range samples {
		c := Clean(s)
		if c == "" {
			continue
		}
		cleaned = append(cleaned, c)
		total++
	}
	if total == 0 {
		return best
	}

	for _, spec := range catalog {
		successes := 0
		for _, s := range cleaned {
			if t, ok := spec.parse(s); ok && plausible(t, now) {
				successes++
			}
		}
		if successes == 0 {
			continue
		}
		score := (float64(successes) / float64(total)) * spec.Confidence
		if score > bestScore {
			bestScore = score
			best = DetectionResult{Format: spec.Name, Confidence: score}
		}
	}
	return best
}

// Parse cleans the input and tries every catalog format in descending prior
// confidence, returning the first plausible hit.
func Parse(raw string) (time.Time, bool) {
	s := Clean(raw)
	if s == "" {
		return time.Time{}, false
	}
	now := time.Now()
	for _, spec := range catalog {
		if t, ok := spec.parse(s); ok && plausible(t, now) {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAs parses with one pinned catalog format, used when a stored bank
// profile already knows the file's convention.
func ParseAs(raw, format string) (time.Time, bool) {
	s := Clean(raw)
	if s == "" {
		return time.Time{}, false
	}
	now := time.Now()
	for _, spec := range catalog {
		if spec.Name != format {
			continue
		}
		if t, ok := spec.parse(s); ok && plausible(t, now) {
			return t, true
		}
		return time.Time{}, false
	}
	return Parse(raw)
}

// Clean strips spaces and normalizes dot separators to slashes so that
// "15.03.2024" and "15/03/2024" hit the same catalog entry.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	if strings.Count(s, ".") >= 2 {
		s = strings.ReplaceAll(s, ".", "/")
	}
	return s
}

func (f FormatSpec) parse(s string) (time.Time, bool) {
	m := f.Pattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[f.dayIdx])
	month, _ := strconv.Atoi(m[f.monthIdx])
	year, _ := strconv.Atoi(m[f.yearIdx])
	if f.twoDigitYear {
		if year > twoDigitYearPivot {
			year += 1900
		} else {
			year += 2000
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (31/02 becomes 02/03); reject those.
	if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

func plausible(t, now time.Time) bool {
	return !t.Before(now.AddDate(-maxYearsPast, 0, 0)) && !t.After(now.AddDate(maxYearsFuture, 0, 0))
}
