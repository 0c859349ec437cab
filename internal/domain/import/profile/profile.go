// Package profile remembers how a bank's export files are shaped, so the
// second import from the same bank skips detection entirely. A profile keys
// on the file's header fingerprint and stores the confirmed column mapping,
// locale and date format.
package profile

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/inmoledger/inmoledger/internal/domain/import/columns"
	"github.com/inmoledger/inmoledger/internal/domain/import/dates"
	"github.com/inmoledger/inmoledger/internal/domain/import/locale"
	"github.com/inmoledger/inmoledger/internal/domain/import/normalizer"
)

// Profile is a remembered statement schema for one bank export variant.
type Profile struct {
	ID          string              `json:"id"`
	BankName    string              `json:"bank_name,omitempty"`
	Fingerprint string              `json:"fingerprint"`
	Headers     []string            `json:"headers"`
	SampleHash  string              `json:"sample_hash,omitempty"`
	Mapping     columns.Mapping     `json:"mapping"`
	Locale      locale.NumberLocale `json:"locale"`
	DateFormat  string              `json:"date_format"`
	UsageCount  int                 `json:"usage_count"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUsedAt  time.Time           `json:"last_used_at"`
}

// New builds a profile from a confirmed detection result.
func New(bankName, fingerprint, sampleHash string, headers []string, det *columns.Result) *Profile {
	now := time.Now().UTC()
	return &Profile{
		ID:          uuid.NewString(),
		BankName:    bankName,
		Fingerprint: fingerprint,
		Headers:     headers,
		SampleHash:  sampleHash,
		Mapping:     det.Mapping,
		Locale:      det.Locale,
		DateFormat:  det.DateFormat.Format,
		UsageCount:  1,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
}

// ParseDate applies the profile's remembered date format, falling back to
// catalog detection for cells that do not fit.
func (p *Profile) ParseDate(raw string) (time.Time, bool) {
	if p.DateFormat != "" {
		if t, ok := dates.ParseAs(raw, p.DateFormat); ok {
			return t, true
		}
	}
	return dates.Parse(raw)
}

// Match confidence levels in descending order of trust.
const (
	exactMatchConfidence  = 0.95
	sampleMatchConfidence = 0.9
	fuzzyMatchFloor       = 0.9
)

// MatchResult pairs a profile with the confidence of the match.
type MatchResult struct {
	Profile    *Profile
	Confidence float64
	Method     string
}

// Match finds the best stored profile for a file's headers. The method
// order is structural: exact fingerprint beats sample hash beats fuzzy
// header similarity, with confidence breaking ties only within a method.
// Fuzzy confidence is the raw similarity, so a near-perfect fuzzy score
// never displaces an exact match. Fuzzy hits below the floor are discarded.
func Match(profiles []*Profile, fingerprint, sampleHash string, headers []string) *MatchResult {
	var best *MatchResult
	bestRank := 0
	for _, p := range profiles {
		var m *MatchResult
		rank := 0
		switch {
		case p.Fingerprint == fingerprint:
			m = &MatchResult{Profile: p, Confidence: exactMatchConfidence, Method: "fingerprint"}
			rank = 3
		case sampleHash != "" && p.SampleHash == sampleHash:
			m = &MatchResult{Profile: p, Confidence: sampleMatchConfidence, Method: "sample_hash"}
			rank = 2
		default:
			if sim := headerSimilarity(p.Headers, headers); sim >= fuzzyMatchFloor {
				m = &MatchResult{Profile: p, Confidence: sim, Method: "fuzzy_headers"}
				rank = 1
			}
		}
		if m == nil {
			continue
		}
		if best == nil || rank > bestRank || (rank == bestRank && m.Confidence > best.Confidence) {
			best = m
			bestRank = rank
		}
	}
	return best
}

// headerSimilarity scores two header rows positionally in [0,1]. Headers
// must line up column for column; banks reorder columns between export
// variants rarely enough that positional comparison is the safer default.
func headerSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	total := 0.0
	for i := range a {
		total += cellSimilarity(normalizer.NormalizeHeader(a[i]), normalizer.NormalizeHeader(b[i]))
	}
	return total / float64(len(a))
}

func cellSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 1
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	sim := 1 - float64(dist)/float64(longer)
	if sim < 0 {
		return 0
	}
	return sim
}

// DisplayName returns the bank name or a short stand-in for unnamed profiles.
func (p *Profile) DisplayName() string {
	if p.BankName != "" {
		return p.BankName
	}
	if len(p.Headers) > 0 {
		return strings.Join(p.Headers[:minInt(3, len(p.Headers))], "/")
	}
	return p.ID[:8]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
