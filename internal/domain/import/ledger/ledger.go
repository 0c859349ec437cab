// Package ledger checks the arithmetic consistency of an imported statement:
// every running balance should equal the previous balance plus the movement
// amount, and the closing balance should equal the opening balance plus the
// net of all movements.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/inmoledger/inmoledger/internal/domain/import/model"
)

// Outcome is the verdict of a balance validation pass.
type Outcome string

const (
	// OutcomeAccepted means the balance column is consistent within tolerance.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeReconstructed means the stated balances were unreliable and were
	// recomputed from the opening balance and the amounts.
	OutcomeReconstructed Outcome = "reconstructed"
	// OutcomeManualReview means the inconsistencies are too localized to
	// rebuild safely and a human must decide.
	OutcomeManualReview Outcome = "manual_review"
)

const (
	// toleranceCents absorbs rounding differences between the bank's
	// formatter and ours. One cent either way.
	toleranceCents = 1

	// reconstructThreshold is the violation ratio above which the whole
	// balance column is treated as garbage and rebuilt. Below it, scattered
	// violations look like real data problems and go to review.
	reconstructThreshold = 0.2
)

// Violation records one row where the stated balance disagrees with the
// balance computed from the previous row.
type Violation struct {
	Row           int   `json:"row"`
	StatedCents   int64 `json:"stated_cents"`
	ExpectedCents int64 `json:"expected_cents"`
	DeltaCents    int64 `json:"delta_cents"`
}

// Report is the full validation result for one statement.
type Report struct {
	Outcome       Outcome     `json:"outcome"`
	Violations    []Violation `json:"violations,omitempty"`
	CheckedRows   int         `json:"checked_rows"`
	OpeningCents  int64       `json:"opening_cents"`
	ClosingCents  int64       `json:"closing_cents"`
	NetCents      int64       `json:"net_cents"`
	GoldenRuleOK  bool        `json:"golden_rule_ok"`
	Reconstructed int         `json:"reconstructed_rows,omitempty"`
}

// Summary condenses a statement to the figures shown to the user before
// confirming an import.
type Summary struct {
	Movements    int     `json:"movements"`
	Opening      float64 `json:"opening"`
	Closing      float64 `json:"closing"`
	Net          float64 `json:"net"`
	TotalDebits  float64 `json:"total_debits"`
	TotalCredits float64 `json:"total_credits"`
}

// Validate checks movement balances against their amounts. Movements must be
// sorted by date; openingCents is the balance before the first movement, or
// nil when unknown (the first stated balance then anchors the chain).
func Validate(movements []*model.Movement, openingCents *int64) *Report {
	rep := &Report{Outcome: OutcomeAccepted}
	if len(movements) == 0 {
		rep.GoldenRuleOK = true
		return rep
	}

	var prev *int64
	if openingCents != nil {
		v := *openingCents
		prev = &v
		rep.OpeningCents = v
	} else if opening, ok := anchorOpening(movements); ok {
		prev = &opening
		rep.OpeningCents = opening
	}

	var (
		trailingNet    int64 // net of movements after the last stated balance
		closingFromRow bool
	)
	for i, m := range movements {
		rep.NetCents += m.Cents
		trailingNet += m.Cents
		if m.BalanceCents == nil {
			continue
		}
		if prev != nil {
			// trailingNet includes this row, so rows without a stated
			// balance in between are accounted for.
			expected := *prev + trailingNet
			rep.CheckedRows++
			if delta := abs64(*m.BalanceCents - expected); delta > toleranceCents {
				rep.Violations = append(rep.Violations, Violation{
					Row:           m.SourceRow,
					StatedCents:   *m.BalanceCents,
					ExpectedCents: expected,
					DeltaCents:    *m.BalanceCents - expected,
				})
			}
		}
		v := *m.BalanceCents
		prev = &v
		trailingNet = 0
		if i == len(movements)-1 {
			rep.ClosingCents = v
			closingFromRow = true
		}
	}
	// No stated balance on the last row: derive the closing from the last
	// known balance plus what moved after it, or from opening + net when the
	// file carries no balance column at all.
	if !closingFromRow {
		if prev != nil {
			rep.ClosingCents = *prev + trailingNet
		} else {
			rep.ClosingCents = rep.OpeningCents + rep.NetCents
		}
	}

	if rep.CheckedRows > 0 {
		ratio := float64(len(rep.Violations)) / float64(rep.CheckedRows)
		switch {
		case len(rep.Violations) == 0:
			rep.Outcome = OutcomeAccepted
		case ratio > reconstructThreshold:
			rep.Outcome = OutcomeReconstructed
			rep.Reconstructed = Reconstruct(movements, rep.OpeningCents)
			rep.ClosingCents = rep.OpeningCents + rep.NetCents
		default:
			rep.Outcome = OutcomeManualReview
		}
	}

	rep.GoldenRuleOK = rep.ClosingCents == rep.OpeningCents+rep.NetCents
	return rep
}

// anchorOpening infers the opening balance from the first movement that
// states one: opening = that balance minus every amount up to and including
// its row.
func anchorOpening(movements []*model.Movement) (int64, bool) {
	run := int64(0)
	for _, m := range movements {
		run += m.Cents
		if m.BalanceCents != nil {
			return *m.BalanceCents - run, true
		}
	}
	return 0, false
}

// Reconstruct overwrites every movement's balance with the running total
// from the opening balance. Returns the number of rows rewritten.
func Reconstruct(movements []*model.Movement, openingCents int64) int {
	running := openingCents
	for _, m := range movements {
		running += m.Cents
		v := running
		m.BalanceCents = &v
	}
	return len(movements)
}

// Summarize computes the pre-confirmation figures for a statement. Decimal
// arithmetic keeps the euro totals exact; cents never touch float math.
func Summarize(movements []*model.Movement, openingCents int64) Summary {
	opening := decimal.NewFromInt(openingCents).Div(decimal.NewFromInt(100))
	net := decimal.Zero
	debits := decimal.Zero
	credits := decimal.Zero
	for _, m := range movements {
		d := decimal.NewFromInt(m.Cents).Div(decimal.NewFromInt(100))
		net = net.Add(d)
		if m.Cents < 0 {
			debits = debits.Add(d.Abs())
		} else {
			credits = credits.Add(d)
		}
	}
	closing := opening.Add(net)
	return Summary{
		Movements:    len(movements),
		Opening:      opening.InexactFloat64(),
		Closing:      closing.InexactFloat64(),
		Net:          net.InexactFloat64(),
		TotalDebits:  debits.InexactFloat64(),
		TotalCredits: credits.InexactFloat64(),
	}
}

// String renders the summary the way the CLI prints it.
func (s Summary) String() string {
	return fmt.Sprintf("%d movements, opening %.2f, net %.2f, closing %.2f",
		s.Movements, s.Opening, s.Net, s.Closing)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
