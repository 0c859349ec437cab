// Package sign derives the signed amount of a movement from the table's
// column shape. Debit columns mean money out (negative), credit columns
// money in (positive). The description text never participates: words like
// "pago" or "abono" are unreliable and banks contradict themselves.
package sign

import (
	"strings"

	"github.com/inmoledger/inmoledger/internal/domain/import/amount"
)

// Derivation is the signed outcome for one row.
type Derivation struct {
	Cents      int64
	Confidence float64
	OK         bool
	// Conflict is set when both debit and credit carried a nonzero value
	// and the larger magnitude was chosen.
	Conflict bool
}

const (
	doubleEntryConfidence  = 0.95
	singleColumnConfidence = 0.9
	conflictPenaltyFactor  = 0.6
	parseFailurePenalty    = 0.8
	zeroValueConfidence    = 0.1
)

// FromDoubleEntry resolves split debit/credit cells. Either cell may be
// empty. A debit value is negated regardless of how it was printed; credit
// stays positive. When both are nonzero the larger magnitude wins with a
// penalized confidence; each non-empty cell that fails to parse scales the
// confidence by 0.8, and a row whose sides are all zero is kept with
// near-zero confidence.
func FromDoubleEntry(debitRaw, creditRaw string) Derivation {
	debit := amount.ParseToCents(debitRaw)
	credit := amount.ParseToCents(creditRaw)

	conf := doubleEntryConfidence
	if strings.TrimSpace(debitRaw) != "" && !debit.OK {
		conf *= parseFailurePenalty
	}
	if strings.TrimSpace(creditRaw) != "" && !credit.OK {
		conf *= parseFailurePenalty
	}

	debitCents := int64(0)
	if debit.OK {
		debitCents = absCents(debit.Cents)
	}
	creditCents := int64(0)
	if credit.OK {
		creditCents = absCents(credit.Cents)
	}

	switch {
	case debitCents != 0 && creditCents != 0:
		d := Derivation{Confidence: conf * conflictPenaltyFactor, OK: true, Conflict: true}
		if debitCents >= creditCents {
			d.Cents = -debitCents
		} else {
			d.Cents = creditCents
		}
		return d
	case debitCents != 0:
		return Derivation{Cents: -debitCents, Confidence: conf, OK: true}
	case creditCents != 0:
		return Derivation{Cents: creditCents, Confidence: conf, OK: true}
	case debit.OK || credit.OK:
		// Both sides zero: a zero-value movement, kept but barely trusted.
		return Derivation{Cents: 0, Confidence: zeroValueConfidence, OK: true}
	default:
		return Derivation{}
	}
}

// FromSingleColumn keeps the literal sign of a lone amount column, including
// the sign forced by DR/CR markers or trailing minus inside the cell.
func FromSingleColumn(raw string) Derivation {
	r := amount.ParseToCents(raw)
	if !r.OK {
		return Derivation{}
	}
	return Derivation{Cents: r.Cents, Confidence: singleColumnConfidence, OK: true}
}

func absCents(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
