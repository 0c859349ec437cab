// Package model holds the canonical record types shared by the importer
// pipeline and its collaborators (the external ledger/account store).
package model

import (
	"sort"
	"time"
)

// Movement is the normalized output unit of an import: one bank transaction
// line with a structurally derived sign. Immutable once produced.
type Movement struct {
	AccountID    string    `json:"account_id,omitempty"`
	Date         time.Time `json:"date"`
	Cents        int64     `json:"cents"` // signed, canonical unit
	Description  string    `json:"description"`
	Counterparty string    `json:"counterparty,omitempty"`
	BalanceCents *int64    `json:"balance_cents,omitempty"` // declared running balance, informational
	Reference    string    `json:"reference,omitempty"`
	SourceRow    int       `json:"source_row"` // 1-based line in the source file
	Confidence   float64   `json:"confidence"`
	Hash         string    `json:"hash"` // stable deduplication fingerprint
}

// Amount is the float euro convenience view of the signed cent amount.
func (m Movement) Amount() float64 { return float64(m.Cents) / 100 }

// Balance returns the declared balance in euros, when the source carried one.
func (m Movement) Balance() (float64, bool) {
	if m.BalanceCents == nil {
		return 0, false
	}
	return float64(*m.BalanceCents) / 100, true
}

// SortByDate orders movements chronologically in place, keeping source order
// for equal dates so first-occurrence-wins semantics stay deterministic.
func SortByDate(movs []*Movement) {
	sort.SliceStable(movs, func(i, j int) bool {
		if !movs[i].Date.Equal(movs[j].Date) {
			return movs[i].Date.Before(movs[j].Date)
		}
		return movs[i].SourceRow < movs[j].SourceRow
	})
}
