// Package dedup builds stable content hashes for movements so re-importing
// the same statement, or overlapping statements, never duplicates rows.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/inmoledger/inmoledger/internal/domain/import/model"
	"github.com/inmoledger/inmoledger/internal/domain/import/normalizer"
)

// Fields is the canonical identity of a movement. Two movements with equal
// Fields are the same real-world transaction regardless of casing, accents
// or surrounding whitespace in the source file. The account ID scopes the
// hash so identical movements on different accounts never collide in a
// shared store.
type Fields struct {
	AccountID    string
	Date         time.Time
	Cents        int64
	Description  string
	Counterparty string
	Reference    string
}

// Hash returns the hex SHA-1 of the normalized identity fields.
func Hash(f Fields) string {
	payload := canonical(f)
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// HashMovement hashes a parsed movement.
func HashMovement(m *model.Movement) string {
	return Hash(Fields{
		AccountID:    m.AccountID,
		Date:         m.Date,
		Cents:        m.Cents,
		Description:  m.Description,
		Counterparty: m.Counterparty,
		Reference:    m.Reference,
	})
}

// FallbackHash is a short FNV-32a digest for environments where SHA-1 is
// unavailable. It collides more readily and only disambiguates within a
// single import batch.
func FallbackHash(f Fields) string {
	h := fnv.New32a()
	h.Write([]byte(canonical(f)))
	return fmt.Sprintf("%08x", h.Sum32())
}

func canonical(f Fields) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(f.AccountID))
	b.WriteByte('|')
	b.WriteString(f.Date.Format("2006-01-02"))
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d", f.Cents)
	b.WriteByte('|')
	b.WriteString(normalizer.NormalizeForHash(f.Description))
	b.WriteByte('|')
	b.WriteString(normalizer.NormalizeForHash(f.Counterparty))
	b.WriteByte('|')
	b.WriteString(normalizer.NormalizeReference(f.Reference))
	return b.String()
}

// Deduplicate drops repeated movements in a single ordered pass, filling in
// each movement's Hash. The first occurrence wins; existing holds hashes
// already persisted for the account so re-imports skip stored rows too.
// Returns the kept movements and the number dropped.
func Deduplicate(movements []*model.Movement, existing []string) ([]*model.Movement, int) {
	idx := NewIndex(existing)
	kept := make([]*model.Movement, 0, len(movements))
	dropped := 0
	for _, m := range movements {
		if m.Hash == "" {
			m.Hash = HashMovement(m)
		}
		if idx.Seen(m.Hash) {
			dropped++
			continue
		}
		kept = append(kept, m)
	}
	return kept, dropped
}

// IsDuplicate reports whether the movement's identity hash is already in the
// given set of persisted hashes.
func IsDuplicate(m *model.Movement, existing map[string]struct{}) bool {
	h := m.Hash
	if h == "" {
		h = HashMovement(m)
	}
	_, ok := existing[h]
	return ok
}

// Index tracks seen hashes across one or more import batches.
type Index struct {
	seen map[string]struct{}
}

// NewIndex builds an index pre-seeded with already-stored hashes.
func NewIndex(existing []string) *Index {
	idx := &Index{seen: make(map[string]struct{}, len(existing))}
	for _, h := range existing {
		idx.seen[h] = struct{}{}
	}
	return idx
}

// Seen reports whether the hash was already recorded, and records it.
func (i *Index) Seen(hash string) bool {
	if _, ok := i.seen[hash]; ok {
		return true
	}
	i.seen[hash] = struct{}{}
	return false
}

// Len returns the number of distinct hashes recorded.
func (i *Index) Len() int { return len(i.seen) }
