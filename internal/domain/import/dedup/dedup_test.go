package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inmoledger/inmoledger/internal/domain/import/model"
)

func mov(day int, cents int64, desc string) *model.Movement {
	return &model.Movement{
		Date:        time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Cents:       cents,
		Description: desc,
	}
}

func TestHash(t *testing.T) {
	base := Fields{
		Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Cents:       -3218,
		Description: "PAGO RECIBO LUZ",
	}

	t.Run("stable", func(t *testing.T) {
		assert.Equal(t, Hash(base), Hash(base))
		assert.Len(t, Hash(base), 40) // sha1 hex
	})

	t.Run("casing and whitespace do not matter", func(t *testing.T) {
		variant := base
		variant.Description = "  pago   recibo luz "
		assert.Equal(t, Hash(base), Hash(variant))
	})

	t.Run("accents do not matter", func(t *testing.T) {
		a, b := base, base
		a.Description = "NÓMINA MARZO"
		b.Description = "nomina marzo"
		assert.Equal(t, Hash(a), Hash(b))
	})

	t.Run("amount matters", func(t *testing.T) {
		variant := base
		variant.Cents = -3219
		assert.NotEqual(t, Hash(base), Hash(variant))
	})

	t.Run("date matters", func(t *testing.T) {
		variant := base
		variant.Date = base.Date.AddDate(0, 0, 1)
		assert.NotEqual(t, Hash(base), Hash(variant))
	})

	t.Run("reference matters", func(t *testing.T) {
		variant := base
		variant.Reference = "REF-001"
		assert.NotEqual(t, Hash(base), Hash(variant))
	})

	t.Run("account scopes the hash", func(t *testing.T) {
		a, b := base, base
		a.AccountID = "acc-1"
		b.AccountID = "acc-2"
		assert.NotEqual(t, Hash(a), Hash(b))
	})

	t.Run("counterparty matters but its casing does not", func(t *testing.T) {
		variant := base
		variant.Counterparty = "ENDESA ENERGÍA"
		assert.NotEqual(t, Hash(base), Hash(variant))

		folded := variant
		folded.Counterparty = "  endesa energia "
		assert.Equal(t, Hash(variant), Hash(folded))
	})
}

func TestFallbackHash(t *testing.T) {
	f := Fields{Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Cents: 100, Description: "x"}
	assert.Equal(t, FallbackHash(f), FallbackHash(f))
	assert.Len(t, FallbackHash(f), 8)
}

func TestDeduplicate(t *testing.T) {
	t.Run("casing variants collapse, first wins", func(t *testing.T) {
		first := mov(15, -3218, "PAGO RECIBO LUZ")
		second := mov(15, -3218, "  pago recibo LUZ ")
		third := mov(15, -2400, "OTRA COSA")

		kept, dropped := Deduplicate([]*model.Movement{first, second, third}, nil)
		assert.Equal(t, 1, dropped)
		require.Len(t, kept, 2)
		assert.Same(t, first, kept[0])
		assert.Same(t, third, kept[1])
	})

	t.Run("idempotent", func(t *testing.T) {
		input := []*model.Movement{
			mov(15, -3218, "PAGO RECIBO LUZ"),
			mov(15, -3218, "pago recibo luz"),
			mov(16, 2400, "ABONO"),
		}
		once, _ := Deduplicate(input, nil)
		twice, droppedAgain := Deduplicate(once, nil)
		assert.Equal(t, 0, droppedAgain)
		assert.Equal(t, once, twice)
	})

	t.Run("existing hashes drop stored rows", func(t *testing.T) {
		m := mov(15, -3218, "PAGO RECIBO LUZ")
		kept, dropped := Deduplicate([]*model.Movement{m}, []string{HashMovement(m)})
		assert.Empty(t, kept)
		assert.Equal(t, 1, dropped)
	})

	t.Run("order preserved", func(t *testing.T) {
		input := []*model.Movement{mov(17, 1, "a"), mov(15, 2, "b"), mov(16, 3, "c")}
		kept, _ := Deduplicate(input, nil)
		require.Len(t, kept, 3)
		for i := range input {
			assert.Same(t, input[i], kept[i])
		}
	})
}

func TestIsDuplicate(t *testing.T) {
	m := mov(15, -3218, "PAGO")
	set := map[string]struct{}{HashMovement(m): {}}
	assert.True(t, IsDuplicate(m, set))
	assert.False(t, IsDuplicate(mov(16, 5, "x"), set))
}

func TestIndex(t *testing.T) {
	idx := NewIndex([]string{"aa"})
	assert.True(t, idx.Seen("aa"))
	assert.False(t, idx.Seen("bb"))
	assert.True(t, idx.Seen("bb"))
	assert.Equal(t, 2, idx.Len())
}
