package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inmoledger/inmoledger/internal/domain/import/model"
)

func mov(day int, cents int64, balance *int64) *model.Movement {
	return &model.Movement{
		Date:         time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Cents:        cents,
		BalanceCents: balance,
		SourceRow:    day,
	}
}

func bal(cents int64) *int64 { return &cents }

func TestValidate(t *testing.T) {
	t.Run("consistent chain accepted", func(t *testing.T) {
		opening := int64(567890)
		movements := []*model.Movement{
			mov(1, -3869, bal(564021)),
			mov(2, 2400, bal(566421)),
			mov(3, 100000, bal(666421)),
		}
		rep := Validate(movements, &opening)
		assert.Equal(t, OutcomeAccepted, rep.Outcome)
		assert.Empty(t, rep.Violations)
		assert.Equal(t, 3, rep.CheckedRows)
		assert.Equal(t, int64(666421), rep.ClosingCents)
		assert.Equal(t, int64(98531), rep.NetCents)
		assert.True(t, rep.GoldenRuleOK)
	})

	t.Run("one cent off within tolerance", func(t *testing.T) {
		opening := int64(10000)
		movements := []*model.Movement{
			mov(1, -500, bal(9501)), // rounding artifact
			mov(2, 200, bal(9701)),
		}
		rep := Validate(movements, &opening)
		assert.Equal(t, OutcomeAccepted, rep.Outcome)
		assert.Empty(t, rep.Violations)
	})

	t.Run("widespread violations trigger reconstruction", func(t *testing.T) {
		opening := int64(10000)
		movements := []*model.Movement{
			mov(1, -500, bal(11111)),
			mov(2, 200, bal(22222)),
			mov(3, 100, bal(33333)),
		}
		rep := Validate(movements, &opening)
		assert.Equal(t, OutcomeReconstructed, rep.Outcome)
		assert.Equal(t, 3, rep.Reconstructed)
		// Balances now follow from the opening balance and the amounts.
		require.NotNil(t, movements[0].BalanceCents)
		assert.Equal(t, int64(9500), *movements[0].BalanceCents)
		assert.Equal(t, int64(9700), *movements[1].BalanceCents)
		assert.Equal(t, int64(9800), *movements[2].BalanceCents)
		assert.Equal(t, int64(9800), rep.ClosingCents)
		assert.True(t, rep.GoldenRuleOK)
	})

	t.Run("scattered violations go to manual review", func(t *testing.T) {
		opening := int64(10000)
		movements := make([]*model.Movement, 0, 10)
		running := opening
		for day := 1; day <= 10; day++ {
			running += 100
			b := running
			if day == 5 {
				b += 5000 // one bad row out of ten
			}
			movements = append(movements, mov(day, 100, bal(b)))
		}
		rep := Validate(movements, &opening)
		assert.Equal(t, OutcomeManualReview, rep.Outcome)
		assert.Len(t, rep.Violations, 2) // the bad row and the snap-back after it
	})

	t.Run("no balances means nothing to check", func(t *testing.T) {
		movements := []*model.Movement{mov(1, -500, nil), mov(2, 200, nil)}
		rep := Validate(movements, nil)
		assert.Equal(t, OutcomeAccepted, rep.Outcome)
		assert.Equal(t, 0, rep.CheckedRows)
	})

	t.Run("no balances derives closing from opening plus net", func(t *testing.T) {
		opening := int64(567890)
		movements := []*model.Movement{
			mov(1, -3869, nil),
			mov(2, 2400, nil),
			mov(3, 100000, nil),
		}
		rep := Validate(movements, &opening)
		assert.Equal(t, int64(567890), rep.OpeningCents)
		assert.Equal(t, int64(666421), rep.ClosingCents)
		assert.True(t, rep.GoldenRuleOK)
	})

	t.Run("opening anchored from first stated balance", func(t *testing.T) {
		movements := []*model.Movement{
			mov(1, -3869, bal(564021)),
			mov(2, 2400, bal(566421)),
		}
		rep := Validate(movements, nil)
		assert.Equal(t, int64(567890), rep.OpeningCents)
		assert.Equal(t, OutcomeAccepted, rep.Outcome)
	})

	t.Run("opening anchored when first row has no balance", func(t *testing.T) {
		movements := []*model.Movement{
			mov(1, -3869, nil),
			mov(2, 2400, bal(566421)),
		}
		rep := Validate(movements, nil)
		assert.Equal(t, int64(567890), rep.OpeningCents)
		assert.Equal(t, OutcomeAccepted, rep.Outcome)
		assert.Empty(t, rep.Violations)
		assert.Equal(t, int64(566421), rep.ClosingCents)
	})

	t.Run("closing extends past last stated balance", func(t *testing.T) {
		opening := int64(10000)
		movements := []*model.Movement{
			mov(1, -500, bal(9500)),
			mov(2, 200, nil),
		}
		rep := Validate(movements, &opening)
		assert.Equal(t, int64(9700), rep.ClosingCents)
		assert.True(t, rep.GoldenRuleOK)
	})

	t.Run("empty input", func(t *testing.T) {
		rep := Validate(nil, nil)
		assert.Equal(t, OutcomeAccepted, rep.Outcome)
		assert.True(t, rep.GoldenRuleOK)
	})
}

func TestSummarize(t *testing.T) {
	// Opening 5678.90 with movements -38.69, +24.00, +1000.00.
	movements := []*model.Movement{
		mov(1, -3869, nil),
		mov(2, 2400, nil),
		mov(3, 100000, nil),
	}
	s := Summarize(movements, 567890)

	assert.Equal(t, 3, s.Movements)
	assert.InDelta(t, 5678.90, s.Opening, 0.001)
	assert.InDelta(t, 985.31, s.Net, 0.001)
	assert.InDelta(t, 6664.21, s.Closing, 0.001)
	assert.InDelta(t, 38.69, s.TotalDebits, 0.001)
	assert.InDelta(t, 1024.00, s.TotalCredits, 0.001)

	assert.Contains(t, s.String(), "3 movements")
}

func TestReconstruct(t *testing.T) {
	movements := []*model.Movement{mov(1, -500, nil), mov(2, 200, nil)}
	n := Reconstruct(movements, 10000)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(9500), *movements[0].BalanceCents)
	assert.Equal(t, int64(9700), *movements[1].BalanceCents)
}
