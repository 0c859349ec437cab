package sign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDoubleEntry(t *testing.T) {
	t.Run("debit is negative", func(t *testing.T) {
		d := FromDoubleEntry("32,18", "")
		require.True(t, d.OK)
		assert.Equal(t, int64(-3218), d.Cents)
		assert.False(t, d.Conflict)
	})

	t.Run("credit is positive", func(t *testing.T) {
		d := FromDoubleEntry("", "32,18")
		require.True(t, d.OK)
		assert.Equal(t, int64(3218), d.Cents)
	})

	t.Run("printed minus in debit cell is ignored", func(t *testing.T) {
		// Some banks print debits as negatives; the column identity decides.
		d := FromDoubleEntry("-32,18", "")
		require.True(t, d.OK)
		assert.Equal(t, int64(-3218), d.Cents)
	})

	t.Run("both nonzero picks larger magnitude with penalty", func(t *testing.T) {
		d := FromDoubleEntry("100,00", "20,00")
		require.True(t, d.OK)
		assert.Equal(t, int64(-10000), d.Cents)
		assert.True(t, d.Conflict)
		assert.InDelta(t, 0.95*0.6, d.Confidence, 0.0001)

		d = FromDoubleEntry("20,00", "100,00")
		require.True(t, d.OK)
		assert.Equal(t, int64(10000), d.Cents)
	})

	t.Run("both zero is a zero movement with near-zero confidence", func(t *testing.T) {
		d := FromDoubleEntry("0,00", "0,00")
		require.True(t, d.OK)
		assert.Equal(t, int64(0), d.Cents)
		assert.False(t, d.Conflict)
		assert.InDelta(t, 0.1, d.Confidence, 0.0001)
	})

	t.Run("unparseable side scales confidence", func(t *testing.T) {
		d := FromDoubleEntry("garbage!!", "24,00")
		require.True(t, d.OK)
		assert.Equal(t, int64(2400), d.Cents)
		assert.InDelta(t, 0.95*0.8, d.Confidence, 0.0001)
	})

	t.Run("empty side carries no penalty", func(t *testing.T) {
		d := FromDoubleEntry("", "24,00")
		require.True(t, d.OK)
		assert.InDelta(t, 0.95, d.Confidence, 0.0001)
	})

	t.Run("both empty fails", func(t *testing.T) {
		d := FromDoubleEntry("", "")
		assert.False(t, d.OK)
	})
}

func TestFromSingleColumn(t *testing.T) {
	t.Run("keeps literal sign", func(t *testing.T) {
		d := FromSingleColumn("-38,69")
		require.True(t, d.OK)
		assert.Equal(t, int64(-3869), d.Cents)
		assert.InDelta(t, 0.9, d.Confidence, 0.0001)

		d = FromSingleColumn("1.000,00")
		require.True(t, d.OK)
		assert.Equal(t, int64(100000), d.Cents)
	})

	t.Run("suffix minus and parens", func(t *testing.T) {
		d := FromSingleColumn("3.218,00-")
		require.True(t, d.OK)
		assert.Equal(t, int64(-321800), d.Cents)

		d = FromSingleColumn("(24,00)")
		require.True(t, d.OK)
		assert.Equal(t, int64(-2400), d.Cents)
	})

	t.Run("garbage fails", func(t *testing.T) {
		assert.False(t, FromSingleColumn("n/a").OK)
	})
}

// Sign derives from column identity and cell values only. Descriptions like
// "abono" or "pago" must never flip it, so two rows differing only in
// description always derive the same sign.
func TestSignIgnoresDescription(t *testing.T) {
	rows := []struct{ debit, credit string }{
		{"32,18", ""},
		{"", "32,18"},
	}
	descriptions := []string{"PAGO RECIBO LUZ", "ABONO NOMINA", "TRANSFERENCIA", ""}

	for _, row := range rows {
		var derived []int64
		for range descriptions {
			d := FromDoubleEntry(row.debit, row.credit)
			require.True(t, d.OK)
			derived = append(derived, d.Cents)
		}
		for _, c := range derived[1:] {
			assert.Equal(t, derived[0], c)
		}
	}
}
