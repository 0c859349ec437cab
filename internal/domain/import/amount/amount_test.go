package amount

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inmoledger/inmoledger/internal/domain/import/locale"
)

func TestParseToCents(t *testing.T) {
	tests := []struct {
		input string
		cents int64
		ok    bool
	}{
		// Spanish formats
		{"32,18", 3218, true},
		{"(1.234,56)", -123456, true},
		{"3.218,00-", -321800, true}, // BBVA suffix minus
		{"1.234,56", 123456, true},
		{"-32,18", -3218, true},
		{"1.234.567,89", 123456789, true},

		// Anglo formats
		{"1,234.56", 123456, true},
		{"32.18", 3218, true},
		{"-1,234.56", -123456, true},

		// Currency decoration
		{"€ 32,18", 3218, true},
		{"32,18 EUR", 3218, true},
		{"+500,00", 50000, true},

		// DR/CR markers
		{"32,18 DR", -3218, true},
		{"32,18 CR", 3218, true},

		// Bare integers and ambiguous groupings
		{"1000", 100000, true},
		{"1.234", 123400, true}, // 3-digit group reads as thousands
		{"0,00", 0, true},

		// Garbage
		{"", 0, false},
		{"abc", 0, false},
		{"--", 0, false},
		{"Concepto", 0, false},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%q", tc.input), func(t *testing.T) {
			got := ParseToCents(tc.input)
			assert.Equal(t, tc.ok, got.OK)
			if tc.ok {
				assert.Equal(t, tc.cents, got.Cents)
			}
		})
	}
}

func TestParseToCents_SignColumns(t *testing.T) {
	// "32,18" in a debit column is -32.18, in a credit column +32.18; the
	// parser itself always yields the literal magnitude.
	r := ParseToCents("32,18")
	require.True(t, r.OK)
	assert.Equal(t, int64(3218), r.Cents)
	assert.InDelta(t, 32.18, Euros(r.Cents), 0.0001)
}

func TestParseToCents_Idempotent(t *testing.T) {
	loc := locale.DefaultSpanish()
	for _, input := range []string{"32,18", "-1.234,56", "(99,00)", "3.218,00-", "0,00", "1.234.567,89"} {
		first := ParseToCents(input)
		require.True(t, first.OK, input)

		rendered := FormatCents(first.Cents, loc)
		second := ParseToCents(rendered)
		require.True(t, second.OK, rendered)
		assert.Equal(t, first.Cents, second.Cents, "reparse of %q (from %q)", rendered, input)
	}
}

func TestFormatCents(t *testing.T) {
	loc := locale.DefaultSpanish()
	assert.Equal(t, "-3218,00", FormatCents(-321800, loc))
	assert.Equal(t, "32,18", FormatCents(3218, loc))
	assert.Equal(t, "0,00", FormatCents(0, loc))
}

func TestEuros(t *testing.T) {
	assert.InDelta(t, -12.34, Euros(-1234), 0.0001)
	assert.InDelta(t, 0.01, Euros(1), 0.0001)
}
