package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inmoledger/inmoledger/internal/domain/import/columns"
	"github.com/inmoledger/inmoledger/internal/domain/import/locale"
)

func storedProfile(bank, fingerprint string, headers []string) *Profile {
	m := columns.NewMapping()
	m.Date, m.Description, m.Amount = 0, 1, 2
	return &Profile{
		ID:          bank + "-id",
		BankName:    bank,
		Fingerprint: fingerprint,
		Headers:     headers,
		SampleHash:  "sample-" + bank,
		Mapping:     m,
		Locale:      locale.DefaultSpanish(),
		DateFormat:  "DD/MM/YYYY",
		UsageCount:  1,
		CreatedAt:   time.Now().UTC(),
		LastUsedAt:  time.Now().UTC(),
	}
}

func TestMatch(t *testing.T) {
	headers := []string{"Fecha", "Concepto", "Importe"}
	stored := []*Profile{
		storedProfile("caixa", "fp-caixa", headers),
		storedProfile("bbva", "fp-bbva", []string{"F. Valor", "Concepto", "Importe", "Saldo"}),
	}

	t.Run("exact fingerprint", func(t *testing.T) {
		m := Match(stored, "fp-caixa", "", nil)
		require.NotNil(t, m)
		assert.Equal(t, "caixa", m.Profile.BankName)
		assert.Equal(t, "fingerprint", m.Method)
		assert.InDelta(t, 0.95, m.Confidence, 0.0001)
	})

	t.Run("sample hash", func(t *testing.T) {
		m := Match(stored, "fp-other", "sample-bbva", nil)
		require.NotNil(t, m)
		assert.Equal(t, "bbva", m.Profile.BankName)
		assert.Equal(t, "sample_hash", m.Method)
		assert.InDelta(t, 0.9, m.Confidence, 0.0001)
	})

	t.Run("fuzzy headers", func(t *testing.T) {
		// Same layout, one header tweaked slightly.
		m := Match(stored, "fp-other", "", []string{"Fechas", "Concepto", "Importe"})
		require.NotNil(t, m)
		assert.Equal(t, "caixa", m.Profile.BankName)
		assert.Equal(t, "fuzzy_headers", m.Method)
		// Confidence is the raw positional similarity, not a scaled value.
		assert.InDelta(t, 0.9444, m.Confidence, 0.001)
	})

	t.Run("different layout misses", func(t *testing.T) {
		m := Match(stored, "fp-other", "", []string{"Datum", "Betrag"})
		assert.Nil(t, m)
	})

	t.Run("exact beats fuzzy", func(t *testing.T) {
		m := Match(stored, "fp-bbva", "", headers)
		require.NotNil(t, m)
		assert.Equal(t, "bbva", m.Profile.BankName)
		assert.Equal(t, "fingerprint", m.Method)
	})
}

func TestProfileParseDate(t *testing.T) {
	p := storedProfile("caixa", "fp", nil)

	got, ok := p.ParseDate("15/03/2024")
	require.True(t, ok)
	assert.Equal(t, 15, got.Day())

	// Cells outside the remembered format still parse via the catalog.
	got, ok = p.ParseDate("2024-03-15")
	require.True(t, ok)
	assert.Equal(t, 15, got.Day())
}

func TestDisplayName(t *testing.T) {
	p := storedProfile("caixa", "fp", nil)
	assert.Equal(t, "caixa", p.DisplayName())

	p.BankName = ""
	p.Headers = []string{"Fecha", "Concepto", "Importe", "Saldo"}
	assert.Equal(t, "Fecha/Concepto/Importe", p.DisplayName())
}
