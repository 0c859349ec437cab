package profile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	p := storedProfile("caixa", "fp-caixa", []string{"Fecha", "Concepto", "Importe"})
	require.NoError(t, s.Put(ctx, p))

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "caixa", got.BankName)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Delete(ctx, p.ID))
	_, err = s.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Close())
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profiles.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	p := storedProfile("bbva", "fp-bbva", []string{"F. Valor", "Concepto", "Importe"})
	require.NoError(t, s.Put(ctx, p))

	t.Run("round trip", func(t *testing.T) {
		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.BankName, got.BankName)
		assert.Equal(t, p.Fingerprint, got.Fingerprint)
		assert.Equal(t, p.Mapping, got.Mapping)
		assert.Equal(t, p.DateFormat, got.DateFormat)
	})

	t.Run("upsert", func(t *testing.T) {
		p.UsageCount = 7
		require.NoError(t, s.Put(ctx, p))
		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.UsageCount)

		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, p.ID))
		_, err := s.Get(ctx, p.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("survives reopen", func(t *testing.T) {
		keep := storedProfile("sabadell", "fp-sab", []string{"Fecha", "Concepto", "Importe"})
		require.NoError(t, s.Put(ctx, keep))
		require.NoError(t, s.Close())

		reopened, err := NewSQLiteStore(ctx, path)
		require.NoError(t, err)
		defer reopened.Close()

		got, err := reopened.Get(ctx, keep.ID)
		require.NoError(t, err)
		assert.Equal(t, "sabadell", got.BankName)
	})
}
