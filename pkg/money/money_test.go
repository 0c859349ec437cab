package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney(t *testing.T) {
	m := New(-3218, EUR)
	assert.Equal(t, int64(-3218), m.Cents())
	assert.Equal(t, EUR, m.Currency())
	assert.True(t, m.IsNegative())
	assert.InDelta(t, -32.18, m.Float64(), 0.0001)
	assert.Equal(t, int64(3218), m.Abs().Cents())

	assert.True(t, New(0, EUR).IsZero())
}

func TestFromEuros(t *testing.T) {
	d, err := decimal.NewFromString("985.31")
	require.NoError(t, err)
	assert.Equal(t, int64(98531), FromEuros(d).Cents())

	half := decimal.RequireFromString("0.005")
	assert.Equal(t, int64(1), FromEuros(half).Cents(), "rounds half up to the cent")
}

func TestAdd(t *testing.T) {
	sum, err := New(100, EUR).Add(New(-30, EUR))
	require.NoError(t, err)
	assert.Equal(t, int64(70), sum.Cents())

	_, err = New(100, EUR).Add(New(100, USD))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(New(-3218, EUR))
	require.NoError(t, err)
	assert.JSONEq(t, `{"cents":-3218,"currency":"EUR"}`, string(data))

	var m Money
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, int64(-3218), m.Cents())
	assert.Equal(t, EUR, m.Currency())
}
