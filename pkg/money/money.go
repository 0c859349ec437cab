// Package money wraps integer-cent amounts for safe arithmetic and display.
// Statement imports are euro-denominated; the currency code is carried so
// callers that later gain multi-currency accounts do not need a new type.
package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	EUR = "EUR"
	USD = "USD"
	GBP = "GBP"
)

// ErrCurrencyMismatch is returned when arithmetic mixes currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money is an immutable amount in minor units of one currency.
type Money struct {
	m *money.Money
}

// New builds a Money from minor units (cents for EUR).
func New(cents int64, currencyCode string) *Money {
	return &Money{m: money.New(cents, currencyCode)}
}

// FromEuros builds a euro Money from a decimal euro value, rounding to the
// cent.
func FromEuros(euros decimal.Decimal) *Money {
	cents := euros.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return New(cents, EUR)
}

// Cents returns the amount in minor units.
func (m *Money) Cents() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// Decimal returns the major-unit value as an exact decimal.
func (m *Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Cents()).Div(decimal.NewFromInt(100))
}

// Float64 is the float euro convenience view. Display only; arithmetic stays
// on cents.
func (m *Money) Float64() float64 { return m.Decimal().InexactFloat64() }

func (m *Money) IsZero() bool     { return m.Cents() == 0 }
func (m *Money) IsNegative() bool { return m.Cents() < 0 }

// Add returns m+other, failing on mixed currencies.
func (m *Money) Add(other *Money) (*Money, error) {
	if m.Currency() != other.Currency() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency(), other.Currency())
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: sum}, nil
}

// Abs returns the magnitude with the same currency.
func (m *Money) Abs() *Money {
	return &Money{m: m.m.Absolute()}
}

// Display renders with the currency's own formatting rules, e.g. "-€32,18".
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

// String implements fmt.Stringer.
func (m *Money) String() string { return m.Display() }

type moneyJSON struct {
	Cents    int64  `json:"cents"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes as {"cents":-3218,"currency":"EUR"}.
func (m *Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Cents: m.Cents(), Currency: m.Currency()})
}

// UnmarshalJSON decodes the cents/currency shape.
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Currency == "" {
		v.Currency = EUR
	}
	m.m = money.New(v.Cents, v.Currency)
	return nil
}
