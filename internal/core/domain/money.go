package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	EUR Currency = "EUR"
	NOK Currency = "NOK"
	USD Currency = "USD"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrUnknownCurrency  = errors.New("unknown currency")
)

func ParseCurrency(s string) (Currency, error) {
	switch Currency(s) {
	case EUR, NOK, USD:
		return Currency(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
}

// Money is an integer count of minor units (øre, cents) in a single currency.
// All arithmetic stays on int64; fractional values are never stored.
type Money struct {
	Amount   int64 // minor units
	Currency Currency
}

func NewMoney(amount int64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) MulInt(n int64) Money {
	return Money{Amount: m.Amount * n, Currency: m.Currency}
}

func (m Money) IsNegative() bool {
	return m.Amount < 0
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Convert applies an explicit exchange rate exactly once, rounding to the
// nearest minor unit (half away from zero). Callers are responsible for
// looking up the rate that was in effect on the relevant date.
func (m Money) Convert(to Currency, rate decimal.Decimal) Money {
	if m.Currency == to {
		return m
	}
	converted := decimal.NewFromInt(m.Amount).Mul(rate).Round(0).IntPart()
	return Money{Amount: converted, Currency: to}
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}
