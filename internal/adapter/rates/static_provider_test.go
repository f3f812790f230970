package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/port"
)

func TestRate_SameCurrency(t *testing.T) {
	p := NewStaticProvider()

	rate, err := p.Rate(context.Background(), domain.NOK, domain.NOK, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", rate)
	}
}

func TestRate_ExactDateLookup(t *testing.T) {
	p := NewStaticProvider()
	day := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

	p.SetRate(domain.EUR, domain.NOK, day, decimal.RequireFromString("11.6543"))

	// Lookup matches on the calendar day regardless of time of day
	rate, err := p.Rate(context.Background(), domain.EUR, domain.NOK, day.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("11.6543")) {
		t.Errorf("expected 11.6543, got %s", rate)
	}

	// The day before has no rate
	if _, err := p.Rate(context.Background(), domain.EUR, domain.NOK, day.AddDate(0, 0, -1)); !errors.Is(err, port.ErrMissingExchangeRate) {
		t.Errorf("expected ErrMissingExchangeRate, got: %v", err)
	}
}

func TestRate_InverseNotDerived(t *testing.T) {
	p := NewStaticProvider()
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	p.SetRate(domain.EUR, domain.NOK, day, decimal.RequireFromString("11.5"))

	if _, err := p.Rate(context.Background(), domain.NOK, domain.EUR, day); !errors.Is(err, port.ErrMissingExchangeRate) {
		t.Errorf("expected ErrMissingExchangeRate for inverse pair, got: %v", err)
	}
}
