package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/port"
)

type rateKey struct {
	from domain.Currency
	to   domain.Currency
	day  string
}

// StaticProvider is an in-memory exchange-rate table keyed by currency pair
// and calendar day. Rates are captured when the cost is booked, so lookups
// are exact-date only; there is no interpolation.
type StaticProvider struct {
	mu    sync.RWMutex
	rates map[rateKey]decimal.Decimal
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{rates: make(map[rateKey]decimal.Decimal)}
}

// SetRate records the rate in effect on the given date. The inverse pair is
// not derived; both directions must be set explicitly if needed.
func (p *StaticProvider) SetRate(from, to domain.Currency, on time.Time, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[rateKey{from: from, to: to, day: on.Format(time.DateOnly)}] = rate
}

func (p *StaticProvider) Rate(ctx context.Context, from, to domain.Currency, on time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	rate, ok := p.rates[rateKey{from: from, to: to, day: on.Format(time.DateOnly)}]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s on %s",
			port.ErrMissingExchangeRate, from, to, on.Format(time.DateOnly))
	}
	return rate, nil
}
