package port

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
)

// ErrMissingExchangeRate is returned when no rate is known for a currency
// pair on a given date. Cost computations fail whole on it; partial totals
// are never produced.
var ErrMissingExchangeRate = errors.New("missing exchange rate")

// ExchangeRateProvider resolves conversion rates. Rate returns how many 'to'
// units one 'from' unit was worth on the given date.
type ExchangeRateProvider interface {
	Rate(ctx context.Context, from, to domain.Currency, on time.Time) (decimal.Decimal, error)
}
