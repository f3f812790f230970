package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/port"
)

var (
	ErrInvalidCurrency = errors.New("invalid currency for allocation method")
	ErrDivisionByZero  = errors.New("total units must be positive")
	ErrUnknownEntry    = errors.New("unknown cost entry")
)

// CostLedger accumulates dated, typed cost entries against one import lot and
// rolls them up into an integer per-unit cost in the home currency. It is not
// safe for concurrent use; cost entry happens in the single-threaded
// lot-finalization flow before sale begins.
type CostLedger struct {
	lotID      uuid.UUID
	totalUnits int

	// acqCurrency is pinned by the first ACQUISITION entry. Entries whose
	// allocation is computed relative to the acquisition cost (BY_VALUE,
	// PERCENTAGE) must be booked in this currency.
	acqCurrency domain.Currency

	entries []domain.CostEntry

	cachedTotal    *domain.Money
	cachedCurrency domain.Currency
}

func NewCostLedger(lotID uuid.UUID, totalUnits int) (*CostLedger, error) {
	if totalUnits <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrDivisionByZero, totalUnits)
	}
	return &CostLedger{lotID: lotID, totalUnits: totalUnits}, nil
}

// AddEntry appends an entry and invalidates any cached total.
func (c *CostLedger) AddEntry(entry domain.CostEntry) error {
	if entry.Category == domain.CostAcquisition && c.acqCurrency == "" {
		c.acqCurrency = entry.Amount.Currency
	}
	if entry.Allocation != domain.AllocatePerUnit && c.acqCurrency != "" && entry.Amount.Currency != c.acqCurrency {
		return fmt.Errorf("%w: %s entry in %s, acquisition currency is %s",
			ErrInvalidCurrency, entry.Allocation, entry.Amount.Currency, c.acqCurrency)
	}
	c.entries = append(c.entries, entry)
	c.cachedTotal = nil
	return nil
}

// VoidEntry soft-deactivates an entry so it no longer contributes to totals.
func (c *CostLedger) VoidEntry(entryID uuid.UUID) error {
	for i := range c.entries {
		if c.entries[i].ID == entryID {
			c.entries[i].Voided = true
			c.cachedTotal = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
}

// Entries returns a copy of all entries, voided included.
func (c *CostLedger) Entries() []domain.CostEntry {
	out := make([]domain.CostEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *CostLedger) AcquisitionCurrency() domain.Currency {
	return c.acqCurrency
}

// TotalCost converts every active entry into the home currency using the rate
// in effect on its incurred date and sums the results with integer minor-unit
// addition. A missing rate fails the whole computation.
func (c *CostLedger) TotalCost(ctx context.Context, home domain.Currency, rates port.ExchangeRateProvider) (domain.Money, error) {
	if c.cachedTotal != nil && c.cachedCurrency == home {
		return *c.cachedTotal, nil
	}

	total := domain.NewMoney(0, home)
	for _, entry := range c.entries {
		if entry.Voided {
			continue
		}
		converted := entry.Amount
		if entry.Amount.Currency != home {
			rate, err := rates.Rate(ctx, entry.Amount.Currency, home, entry.IncurredOn)
			if err != nil {
				return domain.Money{}, fmt.Errorf("convert entry %s: %w", entry.ID, err)
			}
			converted = entry.Amount.Convert(home, rate)
		}
		var err error
		total, err = total.Add(converted)
		if err != nil {
			return domain.Money{}, fmt.Errorf("sum entry %s: %w", entry.ID, err)
		}
	}

	c.cachedTotal = &total
	c.cachedCurrency = home
	return total, nil
}

// Breakdown computes the lot's total cost, floored per-unit cost and the
// explicit rounding residual: CostPerUnit * totalUnits + residual == TotalCost.
func (c *CostLedger) Breakdown(ctx context.Context, home domain.Currency, rates port.ExchangeRateProvider) (domain.CostBreakdown, error) {
	total, err := c.TotalCost(ctx, home, rates)
	if err != nil {
		return domain.CostBreakdown{}, err
	}

	units := int64(c.totalUnits)
	perUnit := total.Amount / units
	residual := total.Amount % units

	return domain.CostBreakdown{
		TotalCost:                  total,
		CostPerUnit:                domain.NewMoney(perUnit, home),
		RoundingResidualMinorUnits: residual,
	}, nil
}
