package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/port"
)

// Mock ExchangeRateProvider
type mockRateProvider struct {
	rates map[string]decimal.Decimal
}

func newMockRateProvider() *mockRateProvider {
	return &mockRateProvider{rates: make(map[string]decimal.Decimal)}
}

func (m *mockRateProvider) set(from, to domain.Currency, rate string) {
	m.rates[string(from)+string(to)] = decimal.RequireFromString(rate)
}

func (m *mockRateProvider) Rate(ctx context.Context, from, to domain.Currency, on time.Time) (decimal.Decimal, error) {
	rate, ok := m.rates[string(from)+string(to)]
	if !ok {
		return decimal.Decimal{}, port.ErrMissingExchangeRate
	}
	return rate, nil
}

func entry(category domain.CostCategory, amount int64, currency domain.Currency, allocation domain.AllocationMethod) domain.CostEntry {
	return domain.CostEntry{
		ID:         uuid.New(),
		Category:   category,
		Amount:     domain.NewMoney(amount, currency),
		IncurredOn: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Allocation: allocation,
		CreatedAt:  time.Now(),
	}
}

func TestNewCostLedger_NonPositiveUnits(t *testing.T) {
	for _, units := range []int{0, -5} {
		_, err := NewCostLedger(uuid.New(), units)
		if !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("units=%d: expected ErrDivisionByZero, got: %v", units, err)
		}
	}
}

func TestTotalCost_SingleCurrency(t *testing.T) {
	ledger, err := NewCostLedger(uuid.New(), 24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, amount := range []int64{10000, 500, 300} {
		if err := ledger.AddEntry(entry(domain.CostTransport, amount, domain.NOK, domain.AllocatePerUnit)); err != nil {
			t.Fatalf("add entry: %v", err)
		}
	}

	breakdown, err := ledger.Breakdown(context.Background(), domain.NOK, newMockRateProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if breakdown.TotalCost.Amount != 10800 {
		t.Errorf("expected total 10800, got %d", breakdown.TotalCost.Amount)
	}
	if breakdown.CostPerUnit.Amount != 450 {
		t.Errorf("expected per-unit 450, got %d", breakdown.CostPerUnit.Amount)
	}
	if breakdown.RoundingResidualMinorUnits != 0 {
		t.Errorf("expected residual 0, got %d", breakdown.RoundingResidualMinorUnits)
	}
}

func TestTotalCost_ConvertsForeignEntries(t *testing.T) {
	ledger, err := NewCostLedger(uuid.New(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ledger.AddEntry(entry(domain.CostAcquisition, 24000, domain.EUR, domain.AllocatePerUnit)); err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if err := ledger.AddEntry(entry(domain.CostTransport, 5000, domain.NOK, domain.AllocatePerUnit)); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	rates := newMockRateProvider()
	rates.set(domain.EUR, domain.NOK, "11.5")

	total, err := ledger.TotalCost(context.Background(), domain.NOK, rates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 24000 EUR cents * 11.5 = 276000 øre, plus 5000 øre
	if total.Amount != 281000 {
		t.Errorf("expected 281000, got %d", total.Amount)
	}
	if total.Currency != domain.NOK {
		t.Errorf("expected NOK, got %s", total.Currency)
	}
}

func TestTotalCost_MissingRateFailsWhole(t *testing.T) {
	ledger, err := NewCostLedger(uuid.New(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ledger.AddEntry(entry(domain.CostTransport, 1000, domain.NOK, domain.AllocatePerUnit)); err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if err := ledger.AddEntry(entry(domain.CostCustoms, 2000, domain.USD, domain.AllocatePerUnit)); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	_, err = ledger.TotalCost(context.Background(), domain.NOK, newMockRateProvider())
	if !errors.Is(err, port.ErrMissingExchangeRate) {
		t.Errorf("expected ErrMissingExchangeRate, got: %v", err)
	}
}

func TestAddEntry_PercentageAllocationRequiresAcquisitionCurrency(t *testing.T) {
	ledger, err := NewCostLedger(uuid.New(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ledger.AddEntry(entry(domain.CostAcquisition, 10000, domain.EUR, domain.AllocatePerUnit)); err != nil {
		t.Fatalf("acquisition entry: %v", err)
	}

	err = ledger.AddEntry(entry(domain.CostFreightForwarding, 500, domain.NOK, domain.AllocatePercentage))
	if !errors.Is(err, ErrInvalidCurrency) {
		t.Errorf("expected ErrInvalidCurrency, got: %v", err)
	}

	// Same method in the acquisition currency is fine
	if err := ledger.AddEntry(entry(domain.CostFreightForwarding, 500, domain.EUR, domain.AllocatePercentage)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// PER_UNIT entries may be booked in any currency
	if err := ledger.AddEntry(entry(domain.CostCustoms, 800, domain.NOK, domain.AllocatePerUnit)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVoidEntry_ExcludedFromTotal(t *testing.T) {
	ledger, err := NewCostLedger(uuid.New(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keep := entry(domain.CostTransport, 1000, domain.NOK, domain.AllocatePerUnit)
	void := entry(domain.CostTransport, 9000, domain.NOK, domain.AllocatePerUnit)
	if err := ledger.AddEntry(keep); err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if err := ledger.AddEntry(void); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	if err := ledger.VoidEntry(void.ID); err != nil {
		t.Fatalf("void entry: %v", err)
	}

	total, err := ledger.TotalCost(context.Background(), domain.NOK, newMockRateProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total.Amount != 1000 {
		t.Errorf("expected 1000 after voiding, got %d", total.Amount)
	}
}

func TestVoidEntry_Unknown(t *testing.T) {
	ledger, _ := NewCostLedger(uuid.New(), 10)
	if err := ledger.VoidEntry(uuid.New()); !errors.Is(err, ErrUnknownEntry) {
		t.Errorf("expected ErrUnknownEntry, got: %v", err)
	}
}

func TestBreakdown_ResidualInvariant(t *testing.T) {
	// costPerUnit * totalUnits + residual == totalCost, exactly
	cases := []struct {
		total int64
		units int
	}{
		{10800, 24},
		{10801, 24},
		{99999, 7},
		{1, 1000},
		{0, 5},
	}

	for _, tc := range cases {
		ledger, err := NewCostLedger(uuid.New(), tc.units)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tc.total > 0 {
			if err := ledger.AddEntry(entry(domain.CostOther, tc.total, domain.NOK, domain.AllocatePerUnit)); err != nil {
				t.Fatalf("add entry: %v", err)
			}
		}

		b, err := ledger.Breakdown(context.Background(), domain.NOK, newMockRateProvider())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		reconstructed := b.CostPerUnit.Amount*int64(tc.units) + b.RoundingResidualMinorUnits
		if reconstructed != b.TotalCost.Amount {
			t.Errorf("total=%d units=%d: %d*%d+%d != %d",
				tc.total, tc.units, b.CostPerUnit.Amount, tc.units,
				b.RoundingResidualMinorUnits, b.TotalCost.Amount)
		}
		if b.RoundingResidualMinorUnits < 0 || b.RoundingResidualMinorUnits >= int64(tc.units) {
			t.Errorf("residual %d out of range [0,%d)", b.RoundingResidualMinorUnits, tc.units)
		}
	}
}

func TestTotalCost_CacheInvalidatedOnAdd(t *testing.T) {
	ledger, _ := NewCostLedger(uuid.New(), 10)
	rates := newMockRateProvider()

	if err := ledger.AddEntry(entry(domain.CostTransport, 1000, domain.NOK, domain.AllocatePerUnit)); err != nil {
		t.Fatalf("add entry: %v", err)
	}
	first, err := ledger.TotalCost(context.Background(), domain.NOK, rates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Amount != 1000 {
		t.Errorf("expected 1000, got %d", first.Amount)
	}

	if err := ledger.AddEntry(entry(domain.CostCustoms, 500, domain.NOK, domain.AllocatePerUnit)); err != nil {
		t.Fatalf("add entry: %v", err)
	}
	second, err := ledger.TotalCost(context.Background(), domain.NOK, rates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Amount != 1500 {
		t.Errorf("expected 1500 after new entry, got %d", second.Amount)
	}
}
