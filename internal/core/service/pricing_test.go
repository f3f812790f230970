package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
)

func TestPriceLine(t *testing.T) {
	tests := []struct {
		name            string
		quantity        int
		unitPrice       int64
		discountPercent int
		discountFixed   int64
		want            int64
	}{
		{"no discounts", 10, 1000, 0, 0, 10000},
		{"percentage only", 10, 1000, 25, 0, 7500},
		{"stacked discounts", 2, 1000, 50, 600, 400},
		{"clamped at zero", 1, 1000, 50, 600, 0},
		{"full percentage", 3, 1000, 100, 0, 0},
		{"percentage floors", 3, 333, 10, 0, 900}, // 999 - floor(99.9)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriceLine(tt.quantity, domain.NewMoney(tt.unitPrice, domain.NOK),
				tt.discountPercent, domain.NewMoney(tt.discountFixed, domain.NOK))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Amount != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got.Amount)
			}
			if got.Currency != domain.NOK {
				t.Errorf("expected NOK, got %s", got.Currency)
			}
		})
	}
}

func TestPriceLine_InvalidDiscountPercent(t *testing.T) {
	for _, percent := range []int{-1, 101, 110} {
		_, err := PriceLine(10, domain.NewMoney(1000, domain.NOK), percent, domain.NewMoney(0, domain.NOK))
		if !errors.Is(err, ErrInvalidDiscount) {
			t.Errorf("percent=%d: expected ErrInvalidDiscount, got: %v", percent, err)
		}
	}
}

func TestPriceLine_NegativeFixedDiscount(t *testing.T) {
	_, err := PriceLine(1, domain.NewMoney(1000, domain.NOK), 0, domain.NewMoney(-100, domain.NOK))
	if !errors.Is(err, ErrInvalidDiscount) {
		t.Errorf("expected ErrInvalidDiscount, got: %v", err)
	}
}

func TestPriceLine_InvalidQuantity(t *testing.T) {
	_, err := PriceLine(0, domain.NewMoney(1000, domain.NOK), 0, domain.NewMoney(0, domain.NOK))
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestPriceLine_CurrencyMismatch(t *testing.T) {
	_, err := PriceLine(1, domain.NewMoney(1000, domain.NOK), 0, domain.NewMoney(100, domain.EUR))
	if !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got: %v", err)
	}
}

func lineWithTotal(amount int64) domain.OrderLine {
	return domain.OrderLine{LineTotal: domain.NewMoney(amount, domain.NOK)}
}

func TestComputeOrderTotals(t *testing.T) {
	lines := []domain.OrderLine{lineWithTotal(3000), lineWithTotal(2000)}

	totals, err := ComputeOrderTotals(lines,
		domain.NewMoney(200, domain.NOK),
		domain.NewMoney(100, domain.NOK),
		decimal.RequireFromString("0.25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if totals.Subtotal.Amount != 5000 {
		t.Errorf("expected subtotal 5000, got %d", totals.Subtotal.Amount)
	}
	// vatBase = 5000 + 200 - 100 = 5100; vat = floor(5100 * 0.25) = 1275
	if totals.VAT.Amount != 1275 {
		t.Errorf("expected vat 1275, got %d", totals.VAT.Amount)
	}
	// total = 5000 + 200 + 1275 - 100 = 6375
	if totals.Total.Amount != 6375 {
		t.Errorf("expected total 6375, got %d", totals.Total.Amount)
	}
}

func TestComputeOrderTotals_VATFloors(t *testing.T) {
	totals, err := ComputeOrderTotals([]domain.OrderLine{lineWithTotal(999)},
		domain.NewMoney(0, domain.NOK),
		domain.NewMoney(0, domain.NOK),
		decimal.RequireFromString("0.25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// floor(999 * 0.25) = floor(249.75) = 249
	if totals.VAT.Amount != 249 {
		t.Errorf("expected vat 249, got %d", totals.VAT.Amount)
	}
}

func TestComputeOrderTotals_TotalClampedAtZero(t *testing.T) {
	totals, err := ComputeOrderTotals([]domain.OrderLine{lineWithTotal(100)},
		domain.NewMoney(0, domain.NOK),
		domain.NewMoney(1000, domain.NOK),
		decimal.RequireFromString("0.25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Total.Amount != 0 {
		t.Errorf("expected total clamped to 0, got %d", totals.Total.Amount)
	}
}

func TestComputeOrderTotals_CurrencyMismatch(t *testing.T) {
	_, err := ComputeOrderTotals([]domain.OrderLine{lineWithTotal(100)},
		domain.NewMoney(0, domain.NOK),
		domain.NewMoney(0, domain.EUR),
		decimal.RequireFromString("0.25"))
	if !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got: %v", err)
	}

	_, err = ComputeOrderTotals([]domain.OrderLine{{LineTotal: domain.NewMoney(100, domain.EUR)}},
		domain.NewMoney(0, domain.NOK),
		domain.NewMoney(0, domain.NOK),
		decimal.RequireFromString("0.25"))
	if !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch for foreign line, got: %v", err)
	}
}

func TestComputeOrderTotals_ZeroRate(t *testing.T) {
	totals, err := ComputeOrderTotals([]domain.OrderLine{lineWithTotal(5000)},
		domain.NewMoney(0, domain.NOK),
		domain.NewMoney(0, domain.NOK),
		decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.VAT.Amount != 0 || totals.Total.Amount != 5000 {
		t.Errorf("expected vat 0 total 5000, got vat %d total %d", totals.VAT.Amount, totals.Total.Amount)
	}
}
