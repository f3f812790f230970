package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
)

var ErrInvalidDiscount = errors.New("invalid discount")

// PriceLine computes one order line's charge on integer minor units:
// base minus the floored percentage discount, minus the fixed discount,
// clamped at zero so stacked discounts never produce a negative charge.
// A percentage outside [0,100] is rejected, not clamped.
func PriceLine(quantity int, unitPrice domain.Money, discountPercent int, discountFixed domain.Money) (domain.Money, error) {
	if quantity <= 0 {
		return domain.Money{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if discountPercent < 0 || discountPercent > 100 {
		return domain.Money{}, fmt.Errorf("%w: percentage %d is outside [0,100]", ErrInvalidDiscount, discountPercent)
	}
	if discountFixed.Currency != unitPrice.Currency {
		return domain.Money{}, fmt.Errorf("%w: fixed discount in %s, price in %s",
			domain.ErrCurrencyMismatch, discountFixed.Currency, unitPrice.Currency)
	}
	if discountFixed.IsNegative() {
		return domain.Money{}, fmt.Errorf("%w: fixed discount %s is negative", ErrInvalidDiscount, discountFixed)
	}

	base := unitPrice.MulInt(int64(quantity))
	afterPercent := base.Amount - base.Amount*int64(discountPercent)/100
	final := afterPercent - discountFixed.Amount
	if final < 0 {
		final = 0
	}
	return domain.NewMoney(final, unitPrice.Currency), nil
}

// ComputeOrderTotals aggregates line totals, delivery fee, an order-level
// discount and a fixed-rate VAT into the final order total. The VAT rate is a
// policy input, never hard-coded here. VAT is floored on the (possibly
// negative) base; the final total is clamped at zero.
func ComputeOrderTotals(lines []domain.OrderLine, deliveryFee, discount domain.Money, vatRate decimal.Decimal) (domain.OrderTotals, error) {
	currency := deliveryFee.Currency

	subtotal := domain.NewMoney(0, currency)
	for _, line := range lines {
		var err error
		subtotal, err = subtotal.Add(line.LineTotal)
		if err != nil {
			return domain.OrderTotals{}, fmt.Errorf("line %s: %w", line.ID, err)
		}
	}
	if discount.Currency != currency {
		return domain.OrderTotals{}, fmt.Errorf("%w: discount in %s, order in %s",
			domain.ErrCurrencyMismatch, discount.Currency, currency)
	}

	vatBase := subtotal.Amount + deliveryFee.Amount - discount.Amount
	vat := decimal.NewFromInt(vatBase).Mul(vatRate).Floor().IntPart()

	total := subtotal.Amount + deliveryFee.Amount + vat - discount.Amount
	if total < 0 {
		total = 0
	}

	return domain.OrderTotals{
		Subtotal: subtotal,
		VAT:      domain.NewMoney(vat, currency),
		Total:    domain.NewMoney(total, currency),
	}, nil
}
