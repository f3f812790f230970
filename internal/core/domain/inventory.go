package domain

import (
	"time"

	"github.com/google/uuid"
)

// StockState is derived from the counter triple, never stored.
type StockState string

const (
	StockHasStock StockState = "HAS_STOCK"
	StockLow      StockState = "LOW_STOCK"
	StockDepleted StockState = "DEPLETED"
)

// InventoryLot holds the available/reserved/sold counters for one import lot.
// Counters are mutated exclusively through the reservation coordinator, which
// serializes all writers for a given lot. Version increments on every
// mutation and backs optimistic locking in the persistence layer.
type InventoryLot struct {
	LotID uuid.UUID

	UnitsOnHand   int
	UnitsReserved int
	UnitsSold     int

	CostPerUnit         Money
	SellingPricePerUnit Money
	MarginPerUnit       Money
	MarkupPercent       int

	MinimumStockLevel int
	Location          string
	BestBefore        time.Time

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailableForSale is on-hand stock not already held by a reservation.
func (l *InventoryLot) AvailableForSale() int {
	return l.UnitsOnHand - l.UnitsReserved
}

func (l *InventoryLot) LowStockAlert() bool {
	return l.AvailableForSale() <= l.MinimumStockLevel
}

func (l *InventoryLot) State() StockState {
	switch {
	case l.UnitsOnHand == 0 && l.UnitsReserved == 0:
		return StockDepleted
	case l.LowStockAlert():
		return StockLow
	default:
		return StockHasStock
	}
}

// DeriveMargin recomputes margin per unit and the integer markup percentage
// from the current cost and selling price.
func (l *InventoryLot) DeriveMargin() {
	l.MarginPerUnit = Money{
		Amount:   l.SellingPricePerUnit.Amount - l.CostPerUnit.Amount,
		Currency: l.SellingPricePerUnit.Currency,
	}
	if l.CostPerUnit.Amount > 0 {
		l.MarkupPercent = int(l.MarginPerUnit.Amount * 100 / l.CostPerUnit.Amount)
	} else {
		l.MarkupPercent = 0
	}
}
