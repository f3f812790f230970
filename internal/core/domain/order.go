package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusDraft            OrderStatus = "draft"
	OrderStatusConfirmed        OrderStatus = "confirmed"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusReadyForDelivery OrderStatus = "ready_for_delivery"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusReturned         OrderStatus = "returned"
)

// OrderLine is one order position against a lot. The wine fields are a
// snapshot taken at order time so later catalog edits do not rewrite history.
type OrderLine struct {
	ID      uuid.UUID
	OrderID uuid.UUID
	LotID   uuid.UUID

	Quantity        int
	UnitPrice       Money
	DiscountPercent int
	DiscountFixed   Money
	LineTotal       Money

	WineName     string
	Producer     string
	Vintage      int
	BottleSizeML int
}

type Order struct {
	ID          uuid.UUID
	OrderNumber string
	CustomerID  uuid.UUID
	Status      OrderStatus

	Lines       []OrderLine
	DeliveryFee Money
	Discount    Money

	Subtotal Money
	VAT      Money
	Total    Money

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderTotals is the derived financial summary of an order.
type OrderTotals struct {
	Subtotal Money
	VAT      Money
	Total    Money
}
