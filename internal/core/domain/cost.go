package domain

import (
	"time"

	"github.com/google/uuid"
)

type CostCategory string

const (
	CostAcquisition       CostCategory = "ACQUISITION"
	CostTransport         CostCategory = "TRANSPORT"
	CostCustoms           CostCategory = "CUSTOMS"
	CostFreightForwarding CostCategory = "FREIGHT_FORWARDING"
	CostOther             CostCategory = "OTHER"
)

type AllocationMethod string

const (
	AllocatePerUnit    AllocationMethod = "PER_UNIT"
	AllocateByValue    AllocationMethod = "BY_VALUE"
	AllocatePercentage AllocationMethod = "PERCENTAGE"
)

// CostEntry is one dated cost against an import lot. Entries are immutable
// once created; corrections are made by voiding an entry and adding a new one.
type CostEntry struct {
	ID         uuid.UUID
	LotID      uuid.UUID
	Category   CostCategory
	Amount     Money
	IncurredOn time.Time
	Allocation AllocationMethod

	// Pass-through metadata for the external accounting sink.
	InvoiceRef  string
	AccountCode string

	Voided    bool
	CreatedAt time.Time
}

// CostBreakdown is the finalized acquisition cost of a lot. The residual is
// the integer remainder of the per-unit division, kept explicit so the
// accounting side can reconcile it instead of losing it to rounding:
// CostPerUnit.Amount * totalUnits + RoundingResidualMinorUnits == TotalCost.Amount.
type CostBreakdown struct {
	TotalCost                  Money
	CostPerUnit                Money
	RoundingResidualMinorUnits int64
}
