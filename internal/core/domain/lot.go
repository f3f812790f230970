package domain

import (
	"time"

	"github.com/google/uuid"
)

type LotStatus string

const (
	LotOrdered   LotStatus = "ORDERED"
	LotInTransit LotStatus = "IN_TRANSIT"
	LotCustoms   LotStatus = "CUSTOMS"
	LotAvailable LotStatus = "AVAILABLE"
	LotSoldOut   LotStatus = "SOLD_OUT"
)

// ImportLot is one import shipment of a single wine, tracked as a cost and
// inventory unit. Status transitions are driven externally except for
// AVAILABLE -> SOLD_OUT, which is derived when the last unit is sold.
type ImportLot struct {
	ID            uuid.UUID
	BatchNumber   string
	CatalogItemID uuid.UUID
	SupplierID    uuid.UUID
	TotalUnits    int
	HomeCurrency  Currency

	// AcquisitionCurrency is fixed by the first ACQUISITION entry and
	// constrains entries whose allocation is computed relative to it.
	AcquisitionCurrency Currency

	ImportDate time.Time
	Status     LotStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
