package port

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
)

// ErrOptimisticLock is returned by UpdateInventoryCounters when the stored
// version is not older than the snapshot being written.
var ErrOptimisticLock = errors.New("optimistic lock conflict")

// LotStore is the external transactional store for lots, cost entries,
// inventory counters and orders. The engine is pure in-memory computation;
// durability lives behind this interface.
type LotStore interface {
	// SaveLot inserts a new import lot.
	SaveLot(ctx context.Context, lot domain.ImportLot) error

	// UpdateLotStatus records an externally or internally driven status edge.
	UpdateLotStatus(ctx context.Context, lotID uuid.UUID, status domain.LotStatus) error

	// SaveCostEntry appends one immutable cost entry row.
	SaveCostEntry(ctx context.Context, entry domain.CostEntry) error

	// VoidCostEntry soft-deactivates an entry.
	VoidCostEntry(ctx context.Context, entryID uuid.UUID) error

	// ListCostEntries returns all entries for a lot, voided included.
	ListCostEntries(ctx context.Context, lotID uuid.UUID) ([]domain.CostEntry, error)

	// SaveInventory inserts the counter row for a newly available lot.
	SaveInventory(ctx context.Context, inv domain.InventoryLot) error

	// UpdateInventoryCounters writes a counter snapshot guarded by the
	// version column; returns ErrOptimisticLock when the stored version is
	// already at or past the snapshot's.
	UpdateInventoryCounters(ctx context.Context, inv domain.InventoryLot) error

	// SaveOrder persists an order with its lines in one transaction.
	SaveOrder(ctx context.Context, order domain.Order) error
}
