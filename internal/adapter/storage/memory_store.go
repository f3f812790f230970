package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/port"
)

// MemoryStore is a map-backed LotStore for local runs and tests where MySQL
// is not available. It applies the same version discipline as the SQL
// adapter.
type MemoryStore struct {
	mu        sync.Mutex
	lots      map[uuid.UUID]domain.ImportLot
	entries   map[uuid.UUID]domain.CostEntry
	inventory map[uuid.UUID]domain.InventoryLot
	orders    map[uuid.UUID]domain.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lots:      make(map[uuid.UUID]domain.ImportLot),
		entries:   make(map[uuid.UUID]domain.CostEntry),
		inventory: make(map[uuid.UUID]domain.InventoryLot),
		orders:    make(map[uuid.UUID]domain.Order),
	}
}

func (s *MemoryStore) SaveLot(ctx context.Context, lot domain.ImportLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[lot.ID] = lot
	return nil
}

func (s *MemoryStore) UpdateLotStatus(ctx context.Context, lotID uuid.UUID, status domain.LotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[lotID]
	if !ok {
		return fmt.Errorf("lot %s not found", lotID)
	}
	lot.Status = status
	s.lots[lotID] = lot
	return nil
}

func (s *MemoryStore) SaveCostEntry(ctx context.Context, entry domain.CostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

func (s *MemoryStore) VoidCostEntry(ctx context.Context, entryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return fmt.Errorf("cost entry %s not found", entryID)
	}
	entry.Voided = true
	s.entries[entryID] = entry
	return nil
}

func (s *MemoryStore) ListCostEntries(ctx context.Context, lotID uuid.UUID) ([]domain.CostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CostEntry
	for _, entry := range s.entries {
		if entry.LotID == lotID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveInventory(ctx context.Context, inv domain.InventoryLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[inv.LotID] = inv
	return nil
}

func (s *MemoryStore) UpdateInventoryCounters(ctx context.Context, inv domain.InventoryLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.inventory[inv.LotID]
	if !ok || stored.Version >= inv.Version {
		return port.ErrOptimisticLock
	}
	stored.UnitsOnHand = inv.UnitsOnHand
	stored.UnitsReserved = inv.UnitsReserved
	stored.UnitsSold = inv.UnitsSold
	stored.Version = inv.Version
	stored.UpdatedAt = inv.UpdatedAt
	s.inventory[inv.LotID] = stored
	return nil
}

func (s *MemoryStore) SaveOrder(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}

// Inventory returns the persisted counter row, for tests and tooling.
func (s *MemoryStore) Inventory(lotID uuid.UUID) (domain.InventoryLot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.inventory[lotID]
	return inv, ok
}

// LotStatus returns the persisted lot status, for tests and tooling.
func (s *MemoryStore) LotStatus(lotID uuid.UUID) (domain.LotStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[lotID]
	return lot.Status, ok
}
