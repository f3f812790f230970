package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/port"
)

var (
	ErrCostNotFinalized = errors.New("lot cost not finalized")
	ErrLotNotAvailable  = errors.New("lot not available for sale")
	ErrUnknownOrder     = errors.New("unknown order")
	ErrOrderState       = errors.New("order not in a valid state for this operation")
)

const persistTimeout = 5 * time.Second

type lotRecord struct {
	lot       domain.ImportLot
	ledger    *CostLedger
	breakdown *domain.CostBreakdown
}

type orderRecord struct {
	order   domain.Order
	handles []ReservationHandle
}

// CreateLotParams describes a new import lot.
type CreateLotParams struct {
	BatchNumber   string
	CatalogItemID uuid.UUID
	SupplierID    uuid.UUID
	TotalUnits    int
	HomeCurrency  domain.Currency
	ImportDate    time.Time
}

// CostEntryParams describes one cost booked against a lot.
type CostEntryParams struct {
	Category    domain.CostCategory
	Amount      domain.Money
	IncurredOn  time.Time
	Allocation  domain.AllocationMethod
	InvoiceRef  string
	AccountCode string
}

// OrderLineParams describes one requested order position. The unit price is
// taken from the lot's quoted selling price, never from the caller.
type OrderLineParams struct {
	LotID           uuid.UUID
	Quantity        int
	DiscountPercent int
	DiscountFixed   domain.Money

	WineName     string
	Producer     string
	Vintage      int
	BottleSizeML int
}

// LotEngine owns lot lifecycle: cost accumulation, finalization, release to
// sale, reservations and orders. Counter mutations go through the
// coordinator; durability goes through the store; the cache carries an
// advisory available-stock gauge for cheap rejection under load.
type LotEngine struct {
	mu     sync.RWMutex
	lots   map[uuid.UUID]*lotRecord
	orders map[uuid.UUID]*orderRecord

	coordinator *ReservationCoordinator
	store       port.LotStore
	cache       port.StockCache
	logger      *zap.Logger

	wg sync.WaitGroup
}

func NewLotEngine(store port.LotStore, cache port.StockCache, coordinator *ReservationCoordinator, logger *zap.Logger) *LotEngine {
	e := &LotEngine{
		lots:        make(map[uuid.UUID]*lotRecord),
		orders:      make(map[uuid.UUID]*orderRecord),
		coordinator: coordinator,
		store:       store,
		cache:       cache,
		logger:      logger,
	}
	coordinator.SetSoldOutHook(e.markSoldOut)
	return e
}

// CreateLot registers a new lot in ORDERED status. A non-positive unit count
// is caller misconfiguration and is rejected here, before any cost can be
// booked against the lot.
func (e *LotEngine) CreateLot(ctx context.Context, params CreateLotParams) (domain.ImportLot, error) {
	lotID := uuid.New()
	ledger, err := NewCostLedger(lotID, params.TotalUnits)
	if err != nil {
		return domain.ImportLot{}, err
	}

	now := time.Now()
	lot := domain.ImportLot{
		ID:            lotID,
		BatchNumber:   params.BatchNumber,
		CatalogItemID: params.CatalogItemID,
		SupplierID:    params.SupplierID,
		TotalUnits:    params.TotalUnits,
		HomeCurrency:  params.HomeCurrency,
		ImportDate:    params.ImportDate,
		Status:        domain.LotOrdered,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.store.SaveLot(ctx, lot); err != nil {
		return domain.ImportLot{}, fmt.Errorf("save lot: %w", err)
	}

	e.mu.Lock()
	e.lots[lotID] = &lotRecord{lot: lot, ledger: ledger}
	e.mu.Unlock()

	e.logger.Info("lot created",
		zap.String("lot_id", lotID.String()),
		zap.String("batch_number", params.BatchNumber),
		zap.Int("total_units", params.TotalUnits))
	return lot, nil
}

// UpdateLotStatus records an externally driven status edge (in transit,
// customs clearance). AVAILABLE and SOLD_OUT are internal edges and are not
// accepted here.
func (e *LotEngine) UpdateLotStatus(ctx context.Context, lotID uuid.UUID, status domain.LotStatus) error {
	if status == domain.LotAvailable || status == domain.LotSoldOut {
		return fmt.Errorf("status %s is derived, not externally set", status)
	}

	e.mu.Lock()
	rec, ok := e.lots[lotID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownLot, lotID)
	}
	rec.lot.Status = status
	rec.lot.UpdatedAt = time.Now()
	e.mu.Unlock()

	if err := e.store.UpdateLotStatus(ctx, lotID, status); err != nil {
		return fmt.Errorf("update lot status: %w", err)
	}
	return nil
}

// AddCostEntry appends an immutable cost entry to the lot's ledger. Costs
// booked after the lot went on sale still land in the audit trail but never
// move the already-quoted per-unit cost.
func (e *LotEngine) AddCostEntry(ctx context.Context, lotID uuid.UUID, params CostEntryParams) (domain.CostEntry, error) {
	e.mu.Lock()
	rec, ok := e.lots[lotID]
	if !ok {
		e.mu.Unlock()
		return domain.CostEntry{}, fmt.Errorf("%w: %s", ErrUnknownLot, lotID)
	}

	entry := domain.CostEntry{
		ID:          uuid.New(),
		LotID:       lotID,
		Category:    params.Category,
		Amount:      params.Amount,
		IncurredOn:  params.IncurredOn,
		Allocation:  params.Allocation,
		InvoiceRef:  params.InvoiceRef,
		AccountCode: params.AccountCode,
		CreatedAt:   time.Now(),
	}
	if err := rec.ledger.AddEntry(entry); err != nil {
		e.mu.Unlock()
		return domain.CostEntry{}, err
	}
	rec.lot.AcquisitionCurrency = rec.ledger.AcquisitionCurrency()
	e.mu.Unlock()

	if err := e.store.SaveCostEntry(ctx, entry); err != nil {
		return domain.CostEntry{}, fmt.Errorf("save cost entry: %w", err)
	}
	return entry, nil
}

// VoidCostEntry soft-deactivates an entry so it no longer counts toward the
// lot total.
func (e *LotEngine) VoidCostEntry(ctx context.Context, lotID, entryID uuid.UUID) error {
	e.mu.Lock()
	rec, ok := e.lots[lotID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownLot, lotID)
	}
	err := rec.ledger.VoidEntry(entryID)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if err := e.store.VoidCostEntry(ctx, entryID); err != nil {
		return fmt.Errorf("void cost entry: %w", err)
	}
	return nil
}

// FinalizeLot rolls the ledger up into the home currency and freezes the
// per-unit cost. A missing exchange rate fails the whole computation.
func (e *LotEngine) FinalizeLot(ctx context.Context, lotID uuid.UUID, rates port.ExchangeRateProvider) (domain.CostBreakdown, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.lots[lotID]
	if !ok {
		return domain.CostBreakdown{}, fmt.Errorf("%w: %s", ErrUnknownLot, lotID)
	}

	breakdown, err := rec.ledger.Breakdown(ctx, rec.lot.HomeCurrency, rates)
	if err != nil {
		return domain.CostBreakdown{}, fmt.Errorf("finalize lot %s: %w", lotID, err)
	}
	rec.breakdown = &breakdown

	e.logger.Info("lot cost finalized",
		zap.String("lot_id", lotID.String()),
		zap.Int64("total_cost", breakdown.TotalCost.Amount),
		zap.Int64("cost_per_unit", breakdown.CostPerUnit.Amount),
		zap.Int64("rounding_residual", breakdown.RoundingResidualMinorUnits))
	return breakdown, nil
}

// MakeAvailable releases a finalized lot to sale: the inventory counters are
// created under the coordinator, margin is derived from the caller's selling
// price, and the lot transitions to AVAILABLE. Cost is frozen before the
// first unit can be reserved.
func (e *LotEngine) MakeAvailable(ctx context.Context, lotID uuid.UUID, sellingPricePerUnit domain.Money, minimumStockLevel int, location string) (domain.InventoryLot, error) {
	e.mu.Lock()
	rec, ok := e.lots[lotID]
	if !ok {
		e.mu.Unlock()
		return domain.InventoryLot{}, fmt.Errorf("%w: %s", ErrUnknownLot, lotID)
	}
	if rec.breakdown == nil {
		e.mu.Unlock()
		return domain.InventoryLot{}, fmt.Errorf("%w: %s", ErrCostNotFinalized, lotID)
	}
	if rec.lot.Status == domain.LotAvailable || rec.lot.Status == domain.LotSoldOut {
		e.mu.Unlock()
		return domain.InventoryLot{}, fmt.Errorf("lot %s already released to sale", lotID)
	}
	if sellingPricePerUnit.Currency != rec.lot.HomeCurrency {
		e.mu.Unlock()
		return domain.InventoryLot{}, fmt.Errorf("%w: selling price in %s, home currency is %s",
			domain.ErrCurrencyMismatch, sellingPricePerUnit.Currency, rec.lot.HomeCurrency)
	}

	now := time.Now()
	inv := domain.InventoryLot{
		LotID:               lotID,
		UnitsOnHand:         rec.lot.TotalUnits,
		CostPerUnit:         rec.breakdown.CostPerUnit,
		SellingPricePerUnit: sellingPricePerUnit,
		MinimumStockLevel:   minimumStockLevel,
		Location:            location,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	inv.DeriveMargin()

	rec.lot.Status = domain.LotAvailable
	rec.lot.UpdatedAt = now
	e.mu.Unlock()

	if err := e.coordinator.Register(inv); err != nil {
		return domain.InventoryLot{}, err
	}
	if err := e.store.SaveInventory(ctx, inv); err != nil {
		return domain.InventoryLot{}, fmt.Errorf("save inventory: %w", err)
	}
	if err := e.store.UpdateLotStatus(ctx, lotID, domain.LotAvailable); err != nil {
		return domain.InventoryLot{}, fmt.Errorf("update lot status: %w", err)
	}
	if err := e.cache.SetAvailable(ctx, lotID, inv.UnitsOnHand); err != nil {
		e.logger.Warn("failed to seed stock gauge", zap.String("lot_id", lotID.String()), zap.Error(err))
	}

	e.logger.Info("lot available for sale",
		zap.String("lot_id", lotID.String()),
		zap.Int("units", inv.UnitsOnHand),
		zap.Int64("selling_price", sellingPricePerUnit.Amount),
		zap.Int("markup_percent", inv.MarkupPercent))
	return inv, nil
}

// Lot returns the lot's current descriptive state.
func (e *LotEngine) Lot(lotID uuid.UUID) (domain.ImportLot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.lots[lotID]
	if !ok {
		return domain.ImportLot{}, fmt.Errorf("%w: %s", ErrUnknownLot, lotID)
	}
	return rec.lot, nil
}

// Reserve holds qty units of a lot. The gauge rejects doomed requests before
// they reach the coordinator; the coordinator's check is the authoritative
// one, and a rejection there rolls the gauge back.
func (e *LotEngine) Reserve(ctx context.Context, lotID uuid.UUID, qty int, ttl time.Duration) (ReservationHandle, error) {
	if qty <= 0 {
		return ReservationHandle{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}

	ok, err := e.cache.DecrementAvailable(ctx, lotID, qty)
	if err != nil {
		return ReservationHandle{}, fmt.Errorf("stock gauge check: %w", err)
	}
	if !ok {
		available := 0
		if inv, peekErr := e.coordinator.Peek(lotID); peekErr == nil {
			available = inv.AvailableForSale()
		}
		return ReservationHandle{}, &InsufficientStockError{LotID: lotID, Requested: qty, Available: available}
	}

	handle, err := e.coordinator.Reserve(lotID, qty, ttl)
	if err != nil {
		if rollbackErr := e.cache.IncrementAvailable(ctx, lotID, qty); rollbackErr != nil {
			e.logger.Error("failed to roll back stock gauge",
				zap.String("lot_id", lotID.String()),
				zap.Int("qty", qty),
				zap.Error(rollbackErr))
		}
		return ReservationHandle{}, err
	}
	return handle, nil
}

// Release returns a hold to the pool; repeated calls are no-ops.
func (e *LotEngine) Release(handle ReservationHandle) error {
	return e.coordinator.Release(handle)
}

// Fulfill converts a hold into a sale; the handle is consumed.
func (e *LotEngine) Fulfill(handle ReservationHandle) error {
	return e.coordinator.Fulfill(handle)
}

// Peek returns a read-only counter snapshot.
func (e *LotEngine) Peek(lotID uuid.UUID) (domain.InventoryLot, error) {
	return e.coordinator.Peek(lotID)
}

// SweepExpired releases expired holds. Intended for a periodic background
// caller; safe to invoke concurrently with live traffic.
func (e *LotEngine) SweepExpired(now time.Time) int {
	return e.coordinator.SweepExpired(now)
}

// PlaceOrder reserves stock for every line, prices the lines from the lots'
// quoted selling prices, computes totals and persists the confirmed order.
// If any line cannot be reserved, holds already taken are released and
// nothing is charged.
func (e *LotEngine) PlaceOrder(ctx context.Context, customerID uuid.UUID, orderNumber string, lines []OrderLineParams, deliveryFee, discount domain.Money, vatRate decimal.Decimal, ttl time.Duration) (domain.Order, error) {
	orderID := uuid.New()
	var handles []ReservationHandle
	var built []domain.OrderLine

	rollback := func() {
		for _, h := range handles {
			if err := e.coordinator.Release(h); err != nil {
				e.logger.Error("failed to release hold during order rollback",
					zap.String("order_id", orderID.String()), zap.Error(err))
			}
		}
	}

	for _, lp := range lines {
		inv, err := e.coordinator.Peek(lp.LotID)
		if err != nil {
			rollback()
			return domain.Order{}, err
		}

		lineTotal, err := PriceLine(lp.Quantity, inv.SellingPricePerUnit, lp.DiscountPercent, lp.DiscountFixed)
		if err != nil {
			rollback()
			return domain.Order{}, err
		}

		handle, err := e.Reserve(ctx, lp.LotID, lp.Quantity, ttl)
		if err != nil {
			rollback()
			return domain.Order{}, err
		}
		handles = append(handles, handle)

		built = append(built, domain.OrderLine{
			ID:              uuid.New(),
			OrderID:         orderID,
			LotID:           lp.LotID,
			Quantity:        lp.Quantity,
			UnitPrice:       inv.SellingPricePerUnit,
			DiscountPercent: lp.DiscountPercent,
			DiscountFixed:   lp.DiscountFixed,
			LineTotal:       lineTotal,
			WineName:        lp.WineName,
			Producer:        lp.Producer,
			Vintage:         lp.Vintage,
			BottleSizeML:    lp.BottleSizeML,
		})
	}

	totals, err := ComputeOrderTotals(built, deliveryFee, discount, vatRate)
	if err != nil {
		rollback()
		return domain.Order{}, err
	}

	now := time.Now()
	order := domain.Order{
		ID:          orderID,
		OrderNumber: orderNumber,
		CustomerID:  customerID,
		Status:      domain.OrderStatusConfirmed,
		Lines:       built,
		DeliveryFee: deliveryFee,
		Discount:    discount,
		Subtotal:    totals.Subtotal,
		VAT:         totals.VAT,
		Total:       totals.Total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.store.SaveOrder(ctx, order); err != nil {
		rollback()
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}

	e.mu.Lock()
	e.orders[orderID] = &orderRecord{order: order, handles: handles}
	e.mu.Unlock()

	e.logger.Info("order placed",
		zap.String("order_id", orderID.String()),
		zap.String("order_number", orderNumber),
		zap.Int("lines", len(built)),
		zap.Int64("total", totals.Total.Amount))
	return order, nil
}

// CancelOrder releases every hold the order owns. Only confirmed, not yet
// fulfilled orders can be cancelled.
func (e *LotEngine) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	e.mu.Lock()
	rec, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if rec.order.Status != domain.OrderStatusConfirmed {
		status := rec.order.Status
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrOrderState, orderID, status)
	}
	rec.order.Status = domain.OrderStatusCancelled
	rec.order.UpdatedAt = time.Now()
	handles := rec.handles
	e.mu.Unlock()

	for _, h := range handles {
		if err := e.coordinator.Release(h); err != nil {
			e.logger.Error("failed to release hold on cancellation",
				zap.String("order_id", orderID.String()), zap.Error(err))
		}
	}
	return nil
}

// FulfillOrder converts every hold of a confirmed order into a sale.
func (e *LotEngine) FulfillOrder(ctx context.Context, orderID uuid.UUID) error {
	e.mu.Lock()
	rec, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if rec.order.Status != domain.OrderStatusConfirmed {
		status := rec.order.Status
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrOrderState, orderID, status)
	}
	handles := rec.handles
	e.mu.Unlock()

	for _, h := range handles {
		if err := e.coordinator.Fulfill(h); err != nil {
			return fmt.Errorf("fulfill order %s: %w", orderID, err)
		}
	}

	e.mu.Lock()
	rec.order.Status = domain.OrderStatusDelivered
	rec.order.UpdatedAt = time.Now()
	e.mu.Unlock()
	return nil
}

// Order returns the order's current state.
func (e *LotEngine) Order(orderID uuid.UUID) (domain.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return rec.order, nil
}

// StartWorkers spawns n goroutines draining the coordinator's event stream
// into the store and the stock gauge.
func (e *LotEngine) StartWorkers(n int) {
	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go func(id int) {
			defer e.wg.Done()
			e.workerLoop(id)
		}(i)
	}
}

// Stop closes the event stream and waits for workers to drain it. No counter
// mutation may be in flight.
func (e *LotEngine) Stop() {
	e.coordinator.Close()
	e.wg.Wait()
}

func (e *LotEngine) workerLoop(id int) {
	for ev := range e.coordinator.Events() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)

		inv := domain.InventoryLot{
			LotID:         ev.LotID,
			UnitsOnHand:   ev.UnitsOnHand,
			UnitsReserved: ev.UnitsReserved,
			UnitsSold:     ev.UnitsSold,
			Version:       ev.Version,
			UpdatedAt:     ev.At,
		}
		if err := e.store.UpdateInventoryCounters(ctx, inv); err != nil {
			if errors.Is(err, port.ErrOptimisticLock) {
				e.logger.Debug("skipped stale counter snapshot",
					zap.Int("worker", id),
					zap.String("lot_id", ev.LotID.String()),
					zap.Int("version", ev.Version))
			} else {
				e.logger.Error("failed to persist counters",
					zap.Int("worker", id),
					zap.String("lot_id", ev.LotID.String()),
					zap.Error(err))
			}
		}

		if err := e.cache.SetAvailable(ctx, ev.LotID, ev.Available); err != nil {
			e.logger.Warn("failed to resync stock gauge",
				zap.Int("worker", id),
				zap.String("lot_id", ev.LotID.String()),
				zap.Error(err))
		}

		if ev.SoldOut {
			if err := e.store.UpdateLotStatus(ctx, ev.LotID, domain.LotSoldOut); err != nil {
				e.logger.Error("failed to persist sold-out status",
					zap.Int("worker", id),
					zap.String("lot_id", ev.LotID.String()),
					zap.Error(err))
			}
		}

		cancel()
	}
}

// markSoldOut flips the in-memory lot status on the one-way
// AVAILABLE -> SOLD_OUT edge. Called by the coordinator exactly once per lot.
func (e *LotEngine) markSoldOut(lotID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.lots[lotID]
	if !ok {
		return
	}
	rec.lot.Status = domain.LotSoldOut
	rec.lot.UpdatedAt = time.Now()
	e.logger.Info("lot sold out", zap.String("lot_id", lotID.String()))
}
