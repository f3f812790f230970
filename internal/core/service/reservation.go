package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidHandle     = errors.New("invalid reservation handle")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrUnknownLot        = errors.New("unknown lot")
	ErrLotExists         = errors.New("lot already registered")
)

// InsufficientStockError carries the quantity still available so the caller
// can offer a partial order. errors.Is(err, ErrInsufficientStock) matches.
type InsufficientStockError struct {
	LotID     uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for lot %s: requested %d, available %d",
		e.LotID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ReservationHandle is an opaque token for a temporary hold on inventory
// units. Callers can only release or fulfill quantities they were actually
// granted; the token is the proof.
type ReservationHandle struct {
	Token     uuid.UUID
	LotID     uuid.UUID
	Qty       int
	ExpiresAt time.Time // zero means no expiry
}

type handleStatus int

const (
	handleActive handleStatus = iota
	handleReleased
	handleFulfilled
)

type handleRecord struct {
	qty       int
	status    handleStatus
	expiresAt time.Time
}

// StockEvent is a counter snapshot emitted after every mutation. Version is
// monotonic per lot, so a persistence worker can discard stale snapshots.
type StockEvent struct {
	LotID         uuid.UUID
	UnitsOnHand   int
	UnitsReserved int
	UnitsSold     int
	Available     int
	Version       int
	LowStock      bool
	SoldOut       bool
	At            time.Time
}

type lotState struct {
	mu             sync.Mutex
	inv            domain.InventoryLot
	handles        map[uuid.UUID]*handleRecord
	soldOutEmitted bool
}

// ReservationCoordinator serializes reserve/release/fulfill against each lot
// and is the only component that mutates lot counters. Each lot has its own
// mutex; reservations against different lots never contend.
type ReservationCoordinator struct {
	mu   sync.RWMutex
	lots map[uuid.UUID]*lotState

	events    chan StockEvent
	onSoldOut func(lotID uuid.UUID)
	logger    *zap.Logger
}

func NewReservationCoordinator(eventBuffer int, logger *zap.Logger) *ReservationCoordinator {
	return &ReservationCoordinator{
		lots:   make(map[uuid.UUID]*lotState),
		events: make(chan StockEvent, eventBuffer),
		logger: logger,
	}
}

// SetSoldOutHook registers a callback invoked exactly once per lot when its
// last unit is sold. Must be set before the lot takes traffic.
func (r *ReservationCoordinator) SetSoldOutHook(fn func(lotID uuid.UUID)) {
	r.onSoldOut = fn
}

// Events streams counter snapshots for asynchronous persistence.
func (r *ReservationCoordinator) Events() <-chan StockEvent {
	return r.events
}

// Close stops the event stream. No mutation may be in flight.
func (r *ReservationCoordinator) Close() {
	close(r.events)
}

// Register adopts the counter state for a newly available lot.
func (r *ReservationCoordinator) Register(inv domain.InventoryLot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lots[inv.LotID]; ok {
		return fmt.Errorf("%w: %s", ErrLotExists, inv.LotID)
	}
	r.lots[inv.LotID] = &lotState{
		inv:     inv,
		handles: make(map[uuid.UUID]*handleRecord),
	}
	return nil
}

func (r *ReservationCoordinator) lot(lotID uuid.UUID) (*lotState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ls, ok := r.lots[lotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLot, lotID)
	}
	return ls, nil
}

// Reserve holds qty units iff they are available. The availability check and
// the counter update happen under the lot mutex as one atomic step; a failed
// check reserves nothing. ttl of zero means the hold never expires.
func (r *ReservationCoordinator) Reserve(lotID uuid.UUID, qty int, ttl time.Duration) (ReservationHandle, error) {
	if qty <= 0 {
		return ReservationHandle{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}

	ls, err := r.lot(lotID)
	if err != nil {
		return ReservationHandle{}, err
	}

	ls.mu.Lock()
	available := ls.inv.AvailableForSale()
	if available < qty {
		ls.mu.Unlock()
		return ReservationHandle{}, &InsufficientStockError{LotID: lotID, Requested: qty, Available: available}
	}

	handle := ReservationHandle{
		Token: uuid.New(),
		LotID: lotID,
		Qty:   qty,
	}
	if ttl > 0 {
		handle.ExpiresAt = time.Now().Add(ttl)
	}

	ls.inv.UnitsReserved += qty
	ls.inv.Version++
	ls.inv.UpdatedAt = time.Now()
	ls.handles[handle.Token] = &handleRecord{qty: qty, status: handleActive, expiresAt: handle.ExpiresAt}
	event := r.snapshot(ls)
	ls.mu.Unlock()

	r.emit(event)
	return handle, nil
}

// Release returns a hold to the available pool. It is idempotent: a handle
// already released, fulfilled or swept is a no-op, so at-least-once retry
// from timeout cleanup is safe.
func (r *ReservationCoordinator) Release(handle ReservationHandle) error {
	ls, err := r.lot(handle.LotID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	rec, ok := ls.handles[handle.Token]
	if !ok || rec.status != handleActive {
		ls.mu.Unlock()
		return nil
	}

	rec.status = handleReleased
	ls.inv.UnitsReserved -= rec.qty
	if ls.inv.UnitsReserved < 0 {
		ls.inv.UnitsReserved = 0
	}
	ls.inv.Version++
	ls.inv.UpdatedAt = time.Now()
	event := r.snapshot(ls)
	ls.mu.Unlock()

	r.emit(event)
	return nil
}

// Fulfill converts a hold into a sale: reserved and on-hand shrink, sold
// grows. This edge is irreversible; a consumed handle fails with
// ErrInvalidHandle on any further fulfill.
func (r *ReservationCoordinator) Fulfill(handle ReservationHandle) error {
	ls, err := r.lot(handle.LotID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	rec, ok := ls.handles[handle.Token]
	if !ok || rec.status != handleActive {
		ls.mu.Unlock()
		return fmt.Errorf("%w: token %s", ErrInvalidHandle, handle.Token)
	}

	rec.status = handleFulfilled
	ls.inv.UnitsReserved -= rec.qty
	ls.inv.UnitsOnHand -= rec.qty
	ls.inv.UnitsSold += rec.qty
	ls.inv.Version++
	ls.inv.UpdatedAt = time.Now()

	soldOut := false
	if ls.inv.UnitsOnHand == 0 && ls.inv.UnitsReserved == 0 && !ls.soldOutEmitted {
		ls.soldOutEmitted = true
		soldOut = true
	}
	event := r.snapshot(ls)
	event.SoldOut = soldOut
	ls.mu.Unlock()

	if soldOut && r.onSoldOut != nil {
		r.onSoldOut(handle.LotID)
	}
	r.emit(event)
	return nil
}

// Peek returns a copy of the current counter state without holding the lot
// mutex longer than the copy.
func (r *ReservationCoordinator) Peek(lotID uuid.UUID) (domain.InventoryLot, error) {
	ls, err := r.lot(lotID)
	if err != nil {
		return domain.InventoryLot{}, err
	}

	ls.mu.Lock()
	inv := ls.inv
	ls.mu.Unlock()
	return inv, nil
}

// SweepExpired releases every hold whose expiry has passed and reports how
// many were swept. Release idempotency makes repeated sweeps safe.
func (r *ReservationCoordinator) SweepExpired(now time.Time) int {
	r.mu.RLock()
	states := make([]*lotState, 0, len(r.lots))
	for _, ls := range r.lots {
		states = append(states, ls)
	}
	r.mu.RUnlock()

	swept := 0
	for _, ls := range states {
		var events []StockEvent

		ls.mu.Lock()
		for token, rec := range ls.handles {
			if rec.status != handleActive || rec.expiresAt.IsZero() || rec.expiresAt.After(now) {
				continue
			}
			rec.status = handleReleased
			ls.inv.UnitsReserved -= rec.qty
			if ls.inv.UnitsReserved < 0 {
				ls.inv.UnitsReserved = 0
			}
			ls.inv.Version++
			ls.inv.UpdatedAt = time.Now()
			events = append(events, r.snapshot(ls))
			swept++
			if r.logger != nil {
				r.logger.Info("reservation expired",
					zap.String("lot_id", ls.inv.LotID.String()),
					zap.String("token", token.String()),
					zap.Int("qty", rec.qty))
			}
		}
		ls.mu.Unlock()

		for _, ev := range events {
			r.emit(ev)
		}
	}
	return swept
}

func (r *ReservationCoordinator) snapshot(ls *lotState) StockEvent {
	return StockEvent{
		LotID:         ls.inv.LotID,
		UnitsOnHand:   ls.inv.UnitsOnHand,
		UnitsReserved: ls.inv.UnitsReserved,
		UnitsSold:     ls.inv.UnitsSold,
		Available:     ls.inv.AvailableForSale(),
		Version:       ls.inv.Version,
		LowStock:      ls.inv.LowStockAlert(),
		At:            time.Now(),
	}
}

func (r *ReservationCoordinator) emit(event StockEvent) {
	select {
	case r.events <- event:
	default:
		// A full buffer drops the snapshot; a later event carries newer
		// counters and the store discards stale versions anyway.
		if r.logger != nil {
			r.logger.Warn("stock event buffer full, dropping snapshot",
				zap.String("lot_id", event.LotID.String()),
				zap.Int("version", event.Version))
		}
	}
}
