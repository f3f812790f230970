package port

import (
	"context"

	"github.com/google/uuid"
)

// StockCache mirrors per-lot available stock for cheap rejection of doomed
// reservation attempts before they reach the coordinator. The coordinator
// stays authoritative; the gauge is advisory.
type StockCache interface {
	// SetAvailable seeds or resets the gauge for a lot.
	SetAvailable(ctx context.Context, lotID uuid.UUID, available int) error

	// DecrementAvailable atomically decreases the gauge, returns false if
	// the gauge would go negative.
	DecrementAvailable(ctx context.Context, lotID uuid.UUID, qty int) (bool, error)

	// IncrementAvailable restores the gauge (release or rollback).
	IncrementAvailable(ctx context.Context, lotID uuid.UUID, qty int) error

	// SetIdempotency sets a key for request deduplication, returns false if
	// it already exists.
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
