package webhook

import (
	"context"
	"errors"
	"time"
)

// ErrDeliveryNotFound is returned by ledger lookups for unknown ids.
var ErrDeliveryNotFound = errors.New("webhook: delivery not found")

// Ledger is the persistent record store for delivery attempt sequences.
// All operations are single-row; the engine never needs a multi-row
// transaction. Concurrent updates to the same row are last-write-wins: the
// authoritative signal to the receiver is the HTTP request, not the ledger.
type Ledger interface {
	CreateDelivery(ctx context.Context, d *Delivery) error

	// UpdateDelivery persists the mutable fields of d (status, attempts,
	// diagnostics, next_retry_at, completed_at) keyed by d.ID.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	FindDelivery(ctx context.Context, id string) (*Delivery, error)

	// ClaimDue returns up to limit deliveries in status retrying whose
	// next_retry_at is at or before now, clearing next_retry_at on each so
	// a row is handed out once per due time. This is what makes the retry
	// scheduler restart-safe: scheduled work lives in the ledger, not in
	// process memory.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)
}
