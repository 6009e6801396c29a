package order

import (
	"context"
	"time"
)

type Repository interface {
	// Insert persists the address snapshots, the order and its items. A duplicate (user, idempotency key)
	// returns ErrConflict.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate is Get plus a row lock held until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	FindByIdempotency(ctx context.Context, userID, key string) (*Order, error)
	// UpdateStatus persists status, paidAt, cancelledAt and updatedAt.
	UpdateStatus(ctx context.Context, order *Order) error
	// ListStaleUnpaid returns ids of PENDING/AWAITING_PAYMENT orders created before the cutoff, oldest first.
	ListStaleUnpaid(ctx context.Context, before time.Time, limit int) ([]string, error)
}
