package payment

import "context"

type Repository interface {
	// Insert returns ErrConflict when (provider, providerRef) already exists.
	Insert(ctx context.Context, r *Record) error
	// FindByRef locks the row for the rest of the transaction in SQL stores.
	FindByRef(ctx context.Context, provider, ref string) (*Record, error)
	// FindLatest returns the newest record for the order with that provider.
	FindLatest(ctx context.Context, orderID, provider string) (*Record, error)
	UpdateStatus(ctx context.Context, r *Record) error
}
