package inventory

import "context"

// Ledger is the authoritative stock counter. Reserve and Restore run inside the caller's transaction and
// must be atomic per variant: two concurrent reservations never both succeed past available stock.
type Ledger interface {
	Product(ctx context.Context, productID string) (*Product, error)
	Reserve(ctx context.Context, variantID string, quantity int) error
	Restore(ctx context.Context, variantID string, quantity int) error
	// RecordPurchase bumps the product's purchase counter; best-effort, outside settlement.
	RecordPurchase(ctx context.Context, productID string, quantity int) error
}
