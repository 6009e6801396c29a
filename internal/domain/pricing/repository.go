package pricing

import "context"

type DiscountRepository interface {
	// FindDiscount looks a code up by its normalized form; unknown codes return ErrDiscountNotFound.
	FindDiscount(ctx context.Context, code string) (*DiscountCode, error)
	// RedeemDiscount consumes one use, failing with ErrDiscountUsageExhausted when the limit is reached.
	RedeemDiscount(ctx context.Context, code string) error
}
