// Package store defines the unit of work shared by the checkout, payment and settlement use cases.
package store

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/eventlog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
)

// Tx exposes repositories bound to a single transaction.
type Tx interface {
	Carts() cart.Repository
	Orders() order.Repository
	Payments() payment.Repository
	Stock() inventory.Ledger
	Events() eventlog.Log
	Discounts() pricing.DiscountRepository
}

// TxManager runs fn in one transaction. A non-nil error from fn rolls every write back and is returned as is.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
