package eventlog

import (
	"context"
	"time"
)

type Kind string

const (
	KindOrderCreated         Kind = "order_created"
	KindStatusChanged        Kind = "status_changed"
	KindPaymentIntentCreated Kind = "payment_intent_created"
	KindPaymentSucceeded     Kind = "payment_succeeded"
	KindPaymentFailed        Kind = "payment_failed"
	KindOrderCancelled       Kind = "order_cancelled"
	KindStockRestored        Kind = "stock_restored"
	KindNeedsAttention       Kind = "needs_attention"
)

// Entry is a write-once audit line attached to an order.
type Entry struct {
	ID        string
	OrderID   string
	Kind      Kind
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
}

func New(id, orderID string, kind Kind, message string, metadata map[string]string) Entry {
	return Entry{
		ID:        id,
		OrderID:   orderID,
		Kind:      kind,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// StatusChange builds the status_changed entry with from/to metadata.
func StatusChange(id, orderID string, from, to string) Entry {
	return New(id, orderID, KindStatusChanged, "order status changed", map[string]string{
		"from": from,
		"to":   to,
	})
}

type Log interface {
	Append(ctx context.Context, e Entry) error
	// List returns the order's entries oldest first.
	List(ctx context.Context, orderID string) ([]Entry, error)
}
