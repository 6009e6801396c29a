package notification

import (
	"context"
	"time"
)

type ReceiptItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type Receipt struct {
	OrderID    string        `json:"orderId"`
	UserID     string        `json:"userId"`
	Email      string        `json:"email,omitempty"`
	TotalCents int64         `json:"totalCents"`
	Currency   string        `json:"currency"`
	Items      []ReceiptItem `json:"items"`
	PaidAt     time.Time     `json:"paidAt"`
}

// Notifier dispatches payment receipts. Delivery is best-effort.
type Notifier interface {
	Channel() string
	SendPaymentReceipt(ctx context.Context, r Receipt) error
}
