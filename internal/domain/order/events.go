package order

import "time"

// PaidItem is the part of an order line downstream consumers of OrderPaidEvent need.
type PaidItem struct {
	ProductID string
	Name      string
	Quantity  int
}

// OrderPaidEvent is published on the event bus after a settlement commits.
// Consumers (receipts, purchase counters) are best-effort.
type OrderPaidEvent struct {
	OrderID    string
	UserID     string
	Email      string
	TotalCents int64
	Currency   string
	Items      []PaidItem
	OccurredAt time.Time
}

func (OrderPaidEvent) EventName() string { return "order.paid" }

func NewOrderPaidEvent(o *Order) OrderPaidEvent {
	items := make([]PaidItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, PaidItem{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity})
	}
	occurred := time.Now().UTC()
	if o.PaidAt != nil {
		occurred = *o.PaidAt
	}
	return OrderPaidEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Email:      o.Email,
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
		Items:      items,
		OccurredAt: occurred,
	}
}

func (e OrderPaidEvent) AggregateID() string { return e.OrderID }
