package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: conflict")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	ErrUnknownStatus          = errors.New("order: unknown status")
	ErrNoItems                = errors.New("order: at least one item is required")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount          = errors.New("order: amounts must be zero or greater")
	ErrTotalMismatch          = errors.New("order: total does not match its components")
)

// Status is the closed set of order states. Values outside the constants below are rejected by ParseStatus.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaid            Status = "PAID"
	StatusFulfilling      Status = "FULFILLING"
	StatusShipped         Status = "SHIPPED"
	StatusDelivered       Status = "DELIVERED"
	StatusCancelled       Status = "CANCELLED"
	StatusRefunded        Status = "REFUNDED"
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := states[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Unpaid reports whether the order can still take a payment or be cancelled by its owner.
func (s Status) Unpaid() bool {
	return s == StatusPending || s == StatusAwaitingPayment
}

// Address is a denormalized snapshot taken at checkout, never a live reference.
type Address struct {
	ID         string
	FullName   string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
}

// Item snapshots the catalog entry at order time so later catalog edits never rewrite history.
type Item struct {
	ID             string
	ProductID      string
	VariantID      string
	Name           string
	SKU            string
	Size           string
	Quantity       int
	UnitPriceCents int64
	LineTotalCents int64
}

type Totals struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	ShippingCents int64
}

// TotalCents is subtotal - discount + tax + shipping.
func (t Totals) TotalCents() int64 {
	return t.SubtotalCents - t.DiscountCents + t.TaxCents + t.ShippingCents
}

type Order struct {
	ID              string
	UserID          string
	Email           string
	Status          Status
	Currency        string
	SubtotalCents   int64
	DiscountCents   int64
	DiscountCode    string
	TaxCents        int64
	ShippingCents   int64
	TotalCents      int64
	ShippingAddress Address
	BillingAddress  Address
	Items           []Item
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	CancelledAt     *time.Time
}

type NewParams struct {
	ID              string
	UserID          string
	Email           string
	Currency        string
	Totals          Totals
	DiscountCode    string
	ShippingAddress Address
	BillingAddress  Address
	Items           []Item
	IdempotencyKey  string
}

// New builds a PENDING order and checks that the totals add up.
func New(p NewParams) (*Order, error) {
	if len(p.Items) == 0 {
		return nil, ErrNoItems
	}
	t := p.Totals
	if t.SubtotalCents < 0 || t.DiscountCents < 0 || t.TaxCents < 0 || t.ShippingCents < 0 || t.DiscountCents > t.SubtotalCents {
		return nil, ErrInvalidAmount
	}
	var itemsTotal int64
	items := make([]Item, len(p.Items))
	for i, it := range p.Items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPriceCents < 0 {
			return nil, ErrInvalidAmount
		}
		it.LineTotalCents = it.UnitPriceCents * int64(it.Quantity)
		itemsTotal += it.LineTotalCents
		items[i] = it
	}
	if itemsTotal != t.SubtotalCents {
		return nil, ErrTotalMismatch
	}

	now := time.Now().UTC()
	return &Order{
		ID:              p.ID,
		UserID:          p.UserID,
		Email:           p.Email,
		Status:          StatusPending,
		Currency:        p.Currency,
		SubtotalCents:   t.SubtotalCents,
		DiscountCents:   t.DiscountCents,
		DiscountCode:    p.DiscountCode,
		TaxCents:        t.TaxCents,
		ShippingCents:   t.ShippingCents,
		TotalCents:      t.TotalCents(),
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		Items:           items,
		IdempotencyKey:  p.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// AwaitPayment records that a provider-side payment handle exists for the order.
func (o *Order) AwaitPayment() error {
	return o.apply(func(s orderState) (orderState, error) { return s.AwaitPayment(o) })
}

// MarkPaid moves the order to PAID and stamps paidAt.
func (o *Order) MarkPaid(at time.Time) error {
	return o.apply(func(s orderState) (orderState, error) { return s.Pay(o, at) })
}

func (o *Order) Cancel(at time.Time) error {
	return o.apply(func(s orderState) (orderState, error) { return s.Cancel(o, at) })
}

func (o *Order) StartFulfilment() error {
	return o.apply(func(s orderState) (orderState, error) { return s.StartFulfilment(o) })
}

func (o *Order) Ship() error {
	return o.apply(func(s orderState) (orderState, error) { return s.Ship(o) })
}

func (o *Order) Deliver() error {
	return o.apply(func(s orderState) (orderState, error) { return s.Deliver(o) })
}

func (o *Order) Refund() error {
	return o.apply(func(s orderState) (orderState, error) { return s.Refund(o) })
}

func (o *Order) apply(transition func(orderState) (orderState, error)) error {
	current, ok := states[o.Status]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, o.Status)
	}
	next, err := transition(current)
	if err != nil {
		return fmt.Errorf("%w: %s", err, o.Status)
	}
	o.Status = next.Status()
	o.touch()
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		clone.PaidAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		clone.CancelledAt = &t
	}
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
