package payment

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound               = errors.New("payment: record not found")
	ErrConflict               = errors.New("payment: record already exists")
	ErrInvalidStateTransition = errors.New("payment: invalid state transition")
	ErrUnknownStatus          = errors.New("payment: unknown status")
)

type Status string

const (
	StatusPending  Status = "PAYMENT_PENDING"
	StatusCaptured Status = "CAPTURED"
	StatusFailed   Status = "FAILED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusCaptured, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Outcome is the provider's verdict carried by a settlement notification.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Record tracks one provider-side payment handle for an order.
// (Provider, ProviderRef) is unique.
type Record struct {
	ID          string
	OrderID     string
	Provider    string
	ProviderRef string
	Status      Status
	AmountCents int64
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewRecord(id, orderID, provider, ref string, amountCents int64, currency string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:          id,
		OrderID:     orderID,
		Provider:    provider,
		ProviderRef: ref,
		Status:      StatusPending,
		AmountCents: amountCents,
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Capture marks the record CAPTURED. A FAILED record may still be captured when the
// customer retries against the same provider handle.
func (r *Record) Capture() error {
	switch r.Status {
	case StatusPending, StatusFailed:
		r.Status = StatusCaptured
		r.UpdatedAt = time.Now().UTC()
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, r.Status, StatusCaptured)
	}
}

func (r *Record) Fail() error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, r.Status, StatusFailed)
	}
	r.Status = StatusFailed
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
