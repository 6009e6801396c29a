package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrDuplicateRequest is returned when another checkout with the same idempotency key won the insert.
	ErrDuplicateRequest = errors.New("checkout: duplicate request in progress")
	ErrRepository       = errors.New("checkout: repository failure")
)

const (
	ReasonInsufficientStock  = "insufficient_stock"
	ReasonProductUnavailable = "product_unavailable"
	ReasonVariantNotFound    = "variant_not_found"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("checkout: invalid %s: %s", e.Field, e.Reason)
}

// Conflict describes one cart line that cannot be fulfilled.
type Conflict struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"`
}

// StockConflictError carries every conflicting line so the caller can fix them in one round trip.
type StockConflictError struct {
	Conflicts []Conflict
}

func (e *StockConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s/%s %s", c.ProductID, c.Size, c.Reason))
	}
	return "checkout: stock conflict: " + strings.Join(parts, ", ")
}

type DiscountError struct {
	Code   string
	Reason string
	Err    error
}

func (e *DiscountError) Error() string {
	return fmt.Sprintf("checkout: discount code %q rejected: %s", e.Code, e.Reason)
}

func (e *DiscountError) Unwrap() error { return e.Err }
