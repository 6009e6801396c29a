package cart

import (
	"context"
	"errors"
	"time"
)

const (
	MinQuantity = 1
	MaxQuantity = 99
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be between 1 and 99")
	ErrInvalidPrice    = errors.New("cart: price snapshot must be zero or greater")
	ErrInvalidProduct  = errors.New("cart: product id is required")
)

// Line is one cart entry. UnitPriceCents is the price snapshot taken when the item was added.
type Line struct {
	ProductID      string
	Size           string
	Quantity       int
	UnitPriceCents int64
	AddedAt        time.Time
}

type Cart struct {
	UserID    string
	Lines     []Line
	UpdatedAt time.Time
}

func NewLine(productID, size string, quantity int, unitPriceCents int64) (Line, error) {
	if productID == "" {
		return Line{}, ErrInvalidProduct
	}
	if quantity < MinQuantity || quantity > MaxQuantity {
		return Line{}, ErrInvalidQuantity
	}
	if unitPriceCents < 0 {
		return Line{}, ErrInvalidPrice
	}
	return Line{
		ProductID:      productID,
		Size:           size,
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		AddedAt:        time.Now().UTC(),
	}, nil
}

func (c *Cart) Empty() bool { return c == nil || len(c.Lines) == 0 }

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = append([]Line(nil), c.Lines...)
	return &clone
}

type Repository interface {
	// Get returns the user's cart; a user without one gets an empty cart, not an error.
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	// Clear empties the cart's lines without deleting the cart itself.
	Clear(ctx context.Context, userID string) error
}
