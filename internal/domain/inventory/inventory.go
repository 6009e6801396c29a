package inventory

import (
	"errors"
	"time"
)

var (
	ErrProductNotFound   = errors.New("inventory: product not found")
	ErrVariantNotFound   = errors.New("inventory: size variant not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// MaxStock caps restores so a repeated compensation cannot inflate a counter without bound.
const MaxStock = 1_000_000

type Product struct {
	ID        string
	Name      string
	SKU       string
	DeletedAt *time.Time
	Variants  []SizeVariant
}

// SizeVariant is one purchasable size of a product with its own stock counter.
type SizeVariant struct {
	ID        string
	ProductID string
	Label     string
	Stock     int
}

// Tracked reports whether the product carries per-size stock. Untracked products have unlimited stock.
func (p *Product) Tracked() bool { return len(p.Variants) > 0 }

func (p *Product) Deleted() bool { return p.DeletedAt != nil }

// Variant finds a size variant by label.
func (p *Product) Variant(label string) (*SizeVariant, error) {
	for i := range p.Variants {
		if p.Variants[i].Label == label {
			return &p.Variants[i], nil
		}
	}
	return nil, ErrVariantNotFound
}

// Reserve decrements stock by quantity, leaving the variant untouched when stock is short.
func (v *SizeVariant) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > v.Stock {
		return ErrInsufficientStock
	}
	v.Stock -= quantity
	return nil
}

// Restore increments stock by quantity, clamped at MaxStock.
func (v *SizeVariant) Restore(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	v.Stock += quantity
	if v.Stock > MaxStock {
		v.Stock = MaxStock
	}
	return nil
}
