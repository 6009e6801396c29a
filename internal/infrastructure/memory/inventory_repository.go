package memory

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

type stockLedger struct {
	st *state
}

func (l stockLedger) Product(_ context.Context, productID string) (*inventory.Product, error) {
	p, ok := l.st.products[productID]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (l stockLedger) Reserve(_ context.Context, variantID string, quantity int) error {
	v, err := l.variant(variantID)
	if err != nil {
		return err
	}
	return v.Reserve(quantity)
}

func (l stockLedger) Restore(_ context.Context, variantID string, quantity int) error {
	v, err := l.variant(variantID)
	if err != nil {
		return err
	}
	return v.Restore(quantity)
}

func (l stockLedger) RecordPurchase(_ context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	if _, ok := l.st.products[productID]; !ok {
		return inventory.ErrProductNotFound
	}
	l.st.purchases[productID] += quantity
	return nil
}

func (l stockLedger) variant(variantID string) (*inventory.SizeVariant, error) {
	productID, ok := l.st.variants[variantID]
	if !ok {
		return nil, inventory.ErrVariantNotFound
	}
	p := l.st.products[productID]
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i], nil
		}
	}
	return nil, inventory.ErrVariantNotFound
}
