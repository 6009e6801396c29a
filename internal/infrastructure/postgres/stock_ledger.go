package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

type stockLedger struct {
	db *gorm.DB
}

func (l stockLedger) Product(ctx context.Context, productID string) (*inventory.Product, error) {
	db := l.db.WithContext(ctx)
	var row productRow
	if err := db.Where("id = ?", productID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, fmt.Errorf("load product: %w", err)
	}
	var variants []variantRow
	if err := db.Where("product_id = ?", productID).Order("label").Find(&variants).Error; err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}
	p := &inventory.Product{ID: row.ID, Name: row.Name, SKU: row.SKU, DeletedAt: row.DeletedAt}
	for _, v := range variants {
		p.Variants = append(p.Variants, inventory.SizeVariant{
			ID: v.ID, ProductID: v.ProductID, Label: v.Label, Stock: v.Stock,
		})
	}
	return p, nil
}

// Reserve is a single conditional decrement; the row lock it takes serializes competing checkouts.
func (l stockLedger) Reserve(ctx context.Context, variantID string, quantity int) error {
	if quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	res := l.db.WithContext(ctx).Model(&variantRow{}).
		Where("id = ? AND stock >= ?", variantID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("reserve stock: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := l.requireVariant(ctx, variantID); err != nil {
		return err
	}
	return inventory.ErrInsufficientStock
}

func (l stockLedger) Restore(ctx context.Context, variantID string, quantity int) error {
	if quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	res := l.db.WithContext(ctx).Model(&variantRow{}).
		Where("id = ?", variantID).
		UpdateColumn("stock", gorm.Expr("LEAST(stock + ?, ?)", quantity, inventory.MaxStock))
	if res.Error != nil {
		return fmt.Errorf("restore stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return inventory.ErrVariantNotFound
	}
	return nil
}

func (l stockLedger) RecordPurchase(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return inventory.ErrInvalidQuantity
	}
	res := l.db.WithContext(ctx).Model(&productRow{}).
		Where("id = ?", productID).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count + ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("record purchase: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return inventory.ErrProductNotFound
	}
	return nil
}

func (l stockLedger) requireVariant(ctx context.Context, variantID string) error {
	var n int64
	if err := l.db.WithContext(ctx).Model(&variantRow{}).Where("id = ?", variantID).Count(&n).Error; err != nil {
		return fmt.Errorf("check variant: %w", err)
	}
	if n == 0 {
		return inventory.ErrVariantNotFound
	}
	return nil
}
