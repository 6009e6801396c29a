package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
)

type cartRepository struct {
	db *gorm.DB
}

func (r cartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	db := r.db.WithContext(ctx)
	var rows []cartRow
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	c := &cart.Cart{UserID: userID}
	if len(rows) == 0 {
		return c, nil
	}
	c.UpdatedAt = rows[0].UpdatedAt

	var lines []cartLineRow
	if err := db.Where("user_id = ?", userID).Order("id").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	for _, l := range lines {
		c.Lines = append(c.Lines, cart.Line{
			ProductID:      l.ProductID,
			Size:           l.Size,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			AddedAt:        l.AddedAt,
		})
	}
	return c, nil
}

// Save replaces the cart's lines wholesale.
func (r cartRepository) Save(ctx context.Context, c *cart.Cart) error {
	db := r.db.WithContext(ctx)
	head := cartRow{UserID: c.UserID, UpdatedAt: time.Now().UTC()}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(&head).Error; err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if err := db.Where("user_id = ?", c.UserID).Delete(&cartLineRow{}).Error; err != nil {
		return fmt.Errorf("clear cart lines: %w", err)
	}
	if len(c.Lines) == 0 {
		return nil
	}
	lines := make([]cartLineRow, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, cartLineRow{
			UserID:         c.UserID,
			ProductID:      l.ProductID,
			Size:           l.Size,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			AddedAt:        l.AddedAt,
		})
	}
	if err := db.Create(&lines).Error; err != nil {
		return fmt.Errorf("save cart lines: %w", err)
	}
	return nil
}

func (r cartRepository) Clear(ctx context.Context, userID string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&cartLineRow{}).Error; err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if err := db.Model(&cartRow{}).Where("user_id = ?", userID).
		UpdateColumn("updated_at", time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
