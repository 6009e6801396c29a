package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
)

type discountRepository struct {
	db *gorm.DB
}

func (r discountRepository) FindDiscount(ctx context.Context, code string) (*pricing.DiscountCode, error) {
	var row discountRow
	err := r.db.WithContext(ctx).Where("code = ?", pricing.NormalizeCode(code)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pricing.ErrDiscountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load discount: %w", err)
	}
	d := rowToDiscount(row)
	return &d, nil
}

// RedeemDiscount is a conditional increment so two checkouts cannot both take the last use.
func (r discountRepository) RedeemDiscount(ctx context.Context, code string) error {
	code = pricing.NormalizeCode(code)
	res := r.db.WithContext(ctx).Model(&discountRow{}).
		Where("code = ? AND (usage_limit = 0 OR times_used < usage_limit)", code).
		UpdateColumn("times_used", gorm.Expr("times_used + 1"))
	if res.Error != nil {
		return fmt.Errorf("redeem discount: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.FindDiscount(ctx, code); err != nil {
		return err
	}
	return pricing.ErrDiscountUsageExhausted
}

func discountToRow(d pricing.DiscountCode) discountRow {
	return discountRow{
		Code:             pricing.NormalizeCode(d.Code),
		Kind:             string(d.Kind),
		AmountOffCents:   d.AmountOffCents,
		PercentOff:       d.PercentOff,
		MinSubtotalCents: d.MinSubtotalCents,
		StartsAt:         d.StartsAt,
		EndsAt:           d.EndsAt,
		UsageLimit:       d.UsageLimit,
		TimesUsed:        d.TimesUsed,
	}
}

func rowToDiscount(row discountRow) pricing.DiscountCode {
	return pricing.DiscountCode{
		Code:             row.Code,
		Kind:             pricing.DiscountKind(row.Kind),
		AmountOffCents:   row.AmountOffCents,
		PercentOff:       row.PercentOff,
		MinSubtotalCents: row.MinSubtotalCents,
		StartsAt:         row.StartsAt,
		EndsAt:           row.EndsAt,
		UsageLimit:       row.UsageLimit,
		TimesUsed:        row.TimesUsed,
	}
}
