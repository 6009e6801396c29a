package memory

import (
	"context"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/pricing"
)

type discountRepository struct {
	st *state
}

func (r discountRepository) FindDiscount(_ context.Context, code string) (*pricing.DiscountCode, error) {
	d, ok := r.st.discounts[pricing.NormalizeCode(code)]
	if !ok {
		return nil, pricing.ErrDiscountNotFound
	}
	cp := *d
	return &cp, nil
}

func (r discountRepository) RedeemDiscount(_ context.Context, code string) error {
	d, ok := r.st.discounts[pricing.NormalizeCode(code)]
	if !ok {
		return pricing.ErrDiscountNotFound
	}
	if d.UsageLimit > 0 && d.TimesUsed >= d.UsageLimit {
		return pricing.ErrDiscountUsageExhausted
	}
	d.TimesUsed++
	return nil
}
