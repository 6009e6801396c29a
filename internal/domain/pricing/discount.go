package pricing

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrDiscountNotFound       = errors.New("pricing: discount code not found")
	ErrDiscountNotActive      = errors.New("pricing: discount code not active yet")
	ErrDiscountExpired        = errors.New("pricing: discount code expired")
	ErrDiscountUsageExhausted = errors.New("pricing: discount code usage limit reached")
	ErrDiscountBelowMinimum   = errors.New("pricing: subtotal below discount minimum")
)

type DiscountKind string

const (
	DiscountFixed   DiscountKind = "fixed"
	DiscountPercent DiscountKind = "percent"
)

// DiscountCode is a single flat code: either a fixed amount or a whole-number percentage off the subtotal.
type DiscountCode struct {
	Code             string
	Kind             DiscountKind
	AmountOffCents   int64
	PercentOff       int64
	MinSubtotalCents int64
	StartsAt         *time.Time
	EndsAt           *time.Time
	// UsageLimit of zero means unlimited.
	UsageLimit int64
	TimesUsed  int64
}

// NormalizeCode is the canonical lookup form of a user-typed code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Apply validates the code for subtotalCents at now and returns the discount in cents.
// Fixed amounts are capped at the subtotal; percentages are floored.
func (d DiscountCode) Apply(subtotalCents int64, now time.Time) (int64, error) {
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return 0, ErrDiscountNotActive
	}
	if d.EndsAt != nil && !now.Before(*d.EndsAt) {
		return 0, ErrDiscountExpired
	}
	if d.UsageLimit > 0 && d.TimesUsed >= d.UsageLimit {
		return 0, ErrDiscountUsageExhausted
	}
	if subtotalCents < d.MinSubtotalCents {
		return 0, ErrDiscountBelowMinimum
	}

	var off int64
	switch d.Kind {
	case DiscountPercent:
		pct := d.PercentOff
		if pct > 100 {
			pct = 100
		}
		off = decimal.NewFromInt(subtotalCents).Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Floor().IntPart()
	default:
		off = d.AmountOffCents
	}
	if off < 0 {
		off = 0
	}
	if off > subtotalCents {
		off = subtotalCents
	}
	return off, nil
}

// DiscountReason maps a discount error to the short reason code returned to clients.
func DiscountReason(err error) string {
	switch {
	case errors.Is(err, ErrDiscountNotFound):
		return "not_found"
	case errors.Is(err, ErrDiscountNotActive):
		return "not_active"
	case errors.Is(err, ErrDiscountExpired):
		return "expired"
	case errors.Is(err, ErrDiscountUsageExhausted):
		return "usage_exhausted"
	case errors.Is(err, ErrDiscountBelowMinimum):
		return "below_minimum"
	default:
		return "invalid"
	}
}
