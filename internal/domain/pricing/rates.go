// Package pricing computes tax, shipping and discount amounts in integer cents.
// Everything here is pure: the same input always produces the same quote, so a stored order total
// can be re-derived later to verify a payment amount.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FreeShippingThresholdCents zeroes shipping for (post-discount) subtotals at or above it.
const FreeShippingThresholdCents int64 = 7500

const (
	AdjustmentTax          = "tax"
	AdjustmentShipping     = "shipping"
	AdjustmentFreeShipping = "free_shipping"
)

// Destination is where an order ships to. Country and Region are ISO-ish codes compared case-insensitively.
type Destination struct {
	Country    string
	Region     string
	PostalCode string
}

type Line struct {
	ProductID      string
	UnitPriceCents int64
	Quantity       int
}

// TaxRule matches on country and, when Region is non-empty, on region.
type TaxRule struct {
	Name    string
	Country string
	Region  string
	Rate    decimal.Decimal
}

// ShippingRule matches on country; "*" matches any country.
type ShippingRule struct {
	Name         string
	Country      string
	BaseCents    int64
	PerItemCents int64
}

// Adjustment is one audited line of a quote. Negative amounts reduce the total.
type Adjustment struct {
	Kind        string `json:"kind"`
	Label       string `json:"label"`
	AmountCents int64  `json:"amountCents"`
	Rate        string `json:"rate,omitempty"`
}

type Quote struct {
	TaxCents      int64
	ShippingCents int64
	Breakdown     []Adjustment
}

// Calculator evaluates ordered rule tables; the first matching rule wins.
type Calculator struct {
	taxRules              []TaxRule
	shippingRules         []ShippingRule
	freeShippingThreshold int64
}

func NewCalculator(tax []TaxRule, shipping []ShippingRule, freeShippingThreshold int64) Calculator {
	return Calculator{
		taxRules:              append([]TaxRule(nil), tax...),
		shippingRules:         append([]ShippingRule(nil), shipping...),
		freeShippingThreshold: freeShippingThreshold,
	}
}

// DefaultCalculator carries the storefront's published tax and shipping tables.
func DefaultCalculator() Calculator {
	return NewCalculator(DefaultTaxRules(), DefaultShippingRules(), FreeShippingThresholdCents)
}

func DefaultTaxRules() []TaxRule {
	return []TaxRule{
		{Name: "California sales tax", Country: "US", Region: "CA", Rate: decimal.RequireFromString("0.0725")},
		{Name: "New York sales tax", Country: "US", Region: "NY", Rate: decimal.RequireFromString("0.04")},
		{Name: "Texas sales tax", Country: "US", Region: "TX", Rate: decimal.RequireFromString("0.0625")},
		{Name: "Washington sales tax", Country: "US", Region: "WA", Rate: decimal.RequireFromString("0.065")},
		{Name: "Ontario HST", Country: "CA", Region: "ON", Rate: decimal.RequireFromString("0.13")},
		{Name: "Canada GST", Country: "CA", Rate: decimal.RequireFromString("0.05")},
		{Name: "UK VAT", Country: "GB", Rate: decimal.RequireFromString("0.20")},
	}
}

func DefaultShippingRules() []ShippingRule {
	return []ShippingRule{
		{Name: "US standard", Country: "US", BaseCents: 599, PerItemCents: 100},
		{Name: "Canada standard", Country: "CA", BaseCents: 1299, PerItemCents: 200},
		{Name: "International", Country: "*", BaseCents: 1999, PerItemCents: 300},
	}
}

// Calculate quotes tax and shipping for subtotalCents shipped to dest.
// Tax is round-half-up(subtotal * rate); amounts are never negative.
func (c Calculator) Calculate(subtotalCents int64, lines []Line, dest Destination) Quote {
	var q Quote
	if subtotalCents < 0 {
		subtotalCents = 0
	}

	if rule, ok := c.matchTax(dest); ok {
		q.TaxCents = RoundHalfUp(decimal.NewFromInt(subtotalCents).Mul(rule.Rate))
		q.Breakdown = append(q.Breakdown, Adjustment{
			Kind:        AdjustmentTax,
			Label:       rule.Name,
			AmountCents: q.TaxCents,
			Rate:        rule.Rate.String(),
		})
	}

	if rule, ok := c.matchShipping(dest); ok {
		var units int64
		for _, l := range lines {
			if l.Quantity > 0 {
				units += int64(l.Quantity)
			}
		}
		fee := rule.BaseCents + rule.PerItemCents*units
		q.ShippingCents = fee
		q.Breakdown = append(q.Breakdown, Adjustment{Kind: AdjustmentShipping, Label: rule.Name, AmountCents: fee})
		if c.freeShippingThreshold > 0 && subtotalCents >= c.freeShippingThreshold && fee > 0 {
			q.ShippingCents = 0
			q.Breakdown = append(q.Breakdown, Adjustment{Kind: AdjustmentFreeShipping, Label: "Free shipping", AmountCents: -fee})
		}
	}

	return q
}

func (c Calculator) matchTax(dest Destination) (TaxRule, bool) {
	for _, r := range c.taxRules {
		if !strings.EqualFold(r.Country, dest.Country) {
			continue
		}
		if r.Region != "" && !strings.EqualFold(r.Region, dest.Region) {
			continue
		}
		return r, true
	}
	return TaxRule{}, false
}

func (c Calculator) matchShipping(dest Destination) (ShippingRule, bool) {
	for _, r := range c.shippingRules {
		if r.Country == "*" || strings.EqualFold(r.Country, dest.Country) {
			return r, true
		}
	}
	return ShippingRule{}, false
}

// RoundHalfUp rounds a non-negative cent amount half away from zero.
func RoundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Subtotal sums unit price snapshots times quantity.
func Subtotal(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.UnitPriceCents * int64(l.Quantity)
	}
	return total
}
