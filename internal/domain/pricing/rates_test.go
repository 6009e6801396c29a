package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateTax(t *testing.T) {
	calc := DefaultCalculator()

	tests := []struct {
		name     string
		subtotal int64
		dest     Destination
		wantTax  int64
	}{
		{name: "california", subtotal: 10000, dest: Destination{Country: "US", Region: "CA"}, wantTax: 725},
		{name: "lowercase codes", subtotal: 10000, dest: Destination{Country: "us", Region: "ca"}, wantTax: 725},
		{name: "round half up", subtotal: 1000, dest: Destination{Country: "US", Region: "TX"}, wantTax: 63},
		{name: "region fallback to country rule", subtotal: 2000, dest: Destination{Country: "CA", Region: "QC"}, wantTax: 100},
		{name: "region specific before country rule", subtotal: 2000, dest: Destination{Country: "CA", Region: "ON"}, wantTax: 260},
		{name: "unknown region untaxed", subtotal: 10000, dest: Destination{Country: "US", Region: "OR"}, wantTax: 0},
		{name: "unknown country untaxed", subtotal: 10000, dest: Destination{Country: "JP"}, wantTax: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := calc.Calculate(tt.subtotal, nil, tt.dest)
			assert.Equal(t, tt.wantTax, q.TaxCents)
		})
	}
}

func TestCalculateShipping(t *testing.T) {
	calc := DefaultCalculator()
	lines := []Line{{ProductID: "p1", UnitPriceCents: 1200, Quantity: 2}, {ProductID: "p2", UnitPriceCents: 500, Quantity: 1}}

	q := calc.Calculate(2900, lines, Destination{Country: "US", Region: "OR"})
	assert.Equal(t, int64(599+3*100), q.ShippingCents)

	q = calc.Calculate(2900, lines, Destination{Country: "DE"})
	assert.Equal(t, int64(1999+3*300), q.ShippingCents)
}

func TestFreeShippingRecordsNegativeAdjustment(t *testing.T) {
	calc := DefaultCalculator()
	lines := []Line{{ProductID: "p1", UnitPriceCents: 10000, Quantity: 1}}

	q := calc.Calculate(10000, lines, Destination{Country: "US", Region: "CA"})

	assert.Equal(t, int64(725), q.TaxCents)
	assert.Equal(t, int64(0), q.ShippingCents)
	assert.Equal(t, []Adjustment{
		{Kind: AdjustmentTax, Label: "California sales tax", AmountCents: 725, Rate: "0.0725"},
		{Kind: AdjustmentShipping, Label: "US standard", AmountCents: 699},
		{Kind: AdjustmentFreeShipping, Label: "Free shipping", AmountCents: -699},
	}, q.Breakdown)
}

func TestFreeShippingThresholdBoundary(t *testing.T) {
	calc := DefaultCalculator()
	lines := []Line{{ProductID: "p1", UnitPriceCents: 7499, Quantity: 1}}

	assert.NotZero(t, calc.Calculate(7499, lines, Destination{Country: "US"}).ShippingCents)
	assert.Zero(t, calc.Calculate(FreeShippingThresholdCents, lines, Destination{Country: "US"}).ShippingCents)
}

func TestCalculateIsDeterministic(t *testing.T) {
	calc := NewCalculator(
		[]TaxRule{{Name: "flat", Country: "US", Rate: decimal.RequireFromString("0.0825")}},
		[]ShippingRule{{Name: "flat", Country: "*", BaseCents: 500}},
		0,
	)
	lines := []Line{{ProductID: "p1", UnitPriceCents: 1234, Quantity: 3}}

	first := calc.Calculate(3702, lines, Destination{Country: "US"})
	second := calc.Calculate(3702, lines, Destination{Country: "US"})
	assert.Equal(t, first, second)
	assert.Equal(t, int64(305), first.TaxCents)
	assert.Equal(t, int64(500), first.ShippingCents)
}

func TestSubtotal(t *testing.T) {
	assert.Equal(t, int64(2900), Subtotal([]Line{{UnitPriceCents: 1200, Quantity: 2}, {UnitPriceCents: 500, Quantity: 1}}))
}
