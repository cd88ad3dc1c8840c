package bigcommerce

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestDiscountPercent(t *testing.T) {
	cases := []struct {
		price, sale float64
		want        string
	}{
		{100, 80, "20%"},
		{100, 66.6, "33%"},
		{100, 100, "0%"},
		{100, 120, "0%"},
		{100, 0, "0%"},
		{0, 80, "0%"},
		{1000, 0.01, "0%"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DiscountPercent(d(tc.price), d(tc.sale)), "price=%v sale=%v", tc.price, tc.sale)
	}
}

func TestCashPrice(t *testing.T) {
	assert.True(t, d(78).Equal(CashPrice(d(100), d(80), 2)), "prefers the sale price")
	assert.True(t, d(98).Equal(CashPrice(d(100), d(0), 2)), "falls back to the list price")
	assert.True(t, d(100).Equal(CashPrice(d(100), d(0), 0)))
	assert.True(t, decimal.Zero.Equal(CashPrice(d(0), d(0), 5)))
}

func TestVolumetricAndShippingWeight(t *testing.T) {
	assert.Equal(t, 2.0, VolumetricWeight(20, 20, 20))
	assert.Equal(t, 0.0, VolumetricWeight(20, 0, 20))

	assert.Equal(t, 2.0, ShippingWeight(1.5, 2.0, false))
	assert.Equal(t, 1.5, ShippingWeight(1.5, 2.0, true))
	assert.Equal(t, 3.0, ShippingWeight(3.0, 2.0, false))
}
