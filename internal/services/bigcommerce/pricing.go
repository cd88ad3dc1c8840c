package bigcommerce

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const volumetricDivisor = 4000

var hundred = decimal.NewFromInt(100)

// DiscountPercent renders round(100 - 100*sale/price) as "N%". Anything
// outside [0,100), or a missing price or sale price, is "0%".
func DiscountPercent(price, sale decimal.Decimal) string {
	if !price.IsPositive() || !sale.IsPositive() {
		return "0%"
	}
	pct := hundred.Sub(hundred.Mul(sale).Div(price)).Round(0)
	if pct.IsNegative() || pct.GreaterThanOrEqual(hundred) {
		return "0%"
	}
	return fmt.Sprintf("%s%%", pct.String())
}

// CashPrice applies the transfer discount to the sale price when present,
// otherwise to the list price, and rounds to whole units.
func CashPrice(price, sale decimal.Decimal, transferPercent float64) decimal.Decimal {
	base := price
	if sale.IsPositive() {
		base = sale
	}
	if !base.IsPositive() {
		return decimal.Zero
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(transferPercent).Div(hundred))
	return base.Mul(factor).Round(0)
}

// VolumetricWeight is width*depth*height/4000.
func VolumetricWeight(width, depth, height float64) float64 {
	if width <= 0 || depth <= 0 || height <= 0 {
		return 0
	}
	return width * depth * height / volumetricDivisor
}

// ShippingWeight is the larger of declared and volumetric weight, unless the
// channel's country ships by declared weight only.
func ShippingWeight(declared, volumetric float64, skipVolumetric bool) float64 {
	if skipVolumetric || volumetric <= declared {
		return declared
	}
	return volumetric
}
