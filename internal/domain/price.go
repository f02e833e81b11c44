package domain

import "github.com/shopspring/decimal"

// round2 rounds to two decimal places, half up on the scaled integer.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// applyReduction returns price reduced by rate, rounded to two decimals.
func applyReduction(price, rate float64) float64 {
	p := decimal.NewFromFloat(price)
	r := decimal.NewFromFloat(1).Sub(decimal.NewFromFloat(rate))
	f, _ := p.Mul(r).Round(2).Float64()
	return f
}

// mulQty multiplies a unit price by a quantity, rounded to two decimals.
func mulQty(price float64, qty int) float64 {
	f, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))).Round(2).Float64()
	return f
}
