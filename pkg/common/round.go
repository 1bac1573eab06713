package common

import "github.com/shopspring/decimal"

// Round rounds v half away from zero to the given number of decimal places
// using decimal arithmetic, so values like 2.675 round the way a person
// reading the number would expect.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Mul multiplies a and b in decimal and rounds the product to places.
func Mul(a, b float64, places int32) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(places).InexactFloat64()
}
