package repository

import "github.com/shopspring/decimal"

// mustFloat and decimalFromFloat convert between decimal.Decimal and the
// REAL-typed storage columns from §6's schema. The canonical in-memory type
// stays decimal.Decimal everywhere outside of this storage boundary.
func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
