package repository

import "github.com/shopspring/decimal"

// Money is stored as bigint cents. Decimal arithmetic happens in the service
// layer; the repositories convert at the storage boundary.

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
