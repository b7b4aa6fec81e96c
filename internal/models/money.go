package models

import "github.com/shopspring/decimal"

// Amounts are persisted as integer cents.

func ToCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
