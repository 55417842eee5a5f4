package gateway

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts rupees to paise.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(hundred)
}
