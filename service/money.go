package service

import (
	"github.com/shopspring/decimal"
)

var (
	centsTolerance = decimal.NewFromFloat(0.01)
	penaltyRate    = decimal.NewFromFloat(0.5)
	hundred        = decimal.NewFromInt(100)
)

func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// SplitEqual divides total into n shares rounded to the paisa.
// Remainder paise go to the first shares so the parts always add up to total.
func SplitEqual(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	cents := total.Mul(hundred).Round(0).IntPart()
	base := cents / int64(n)
	rem := cents % int64(n)

	out := make([]decimal.Decimal, n)
	for i := range out {
		c := base
		if int64(i) < rem {
			c++
		}
		out[i] = decimal.New(c, -2)
	}
	return out
}

// withinTolerance reports |a-b| <= 0.01.
func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(centsTolerance)
}

// cancellationPenalty is a flat half of the order total rounded to the rupee.
func cancellationPenalty(total decimal.Decimal) decimal.Decimal {
	return total.Mul(penaltyRate).Round(0)
}
