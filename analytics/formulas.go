package analytics

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DOMAIN FORMULAS - Pure, zero-guarded
// =============================================================================
//
// Every formula returns 0 instead of dividing by zero. None of them error.

// EggProductionPct is hen-day production: totalEggs / (liveBirds * days) * 100.
func EggProductionPct(totalEggs, liveBirds float64, days int) float64 {
	if liveBirds == 0 || days == 0 {
		return 0
	}
	return totalEggs / (liveBirds * float64(days)) * 100
}

// FeedConversionRatioPerDozen is kilograms of feed per dozen eggs.
func FeedConversionRatioPerDozen(feedKg, totalEggs float64) float64 {
	if totalEggs == 0 {
		return 0
	}
	return feedKg / (totalEggs / 12)
}

// MortalityRate is deaths as a percentage of the starting population.
func MortalityRate(deaths, startCount float64) float64 {
	if startCount == 0 {
		return 0
	}
	return deaths / startCount * 100
}

// Purchase is a quantity bought at a unit cost.
type Purchase struct {
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// WeightedAverageCost is sum(qty*cost) / sum(qty), 0 when no quantity.
func WeightedAverageCost(purchases []Purchase) decimal.Decimal {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, p := range purchases {
		totalQty = totalQty.Add(p.Quantity)
		totalCost = totalCost.Add(p.Quantity.Mul(p.UnitCost))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalCost.Div(totalQty)
}
