package analytics

import (
	"context"

	"github.com/warp/poultry-reports/generic"
)

// =============================================================================
// FORECAST - Ordinary least squares over the history index
// =============================================================================

// MaxForecastHorizon bounds how many days a forecast may project.
const MaxForecastHorizon = 366

// Forecast fits y = m*x + c to the points (i, history[i]) and projects it for
// x = n .. n+horizon-1. It is a straight-line trend with no seasonality: an
// approximation for short horizons, not a prediction guarantee.
//
// Fewer than two points, or a horizon outside 1..MaxForecastHorizon, give an
// empty forecast. A zero denominator repeats the mean. Projections are clamped at zero since production cannot be
// negative.
func Forecast(history []float64, horizon int) []float64 {
	n := len(history)
	if n < 2 || horizon <= 0 || horizon > MaxForecastHorizon {
		return []float64{}
	}

	slope, intercept, ok := leastSquares(history)
	out := make([]float64, horizon)
	if !ok {
		for i := range out {
			out[i] = intercept
		}
		return out
	}
	for i := range out {
		out[i] = max(0, slope*float64(n+i)+intercept)
	}
	return out
}

// leastSquares returns ok=false and the mean as intercept when
// n*sum(xx) - sum(x)^2 is zero.
func leastSquares(values []float64) (slope, intercept float64, ok bool) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, false
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept, true
}

// =============================================================================
// PRODUCTION FORECAST REPORT
// =============================================================================

type ProductionForecast struct {
	FarmID        generic.FarmID
	History       DailySummary
	ForecastDates []generic.TimePoint
	Forecast      []float64
}

// ProductionForecast projects daily egg totals horizon days past the end of
// the history period.
func (e *Engine) ProductionForecast(ctx context.Context, farmID generic.FarmID, history generic.Period, horizon int) (ProductionForecast, error) {
	summary, err := e.DailyProductionSummary(ctx, farmID, history)
	if err != nil {
		return ProductionForecast{}, err
	}

	values := Forecast(summary.Values(), horizon)
	dates := make([]generic.TimePoint, len(values))
	for i := range dates {
		dates[i] = history.End.AddDays(i + 1)
	}
	return ProductionForecast{
		FarmID:        farmID,
		History:       summary,
		ForecastDates: dates,
		Forecast:      values,
	}, nil
}
