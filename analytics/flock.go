package analytics

import (
	"context"
	"errors"

	"github.com/warp/poultry-reports/generic"
)

// =============================================================================
// FLOCK RATIOS - Formulas composed with point-in-time population
// =============================================================================

// AverageLiveBirds is the arithmetic mean of the live-bird count of every
// day in the period. It asks the store once per day; callers that need it
// over long ranges should batch externally.
func (e *Engine) AverageLiveBirds(ctx context.Context, flockID generic.FlockID, period generic.Period) (float64, error) {
	days := period.Days()
	if len(days) == 0 {
		return 0, nil
	}
	var sum int64
	for _, d := range days {
		n, err := e.Store.LiveBirdCount(ctx, flockID, d)
		if err != nil {
			if errors.Is(err, generic.ErrFlockNotFound) {
				return 0, err
			}
			return 0, generic.WrapStorage("live bird count", err)
		}
		sum += n
	}
	return float64(sum) / float64(len(days)), nil
}

// HDPResult is hen-day production with the figures it was derived from.
type HDPResult struct {
	HDP              float64
	TotalEggs        int64
	AverageLiveBirds float64
}

// FCRResult is the feed conversion ratio with its inputs.
type FCRResult struct {
	FCR       float64
	FeedKg    float64
	TotalEggs int64
}

// HDPForFlock returns found=false and a zero result for an unknown flock.
func (e *Engine) HDPForFlock(ctx context.Context, flockID generic.FlockID, period generic.Period) (HDPResult, bool, error) {
	if err := period.Validate(); err != nil {
		return HDPResult{}, false, err
	}
	if _, found, err := e.flock(ctx, flockID); !found || err != nil {
		return HDPResult{}, false, err
	}

	eggs, err := e.sumMetric(ctx, generic.MetricTotalEggs, flockID, period)
	if err != nil {
		return HDPResult{}, true, err
	}
	hdp, err := e.hdp(ctx, flockID, period, eggs)
	return hdp, true, err
}

// FCRForFlock returns found=false and a zero result for an unknown flock.
func (e *Engine) FCRForFlock(ctx context.Context, flockID generic.FlockID, period generic.Period) (FCRResult, bool, error) {
	if err := period.Validate(); err != nil {
		return FCRResult{}, false, err
	}
	if _, found, err := e.flock(ctx, flockID); !found || err != nil {
		return FCRResult{}, false, err
	}

	eggs, err := e.sumMetric(ctx, generic.MetricTotalEggs, flockID, period)
	if err != nil {
		return FCRResult{}, true, err
	}
	fcr, err := e.fcr(ctx, flockID, period, eggs)
	return fcr, true, err
}

// hdp and fcr take the egg total already summed for the flock and period.
func (e *Engine) hdp(ctx context.Context, flockID generic.FlockID, period generic.Period, eggs float64) (HDPResult, error) {
	avg, err := e.AverageLiveBirds(ctx, flockID, period)
	if err != nil {
		return HDPResult{}, err
	}
	return HDPResult{
		HDP:              EggProductionPct(eggs, avg, period.Len()),
		TotalEggs:        int64(eggs),
		AverageLiveBirds: avg,
	}, nil
}

func (e *Engine) fcr(ctx context.Context, flockID generic.FlockID, period generic.Period, eggs float64) (FCRResult, error) {
	feed, err := e.sumMetric(ctx, generic.MetricFeedKg, flockID, period)
	if err != nil {
		return FCRResult{}, err
	}
	return FCRResult{
		FCR:       FeedConversionRatioPerDozen(feed, eggs),
		FeedKg:    feed,
		TotalEggs: int64(eggs),
	}, nil
}

// =============================================================================
// FLOCK PERFORMANCE REPORT
// =============================================================================

type FlockPerformance struct {
	Flock         generic.Flock
	Period        generic.Period
	Found         bool
	HDP           HDPResult
	FCR           FCRResult
	StartCount    int64
	Deaths        int64
	MortalityRate float64
}

// FlockPerformance combines HDP, FCR and mortality over a period. An
// unknown flock yields Found=false and zero figures, not an error.
func (e *Engine) FlockPerformance(ctx context.Context, flockID generic.FlockID, period generic.Period) (FlockPerformance, error) {
	if err := period.Validate(); err != nil {
		return FlockPerformance{}, err
	}
	flock, found, err := e.flock(ctx, flockID)
	if err != nil || !found {
		return FlockPerformance{Period: period}, err
	}
	perf := FlockPerformance{Flock: *flock, Period: period, Found: true}

	eggs, err := e.sumMetric(ctx, generic.MetricTotalEggs, flockID, period)
	if err != nil {
		return FlockPerformance{}, err
	}
	if perf.HDP, err = e.hdp(ctx, flockID, period, eggs); err != nil {
		return FlockPerformance{}, err
	}
	if perf.FCR, err = e.fcr(ctx, flockID, period, eggs); err != nil {
		return FlockPerformance{}, err
	}

	deaths, err := e.sumMetric(ctx, generic.MetricMortality, flockID, period)
	if err != nil {
		return FlockPerformance{}, err
	}
	perf.Deaths = int64(deaths)

	// Population at the start of the period: before any death on Start.
	if !period.Start.After(flock.PlacedOn) {
		perf.StartCount = flock.InitialCount
	} else {
		n, err := e.Store.LiveBirdCount(ctx, flockID, period.Start.AddDays(-1))
		if err != nil {
			return FlockPerformance{}, generic.WrapStorage("live bird count", err)
		}
		perf.StartCount = n
	}
	perf.MortalityRate = MortalityRate(deaths, float64(perf.StartCount))
	return perf, nil
}

// flock resolves a flock, mapping not-found to found=false.
func (e *Engine) flock(ctx context.Context, flockID generic.FlockID) (*generic.Flock, bool, error) {
	flock, err := e.Store.GetFlock(ctx, flockID)
	if errors.Is(err, generic.ErrFlockNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, generic.WrapStorage("get flock", err)
	}
	return flock, true, nil
}

func (e *Engine) sumMetric(ctx context.Context, metric generic.Metric, flockID generic.FlockID, period generic.Period) (float64, error) {
	rows, err := e.Store.RangeAggregate(ctx, metric, generic.Scope{FlockID: flockID}, period.Start, period.End)
	if err != nil {
		return 0, generic.WrapStorage("range aggregate", err)
	}
	var sum float64
	for _, r := range rows {
		sum += r.Value
	}
	return sum, nil
}
