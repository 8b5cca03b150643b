package analytics_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/poultry-reports/analytics"
	"github.com/warp/poultry-reports/generic"
	"github.com/warp/poultry-reports/generic/store"
)

// =============================================================================
// FORMULAS
// =============================================================================

func TestFormulas_ZeroGuards(t *testing.T) {
	assert.Zero(t, analytics.FeedConversionRatioPerDozen(120, 0))
	assert.Zero(t, analytics.EggProductionPct(500, 0, 5))
	assert.Zero(t, analytics.EggProductionPct(500, 100, 0))
	assert.Zero(t, analytics.MortalityRate(3, 0))
	assert.True(t, analytics.WeightedAverageCost(nil).IsZero())
	assert.True(t, analytics.WeightedAverageCost([]analytics.Purchase{
		{Quantity: decimal.Zero, UnitCost: decimal.NewFromInt(9)},
	}).IsZero())
}

func TestFormulas_Values(t *testing.T) {
	assert.InDelta(t, 80.0, analytics.EggProductionPct(800, 100, 10), 1e-9)
	assert.InDelta(t, 2.0, analytics.FeedConversionRatioPerDozen(24, 144), 1e-9)
	assert.InDelta(t, 2.5, analytics.MortalityRate(25, 1000), 1e-9)

	avg := analytics.WeightedAverageCost([]analytics.Purchase{
		{Quantity: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(10)},
		{Quantity: decimal.NewFromInt(3), UnitCost: decimal.NewFromInt(2)},
	})
	assert.True(t, avg.Equal(decimal.NewFromInt(4)), avg.String())
}

// =============================================================================
// FORECAST
// =============================================================================

func TestForecast_Degenerate(t *testing.T) {
	assert.Equal(t, []float64{}, analytics.Forecast(nil, 5))
	assert.Equal(t, []float64{}, analytics.Forecast([]float64{}, 5))
	assert.Equal(t, []float64{}, analytics.Forecast([]float64{5}, 5))
	assert.Empty(t, analytics.Forecast([]float64{1, 2}, 0))
}

func TestForecast_HorizonAboveMaximumIsEmpty(t *testing.T) {
	assert.Len(t, analytics.Forecast([]float64{1, 2}, analytics.MaxForecastHorizon), analytics.MaxForecastHorizon)
	assert.Empty(t, analytics.Forecast([]float64{1, 2}, analytics.MaxForecastHorizon+1))
	assert.Empty(t, analytics.Forecast([]float64{1, 2}, 1<<50))
}

func TestForecast_FlatTrend(t *testing.T) {
	out := analytics.Forecast([]float64{3, 3, 3, 3}, 3)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.InDelta(t, 3, v, 1e-9)
	}
}

func TestForecast_LinearTrend(t *testing.T) {
	out := analytics.Forecast([]float64{10, 12, 14, 16}, 2)
	require.Len(t, out, 2)
	assert.InDelta(t, 18, out[0], 1e-9)
	assert.InDelta(t, 20, out[1], 1e-9)
}

func TestForecast_ClampsAtZero(t *testing.T) {
	// GIVEN: A steeply decreasing series
	// WHEN: Forecasting past the point the line crosses zero
	// THEN: Every value is >= 0 and the far values are exactly 0

	out := analytics.Forecast([]float64{30, 20, 10}, 4)
	require.Len(t, out, 4)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.Equal(t, 0.0, out[0], "raw regression gives 0 at x=3")
	assert.Equal(t, 0.0, out[3], "raw regression gives -30 at x=6")
}

func TestProductionForecast_DatesFollowHistory(t *testing.T) {
	engine, mem := newTestEngine(t)
	for d := 1; d <= 4; d++ {
		addProduction(t, mem, day(2024, 1, d), 0, int64(100+10*d), 0, 0)
	}

	fc, err := engine.ProductionForecast(context.Background(), farm, period(t, day(2024, 1, 1), day(2024, 1, 4)), 2)
	require.NoError(t, err)
	require.Len(t, fc.Forecast, 2)
	assert.True(t, fc.ForecastDates[0].Equal(day(2024, 1, 5)))
	assert.True(t, fc.ForecastDates[1].Equal(day(2024, 1, 6)))
	assert.InDelta(t, 150, fc.Forecast[0], 1e-9)
	assert.Len(t, fc.History.Counts, 4)
}

// =============================================================================
// FLOCK RATIOS
// =============================================================================

func seedFlock(t *testing.T, engine *analytics.Engine) generic.FlockID {
	t.Helper()
	mem := engine.Store.(interface {
		SaveFlock(context.Context, generic.Flock) (generic.Flock, error)
		AddMortality(context.Context, generic.MortalityEvent) (generic.MortalityEvent, error)
		AddFeedIssue(context.Context, generic.FeedIssue) (generic.FeedIssue, error)
	})
	ctx := context.Background()

	flock, err := mem.SaveFlock(ctx, generic.Flock{ID: "flock-1", FarmID: farm, ShedID: "shed-1", InitialCount: 100, PlacedOn: day(2023, 12, 1)})
	require.NoError(t, err)
	_, err = mem.AddMortality(ctx, generic.MortalityEvent{FlockID: flock.ID, Date: day(2024, 1, 3), Count: 20})
	require.NoError(t, err)
	_, err = mem.AddFeedIssue(ctx, generic.FeedIssue{FarmID: farm, ShedID: "shed-1", FlockID: flock.ID, Date: day(2024, 1, 2), FeedType: "Layer", QuantityKg: 30})
	require.NoError(t, err)
	return flock.ID
}

func TestAverageLiveBirds_MeanOfDailyCounts(t *testing.T) {
	engine, _ := newTestEngine(t)
	id := seedFlock(t, engine)

	// Jan 1..4 live counts: 100, 100, 80, 80
	avg, err := engine.AverageLiveBirds(context.Background(), id, period(t, day(2024, 1, 1), day(2024, 1, 4)))
	require.NoError(t, err)
	assert.InDelta(t, 90, avg, 1e-9)
}

func TestHDPAndFCRForFlock(t *testing.T) {
	engine, mem := newTestEngine(t)
	id := seedFlock(t, engine)
	for d := 1; d <= 4; d++ {
		addProduction(t, mem, day(2024, 1, d), 0, 45, 0, 0)
	}
	p := period(t, day(2024, 1, 1), day(2024, 1, 4))

	hdp, found, err := engine.HDPForFlock(context.Background(), id, p)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 180, hdp.TotalEggs)
	assert.InDelta(t, 90, hdp.AverageLiveBirds, 1e-9)
	assert.InDelta(t, 50, hdp.HDP, 1e-9)

	fcr, found, err := engine.FCRForFlock(context.Background(), id, p)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 2.0, fcr.FCR, 1e-9)
}

func TestFlockHelpers_UnknownFlockIsZeroNotError(t *testing.T) {
	engine, _ := newTestEngine(t)
	p := period(t, day(2024, 1, 1), day(2024, 1, 4))

	hdp, found, err := engine.HDPForFlock(context.Background(), "ghost", p)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, analytics.HDPResult{}, hdp)

	fcr, found, err := engine.FCRForFlock(context.Background(), "ghost", p)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, analytics.FCRResult{}, fcr)

	perf, err := engine.FlockPerformance(context.Background(), "ghost", p)
	require.NoError(t, err)
	assert.False(t, perf.Found)
}

func TestFlockPerformance_MortalityFromPeriodStart(t *testing.T) {
	engine, _ := newTestEngine(t)
	id := seedFlock(t, engine)

	perf, err := engine.FlockPerformance(context.Background(), id, period(t, day(2024, 1, 2), day(2024, 1, 10)))
	require.NoError(t, err)
	require.True(t, perf.Found)
	assert.EqualValues(t, 100, perf.StartCount)
	assert.EqualValues(t, 20, perf.Deaths)
	assert.InDelta(t, 20, perf.MortalityRate, 1e-9)
}

// countingStore records how often the engine asks for flocks and aggregates.
type countingStore struct {
	*store.Memory
	flockLookups int
	aggregates   map[generic.Metric]int
}

func (c *countingStore) GetFlock(ctx context.Context, id generic.FlockID) (*generic.Flock, error) {
	c.flockLookups++
	return c.Memory.GetFlock(ctx, id)
}

func (c *countingStore) RangeAggregate(ctx context.Context, metric generic.Metric, scope generic.Scope, from, to generic.TimePoint) ([]generic.DatedValue, error) {
	c.aggregates[metric]++
	return c.Memory.RangeAggregate(ctx, metric, scope, from, to)
}

func TestFlockPerformance_QueriesEachInputOnce(t *testing.T) {
	// GIVEN: a flock with production, feed and deaths
	_, mem := newTestEngine(t)
	id := seedFlock(t, analytics.NewEngine(mem))
	addProduction(t, mem, day(2024, 1, 2), 0, 45, 0, 0)
	counting := &countingStore{Memory: mem, aggregates: map[generic.Metric]int{}}
	engine := analytics.NewEngine(counting)

	// WHEN: building the performance report
	perf, err := engine.FlockPerformance(context.Background(), id, period(t, day(2024, 1, 1), day(2024, 1, 4)))
	require.NoError(t, err)

	// THEN: the flock and every metric were fetched once
	assert.EqualValues(t, 45, perf.HDP.TotalEggs)
	assert.EqualValues(t, 45, perf.FCR.TotalEggs)
	assert.Equal(t, 1, counting.flockLookups)
	assert.Equal(t, map[generic.Metric]int{
		generic.MetricTotalEggs: 1,
		generic.MetricFeedKg:    1,
		generic.MetricMortality: 1,
	}, counting.aggregates)
}
