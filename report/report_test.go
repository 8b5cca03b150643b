package report_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/poultry-reports/analytics"
	"github.com/warp/poultry-reports/cache"
	"github.com/warp/poultry-reports/generic"
	"github.com/warp/poultry-reports/generic/store"
	"github.com/warp/poultry-reports/report"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const farm = generic.FarmID("farm-1")

type fixture struct {
	mem     *store.Memory
	cache   *report.Cache
	service *report.Service
	clock   clockwork.FakeClock
}

func newFixture(t *testing.T, opts ...report.ServiceOption) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	mem := store.NewMemory()
	rc := report.NewCache(cache.New(100, time.Hour, cache.WithClock(clock)), nil)
	report.NewInvalidator(rc, nil).Attach(mem)

	_, err := mem.SaveFarm(context.Background(), generic.Farm{ID: farm, Name: "North"})
	require.NoError(t, err)

	return &fixture{
		mem:     mem,
		cache:   rc,
		service: report.NewService(analytics.NewEngine(mem), rc, opts...),
		clock:   clock,
	}
}

func jan(d int) generic.TimePoint { return generic.NewTimePoint(2024, time.January, d) }

func janPeriod() generic.Period { return generic.Period{Start: jan(1), End: jan(5)} }

func (f *fixture) addEggs(t *testing.T, date generic.TimePoint, n int64) {
	t.Helper()
	_, err := f.mem.AddProduction(context.Background(), generic.ProductionRecord{FarmID: farm, Date: date, Large: n})
	require.NoError(t, err)
}

// =============================================================================
// REPORT CACHE
// =============================================================================

func TestCache_InvalidateKindMakesReportAbsent(t *testing.T) {
	// GIVEN: A daily_production report cached for params
	// WHEN: The daily_production kind is invalidated
	// THEN: getReport for the same params is absent

	f := newFixture(t)
	params := cache.Params{"farm_id": "farm-1", "start": "2024-01-01"}
	f.cache.SetReport(report.KindDailyProduction, params, "v", 0)
	_, ok := f.cache.GetReport(report.KindDailyProduction, params)
	require.True(t, ok)

	f.cache.Invalidate(report.KindDailyProduction)

	_, ok = f.cache.GetReport(report.KindDailyProduction, params)
	assert.False(t, ok)
}

func TestCache_InvalidateLeavesOtherKinds(t *testing.T) {
	f := newFixture(t)
	params := cache.Params{"farm_id": "farm-1"}
	f.cache.SetReport(report.KindDailyProduction, params, 1, 0)
	f.cache.SetReport(report.KindPartyStatement, params, 2, 0)

	assert.Equal(t, 1, f.cache.Invalidate(report.KindDailyProduction))

	_, ok := f.cache.GetReport(report.KindPartyStatement, params)
	assert.True(t, ok)
}

func TestCache_InvalidateAll(t *testing.T) {
	f := newFixture(t)
	for i, k := range report.AllKinds() {
		f.cache.SetReport(k, cache.Params{"i": i}, i, 0)
	}
	assert.Equal(t, len(report.AllKinds()), f.cache.InvalidateAll())
	assert.Equal(t, 0, f.cache.Stats().Size)
}

func TestCache_SetReportIfCurrentRejectsStaleGeneration(t *testing.T) {
	f := newFixture(t)
	params := cache.Params{"a": 1}
	gen := f.cache.Generation(report.KindFeedUsage)

	f.cache.Invalidate(report.KindFeedUsage)

	assert.False(t, f.cache.SetReportIfCurrent(report.KindFeedUsage, params, "stale", 0, gen))
	_, ok := f.cache.GetReport(report.KindFeedUsage, params)
	assert.False(t, ok)
}

func TestCache_ReportExpiresWithTTL(t *testing.T) {
	f := newFixture(t)
	params := cache.Params{"a": 1}
	f.cache.SetReport(report.KindFarmList, params, "v", time.Minute)

	f.clock.Advance(time.Minute)
	_, ok := f.cache.GetReport(report.KindFarmList, params)
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	k, err := report.ParseKind("feed_usage")
	require.NoError(t, err)
	assert.Equal(t, report.KindFeedUsage, k)

	_, err = report.ParseKind("nope")
	assert.ErrorIs(t, err, report.ErrUnknownKind)
}

// =============================================================================
// INVALIDATOR
// =============================================================================

func TestInvalidator_FarmMutationInvalidatesFarmScopedKinds(t *testing.T) {
	f := newFixture(t)
	params := cache.Params{"farm_id": "farm-1"}
	for _, k := range report.AllKinds() {
		f.cache.SetReport(k, params, k, 0)
	}

	_, err := f.mem.SaveFarm(context.Background(), generic.Farm{ID: farm, Name: "Renamed"})
	require.NoError(t, err)

	_, ok := f.cache.GetReport(report.KindFarmList, params)
	assert.False(t, ok, "farm list dropped")
	for _, k := range report.FarmScopedKinds() {
		_, ok := f.cache.GetReport(k, params)
		assert.False(t, ok, string(k))
	}
	_, ok = f.cache.GetReport(report.KindPartyStatement, params)
	assert.True(t, ok, "party statements do not depend on farms")
}

func TestInvalidator_LedgerPostingInvalidatesStatements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mem.SaveParty(ctx, generic.Party{ID: "p-1", Name: "Market"})
	require.NoError(t, err)
	_, err = f.mem.AddLedgerEntry(ctx, generic.LedgerEntry{PartyID: "p-1", Date: jan(1), Debit: generic.NewMoney(100, 0)})
	require.NoError(t, err)

	first, err := f.service.PartyStatement(ctx, "p-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, first.Report.Rows, 1)

	_, err = f.mem.AddLedgerEntry(ctx, generic.LedgerEntry{PartyID: "p-1", Date: jan(2), Credit: generic.NewMoney(40, 0)})
	require.NoError(t, err)

	second, err := f.service.PartyStatement(ctx, "p-1", nil, nil)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	require.Len(t, second.Report.Rows, 2)
	assert.Equal(t, "60", second.Report.Closing.Primary.String())
}

func TestInvalidator_Affected(t *testing.T) {
	inv := report.NewInvalidator(report.NewCache(cache.New(1, time.Minute), nil), nil)
	assert.Contains(t, inv.Affected(generic.EntityProduction), report.KindDailyProduction)
	assert.Contains(t, inv.Affected(generic.EntityFeedPurchase), report.KindFeedCost)
	assert.Nil(t, inv.Affected(generic.EntityKind("unknown")))
}

func TestInvalidator_UnknownEntityClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.cache.SetReport(report.KindFeedCost, cache.Params{}, 1, 0)
	inv := report.NewInvalidator(f.cache, nil)

	inv.Handle(context.Background(), generic.MutationEvent{Entity: "vaccination"})

	assert.Equal(t, 0, f.cache.Stats().Size)
}

// =============================================================================
// SERVICE
// =============================================================================

func TestService_MissThenHit(t *testing.T) {
	f := newFixture(t)
	f.addEggs(t, jan(2), 10)
	ctx := context.Background()

	first, err := f.service.DailyProduction(ctx, farm, janPeriod())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, []int64{0, 10, 0, 0, 0}, first.Report.Counts)

	second, err := f.service.DailyProduction(ctx, farm, janPeriod())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Report.Counts, second.Report.Counts)
}

func TestService_ProductionWriteRefreshesSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addEggs(t, jan(2), 10)

	_, err := f.service.DailyProduction(ctx, farm, janPeriod())
	require.NoError(t, err)

	f.addEggs(t, jan(4), 7)

	res, err := f.service.DailyProduction(ctx, farm, janPeriod())
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, []int64{0, 10, 0, 7, 0}, res.Report.Counts)
}

func TestService_FailedComputationIsNotCached(t *testing.T) {
	// GIVEN: The store fails reads
	// WHEN: A report is requested, then the store recovers
	// THEN: The failure is returned and the retry computes fresh

	f := newFixture(t)
	ctx := context.Background()
	f.mem.FailReads(errors.New("connection reset"))

	_, err := f.service.FeedUsage(ctx, farm, janPeriod())
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrStorage)
	assert.Equal(t, 0, f.cache.Stats().Size)

	f.mem.FailReads(nil)
	res, err := f.service.FeedUsage(ctx, farm, janPeriod())
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestService_PerKindTTL(t *testing.T) {
	f := newFixture(t, report.WithTTLs(map[report.Kind]time.Duration{report.KindFarmList: time.Minute}))
	ctx := context.Background()

	_, err := f.service.FarmList(ctx)
	require.NoError(t, err)
	res, err := f.service.FarmList(ctx)
	require.NoError(t, err)
	require.True(t, res.Cached)

	f.clock.Advance(time.Minute)
	res, err = f.service.FarmList(ctx)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Report, 1)
	assert.Equal(t, "North", res.Report[0].Name)
}

func TestService_DistinctParamsCachedSeparately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.MonthlyProduction(ctx, farm, 2024, time.January)
	require.NoError(t, err)
	res, err := f.service.MonthlyProduction(ctx, farm, 2024, time.February)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, f.cache.Stats().Size)
}

func TestService_ForecastIsMemoized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.service.Forecast(ctx, []float64{1, 2, 3}, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 5}, out, 1e-9)
	assert.Equal(t, 1, f.cache.Stats().Size)

	again, err := f.service.Forecast(ctx, []float64{1, 2, 3}, 2)
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.EqualValues(t, 1, f.cache.Stats().Hits)
}

// gatedStore holds RangeAggregate calls until release is closed and counts
// how many reached the store.
type gatedStore struct {
	*store.Memory
	calls   atomic.Int32
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func newGatedStore(mem *store.Memory) *gatedStore {
	return &gatedStore{Memory: mem, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) RangeAggregate(ctx context.Context, metric generic.Metric, scope generic.Scope, from, to generic.TimePoint) ([]generic.DatedValue, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Memory.RangeAggregate(ctx, metric, scope, from, to)
}

func newGatedService(t *testing.T, opts ...report.ServiceOption) (*fixture, *gatedStore) {
	t.Helper()
	f := newFixture(t)
	gated := newGatedStore(f.mem)
	f.service = report.NewService(analytics.NewEngine(gated), f.cache, opts...)
	return f, gated
}

func TestService_SingleFlightConcurrentMisses(t *testing.T) {
	// GIVEN: single-flight and a store that holds queries
	f, gated := newGatedService(t, report.WithSingleFlight())
	f.addEggs(t, jan(3), 5)
	ctx := context.Background()

	// WHEN: ten callers miss on the same report at once
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.service.DailyProduction(ctx, farm, janPeriod())
			assert.NoError(t, err)
			assert.Equal(t, []int64{0, 0, 5, 0, 0}, res.Report.Counts)
		}()
	}
	<-gated.entered
	time.Sleep(50 * time.Millisecond)
	close(gated.release)
	wg.Wait()

	// THEN: the store was queried once
	assert.Equal(t, int32(1), gated.calls.Load())
	assert.Equal(t, 1, f.cache.Stats().Size)
}

func TestService_WithoutSingleFlightMissesComputeIndependently(t *testing.T) {
	f, gated := newGatedService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.DailyProduction(ctx, farm, janPeriod())
			assert.NoError(t, err)
		}()
	}
	assert.Eventually(t, func() bool { return gated.calls.Load() == 3 }, time.Second, time.Millisecond)
	close(gated.release)
	wg.Wait()

	assert.Equal(t, 1, f.cache.Stats().Size)
}

func TestService_SingleFlightLeaderCancelDoesNotFailWaiters(t *testing.T) {
	// GIVEN: a shared computation started by a caller that then cancels
	f, gated := newGatedService(t, report.WithSingleFlight())
	f.addEggs(t, jan(2), 4)

	leaderCtx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _ = f.service.DailyProduction(leaderCtx, farm, janPeriod())
	}()
	<-gated.entered

	type outcome struct {
		res report.Result[analytics.DailySummary]
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		res, err := f.service.DailyProduction(context.Background(), farm, janPeriod())
		follower <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	// WHEN: the leader cancels mid-computation
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(gated.release)

	// THEN: the follower still gets the report and it is cached
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, []int64{0, 4, 0, 0, 0}, got.res.Report.Counts)
	assert.Equal(t, int32(1), gated.calls.Load())
	assert.Eventually(t, func() bool { return f.cache.Stats().Size == 1 }, time.Second, time.Millisecond)
}
