/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Report caching through the HTTP surface (miss, hit, invalidation on write)
- Degraded reports on store failure
- Status codes for rejected writes
- Cache administration, memoized forecast, demo seed, metrics
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/poultry-reports/analytics"
	"github.com/warp/poultry-reports/cache"
	"github.com/warp/poultry-reports/config"
	"github.com/warp/poultry-reports/generic/store"
	"github.com/warp/poultry-reports/report"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	mem    *store.Memory
	router http.Handler
	cache  *report.Cache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	mem := store.NewMemory()

	cs := cache.New(100, time.Hour, cache.WithClock(clock))
	reg := prometheus.NewRegistry()
	require.NoError(t, cs.RegisterMetrics(reg, "reports"))

	rc := report.NewCache(cs, nil)
	report.NewInvalidator(rc, nil).Attach(mem)
	svc := report.NewService(analytics.NewEngine(mem), rc)

	h := NewHandler(mem, svc, config.CurrenciesConfig{Primary: "USD", Secondary: "LBP"}, nil)
	return &testServer{
		mem:    mem,
		router: NewRouter(h, RouterOptions{Gatherer: reg}),
		cache:  rc,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// reportEnvelope decodes ReportResponse with the report left raw.
type reportEnvelope struct {
	Kind     string          `json:"kind"`
	Cached   bool            `json:"cached"`
	Degraded bool            `json:"degraded"`
	Report   json.RawMessage `json:"report"`
}

func decodeReport[T any](t *testing.T, rec *httptest.ResponseRecorder) (reportEnvelope, T) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env reportEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var out T
	require.NoError(t, json.Unmarshal(env.Report, &out))
	return env, out
}

func (s *testServer) seedFarm(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/farms", FarmRequest{ID: "farm-1", Name: "North"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

const dailyPath = "/api/reports/daily_production?farm_id=farm-1&start=2024-03-01&end=2024-03-05"

// =============================================================================
// REPORTS
// =============================================================================

func TestDailyProduction_MissThenHit(t *testing.T) {
	// GIVEN: a farm with eggs on the 2nd
	s := newTestServer(t)
	s.seedFarm(t)
	rec := s.do(t, http.MethodPost, "/api/production", ProductionRequest{FarmID: "farm-1", Date: "2024-03-02", Large: 120, Broken: 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: the summary is requested twice
	first, summary := decodeReport[DailySummaryDTO](t, s.do(t, http.MethodGet, dailyPath, nil))
	second, _ := decodeReport[DailySummaryDTO](t, s.do(t, http.MethodGet, dailyPath, nil))

	// THEN: dense days, second answer from cache
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04", "2024-03-05"}, summary.Dates)
	assert.Equal(t, []int64{0, 123, 0, 0, 0}, summary.Counts)
	assert.Equal(t, int64(123), summary.Total)
}

func TestDailyProduction_WriteInvalidates(t *testing.T) {
	s := newTestServer(t)
	s.seedFarm(t)
	decodeReport[DailySummaryDTO](t, s.do(t, http.MethodGet, dailyPath, nil))

	// WHEN: production is recorded after the report was cached
	s.do(t, http.MethodPost, "/api/production", ProductionRequest{FarmID: "farm-1", Date: "2024-03-04", Small: 50})

	// THEN: the next read recomputes and sees the new eggs
	env, summary := decodeReport[DailySummaryDTO](t, s.do(t, http.MethodGet, dailyPath, nil))
	assert.False(t, env.Cached)
	assert.Equal(t, int64(50), summary.Counts[3])
}

func TestReports_BadParameters(t *testing.T) {
	s := newTestServer(t)

	cases := []string{
		"/api/reports/daily_production?start=2024-03-01&end=2024-03-05",
		"/api/reports/daily_production?farm_id=f&start=2024-03-05&end=2024-03-01",
		"/api/reports/feed_usage?farm_id=f&start=yesterday&end=2024-03-01",
		"/api/reports/monthly_production?farm_id=f&year=2024",
		"/api/reports/monthly_production?farm_id=f&year=2024&month=13",
		"/api/reports/party_statement?party_id=p&from=2024-03-05&to=2024-03-01",
		"/api/reports/flock_performance?start=2024-03-01&end=2024-03-05",
		"/api/reports/production_forecast?farm_id=f&start=2024-03-01&end=2024-03-05&horizon=soon",
		"/api/reports/production_forecast?farm_id=f&start=2024-03-01&end=2024-03-05&horizon=0",
		"/api/reports/production_forecast?farm_id=f&start=2024-03-01&end=2024-03-05&horizon=1125899906842624",
	}
	for _, path := range cases {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestReports_DegradedOnStorageFailure(t *testing.T) {
	// GIVEN: a store whose reads fail
	s := newTestServer(t)
	s.mem.FailReads(errors.New("database is locked"))

	// WHEN: reports are requested
	env, summary := decodeReport[DailySummaryDTO](t, s.do(t, http.MethodGet, dailyPath, nil))

	// THEN: 200 with an empty, well-formed report flagged degraded
	assert.True(t, env.Degraded)
	assert.Equal(t, "farm-1", summary.FarmID)
	assert.Empty(t, summary.Counts)

	env, farms := decodeReport[[]FarmDTO](t, s.do(t, http.MethodGet, "/api/reports/farm_list", nil))
	assert.True(t, env.Degraded)
	assert.Empty(t, farms)

	// AND: nothing was cached, so recovery is immediate
	s.mem.FailReads(nil)
	env, _ = decodeReport[DailySummaryDTO](t, s.do(t, http.MethodGet, dailyPath, nil))
	assert.False(t, env.Degraded)
	assert.False(t, env.Cached)
}

func TestPartyStatement_MoneyByCurrency(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/parties", PartyRequest{ID: "p1", Name: "City Egg Market"})

	for _, e := range []LedgerEntryRequest{
		{PartyID: "p1", Date: "2024-03-05", Description: "payment", Credit: AmountRequest{Primary: "40", Secondary: "3580000"}},
		{PartyID: "p1", Date: "2024-03-01", Description: "eggs", Debit: AmountRequest{Primary: "100", Secondary: "8950000"}},
	} {
		rec := s.do(t, http.MethodPost, "/api/ledger", e)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	_, stmt := decodeReport[StatementDTO](t, s.do(t, http.MethodGet, "/api/reports/party_statement?party_id=p1", nil))
	require.Len(t, stmt.Rows, 2)
	assert.Equal(t, "eggs", stmt.Rows[0].Description, "sorted by date")
	assert.Equal(t, MoneyDTO{"USD": "100", "LBP": "8950000"}, stmt.Rows[0].Balance)
	assert.Equal(t, MoneyDTO{"USD": "60", "LBP": "5370000"}, stmt.Closing)
}

func TestMonthlyProduction_SparseDays(t *testing.T) {
	s := newTestServer(t)
	s.seedFarm(t)
	s.do(t, http.MethodPost, "/api/production", ProductionRequest{FarmID: "farm-1", Date: "2024-02-29", Small: 5, Medium: 10})

	_, m := decodeReport[MonthlyReportDTO](t, s.do(t, http.MethodGet, "/api/reports/monthly_production?farm_id=farm-1&year=2024&month=2", nil))
	require.Len(t, m.Days, 1)
	assert.Equal(t, int64(15), m.Days["29"].TotalEggs)
	assert.Equal(t, int64(15), m.Totals.UsableEggs)
}

// =============================================================================
// WRITES
// =============================================================================

func TestWrites_StatusCodes(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"farm without name", http.MethodPost, "/api/farms", FarmRequest{}, http.StatusBadRequest},
		{"shed on unknown farm", http.MethodPost, "/api/sheds", ShedRequest{FarmID: "nope", Name: "A"}, http.StatusNotFound},
		{"delete unknown farm", http.MethodDelete, "/api/farms/nope", nil, http.StatusNotFound},
		{"bad production date", http.MethodPost, "/api/production", ProductionRequest{FarmID: "f", Date: "03/01/2024"}, http.StatusBadRequest},
		{"negative eggs", http.MethodPost, "/api/production", ProductionRequest{FarmID: "f", Date: "2024-03-01", Small: -1}, http.StatusBadRequest},
		{"bad decimal", http.MethodPost, "/api/feed/purchases", FeedPurchaseRequest{FarmID: "f", Date: "2024-03-01", UnitCost: "cheap"}, http.StatusBadRequest},
		{"mortality without flock", http.MethodPost, "/api/mortality", MortalityRequest{Date: "2024-03-01", Count: 1}, http.StatusBadRequest},
		{"ledger for unknown party", http.MethodPost, "/api/ledger", LedgerEntryRequest{PartyID: "nobody", Date: "2024-03-01"}, http.StatusNotFound},
		{"mortality without date", http.MethodPost, "/api/mortality", MortalityRequest{FlockID: "fl", Count: 1}, http.StatusBadRequest},
		{"party without name", http.MethodPost, "/api/parties", PartyRequest{}, http.StatusBadRequest},
		{"flock", http.MethodPost, "/api/flocks", FlockRequest{FarmID: "f", InitialCount: 100, PlacedOn: "2024-01-01"}, http.StatusCreated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	rec := s.do(t, http.MethodPost, "/api/farms", strings.Repeat("x", 3))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-object body")
}

func TestFarmList_RenameInvalidates(t *testing.T) {
	s := newTestServer(t)
	s.seedFarm(t)

	_, farms := decodeReport[[]FarmDTO](t, s.do(t, http.MethodGet, "/api/reports/farm_list", nil))
	require.Len(t, farms, 1)

	rec := s.do(t, http.MethodPut, "/api/farms/farm-1", FarmRequest{Name: "North Ridge"})
	require.Equal(t, http.StatusOK, rec.Code)

	env, farms := decodeReport[[]FarmDTO](t, s.do(t, http.MethodGet, "/api/reports/farm_list", nil))
	assert.False(t, env.Cached)
	assert.Equal(t, "North Ridge", farms[0].Name)

	rec = s.do(t, http.MethodDelete, "/api/farms/farm-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, farms = decodeReport[[]FarmDTO](t, s.do(t, http.MethodGet, "/api/reports/farm_list", nil))
	assert.Empty(t, farms)
}

// =============================================================================
// CACHE ADMIN
// =============================================================================

func TestInvalidateEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedFarm(t)
	decodeReport[DailySummaryDTO](t, s.do(t, http.MethodGet, dailyPath, nil))
	decodeReport[[]FarmDTO](t, s.do(t, http.MethodGet, "/api/reports/farm_list", nil))

	// WHEN: only daily_production is invalidated
	rec := s.do(t, http.MethodPost, "/api/cache/invalidate", InvalidateRequest{Kind: "daily_production"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp InvalidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Removed)

	// THEN: the farm list is still cached
	env, _ := decodeReport[[]FarmDTO](t, s.do(t, http.MethodGet, "/api/reports/farm_list", nil))
	assert.True(t, env.Cached)

	rec = s.do(t, http.MethodPost, "/api/cache/invalidate", InvalidateRequest{Kind: "weekly_gossip"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.cache.Stats().Size)
}

func TestCacheStats(t *testing.T) {
	s := newTestServer(t)
	s.seedFarm(t)
	s.do(t, http.MethodGet, dailyPath, nil)
	s.do(t, http.MethodGet, dailyPath, nil)

	rec := s.do(t, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Size     int     `json:"size"`
		Hits     int64   `json:"hits"`
		HitRatio float64 `json:"hit_ratio"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Greater(t, stats.HitRatio, 0.0)
}

func TestForecastEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/forecast", ForecastRequest{History: []float64{10, 12, 14}, Horizon: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ForecastResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Forecast, 2)
	assert.InDelta(t, 16.0, resp.Forecast[0], 1e-9)
	assert.InDelta(t, 18.0, resp.Forecast[1], 1e-9)

	rec = s.do(t, http.MethodPost, "/api/forecast", ForecastRequest{History: []float64{10}, Horizon: 2})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Forecast)
}

func TestForecastEndpoint_HorizonBounds(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: horizons outside 1..MaxForecastHorizon
	for _, horizon := range []int{-1, analytics.MaxForecastHorizon + 1, 1 << 50} {
		// WHEN: a forecast is requested
		rec := s.do(t, http.MethodPost, "/api/forecast", ForecastRequest{History: []float64{1, 2}, Horizon: horizon})

		// THEN: rejected up front
		assert.Equal(t, http.StatusBadRequest, rec.Code, horizon)
	}

	// AND: an omitted horizon uses the default
	rec := s.do(t, http.MethodPost, "/api/forecast", ForecastRequest{History: []float64{1, 2}})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ForecastResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Forecast, DefaultForecastHorizon)
}

func TestMetricsAndHealth(t *testing.T) {
	s := newTestServer(t)
	s.seedFarm(t)
	s.do(t, http.MethodGet, dailyPath, nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "poultry_cache_misses_total")

	rec = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// DEMO SEED
// =============================================================================

func TestSeedDemo(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/demo/seed", SeedRequest{ScenarioID: "mixed-feed", Start: "2024-03-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, usage := decodeReport[FeedUsageDTO](t, s.do(t, http.MethodGet,
		"/api/reports/feed_usage?farm_id=farm-north&start=2024-03-01&end=2024-03-28", nil))
	require.Len(t, usage.Sheds, 2)
	assert.Equal(t, "Layer Mash", usage.Sheds[0].FeedType)
	assert.Equal(t, "Layer Mash (Mixed)", usage.Sheds[1].FeedType)

	_, perf := decodeReport[FlockPerformanceDTO](t, s.do(t, http.MethodGet,
		"/api/reports/flock_performance?flock_id=farm-north-flock-1&start=2024-03-01&end=2024-03-28", nil))
	assert.True(t, perf.Found)
	assert.Greater(t, perf.HDP, 0.0)
	assert.Greater(t, perf.Deaths, int64(0))

	_, fc := decodeReport[ForecastDTO](t, s.do(t, http.MethodGet,
		"/api/reports/production_forecast?farm_id=farm-north&start=2024-03-01&end=2024-03-28&horizon=3", nil))
	assert.Equal(t, []string{"2024-03-29", "2024-03-30", "2024-03-31"}, fc.ForecastDates)

	rec = s.do(t, http.MethodGet, "/api/demo/current", nil)
	assert.Contains(t, rec.Body.String(), "mixed-feed")

	rec = s.do(t, http.MethodPost, "/api/demo/seed", SeedRequest{ScenarioID: "unknown"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeedDemo_ConcurrentSeedsStayConsistent(t *testing.T) {
	// GIVEN: demo seeds racing with current-scenario reads
	s := newTestServer(t)
	ids := []string{"layer-farm", "two-farms", "mixed-feed", "two-farms"}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			rec := s.do(t, http.MethodPost, "/api/demo/seed", SeedRequest{ScenarioID: id, Start: "2024-03-01"})
			assert.Equal(t, http.StatusOK, rec.Code)
		}(id)
		go func() {
			defer wg.Done()
			assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/demo/current", nil).Code)
		}()
	}
	wg.Wait()

	// THEN: the stored farms belong to the scenario reported as current
	var current ScenarioDTO
	require.NoError(t, json.Unmarshal(s.do(t, http.MethodGet, "/api/demo/current", nil).Body.Bytes(), &current))
	require.Contains(t, ids, current.ID)

	farms, err := s.mem.ListFarms(context.Background())
	require.NoError(t, err)
	want := 1
	if current.ID == "two-farms" {
		want = 2
	}
	assert.Len(t, farms, want)
}

func TestResetStoreClearsReports(t *testing.T) {
	s := newTestServer(t)
	s.seedFarm(t)
	decodeReport[[]FarmDTO](t, s.do(t, http.MethodGet, "/api/reports/farm_list", nil))

	rec := s.do(t, http.MethodPost, "/api/demo/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env, farms := decodeReport[[]FarmDTO](t, s.do(t, http.MethodGet, "/api/reports/farm_list", nil))
	assert.False(t, env.Cached)
	assert.Empty(t, farms)

	stored, err := s.mem.ListFarms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}
