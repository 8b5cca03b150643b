package report

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warp/poultry-reports/analytics"
	"github.com/warp/poultry-reports/cache"
	"github.com/warp/poultry-reports/generic"
)

// =============================================================================
// SERVICE - Cached report entry points
// =============================================================================

// Result is a report plus whether it came from the cache.
type Result[R any] struct {
	Report R
	Cached bool
}

type Service struct {
	Engine *analytics.Engine
	Cache  *Cache

	// TTLs overrides the store default per kind.
	TTLs map[Kind]time.Duration

	logger   *zap.Logger
	flight   *singleflight.Group
	forecast *cache.Memoizer[[]float64]
}

type ServiceOption func(*Service)

func WithTTLs(ttls map[Kind]time.Duration) ServiceOption {
	return func(s *Service) { s.TTLs = ttls }
}

// WithSingleFlight makes concurrent misses for the same report share one
// computation. Off by default: simultaneous misses each compute and the
// last write wins.
func WithSingleFlight() ServiceOption {
	return func(s *Service) { s.flight = &singleflight.Group{} }
}

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// ForecastPrefix namespaces memoized raw forecasts. InvalidateAll clears
// them; no record mutation affects them since they depend only on input.
const ForecastPrefix = "forecast"

func NewService(engine *analytics.Engine, c *Cache, opts ...ServiceOption) *Service {
	s := &Service{
		Engine: engine,
		Cache:  c,
		TTLs:   map[Kind]time.Duration{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("reports")

	s.forecast = cache.NewMemoizer(c.Store(), forecastParams, s.TTLs[KindProductionForecast], ForecastPrefix).
		Named("analytics.Forecast")
	if s.flight != nil {
		s.forecast.WithSingleFlight()
	}
	return s
}

func forecastParams(_ context.Context, p cache.Params) ([]float64, error) {
	history, _ := p["history"].([]float64)
	horizon, _ := p["horizon"].(int)
	return analytics.Forecast(history, horizon), nil
}

// getOrCompute returns the cached report or computes it outside any lock.
// The result is stored only on success and only if the kind was not
// invalidated while computing.
func getOrCompute[R any](ctx context.Context, s *Service, kind Kind, params cache.Params, compute func(context.Context) (R, error)) (Result[R], error) {
	if v, ok := s.Cache.GetReport(kind, params); ok {
		if r, ok := v.(R); ok {
			return Result[R]{Report: r, Cached: true}, nil
		}
	}

	run := func(ctx context.Context) (any, error) {
		gen := s.Cache.Generation(kind)
		start := time.Now()
		r, err := compute(ctx)
		if err != nil {
			s.logger.Warn("report computation failed",
				zap.String("kind", string(kind)), zap.Error(err))
			return r, err
		}
		stored := s.Cache.SetReportIfCurrent(kind, params, r, s.TTLs[kind], gen)
		s.logger.Debug("report computed",
			zap.String("kind", string(kind)),
			zap.Duration("took", time.Since(start)),
			zap.Bool("stored", stored))
		return r, nil
	}

	if s.flight == nil {
		v, err := run(ctx)
		r, _ := v.(R)
		return Result[R]{Report: r}, err
	}
	// The shared computation outlives the caller that started it; waiters
	// with live contexts must not inherit its cancellation.
	v, err, _ := s.flight.Do(s.Cache.Key(kind, params), func() (any, error) {
		return run(context.WithoutCancel(ctx))
	})
	r, _ := v.(R)
	return Result[R]{Report: r}, err
}

func periodParams(farmID generic.FarmID, period generic.Period) cache.Params {
	return cache.Params{"farm_id": farmID, "start": period.Start, "end": period.End}
}

// =============================================================================
// REPORTS
// =============================================================================

func (s *Service) DailyProduction(ctx context.Context, farmID generic.FarmID, period generic.Period) (Result[analytics.DailySummary], error) {
	return getOrCompute(ctx, s, KindDailyProduction, periodParams(farmID, period),
		func(ctx context.Context) (analytics.DailySummary, error) {
			return s.Engine.DailyProductionSummary(ctx, farmID, period)
		})
}

func (s *Service) MonthlyProduction(ctx context.Context, farmID generic.FarmID, year int, month time.Month) (Result[analytics.MonthlyReport], error) {
	params := cache.Params{"farm_id": farmID, "year": year, "month": int(month)}
	return getOrCompute(ctx, s, KindMonthlyProduction, params,
		func(ctx context.Context) (analytics.MonthlyReport, error) {
			return s.Engine.MonthlyProductionReport(ctx, farmID, year, month)
		})
}

func (s *Service) FeedUsage(ctx context.Context, farmID generic.FarmID, period generic.Period) (Result[analytics.FeedUsageReport], error) {
	return getOrCompute(ctx, s, KindFeedUsage, periodParams(farmID, period),
		func(ctx context.Context) (analytics.FeedUsageReport, error) {
			return s.Engine.FeedUsageReport(ctx, farmID, period)
		})
}

func (s *Service) FeedCost(ctx context.Context, farmID generic.FarmID, period generic.Period) (Result[analytics.FeedCostReport], error) {
	return getOrCompute(ctx, s, KindFeedCost, periodParams(farmID, period),
		func(ctx context.Context) (analytics.FeedCostReport, error) {
			return s.Engine.FeedCostReport(ctx, farmID, period)
		})
}

func (s *Service) PartyStatement(ctx context.Context, partyID generic.PartyID, from, to *generic.TimePoint) (Result[analytics.Statement], error) {
	params := cache.Params{"party_id": partyID, "from": from, "to": to}
	return getOrCompute(ctx, s, KindPartyStatement, params,
		func(ctx context.Context) (analytics.Statement, error) {
			return s.Engine.PartyStatement(ctx, partyID, from, to)
		})
}

func (s *Service) ProductionForecast(ctx context.Context, farmID generic.FarmID, history generic.Period, horizon int) (Result[analytics.ProductionForecast], error) {
	params := periodParams(farmID, history)
	params["horizon"] = horizon
	return getOrCompute(ctx, s, KindProductionForecast, params,
		func(ctx context.Context) (analytics.ProductionForecast, error) {
			return s.Engine.ProductionForecast(ctx, farmID, history, horizon)
		})
}

func (s *Service) FlockPerformance(ctx context.Context, flockID generic.FlockID, period generic.Period) (Result[analytics.FlockPerformance], error) {
	params := cache.Params{"flock_id": flockID, "start": period.Start, "end": period.End}
	return getOrCompute(ctx, s, KindFlockPerformance, params,
		func(ctx context.Context) (analytics.FlockPerformance, error) {
			return s.Engine.FlockPerformance(ctx, flockID, period)
		})
}

func (s *Service) FarmList(ctx context.Context) (Result[[]generic.Farm], error) {
	return getOrCompute(ctx, s, KindFarmList, cache.Params{},
		func(ctx context.Context) ([]generic.Farm, error) {
			farms, err := s.Engine.Store.ListFarms(ctx)
			return farms, generic.WrapStorage("list farms", err)
		})
}

// Forecast runs the raw forecaster on a caller-supplied series, memoized by
// series and horizon.
func (s *Service) Forecast(ctx context.Context, history []float64, horizon int) ([]float64, error) {
	return s.forecast.Call(ctx, cache.Params{"history": history, "horizon": horizon})
}
