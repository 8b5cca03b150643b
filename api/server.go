/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logger:     Structured request log (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a dashboard frontend

ROUTE GROUPS:
  /api/reports/*        Cached reports
  /api/farms, ...       Record writes
  /api/cache/*          Cache stats and invalidation
  /api/demo/*           Demo datasets (dev only)
  /metrics              Prometheus metrics
  /health               Liveness and database check

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/warp/poultry-reports/report"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string

	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.ListReportKinds)
			r.Get("/"+string(report.KindDailyProduction), h.GetDailyProduction)
			r.Get("/"+string(report.KindMonthlyProduction), h.GetMonthlyProduction)
			r.Get("/"+string(report.KindFeedUsage), h.GetFeedUsage)
			r.Get("/"+string(report.KindFeedCost), h.GetFeedCost)
			r.Get("/"+string(report.KindPartyStatement), h.GetPartyStatement)
			r.Get("/"+string(report.KindProductionForecast), h.GetProductionForecast)
			r.Get("/"+string(report.KindFlockPerformance), h.GetFlockPerformance)
			r.Get("/"+string(report.KindFarmList), h.ListFarms)
		})

		// Record routes
		r.Route("/farms", func(r chi.Router) {
			r.Post("/", h.CreateFarm)
			r.Put("/{id}", h.UpdateFarm)
			r.Delete("/{id}", h.DeleteFarm)
		})
		r.Post("/sheds", h.CreateShed)
		r.Post("/flocks", h.CreateFlock)
		r.Post("/parties", h.CreateParty)
		r.Post("/production", h.AddProduction)
		r.Post("/feed/issues", h.AddFeedIssue)
		r.Post("/feed/purchases", h.AddFeedPurchase)
		r.Post("/ledger", h.AddLedgerEntry)
		r.Post("/mortality", h.AddMortality)

		// Cache routes
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", h.GetCacheStats)
			r.Post("/invalidate", h.InvalidateCache)
			r.Delete("/", h.ClearCache)
		})
		r.Post("/forecast", h.RunForecast)

		// Demo routes
		r.Route("/demo", func(r chi.Router) {
			r.Get("/scenarios", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/seed", h.SeedDemo)
			r.Post("/reset", h.ResetStore)
		})
	})

	return r
}

// RequestLogger logs one line per request. Successful health checks are
// not logged.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if r.URL.Path == "/health" && status == http.StatusOK {
				return
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= http.StatusInternalServerError {
				logger.Error("HTTP request", fields...)
				return
			}
			logger.Info("HTTP request", fields...)
		})
	}
}
