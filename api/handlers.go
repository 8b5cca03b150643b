/*
handlers.go - HTTP API handlers for the farm reporting engine

PURPOSE:
  Exposes cached reports, record writes and cache administration over REST.
  Handles HTTP request/response, JSON serialization, and delegates to the
  report service and the store.

ENDPOINTS:
  Reports (all GET, cached):
    /api/reports                          Report kinds and their TTLs
    /api/reports/daily_production         ?farm_id&start&end
    /api/reports/monthly_production       ?farm_id&year&month
    /api/reports/feed_usage               ?farm_id&start&end
    /api/reports/feed_cost                ?farm_id&start&end
    /api/reports/party_statement          ?party_id[&from][&to]
    /api/reports/production_forecast      ?farm_id&start&end[&horizon]
    /api/reports/flock_performance        ?flock_id&start&end
    /api/reports/farm_list

  Records (writes publish mutation events that invalidate reports):
    POST   /api/farms, PUT /api/farms/{id}, DELETE /api/farms/{id}
    POST   /api/sheds, /api/flocks, /api/parties
    POST   /api/production, /api/feed/issues, /api/feed/purchases
    POST   /api/ledger, /api/mortality

  Cache:
    GET    /api/cache/stats               Size, hit ratio, evictions
    POST   /api/cache/invalidate          Drop one kind, one entity's kinds, or all
    DELETE /api/cache                     Drop everything
    POST   /api/forecast                  Memoized raw forecast

ERROR HANDLING:
  - 400: Malformed parameters, invalid period, rejected record
  - 404: Unknown farm/flock/party on write
  - 500: Store failure on write
  Report reads never fail on a store failure: they answer 200 with an
  empty report and "degraded": true.

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/poultry-reports/analytics"
	"github.com/warp/poultry-reports/cache"
	"github.com/warp/poultry-reports/config"
	"github.com/warp/poultry-reports/generic"
	"github.com/warp/poultry-reports/report"
)

// DefaultForecastHorizon is used when the request carries no horizon.
// Horizons above analytics.MaxForecastHorizon are rejected.
const DefaultForecastHorizon = 7

func checkHorizon(horizon int) error {
	if horizon < 1 || horizon > analytics.MaxForecastHorizon {
		return fmt.Errorf("horizon must be between 1 and %d, got %d", analytics.MaxForecastHorizon, horizon)
	}
	return nil
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      generic.ReadWriteStore
	Reports    *report.Service
	Currencies config.CurrenciesConfig

	logger *zap.Logger

	// scenarioMu serializes demo seeding and guards currentScenario, the
	// last demo dataset loaded.
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over the store and the report service.
func NewHandler(store generic.ReadWriteStore, reports *report.Service, currencies config.CurrenciesConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:      store,
		Reports:    reports,
		Currencies: currencies,
		logger:     logger.Named("api"),
	}
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// writeReport renders a report result. A storage failure degrades to the
// empty report of the kind; other errors map to their status.
func writeReport[R any](h *Handler, w http.ResponseWriter, kind report.Kind, res report.Result[R], err error, render func(R) any) {
	if err != nil {
		if errors.Is(err, generic.ErrStorage) {
			h.logger.Warn("serving degraded report",
				zap.String("kind", string(kind)), zap.Error(err))
			var empty R
			writeJSON(w, http.StatusOK, ReportResponse{
				Kind:     string(kind),
				Degraded: true,
				Warning:  "data source unavailable",
				Report:   render(empty),
			})
			return
		}
		writeDomainError(w, "Failed to build "+string(kind)+" report", err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Kind:   string(kind),
		Cached: res.Cached,
		Report: render(res.Report),
	})
}

// ListReportKinds returns every report kind with its effective TTL.
func (h *Handler) ListReportKinds(w http.ResponseWriter, r *http.Request) {
	type kindDTO struct {
		Kind string `json:"kind"`
		TTL  string `json:"ttl"`
	}
	kinds := report.AllKinds()
	dtos := make([]kindDTO, len(kinds))
	for i, k := range kinds {
		ttl := "default"
		if d, ok := h.Reports.TTLs[k]; ok && d > 0 {
			ttl = d.String()
		}
		dtos[i] = kindDTO{Kind: string(k), TTL: ttl}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetDailyProduction(w http.ResponseWriter, r *http.Request) {
	farmID, period, err := farmPeriodParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameters", err)
		return
	}
	res, err := h.Reports.DailyProduction(r.Context(), farmID, period)
	writeReport(h, w, report.KindDailyProduction, res, err, func(s analytics.DailySummary) any {
		if s.FarmID == "" {
			s.FarmID, s.Period = farmID, period
		}
		return toDailySummaryDTO(s)
	})
}

func (h *Handler) GetMonthlyProduction(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	farmID := q.Get("farm_id")
	year, yerr := strconv.Atoi(q.Get("year"))
	month, merr := strconv.Atoi(q.Get("month"))
	if farmID == "" || yerr != nil || merr != nil {
		writeError(w, http.StatusBadRequest, "farm_id, year and month are required", nil)
		return
	}
	res, err := h.Reports.MonthlyProduction(r.Context(), generic.FarmID(farmID), year, time.Month(month))
	writeReport(h, w, report.KindMonthlyProduction, res, err, func(m analytics.MonthlyReport) any {
		if m.FarmID == "" {
			m.FarmID, m.Year, m.Month = generic.FarmID(farmID), year, time.Month(month)
		}
		return toMonthlyReportDTO(m)
	})
}

func (h *Handler) GetFeedUsage(w http.ResponseWriter, r *http.Request) {
	farmID, period, err := farmPeriodParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameters", err)
		return
	}
	res, err := h.Reports.FeedUsage(r.Context(), farmID, period)
	writeReport(h, w, report.KindFeedUsage, res, err, func(u analytics.FeedUsageReport) any {
		if u.FarmID == "" {
			u.FarmID, u.Period = farmID, period
		}
		return toFeedUsageDTO(u, h.Currencies)
	})
}

func (h *Handler) GetFeedCost(w http.ResponseWriter, r *http.Request) {
	farmID, period, err := farmPeriodParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameters", err)
		return
	}
	res, err := h.Reports.FeedCost(r.Context(), farmID, period)
	writeReport(h, w, report.KindFeedCost, res, err, func(c analytics.FeedCostReport) any {
		if c.FarmID == "" {
			c.FarmID, c.Period = farmID, period
		}
		return toFeedCostDTO(c)
	})
}

func (h *Handler) GetPartyStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partyID := generic.PartyID(q.Get("party_id"))
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "party_id is required", nil)
		return
	}
	from, err := optionalDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := optionalDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	res, err := h.Reports.PartyStatement(r.Context(), partyID, from, to)
	writeReport(h, w, report.KindPartyStatement, res, err, func(s analytics.Statement) any {
		if s.PartyID == "" {
			s.PartyID, s.From, s.To = partyID, from, to
		}
		return toStatementDTO(s, h.Currencies)
	})
}

func (h *Handler) GetProductionForecast(w http.ResponseWriter, r *http.Request) {
	farmID, period, err := farmPeriodParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameters", err)
		return
	}
	horizon := DefaultForecastHorizon
	if raw := r.URL.Query().Get("horizon"); raw != "" {
		if horizon, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "horizon must be an integer", err)
			return
		}
	}
	if err := checkHorizon(horizon); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid horizon", err)
		return
	}

	res, err := h.Reports.ProductionForecast(r.Context(), farmID, period, horizon)
	writeReport(h, w, report.KindProductionForecast, res, err, func(f analytics.ProductionForecast) any {
		if f.FarmID == "" {
			f.FarmID = farmID
			f.History.FarmID, f.History.Period = farmID, period
		}
		return toForecastDTO(f)
	})
}

func (h *Handler) GetFlockPerformance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	flockID := generic.FlockID(q.Get("flock_id"))
	if flockID == "" {
		writeError(w, http.StatusBadRequest, "flock_id is required", nil)
		return
	}
	period, err := periodParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameters", err)
		return
	}

	res, err := h.Reports.FlockPerformance(r.Context(), flockID, period)
	writeReport(h, w, report.KindFlockPerformance, res, err, func(p analytics.FlockPerformance) any {
		if p.Period.Start.IsZero() {
			p.Period = period
		}
		return toFlockPerformanceDTO(flockID, p)
	})
}

func (h *Handler) ListFarms(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reports.FarmList(r.Context())
	writeReport(h, w, report.KindFarmList, res, err, func(farms []generic.Farm) any {
		return toFarmDTOs(farms)
	})
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

func (h *Handler) CreateFarm(w http.ResponseWriter, r *http.Request) {
	var req FarmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	farm, err := h.Store.SaveFarm(r.Context(), generic.Farm{ID: generic.FarmID(req.ID), Name: req.Name, Location: req.Location})
	if err != nil {
		writeDomainError(w, "Failed to save farm", err)
		return
	}
	writeJSON(w, http.StatusCreated, FarmDTO{ID: string(farm.ID), Name: farm.Name, Location: farm.Location})
}

func (h *Handler) UpdateFarm(w http.ResponseWriter, r *http.Request) {
	var req FarmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	farm, err := h.Store.SaveFarm(r.Context(), generic.Farm{ID: generic.FarmID(id), Name: req.Name, Location: req.Location})
	if err != nil {
		writeDomainError(w, "Failed to save farm", err)
		return
	}
	writeJSON(w, http.StatusOK, FarmDTO{ID: string(farm.ID), Name: farm.Name, Location: farm.Location})
}

func (h *Handler) DeleteFarm(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteFarm(r.Context(), generic.FarmID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to delete farm", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateShed(w http.ResponseWriter, r *http.Request) {
	var req ShedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	shed, err := h.Store.SaveShed(r.Context(), generic.Shed{
		ID:       generic.ShedID(req.ID),
		FarmID:   generic.FarmID(req.FarmID),
		Name:     req.Name,
		Capacity: req.Capacity,
	})
	if err != nil {
		writeDomainError(w, "Failed to save shed", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: string(shed.ID), Entity: string(generic.EntityShed)})
}

func (h *Handler) CreateFlock(w http.ResponseWriter, r *http.Request) {
	var req FlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	flock, err := req.toFlock()
	if err == nil {
		flock, err = h.Store.SaveFlock(r.Context(), flock)
	}
	if err != nil {
		writeDomainError(w, "Failed to save flock", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: string(flock.ID), Entity: string(generic.EntityFlock)})
}

func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req PartyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	party, err := h.Store.SaveParty(r.Context(), generic.Party{ID: generic.PartyID(req.ID), Name: req.Name, Kind: req.Kind})
	if err != nil {
		writeDomainError(w, "Failed to save party", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: string(party.ID), Entity: string(generic.EntityParty)})
}

func (h *Handler) AddProduction(w http.ResponseWriter, r *http.Request) {
	var req ProductionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := req.toRecord()
	if err == nil {
		rec, err = h.Store.AddProduction(r.Context(), rec)
	}
	if err != nil {
		writeDomainError(w, "Failed to record production", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: rec.ID, Entity: string(generic.EntityProduction)})
}

func (h *Handler) AddFeedIssue(w http.ResponseWriter, r *http.Request) {
	var req FeedIssueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := req.toRecord()
	if err == nil {
		rec, err = h.Store.AddFeedIssue(r.Context(), rec)
	}
	if err != nil {
		writeDomainError(w, "Failed to record feed issue", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: rec.ID, Entity: string(generic.EntityFeedIssue)})
}

func (h *Handler) AddFeedPurchase(w http.ResponseWriter, r *http.Request) {
	var req FeedPurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := req.toRecord()
	if err == nil {
		rec, err = h.Store.AddFeedPurchase(r.Context(), rec)
	}
	if err != nil {
		writeDomainError(w, "Failed to record feed purchase", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: rec.ID, Entity: string(generic.EntityFeedPurchase)})
}

func (h *Handler) AddLedgerEntry(w http.ResponseWriter, r *http.Request) {
	var req LedgerEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := req.toRecord()
	if err == nil {
		rec, err = h.Store.AddLedgerEntry(r.Context(), rec)
	}
	if err != nil {
		writeDomainError(w, "Failed to record ledger entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: rec.ID, Entity: string(generic.EntityLedgerEntry)})
}

func (h *Handler) AddMortality(w http.ResponseWriter, r *http.Request) {
	var req MortalityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := req.toRecord()
	if err == nil {
		rec, err = h.Store.AddMortality(r.Context(), rec)
	}
	if err != nil {
		writeDomainError(w, "Failed to record mortality", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: rec.ID, Entity: string(generic.EntityMortality)})
}

// =============================================================================
// CACHE HANDLERS
// =============================================================================

func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.Reports.Cache.Stats()
	writeJSON(w, http.StatusOK, struct {
		cache.Stats
		HitRatio float64 `json:"hit_ratio"`
	}{stats, stats.HitRatio()})
}

// InvalidateCache drops one kind, the kinds an entity type maps to, or
// everything when the body names neither.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	c := h.Reports.Cache
	resp := InvalidateResponse{}
	switch {
	case req.Kind != "":
		kind, err := report.ParseKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Unknown report kind", err)
			return
		}
		resp.Removed = c.Invalidate(kind)
		resp.Kinds = []string{string(kind)}
	case req.Entity != "":
		entity := generic.EntityKind(req.Entity)
		kinds, ok := report.DefaultRules()[entity]
		if !ok {
			kinds = report.AllKinds()
		}
		resp.Removed = c.InvalidateEntity(entity)
		resp.Kinds = kindNames(kinds)
	default:
		resp.Removed = c.InvalidateAll()
		resp.Kinds = kindNames(report.AllKinds())
	}

	h.logger.Info("cache invalidated on request",
		zap.Strings("kinds", resp.Kinds), zap.Int("removed", resp.Removed))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed := h.Reports.Cache.InvalidateAll()
	writeJSON(w, http.StatusOK, InvalidateResponse{Removed: removed, Kinds: kindNames(report.AllKinds())})
}

// RunForecast projects a caller-supplied series. Results are memoized by
// series and horizon.
func (h *Handler) RunForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Horizon == 0 {
		req.Horizon = DefaultForecastHorizon
	}
	if err := checkHorizon(req.Horizon); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid horizon", err)
		return
	}
	forecast, err := h.Reports.Forecast(r.Context(), req.History, req.Horizon)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, ForecastResponse{Forecast: forecast})
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports ok, or 503 when the database does not answer.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"cache_entries": h.Reports.Cache.Stats().Size,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error category.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func periodParams(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	start, err := parseDateField("start", q.Get("start"))
	if err != nil {
		return generic.Period{}, err
	}
	end, err := parseDateField("end", q.Get("end"))
	if err != nil {
		return generic.Period{}, err
	}
	return generic.NewPeriod(start, end)
}

func farmPeriodParams(r *http.Request) (generic.FarmID, generic.Period, error) {
	farmID := generic.FarmID(r.URL.Query().Get("farm_id"))
	if farmID == "" {
		return "", generic.Period{}, errors.New("farm_id is required")
	}
	period, err := periodParams(r)
	return farmID, period, err
}

func optionalDate(raw string) (*generic.TimePoint, error) {
	if raw == "" {
		return nil, nil
	}
	tp, err := generic.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

func kindNames(kinds []report.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
