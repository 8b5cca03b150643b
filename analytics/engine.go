/*
Package analytics turns raw farm records into report-shaped summaries.

PURPOSE:
  The Engine reads production, feed, ledger and mortality records through
  the storage collaborator and folds them into report values. It owns no
  state between calls and never caches: caching is the report package's
  job, and a failed computation here is returned, never stored.

KEY OPERATIONS:
  - DailyProductionSummary: dense per-day egg totals over a period
  - MonthlyProductionReport: sparse per-day buckets for a calendar month
  - FeedUsageReport: per-shed feed totals, cost and predominant feed type
  - PartyStatement: ledger rows with a running balance in both currencies
  - HDPForFlock / FCRForFlock / FlockPerformance: zootechnical ratios
  - ProductionForecast: linear trend of daily production

ERROR HANDLING:
  Zero divisors and empty histories resolve to documented defaults.
  Collaborator failures come back as *generic.StorageError so callers can
  match generic.ErrStorage and fall back to an empty report.

SEE ALSO:
  - formulas.go: Pure ratio formulas
  - forecast.go: Least-squares forecaster
  - report/service.go: Cached entry points over this engine
*/
package analytics

import (
	"context"
	"time"

	"github.com/warp/poultry-reports/generic"
)

// Engine is stateless beyond its storage collaborator; one instance is safe
// for concurrent use as long as the Store is.
type Engine struct {
	Store generic.Store
}

func NewEngine(store generic.Store) *Engine {
	return &Engine{Store: store}
}

// =============================================================================
// DAILY PRODUCTION SUMMARY - Dense, zero-filled
// =============================================================================

// DailySummary holds index-aligned dates and egg totals. Every day of the
// requested period appears exactly once, ascending.
type DailySummary struct {
	FarmID generic.FarmID
	Period generic.Period
	Dates  []generic.TimePoint
	Counts []int64
}

// Total is the sum of every daily count.
func (s DailySummary) Total() int64 {
	var total int64
	for _, c := range s.Counts {
		total += c
	}
	return total
}

// Values returns the counts as float64, the shape Forecast consumes.
func (s DailySummary) Values() []float64 {
	values := make([]float64, len(s.Counts))
	for i, c := range s.Counts {
		values[i] = float64(c)
	}
	return values
}

// DailyProductionSummary issues one range aggregate for the whole period and
// fills days without data with zero.
func (e *Engine) DailyProductionSummary(ctx context.Context, farmID generic.FarmID, period generic.Period) (DailySummary, error) {
	if err := period.Validate(); err != nil {
		return DailySummary{}, err
	}

	rows, err := e.Store.RangeAggregate(ctx, generic.MetricTotalEggs, generic.Scope{FarmID: farmID}, period.Start, period.End)
	if err != nil {
		return DailySummary{}, generic.WrapStorage("range aggregate", err)
	}

	byDay := make(map[string]float64, len(rows))
	for _, r := range rows {
		byDay[r.Date.Key()] += r.Value
	}

	days := period.Days()
	summary := DailySummary{
		FarmID: farmID,
		Period: period,
		Dates:  days,
		Counts: make([]int64, len(days)),
	}
	for i, d := range days {
		summary.Counts[i] = int64(byDay[d.Key()])
	}
	return summary, nil
}

// =============================================================================
// MONTHLY PRODUCTION REPORT - Sparse, keyed by day of month
// =============================================================================

// DailyBucket is the fold of every production record of one calendar day.
type DailyBucket struct {
	Date       generic.TimePoint
	TotalEggs  int64
	UsableEggs int64
	Small      int64
	Medium     int64
	Large      int64
	Broken     int64
}

func (b *DailyBucket) add(r generic.ProductionRecord) {
	b.Small += r.Small
	b.Medium += r.Medium
	b.Large += r.Large
	b.Broken += r.Broken
	b.TotalEggs += r.Total()
	b.UsableEggs += r.Usable()
}

// MonthlyReport maps day of month to its bucket. Days without records are
// absent, unlike DailySummary.
type MonthlyReport struct {
	FarmID generic.FarmID
	Year   int
	Month  time.Month
	Days   map[int]DailyBucket
}

// Totals folds every bucket of the month into one.
func (r MonthlyReport) Totals() DailyBucket {
	var total DailyBucket
	for _, b := range r.Days {
		total.Small += b.Small
		total.Medium += b.Medium
		total.Large += b.Large
		total.Broken += b.Broken
		total.TotalEggs += b.TotalEggs
		total.UsableEggs += b.UsableEggs
	}
	return total
}

// MonthlyProductionReport fetches the month [start, next month start) in one
// query and buckets it by calendar day. December rolls into January.
func (e *Engine) MonthlyProductionReport(ctx context.Context, farmID generic.FarmID, year int, month time.Month) (MonthlyReport, error) {
	if month < time.January || month > time.December {
		return MonthlyReport{}, generic.ErrInvalidPeriod
	}
	period := generic.MonthPeriod(year, month)

	records, err := e.Store.ProductionRecords(ctx, generic.Scope{FarmID: farmID}, period.Start, period.End)
	if err != nil {
		return MonthlyReport{}, generic.WrapStorage("production records", err)
	}

	report := MonthlyReport{FarmID: farmID, Year: year, Month: month, Days: make(map[int]DailyBucket)}
	for _, r := range records {
		if !period.Contains(r.Date) {
			continue
		}
		day := r.Date.Day()
		b := report.Days[day]
		b.Date = r.Date
		b.add(r)
		report.Days[day] = b
	}
	return report, nil
}
