/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the analytics results from the external API contract:
  - Dates are rendered as YYYY-MM-DD
  - Decimal amounts are rendered as strings, never float64
  - Money is keyed by the configured currency labels ({"USD": "10", "LBP": "900000"})

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Envelope types

TYPES:
  Reports:
    ReportResponse (envelope), DailySummaryDTO, MonthlyReportDTO,
    FeedUsageDTO, FeedCostDTO, StatementDTO, ForecastDTO, FlockPerformanceDTO

  Mutations:
    FarmRequest, ShedRequest, FlockRequest, PartyRequest, ProductionRequest,
    FeedIssueRequest, FeedPurchaseRequest, LedgerEntryRequest, MortalityRequest

  Cache:
    InvalidateRequest, InvalidateResponse, ForecastRequest

VALIDATION:
  Syntactic validation (dates, decimals) happens when a request is converted
  to a record. Semantic validation belongs to the store writers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/warp/poultry-reports/analytics"
	"github.com/warp/poultry-reports/config"
	"github.com/warp/poultry-reports/generic"
)

// =============================================================================
// ENVELOPES
// =============================================================================

// ReportResponse wraps every report. Degraded is set when the store failed
// and Report holds an empty report of the requested kind.
type ReportResponse struct {
	Kind     string `json:"kind"`
	Cached   bool   `json:"cached"`
	Degraded bool   `json:"degraded,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Report   any    `json:"report"`
}

// ErrorResponse is the error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MoneyDTO maps currency label to amount.
type MoneyDTO map[string]string

func toMoneyDTO(m generic.Money, cur config.CurrenciesConfig) MoneyDTO {
	return MoneyDTO{
		cur.Primary:   m.Primary.String(),
		cur.Secondary: m.Secondary.String(),
	}
}

func dateKeys(days []generic.TimePoint) []string {
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = d.Key()
	}
	return keys
}

// =============================================================================
// REPORT DTOs
// =============================================================================

type DailySummaryDTO struct {
	FarmID string   `json:"farm_id"`
	Start  string   `json:"start"`
	End    string   `json:"end"`
	Dates  []string `json:"dates"`
	Counts []int64  `json:"counts"`
	Total  int64    `json:"total"`
}

func toDailySummaryDTO(s analytics.DailySummary) DailySummaryDTO {
	counts := s.Counts
	if counts == nil {
		counts = []int64{}
	}
	return DailySummaryDTO{
		FarmID: string(s.FarmID),
		Start:  keyOrEmpty(s.Period.Start),
		End:    keyOrEmpty(s.Period.End),
		Dates:  dateKeys(s.Dates),
		Counts: counts,
		Total:  s.Total(),
	}
}

type DailyBucketDTO struct {
	Date       string `json:"date,omitempty"`
	TotalEggs  int64  `json:"total_eggs"`
	UsableEggs int64  `json:"usable_eggs"`
	Small      int64  `json:"small"`
	Medium     int64  `json:"medium"`
	Large      int64  `json:"large"`
	Broken     int64  `json:"broken"`
}

func toDailyBucketDTO(b analytics.DailyBucket) DailyBucketDTO {
	return DailyBucketDTO{
		Date:       keyOrEmpty(b.Date),
		TotalEggs:  b.TotalEggs,
		UsableEggs: b.UsableEggs,
		Small:      b.Small,
		Medium:     b.Medium,
		Large:      b.Large,
		Broken:     b.Broken,
	}
}

// MonthlyReportDTO keys days by day-of-month as a string, since JSON object
// keys are strings.
type MonthlyReportDTO struct {
	FarmID string                    `json:"farm_id"`
	Year   int                       `json:"year"`
	Month  int                       `json:"month"`
	Days   map[string]DailyBucketDTO `json:"days"`
	Totals DailyBucketDTO            `json:"totals"`
}

func toMonthlyReportDTO(r analytics.MonthlyReport) MonthlyReportDTO {
	days := make(map[string]DailyBucketDTO, len(r.Days))
	for d, b := range r.Days {
		days[strconv.Itoa(d)] = toDailyBucketDTO(b)
	}
	return MonthlyReportDTO{
		FarmID: string(r.FarmID),
		Year:   r.Year,
		Month:  int(r.Month),
		Days:   days,
		Totals: toDailyBucketDTO(r.Totals()),
	}
}

type ShedFeedUsageDTO struct {
	ShedID       string   `json:"shed_id"`
	TotalKg      float64  `json:"total_kg"`
	TotalCost    MoneyDTO `json:"total_cost"`
	IssueCount   int      `json:"issue_count"`
	AvgPerIssue  float64  `json:"avg_per_issue"`
	FeedType     string   `json:"feed_type"`
	ActiveDays   int      `json:"active_days"`
	DailyAverage float64  `json:"daily_average"`
}

type FeedUsageDTO struct {
	FarmID  string             `json:"farm_id"`
	Start   string             `json:"start"`
	End     string             `json:"end"`
	TotalKg float64            `json:"total_kg"`
	Sheds   []ShedFeedUsageDTO `json:"sheds"`
}

func toFeedUsageDTO(r analytics.FeedUsageReport, cur config.CurrenciesConfig) FeedUsageDTO {
	sheds := make([]ShedFeedUsageDTO, len(r.Sheds))
	for i, s := range r.Sheds {
		sheds[i] = ShedFeedUsageDTO{
			ShedID:       string(s.ShedID),
			TotalKg:      s.TotalKg,
			TotalCost:    toMoneyDTO(s.TotalCost, cur),
			IssueCount:   s.IssueCount,
			AvgPerIssue:  s.AvgPerIssue,
			FeedType:     s.FeedType,
			ActiveDays:   s.ActiveDays,
			DailyAverage: s.DailyAverage,
		}
	}
	return FeedUsageDTO{
		FarmID:  string(r.FarmID),
		Start:   keyOrEmpty(r.Period.Start),
		End:     keyOrEmpty(r.Period.End),
		TotalKg: r.TotalKg(),
		Sheds:   sheds,
	}
}

type FeedTypeCostDTO struct {
	FeedType        string `json:"feed_type"`
	TotalKg         string `json:"total_kg"`
	TotalCost       string `json:"total_cost"`
	WeightedAvgCost string `json:"weighted_avg_cost"`
	Purchases       int    `json:"purchases"`
}

type FeedCostDTO struct {
	FarmID string            `json:"farm_id"`
	Start  string            `json:"start"`
	End    string            `json:"end"`
	Types  []FeedTypeCostDTO `json:"types"`
}

func toFeedCostDTO(r analytics.FeedCostReport) FeedCostDTO {
	types := make([]FeedTypeCostDTO, len(r.Types))
	for i, t := range r.Types {
		types[i] = FeedTypeCostDTO{
			FeedType:        t.FeedType,
			TotalKg:         t.TotalKg.String(),
			TotalCost:       t.TotalCost.StringFixed(2),
			WeightedAvgCost: t.WeightedAvgCost.StringFixed(4),
			Purchases:       t.Purchases,
		}
	}
	return FeedCostDTO{
		FarmID: string(r.FarmID),
		Start:  keyOrEmpty(r.Period.Start),
		End:    keyOrEmpty(r.Period.End),
		Types:  types,
	}
}

type StatementRowDTO struct {
	EntryID     string   `json:"entry_id"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Debit       MoneyDTO `json:"debit"`
	Credit      MoneyDTO `json:"credit"`
	Balance     MoneyDTO `json:"balance"`
}

type StatementDTO struct {
	PartyID string            `json:"party_id"`
	From    string            `json:"from,omitempty"`
	To      string            `json:"to,omitempty"`
	Rows    []StatementRowDTO `json:"rows"`
	Closing MoneyDTO          `json:"closing"`
}

func toStatementDTO(s analytics.Statement, cur config.CurrenciesConfig) StatementDTO {
	rows := make([]StatementRowDTO, len(s.Rows))
	for i, r := range s.Rows {
		rows[i] = StatementRowDTO{
			EntryID:     r.EntryID,
			Date:        r.Date.Key(),
			Description: r.Description,
			Debit:       toMoneyDTO(r.Debit, cur),
			Credit:      toMoneyDTO(r.Credit, cur),
			Balance:     toMoneyDTO(r.Balance, cur),
		}
	}
	dto := StatementDTO{
		PartyID: string(s.PartyID),
		Rows:    rows,
		Closing: toMoneyDTO(s.Closing, cur),
	}
	if s.From != nil {
		dto.From = s.From.Key()
	}
	if s.To != nil {
		dto.To = s.To.Key()
	}
	return dto
}

type ForecastDTO struct {
	FarmID        string          `json:"farm_id"`
	History       DailySummaryDTO `json:"history"`
	ForecastDates []string        `json:"forecast_dates"`
	Forecast      []float64       `json:"forecast"`
}

func toForecastDTO(f analytics.ProductionForecast) ForecastDTO {
	values := f.Forecast
	if values == nil {
		values = []float64{}
	}
	return ForecastDTO{
		FarmID:        string(f.FarmID),
		History:       toDailySummaryDTO(f.History),
		ForecastDates: dateKeys(f.ForecastDates),
		Forecast:      values,
	}
}

type FlockPerformanceDTO struct {
	FlockID          string  `json:"flock_id"`
	Found            bool    `json:"found"`
	Start            string  `json:"start"`
	End              string  `json:"end"`
	HDP              float64 `json:"hdp"`
	FCR              float64 `json:"fcr"`
	TotalEggs        int64   `json:"total_eggs"`
	FeedKg           float64 `json:"feed_kg"`
	AverageLiveBirds float64 `json:"average_live_birds"`
	StartCount       int64   `json:"start_count"`
	Deaths           int64   `json:"deaths"`
	MortalityRate    float64 `json:"mortality_rate"`
}

func toFlockPerformanceDTO(flockID generic.FlockID, p analytics.FlockPerformance) FlockPerformanceDTO {
	return FlockPerformanceDTO{
		FlockID:          string(flockID),
		Found:            p.Found,
		Start:            keyOrEmpty(p.Period.Start),
		End:              keyOrEmpty(p.Period.End),
		HDP:              p.HDP.HDP,
		FCR:              p.FCR.FCR,
		TotalEggs:        p.HDP.TotalEggs,
		FeedKg:           p.FCR.FeedKg,
		AverageLiveBirds: p.HDP.AverageLiveBirds,
		StartCount:       p.StartCount,
		Deaths:           p.Deaths,
		MortalityRate:    p.MortalityRate,
	}
}

type FarmDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

func toFarmDTOs(farms []generic.Farm) []FarmDTO {
	dtos := make([]FarmDTO, len(farms))
	for i, f := range farms {
		dtos[i] = FarmDTO{ID: string(f.ID), Name: f.Name, Location: f.Location}
	}
	return dtos
}

func keyOrEmpty(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.Key()
}

// =============================================================================
// MUTATION REQUESTS
// =============================================================================

type FarmRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type ShedRequest struct {
	ID       string `json:"id"`
	FarmID   string `json:"farm_id"`
	Name     string `json:"name"`
	Capacity int64  `json:"capacity"`
}

type FlockRequest struct {
	ID           string `json:"id"`
	FarmID       string `json:"farm_id"`
	ShedID       string `json:"shed_id"`
	Breed        string `json:"breed"`
	InitialCount int64  `json:"initial_count"`
	PlacedOn     string `json:"placed_on"`
}

func (r FlockRequest) toFlock() (generic.Flock, error) {
	placed, err := parseDateField("placed_on", r.PlacedOn)
	if err != nil {
		return generic.Flock{}, err
	}
	return generic.Flock{
		ID:           generic.FlockID(r.ID),
		FarmID:       generic.FarmID(r.FarmID),
		ShedID:       generic.ShedID(r.ShedID),
		Breed:        r.Breed,
		InitialCount: r.InitialCount,
		PlacedOn:     placed,
	}, nil
}

type PartyRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type ProductionRequest struct {
	FarmID  string `json:"farm_id"`
	ShedID  string `json:"shed_id"`
	FlockID string `json:"flock_id"`
	Date    string `json:"date"`
	Small   int64  `json:"small"`
	Medium  int64  `json:"medium"`
	Large   int64  `json:"large"`
	Broken  int64  `json:"broken"`
}

func (r ProductionRequest) toRecord() (generic.ProductionRecord, error) {
	date, err := parseDateField("date", r.Date)
	if err != nil {
		return generic.ProductionRecord{}, err
	}
	return generic.ProductionRecord{
		FarmID:  generic.FarmID(r.FarmID),
		ShedID:  generic.ShedID(r.ShedID),
		FlockID: generic.FlockID(r.FlockID),
		Date:    date,
		Small:   r.Small,
		Medium:  r.Medium,
		Large:   r.Large,
		Broken:  r.Broken,
	}, nil
}

// AmountRequest is an amount in both ledger currencies, as decimal strings.
type AmountRequest struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

func (a AmountRequest) toMoney(field string) (generic.Money, error) {
	primary, err := parseDecimalField(field+".primary", a.Primary)
	if err != nil {
		return generic.Money{}, err
	}
	secondary, err := parseDecimalField(field+".secondary", a.Secondary)
	if err != nil {
		return generic.Money{}, err
	}
	return generic.Money{Primary: primary, Secondary: secondary}, nil
}

type FeedIssueRequest struct {
	FarmID     string        `json:"farm_id"`
	ShedID     string        `json:"shed_id"`
	FlockID    string        `json:"flock_id"`
	Date       string        `json:"date"`
	FeedType   string        `json:"feed_type"`
	QuantityKg float64       `json:"quantity_kg"`
	Cost       AmountRequest `json:"cost"`
}

func (r FeedIssueRequest) toRecord() (generic.FeedIssue, error) {
	date, err := parseDateField("date", r.Date)
	if err != nil {
		return generic.FeedIssue{}, err
	}
	cost, err := r.Cost.toMoney("cost")
	if err != nil {
		return generic.FeedIssue{}, err
	}
	return generic.FeedIssue{
		FarmID:     generic.FarmID(r.FarmID),
		ShedID:     generic.ShedID(r.ShedID),
		FlockID:    generic.FlockID(r.FlockID),
		Date:       date,
		FeedType:   r.FeedType,
		QuantityKg: r.QuantityKg,
		Cost:       cost,
	}, nil
}

type FeedPurchaseRequest struct {
	FarmID     string `json:"farm_id"`
	Date       string `json:"date"`
	FeedType   string `json:"feed_type"`
	QuantityKg string `json:"quantity_kg"`
	UnitCost   string `json:"unit_cost"`
}

func (r FeedPurchaseRequest) toRecord() (generic.FeedPurchase, error) {
	date, err := parseDateField("date", r.Date)
	if err != nil {
		return generic.FeedPurchase{}, err
	}
	qty, err := parseDecimalField("quantity_kg", r.QuantityKg)
	if err != nil {
		return generic.FeedPurchase{}, err
	}
	unitCost, err := parseDecimalField("unit_cost", r.UnitCost)
	if err != nil {
		return generic.FeedPurchase{}, err
	}
	return generic.FeedPurchase{
		FarmID:     generic.FarmID(r.FarmID),
		Date:       date,
		FeedType:   r.FeedType,
		QuantityKg: qty,
		UnitCost:   unitCost,
	}, nil
}

type LedgerEntryRequest struct {
	PartyID     string        `json:"party_id"`
	Date        string        `json:"date"`
	Description string        `json:"description"`
	Debit       AmountRequest `json:"debit"`
	Credit      AmountRequest `json:"credit"`
}

func (r LedgerEntryRequest) toRecord() (generic.LedgerEntry, error) {
	date, err := parseDateField("date", r.Date)
	if err != nil {
		return generic.LedgerEntry{}, err
	}
	debit, err := r.Debit.toMoney("debit")
	if err != nil {
		return generic.LedgerEntry{}, err
	}
	credit, err := r.Credit.toMoney("credit")
	if err != nil {
		return generic.LedgerEntry{}, err
	}
	return generic.LedgerEntry{
		PartyID:     generic.PartyID(r.PartyID),
		Date:        date,
		Description: r.Description,
		Debit:       debit,
		Credit:      credit,
	}, nil
}

type MortalityRequest struct {
	FarmID  string `json:"farm_id"`
	FlockID string `json:"flock_id"`
	Date    string `json:"date"`
	Count   int64  `json:"count"`
	Cause   string `json:"cause"`
}

func (r MortalityRequest) toRecord() (generic.MortalityEvent, error) {
	date, err := parseDateField("date", r.Date)
	if err != nil {
		return generic.MortalityEvent{}, err
	}
	return generic.MortalityEvent{
		FarmID:  generic.FarmID(r.FarmID),
		FlockID: generic.FlockID(r.FlockID),
		Date:    date,
		Count:   r.Count,
		Cause:   r.Cause,
	}, nil
}

// CreatedDTO answers every successful write.
type CreatedDTO struct {
	ID     string `json:"id"`
	Entity string `json:"entity"`
}

// =============================================================================
// CACHE ADMIN
// =============================================================================

// InvalidateRequest names either a report kind or a mutated entity type.
// With neither set every kind is invalidated.
type InvalidateRequest struct {
	Kind   string `json:"kind"`
	Entity string `json:"entity"`
}

type InvalidateResponse struct {
	Removed int      `json:"removed"`
	Kinds   []string `json:"kinds"`
}

type ForecastRequest struct {
	History []float64 `json:"history"`
	Horizon int       `json:"horizon"`
}

type ForecastResponse struct {
	Forecast []float64 `json:"forecast"`
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseDateField(field, value string) (generic.TimePoint, error) {
	tp, err := generic.ParseDate(value)
	if err != nil {
		return generic.TimePoint{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", generic.ErrInvalidRecord, field)
	}
	return tp, nil
}

// parseDecimalField treats an empty value as zero.
func parseDecimalField(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a decimal", generic.ErrInvalidRecord, field)
	}
	return d, nil
}
