package analytics

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/poultry-reports/generic"
)

// MixedSuffix marks a predominant feed type when more than one type was fed.
const MixedSuffix = " (Mixed)"

// =============================================================================
// FEED USAGE REPORT - Per shed
// =============================================================================

type ShedFeedUsage struct {
	ShedID       generic.ShedID
	TotalKg      float64
	TotalCost    generic.Money
	IssueCount   int
	AvgPerIssue  float64
	FeedType     string
	ActiveDays   int
	DailyAverage float64
}

type FeedUsageReport struct {
	FarmID generic.FarmID
	Period generic.Period
	Sheds  []ShedFeedUsage
}

// TotalKg sums every shed.
func (r FeedUsageReport) TotalKg() float64 {
	var total float64
	for _, s := range r.Sheds {
		total += s.TotalKg
	}
	return total
}

// shedAccumulator keeps feed types in first-seen order so the mode breaks
// ties toward the type issued first.
type shedAccumulator struct {
	usage     ShedFeedUsage
	typeOrder []string
	typeCount map[string]int
	days      map[string]struct{}
}

// FeedUsageReport folds feed issues by shed. Sheds are sorted by ID.
func (e *Engine) FeedUsageReport(ctx context.Context, farmID generic.FarmID, period generic.Period) (FeedUsageReport, error) {
	if err := period.Validate(); err != nil {
		return FeedUsageReport{}, err
	}

	issues, err := e.Store.FeedIssues(ctx, generic.Scope{FarmID: farmID}, period.Start, period.End)
	if err != nil {
		return FeedUsageReport{}, generic.WrapStorage("feed issues", err)
	}

	sheds := make(map[generic.ShedID]*shedAccumulator)
	for _, issue := range issues {
		acc, ok := sheds[issue.ShedID]
		if !ok {
			acc = &shedAccumulator{
				usage:     ShedFeedUsage{ShedID: issue.ShedID, TotalCost: generic.ZeroMoney()},
				typeCount: make(map[string]int),
				days:      make(map[string]struct{}),
			}
			sheds[issue.ShedID] = acc
		}
		acc.usage.TotalKg += issue.QuantityKg
		acc.usage.TotalCost = acc.usage.TotalCost.Add(issue.Cost)
		acc.usage.IssueCount++
		if _, seen := acc.typeCount[issue.FeedType]; !seen {
			acc.typeOrder = append(acc.typeOrder, issue.FeedType)
		}
		acc.typeCount[issue.FeedType]++
		acc.days[issue.Date.Key()] = struct{}{}
	}

	report := FeedUsageReport{FarmID: farmID, Period: period, Sheds: make([]ShedFeedUsage, 0, len(sheds))}
	for _, acc := range sheds {
		u := acc.usage
		if u.IssueCount > 0 {
			u.AvgPerIssue = u.TotalKg / float64(u.IssueCount)
		}
		u.FeedType = PredominantFeedType(acc.typeOrder, acc.typeCount)
		u.ActiveDays = len(acc.days)
		u.DailyAverage = u.TotalKg / float64(max(1, u.ActiveDays))
		report.Sheds = append(report.Sheds, u)
	}
	sort.Slice(report.Sheds, func(i, j int) bool { return report.Sheds[i].ShedID < report.Sheds[j].ShedID })
	return report, nil
}

// PredominantFeedType is the most issued type, first-seen on ties, with
// MixedSuffix when more than one distinct type occurs. Empty input gives "".
func PredominantFeedType(order []string, counts map[string]int) string {
	mode, best := "", 0
	for _, t := range order {
		if counts[t] > best {
			mode, best = t, counts[t]
		}
	}
	if len(order) > 1 {
		return mode + MixedSuffix
	}
	return mode
}

// FeedTypeMode is PredominantFeedType over a plain list of types.
func FeedTypeMode(types []string) string {
	var order []string
	counts := make(map[string]int)
	for _, t := range types {
		if _, seen := counts[t]; !seen {
			order = append(order, t)
		}
		counts[t]++
	}
	return PredominantFeedType(order, counts)
}

// =============================================================================
// FEED COST REPORT - Weighted average purchase cost per feed type
// =============================================================================

type FeedTypeCost struct {
	FeedType        string
	TotalKg         decimal.Decimal
	TotalCost       decimal.Decimal
	WeightedAvgCost decimal.Decimal
	Purchases       int
}

type FeedCostReport struct {
	FarmID generic.FarmID
	Period generic.Period
	Types  []FeedTypeCost
}

// FeedCostReport groups purchases by feed type, sorted by type name.
func (e *Engine) FeedCostReport(ctx context.Context, farmID generic.FarmID, period generic.Period) (FeedCostReport, error) {
	if err := period.Validate(); err != nil {
		return FeedCostReport{}, err
	}

	purchases, err := e.Store.FeedPurchases(ctx, farmID, period.Start, period.End)
	if err != nil {
		return FeedCostReport{}, generic.WrapStorage("feed purchases", err)
	}

	grouped := make(map[string][]Purchase)
	for _, p := range purchases {
		grouped[p.FeedType] = append(grouped[p.FeedType], Purchase{Quantity: p.QuantityKg, UnitCost: p.UnitCost})
	}

	report := FeedCostReport{FarmID: farmID, Period: period, Types: make([]FeedTypeCost, 0, len(grouped))}
	for feedType, ps := range grouped {
		row := FeedTypeCost{
			FeedType:        feedType,
			TotalKg:         decimal.Zero,
			TotalCost:       decimal.Zero,
			WeightedAvgCost: WeightedAverageCost(ps),
			Purchases:       len(ps),
		}
		for _, p := range ps {
			row.TotalKg = row.TotalKg.Add(p.Quantity)
			row.TotalCost = row.TotalCost.Add(p.Quantity.Mul(p.UnitCost))
		}
		report.Types = append(report.Types, row)
	}
	sort.Slice(report.Types, func(i, j int) bool { return report.Types[i].FeedType < report.Types[j].FeedType })
	return report, nil
}
