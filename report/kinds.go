package report

import (
	"fmt"

	"github.com/warp/poultry-reports/generic"
)

// =============================================================================
// REPORT KINDS
// =============================================================================

// Kind names a cached report. It is the key namespace and the unit of
// invalidation.
type Kind string

const (
	KindDailyProduction    Kind = "daily_production"
	KindMonthlyProduction  Kind = "monthly_production"
	KindFeedUsage          Kind = "feed_usage"
	KindPartyStatement     Kind = "party_statement"
	KindProductionForecast Kind = "production_forecast"
	KindFlockPerformance   Kind = "flock_performance"
	KindFeedCost           Kind = "feed_cost"
	KindFarmList           Kind = "farm_list"
)

var allKinds = []Kind{
	KindDailyProduction,
	KindMonthlyProduction,
	KindFeedUsage,
	KindPartyStatement,
	KindProductionForecast,
	KindFlockPerformance,
	KindFeedCost,
	KindFarmList,
}

func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// FarmScopedKinds are the reports computed from one farm's records.
func FarmScopedKinds() []Kind {
	return []Kind{
		KindDailyProduction,
		KindMonthlyProduction,
		KindFeedUsage,
		KindProductionForecast,
		KindFlockPerformance,
		KindFeedCost,
	}
}

func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown report kind %q", ErrUnknownKind, s)
}

// =============================================================================
// ENTITY -> KIND RULES
// =============================================================================

// DefaultRules maps every mutated entity to each report kind whose cached
// value could be derived, even partly, from it.
func DefaultRules() map[generic.EntityKind][]Kind {
	farmKinds := append([]Kind{KindFarmList}, FarmScopedKinds()...)
	return map[generic.EntityKind][]Kind{
		generic.EntityFarm:         farmKinds,
		generic.EntityShed:         {KindFeedUsage, KindFlockPerformance},
		generic.EntityFlock:        {KindFlockPerformance},
		generic.EntityParty:        {KindPartyStatement},
		generic.EntityProduction:   {KindDailyProduction, KindMonthlyProduction, KindProductionForecast, KindFlockPerformance},
		generic.EntityFeedIssue:    {KindFeedUsage, KindFlockPerformance},
		generic.EntityFeedPurchase: {KindFeedCost},
		generic.EntityLedgerEntry:  {KindPartyStatement},
		generic.EntityMortality:    {KindFlockPerformance},
	}
}
