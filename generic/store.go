/*
store.go - Storage collaborator interface consumed by the reporting engine

PURPOSE:
  Defines the boundary between report computation and the database. The
  engine never persists anything itself: it reads point-in-time values and
  range aggregates through this interface and produces pure results.

KEY INTERFACES:
  Store:         Read side used by analytics (aggregates, records, live counts)
  Writer:        Write side used by the API; publishes MutationEvents
  EventSource:   Mutation hook subscription used by cache invalidation

RANGE SEMANTICS:
  Every range method takes [from, to] inclusively at day granularity.
  RangeAggregate is a single grouped query (one row per day with data),
  never one query per day; it is the hot path of the daily summary.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for testing and dev
  - store/sqlite/sqlite.go:  SQLite for production

SEE ALSO:
  - events.go: MutationEvent and hooks
  - analytics/engine.go: Main consumer
*/
package generic

import "context"

// =============================================================================
// METRICS - What RangeAggregate can sum per day
// =============================================================================

type Metric string

const (
	MetricTotalEggs  Metric = "total_eggs"
	MetricUsableEggs Metric = "usable_eggs"
	MetricFeedKg     Metric = "feed_kg"
	MetricMortality  Metric = "mortality"
)

// Scope narrows a query. Empty fields are not filtered on.
type Scope struct {
	FarmID  FarmID
	ShedID  ShedID
	FlockID FlockID
}

// DatedValue is one row of a per-day aggregate.
type DatedValue struct {
	Date  TimePoint
	Value float64
}

// =============================================================================
// STORE - Read side
// =============================================================================

type Store interface {
	// RangeAggregate sums metric per calendar day in [from, to]. Days with no
	// data are absent from the result. Ordered by date ascending.
	RangeAggregate(ctx context.Context, metric Metric, scope Scope, from, to TimePoint) ([]DatedValue, error)

	// ProductionRecords returns raw production rows in [from, to].
	ProductionRecords(ctx context.Context, scope Scope, from, to TimePoint) ([]ProductionRecord, error)

	// FeedIssues returns raw feed issue rows in [from, to], ordered by date.
	FeedIssues(ctx context.Context, scope Scope, from, to TimePoint) ([]FeedIssue, error)

	// FeedPurchases returns feed purchases for a farm in [from, to].
	FeedPurchases(ctx context.Context, farmID FarmID, from, to TimePoint) ([]FeedPurchase, error)

	// LedgerEntries returns every posting on a party account, in insertion order.
	LedgerEntries(ctx context.Context, partyID PartyID) ([]LedgerEntry, error)

	// MortalityEvents returns mortality rows in [from, to].
	MortalityEvents(ctx context.Context, scope Scope, from, to TimePoint) ([]MortalityEvent, error)

	// LiveBirdCount is the point-in-time population of a flock at the end of asOf.
	LiveBirdCount(ctx context.Context, flockID FlockID, asOf TimePoint) (int64, error)

	// GetFlock returns ErrFlockNotFound for unknown IDs.
	GetFlock(ctx context.Context, flockID FlockID) (*Flock, error)

	// ListFarms returns every farm ordered by name.
	ListFarms(ctx context.Context) ([]Farm, error)
}

// =============================================================================
// WRITER - Entity mutations (CRUD is out of the engine's scope; this is the seam)
// =============================================================================

type Writer interface {
	SaveFarm(ctx context.Context, f Farm) (Farm, error)
	DeleteFarm(ctx context.Context, id FarmID) error
	SaveShed(ctx context.Context, s Shed) (Shed, error)
	SaveFlock(ctx context.Context, f Flock) (Flock, error)
	SaveParty(ctx context.Context, p Party) (Party, error)
	AddProduction(ctx context.Context, r ProductionRecord) (ProductionRecord, error)
	AddFeedIssue(ctx context.Context, f FeedIssue) (FeedIssue, error)
	AddFeedPurchase(ctx context.Context, p FeedPurchase) (FeedPurchase, error)
	// AddLedgerEntry returns ErrPartyNotFound for an unsaved party.
	AddLedgerEntry(ctx context.Context, e LedgerEntry) (LedgerEntry, error)
	AddMortality(ctx context.Context, m MortalityEvent) (MortalityEvent, error)
}

// EventSource exposes mutation hooks.
type EventSource interface {
	Subscribe(l MutationListener)
}

// ReadWriteStore is what the composition root wires: a store the API can
// write to and the engine can read from, with hooks for invalidation.
type ReadWriteStore interface {
	Store
	Writer
	EventSource
}
