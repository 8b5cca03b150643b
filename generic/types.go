/*
Package generic provides the shared domain model of the farm reporting engine.

PURPOSE:
  This package contains the record types, identifiers, money and date
  primitives, and the storage collaborator interface that every other
  package builds on. It holds no behavior beyond small value helpers:
  aggregation lives in analytics, caching in cache and report.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a pair of decimal amounts, one per ledger currency
  - Records: production counts, feed issues, ledger postings, mortality
  - Identifiers: type-safe farm/shed/flock/party IDs

DESIGN PRINCIPLES:
  1. Precision: money uses decimal.Decimal, never float64
  2. Type Safety: distinct ID types prevent mixing farm and flock IDs
  3. Read-only: reports consume records by value and never mutate them

SEE ALSO:
  - store.go: Storage collaborator interface
  - events.go: Mutation hooks used for cache invalidation
  - time.go, period.go: Day-granular dates
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FarmID string
type ShedID string
type FlockID string
type PartyID string

// =============================================================================
// MONEY - Amount in the two ledger currencies
// =============================================================================

// Money carries the same posting in both ledger currencies. The currencies
// are labelled by configuration; the engine only needs them kept apart.
type Money struct {
	Primary   decimal.Decimal
	Secondary decimal.Decimal
}

func NewMoney(primary, secondary float64) Money {
	return Money{Primary: decimal.NewFromFloat(primary), Secondary: decimal.NewFromFloat(secondary)}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func ZeroMoney() Money { return Money{Primary: decimal.Zero, Secondary: decimal.Zero} }

func (m Money) Add(o Money) Money {
	return Money{Primary: m.Primary.Add(o.Primary), Secondary: m.Secondary.Add(o.Secondary)}
}

func (m Money) Sub(o Money) Money {
	return Money{Primary: m.Primary.Sub(o.Primary), Secondary: m.Secondary.Sub(o.Secondary)}
}

func (m Money) IsZero() bool { return m.Primary.IsZero() && m.Secondary.IsZero() }

func (m Money) Equal(o Money) bool {
	return m.Primary.Equal(o.Primary) && m.Secondary.Equal(o.Secondary)
}

// =============================================================================
// FARM STRUCTURE
// =============================================================================

type Farm struct {
	ID       FarmID
	Name     string
	Location string
}

type Shed struct {
	ID       ShedID
	FarmID   FarmID
	Name     string
	Capacity int64
}

// Flock is a batch of birds placed in a shed. The live count at any date
// is InitialCount minus mortality recorded up to that date.
type Flock struct {
	ID           FlockID
	FarmID       FarmID
	ShedID       ShedID
	Breed        string
	InitialCount int64
	PlacedOn     TimePoint
}

// Party is a counterparty with a ledger account (customer, supplier).
type Party struct {
	ID   PartyID
	Name string
	Kind string
}

// =============================================================================
// TIME-SERIES RECORDS
// =============================================================================

// ProductionRecord is one egg collection entry, counted by grade.
type ProductionRecord struct {
	ID      string
	FarmID  FarmID
	ShedID  ShedID
	FlockID FlockID
	Date    TimePoint
	Small   int64
	Medium  int64
	Large   int64
	Broken  int64
}

// Total counts every egg collected, broken ones included.
func (r ProductionRecord) Total() int64 { return r.Small + r.Medium + r.Large + r.Broken }

// Usable excludes broken eggs.
func (r ProductionRecord) Usable() int64 { return r.Small + r.Medium + r.Large }

// FeedIssue records feed moved from stock into a shed.
type FeedIssue struct {
	ID         string
	FarmID     FarmID
	ShedID     ShedID
	FlockID    FlockID
	Date       TimePoint
	FeedType   string
	QuantityKg float64
	Cost       Money
}

// FeedPurchase records feed bought into stock.
type FeedPurchase struct {
	ID         string
	FarmID     FarmID
	Date       TimePoint
	FeedType   string
	QuantityKg decimal.Decimal
	UnitCost   decimal.Decimal
}

// LedgerEntry is one posting on a party account.
type LedgerEntry struct {
	ID          string
	PartyID     PartyID
	Date        TimePoint
	Description string
	Debit       Money
	Credit      Money
}

// MortalityEvent records birds lost from a flock on a date.
type MortalityEvent struct {
	ID      string
	FarmID  FarmID
	FlockID FlockID
	Date    TimePoint
	Count   int64
	Cause   string
}
