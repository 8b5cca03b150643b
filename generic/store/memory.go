// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/poultry-reports/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record in slices guarded by one RWMutex. Mutation
// events are published after the lock is released.
type Memory struct {
	generic.MutationHooks

	mu         sync.RWMutex
	farms      map[generic.FarmID]generic.Farm
	sheds      map[generic.ShedID]generic.Shed
	flocks     map[generic.FlockID]generic.Flock
	parties    map[generic.PartyID]generic.Party
	production []generic.ProductionRecord
	feedIssues []generic.FeedIssue
	purchases  []generic.FeedPurchase
	ledger     map[generic.PartyID][]generic.LedgerEntry
	mortality  []generic.MortalityEvent

	// failWith makes every read return this error (tests of degraded reports).
	failWith error
}

var _ generic.ReadWriteStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		farms:   make(map[generic.FarmID]generic.Farm),
		sheds:   make(map[generic.ShedID]generic.Shed),
		flocks:  make(map[generic.FlockID]generic.Flock),
		parties: make(map[generic.PartyID]generic.Party),
		ledger:  make(map[generic.PartyID][]generic.LedgerEntry),
	}
}

// FailReads makes every subsequent read fail with err; nil restores reads.
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Reset drops every record. Like the SQLite store it publishes nothing.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := NewMemory()
	m.farms, m.sheds, m.flocks, m.parties, m.ledger = fresh.farms, fresh.sheds, fresh.flocks, fresh.parties, fresh.ledger
	m.production, m.feedIssues, m.purchases, m.mortality = nil, nil, nil, nil
	return nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func inScope(s generic.Scope, farm generic.FarmID, shed generic.ShedID, flock generic.FlockID) bool {
	return (s.FarmID == "" || s.FarmID == farm) &&
		(s.ShedID == "" || s.ShedID == shed) &&
		(s.FlockID == "" || s.FlockID == flock)
}

func inRange(d, from, to generic.TimePoint) bool {
	return from.BeforeOrEqual(d) && d.BeforeOrEqual(to)
}

// =============================================================================
// READ SIDE
// =============================================================================

func (m *Memory) RangeAggregate(_ context.Context, metric generic.Metric, scope generic.Scope, from, to generic.TimePoint) ([]generic.DatedValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	sums := make(map[string]float64)
	dates := make(map[string]generic.TimePoint)
	add := func(d generic.TimePoint, v float64) {
		k := d.Key()
		sums[k] += v
		dates[k] = d
	}

	switch metric {
	case generic.MetricTotalEggs, generic.MetricUsableEggs:
		for _, r := range m.production {
			if !inScope(scope, r.FarmID, r.ShedID, r.FlockID) || !inRange(r.Date, from, to) {
				continue
			}
			if metric == generic.MetricTotalEggs {
				add(r.Date, float64(r.Total()))
			} else {
				add(r.Date, float64(r.Usable()))
			}
		}
	case generic.MetricFeedKg:
		for _, f := range m.feedIssues {
			if inScope(scope, f.FarmID, f.ShedID, f.FlockID) && inRange(f.Date, from, to) {
				add(f.Date, f.QuantityKg)
			}
		}
	case generic.MetricMortality:
		for _, e := range m.mortality {
			if inScope(scope, e.FarmID, "", e.FlockID) && inRange(e.Date, from, to) {
				add(e.Date, float64(e.Count))
			}
		}
	default:
		return nil, fmt.Errorf("%w %q", generic.ErrUnknownMetric, metric)
	}

	result := make([]generic.DatedValue, 0, len(sums))
	for k, v := range sums {
		result = append(result, generic.DatedValue{Date: dates[k], Value: v})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) ProductionRecords(_ context.Context, scope generic.Scope, from, to generic.TimePoint) ([]generic.ProductionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var result []generic.ProductionRecord
	for _, r := range m.production {
		if inScope(scope, r.FarmID, r.ShedID, r.FlockID) && inRange(r.Date, from, to) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *Memory) FeedIssues(_ context.Context, scope generic.Scope, from, to generic.TimePoint) ([]generic.FeedIssue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var result []generic.FeedIssue
	for _, f := range m.feedIssues {
		if inScope(scope, f.FarmID, f.ShedID, f.FlockID) && inRange(f.Date, from, to) {
			result = append(result, f)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) FeedPurchases(_ context.Context, farmID generic.FarmID, from, to generic.TimePoint) ([]generic.FeedPurchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var result []generic.FeedPurchase
	for _, p := range m.purchases {
		if p.FarmID == farmID && inRange(p.Date, from, to) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *Memory) LedgerEntries(_ context.Context, partyID generic.PartyID) ([]generic.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	result := make([]generic.LedgerEntry, len(m.ledger[partyID]))
	copy(result, m.ledger[partyID])
	return result, nil
}

func (m *Memory) MortalityEvents(_ context.Context, scope generic.Scope, from, to generic.TimePoint) ([]generic.MortalityEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var result []generic.MortalityEvent
	for _, e := range m.mortality {
		if inScope(scope, e.FarmID, "", e.FlockID) && inRange(e.Date, from, to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) LiveBirdCount(_ context.Context, flockID generic.FlockID, asOf generic.TimePoint) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return 0, m.failWith
	}

	flock, ok := m.flocks[flockID]
	if !ok {
		return 0, generic.ErrFlockNotFound
	}
	if asOf.Before(flock.PlacedOn) {
		return 0, nil
	}
	live := flock.InitialCount
	for _, e := range m.mortality {
		if e.FlockID == flockID && e.Date.BeforeOrEqual(asOf) {
			live -= e.Count
		}
	}
	if live < 0 {
		return 0, nil
	}
	return live, nil
}

func (m *Memory) GetFlock(_ context.Context, flockID generic.FlockID) (*generic.Flock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	flock, ok := m.flocks[flockID]
	if !ok {
		return nil, generic.ErrFlockNotFound
	}
	return &flock, nil
}

func (m *Memory) ListFarms(_ context.Context) ([]generic.Farm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	result := make([]generic.Farm, 0, len(m.farms))
	for _, f := range m.farms {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// =============================================================================
// WRITE SIDE - Each write publishes a MutationEvent after commit
// =============================================================================

func (m *Memory) SaveFarm(ctx context.Context, f generic.Farm) (generic.Farm, error) {
	if err := generic.ValidateFarm(f); err != nil {
		return generic.Farm{}, err
	}
	m.mu.Lock()
	op := generic.OpUpdate
	if _, exists := m.farms[f.ID]; f.ID == "" || !exists {
		op = generic.OpCreate
	}
	f.ID = generic.FarmID(newID(string(f.ID)))
	m.farms[f.ID] = f
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFarm, Op: op, ID: string(f.ID), FarmID: f.ID})
	return f, nil
}

func (m *Memory) DeleteFarm(ctx context.Context, id generic.FarmID) error {
	m.mu.Lock()
	if _, ok := m.farms[id]; !ok {
		m.mu.Unlock()
		return generic.ErrFarmNotFound
	}
	delete(m.farms, id)
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFarm, Op: generic.OpDelete, ID: string(id), FarmID: id})
	return nil
}

func (m *Memory) SaveShed(ctx context.Context, s generic.Shed) (generic.Shed, error) {
	m.mu.Lock()
	if _, ok := m.farms[s.FarmID]; !ok {
		m.mu.Unlock()
		return generic.Shed{}, generic.ErrFarmNotFound
	}
	op := generic.OpUpdate
	if _, exists := m.sheds[s.ID]; s.ID == "" || !exists {
		op = generic.OpCreate
	}
	s.ID = generic.ShedID(newID(string(s.ID)))
	m.sheds[s.ID] = s
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityShed, Op: op, ID: string(s.ID), FarmID: s.FarmID})
	return s, nil
}

func (m *Memory) SaveFlock(ctx context.Context, f generic.Flock) (generic.Flock, error) {
	if err := generic.ValidateFlock(f); err != nil {
		return generic.Flock{}, err
	}
	m.mu.Lock()
	op := generic.OpUpdate
	if _, exists := m.flocks[f.ID]; f.ID == "" || !exists {
		op = generic.OpCreate
	}
	f.ID = generic.FlockID(newID(string(f.ID)))
	m.flocks[f.ID] = f
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFlock, Op: op, ID: string(f.ID), FarmID: f.FarmID})
	return f, nil
}

func (m *Memory) SaveParty(ctx context.Context, p generic.Party) (generic.Party, error) {
	m.mu.Lock()
	op := generic.OpUpdate
	if _, exists := m.parties[p.ID]; p.ID == "" || !exists {
		op = generic.OpCreate
	}
	p.ID = generic.PartyID(newID(string(p.ID)))
	m.parties[p.ID] = p
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityParty, Op: op, ID: string(p.ID)})
	return p, nil
}

func (m *Memory) AddProduction(ctx context.Context, r generic.ProductionRecord) (generic.ProductionRecord, error) {
	if err := generic.ValidateProduction(r); err != nil {
		return generic.ProductionRecord{}, err
	}
	r.ID = newID(r.ID)
	m.mu.Lock()
	m.production = append(m.production, r)
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityProduction, Op: generic.OpCreate, ID: r.ID, FarmID: r.FarmID})
	return r, nil
}

func (m *Memory) AddFeedIssue(ctx context.Context, f generic.FeedIssue) (generic.FeedIssue, error) {
	if err := generic.ValidateFeedIssue(f); err != nil {
		return generic.FeedIssue{}, err
	}
	f.ID = newID(f.ID)
	m.mu.Lock()
	m.feedIssues = append(m.feedIssues, f)
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFeedIssue, Op: generic.OpCreate, ID: f.ID, FarmID: f.FarmID})
	return f, nil
}

func (m *Memory) AddFeedPurchase(ctx context.Context, p generic.FeedPurchase) (generic.FeedPurchase, error) {
	if err := generic.ValidateFeedPurchase(p); err != nil {
		return generic.FeedPurchase{}, err
	}
	p.ID = newID(p.ID)
	m.mu.Lock()
	m.purchases = append(m.purchases, p)
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityFeedPurchase, Op: generic.OpCreate, ID: p.ID, FarmID: p.FarmID})
	return p, nil
}

func (m *Memory) AddLedgerEntry(ctx context.Context, e generic.LedgerEntry) (generic.LedgerEntry, error) {
	if err := generic.ValidateLedgerEntry(e); err != nil {
		return generic.LedgerEntry{}, err
	}
	e.ID = newID(e.ID)
	m.mu.Lock()
	if _, ok := m.parties[e.PartyID]; !ok {
		m.mu.Unlock()
		return generic.LedgerEntry{}, generic.ErrPartyNotFound
	}
	m.ledger[e.PartyID] = append(m.ledger[e.PartyID], e)
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityLedgerEntry, Op: generic.OpCreate, ID: e.ID})
	return e, nil
}

func (m *Memory) AddMortality(ctx context.Context, e generic.MortalityEvent) (generic.MortalityEvent, error) {
	if err := generic.ValidateMortality(e); err != nil {
		return generic.MortalityEvent{}, err
	}
	e.ID = newID(e.ID)
	m.mu.Lock()
	if e.FarmID == "" {
		if flock, ok := m.flocks[e.FlockID]; ok {
			e.FarmID = flock.FarmID
		}
	}
	m.mortality = append(m.mortality, e)
	m.mu.Unlock()

	m.Publish(ctx, generic.MutationEvent{Entity: generic.EntityMortality, Op: generic.OpCreate, ID: e.ID, FarmID: e.FarmID})
	return e, nil
}
