package generic

import (
	"context"
	"sync"
)

// =============================================================================
// MUTATION EVENTS - Entity writes that invalidate cached reports
// =============================================================================

// EntityKind names a persisted entity type.
type EntityKind string

const (
	EntityFarm         EntityKind = "farm"
	EntityShed         EntityKind = "shed"
	EntityFlock        EntityKind = "flock"
	EntityParty        EntityKind = "party"
	EntityProduction   EntityKind = "production"
	EntityFeedIssue    EntityKind = "feed_issue"
	EntityFeedPurchase EntityKind = "feed_purchase"
	EntityLedgerEntry  EntityKind = "ledger_entry"
	EntityMortality    EntityKind = "mortality"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// MutationEvent is published after a write has been committed.
type MutationEvent struct {
	Entity EntityKind
	Op     Operation
	ID     string
	FarmID FarmID
}

// MutationListener receives committed mutations. Listeners run synchronously
// on the writer's goroutine and must not block on I/O.
type MutationListener func(ctx context.Context, ev MutationEvent)

// MutationHooks fans committed mutations out to subscribers. Stores embed it.
type MutationHooks struct {
	mu        sync.RWMutex
	listeners []MutationListener
}

// Subscribe registers a listener for every subsequent mutation.
func (h *MutationHooks) Subscribe(l MutationListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// Publish notifies every listener in subscription order.
func (h *MutationHooks) Publish(ctx context.Context, ev MutationEvent) {
	h.mu.RLock()
	listeners := make([]MutationListener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, ev)
	}
}
