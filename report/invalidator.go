package report

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/poultry-reports/generic"
)

// =============================================================================
// INVALIDATOR - Mutation hooks to report kinds
// =============================================================================

// Invalidator drops affected report kinds whenever a record is written.
// Entities without a rule invalidate everything.
type Invalidator struct {
	cache  *Cache
	rules  map[generic.EntityKind][]Kind
	logger *zap.Logger
}

func NewInvalidator(c *Cache, logger *zap.Logger) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{cache: c, rules: DefaultRules(), logger: logger.Named("invalidator")}
}

// Attach subscribes to the store's mutation hooks.
func (i *Invalidator) Attach(src generic.EventSource) {
	src.Subscribe(i.Handle)
}

// Affected lists the kinds a mutation of entity invalidates; nil means all.
func (i *Invalidator) Affected(entity generic.EntityKind) []Kind {
	return i.rules[entity]
}

// Handle is the MutationListener registered by Attach.
func (i *Invalidator) Handle(_ context.Context, ev generic.MutationEvent) {
	kinds, ok := i.rules[ev.Entity]
	if !ok {
		removed := i.cache.InvalidateAll()
		i.logger.Warn("no invalidation rule, cleared all reports",
			zap.String("entity", string(ev.Entity)), zap.Int("removed", removed))
		return
	}

	removed := 0
	for _, k := range kinds {
		removed += i.cache.Invalidate(k)
	}
	i.logger.Debug("mutation invalidated reports",
		zap.String("entity", string(ev.Entity)),
		zap.String("op", string(ev.Op)),
		zap.String("id", ev.ID),
		zap.String("farm_id", string(ev.FarmID)),
		zap.Int("kinds", len(kinds)),
		zap.Int("removed", removed))
}
