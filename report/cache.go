/*
Package report caches computed reports and keeps them consistent with the
records they were computed from.

PURPOSE:
  A Cache is one cache.Store with keys namespaced by report Kind. The
  Invalidator listens to store mutation hooks and drops every kind a
  mutation could affect. The Service is the read path: get from the cache,
  compute through analytics on a miss, store the result.

INVALIDATION:
  Coarse-grained: a whole kind is dropped, not individual parameter sets.
  Each kind also carries a generation number bumped on invalidation, so a
  computation that started before an invalidation cannot store its stale
  result after it.

FAILURES:
  A failed computation is returned to the caller and never stored.

SEE ALSO:
  - cache/store.go: Underlying TTL + bounded store
  - invalidator.go: Entity to kind mapping
  - service.go:     Get-or-compute
*/
package report

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/poultry-reports/cache"
	"github.com/warp/poultry-reports/generic"
)

var ErrUnknownKind = errors.New("unknown report kind")

type Cache struct {
	store  *cache.Store
	logger *zap.Logger

	mu          sync.Mutex
	generations map[Kind]uint64
}

func NewCache(store *cache.Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:       store,
		logger:      logger.Named("report-cache"),
		generations: make(map[Kind]uint64),
	}
}

// Key is the cache key of a report.
func (c *Cache) Key(kind Kind, params cache.Params) string {
	return cache.Derive(string(kind), params)
}

func (c *Cache) GetReport(kind Kind, params cache.Params) (any, bool) {
	return c.store.Get(c.Key(kind, params))
}

func (c *Cache) SetReport(kind Kind, params cache.Params, value any, ttl time.Duration) {
	c.store.Set(c.Key(kind, params), value, ttl)
}

// Generation is the invalidation counter of kind. Read it before computing
// and hand it to SetReportIfCurrent.
func (c *Cache) Generation(kind Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[kind]
}

// SetReportIfCurrent stores value only if kind has not been invalidated
// since gen was read. It reports whether the value was stored.
func (c *Cache) SetReportIfCurrent(kind Kind, params cache.Params, value any, ttl time.Duration, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[kind] != gen {
		return false
	}
	c.store.Set(c.Key(kind, params), value, ttl)
	return true
}

// Invalidate drops every cached report of kind and returns how many.
func (c *Cache) Invalidate(kind Kind) int {
	c.mu.Lock()
	c.generations[kind]++
	removed := c.store.DeletePrefix(cache.NamespacePrefix(string(kind)))
	c.mu.Unlock()

	c.logger.Debug("invalidated", zap.String("kind", string(kind)), zap.Int("removed", removed))
	return removed
}

// InvalidateAll drops every cached report of every kind.
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	for _, k := range allKinds {
		c.generations[k]++
	}
	removed := c.store.Clear()
	c.mu.Unlock()

	c.logger.Info("invalidated all reports", zap.Int("removed", removed))
	return removed
}

// InvalidateEntity drops every kind DefaultRules maps entity to.
func (c *Cache) InvalidateEntity(entity generic.EntityKind) int {
	kinds, ok := DefaultRules()[entity]
	if !ok {
		return c.InvalidateAll()
	}
	removed := 0
	for _, k := range kinds {
		removed += c.Invalidate(k)
	}
	return removed
}

func (c *Cache) Stats() cache.Stats {
	return c.store.Stats()
}

// Store exposes the underlying store for memoizers sharing its capacity.
func (c *Cache) Store() *cache.Store {
	return c.store
}
