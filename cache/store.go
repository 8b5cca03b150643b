/*
Package cache provides the bounded, expiring key/value store that report
results are kept in, plus key fingerprinting and function memoization.

PURPOSE:
  Report computations are expensive and parameter-keyed. The Store keeps
  their results for a time-to-live and never grows past a fixed capacity.

EXPIRY:
  An entry is expired once now - createdAt >= ttl. Expired entries are
  logically absent: Get removes them eagerly, Set sweeps them before
  evicting, Stats sweeps them before reporting.

CAPACITY:
  When a new key arrives at a full store, expired entries are swept first.
  If the store is still full, the entry with the oldest createdAt is
  evicted. Access time is not tracked: this is eviction by creation, not
  LRU by access.

CONCURRENCY:
  One mutex serializes every operation. No I/O happens under the lock:
  callers compute outside the store and only read or write the final
  value, and logging/metrics happen after the lock is released.

SEE ALSO:
  - fingerprint.go: Key derivation
  - memoize.go:     Memoizer over a Store
  - janitor.go:     Background expiry sweep
*/
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = 5 * time.Minute
)

// =============================================================================
// ENTRY
// =============================================================================

// entry is immutable once stored; Set replaces the pointer, never edits it.
type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
	seq       uint64 // insertion order, breaks createdAt ties
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxSize    int
	defaultTTL time.Duration
	seq        uint64

	hits, misses, sets, deletes int64
	evictions, expirations      int64

	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *cacheMetrics
}

type Option func(*Store)

// WithClock replaces the wall clock, typically with a clockwork fake in tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a store. maxSize <= 0 and defaultTTL <= 0 fall back to
// DefaultMaxSize and DefaultTTL.
func New(maxSize int, defaultTTL time.Duration, opts ...Option) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	s := &Store{
		entries:    make(map[string]*entry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value for key, or false when the key is missing or expired.
// An expired entry found here is removed.
func (s *Store) Get(key string) (any, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	e, ok := s.entries[key]
	expired := ok && e.expired(now)
	if expired {
		delete(s.entries, key)
		s.expirations++
	}
	if !ok || expired {
		s.misses++
		size := len(s.entries)
		s.mu.Unlock()

		s.metrics.recordMiss()
		if expired {
			s.metrics.recordExpirations(1)
			s.metrics.updateSize(size)
		}
		return nil, false
	}
	s.hits++
	value := e.value
	s.mu.Unlock()

	s.metrics.recordHit()
	return value, true
}

// Set stores value under key for ttl (ttl <= 0 uses the default TTL).
// A new key arriving at a full store first triggers an expiry sweep and,
// if still full, eviction of the oldest entry by creation time.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.clock.Now()

	s.mu.Lock()
	var (
		swept   int
		evicted string
	)
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxSize {
		swept = s.sweepLocked(now)
		if len(s.entries) >= s.maxSize {
			evicted = s.evictOldestLocked()
		}
	}
	s.seq++
	s.entries[key] = &entry{value: value, createdAt: now, ttl: ttl, seq: s.seq}
	s.sets++
	size := len(s.entries)
	s.mu.Unlock()

	s.metrics.recordSet()
	s.metrics.recordExpirations(swept)
	if evicted != "" {
		s.metrics.recordEviction()
		s.logger.Debug("cache entry evicted", zap.String("key", evicted), zap.Int("size", size))
	}
	s.metrics.updateSize(size)
}

// Delete removes key. It reports whether anything was removed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	_, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		s.deletes++
	}
	size := len(s.entries)
	s.mu.Unlock()

	if ok {
		s.metrics.recordDeletes(1)
		s.metrics.updateSize(size)
	}
	return ok
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (s *Store) DeletePrefix(prefix string) int {
	s.mu.Lock()
	removed := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			removed++
		}
	}
	s.deletes += int64(removed)
	size := len(s.entries)
	s.mu.Unlock()

	s.metrics.recordDeletes(removed)
	s.metrics.updateSize(size)
	return removed
}

// Clear removes every entry and returns how many there were.
func (s *Store) Clear() int {
	s.mu.Lock()
	removed := len(s.entries)
	s.entries = make(map[string]*entry)
	s.deletes += int64(removed)
	s.mu.Unlock()

	s.metrics.recordDeletes(removed)
	s.metrics.updateSize(0)
	return removed
}

// Sweep removes every expired entry and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	removed := s.sweepLocked(now)
	size := len(s.entries)
	s.mu.Unlock()

	s.metrics.recordExpirations(removed)
	s.metrics.updateSize(size)
	return removed
}

// Len is the physical entry count, expired entries included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	s.expirations += int64(removed)
	return removed
}

func (s *Store) evictOldestLocked() string {
	var (
		oldestKey string
		oldest    *entry
	)
	for k, e := range s.entries {
		if oldest == nil ||
			e.createdAt.Before(oldest.createdAt) ||
			(e.createdAt.Equal(oldest.createdAt) && e.seq < oldest.seq) {
			oldestKey, oldest = k, e
		}
	}
	if oldest != nil {
		delete(s.entries, oldestKey)
		s.evictions++
	}
	return oldestKey
}

// =============================================================================
// STATS
// =============================================================================

type Stats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Utilization float64 `json:"utilization"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
}

// HitRatio is hits / (hits + misses), 0 before any lookup.
func (st Stats) HitRatio() float64 {
	total := st.Hits + st.Misses
	if total == 0 {
		return 0
	}
	return float64(st.Hits) / float64(total)
}

// Stats sweeps expired entries, then reports size and counters.
func (s *Store) Stats() Stats {
	now := s.clock.Now()

	s.mu.Lock()
	swept := s.sweepLocked(now)
	st := Stats{
		Size:        len(s.entries),
		MaxSize:     s.maxSize,
		Utilization: float64(len(s.entries)) / float64(s.maxSize),
		Hits:        s.hits,
		Misses:      s.misses,
		Sets:        s.sets,
		Deletes:     s.deletes,
		Evictions:   s.evictions,
		Expirations: s.expirations,
	}
	s.mu.Unlock()

	s.metrics.recordExpirations(swept)
	s.metrics.updateSize(st.Size)
	return st
}
