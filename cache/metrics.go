package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// cacheMetrics mirrors the store counters into Prometheus. Every method is
// safe on a nil receiver so a store without metrics pays nothing.
type cacheMetrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	sets        prometheus.Counter
	deletes     prometheus.Counter
	evictions   prometheus.Counter
	expirations prometheus.Counter

	size prometheus.Gauge
}

func newCacheMetrics(component string) *cacheMetrics {
	labels := prometheus.Labels{"component": component}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "poultry",
			Subsystem:   "cache",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}
	return &cacheMetrics{
		hits:        counter("hits_total", "Total number of cache hits"),
		misses:      counter("misses_total", "Total number of cache misses"),
		sets:        counter("sets_total", "Total number of cache set operations"),
		deletes:     counter("deletes_total", "Total number of entries removed by delete, prefix delete or clear"),
		evictions:   counter("evictions_total", "Total number of capacity evictions"),
		expirations: counter("expirations_total", "Total number of entries removed after their TTL elapsed"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "poultry",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of entries in cache",
		}),
	}
}

func (m *cacheMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.hits, m.misses, m.sets, m.deletes, m.evictions, m.expirations, m.size}
}

// RegisterMetrics exports the store counters on reg, labelled with component.
// Call it once, before the store is shared between goroutines.
func (s *Store) RegisterMetrics(reg prometheus.Registerer, component string) error {
	m := newCacheMetrics(component)
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	s.metrics = m
	return nil
}

func (m *cacheMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) recordSet() {
	if m != nil {
		m.sets.Inc()
	}
}

func (m *cacheMetrics) recordDeletes(n int) {
	if m != nil && n > 0 {
		m.deletes.Add(float64(n))
	}
}

func (m *cacheMetrics) recordEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *cacheMetrics) recordExpirations(n int) {
	if m != nil && n > 0 {
		m.expirations.Add(float64(n))
	}
}

func (m *cacheMetrics) updateSize(size int) {
	if m != nil {
		m.size.Set(float64(size))
	}
}
