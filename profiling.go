package oit

import (
	"maps"
	"sync"
	"time"
)

// ProfilingSink receives named phase durations after every frame.
type ProfilingSink interface {
	Record(name string, d time.Duration)
}

// Metric is the state of one named value in a MetricsRegistry.
type Metric struct {
	Latest time.Duration
	Total  time.Duration
	Count  int
}

// Average returns Total / Count.
func (m Metric) Average() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.Total / time.Duration(m.Count)
}

// MetricsRegistry is a ProfilingSink that keeps the latest value and a
// running total per name. Safe for concurrent use.
type MetricsRegistry struct {
	mu      sync.Mutex
	metrics map[string]Metric
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{metrics: make(map[string]Metric)}
}

// Record implements ProfilingSink.
func (r *MetricsRegistry) Record(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.metrics[name]
	m.Latest = d
	m.Total += d
	m.Count++
	r.metrics[name] = m
}

// Snapshot returns a copy of every metric.
func (r *MetricsRegistry) Snapshot() map[string]Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.metrics)
}

// Reset discards every metric.
func (r *MetricsRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.metrics)
}
