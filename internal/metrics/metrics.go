// Package metrics holds the Prometheus collectors of the build pipeline.
//
// A nil *Collector is valid and records nothing, so components can be used
// without metrics wiring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultOK     = "ok"
	ResultCached = "cached"
	ResultCycle  = "cycle"
	ResultError  = "error"
)

// Collector groups the collectors of one application instance.
type Collector struct {
	resolutions     *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	cycles          prometheus.Counter
	captures        *prometheus.CounterVec
	aggregations    *prometheus.CounterVec
	instances       prometheus.Counter
	freezes         *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when reg is not nil.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookwire_extension_resolutions_total",
				Help: "Number of extension dependency resolutions by result.",
			},
			[]string{"result"},
		),
		resolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hookwire_extension_resolution_duration_seconds",
				Help:    "Time taken to build and validate an extension dependency graph.",
				Buckets: prometheus.DefBuckets,
			},
		),
		cycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hookwire_extension_cycles_total",
				Help: "Number of dependency cycles detected.",
			},
		),
		captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookwire_scan_captures_total",
				Help: "Number of captures emitted by class scans, by variant.",
			},
			[]string{"variant"},
		),
		aggregations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookwire_hook_aggregations_total",
				Help: "Number of hook aggregations built, by result.",
			},
			[]string{"result"},
		),
		instances: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hookwire_extension_instances_total",
				Help: "Number of extension instances created across all scopes.",
			},
		),
		freezes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookwire_scope_freezes_total",
				Help: "Number of configuration scopes frozen, by result.",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			c.resolutions,
			c.resolveDuration,
			c.cycles,
			c.captures,
			c.aggregations,
			c.instances,
			c.freezes,
		)
	}
	return c
}

// Resolution records one dependency resolution. A zero duration skips the
// histogram, which is how cache hits are recorded.
func (c *Collector) Resolution(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.resolutions.WithLabelValues(result).Inc()
	if result == ResultCycle {
		c.cycles.Inc()
	}
	if d > 0 {
		c.resolveDuration.Observe(d.Seconds())
	}
}

// Capture records one emitted capture.
func (c *Collector) Capture(variant string) {
	if c == nil {
		return
	}
	c.captures.WithLabelValues(variant).Inc()
}

// Aggregation records one finished aggregation.
func (c *Collector) Aggregation(result string) {
	if c == nil {
		return
	}
	c.aggregations.WithLabelValues(result).Inc()
}

// Instance records one extension instantiation.
func (c *Collector) Instance() {
	if c == nil {
		return
	}
	c.instances.Inc()
}

// Freeze records one scope freeze.
func (c *Collector) Freeze(result string) {
	if c == nil {
		return
	}
	c.freezes.WithLabelValues(result).Inc()
}
