// Package metrics exposes Prometheus collectors for the derivation service.
// All methods are safe on a nil *Metrics, so callers never need to check
// whether metrics are enabled.
package metrics

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrypster/stacksense/internal/cache"
)

const namespace = "stacksense"

// Derivation modes.
const (
	ModeAuthoritative = "authoritative"
	ModeSpeculative   = "speculative"
)

// Log write operations.
const (
	OpAdd    = "add"
	OpDelete = "delete"
)

// Metrics owns a registry and the service-level collectors.
type Metrics struct {
	registry      *prometheus.Registry
	derivations   *prometheus.CounterVec
	deriveSeconds prometheus.Histogram
	logWrites     *prometheus.CounterVec
	ruleImports   prometheus.Counter
	events        prometheus.Counter
}

// New creates a registry holding the Go runtime and process collectors
// plus the service collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		derivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derivations_total",
			Help:      "Snapshot requests by mode, cached or not.",
		}, []string{"mode"}),
		deriveSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "derive_duration_seconds",
			Help:      "Time spent computing snapshots that missed the cache.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		logWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_writes_total",
			Help:      "Intake log writes by operation.",
		}, []string{"op"}),
		ruleImports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_imports_total",
			Help:      "Rule snapshots made live.",
		}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to subscribers.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.derivations,
		m.deriveSeconds,
		m.logWrites,
		m.ruleImports,
		m.events,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Derivation counts one snapshot request.
func (m *Metrics) Derivation(mode string) {
	if m == nil {
		return
	}
	m.derivations.WithLabelValues(mode).Inc()
}

// ObserveCompute records the time spent in a cache-missing derivation.
func (m *Metrics) ObserveCompute(d time.Duration) {
	if m == nil {
		return
	}
	m.deriveSeconds.Observe(d.Seconds())
}

// LogWrite counts one stored or deleted intake log.
func (m *Metrics) LogWrite(op string) {
	if m == nil {
		return
	}
	m.logWrites.WithLabelValues(op).Inc()
}

// RulesImported counts one rule import.
func (m *Metrics) RulesImported() {
	if m == nil {
		return
	}
	m.ruleImports.Inc()
}

// EventPublished counts one published event.
func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.events.Inc()
}

// RegisterCache exposes snapshot cache statistics read from stats.
func (m *Metrics) RegisterCache(stats func() cache.Stats) error {
	if m == nil {
		return nil
	}
	return registerAll(m.registry,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Snapshot cache hits.",
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Snapshot cache misses.",
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Snapshots currently cached.",
		}, func() float64 { return float64(stats().Size) }),
	)
}

// RegisterBreaker exposes the storage circuit breaker state as
// 0 (closed), 1 (half-open) or 2 (open).
func (m *Metrics) RegisterBreaker(state func() string) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "breaker_state",
		Help:      "Storage circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, func() float64 { return BreakerStateValue(state()) }))
}

// RegisterDB exposes database/sql pool statistics.
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	if m == nil || db == nil {
		return nil
	}
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// BreakerStateValue maps a breaker state name to its gauge value.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
