package incremental

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the controller metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "propgen").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for pass duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the controller metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "propgen",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus metrics of a controller.
// A nil *Metrics records nothing.
type Metrics struct {
	passesTotal  *prometheus.CounterVec
	passDuration prometheus.Histogram
	members      *prometheus.CounterVec
	artifacts    *prometheus.CounterVec
	diagnostics  *prometheus.CounterVec
	cached       prometheus.Gauge
}

// NewMetrics registers the controller metrics.
//
// Metrics collected:
//   - propgen_passes_total: Counter of passes by status (ok, cancelled)
//   - propgen_pass_duration_seconds: Histogram of pass duration
//   - propgen_members_total: Counter of members by result (scanned, memoized)
//   - propgen_artifacts_total: Counter of artifacts by result (emitted, reused, remote, removed)
//   - propgen_diagnostics_total: Counter of diagnostics by code
//   - propgen_cached_artifacts: Gauge of artifacts held by the group cache
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		passesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "passes_total",
			Help:        "Total number of generation passes",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pass_duration_seconds",
			Help:        "Generation pass duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		members: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "members_total",
			Help:        "Total number of members visited by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		artifacts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "artifacts_total",
			Help:        "Total number of artifacts by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "diagnostics_total",
			Help:        "Total number of diagnostics by code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),

		cached: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cached_artifacts",
			Help:        "Number of artifacts held by the group cache",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) recordPass(res *Result, d time.Duration) {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues("ok").Inc()
	m.passDuration.Observe(d.Seconds())
	m.members.WithLabelValues("scanned").Add(float64(res.Stats.Scanned))
	m.members.WithLabelValues("memoized").Add(float64(res.Stats.Memoized))
	m.artifacts.WithLabelValues("emitted").Add(float64(res.Stats.Emitted))
	m.artifacts.WithLabelValues("reused").Add(float64(res.Stats.Reused))
	m.artifacts.WithLabelValues("remote").Add(float64(res.Stats.Remote))
	m.artifacts.WithLabelValues("removed").Add(float64(res.Stats.Removed))
	for _, d := range res.Diagnostics {
		m.diagnostics.WithLabelValues(d.Code).Inc()
	}
	m.cached.Set(float64(len(res.Artifacts)))
}

func (m *Metrics) recordCancel() {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues("cancelled").Inc()
}
