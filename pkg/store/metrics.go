package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors of a store.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "statecell").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
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
		Namespace: "statecell",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors shared by every store constructed with
// WithMetrics. Series are labelled by store name. A nil *Metrics records
// nothing.
type Metrics struct {
	commits         *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	recomputes      *prometheus.CounterVec
	emissions       *prometheus.CounterVec
	selectorErrors  *prometheus.CounterVec
	activeSelectors *prometheus.GaugeVec
	effectRuns      *prometheus.CounterVec
	effectErrors    *prometheus.CounterVec
	activeRuns      *prometheus.GaugeVec
	destroys        *prometheus.CounterVec
}

// NewMetrics creates and registers the store collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		commits:         counter("commits_total", "Total number of committed snapshots", "store"),
		rejected:        counter("mutations_rejected_total", "Mutations ignored because the store was destroyed", "store", "op"),
		recomputes:      counter("selector_recomputes_total", "Selector function evaluations", "store", "selector"),
		emissions:       counter("selector_emissions_total", "Distinct values emitted by selectors", "store", "selector"),
		selectorErrors:  counter("selector_errors_total", "Selectors terminated by an error", "store", "selector"),
		activeSelectors: gauge("active_selectors", "Selectors with at least one subscriber", "store"),
		effectRuns:      counter("effect_runs_total", "Effect runs started", "store", "effect"),
		effectErrors:    counter("effect_errors_total", "Effect runs ended by an error", "store", "effect"),
		activeRuns:      gauge("active_effect_runs", "Effect runs currently live", "store"),
		destroys:        counter("destroys_total", "Stores destroyed", "store"),
	}
}

func (m *Metrics) commit(store string) {
	if m != nil {
		m.commits.WithLabelValues(store).Inc()
	}
}

func (m *Metrics) reject(store, op string) {
	if m != nil {
		m.rejected.WithLabelValues(store, op).Inc()
	}
}

func (m *Metrics) recompute(store, selector string) {
	if m != nil {
		m.recomputes.WithLabelValues(store, selector).Inc()
	}
}

func (m *Metrics) emit(store, selector string) {
	if m != nil {
		m.emissions.WithLabelValues(store, selector).Inc()
	}
}

func (m *Metrics) selectorError(store, selector string) {
	if m != nil {
		m.selectorErrors.WithLabelValues(store, selector).Inc()
	}
}

func (m *Metrics) selectorActive(store string, delta float64) {
	if m != nil {
		m.activeSelectors.WithLabelValues(store).Add(delta)
	}
}

func (m *Metrics) runStarted(store, effect string) {
	if m != nil {
		m.effectRuns.WithLabelValues(store, effect).Inc()
		m.activeRuns.WithLabelValues(store).Inc()
	}
}

func (m *Metrics) runEnded(store string) {
	if m != nil {
		m.activeRuns.WithLabelValues(store).Dec()
	}
}

func (m *Metrics) runFailed(store, effect string) {
	if m != nil {
		m.effectErrors.WithLabelValues(store, effect).Inc()
	}
}

func (m *Metrics) destroyed(store string) {
	if m != nil {
		m.destroys.WithLabelValues(store).Inc()
	}
}
