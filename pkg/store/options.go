package store

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/statecell/pkg/microtask"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	name      string
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	scheduler microtask.Scheduler
	parent    context.Context
}

// WithName sets the store name used in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records store activity on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for effect runs and destroy.
// Default: otel.Tracer("statecell").
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithScheduler sets the scheduler that drives debounced selectors.
// Default: a microtask.Queue drained by Store.Flush, so a synchronous
// burst of commits always coalesces. A microtask.Loop flushes on its own
// goroutine and may deliver between two commits of a burst.
func WithScheduler(s microtask.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithContext ties the store to ctx: the store is destroyed when ctx is done.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.parent = ctx
	}
}

// SelectOption configures a selector.
type SelectOption func(*selectConfig)

type selectConfig struct {
	name     string
	debounce bool
	equal    any
}

// Debounce coalesces the selector's emissions to the next scheduler
// boundary. Only the latest value computed before the boundary is emitted.
func Debounce() SelectOption {
	return func(c *selectConfig) {
		c.debounce = true
	}
}

// Named labels the selector in logs and metrics.
func Named(name string) SelectOption {
	return func(c *selectConfig) {
		c.name = name
	}
}

// WithEqual replaces the default distinctness check. It is called as
// equal(previousEmitted, candidate); a candidate is emitted only when equal
// returns false. T must match the selector's value type.
func WithEqual[T any](equal func(prev, next T) bool) SelectOption {
	return func(c *selectConfig) {
		c.equal = equal
	}
}

// EffectOption configures an effect.
type EffectOption func(*effectConfig)

type effectConfig struct {
	name string
}

// EffectName labels the effect in logs, spans and metrics.
func EffectName(name string) EffectOption {
	return func(c *effectConfig) {
		c.name = name
	}
}
