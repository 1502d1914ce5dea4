package store

import (
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/statecell/internal/errors"
	"github.com/vango-dev/statecell/pkg/stream"
)

// Unit is the payload of effects that take no input.
type Unit = struct{}

// EffectHandle starts runs of an effect pipeline.
type EffectHandle[V any] struct {
	c      *core
	name   string
	launch func(src stream.Source[V], fail func(error), done func()) *stream.Subscription
}

// Effect binds pipeline to the store. Every Trigger or TriggerFrom call
// starts an independent run: the pipeline is applied to that call's input
// and its output is subscribed until it completes, errors, is cancelled
// through the returned subscription, or the store is destroyed. Output
// values are discarded; effects act through the store's mutation methods.
func Effect[S, V, R any](s *Store[S], pipeline func(stream.Source[V]) stream.Source[R], opts ...EffectOption) *EffectHandle[V] {
	config := effectConfig{name: "effect"}
	for _, opt := range opts {
		opt(&config)
	}

	return &EffectHandle[V]{
		c:    s.core,
		name: config.name,
		launch: func(src stream.Source[V], fail func(error), done func()) *stream.Subscription {
			var out stream.Source[R]
			if err := stream.Catch(func() { out = pipeline(src) }); err != nil {
				fail(errors.New(errors.CodePipelinePanic).Wrap(err))
				return stream.Closed()
			}
			return out.Subscribe(stream.Observer[R]{Error: fail, Complete: done})
		},
	}
}

// Name returns the effect's name.
func (h *EffectHandle[V]) Name() string {
	return h.name
}

// Trigger starts a run whose input emits v once and completes.
func (h *EffectHandle[V]) Trigger(v V) *stream.Subscription {
	return h.start(stream.Of(v))
}

// TriggerFrom starts a run fed by src. The run forwards every value of src
// until src completes or the run is cancelled.
func (h *EffectHandle[V]) TriggerFrom(src stream.Source[V]) *stream.Subscription {
	return h.start(src)
}

func (h *EffectHandle[V]) start(src stream.Source[V]) *stream.Subscription {
	c := h.c
	run := stream.NewSubscription()

	runID := uuid.NewString()
	id, ok := c.trackRun(run)
	if !ok {
		c.logger.Warn("effect triggered after destroy", "effect", h.name, "run_id", runID)
		run.Unsubscribe()
		return run
	}

	_, span := c.tracer.Start(c.ctx, "statecell.effect",
		trace.WithAttributes(
			attribute.String("statecell.store", c.name),
			attribute.String("statecell.effect", h.name),
			attribute.String("statecell.run_id", runID),
		),
	)
	c.metrics.runStarted(c.name, h.name)
	logger := c.logger.With("effect", h.name, "run_id", runID)
	logger.Debug("effect run started")

	run.Add(func() {
		c.untrackRun(id)
		c.metrics.runEnded(c.name)
		span.End()
		logger.Debug("effect run ended")
	})

	fail := func(err error) {
		err = errors.FromError(err, errors.CodePipelineError)
		c.metrics.runFailed(c.name, h.name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("effect run failed", "error", err)
		run.Unsubscribe()
	}

	inner := h.launch(src, fail, run.Unsubscribe)
	run.Add(inner.Unsubscribe)
	return run
}

// trackRun registers a live run so Destroy can cancel it.
func (c *core) trackRun(run *stream.Subscription) (uint64, bool) {
	c.runsMu.Lock()
	defer c.runsMu.Unlock()
	if c.runsClosed {
		return 0, false
	}
	c.nextRun++
	c.runs[c.nextRun] = run
	return c.nextRun, true
}

func (c *core) untrackRun(id uint64) {
	c.runsMu.Lock()
	delete(c.runs, id)
	c.runsMu.Unlock()
}

// cancelRuns closes the run registry and cancels every live run.
func (c *core) cancelRuns() {
	c.runsMu.Lock()
	c.runsClosed = true
	runs := make([]*stream.Subscription, 0, len(c.runs))
	for _, run := range c.runs {
		runs = append(runs, run)
	}
	c.runsMu.Unlock()

	for _, run := range runs {
		run.Unsubscribe()
	}
}
