package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/statecell/internal/errors"
	"github.com/vango-dev/statecell/pkg/microtask"
	"github.com/vango-dev/statecell/pkg/stream"
)

// core is the type-independent part of a store: the gate, the selector
// registry and the lifecycle. Fields below gate are only touched by the
// goroutine that owns the gate.
type core struct {
	id        string
	name      string
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	scheduler microtask.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	// writeMu orders commits against each other and against Destroy.
	writeMu    sync.Mutex
	destroying bool

	gate gate

	nodes      []node
	nextNodeID uint64
	batchDepth int
	batched    func()
	closing    bool
	destroyed  atomic.Bool

	runsMu     sync.Mutex
	runs       map[uint64]*stream.Subscription
	nextRun    uint64
	runsClosed bool

	cleanupsMu sync.Mutex
	cleanups   []func()
}

// Store holds one snapshot of type S and derives change streams from it.
//
// All methods are safe for concurrent use. Mutations are linearised; each
// committed snapshot is propagated to active selectors in commit order.
type Store[S any] struct {
	*core

	state atomic.Pointer[S]
	root  *root[S]

	changesOnce sync.Once
	changes     *Selector[S]
}

// New creates a store holding initial.
func New[S any](initial S, opts ...Option) *Store[S] {
	o := options{name: "store"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("statecell")
	}
	if o.scheduler == nil {
		o.scheduler = microtask.NewQueue()
	}

	c := &core{
		id:        uuid.NewString(),
		name:      o.name,
		metrics:   o.metrics,
		tracer:    o.tracer,
		scheduler: o.scheduler,
		runs:      make(map[uint64]*stream.Subscription),
	}
	c.logger = o.logger.With("store", c.name, "store_id", c.id)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	s := &Store[S]{core: c}
	s.state.Store(&initial)
	s.root = &root[S]{c: c, value: initial}

	if o.parent != nil {
		stop := context.AfterFunc(o.parent, s.Destroy)
		s.OnDestroy(func() { stop() })
	}

	c.logger.Debug("store created")
	return s
}

// ID returns the store's unique id.
func (s *Store[S]) ID() string {
	return s.id
}

// Name returns the store's name.
func (s *Store[S]) Name() string {
	return s.name
}

// Get returns the latest committed snapshot.
func (s *Store[S]) Get() S {
	return *s.state.Load()
}

// Project applies fn to the latest committed snapshot.
func Project[S, O any](s *Store[S], fn func(S) O) O {
	return fn(s.Get())
}

// Changes returns a selector over the whole snapshot.
func (s *Store[S]) Changes() *Selector[S] {
	s.changesOnce.Do(func() {
		s.changes = Select(s, func(v S) S { return v }, Named("state"))
	})
	return s.changes
}

// Flush drains the store's scheduler if it supports flushing, delivering
// pending debounced emissions. Called from inside a subscriber, effect or
// Batch it returns immediately: the pending work would need the gate the
// caller is holding.
func (s *Store[S]) Flush() {
	if s.gate.isOwner(goroutineID()) {
		return
	}
	if f, ok := s.scheduler.(microtask.Flusher); ok {
		f.Flush()
	}
}

// Batch runs fn while holding the store's gate. Commits made inside fn are
// published as one propagation pass when fn returns, and work from other
// goroutines waits until then.
func (s *Store[S]) Batch(fn func()) {
	c := s.core
	c.gate.exclusive(goroutineID(), func() {
		c.batchDepth++
		defer func() {
			c.batchDepth--
			if c.batchDepth == 0 && c.batched != nil {
				publish := c.batched
				c.batched = nil
				c.gate.enqueue(publish)
			}
		}()
		fn()
	})
}

// commit computes the next snapshot under the write lock, stores it and
// schedules its propagation. Panics in compute reach the caller.
func (s *Store[S]) commit(op string, compute func(cur S) (S, error)) error {
	c := s.core
	gid := goroutineID()

	rejected, err := func() (bool, error) {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		if c.destroying {
			return true, nil
		}
		next, err := compute(*s.state.Load())
		if err != nil {
			return false, err
		}
		s.state.Store(&next)

		publish := func() { s.root.publish(next) }
		if c.gate.isOwner(gid) && c.batchDepth > 0 {
			c.batched = publish
		} else {
			c.gate.enqueue(publish)
		}
		return false, nil
	}()
	if rejected {
		c.metrics.reject(c.name, op)
		c.logger.Warn("mutation after destroy ignored", "op", op, "code", errors.CodeMutateAfterDestroy)
		return nil
	}
	if err != nil {
		return err
	}

	c.gate.kick(gid)
	return nil
}
