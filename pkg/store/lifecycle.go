package store

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/statecell/pkg/stream"
)

// OnDestroy registers fn to run when the store is destroyed. Cleanups run
// in reverse order of registration. If the store is already destroyed fn
// runs immediately.
func (c *core) OnDestroy(fn func()) {
	if fn == nil {
		return
	}
	c.cleanupsMu.Lock()
	if c.destroyed.Load() {
		c.cleanupsMu.Unlock()
		fn()
		return
	}
	c.cleanups = append(c.cleanups, fn)
	c.cleanupsMu.Unlock()
}

// Context returns a context cancelled when the store is destroyed.
func (c *core) Context() context.Context {
	return c.ctx
}

// Done is closed when the store is destroyed.
func (c *core) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Destroyed reports whether Destroy has completed.
func (c *core) Destroyed() bool {
	return c.destroyed.Load()
}

// Destroy tears the store down: debounced selectors deliver their buffered
// value, every selector completes, every effect run is cancelled and
// OnDestroy cleanups run. Later mutations are ignored. Destroy is
// idempotent; when called from outside the store's callbacks it returns
// after teardown has finished.
func (c *core) Destroy() {
	gid := goroutineID()

	c.writeMu.Lock()
	if c.destroying {
		c.writeMu.Unlock()
		return
	}
	c.destroying = true
	c.gate.enqueue(c.teardown)
	c.writeMu.Unlock()

	c.gate.kick(gid)
}

// teardown runs on the gate, after every commit made before Destroy was
// called has been propagated.
func (c *core) teardown() {
	_, span := c.tracer.Start(c.ctx, "statecell.destroy",
		trace.WithAttributes(attribute.String("statecell.store", c.name)),
	)
	defer span.End()

	c.closing = true
	p := newPass()
	for _, n := range c.nodes {
		if n.buffered() {
			p.enqueue(n)
		}
	}
	p.run()

	c.destroyed.Store(true)

	nodes := c.nodes
	c.nodes = nil
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].rank() != nodes[j].rank() {
			return nodes[i].rank() < nodes[j].rank()
		}
		return nodes[i].nodeID() < nodes[j].nodeID()
	})
	for _, n := range nodes {
		n.finish()
	}

	c.cancelRuns()

	c.cleanupsMu.Lock()
	cleanups := c.cleanups
	c.cleanups = nil
	c.cleanupsMu.Unlock()
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := stream.Catch(cleanups[i]); err != nil {
			c.logger.Error("destroy cleanup panicked", "error", err)
		}
	}

	c.cancel()
	c.metrics.destroyed(c.name)
	c.logger.Debug("store destroyed", "selectors", len(nodes))
}
