package store

import (
	"github.com/vango-dev/statecell/internal/errors"
	"github.com/vango-dev/statecell/pkg/stream"
)

// Readable is a selector of any value type. It lets selectors of different
// types feed one view-model.
type Readable interface {
	graphNode() node
	owner() *core
	read() any
}

// Selector is a derived, distinct stream of values computed from a store
// or from other selectors.
//
// A selector is cold until its first subscriber arrives; it then computes
// its value from the current snapshot, delivers it synchronously (unless
// debounced) and replays the last emitted value to every later
// subscriber. When the last subscriber leaves it forgets its value.
type Selector[T any] struct {
	c        *core
	id       uint64
	name     string
	rnk      int
	ups      []node
	compute  func() T
	equal    func(prev, next T) bool
	debounce bool

	// Owned by the gate.
	subs       []*subscriber[T]
	downs      []node
	refs       int
	value      T
	has        bool
	pending    T
	hasPending bool
	scheduled  bool
	gen        uint64
	done       bool
	err        error
}

type subscriber[T any] struct {
	observer stream.Observer[T]
	sub      *stream.Subscription
	closed   bool
}

func newSelector[T any](c *core, ups []node, compute func() T, opts []SelectOption) *Selector[T] {
	config := selectConfig{name: "selector"}
	for _, opt := range opts {
		opt(&config)
	}

	equal := identical[T]
	if config.equal != nil {
		fn, ok := config.equal.(func(prev, next T) bool)
		if !ok {
			panic(errors.New(errors.CodeEqualType).WithDetailf("selector %q: got %T", config.name, config.equal))
		}
		equal = fn
	}

	rank := 0
	for _, up := range ups {
		rank = max(rank, up.rank())
	}

	s := &Selector[T]{
		c:        c,
		name:     config.name,
		rnk:      rank + 1,
		ups:      ups,
		compute:  compute,
		equal:    equal,
		debounce: config.debounce,
	}

	c.gate.exclusive(goroutineID(), func() {
		c.nextNodeID++
		s.id = c.nextNodeID
		if c.destroyed.Load() {
			s.done = true
			return
		}
		c.nodes = append(c.nodes, s)
	})
	return s
}

// Name returns the selector's name.
func (s *Selector[T]) Name() string {
	return s.name
}

// Subscribe registers o. The current value, if any, is delivered before
// Subscribe returns. After the store is destroyed o is completed
// immediately.
func (s *Selector[T]) Subscribe(o stream.Observer[T]) *stream.Subscription {
	sub := stream.NewSubscription()
	ob := &subscriber[T]{observer: o, sub: sub}
	sub.Add(func() {
		s.c.gate.exclusive(goroutineID(), func() { s.removeSubscriber(ob) })
	})
	s.c.gate.exclusive(goroutineID(), func() { s.addSubscriber(ob) })
	return sub
}

// Value returns the last emitted value and whether there is one.
func (s *Selector[T]) Value() (v T, ok bool) {
	s.c.gate.exclusive(goroutineID(), func() {
		v, ok = s.value, s.has
	})
	return v, ok
}

// Observers returns the number of direct subscribers.
func (s *Selector[T]) Observers() (n int) {
	s.c.gate.exclusive(goroutineID(), func() {
		n = len(s.subs)
	})
	return n
}

// Active reports whether anything, a subscriber or a dependent selector,
// holds the selector.
func (s *Selector[T]) Active() (active bool) {
	s.c.gate.exclusive(goroutineID(), func() {
		active = s.refs > 0
	})
	return active
}

func (s *Selector[T]) graphNode() node { return s }
func (s *Selector[T]) owner() *core { return s.c }
func (s *Selector[T]) read() any { return s.value }

func (s *Selector[T]) nodeID() uint64 { return s.id }
func (s *Selector[T]) rank() int { return s.rnk }
func (s *Selector[T]) ready() bool { return s.has }

func (s *Selector[T]) addSubscriber(ob *subscriber[T]) {
	if ob.closed || ob.sub.IsClosed() {
		return
	}
	if s.done {
		s.terminate(ob)
		return
	}
	s.subs = append(s.subs, ob)
	s.retain()
	if s.done || ob.closed || !s.has {
		return
	}
	s.deliver(ob, s.value)
}

func (s *Selector[T]) removeSubscriber(ob *subscriber[T]) {
	ob.closed = true
	for i, x := range s.subs {
		if x == ob {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			s.release()
			return
		}
	}
}

func (s *Selector[T]) attach(down node) {
	if s.done {
		if s.err != nil {
			down.upstreamFailed(s.err)
		}
		return
	}
	s.downs = append(s.downs, down)
	s.retain()
}

func (s *Selector[T]) detach(down node) {
	if !containsNode(s.downs, down) {
		return
	}
	s.downs = removeNode(s.downs, down)
	s.release()
}

func (s *Selector[T]) retain() {
	s.refs++
	if s.refs == 1 {
		s.activate()
	}
}

func (s *Selector[T]) release() {
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		s.deactivate()
	}
}

func (s *Selector[T]) activate() {
	s.gen++
	s.c.metrics.selectorActive(s.c.name, 1)
	for _, up := range s.ups {
		up.attach(s)
		if s.done {
			return
		}
	}
	s.seed()
}

func (s *Selector[T]) deactivate() {
	for _, up := range s.ups {
		up.detach(s)
	}
	var zero T
	s.value, s.has = zero, false
	s.clearPending()
	s.gen++
	s.c.metrics.selectorActive(s.c.name, -1)
}

func (s *Selector[T]) upstreamReady() bool {
	for _, up := range s.ups {
		if !up.ready() {
			return false
		}
	}
	return true
}

// seed computes the first value after activation. It is not an emission
// towards dependents: they seed themselves once all of their upstreams
// are attached.
func (s *Selector[T]) seed() {
	if !s.upstreamReady() {
		return
	}
	v, err := s.eval()
	if err != nil {
		s.fail(err)
		return
	}
	if s.debounce {
		s.buffer(v)
		return
	}
	s.value, s.has = v, true
	s.c.metrics.emit(s.c.name, s.name)
}

func (s *Selector[T]) refresh(p *pass) {
	if s.done || s.refs == 0 {
		return
	}

	var v T
	if s.c.closing && s.hasPending && !p.dirty[s.id] {
		v = s.pending
	} else {
		if !s.upstreamReady() {
			return
		}
		var err error
		if v, err = s.eval(); err != nil {
			s.fail(err)
			return
		}
	}

	if s.debounce && !s.c.closing {
		s.buffer(v)
		return
	}
	s.clearPending()
	s.emit(p, v)
}

func (s *Selector[T]) buffered() bool {
	return s.hasPending && !s.done && s.refs > 0
}

func (s *Selector[T]) eval() (T, error) {
	s.c.metrics.recompute(s.c.name, s.name)
	var v T
	if err := stream.Catch(func() { v = s.compute() }); err != nil {
		return v, errors.New(errors.CodeSelectorPanic).WithDetail(s.name).Wrap(err)
	}
	return v, nil
}

// emit delivers v unless it equals the last emitted value, then queues
// dependents on p.
func (s *Selector[T]) emit(p *pass, v T) {
	if s.has {
		var same bool
		if err := stream.Catch(func() { same = s.equal(s.value, v) }); err != nil {
			s.fail(errors.New(errors.CodeEqualPanic).WithDetail(s.name).Wrap(err))
			return
		}
		if same {
			return
		}
	}

	s.value, s.has = v, true
	s.c.metrics.emit(s.c.name, s.name)
	for _, ob := range s.subs {
		s.deliver(ob, v)
	}
	for _, d := range s.downs {
		p.mark(d)
	}
}

func (s *Selector[T]) buffer(v T) {
	s.pending, s.hasPending = v, true
	if s.scheduled {
		return
	}
	s.scheduled = true
	gen, c := s.gen, s.c
	c.scheduler.Schedule(func() {
		c.gate.post(goroutineID(), func() { s.flush(gen) })
	})
}

func (s *Selector[T]) flush(gen uint64) {
	if s.done || gen != s.gen || !s.hasPending {
		return
	}
	v := s.pending
	s.clearPending()

	p := newPass()
	s.emit(p, v)
	p.run()
}

func (s *Selector[T]) clearPending() {
	var zero T
	s.pending, s.hasPending, s.scheduled = zero, false, false
}

func (s *Selector[T]) deliver(ob *subscriber[T], v T) {
	if ob.closed || ob.observer.Next == nil {
		return
	}
	if err := stream.Catch(func() { ob.observer.Next(v) }); err != nil {
		s.c.logger.Error("selector subscriber panicked", "selector", s.name, "error", err)
	}
}

func (s *Selector[T]) terminate(ob *subscriber[T]) {
	if ob.closed {
		return
	}
	ob.closed = true

	var err error
	switch {
	case s.err != nil && ob.observer.Error != nil:
		err = stream.Catch(func() { ob.observer.Error(s.err) })
	case s.err != nil:
		stream.UnhandledError(s.err)
	case ob.observer.Complete != nil:
		err = stream.Catch(ob.observer.Complete)
	}
	if err != nil {
		s.c.logger.Error("selector subscriber panicked", "selector", s.name, "error", err)
	}
	ob.sub.Unsubscribe()
}

// fail terminates the selector with err and propagates the failure to its
// dependents.
func (s *Selector[T]) fail(err error) {
	if s.done {
		return
	}
	s.done, s.err = true, err
	s.c.metrics.selectorError(s.c.name, s.name)
	s.c.logger.Error("selector failed", "selector", s.name, "error", err)

	subs, downs := s.subs, s.downs
	s.subs, s.downs = nil, nil
	if s.refs > 0 {
		s.refs = 0
		s.c.metrics.selectorActive(s.c.name, -1)
	}
	s.clearPending()
	for _, up := range s.ups {
		up.detach(s)
	}

	for _, ob := range subs {
		s.terminate(ob)
	}
	for _, d := range downs {
		d.upstreamFailed(err)
	}
}

func (s *Selector[T]) upstreamFailed(err error) {
	s.fail(errors.New(errors.CodeUpstreamError).WithDetail(s.name).Wrap(err))
}

// finish completes every subscriber. Called once, in rank order, when the
// store is destroyed.
func (s *Selector[T]) finish() {
	if s.done {
		return
	}
	s.done = true

	subs := s.subs
	s.subs, s.downs = nil, nil
	if s.refs > 0 {
		s.refs = 0
		s.c.metrics.selectorActive(s.c.name, -1)
	}
	s.clearPending()

	for _, ob := range subs {
		s.terminate(ob)
	}
}
