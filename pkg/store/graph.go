package store

import (
	"container/heap"
)

// node is a vertex of a store's dependency graph. All methods run on the
// goroutine that owns the store's gate.
type node interface {
	nodeID() uint64
	rank() int
	ready() bool

	// attach registers down as a dependent and retains this node.
	attach(down node)
	// detach drops down and releases this node.
	detach(down node)

	refresh(p *pass)
	buffered() bool
	upstreamFailed(err error)
	finish()
}

// pass is one propagation: dirty nodes are visited in rank order, so every
// node sees all of its upstream changes at once and runs at most once.
type pass struct {
	queue  nodeHeap
	queued map[uint64]bool
	dirty  map[uint64]bool
}

func newPass() *pass {
	return &pass{
		queued: make(map[uint64]bool),
		dirty:  make(map[uint64]bool),
	}
}

// mark queues n because an upstream emitted.
func (p *pass) mark(n node) {
	p.dirty[n.nodeID()] = true
	p.enqueue(n)
}

func (p *pass) enqueue(n node) {
	if p.queued[n.nodeID()] {
		return
	}
	p.queued[n.nodeID()] = true
	heap.Push(&p.queue, n)
}

func (p *pass) run() {
	for p.queue.Len() > 0 {
		n := heap.Pop(&p.queue).(node)
		n.refresh(p)
	}
}

type nodeHeap []node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].rank() != h[j].rank() {
		return h[i].rank() < h[j].rank()
	}
	return h[i].nodeID() < h[j].nodeID()
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any) { *h = append(*h, x.(node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

// root is the rank-zero node holding the last propagated snapshot.
type root[S any] struct {
	c     *core
	value S
	downs []node
}

func (r *root[S]) nodeID() uint64 { return 0 }
func (r *root[S]) rank() int { return 0 }
func (r *root[S]) ready() bool { return true }

func (r *root[S]) attach(down node) {
	r.downs = append(r.downs, down)
}

func (r *root[S]) detach(down node) {
	r.downs = removeNode(r.downs, down)
}

func (r *root[S]) refresh(*pass) {}
func (r *root[S]) buffered() bool { return false }
func (r *root[S]) upstreamFailed(error) {}
func (r *root[S]) finish() { r.downs = nil }

// publish propagates next to every active selector. Snapshots committed
// after destroy began are dropped.
func (r *root[S]) publish(next S) {
	if r.c.destroyed.Load() {
		return
	}
	r.value = next
	r.c.metrics.commit(r.c.name)

	p := newPass()
	for _, d := range r.downs {
		p.mark(d)
	}
	p.run()
}

func removeNode(nodes []node, n node) []node {
	for i, x := range nodes {
		if x == n {
			return append(nodes[:i:i], nodes[i+1:]...)
		}
	}
	return nodes
}

func containsNode(nodes []node, n node) bool {
	for _, x := range nodes {
		if x == n {
			return true
		}
	}
	return false
}
