package store

import (
	"runtime"
	"sync"
)

// gate serialises all engine work of one store. The goroutine holding run
// is the owner; work posted by the owner is queued behind the task it is
// currently running, work posted by anyone else is drained before the
// caller returns.
type gate struct {
	run sync.Mutex

	mu    sync.Mutex
	owner uint64
	queue []func()
}

// goroutineID returns the id of the calling goroutine, parsed from the
// "goroutine <id> " header of its stack trace.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

func (g *gate) isOwner(gid uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner == gid
}

func (g *gate) enqueue(task func()) {
	g.mu.Lock()
	g.queue = append(g.queue, task)
	g.mu.Unlock()
}

func (g *gate) acquire(gid uint64) {
	g.run.Lock()
	g.mu.Lock()
	g.owner = gid
	g.mu.Unlock()
}

func (g *gate) release() {
	g.mu.Lock()
	g.owner = 0
	g.mu.Unlock()
	g.run.Unlock()
}

// drainLocked runs queued tasks until the queue is empty. The caller owns
// the gate.
func (g *gate) drainLocked() {
	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		task := g.queue[0]
		g.queue[0] = nil
		g.queue = g.queue[1:]
		g.mu.Unlock()

		task()
	}
}

// kick drains queued work unless gid already owns the gate, in which case
// the owner's drain loop picks it up.
func (g *gate) kick(gid uint64) {
	if g.isOwner(gid) {
		return
	}
	g.acquire(gid)
	defer g.release()
	g.drainLocked()
}

// post queues task and kicks the gate.
func (g *gate) post(gid uint64, task func()) {
	g.enqueue(task)
	g.kick(gid)
}

// exclusive runs fn on the calling goroutine while owning the gate, then
// drains whatever fn queued. Reentrant calls run fn inline.
func (g *gate) exclusive(gid uint64, fn func()) {
	if g.isOwner(gid) {
		fn()
		return
	}
	g.acquire(gid)
	defer func() {
		g.drainLocked()
		g.release()
	}()
	fn()
}
