package microtask

import (
	"log/slog"
	"sync"
)

// Scheduler runs tasks at the next microtask boundary.
type Scheduler interface {
	Schedule(task func())
}

// Flusher is implemented by schedulers that can be driven to idleness.
type Flusher interface {
	Flush()
}

// Queue is a manually flushed scheduler.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Schedule appends a task.
func (q *Queue) Schedule(task func()) {
	if task == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

// Flush runs queued tasks on the calling goroutine until the queue is empty.
func (q *Queue) Flush() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Loop is a self-draining scheduler backed by a goroutine that exists only
// while tasks are pending. Tasks run concurrently with the goroutine that
// scheduled them, so work scheduled during a burst may run before the
// burst ends.
type Loop struct {
	mu      sync.Mutex
	idle    *sync.Cond
	tasks   []func()
	running bool
	logger  *slog.Logger
}

// NewLoop creates a loop. A nil logger uses slog.Default().
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{logger: logger}
	l.idle = sync.NewCond(&l.mu)
	return l
}

// Schedule appends a task and starts the drain goroutine if needed.
func (l *Loop) Schedule(task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	if !l.running {
		l.running = true
		go l.drain()
	}
	l.mu.Unlock()
}

// Flush blocks until no task is pending or running.
// Calling Flush from inside a task deadlocks.
func (l *Loop) Flush() {
	l.mu.Lock()
	for l.running || len(l.tasks) > 0 {
		l.idle.Wait()
	}
	l.mu.Unlock()
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.running = false
			l.idle.Broadcast()
			l.mu.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.run(task)
	}
}

func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("microtask panicked", "panic", r)
		}
	}()
	task()
}
