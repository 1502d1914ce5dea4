package stream

import (
	"sync"
	"time"

	"github.com/vango-dev/statecell/pkg/microtask"
)

// Delay re-emits every value after d. Completion waits for pending values.
func Delay[T any](src Source[T], d time.Duration) Source[T] {
	return New(func(sink *Sink[T]) func() {
		var (
			mu        sync.Mutex
			emitMu    sync.Mutex
			timers    = make(map[*time.Timer]struct{})
			pending   int
			outerDone bool
		)

		outer := src.Subscribe(Observer[T]{
			Next: func(v T) {
				mu.Lock()
				defer mu.Unlock()
				if sink.Closed() {
					return
				}
				pending++
				var t *time.Timer
				t = time.AfterFunc(d, func() {
					emitMu.Lock()
					defer emitMu.Unlock()

					mu.Lock()
					delete(timers, t)
					pending--
					done := outerDone && pending == 0
					mu.Unlock()

					sink.Next(v)
					if done {
						sink.Complete()
					}
				})
				timers[t] = struct{}{}
			},
			Error: sink.Error,
			Complete: func() {
				emitMu.Lock()
				defer emitMu.Unlock()
				mu.Lock()
				outerDone = true
				done := pending == 0
				mu.Unlock()
				if done {
					sink.Complete()
				}
			},
		})

		return func() {
			outer.Unsubscribe()
			mu.Lock()
			for t := range timers {
				t.Stop()
			}
			clear(timers)
			mu.Unlock()
		}
	})
}

// DebounceSync collapses values emitted within the same synchronous burst
// into the last one, delivered at the next microtask boundary of sched. A
// value still buffered at completion is emitted before completing.
func DebounceSync[T any](src Source[T], sched microtask.Scheduler) Source[T] {
	return New(func(sink *Sink[T]) func() {
		var (
			mu        sync.Mutex
			value     T
			hasValue  bool
			scheduled bool
		)

		flush := func() {
			mu.Lock()
			scheduled = false
			if !hasValue {
				mu.Unlock()
				return
			}
			v := value
			hasValue = false
			mu.Unlock()
			sink.Next(v)
		}

		inner := src.Subscribe(Observer[T]{
			Next: func(v T) {
				mu.Lock()
				value = v
				hasValue = true
				schedule := !scheduled
				scheduled = true
				mu.Unlock()
				if schedule {
					sched.Schedule(flush)
				}
			},
			Error: sink.Error,
			Complete: func() {
				mu.Lock()
				v, has := value, hasValue
				hasValue = false
				mu.Unlock()
				if has {
					sink.Next(v)
				}
				sink.Complete()
			},
		})
		return inner.Unsubscribe
	})
}
