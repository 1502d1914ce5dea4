package stream

import "sync"

// SwitchMap maps each value to an inner source and mirrors only the most
// recent one; the previous inner subscription is cancelled.
func SwitchMap[T, R any](src Source[T], project func(T) Source[R]) Source[R] {
	return New(func(sink *Sink[R]) func() {
		var (
			mu          sync.Mutex
			current     *Subscription
			gen         uint64
			innerActive bool
			outerDone   bool
		)

		maybeComplete := func() {
			mu.Lock()
			done := outerDone && !innerActive
			mu.Unlock()
			if done {
				sink.Complete()
			}
		}

		outer := src.Subscribe(Observer[T]{
			Next: func(v T) {
				var next Source[R]
				if err := Catch(func() { next = project(v) }); err != nil {
					sink.Error(err)
					return
				}

				mu.Lock()
				gen++
				my := gen
				prev := current
				current = nil
				innerActive = true
				mu.Unlock()

				if prev != nil {
					prev.Unsubscribe()
				}

				sub := next.Subscribe(Observer[R]{
					Next: func(r R) {
						mu.Lock()
						stale := my != gen
						mu.Unlock()
						if !stale {
							sink.Next(r)
						}
					},
					Error: sink.Error,
					Complete: func() {
						mu.Lock()
						if my == gen {
							innerActive = false
						}
						mu.Unlock()
						maybeComplete()
					},
				})

				mu.Lock()
				if my == gen {
					current = sub
					mu.Unlock()
					return
				}
				mu.Unlock()
				sub.Unsubscribe()
			},
			Error: sink.Error,
			Complete: func() {
				mu.Lock()
				outerDone = true
				mu.Unlock()
				maybeComplete()
			},
		})

		return func() {
			outer.Unsubscribe()
			mu.Lock()
			gen++
			sub := current
			current = nil
			mu.Unlock()
			if sub != nil {
				sub.Unsubscribe()
			}
		}
	})
}

// MergeMap maps each value to an inner source and mirrors all of them
// concurrently.
func MergeMap[T, R any](src Source[T], project func(T) Source[R]) Source[R] {
	return New(func(sink *Sink[R]) func() {
		var (
			mu        sync.Mutex
			inners    = make(map[uint64]*Subscription)
			nextID    uint64
			active    int
			outerDone bool
		)

		maybeComplete := func() {
			mu.Lock()
			done := outerDone && active == 0
			mu.Unlock()
			if done {
				sink.Complete()
			}
		}

		outer := src.Subscribe(Observer[T]{
			Next: func(v T) {
				var next Source[R]
				if err := Catch(func() { next = project(v) }); err != nil {
					sink.Error(err)
					return
				}

				mu.Lock()
				nextID++
				id := nextID
				active++
				mu.Unlock()

				finished := false
				sub := next.Subscribe(Observer[R]{
					Next:  sink.Next,
					Error: sink.Error,
					Complete: func() {
						mu.Lock()
						finished = true
						active--
						delete(inners, id)
						mu.Unlock()
						maybeComplete()
					},
				})

				mu.Lock()
				if !finished {
					inners[id] = sub
				}
				mu.Unlock()
			},
			Error: sink.Error,
			Complete: func() {
				mu.Lock()
				outerDone = true
				mu.Unlock()
				maybeComplete()
			},
		})

		return func() {
			outer.Unsubscribe()
			mu.Lock()
			subs := make([]*Subscription, 0, len(inners))
			for _, sub := range inners {
				subs = append(subs, sub)
			}
			clear(inners)
			mu.Unlock()
			for _, sub := range subs {
				sub.Unsubscribe()
			}
		}
	})
}

// ConcatMap maps each value to an inner source and mirrors them one after
// another, buffering values that arrive while an inner source is active.
func ConcatMap[T, R any](src Source[T], project func(T) Source[R]) Source[R] {
	return New(func(sink *Sink[R]) func() {
		var (
			mu        sync.Mutex
			queue     []T
			active    bool
			outerDone bool
			current   *Subscription
			innerID   uint64
		)

		var pump func()
		pump = func() {
			for {
				mu.Lock()
				if active || len(queue) == 0 {
					done := outerDone && !active && len(queue) == 0
					mu.Unlock()
					if done {
						sink.Complete()
					}
					return
				}
				v := queue[0]
				queue = queue[1:]
				active = true
				innerID++
				my := innerID
				mu.Unlock()

				var next Source[R]
				if err := Catch(func() { next = project(v) }); err != nil {
					sink.Error(err)
					return
				}

				sub := next.Subscribe(Observer[R]{
					Next:  sink.Next,
					Error: sink.Error,
					Complete: func() {
						mu.Lock()
						active = false
						mu.Unlock()
						pump()
					},
				})

				mu.Lock()
				if active && innerID == my {
					current = sub
				}
				mu.Unlock()

				if sink.Closed() {
					return
				}
			}
		}

		outer := src.Subscribe(Observer[T]{
			Next: func(v T) {
				mu.Lock()
				queue = append(queue, v)
				mu.Unlock()
				pump()
			},
			Error: sink.Error,
			Complete: func() {
				mu.Lock()
				outerDone = true
				mu.Unlock()
				pump()
			},
		})

		return func() {
			outer.Unsubscribe()
			mu.Lock()
			sub := current
			current = nil
			queue = nil
			mu.Unlock()
			if sub != nil {
				sub.Unsubscribe()
			}
		}
	})
}
