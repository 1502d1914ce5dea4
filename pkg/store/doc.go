// Package store provides a reactive state container: one snapshot, derived
// distinct streams over it, and effects whose lifetime ends with the store.
//
// # Snapshots
//
// A Store[S] holds an immutable snapshot of S. Set, Update, Patch,
// PatchValues and PatchJSON compute the next snapshot in full and publish it
// with a single atomic store, so Get never observes a half-applied change.
//
//	s := store.New(Counter{Count: 0})
//	s.Update(func(c Counter) Counter { c.Count++; return c })
//
// # Selectors
//
// Select, SelectMap and Combine2..CombineN derive selectors. A selector
// computes lazily while it has subscribers, emits only when its value
// changes, replays the last value to late subscribers and forgets it when
// the last subscriber leaves.
//
//	count := store.Select(s, func(c Counter) int { return c.Count })
//	sub := count.Subscribe(stream.OnNext(func(n int) { fmt.Println(n) }))
//	defer sub.Unsubscribe()
//
// A commit propagates in one pass over the active selectors ordered by
// depth, so a projector over several selectors runs once per commit.
//
// Debounced selectors buffer their value and emit at the next boundary of
// the store's microtask.Scheduler. With the default queue that boundary is
// the next call to Store.Flush.
//
// # Effects
//
// Effect binds a stream pipeline to the store. Each Trigger starts an
// independent run that Destroy cancels.
//
// # Concurrency
//
// Work for one store runs through a serial gate. Callbacks run on the
// goroutine that drives the gate and must not block waiting for other
// goroutines that use the same store.
package store
