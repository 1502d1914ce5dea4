// Package stream is the push-based notification vocabulary shared by store
// selectors and effect pipelines.
//
// A Source delivers zero or more Next notifications followed by at most one
// terminal notification (Error or Complete). Subscribing returns a
// Subscription; unsubscribing detaches exactly that observer and runs its
// teardown once.
//
//	clicks := stream.NewSubject[int]()
//	sub := stream.Tap(clicks, func(n int) { fmt.Println(n) }).
//	    Subscribe(stream.Observer[int]{})
//	clicks.Next(1)
//	sub.Unsubscribe()
//
// Operators (Map, Filter, Tap, SwitchMap, MergeMap, ConcatMap, Delay,
// Finalize, CatchError, TakeUntil, DebounceSync) convert panics raised by
// user callbacks into Error notifications carrying a *PanicError.
package stream
