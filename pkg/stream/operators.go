package stream

import "sync"

// Map transforms every value with fn.
func Map[T, R any](src Source[T], fn func(T) R) Source[R] {
	return New(func(sink *Sink[R]) func() {
		inner := src.Subscribe(Observer[T]{
			Next: func(v T) {
				var r R
				if err := Catch(func() { r = fn(v) }); err != nil {
					sink.Error(err)
					return
				}
				sink.Next(r)
			},
			Error:    sink.Error,
			Complete: sink.Complete,
		})
		return inner.Unsubscribe
	})
}

// Filter forwards values for which keep returns true.
func Filter[T any](src Source[T], keep func(T) bool) Source[T] {
	return New(func(sink *Sink[T]) func() {
		inner := src.Subscribe(Observer[T]{
			Next: func(v T) {
				var ok bool
				if err := Catch(func() { ok = keep(v) }); err != nil {
					sink.Error(err)
					return
				}
				if ok {
					sink.Next(v)
				}
			},
			Error:    sink.Error,
			Complete: sink.Complete,
		})
		return inner.Unsubscribe
	})
}

// Tap runs fn for every value and forwards the value unchanged.
func Tap[T any](src Source[T], fn func(T)) Source[T] {
	return TapObserver(src, Observer[T]{Next: fn})
}

// TapObserver runs the callbacks of o alongside every notification.
func TapObserver[T any](src Source[T], o Observer[T]) Source[T] {
	return New(func(sink *Sink[T]) func() {
		inner := src.Subscribe(Observer[T]{
			Next: func(v T) {
				if o.Next != nil {
					if err := Catch(func() { o.Next(v) }); err != nil {
						sink.Error(err)
						return
					}
				}
				sink.Next(v)
			},
			Error: func(err error) {
				if o.Error != nil {
					if perr := Catch(func() { o.Error(err) }); perr != nil {
						err = perr
					}
				}
				sink.Error(err)
			},
			Complete: func() {
				if o.Complete != nil {
					if err := Catch(o.Complete); err != nil {
						sink.Error(err)
						return
					}
				}
				sink.Complete()
			},
		})
		return inner.Unsubscribe
	})
}

// Finalize runs fn once when the subscription ends for any reason:
// completion, error or cancellation.
func Finalize[T any](src Source[T], fn func()) Source[T] {
	return New(func(sink *Sink[T]) func() {
		inner := src.Subscribe(sink.Observer())
		return func() {
			inner.Unsubscribe()
			fn()
		}
	})
}

// CatchError replaces an erroring source with the source returned by handler.
func CatchError[T any](src Source[T], handler func(error) Source[T]) Source[T] {
	return New(func(sink *Sink[T]) func() {
		var mu sync.Mutex
		var fallback *Subscription

		inner := src.Subscribe(Observer[T]{
			Next: sink.Next,
			Error: func(err error) {
				var next Source[T]
				if perr := Catch(func() { next = handler(err) }); perr != nil {
					sink.Error(perr)
					return
				}
				sub := next.Subscribe(sink.Observer())
				mu.Lock()
				fallback = sub
				mu.Unlock()
				if sink.Subscription().IsClosed() {
					sub.Unsubscribe()
				}
			},
			Complete: sink.Complete,
		})

		return func() {
			inner.Unsubscribe()
			mu.Lock()
			sub := fallback
			mu.Unlock()
			if sub != nil {
				sub.Unsubscribe()
			}
		}
	})
}

// TakeUntil mirrors src until notifier emits its first value, then completes.
func TakeUntil[T, N any](src Source[T], notifier Source[N]) Source[T] {
	return New(func(sink *Sink[T]) func() {
		stop := notifier.Subscribe(Observer[N]{
			Next:  func(N) { sink.Complete() },
			Error: sink.Error,
		})
		if sink.Closed() {
			return stop.Unsubscribe
		}
		inner := src.Subscribe(sink.Observer())
		return func() {
			stop.Unsubscribe()
			inner.Unsubscribe()
		}
	})
}
