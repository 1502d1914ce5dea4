package stream

// Of emits the given values in order, then completes.
func Of[T any](values ...T) Source[T] {
	return FromSlice(values)
}

// FromSlice emits every element of values in order, then completes.
func FromSlice[T any](values []T) Source[T] {
	return New(func(sink *Sink[T]) func() {
		for _, v := range values {
			if sink.Closed() {
				return nil
			}
			sink.Next(v)
		}
		sink.Complete()
		return nil
	})
}

// Empty completes immediately.
func Empty[T any]() Source[T] {
	return New(func(sink *Sink[T]) func() {
		sink.Complete()
		return nil
	})
}

// Fail errors immediately.
func Fail[T any](err error) Source[T] {
	return New(func(sink *Sink[T]) func() {
		sink.Error(err)
		return nil
	})
}

// Never emits nothing and never terminates.
func Never[T any]() Source[T] {
	return New(func(*Sink[T]) func() { return nil })
}

// FromChan emits values received from ch on a dedicated goroutine and
// completes when ch is closed. Unsubscribing stops the goroutine.
func FromChan[T any](ch <-chan T) Source[T] {
	return New(func(sink *Sink[T]) func() {
		done := sink.Subscription().Done()
		go func() {
			for {
				select {
				case <-done:
					return
				case v, ok := <-ch:
					if !ok {
						sink.Complete()
						return
					}
					sink.Next(v)
				}
			}
		}()
		return nil
	})
}
