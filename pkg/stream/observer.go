package stream

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// Observer receives notifications. Nil callbacks are ignored, except that an
// Error with no handler is reported through UnhandledError.
type Observer[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

// OnNext builds an observer that only handles values.
func OnNext[T any](fn func(T)) Observer[T] {
	return Observer[T]{Next: fn}
}

// Source is anything that can be subscribed to.
type Source[T any] interface {
	Subscribe(o Observer[T]) *Subscription
}

// UnhandledError receives errors delivered to observers without an Error
// callback. It must not panic.
var UnhandledError = func(err error) {
	slog.Default().Error("stream: unhandled error", "error", err)
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Catch runs fn and converts a panic into a *PanicError.
func Catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}

// Sink is the producer side of a subscription. It drops notifications once a
// terminal notification was sent or the subscription was cancelled.
type Sink[T any] struct {
	o    Observer[T]
	sub  *Subscription
	done atomic.Bool
}

// Next delivers a value.
func (s *Sink[T]) Next(v T) {
	if s.Closed() {
		return
	}
	if s.o.Next != nil {
		s.o.Next(v)
	}
}

// Error delivers a terminal error and closes the subscription.
func (s *Sink[T]) Error(err error) {
	if !s.done.CompareAndSwap(false, true) || s.sub.IsClosed() {
		return
	}
	if s.o.Error != nil {
		s.o.Error(err)
	} else {
		UnhandledError(err)
	}
	s.sub.Unsubscribe()
}

// Complete delivers completion and closes the subscription.
func (s *Sink[T]) Complete() {
	if !s.done.CompareAndSwap(false, true) || s.sub.IsClosed() {
		return
	}
	if s.o.Complete != nil {
		s.o.Complete()
	}
	s.sub.Unsubscribe()
}

// Closed reports whether further notifications are dropped.
func (s *Sink[T]) Closed() bool {
	return s.done.Load() || s.sub.IsClosed()
}

// Subscription returns the subscription this sink feeds.
func (s *Sink[T]) Subscription() *Subscription {
	return s.sub
}

// Observer returns an observer forwarding everything to the sink.
func (s *Sink[T]) Observer() Observer[T] {
	return Observer[T]{Next: s.Next, Error: s.Error, Complete: s.Complete}
}

type funcSource[T any] struct {
	produce func(*Sink[T]) func()
}

// New creates a cold source. produce runs once per subscriber and may return
// a teardown run when that subscription closes.
func New[T any](produce func(sink *Sink[T]) (teardown func())) Source[T] {
	return funcSource[T]{produce: produce}
}

func (f funcSource[T]) Subscribe(o Observer[T]) *Subscription {
	sub := NewSubscription()
	sink := &Sink[T]{o: o, sub: sub}

	var teardown func()
	if err := Catch(func() { teardown = f.produce(sink) }); err != nil {
		sink.Error(err)
	}
	sub.Add(teardown)
	return sub
}
