package stream

import "sync"

// Subscription is a cancel handle. Teardowns run once, in reverse order of
// registration, on the first call to Unsubscribe.
type Subscription struct {
	mu        sync.Mutex
	closed    bool
	teardowns []func()
	done      chan struct{}
}

// NewSubscription creates an open subscription with optional teardowns.
func NewSubscription(teardowns ...func()) *Subscription {
	s := &Subscription{done: make(chan struct{})}
	for _, fn := range teardowns {
		if fn != nil {
			s.teardowns = append(s.teardowns, fn)
		}
	}
	return s
}

// Closed returns a subscription that is already unsubscribed.
func Closed() *Subscription {
	s := NewSubscription()
	s.Unsubscribe()
	return s
}

// Add registers a teardown. If the subscription is already closed the
// teardown runs immediately.
func (s *Subscription) Add(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.teardowns = append(s.teardowns, fn)
	s.mu.Unlock()
}

// Unsubscribe closes the subscription. It is idempotent.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	teardowns := s.teardowns
	s.teardowns = nil
	close(s.done)
	s.mu.Unlock()

	for i := len(teardowns) - 1; i >= 0; i-- {
		teardowns[i]()
	}
}

// IsClosed reports whether Unsubscribe has been called.
func (s *Subscription) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed when the subscription is unsubscribed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
