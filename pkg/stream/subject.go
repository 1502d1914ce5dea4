package stream

import "sync"

// Subject is a hot multicast source: values pushed with Next reach every
// observer subscribed at that moment.
type Subject[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	sinks   map[uint64]*Sink[T]
	order   []uint64
	stopped bool
	err     error
}

// NewSubject creates an open subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{sinks: make(map[uint64]*Sink[T])}
}

// Subscribe attaches an observer. Subscribing to a stopped subject replays
// only the terminal notification.
func (s *Subject[T]) Subscribe(o Observer[T]) *Subscription {
	sub := NewSubscription()
	sink := &Sink[T]{o: o, sub: sub}

	s.mu.Lock()
	if s.stopped {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			sink.Error(err)
		} else {
			sink.Complete()
		}
		return sub
	}
	s.nextID++
	id := s.nextID
	s.sinks[id] = sink
	s.order = append(s.order, id)
	s.mu.Unlock()

	sub.Add(func() { s.remove(id) })
	return sub
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sinks[id]; !ok {
		return
	}
	delete(s.sinks, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// snapshot copies the current observers in subscription order.
func (s *Subject[T]) snapshot() []*Sink[T] {
	sinks := make([]*Sink[T], 0, len(s.order))
	for _, id := range s.order {
		sinks = append(sinks, s.sinks[id])
	}
	return sinks
}

// Next pushes a value to every current observer.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	sinks := s.snapshot()
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Next(v)
	}
}

// Error terminates the subject with err.
func (s *Subject[T]) Error(err error) {
	s.stop(err, true)
}

// Complete terminates the subject.
func (s *Subject[T]) Complete() {
	s.stop(nil, false)
}

func (s *Subject[T]) stop(err error, failed bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.err = err
	sinks := s.snapshot()
	s.mu.Unlock()

	for _, sink := range sinks {
		if failed {
			sink.Error(err)
		} else {
			sink.Complete()
		}
	}
}

// Observers returns the number of attached observers.
func (s *Subject[T]) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sinks)
}
