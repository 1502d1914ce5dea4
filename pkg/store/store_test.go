package store

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/statecell/pkg/microtask"
	"github.com/vango-dev/statecell/pkg/stream"
)

type counterState struct {
	Count int      `json:"count"`
	Label string   `json:"label"`
	Ratio float64  `json:"ratio,omitempty"`
	Tags  []string `json:"tags"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore builds a store driven by a manual queue and destroys it at
// the end of the test.
func newTestStore[S any](t *testing.T, initial S, opts ...Option) (*Store[S], *microtask.Queue) {
	t.Helper()
	q := microtask.NewQueue()
	base := []Option{WithScheduler(q), WithLogger(quietLogger())}
	s := New(initial, append(base, opts...)...)
	t.Cleanup(s.Destroy)
	return s, q
}

func newTestMetrics() *Metrics {
	return NewMetrics(WithRegistry(prometheus.NewRegistry()))
}

// recorder collects notifications from a selector.
type recorder[T any] struct {
	mu        sync.Mutex
	values    []T
	err       error
	completed int
}

func (r *recorder[T]) observer() stream.Observer[T] {
	return stream.Observer[T]{
		Next: func(v T) {
			r.mu.Lock()
			r.values = append(r.values, v)
			r.mu.Unlock()
		},
		Error: func(err error) {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		},
		Complete: func() {
			r.mu.Lock()
			r.completed++
			r.mu.Unlock()
		},
	}
}

func (r *recorder[T]) got() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recorder[T]) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *recorder[T]) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

func TestGetSetUpdate(t *testing.T) {
	s, _ := newTestStore(t, counterState{Count: 1, Label: "a"})

	assert.Equal(t, counterState{Count: 1, Label: "a"}, s.Get())

	s.Set(counterState{Count: 5})
	assert.Equal(t, 5, s.Get().Count)
	assert.Empty(t, s.Get().Label)

	s.Update(func(c counterState) counterState {
		c.Count *= 2
		return c
	})
	assert.Equal(t, 10, s.Get().Count)
	assert.Equal(t, 10, Project(s, func(c counterState) int { return c.Count }))
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "store", s.Name())
}

func TestUpdatePanicReachesCaller(t *testing.T) {
	s, _ := newTestStore(t, counterState{Count: 1})

	assert.PanicsWithValue(t, "boom", func() {
		s.Update(func(counterState) counterState { panic("boom") })
	})

	// The write lock was released and the snapshot is unchanged.
	s.Update(func(c counterState) counterState {
		c.Count++
		return c
	})
	assert.Equal(t, 2, s.Get().Count)
}

func TestPatchCopiesMapSnapshot(t *testing.T) {
	s, _ := newTestStore(t, map[string]int{"a": 1, "b": 2})
	before := s.Get()

	s.Patch(func(draft *map[string]int) {
		(*draft)["a"] = 10
	})

	assert.Equal(t, map[string]int{"a": 10, "b": 2}, s.Get())
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, before)
}

func TestPatchCopiesPointerSnapshot(t *testing.T) {
	s, _ := newTestStore(t, &counterState{Count: 1})
	before := s.Get()

	s.Patch(func(draft **counterState) {
		(*draft).Count = 2
	})

	assert.Equal(t, 2, s.Get().Count)
	assert.Equal(t, 1, before.Count)
	assert.NotSame(t, before, s.Get())
}

func TestUpdater(t *testing.T) {
	s, _ := newTestStore(t, counterState{})
	add := Updater(s, func(c counterState, n int) counterState {
		c.Count += n
		return c
	})

	add(2)
	add(3)
	assert.Equal(t, 5, s.Get().Count)
}

func TestBatchCoalescesCommits(t *testing.T) {
	s, _ := newTestStore(t, counterState{})
	count := Select(s, func(c counterState) int { return c.Count })

	var rec recorder[int]
	count.Subscribe(rec.observer())

	s.Batch(func() {
		s.Set(counterState{Count: 1})
		s.Set(counterState{Count: 2})
		s.Batch(func() {
			s.Set(counterState{Count: 3})
		})
		assert.Equal(t, 3, s.Get().Count)
		assert.Equal(t, []int{0}, rec.got())
	})

	assert.Equal(t, []int{0, 3}, rec.got())
}

func TestMutationFromCallbackKeepsCommitOrder(t *testing.T) {
	s, _ := newTestStore(t, counterState{})
	count := Select(s, func(c counterState) int { return c.Count })

	count.Subscribe(stream.OnNext(func(n int) {
		if n == 1 {
			s.Set(counterState{Count: 2})
			assert.Equal(t, 2, s.Get().Count)
		}
	}))
	var rec recorder[int]
	count.Subscribe(rec.observer())

	s.Set(counterState{Count: 1})

	assert.Equal(t, []int{0, 1, 2}, rec.got())
	assert.Equal(t, 2, s.Get().Count)
}

func TestConcurrentUpdatesAreLinearised(t *testing.T) {
	s := New(counterState{}, WithLogger(quietLogger()))
	defer s.Destroy()

	count := Select(s, func(c counterState) int { return c.Count })
	var rec recorder[int]
	count.Subscribe(rec.observer())

	const workers, perWorker = 16, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				s.Update(func(c counterState) counterState {
					c.Count++
					return c
				})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, s.Get().Count)
	got := rec.got()
	require.Len(t, got, workers*perWorker+1)
	for i := 1; i < len(got); i++ {
		require.Equal(t, got[i-1]+1, got[i], "emissions follow commit order")
	}
}

func TestChanges(t *testing.T) {
	s, _ := newTestStore(t, counterState{Count: 1})

	var rec recorder[counterState]
	s.Changes().Subscribe(rec.observer())
	s.Set(counterState{Count: 2})

	assert.Same(t, s.Changes(), s.Changes())
	assert.Equal(t, []counterState{{Count: 1}, {Count: 2}}, rec.got())
}

func TestStoreFlushDrivesScheduler(t *testing.T) {
	s := New(0, WithLogger(quietLogger()), WithScheduler(microtask.NewLoop(quietLogger())))
	defer s.Destroy()

	sel := Select(s, func(n int) int { return n }, Debounce())
	var rec recorder[int]
	sel.Subscribe(rec.observer())

	s.Set(1)
	s.Set(2)
	s.Flush()

	require.NotEmpty(t, rec.got())
	assert.Equal(t, 2, rec.got()[len(rec.got())-1])
}

func TestDefaultSchedulerCoalescesBursts(t *testing.T) {
	for i := 0; i < 500; i++ {
		s := New(0, WithLogger(quietLogger()))

		sel := Select(s, func(n int) int { return n }, Debounce())
		var rec recorder[int]
		sel.Subscribe(rec.observer())

		s.Set(1)
		s.Set(2)
		s.Set(3)
		assert.Empty(t, rec.got())

		s.Flush()
		s.Destroy()
		require.Equal(t, []int{3}, rec.got(), "round %d", i)
	}
}

func TestFlushInsideCallbackReturns(t *testing.T) {
	s := New(0, WithLogger(quietLogger()), WithScheduler(microtask.NewLoop(quietLogger())))
	defer s.Destroy()

	settled := Select(s, func(n int) int { return n }, Debounce())
	var rec recorder[int]
	settled.Subscribe(rec.observer())

	done := make(chan struct{})
	Select(s, func(n int) int { return n }).Subscribe(stream.OnNext(func(n int) {
		if n == 1 {
			s.Flush()
			close(done)
		}
	}))

	go s.Set(1)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Flush inside a subscriber blocked")
	}

	s.Flush()
	require.NotEmpty(t, rec.got())
	assert.Equal(t, 1, rec.got()[len(rec.got())-1])
}
