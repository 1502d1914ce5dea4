package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/statecell/pkg/microtask"
)

// recorder collects notifications from a source.
type recorder[T any] struct {
	mu        sync.Mutex
	values    []T
	err       error
	completed int
}

func (r *recorder[T]) observer() Observer[T] {
	return Observer[T]{
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

func (r *recorder[T]) snapshot() ([]T, error, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...), r.err, r.completed
}

func TestSubscriptionTeardownOrder(t *testing.T) {
	var got []int
	sub := NewSubscription(func() { got = append(got, 1) })
	sub.Add(func() { got = append(got, 2) })

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, []int{2, 1}, got)
	assert.True(t, sub.IsClosed())

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done should be closed")
	}

	sub.Add(func() { got = append(got, 3) })
	assert.Equal(t, []int{2, 1, 3}, got, "Add on a closed subscription runs immediately")
}

func TestOfCompletes(t *testing.T) {
	var r recorder[int]
	sub := Of(1, 2, 3).Subscribe(r.observer())

	values, err, completed := r.snapshot()
	assert.Equal(t, []int{1, 2, 3}, values)
	assert.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.True(t, sub.IsClosed())
}

func TestSubjectMulticast(t *testing.T) {
	s := NewSubject[string]()
	var a, b recorder[string]

	subA := s.Subscribe(a.observer())
	s.Next("x")
	s.Subscribe(b.observer())
	s.Next("y")
	subA.Unsubscribe()
	s.Next("z")
	s.Complete()
	s.Next("ignored")

	av, _, ac := a.snapshot()
	bv, _, bc := b.snapshot()
	assert.Equal(t, []string{"x", "y"}, av)
	assert.Equal(t, 0, ac)
	assert.Equal(t, []string{"y", "z"}, bv)
	assert.Equal(t, 1, bc)
	assert.Equal(t, 0, s.Observers())

	var late recorder[string]
	s.Subscribe(late.observer())
	_, _, lc := late.snapshot()
	assert.Equal(t, 1, lc, "late subscriber sees completion")
}

func TestMapPanicBecomesError(t *testing.T) {
	var r recorder[int]
	Map(Of(1, 2, 3), func(v int) int {
		if v == 2 {
			panic("two")
		}
		return v * 10
	}).Subscribe(r.observer())

	values, err, completed := r.snapshot()
	assert.Equal(t, []int{10}, values)
	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "two", perr.Value)
	assert.Equal(t, 0, completed)
}

func TestFilterAndTap(t *testing.T) {
	var seen []int
	var r recorder[int]
	Tap(Filter(Of(1, 2, 3, 4), func(v int) bool { return v%2 == 0 }), func(v int) {
		seen = append(seen, v)
	}).Subscribe(r.observer())

	values, _, _ := r.snapshot()
	assert.Equal(t, []int{2, 4}, values)
	assert.Equal(t, []int{2, 4}, seen)
}

func TestSwitchMapCancelsPrevious(t *testing.T) {
	outer := NewSubject[int]()
	inners := map[int]*Subject[string]{1: NewSubject[string](), 2: NewSubject[string]()}
	var r recorder[string]

	SwitchMap[int, string](outer, func(v int) Source[string] { return inners[v] }).Subscribe(r.observer())

	outer.Next(1)
	inners[1].Next("a")
	outer.Next(2)
	inners[1].Next("stale")
	inners[2].Next("b")
	outer.Complete()

	_, _, completed := r.snapshot()
	assert.Equal(t, 0, completed, "active inner keeps the result open")

	inners[2].Complete()
	values, _, completed := r.snapshot()
	assert.Equal(t, []string{"a", "b"}, values)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, inners[1].Observers())
}

func TestMergeMapInterleaves(t *testing.T) {
	a, b := NewSubject[int](), NewSubject[int]()
	outer := NewSubject[string]()
	var r recorder[int]

	sub := MergeMap[string, int](outer, func(k string) Source[int] {
		if k == "a" {
			return a
		}
		return b
	}).Subscribe(r.observer())

	outer.Next("a")
	outer.Next("b")
	a.Next(1)
	b.Next(2)
	a.Next(3)
	sub.Unsubscribe()
	b.Next(4)

	values, _, _ := r.snapshot()
	assert.Equal(t, []int{1, 2, 3}, values)
	assert.Equal(t, 0, a.Observers())
	assert.Equal(t, 0, b.Observers())
}

func TestConcatMapSequences(t *testing.T) {
	first := NewSubject[int]()
	outer := NewSubject[int]()
	var r recorder[int]

	ConcatMap[int, int](outer, func(v int) Source[int] {
		if v == 1 {
			return first
		}
		return Of(v*10, v*10+1)
	}).Subscribe(r.observer())

	outer.Next(1)
	outer.Next(2)
	first.Next(1)
	values, _, _ := r.snapshot()
	assert.Equal(t, []int{1}, values, "second inner waits for the first")

	first.Complete()
	outer.Complete()
	values, _, completed := r.snapshot()
	assert.Equal(t, []int{1, 20, 21}, values)
	assert.Equal(t, 1, completed)
}

func TestFinalizeRunsOnce(t *testing.T) {
	calls := 0
	src := NewSubject[int]()
	sub := Finalize[int](src, func() { calls++ }).Subscribe(Observer[int]{})

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 1, calls)

	calls = 0
	Finalize(Of(1), func() { calls++ }).Subscribe(Observer[int]{})
	assert.Equal(t, 1, calls)
}

func TestCatchErrorFallsBack(t *testing.T) {
	var r recorder[int]
	boom := errors.New("boom")
	var caught error

	CatchError(Fail[int](boom), func(err error) Source[int] {
		caught = err
		return Of(7)
	}).Subscribe(r.observer())

	values, err, completed := r.snapshot()
	assert.Equal(t, []int{7}, values)
	assert.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.ErrorIs(t, caught, boom)
}

func TestTakeUntil(t *testing.T) {
	src := NewSubject[int]()
	stop := NewSubject[struct{}]()
	var r recorder[int]

	TakeUntil[int, struct{}](src, stop).Subscribe(r.observer())
	src.Next(1)
	stop.Next(struct{}{})
	src.Next(2)

	values, _, completed := r.snapshot()
	assert.Equal(t, []int{1}, values)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, src.Observers())
}

func TestDebounceSyncCoalesces(t *testing.T) {
	q := microtask.NewQueue()
	src := NewSubject[int]()
	var r recorder[int]

	DebounceSync[int](src, q).Subscribe(r.observer())
	src.Next(1)
	src.Next(2)
	src.Next(3)

	values, _, _ := r.snapshot()
	assert.Empty(t, values)

	q.Flush()
	values, _, _ = r.snapshot()
	assert.Equal(t, []int{3}, values)

	src.Next(4)
	src.Complete()
	values, _, completed := r.snapshot()
	assert.Equal(t, []int{3, 4}, values, "buffered value flushes before completion")
	assert.Equal(t, 1, completed)

	q.Flush()
	values, _, _ = r.snapshot()
	assert.Equal(t, []int{3, 4}, values, "no duplicate after completion")
}

func TestDelay(t *testing.T) {
	var r recorder[int]
	done := make(chan struct{})
	obs := r.observer()
	complete := obs.Complete
	obs.Complete = func() {
		complete()
		close(done)
	}

	Delay(Of(1, 2), 5*time.Millisecond).Subscribe(obs)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Delay did not complete")
	}
	values, _, _ := r.snapshot()
	assert.ElementsMatch(t, []int{1, 2}, values)
}

func TestDelayCancel(t *testing.T) {
	var r recorder[int]
	sub := Delay(Of(1), 20*time.Millisecond).Subscribe(r.observer())
	sub.Unsubscribe()

	time.Sleep(40 * time.Millisecond)
	values, _, completed := r.snapshot()
	assert.Empty(t, values)
	assert.Equal(t, 0, completed)
}

func TestFromChan(t *testing.T) {
	ch := make(chan int)
	var r recorder[int]
	done := make(chan struct{})
	obs := r.observer()
	obs.Complete = func() { close(done) }

	FromChan(ch).Subscribe(obs)
	ch <- 1
	ch <- 2
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("FromChan did not complete")
	}
	values, _, _ := r.snapshot()
	assert.Equal(t, []int{1, 2}, values)
}

func TestUnhandledError(t *testing.T) {
	var got error
	prev := UnhandledError
	UnhandledError = func(err error) { got = err }
	defer func() { UnhandledError = prev }()

	Fail[int](errors.New("nobody listens")).Subscribe(Observer[int]{})
	assert.EqualError(t, got, "nobody listens")
}
