package store

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/statecell/pkg/stream"
)

func TestDestroyCompletesSelectorsOnce(t *testing.T) {
	s, _ := newTestStore(t, 0)
	sel := Select(s, func(n int) int { return n })
	derived := Combine2(sel, sel, func(a, b int) int { return a * b })

	var rec, rec2 recorder[int]
	sel.Subscribe(rec.observer())
	sub := derived.Subscribe(rec2.observer())

	s.Destroy()
	s.Destroy()

	assert.True(t, s.Destroyed())
	assert.Equal(t, 1, rec.completions())
	assert.Equal(t, 1, rec2.completions())
	assert.True(t, sub.IsClosed())
	assert.Error(t, s.Context().Err())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after destroy")
	}
}

func TestDestroyTeardownOrder(t *testing.T) {
	s, _ := newTestStore(t, 0)
	sel := Select(s, func(n int) int { return n })

	var events []string
	sel.Subscribe(stream.Observer[int]{Complete: func() { events = append(events, "complete") }})

	watch := Effect(s, func(src stream.Source[Unit]) stream.Source[Unit] {
		return stream.Finalize(src, func() { events = append(events, "run cancelled") })
	})
	run := watch.TriggerFrom(stream.Never[Unit]())

	s.OnDestroy(func() { events = append(events, "cleanup 1") })
	s.OnDestroy(func() {
		events = append(events, "cleanup 2")
		if s.Context().Err() == nil {
			events = append(events, "context live")
		}
	})

	s.Destroy()

	assert.Equal(t, []string{"complete", "run cancelled", "cleanup 2", "context live", "cleanup 1"}, events)
	assert.True(t, run.IsClosed())
}

func TestDestroyFlushesDebouncedValue(t *testing.T) {
	s, q := newTestStore(t, 0)
	sel := Select(s, func(n int) int { return n }, Debounce())
	plain := Select(s, func(n int) int { return n * 10 })
	vm := SelectMap(map[string]Readable{"n": sel, "tens": plain})

	var rec recorder[int]
	var vms recorder[ViewModel]
	sel.Subscribe(rec.observer())
	vm.Subscribe(vms.observer())
	q.Flush()

	s.Set(7)
	s.Destroy()
	q.Flush()

	assert.Equal(t, []int{0, 7}, rec.got(), "buffered value delivered exactly once before completion")
	assert.Equal(t, 1, rec.completions())

	got := vms.got()
	require.NotEmpty(t, got)
	assert.Equal(t, 7, Field[int](got[len(got)-1], "n"))
	assert.Equal(t, 70, Field[int](got[len(got)-1], "tens"))
}

func TestDestroyFlushesNeverEmittedDebounce(t *testing.T) {
	s, _ := newTestStore(t, 5)
	sel := Select(s, func(n int) int { return n }, Debounce())

	var rec recorder[int]
	sel.Subscribe(rec.observer())
	s.Destroy()

	assert.Equal(t, []int{5}, rec.got())
	assert.Equal(t, 1, rec.completions())
}

func TestMutateAfterDestroyIsIgnored(t *testing.T) {
	m := newTestMetrics()
	s, _ := newTestStore(t, counterState{Count: 1}, WithMetrics(m))
	count := Select(s, func(c counterState) int { return c.Count })

	var rec recorder[int]
	count.Subscribe(rec.observer())
	s.Destroy()

	s.Set(counterState{Count: 2})
	s.Update(func(c counterState) counterState { c.Count = 3; return c })
	s.Patch(func(c *counterState) { c.Count = 4 })
	assert.NoError(t, s.PatchValues(map[string]any{"count": 5}))
	assert.NoError(t, s.PatchValues(map[string]any{"unknown": 5}))
	assert.NoError(t, s.PatchJSON(`{"count": 6}`))

	assert.Equal(t, 1, s.Get().Count)
	assert.Equal(t, []int{1}, rec.got())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("store", "set")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rejected.WithLabelValues("store", "patch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.destroys.WithLabelValues("store")))
}

func TestSubscribeAfterDestroyCompletesImmediately(t *testing.T) {
	s, _ := newTestStore(t, 0)
	before := Select(s, func(n int) int { return n })
	s.Destroy()
	after := Select(s, func(n int) int { return n })

	for _, sel := range []*Selector[int]{before, after} {
		var rec recorder[int]
		sub := sel.Subscribe(rec.observer())
		assert.Empty(t, rec.got())
		assert.Equal(t, 1, rec.completions())
		assert.True(t, sub.IsClosed())
	}
}

func TestTriggerAfterDestroyIsClosed(t *testing.T) {
	s, _ := newTestStore(t, 0)
	calls := 0
	eff := Effect(s, func(src stream.Source[int]) stream.Source[int] {
		calls++
		return src
	})
	s.Destroy()

	run := eff.Trigger(1)
	assert.True(t, run.IsClosed())
	assert.Zero(t, calls)
}

func TestDestroyFromCallback(t *testing.T) {
	s, _ := newTestStore(t, 0)
	sel := Select(s, func(n int) int { return n })

	var rec recorder[int]
	sel.Subscribe(stream.OnNext(func(n int) {
		if n == 1 {
			s.Destroy()
		}
	}))
	sel.Subscribe(rec.observer())

	s.Set(1)
	s.Set(2)

	assert.Equal(t, []int{0, 1}, rec.got())
	assert.Equal(t, 1, rec.completions())
	assert.True(t, s.Destroyed())
}

func TestWithContextDestroysStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := newTestStore(t, 0, WithContext(ctx))

	cancel()
	require.Eventually(t, s.Destroyed, time.Second, 5*time.Millisecond)
}

func TestOnDestroyAfterDestroyRunsImmediately(t *testing.T) {
	s, _ := newTestStore(t, 0)
	s.Destroy()

	ran := false
	s.OnDestroy(func() { ran = true })
	assert.True(t, ran)
}
