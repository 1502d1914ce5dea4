package store

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/statecell/pkg/stream"
)

func TestEffectTriggerWithLiteral(t *testing.T) {
	s, _ := newTestStore(t, counterState{})
	count := Select(s, func(c counterState) int { return c.Count })

	var rec recorder[int]
	count.Subscribe(rec.observer())

	setCount := Effect(s, func(src stream.Source[int]) stream.Source[int] {
		return stream.Tap(src, func(n int) {
			require.NoError(t, s.PatchValues(map[string]any{"count": n}))
		})
	})

	run := setCount.Trigger(3)

	assert.Equal(t, []int{0, 3}, rec.got())
	assert.True(t, run.IsClosed(), "a literal run ends when its input completes")
}

func TestEffectTriggerFromSelector(t *testing.T) {
	s, _ := newTestStore(t, counterState{})
	count := Select(s, func(c counterState) int { return c.Count })

	var seen []int
	log := Effect(s, func(src stream.Source[int]) stream.Source[int] {
		return stream.Tap(src, func(n int) { seen = append(seen, n) })
	}, EffectName("log"))
	assert.Equal(t, "log", log.Name())

	run := log.TriggerFrom(count)
	s.Set(counterState{Count: 1})
	run.Unsubscribe()
	s.Set(counterState{Count: 2})

	assert.Equal(t, []int{0, 1}, seen)
	assert.False(t, count.Active(), "cancelling the run releases the selector")
}

func TestEffectRunsAreIndependent(t *testing.T) {
	s, _ := newTestStore(t, 0)
	add := Effect(s, func(src stream.Source[int]) stream.Source[int] {
		return stream.Tap(src, func(n int) {
			s.Update(func(cur int) int { return cur + n })
		})
	})

	one, two := stream.NewSubject[int](), stream.NewSubject[int]()
	runOne := add.TriggerFrom(one)
	runTwo := add.TriggerFrom(two)

	one.Next(1)
	two.Next(10)
	runOne.Unsubscribe()
	one.Next(100)
	two.Next(1000)

	assert.Equal(t, 1011, s.Get())
	assert.False(t, runTwo.IsClosed())
	assert.Equal(t, 1, two.Observers())
	assert.Zero(t, one.Observers())
}

func TestEffectErrorEndsOnlyThatRun(t *testing.T) {
	m := newTestMetrics()
	s, _ := newTestStore(t, 0, WithMetrics(m))
	apply := Effect(s, func(src stream.Source[int]) stream.Source[int] {
		return stream.Map(src, func(n int) int {
			if n < 0 {
				panic("negative")
			}
			s.Set(n)
			return n
		})
	}, EffectName("apply"))

	bad := apply.Trigger(-1)
	good := apply.Trigger(4)

	assert.True(t, bad.IsClosed())
	assert.True(t, good.IsClosed())
	assert.Equal(t, 4, s.Get())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.effectErrors.WithLabelValues("store", "apply")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.effectRuns.WithLabelValues("store", "apply")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeRuns.WithLabelValues("store")))
}

func TestEffectPipelinePanicEndsRun(t *testing.T) {
	s, _ := newTestStore(t, 0)
	broken := Effect(s, func(stream.Source[int]) stream.Source[int] {
		panic("cannot build")
	})

	run := broken.Trigger(1)
	assert.True(t, run.IsClosed())
}

func TestEffectOnUnitPayload(t *testing.T) {
	s, _ := newTestStore(t, 0)
	reset := Effect(s, func(src stream.Source[Unit]) stream.Source[Unit] {
		return stream.Tap(src, func(Unit) { s.Set(0) })
	})

	s.Set(5)
	reset.Trigger(Unit{})
	assert.Zero(t, s.Get())
}

func TestEffectErrorIsLoggedNotPropagated(t *testing.T) {
	s, _ := newTestStore(t, 0)
	boom := errors.New("boom")
	failing := Effect(s, func(src stream.Source[int]) stream.Source[int] {
		return stream.SwitchMap(src, func(int) stream.Source[int] { return stream.Fail[int](boom) })
	})

	var run *stream.Subscription
	assert.NotPanics(t, func() { run = failing.Trigger(1) })
	assert.True(t, run.IsClosed())
}
