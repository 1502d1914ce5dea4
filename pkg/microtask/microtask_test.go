package microtask

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFlushRunsInOrder(t *testing.T) {
	q := NewQueue()
	var got []int

	q.Schedule(func() { got = append(got, 1) })
	q.Schedule(func() {
		got = append(got, 2)
		q.Schedule(func() { got = append(got, 4) })
	})
	q.Schedule(func() { got = append(got, 3) })
	q.Schedule(nil)

	assert.Equal(t, 3, q.Len())
	assert.Empty(t, got, "nothing runs before Flush")

	q.Flush()
	assert.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Equal(t, 0, q.Len())
}

func TestLoopDrainsAndFlushWaits(t *testing.T) {
	l := NewLoop(nil)
	var count atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Schedule(func() { count.Add(1) })
		}()
	}
	wg.Wait()
	l.Flush()

	assert.Equal(t, int32(50), count.Load())
}

func TestLoopPreservesOrder(t *testing.T) {
	l := NewLoop(nil)
	var mu sync.Mutex
	var got []int

	for i := 0; i < 10; i++ {
		i := i
		l.Schedule(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	l.Flush()

	require.Len(t, got, 10)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopSurvivesPanics(t *testing.T) {
	l := NewLoop(nil)
	ran := false

	l.Schedule(func() { panic("boom") })
	l.Schedule(func() { ran = true })
	l.Flush()

	assert.True(t, ran)
}
