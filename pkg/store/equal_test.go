package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentical(t *testing.T) {
	type pair struct {
		N int
		S []int
	}
	shared := []int{1, 2}
	m := map[string]int{"a": 1}
	p := &pair{}

	assert.True(t, identical(1, 1))
	assert.False(t, identical(1, 2))
	assert.True(t, identical("x", "x"))
	assert.True(t, identical(math.NaN(), math.NaN()))

	assert.True(t, identical(shared, shared))
	assert.False(t, identical(shared, []int{1, 2}), "slices compare by identity")
	assert.False(t, identical(shared, shared[:1]))
	assert.True(t, identical[[]int](nil, nil))

	assert.True(t, identical(m, m))
	assert.False(t, identical(m, map[string]int{"a": 1}))
	assert.True(t, identical(p, p))
	assert.False(t, identical(p, &pair{}))

	assert.True(t, identical(pair{N: 1, S: shared}, pair{N: 1, S: shared}))
	assert.False(t, identical(pair{N: 1, S: shared}, pair{N: 1, S: []int{1, 2}}))
	assert.True(t, identical([2]string{"a", "b"}, [2]string{"a", "b"}))

	assert.True(t, identical[any](3, 3))
	assert.False(t, identical[any](3, int64(3)))
	assert.False(t, identical[any](nil, 0))
	assert.True(t, identical[any](nil, nil))
	assert.False(t, identical[any](ViewModel{}, ViewModel{}))
}
