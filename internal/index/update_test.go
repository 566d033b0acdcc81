package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
)

func TestCombineStopsAtFirstFailure(t *testing.T) {
	var calls []string
	step := func(name string, ok bool) index.StorageUpdate {
		return index.StorageUpdateFunc(func() bool {
			calls = append(calls, name)
			return ok
		})
	}

	ok := index.Combine(step("u1", true), step("u2", false), step("u3", true)).Update()

	assert.False(t, ok)
	assert.Equal(t, []string{"u1", "u2"}, calls)
}

func TestCombineAppliesAllInOrder(t *testing.T) {
	var calls []int
	step := func(n int) index.StorageUpdate {
		return index.StorageUpdateFunc(func() bool {
			calls = append(calls, n)
			return true
		})
	}

	assert.True(t, index.Combine(step(1), index.NoopUpdate, step(2)).Update())
	assert.Equal(t, []int{1, 2}, calls)
	assert.True(t, index.Combine().Update())
}
