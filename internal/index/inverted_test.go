package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

// staticReader serves fixed containers.
type staticReader map[string]*index.UpdatableContainer[int]

func (r staticReader) GetData(key string) (index.ValueContainer[int], error) {
	if c, ok := r[key]; ok {
		return c, nil
	}
	return index.EmptyContainer[int](), nil
}

func containerOf(value int, ids ...index.InputID) *index.UpdatableContainer[int] {
	c := index.NewContainer[int]()
	for _, id := range ids {
		c.AddValue(id, value)
	}
	return c
}

func abcReader() staticReader {
	return staticReader{
		"A": containerOf(0, 1, 2, 3),
		"B": containerOf(0, 2, 3, 4),
		"C": containerOf(0, 3, 4, 5),
	}
}

func TestCollectAllKeysIntersects(t *testing.T) {
	got, err := index.CollectInputIDsContainingAllKeys[string, int](context.Background(), abcReader(), []string{"A", "B", "C"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3}, got.ToArray())
}

func TestCollectAnyKeyUnites(t *testing.T) {
	got, err := index.CollectInputIDsContainingAnyKey[string, int](context.Background(), abcReader(), []string{"A", "B", "C"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, got.ToArray())
}

func TestCollectAllKeysScansSmallerSide(t *testing.T) {
	big := index.NewContainer[int]()
	for id := index.InputID(1); id <= 1000; id++ {
		big.AddValue(id, int(id%3))
	}
	r := staticReader{
		"rare": containerOf(7, 10, 11, 2000),
		"big":  big,
	}
	got, err := index.CollectInputIDsContainingAllKeys[string, int](context.Background(), r, []string{"rare", "big"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 11}, got.ToArray())
}

func TestCollectAppliesFilters(t *testing.T) {
	r := staticReader{"k": index.NewContainer[int]()}
	r["k"].AddValue(1, 10)
	r["k"].AddValue(2, 20)
	r["k"].AddValue(3, 20)

	got, err := index.CollectInputIDsContainingAnyKey[string, int](context.Background(), r, []string{"k"},
		func(v int) bool { return v == 20 },
		func(id index.InputID) bool { return id != 3 },
	)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, got.ToArray())
}

func TestCollectAllKeysShortCircuitsOnEmpty(t *testing.T) {
	r := &countingReader{staticReader: abcReader()}
	got, err := index.CollectInputIDsContainingAllKeys[string, int](context.Background(), r, []string{"A", "missing", "B", "C"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
	assert.Equal(t, 2, r.reads)
}

type countingReader struct {
	staticReader
	reads int
}

func (r *countingReader) GetData(key string) (index.ValueContainer[int], error) {
	r.reads++
	return r.staticReader.GetData(key)
}

func TestCollectHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := index.CollectInputIDsContainingAllKeys[string, int](ctx, abcReader(), []string{"A"}, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrCanceled)
	_, err = index.CollectInputIDsContainingAnyKey[string, int](ctx, abcReader(), []string{"A"}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollectWithNoKeysIsEmpty(t *testing.T) {
	got, err := index.CollectInputIDsContainingAllKeys[string, int](context.Background(), abcReader(), nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}
