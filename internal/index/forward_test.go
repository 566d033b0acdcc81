package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/storage/memstore"
)

func TestCachedForwardIndexServesAndEvicts(t *testing.T) {
	backing := memstore.NewForward[string, int]()
	f, err := index.NewCachedForwardIndex[string, int](backing, 2)
	require.NoError(t, err)

	require.NoError(t, f.Put(1, kv{"a": 1}))
	require.NoError(t, backing.Remove(1))
	got, err := f.Get(1)
	require.NoError(t, err)
	assert.Equal(t, kv{"a": 1}, got, "entry should come from the cache")
	require.NoError(t, backing.Put(1, kv{"a": 1}))

	require.NoError(t, f.Put(2, kv{"b": 2}))
	require.NoError(t, f.Put(3, kv{"c": 3}))
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, 3, backing.Len())

	got, err = f.Get(1)
	require.NoError(t, err)
	assert.Equal(t, kv{"a": 1}, got, "evicted entries are reloaded from the backing index")

	require.NoError(t, f.Remove(1))
	got, err = f.Get(1)
	require.NoError(t, err)
	assert.Empty(t, got)

	f.Purge()
	assert.Zero(t, f.Len())
	got, err = f.Get(1)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, f.Len(), "misses are cached too")

	require.NoError(t, f.Clear())
	assert.Zero(t, backing.Len())

	_, err = index.NewCachedForwardIndex[string, int](backing, 0)
	assert.Error(t, err)
}

func TestBufferedForwardIndexShadowsUntilDrained(t *testing.T) {
	backing := memstore.NewForward[string, int]()
	require.NoError(t, backing.Put(1, kv{"a": 1}))
	f := index.NewBufferedForwardIndex[string, int](backing, true)

	require.NoError(t, f.Remove(1))
	require.NoError(t, f.Put(2, kv{"b": 2}))
	assert.Equal(t, 2, f.Buffered())
	got, err := f.Get(1)
	require.NoError(t, err)
	assert.Nil(t, got, "a buffered removal hides the backing entry")
	onDisk, err := backing.Get(1)
	require.NoError(t, err)
	assert.Equal(t, kv{"a": 1}, onDisk)
	got, err = f.Get(2)
	require.NoError(t, err)
	assert.Equal(t, kv{"b": 2}, got)

	f.MemoryStorageCleared()
	assert.Zero(t, f.Buffered())
	got, err = f.Get(1)
	require.NoError(t, err)
	assert.Equal(t, kv{"a": 1}, got)

	require.NoError(t, f.Put(2, kv{"b": 2}))
	require.NoError(t, f.Flush())
	assert.Zero(t, f.Buffered())
	onDisk, err = backing.Get(2)
	require.NoError(t, err)
	assert.Equal(t, kv{"b": 2}, onDisk)

	require.NoError(t, f.Put(3, kv{"c": 3}))
	require.NoError(t, f.BufferingStateChanged(false))
	assert.Zero(t, f.Buffered())
	assert.Equal(t, 3, backing.Len())
}

func TestBufferedForwardIndexCopiesCallerMap(t *testing.T) {
	backing := memstore.NewForward[string, int]()
	f := index.NewBufferedForwardIndex[string, int](backing, true)

	data := kv{"a": 1}
	require.NoError(t, f.Put(1, data))
	data["a"] = 99
	data["z"] = 26

	got, err := f.Get(1)
	require.NoError(t, err)
	assert.Equal(t, kv{"a": 1}, got)

	require.NoError(t, f.Flush())
	onDisk, err := backing.Get(1)
	require.NoError(t, err)
	assert.Equal(t, kv{"a": 1}, onDisk)
}
