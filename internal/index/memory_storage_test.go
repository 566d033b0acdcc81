package index_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/storage/memstore"
)

type recordingListener struct {
	changes []bool
	cleared int
	err     error
}

func (l *recordingListener) BufferingStateChanged(enabled bool) error {
	l.changes = append(l.changes, enabled)
	return l.err
}

func (l *recordingListener) MemoryStorageCleared() { l.cleared++ }

func keysOf(t *testing.T, s index.Storage[string, int]) []string {
	t.Helper()
	var keys []string
	_, err := s.ProcessKeys(func(k string) bool {
		keys = append(keys, k)
		return true
	})
	require.NoError(t, err)
	return keys
}

func TestMemoryStorageReportsEachKeyOnce(t *testing.T) {
	backing := memstore.NewStorage[string, int]()
	require.NoError(t, backing.AddValue("shared", 1, 1))
	require.NoError(t, backing.AddValue("gone", 1, 1))
	require.NoError(t, backing.AddValue("disk", 2, 2))

	s := index.NewMemoryStorage[string, int](backing, true)
	require.NoError(t, s.AddValue("shared", 3, 3))
	require.NoError(t, s.RemoveAllValues("gone", 1))
	require.NoError(t, s.AddValue("fresh", 4, 4))

	assert.ElementsMatch(t, []string{"shared", "disk", "fresh"}, keysOf(t, s))
}

func TestMemoryStorageProcessKeysStopsEarly(t *testing.T) {
	s := index.NewMemoryStorage[string, int](memstore.NewStorage[string, int](), true)
	require.NoError(t, s.AddValue("a", 1, 1))
	require.NoError(t, s.AddValue("b", 1, 1))

	calls := 0
	done, err := s.ProcessKeys(func(string) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, calls)
}

func TestMemoryStorageMergesBufferedWithBacking(t *testing.T) {
	backing := memstore.NewStorage[string, int]()
	require.NoError(t, backing.AddValue("k", 1, 1))
	require.NoError(t, backing.AddValue("k", 2, 2))

	s := index.NewMemoryStorage[string, int](backing, true)
	require.NoError(t, s.RemoveAllValues("k", 1))
	require.NoError(t, s.AddValue("k", 3, 3))

	view, err := s.Read("k")
	require.NoError(t, err)
	got := index.CopyContainer(view)
	assert.Equal(t, []uint32{2, 3}, got.InputIDs().ToArray())

	// readers keep the view they were handed
	require.NoError(t, s.AddValue("k", 4, 4))
	assert.Equal(t, 2, view.Size())

	onDisk, err := backing.Read("k")
	require.NoError(t, err)
	assert.Equal(t, 2, onDisk.Size())
	assert.Equal(t, 1, s.BufferedKeys())
}

func TestMemoryStorageDisableBufferingDrains(t *testing.T) {
	backing := memstore.NewStorage[string, int]()
	s := index.NewMemoryStorage[string, int](backing, true)
	l := &recordingListener{}
	s.AddBufferingStateListener(l)

	require.NoError(t, s.AddValue("k", 1, 1))
	require.NoError(t, s.SetBufferingEnabled(false))
	require.NoError(t, s.SetBufferingEnabled(false))

	c, err := backing.Read("k")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, []bool{false}, l.changes)
	assert.Zero(t, s.BufferedKeys())

	// writes now go through
	require.NoError(t, s.AddValue("k", 2, 2))
	c, err = backing.Read("k")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())
	view, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Size())
}

func TestMemoryStorageReportsListenerErrors(t *testing.T) {
	s := index.NewMemoryStorage[string, int](memstore.NewStorage[string, int](), false)
	s.AddBufferingStateListener(&recordingListener{err: errors.New("forward drain failed")})
	assert.ErrorContains(t, s.SetBufferingEnabled(true), "forward drain failed")
}

func TestMemoryStorageClearCachesKeepsBufferedData(t *testing.T) {
	s := index.NewMemoryStorage[string, int](memstore.NewStorage[string, int](), true)
	require.NoError(t, s.AddValue("k", 1, 1))
	_, err := s.Read("k")
	require.NoError(t, err)

	s.ClearCaches()
	view, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Size())
	assert.Equal(t, 1, s.BufferedKeys())
}

func TestMemoryStorageDiscardBufferedNotifies(t *testing.T) {
	backing := memstore.NewStorage[string, int]()
	s := index.NewMemoryStorage[string, int](backing, true)
	l := &recordingListener{}
	s.AddBufferingStateListener(l)
	require.NoError(t, s.AddValue("k", 1, 1))

	s.DiscardBuffered()
	assert.Equal(t, 1, l.cleared)
	assert.Empty(t, keysOf(t, s))
	assert.Zero(t, backing.Len())
}
