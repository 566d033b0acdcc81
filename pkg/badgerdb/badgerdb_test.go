package badgerdb

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestOpenPersistentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Options{Path: dir, GCInterval: time.Hour})
	require.NoError(t, err)
	db.StartGC(context.Background())
	assert.Equal(t, dir, db.Path())

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	db, err = Open(Options{Path: dir})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		assert.Equal(t, "v", string(v))
		return err
	}))
}

func TestInMemoryHasNoPath(t *testing.T) {
	db, err := Open(InMemory())
	require.NoError(t, err)
	defer db.Close()
	db.StartGC(context.Background())
	assert.Empty(t, db.Path())
}
