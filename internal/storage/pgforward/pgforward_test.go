package pgforward

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/postgres"
)

func openClient(t *testing.T) *postgres.Client {
	t.Helper()
	dsn := os.Getenv("IX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("IX_TEST_POSTGRES_DSN not set")
	}
	client, err := postgres.Open(dsn, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestForwardPutGetRemove(t *testing.T) {
	client := openClient(t)
	ctx := context.Background()
	codec := index.Codec[string, uint32]{Keys: index.StringDescriptor{}, Values: index.Uint32Descriptor{}}

	f, err := New(ctx, client, "pgforward-test", codec)
	require.NoError(t, err)
	require.NoError(t, f.Clear())

	require.NoError(t, f.Put(1, map[string]uint32{"a": 1, "b": 2}))
	require.NoError(t, f.Put(1, map[string]uint32{"b": 3}))
	got, err := f.Get(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint32{"b": 3}, got)

	got, err = f.Get(2)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, f.Remove(1))
	got, err = f.Get(1)
	require.NoError(t, err)
	assert.Nil(t, got)
}
