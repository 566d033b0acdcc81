package trigram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/storage/memstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

func TestCandidates(t *testing.T) {
	x, err := index.NewMapReduceIndex(Extension(),
		memstore.NewStorage[uint32, index.Unit](), memstore.NewForward[uint32, index.Unit](), index.Options{})
	require.NoError(t, err)
	defer x.Dispose()

	docs := map[index.InputID]string{
		1: "func parseConfig() {}",
		2: "var configPath string",
		3: "func main() {}",
	}
	for id, text := range docs {
		u, err := x.Update(context.Background(), id, &extensions.Document{Path: "x.go", Text: text})
		require.NoError(t, err)
		require.True(t, u.Update())
	}

	ids, err := Candidates(context.Background(), x, "Config", nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, ids.ToArray())

	ids, err = Candidates(context.Background(), x, "config", func(id index.InputID) bool { return id != 1 })
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, ids.ToArray())

	ids, err = Candidates(context.Background(), x, "xyzzy", nil)
	require.NoError(t, err)
	assert.True(t, ids.IsEmpty())

	_, err = Candidates(context.Background(), x, "ab", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
