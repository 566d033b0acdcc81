package index_test

import (
	"context"
	"maps"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/storage/memstore"
)

type kv = map[string]int

var mapIndexer = index.DataIndexerFunc[kv, string, int](func(_ context.Context, in kv) (kv, error) {
	return maps.Clone(in), nil
})

func kvExtension() index.Extension[kv, string, int] {
	return index.Extension[kv, string, int]{
		Name:    "kv",
		Version: 1,
		Indexer: mapIndexer,
		Keys:    index.StringDescriptor{},
		Values:  index.JSONDescriptor[int]{},
	}
}

type kvIndex = index.MapReduceIndex[kv, string, int]

func newKVIndex(t *testing.T, storage index.Storage[string, int], opts index.Options) *kvIndex {
	t.Helper()
	if storage == nil {
		storage = memstore.NewStorage[string, int]()
	}
	x, err := index.NewMapReduceIndex(kvExtension(), storage, memstore.NewForward[string, int](), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.Dispose() })
	return x
}

// apply runs both phases of an update; a nil data removes the input.
func apply(t *testing.T, x *kvIndex, id index.InputID, data kv) bool {
	t.Helper()
	var content *kv
	if data != nil {
		content = &data
	}
	u, err := x.Update(context.Background(), id, content)
	require.NoError(t, err)
	return u.Update()
}

// snapshot returns every association of x as key -> input -> value.
func snapshot(t *testing.T, x *kvIndex) map[string]map[index.InputID]int {
	t.Helper()
	var keys []string
	_, err := x.ProcessAllKeys(func(k string) bool {
		keys = append(keys, k)
		return true
	})
	require.NoError(t, err)

	out := make(map[string]map[index.InputID]int, len(keys))
	for _, k := range keys {
		_, dup := out[k]
		require.False(t, dup, "key %q reported twice", k)
		c, err := x.GetData(k)
		require.NoError(t, err)
		assoc := map[index.InputID]int{}
		c.ForEach(func(id index.InputID, v int) bool {
			_, seen := assoc[id]
			require.False(t, seen, "input %d has two values under %q", id, k)
			assoc[id] = v
			return true
		})
		out[k] = assoc
	}
	return out
}

func pairs(t *testing.T, x *kvIndex, key string) map[index.InputID]int {
	t.Helper()
	c, err := x.GetData(key)
	require.NoError(t, err)
	out := map[index.InputID]int{}
	c.ForEach(func(id index.InputID, v int) bool {
		out[id] = v
		return true
	})
	return out
}

// words indexes whitespace separated words with presence values.
var words = index.DataIndexerFunc[string, string, index.Unit](func(_ context.Context, text string) (map[string]index.Unit, error) {
	out := map[string]index.Unit{}
	for _, w := range strings.Fields(text) {
		out[w] = index.Unit{}
	}
	return out, nil
})

func wordsExtension() index.Extension[string, string, index.Unit] {
	return index.Extension[string, string, index.Unit]{
		Name:    "words",
		Version: 1,
		Indexer: words,
		Keys:    index.StringDescriptor{},
		Values:  index.UnitExternalizer{},
	}
}

type fakePressure struct {
	callbacks map[int]func()
	next      int
}

func newFakePressure() *fakePressure {
	return &fakePressure{callbacks: map[int]func(){}}
}

func (p *fakePressure) Register(fn func()) func() {
	id := p.next
	p.next++
	p.callbacks[id] = fn
	return func() { delete(p.callbacks, id) }
}

func (p *fakePressure) fire() {
	for _, fn := range p.callbacks {
		fn()
	}
}

// flakyStorage fails the failAt-th AddValue with err.
type flakyStorage struct {
	*memstore.Storage[string, int]
	failAt int
	adds   int
	err    error
}

func (f *flakyStorage) AddValue(key string, id index.InputID, value int) error {
	f.adds++
	if f.failAt > 0 && f.adds == f.failAt {
		return f.err
	}
	return f.Storage.AddValue(key, id, value)
}
