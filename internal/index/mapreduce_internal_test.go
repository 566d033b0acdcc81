package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyStorage struct{}

func (emptyStorage) Read(string) (ValueContainer[int], error)    { return EmptyContainer[int](), nil }
func (emptyStorage) AddValue(string, InputID, int) error         { return nil }
func (emptyStorage) RemoveAllValues(string, InputID) error       { return nil }
func (emptyStorage) ProcessKeys(func(string) bool) (bool, error) { return true, nil }
func (emptyStorage) Clear() error                                { return nil }
func (emptyStorage) Flush() error                                { return nil }
func (emptyStorage) Close() error                                { return nil }

type emptyForward struct{}

func (emptyForward) Get(InputID) (map[string]int, error) { return nil, nil }
func (emptyForward) Put(InputID, map[string]int) error   { return nil }
func (emptyForward) Remove(InputID) error                { return nil }
func (emptyForward) Clear() error                        { return nil }
func (emptyForward) Flush() error                        { return nil }
func (emptyForward) Close() error                        { return nil }

func newBufferedTestIndex(t *testing.T) *MapReduceIndex[map[string]int, string, int] {
	t.Helper()
	ext := Extension[map[string]int, string, int]{
		Name:    "internal",
		Version: 1,
		Indexer: DataIndexerFunc[map[string]int, string, int](func(_ context.Context, in map[string]int) (map[string]int, error) {
			return in, nil
		}),
		Keys:   StringDescriptor{},
		Values: JSONDescriptor[int]{},
	}
	x, err := NewMapReduceIndex(ext, Storage[string, int](emptyStorage{}), ForwardIndex[string, int](emptyForward{}), Options{BufferingEnabled: true})
	require.NoError(t, err)
	return x
}

func TestClearCachesSkipsWhenWriteLockIsBusy(t *testing.T) {
	x := newBufferedTestIndex(t)
	data := map[string]int{"k": 1}
	u, err := x.Update(context.Background(), 1, &data)
	require.NoError(t, err)
	require.True(t, u.Update())
	_, err = x.GetData("k")
	require.NoError(t, err)

	x.mu.RLock()
	assert.False(t, x.ClearCaches())
	x.mu.RUnlock()

	assert.True(t, x.ClearCaches())
	c := x.storage.containers["k"]
	require.NotNil(t, c)
	assert.Nil(t, c.merged)
	assert.True(t, c.hasChanges())
}

func TestChangeTrackingDrainOrdersRemovalsFirst(t *testing.T) {
	base := NewContainer[int]()
	base.AddValue(1, 1)
	c := newChangeTrackingContainer(func() (ValueContainer[int], error) { return base, nil })

	c.removeAssociatedValue(1)
	c.addValue(1, 2)

	var log []string
	err := c.drain(func(removed []InputID, added map[InputID]int) error {
		for _, id := range removed {
			base.RemoveAssociatedValue(id)
			log = append(log, "remove")
		}
		for id, v := range added {
			base.AddValue(id, v)
			log = append(log, "add")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"remove", "add"}, log)
	v, _ := base.Get(1)
	assert.Equal(t, 2, v)
	assert.False(t, c.hasChanges())
}
