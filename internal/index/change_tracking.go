package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// changeTrackingContainer records buffered mutations of one key on top of
// the backing storage's view of it. The merged view is computed lazily and
// cached; once handed to a reader it is treated as immutable and the next
// write works on a copy.
type changeTrackingContainer[V comparable] struct {
	mu          sync.Mutex
	load        func() (ValueContainer[V], error)
	added       *UpdatableContainer[V]
	invalidated *roaring.Bitmap
	merged      *UpdatableContainer[V]
	shared      bool
}

func newChangeTrackingContainer[V comparable](load func() (ValueContainer[V], error)) *changeTrackingContainer[V] {
	return &changeTrackingContainer[V]{
		load:        load,
		added:       NewContainer[V](),
		invalidated: roaring.New(),
	}
}

func (c *changeTrackingContainer[V]) addValue(id InputID, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.merged != nil {
		c.ownMerged()
		c.merged.AddValue(id, value)
	}
	c.added.AddValue(id, value)
}

func (c *changeTrackingContainer[V]) removeAssociatedValue(id InputID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.merged != nil {
		c.ownMerged()
		c.merged.RemoveAssociatedValue(id)
	}
	c.added.RemoveAssociatedValue(id)
	c.invalidated.Add(uint32(id))
}

func (c *changeTrackingContainer[V]) ownMerged() {
	if c.shared {
		c.merged = c.merged.Clone()
		c.shared = false
	}
}

// view returns backing data with the buffered delta applied.
func (c *changeTrackingContainer[V]) view() (ValueContainer[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.merged == nil {
		base, err := c.load()
		if err != nil {
			return nil, err
		}
		merged := CopyContainer(base)
		it := c.invalidated.Iterator()
		for it.HasNext() {
			merged.RemoveAssociatedValue(InputID(it.Next()))
		}
		c.added.ForEach(func(id InputID, v V) bool {
			merged.AddValue(id, v)
			return true
		})
		c.merged = merged
	}
	c.shared = true
	return c.merged, nil
}

func (c *changeTrackingContainer[V]) hasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.added.IsEmpty() || !c.invalidated.IsEmpty()
}

func (c *changeTrackingContainer[V]) dropMerged() {
	c.mu.Lock()
	c.merged = nil
	c.shared = false
	c.mu.Unlock()
}

// drain writes the buffered delta into backing and resets it. The
// merged view stays valid since backing now holds the same data.
func (c *changeTrackingContainer[V]) drain(apply func(removed []InputID, added map[InputID]V) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.added.IsEmpty() && c.invalidated.IsEmpty() {
		return nil
	}
	removed := make([]InputID, 0, c.invalidated.GetCardinality())
	it := c.invalidated.Iterator()
	for it.HasNext() {
		removed = append(removed, InputID(it.Next()))
	}
	added := make(map[InputID]V, c.added.Len())
	c.added.ForEach(func(id InputID, v V) bool {
		added[id] = v
		return true
	})
	if err := apply(removed, added); err != nil {
		// backing may hold part of the delta; the merged view can no longer
		// be trusted to match it.
		c.merged = nil
		c.shared = false
		return err
	}
	c.added = NewContainer[V]()
	c.invalidated = roaring.New()
	return nil
}
