package index

import (
	"github.com/RoaringBitmap/roaring"
)

// ValueContainer is a read-only view of the (input, value) associations of
// a single key. Each input appears with at most one value.
type ValueContainer[V comparable] interface {
	// Size is the number of distinct values.
	Size() int
	Values() ValueIterator[V]
	// ForEach visits every association once. It stops and returns false as
	// soon as fn returns false.
	ForEach(fn func(id InputID, value V) bool) bool
}

// ValueIterator walks the distinct values of a container.
type ValueIterator[V comparable] interface {
	Next() bool
	Value() V
	InputIDs() IDIterator
	// Predicate tests membership of an input for the current value without
	// walking InputIDs. It may be nil.
	Predicate() func(InputID) bool
}

// IDIterator is a sized iterator over input ids.
type IDIterator interface {
	HasNext() bool
	Next() InputID
	Size() int
}

// UpdatableContainer is the mutable ValueContainer used by storages. It keeps
// one bitmap of inputs per value plus the reverse ownership map that enforces
// one value per input.
type UpdatableContainer[V comparable] struct {
	values map[V]*roaring.Bitmap
	owners map[InputID]V
}

func NewContainer[V comparable]() *UpdatableContainer[V] {
	return &UpdatableContainer[V]{
		values: make(map[V]*roaring.Bitmap),
		owners: make(map[InputID]V),
	}
}

// AddValue associates value with id, replacing any value id already had.
func (c *UpdatableContainer[V]) AddValue(id InputID, value V) {
	if prev, ok := c.owners[id]; ok {
		if prev == value {
			return
		}
		c.detach(id, prev)
	}
	bm, ok := c.values[value]
	if !ok {
		bm = roaring.New()
		c.values[value] = bm
	}
	bm.Add(uint32(id))
	c.owners[id] = value
}

// RemoveAssociatedValue drops the association of id and reports whether
// there was one.
func (c *UpdatableContainer[V]) RemoveAssociatedValue(id InputID) bool {
	prev, ok := c.owners[id]
	if !ok {
		return false
	}
	c.detach(id, prev)
	delete(c.owners, id)
	return true
}

func (c *UpdatableContainer[V]) detach(id InputID, value V) {
	bm := c.values[value]
	bm.Remove(uint32(id))
	if bm.IsEmpty() {
		delete(c.values, value)
	}
}

// Get returns the value associated with id.
func (c *UpdatableContainer[V]) Get(id InputID) (V, bool) {
	v, ok := c.owners[id]
	return v, ok
}

func (c *UpdatableContainer[V]) Size() int { return len(c.values) }

// Len is the number of associations.
func (c *UpdatableContainer[V]) Len() int { return len(c.owners) }

func (c *UpdatableContainer[V]) IsEmpty() bool { return len(c.owners) == 0 }

// InputIDs returns every input with an association in this container.
func (c *UpdatableContainer[V]) InputIDs() *roaring.Bitmap {
	all := roaring.New()
	for _, bm := range c.values {
		all.Or(bm)
	}
	return all
}

func (c *UpdatableContainer[V]) Values() ValueIterator[V] {
	entries := make([]valueEntry[V], 0, len(c.values))
	for v, bm := range c.values {
		entries = append(entries, valueEntry[V]{value: v, ids: bm})
	}
	return &valueIterator[V]{entries: entries, pos: -1}
}

func (c *UpdatableContainer[V]) ForEach(fn func(id InputID, value V) bool) bool {
	for v, bm := range c.values {
		it := bm.Iterator()
		for it.HasNext() {
			if !fn(InputID(it.Next()), v) {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy.
func (c *UpdatableContainer[V]) Clone() *UpdatableContainer[V] {
	out := &UpdatableContainer[V]{
		values: make(map[V]*roaring.Bitmap, len(c.values)),
		owners: make(map[InputID]V, len(c.owners)),
	}
	for v, bm := range c.values {
		out.values[v] = bm.Clone()
	}
	for id, v := range c.owners {
		out.owners[id] = v
	}
	return out
}

// CopyContainer materializes any ValueContainer into an UpdatableContainer.
func CopyContainer[V comparable](src ValueContainer[V]) *UpdatableContainer[V] {
	if uc, ok := src.(*UpdatableContainer[V]); ok {
		return uc.Clone()
	}
	out := NewContainer[V]()
	src.ForEach(func(id InputID, v V) bool {
		out.AddValue(id, v)
		return true
	})
	return out
}

// EmptyContainer returns a container with no associations.
func EmptyContainer[V comparable]() ValueContainer[V] {
	return NewContainer[V]()
}

type valueEntry[V comparable] struct {
	value V
	ids   *roaring.Bitmap
}

type valueIterator[V comparable] struct {
	entries []valueEntry[V]
	pos     int
}

func (it *valueIterator[V]) Next() bool {
	it.pos++
	return it.pos < len(it.entries)
}

func (it *valueIterator[V]) Value() V { return it.entries[it.pos].value }

func (it *valueIterator[V]) InputIDs() IDIterator {
	bm := it.entries[it.pos].ids
	return &bitmapIterator{it: bm.Iterator(), size: int(bm.GetCardinality())}
}

func (it *valueIterator[V]) Predicate() func(InputID) bool {
	bm := it.entries[it.pos].ids
	return func(id InputID) bool { return bm.Contains(uint32(id)) }
}

type bitmapIterator struct {
	it   roaring.IntPeekable
	size int
}

func (b *bitmapIterator) HasNext() bool { return b.it.HasNext() }
func (b *bitmapIterator) Next() InputID { return InputID(b.it.Next()) }
func (b *bitmapIterator) Size() int     { return b.size }
