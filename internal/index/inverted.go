package index

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring"

	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

// DataReader is the read side of an index. *MapReduceIndex implements it.
type DataReader[K comparable, V comparable] interface {
	GetData(key K) (ValueContainer[V], error)
}

// CollectInputIDsContainingAllKeys returns the inputs associated with every
// key. valueFilter and idFilter may be nil. The intersection stops as soon as
// it becomes empty.
func CollectInputIDsContainingAllKeys[K comparable, V comparable](
	ctx context.Context,
	reader DataReader[K, V],
	keys []K,
	valueFilter func(V) bool,
	idFilter func(InputID) bool,
) (*roaring.Bitmap, error) {
	var result *roaring.Bitmap
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}
		c, err := reader.GetData(key)
		if err != nil {
			return nil, fmt.Errorf("reading key %v: %w", key, err)
		}

		next := roaring.New()
		it := c.Values()
		for it.Next() {
			if err := ctx.Err(); err != nil {
				return nil, canceled(err)
			}
			if valueFilter != nil && !valueFilter(it.Value()) {
				continue
			}
			ids := it.InputIDs()
			switch {
			case result == nil:
				for ids.HasNext() {
					id := ids.Next()
					if idFilter == nil || idFilter(id) {
						next.Add(uint32(id))
					}
				}
			case it.Predicate() != nil && result.GetCardinality() < uint64(ids.Size()):
				contains := it.Predicate()
				rit := result.Iterator()
				for rit.HasNext() {
					id := rit.Next()
					if contains(InputID(id)) {
						next.Add(id)
					}
				}
			default:
				for ids.HasNext() {
					id := ids.Next()
					if result.Contains(uint32(id)) {
						next.Add(uint32(id))
					}
				}
			}
		}
		result = next
		if result.IsEmpty() {
			return result, nil
		}
	}
	if result == nil {
		return roaring.New(), nil
	}
	return result, nil
}

// CollectInputIDsContainingAnyKey returns the inputs associated with at least
// one key.
func CollectInputIDsContainingAnyKey[K comparable, V comparable](
	ctx context.Context,
	reader DataReader[K, V],
	keys []K,
	valueFilter func(V) bool,
	idFilter func(InputID) bool,
) (*roaring.Bitmap, error) {
	result := roaring.New()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}
		c, err := reader.GetData(key)
		if err != nil {
			return nil, fmt.Errorf("reading key %v: %w", key, err)
		}
		it := c.Values()
		for it.Next() {
			if err := ctx.Err(); err != nil {
				return nil, canceled(err)
			}
			if valueFilter != nil && !valueFilter(it.Value()) {
				continue
			}
			ids := it.InputIDs()
			for ids.HasNext() {
				id := ids.Next()
				if idFilter == nil || idFilter(id) {
					result.Add(uint32(id))
				}
			}
		}
	}
	return result, nil
}

func canceled(cause error) error {
	return fmt.Errorf("collecting input ids: %w: %w", apperrors.ErrCanceled, cause)
}
