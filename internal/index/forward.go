package index

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// BufferedForwardIndex follows the buffering state of a MemoryStorage so the
// forward side never gets ahead of the inverted side. While buffering, writes
// land in a temporary map that shadows the backing forward index.
type BufferedForwardIndex[K comparable, V comparable] struct {
	backing ForwardIndex[K, V]

	mu        sync.Mutex
	buffering bool
	// an empty map marks a removal
	temp map[InputID]map[K]V
}

func NewBufferedForwardIndex[K comparable, V comparable](backing ForwardIndex[K, V], buffering bool) *BufferedForwardIndex[K, V] {
	return &BufferedForwardIndex[K, V]{
		backing:   backing,
		buffering: buffering,
		temp:      make(map[InputID]map[K]V),
	}
}

func (f *BufferedForwardIndex[K, V]) Get(id InputID) (map[K]V, error) {
	f.mu.Lock()
	data, ok := f.temp[id]
	f.mu.Unlock()
	if ok {
		if len(data) == 0 {
			return nil, nil
		}
		return data, nil
	}
	return f.backing.Get(id)
}

func (f *BufferedForwardIndex[K, V]) Put(id InputID, data map[K]V) error {
	f.mu.Lock()
	if f.buffering {
		f.temp[id] = maps.Clone(data)
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()
	return f.backing.Put(id, data)
}

func (f *BufferedForwardIndex[K, V]) Remove(id InputID) error {
	f.mu.Lock()
	if f.buffering {
		f.temp[id] = map[K]V{}
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()
	return f.backing.Remove(id)
}

func (f *BufferedForwardIndex[K, V]) BufferingStateChanged(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !enabled {
		if err := f.drainLocked(); err != nil {
			return err
		}
	}
	f.buffering = enabled
	return nil
}

func (f *BufferedForwardIndex[K, V]) MemoryStorageCleared() {
	f.mu.Lock()
	f.temp = make(map[InputID]map[K]V)
	f.mu.Unlock()
}

func (f *BufferedForwardIndex[K, V]) drainLocked() error {
	for id, data := range f.temp {
		var err error
		if len(data) == 0 {
			err = f.backing.Remove(id)
		} else {
			err = f.backing.Put(id, data)
		}
		if err != nil {
			return fmt.Errorf("draining forward entry %d: %w", id, err)
		}
		delete(f.temp, id)
	}
	return nil
}

// Buffered is the number of inputs with forward entries not yet written to
// the backing forward index.
func (f *BufferedForwardIndex[K, V]) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.temp)
}

func (f *BufferedForwardIndex[K, V]) Flush() error {
	f.mu.Lock()
	err := f.drainLocked()
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.backing.Flush()
}

func (f *BufferedForwardIndex[K, V]) Clear() error {
	f.mu.Lock()
	f.temp = make(map[InputID]map[K]V)
	f.mu.Unlock()
	return f.backing.Clear()
}

func (f *BufferedForwardIndex[K, V]) Close() error {
	return errors.Join(f.Flush(), f.backing.Close())
}

// Purge forwards cache eviction to the backing index when it caches.
func (f *BufferedForwardIndex[K, V]) Purge() {
	if p, ok := f.backing.(interface{ Purge() }); ok {
		p.Purge()
	}
}

// CachedForwardIndex keeps recently used decoded forward entries in an LRU
// in front of a persistent forward index.
type CachedForwardIndex[K comparable, V comparable] struct {
	backing ForwardIndex[K, V]
	cache   *lru.Cache[InputID, map[K]V]
}

func NewCachedForwardIndex[K comparable, V comparable](backing ForwardIndex[K, V], size int) (*CachedForwardIndex[K, V], error) {
	cache, err := lru.New[InputID, map[K]V](size)
	if err != nil {
		return nil, fmt.Errorf("creating forward cache: %w", err)
	}
	return &CachedForwardIndex[K, V]{backing: backing, cache: cache}, nil
}

func (f *CachedForwardIndex[K, V]) Get(id InputID) (map[K]V, error) {
	if data, ok := f.cache.Get(id); ok {
		return data, nil
	}
	data, err := f.backing.Get(id)
	if err != nil {
		return nil, err
	}
	f.cache.Add(id, data)
	return data, nil
}

func (f *CachedForwardIndex[K, V]) Put(id InputID, data map[K]V) error {
	if err := f.backing.Put(id, data); err != nil {
		f.cache.Remove(id)
		return err
	}
	f.cache.Add(id, data)
	return nil
}

func (f *CachedForwardIndex[K, V]) Remove(id InputID) error {
	f.cache.Remove(id)
	return f.backing.Remove(id)
}

func (f *CachedForwardIndex[K, V]) Purge() { f.cache.Purge() }

func (f *CachedForwardIndex[K, V]) Len() int { return f.cache.Len() }

func (f *CachedForwardIndex[K, V]) Flush() error { return f.backing.Flush() }

func (f *CachedForwardIndex[K, V]) Clear() error {
	f.cache.Purge()
	return f.backing.Clear()
}

func (f *CachedForwardIndex[K, V]) Close() error {
	f.cache.Purge()
	return f.backing.Close()
}
