// Package memstore provides map-backed implementations of the index storage
// contracts. Data lives only as long as the process.
package memstore

import (
	"maps"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
)

// Storage is an in-memory index.Storage.
type Storage[K comparable, V comparable] struct {
	mu   sync.RWMutex
	data map[K]*index.UpdatableContainer[V]
}

func NewStorage[K comparable, V comparable]() *Storage[K, V] {
	return &Storage[K, V]{
		data: make(map[K]*index.UpdatableContainer[V]),
	}
}

// Read returns a copy of the stored container.
func (s *Storage[K, V]) Read(key K) (index.ValueContainer[V], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[key]
	if !ok {
		return index.EmptyContainer[V](), nil
	}
	return c.Clone(), nil
}

func (s *Storage[K, V]) AddValue(key K, id index.InputID, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[key]
	if !ok {
		c = index.NewContainer[V]()
		s.data[key] = c
	}
	c.AddValue(id, value)
	return nil
}

func (s *Storage[K, V]) RemoveAllValues(key K, id index.InputID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[key]
	if !ok {
		return nil
	}
	c.RemoveAssociatedValue(id)
	if c.IsEmpty() {
		delete(s.data, key)
	}
	return nil
}

func (s *Storage[K, V]) ProcessKeys(fn func(key K) bool) (bool, error) {
	s.mu.RLock()
	keys := make([]K, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	for _, k := range keys {
		if !fn(k) {
			return false, nil
		}
	}
	return true, nil
}

// Len is the number of keys with at least one association.
func (s *Storage[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Storage[K, V]) Clear() error {
	s.mu.Lock()
	s.data = make(map[K]*index.UpdatableContainer[V])
	s.mu.Unlock()
	return nil
}

func (s *Storage[K, V]) Flush() error { return nil }

func (s *Storage[K, V]) Close() error { return nil }

// Forward is an in-memory index.ForwardIndex.
type Forward[K comparable, V comparable] struct {
	mu   sync.RWMutex
	data map[index.InputID]map[K]V
}

func NewForward[K comparable, V comparable]() *Forward[K, V] {
	return &Forward[K, V]{
		data: make(map[index.InputID]map[K]V),
	}
}

func (f *Forward[K, V]) Get(id index.InputID) (map[K]V, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.data[id], nil
}

func (f *Forward[K, V]) Put(id index.InputID, data map[K]V) error {
	f.mu.Lock()
	f.data[id] = maps.Clone(data)
	f.mu.Unlock()
	return nil
}

func (f *Forward[K, V]) Remove(id index.InputID) error {
	f.mu.Lock()
	delete(f.data, id)
	f.mu.Unlock()
	return nil
}

// Len is the number of inputs with a recorded entry.
func (f *Forward[K, V]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data)
}

func (f *Forward[K, V]) Clear() error {
	f.mu.Lock()
	f.data = make(map[index.InputID]map[K]V)
	f.mu.Unlock()
	return nil
}

func (f *Forward[K, V]) Flush() error { return nil }

func (f *Forward[K, V]) Close() error { return nil }
