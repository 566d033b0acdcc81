package index

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryStorage buffers mutations in memory in front of a backing Storage.
// While buffering is enabled writes only touch in-memory change-tracking
// containers; reads see backing data merged with those changes. Flush and
// disabling buffering push every buffered change to the backing storage.
type MemoryStorage[K comparable, V comparable] struct {
	backing Storage[K, V]

	mu         sync.RWMutex
	containers map[K]*changeTrackingContainer[V]
	listeners  []BufferingStateListener

	buffering atomic.Bool
}

func NewMemoryStorage[K comparable, V comparable](backing Storage[K, V], buffering bool) *MemoryStorage[K, V] {
	s := &MemoryStorage[K, V]{
		backing:    backing,
		containers: make(map[K]*changeTrackingContainer[V]),
	}
	s.buffering.Store(buffering)
	return s
}

func (s *MemoryStorage[K, V]) AddBufferingStateListener(l BufferingStateListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *MemoryStorage[K, V]) IsBufferingEnabled() bool {
	return s.buffering.Load()
}

// SetBufferingEnabled switches buffering on or off. Switching it off drains
// all buffered mutations into the backing storage first.
func (s *MemoryStorage[K, V]) SetBufferingEnabled(enabled bool) error {
	if s.buffering.Load() == enabled {
		return nil
	}
	if !enabled {
		if err := s.drainAll(); err != nil {
			return err
		}
	}
	s.buffering.Store(enabled)

	s.mu.RLock()
	listeners := append([]BufferingStateListener(nil), s.listeners...)
	s.mu.RUnlock()
	var errs []error
	for _, l := range listeners {
		if err := l.BufferingStateChanged(enabled); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MemoryStorage[K, V]) Read(key K) (ValueContainer[V], error) {
	s.mu.RLock()
	c, ok := s.containers[key]
	s.mu.RUnlock()
	if ok {
		return c.view()
	}
	return s.backing.Read(key)
}

func (s *MemoryStorage[K, V]) AddValue(key K, id InputID, value V) error {
	if s.buffering.Load() {
		s.container(key).addValue(id, value)
		return nil
	}
	if err := s.backing.AddValue(key, id, value); err != nil {
		return err
	}
	s.invalidate(key)
	return nil
}

func (s *MemoryStorage[K, V]) RemoveAllValues(key K, id InputID) error {
	if s.buffering.Load() {
		s.container(key).removeAssociatedValue(id)
		return nil
	}
	if err := s.backing.RemoveAllValues(key, id); err != nil {
		return err
	}
	s.invalidate(key)
	return nil
}

func (s *MemoryStorage[K, V]) container(key K) *changeTrackingContainer[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[key]
	if !ok {
		c = newChangeTrackingContainer(func() (ValueContainer[V], error) {
			return s.backing.Read(key)
		})
		s.containers[key] = c
	}
	return c
}

// invalidate forgets the merged view of key after a write-through.
func (s *MemoryStorage[K, V]) invalidate(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[key]
	if !ok {
		return
	}
	if c.hasChanges() {
		c.dropMerged()
		return
	}
	delete(s.containers, key)
}

// ProcessKeys reports every key once. Keys known to the buffer are reported
// from their merged view and skipped when that view is empty.
func (s *MemoryStorage[K, V]) ProcessKeys(fn func(key K) bool) (bool, error) {
	s.mu.RLock()
	snapshot := make(map[K]*changeTrackingContainer[V], len(s.containers))
	for k, c := range s.containers {
		snapshot[k] = c
	}
	s.mu.RUnlock()

	for k, c := range snapshot {
		view, err := c.view()
		if err != nil {
			return false, err
		}
		if view.Size() == 0 {
			continue
		}
		if !fn(k) {
			return false, nil
		}
	}
	return s.backing.ProcessKeys(func(k K) bool {
		if _, seen := snapshot[k]; seen {
			return true
		}
		return fn(k)
	})
}

// ClearCaches drops merged views to release memory. Buffered mutations are
// kept.
func (s *MemoryStorage[K, V]) ClearCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.containers {
		if c.hasChanges() {
			c.dropMerged()
			continue
		}
		delete(s.containers, k)
	}
}

// BufferedKeys is the number of keys with mutations not yet written to the
// backing storage.
func (s *MemoryStorage[K, V]) BufferedKeys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.containers {
		if c.hasChanges() {
			n++
		}
	}
	return n
}

// DiscardBuffered drops every buffered mutation without writing it and
// notifies listeners.
func (s *MemoryStorage[K, V]) DiscardBuffered() {
	s.mu.Lock()
	s.containers = make(map[K]*changeTrackingContainer[V])
	listeners := append([]BufferingStateListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.MemoryStorageCleared()
	}
}

func (s *MemoryStorage[K, V]) drainAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dw, hasDelta := s.backing.(DeltaWriter[K, V])
	for k, c := range s.containers {
		err := c.drain(func(removed []InputID, added map[InputID]V) error {
			if hasDelta {
				return dw.ApplyDelta(k, removed, added)
			}
			for _, id := range removed {
				if err := s.backing.RemoveAllValues(k, id); err != nil {
					return err
				}
			}
			for id, v := range added {
				if err := s.backing.AddValue(k, id, v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("draining buffered key %v: %w", k, err)
		}
	}
	return nil
}

// Flush drains buffered mutations and flushes the backing storage.
func (s *MemoryStorage[K, V]) Flush() error {
	if err := s.drainAll(); err != nil {
		return err
	}
	return s.backing.Flush()
}

func (s *MemoryStorage[K, V]) Clear() error {
	s.mu.Lock()
	s.containers = make(map[K]*changeTrackingContainer[V])
	s.mu.Unlock()
	return s.backing.Clear()
}

func (s *MemoryStorage[K, V]) Close() error {
	return errors.Join(s.Flush(), s.backing.Close())
}
