package index

// Storage persists the inverted side of an index: key to ValueContainer.
//
// Read must be safe to call concurrently with other reads and must return an
// empty container, never nil, for an absent key. Mutations are only issued
// while the owning MapReduceIndex holds its write lock. Failures should be
// reported as *errors.StorageError so callers can recognize them.
type Storage[K comparable, V comparable] interface {
	Read(key K) (ValueContainer[V], error)
	AddValue(key K, id InputID, value V) error
	RemoveAllValues(key K, id InputID) error
	// ProcessKeys enumerates every stored key until fn returns false. The
	// boolean result is false when enumeration stopped early.
	ProcessKeys(fn func(key K) bool) (bool, error)
	Clear() error
	Flush() error
	Close() error
}

// DeltaWriter is implemented by storages that can apply all pending changes
// for a key in one write. Removals are applied before additions.
type DeltaWriter[K comparable, V comparable] interface {
	ApplyDelta(key K, removed []InputID, added map[InputID]V) error
}

// ForwardIndex persists, for each input, the keys it contributed and the
// value it contributed under each. A single Put is assumed atomic.
type ForwardIndex[K comparable, V comparable] interface {
	// Get returns nil when nothing is recorded for id. Callers must not
	// modify the returned map.
	Get(id InputID) (map[K]V, error)
	Put(id InputID, data map[K]V) error
	Remove(id InputID) error
	Clear() error
	Flush() error
	Close() error
}

// BufferingStateListener observes buffering transitions of a MemoryStorage.
type BufferingStateListener interface {
	BufferingStateChanged(enabled bool) error
	MemoryStorageCleared()
}
