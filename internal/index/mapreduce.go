package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/metrics"
)

// PressureSource delivers low-memory signals. Register returns a function
// that removes the callback.
type PressureSource interface {
	Register(fn func()) (unregister func())
}

// Options configure a MapReduceIndex. The zero value is usable.
type Options struct {
	BufferingEnabled      bool
	ValidateValueContract bool
	// IsCancellation recognizes cooperative cancellation errors. Defaults to
	// errors.IsCancellation.
	IsCancellation func(error) bool
	// OnRebuild is called, without any index lock held, whenever the index
	// decides its persisted data can no longer be trusted.
	OnRebuild func(index string, cause error)
	Pressure  PressureSource
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// MapReduceIndex keeps an inverted index (key to inputs) and its forward
// index (input to keys) consistent under incremental updates. One RWMutex
// guards both; the map phase of an update runs without it.
type MapReduceIndex[I any, K comparable, V comparable] struct {
	ext     Extension[I, K, V]
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	storage  *MemoryStorage[K, V]
	forward  *BufferedForwardIndex[K, V]
	disposed bool

	stamp      atomic.Int64
	generation atomic.Pointer[string]
	unregister func()
}

// NewMapReduceIndex assembles an index over the given inverted storage and
// forward index. Both are owned by the index from here on and are closed by
// Dispose.
func NewMapReduceIndex[I any, K comparable, V comparable](
	ext Extension[I, K, V],
	storage Storage[K, V],
	forward ForwardIndex[K, V],
	opts Options,
) (*MapReduceIndex[I, K, V], error) {
	if err := ext.Validate(); err != nil {
		return nil, err
	}
	if opts.IsCancellation == nil {
		opts.IsCancellation = apperrors.IsCancellation
	}
	log := opts.Logger
	if log == nil {
		log = logger.ForIndex("index", ext.Name)
	}

	x := &MapReduceIndex[I, K, V]{
		ext:     ext,
		opts:    opts,
		logger:  log,
		metrics: opts.Metrics,
		storage: NewMemoryStorage(storage, opts.BufferingEnabled),
		forward: NewBufferedForwardIndex(forward, opts.BufferingEnabled),
	}
	x.storage.AddBufferingStateListener(x.forward)
	x.newGeneration()
	if opts.Pressure != nil {
		x.unregister = opts.Pressure.Register(func() { x.ClearCaches() })
	}
	return x, nil
}

func (x *MapReduceIndex[I, K, V]) Name() string { return x.ext.Name }

func (x *MapReduceIndex[I, K, V]) Version() int { return x.ext.Version }

// ModificationStamp changes whenever a commit changed data or the index was
// cleared. It restarts at zero on every open, so it only identifies a state
// together with Generation.
func (x *MapReduceIndex[I, K, V]) ModificationStamp() int64 {
	return x.stamp.Load()
}

// Generation is a random ID assigned when the index is opened and replaced
// on every Clear.
func (x *MapReduceIndex[I, K, V]) Generation() string {
	return *x.generation.Load()
}

func (x *MapReduceIndex[I, K, V]) newGeneration() {
	g := uuid.NewString()
	x.generation.Store(&g)
}

// Update runs the map phase for input id and returns the commit to apply.
// A nil content removes everything the input contributed.
func (x *MapReduceIndex[I, K, V]) Update(ctx context.Context, id InputID, content *I) (StorageUpdate, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: input id must be positive", apperrors.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mapping input %d: %w: %w", id, apperrors.ErrCanceled, err)
	}

	newData := map[K]V{}
	if content != nil {
		data, err := x.ext.Indexer.Map(ctx, *content)
		if err != nil {
			return nil, fmt.Errorf("mapping input %d: %w", id, err)
		}
		if data != nil {
			newData = data
		}
		if x.opts.ValidateValueContract {
			x.checkValueContract(id, newData)
		}
	}
	return &UpdateData[I, K, V]{index: x, id: id, newData: newData}, nil
}

func (x *MapReduceIndex[I, K, V]) commit(u *UpdateData[I, K, V]) bool {
	start := time.Now()
	x.mu.Lock()
	if x.disposed {
		x.mu.Unlock()
		x.metrics.ObserveCommit(x.ext.Name, "disposed", time.Since(start))
		x.logger.Warn("commit after dispose ignored", "input_id", u.id)
		return false
	}
	added, removed, err := x.applyLocked(u.id, u.newData)
	x.mu.Unlock()

	x.metrics.AddKeyMutations(x.ext.Name, added, removed)
	if err != nil {
		result := "failed"
		if x.opts.IsCancellation(err) {
			result = "canceled"
		}
		x.metrics.ObserveCommit(x.ext.Name, result, time.Since(start))
		x.RequestRebuild(fmt.Errorf("committing input %d: %w", u.id, err))
		return false
	}
	result := "ok"
	if added+removed == 0 {
		result = "unchanged"
	}
	x.metrics.ObserveCommit(x.ext.Name, result, time.Since(start))
	return true
}

// applyLocked writes the difference between the recorded and the new key map
// of id. All removals precede all additions.
func (x *MapReduceIndex[I, K, V]) applyLocked(id InputID, newData map[K]V) (added, removed int, err error) {
	old, err := x.forward.Get(id)
	if err != nil {
		return 0, 0, apperrors.Storage(x.ext.Name, "forward get", err)
	}

	for k, ov := range old {
		if nv, ok := newData[k]; ok && nv == ov {
			continue
		}
		if err := x.storage.RemoveAllValues(k, id); err != nil {
			return added, removed, apperrors.Storage(x.ext.Name, "remove", err)
		}
		removed++
	}
	for k, nv := range newData {
		if ov, ok := old[k]; ok && ov == nv {
			continue
		}
		if err := x.storage.AddValue(k, id, nv); err != nil {
			return added, removed, apperrors.Storage(x.ext.Name, "add", err)
		}
		added++
	}
	if added+removed == 0 {
		return 0, 0, nil
	}

	if len(newData) == 0 {
		err = x.forward.Remove(id)
	} else {
		err = x.forward.Put(id, newData)
	}
	if err != nil {
		return added, removed, apperrors.Storage(x.ext.Name, "forward put", err)
	}
	x.stamp.Add(1)
	return added, removed, nil
}

// GetData returns the inputs associated with key. On failure it requests a
// rebuild and returns an empty container together with the error.
func (x *MapReduceIndex[I, K, V]) GetData(key K) (ValueContainer[V], error) {
	x.mu.RLock()
	if x.disposed {
		x.mu.RUnlock()
		return EmptyContainer[V](), apperrors.ErrDisposed
	}
	c, err := x.storage.Read(key)
	x.mu.RUnlock()
	if err != nil {
		err = apperrors.Storage(x.ext.Name, "read", err)
		x.RequestRebuild(err)
		return EmptyContainer[V](), err
	}
	return c, nil
}

// InputData returns the key map recorded for id, or nil.
func (x *MapReduceIndex[I, K, V]) InputData(id InputID) (map[K]V, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.disposed {
		return nil, apperrors.ErrDisposed
	}
	data, err := x.forward.Get(id)
	if err != nil {
		return nil, apperrors.Storage(x.ext.Name, "forward get", err)
	}
	return data, nil
}

// ProcessAllKeys enumerates every key with at least one association until fn
// returns false. The keys are snapshotted under the read lock and fn runs
// without it, so fn may call back into the index.
func (x *MapReduceIndex[I, K, V]) ProcessAllKeys(fn func(key K) bool) (bool, error) {
	x.mu.RLock()
	if x.disposed {
		x.mu.RUnlock()
		return false, apperrors.ErrDisposed
	}
	var keys []K
	_, err := x.storage.ProcessKeys(func(key K) bool {
		keys = append(keys, key)
		return true
	})
	x.mu.RUnlock()
	if err != nil {
		err = apperrors.Storage(x.ext.Name, "process keys", err)
		x.RequestRebuild(err)
		return false, err
	}
	for _, key := range keys {
		if !fn(key) {
			return false, nil
		}
	}
	return true, nil
}

// Flush writes buffered data of both sides to their backing stores. A failed
// flush requests a rebuild.
func (x *MapReduceIndex[I, K, V]) Flush() error {
	x.mu.Lock()
	if x.disposed {
		x.mu.Unlock()
		return nil
	}
	err := errors.Join(x.storage.Flush(), x.forward.Flush())
	x.mu.Unlock()

	x.metrics.Flushed(x.ext.Name, err)
	if err != nil {
		err = apperrors.Storage(x.ext.Name, "flush", err)
		x.RequestRebuild(err)
		return err
	}
	return nil
}

// Clear drops all persisted and buffered data of the index.
func (x *MapReduceIndex[I, K, V]) Clear() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return apperrors.ErrDisposed
	}
	err := errors.Join(x.storage.Clear(), x.forward.Clear())
	x.newGeneration()
	x.stamp.Add(1)
	if err != nil {
		return apperrors.Storage(x.ext.Name, "clear", err)
	}
	x.logger.Info("index cleared")
	return nil
}

// SetBufferingEnabled toggles write buffering. Disabling it writes every
// buffered mutation through.
func (x *MapReduceIndex[I, K, V]) SetBufferingEnabled(enabled bool) error {
	x.mu.Lock()
	err := x.storage.SetBufferingEnabled(enabled)
	x.mu.Unlock()
	if err != nil {
		err = apperrors.Storage(x.ext.Name, "set buffering", err)
		x.RequestRebuild(err)
		return err
	}
	return nil
}

func (x *MapReduceIndex[I, K, V]) IsBufferingEnabled() bool {
	return x.storage.IsBufferingEnabled()
}

// DiscardBuffered throws away buffered mutations of both sides without
// writing them.
func (x *MapReduceIndex[I, K, V]) DiscardBuffered() {
	x.mu.Lock()
	x.storage.DiscardBuffered()
	x.stamp.Add(1)
	x.mu.Unlock()
}

// BufferedKeys is the number of keys with unflushed buffered mutations.
func (x *MapReduceIndex[I, K, V]) BufferedKeys() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := x.storage.BufferedKeys()
	x.metrics.SetBufferedKeys(x.ext.Name, n)
	return n
}

// ClearCaches drops merged views and cached forward entries. It gives up
// immediately if the write lock is busy and reports whether it ran.
func (x *MapReduceIndex[I, K, V]) ClearCaches() bool {
	if !x.mu.TryLock() {
		x.metrics.CacheEviction(x.ext.Name, false)
		return false
	}
	defer x.mu.Unlock()
	if x.disposed {
		return false
	}
	x.storage.ClearCaches()
	x.forward.Purge()
	x.metrics.CacheEviction(x.ext.Name, true)
	return true
}

// RequestRebuild reports that the persisted data cannot be trusted anymore.
func (x *MapReduceIndex[I, K, V]) RequestRebuild(cause error) {
	reason := "storage"
	if x.opts.IsCancellation(cause) {
		reason = "canceled"
	} else if !errors.Is(cause, apperrors.ErrStorage) {
		reason = "other"
	}
	x.metrics.RebuildRequested(x.ext.Name, reason)
	x.logger.Warn("index rebuild requested", "reason", reason, "cause", cause)
	if x.opts.OnRebuild != nil {
		x.opts.OnRebuild(x.ext.Name, cause)
	}
}

// Dispose flushes and closes the index. It is safe to call more than once.
func (x *MapReduceIndex[I, K, V]) Dispose() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return nil
	}
	x.disposed = true
	if x.unregister != nil {
		x.unregister()
	}
	err := errors.Join(x.storage.Close(), x.forward.Close())
	if err != nil {
		x.logger.Error("disposing index", "error", err)
		return apperrors.Storage(x.ext.Name, "close", err)
	}
	x.logger.Info("index disposed")
	return nil
}
