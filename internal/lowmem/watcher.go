// Package lowmem raises low-memory signals when the live heap grows past a
// configured limit. Components register callbacks explicitly and remove them
// when they shut down.
package lowmem

import (
	"context"
	"log/slog"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// Watcher polls heap usage and notifies registered callbacks when it exceeds
// the limit. A zero limit disables polling; Signal still works.
type Watcher struct {
	limit    uint64
	interval time.Duration
	heap     func() uint64
	logger   *slog.Logger

	mu        sync.Mutex
	callbacks map[uint64]func()
	next      uint64
}

func NewWatcher(limit uint64, interval time.Duration) *Watcher {
	return &Watcher{
		limit:     limit,
		interval:  interval,
		heap:      heapInUse,
		logger:    logger.WithComponent("lowmem"),
		callbacks: make(map[uint64]func()),
	}
}

func heapInUse() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// Register adds fn to the set of callbacks and returns its removal function.
func (w *Watcher) Register(fn func()) (unregister func()) {
	w.mu.Lock()
	id := w.next
	w.next++
	w.callbacks[id] = fn
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.callbacks, id)
		w.mu.Unlock()
	}
}

// Registered is the number of live callbacks.
func (w *Watcher) Registered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.callbacks)
}

// Signal runs every registered callback. Callbacks run outside the watcher's
// lock, so they may unregister themselves.
func (w *Watcher) Signal() {
	w.mu.Lock()
	fns := make([]func(), 0, len(w.callbacks))
	for _, fn := range w.callbacks {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Check signals if heap usage is above the limit and reports whether it did.
func (w *Watcher) Check() bool {
	if w.limit == 0 {
		return false
	}
	used := w.heap()
	if used < w.limit {
		return false
	}
	w.logger.Warn("heap above limit, evicting index caches",
		"heap_bytes", used,
		"limit_bytes", w.limit,
	)
	w.Signal()
	return true
}

// Start polls until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	if w.limit == 0 || w.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Check()
			}
		}
	}()
}
