// Package indexer owns the set of named indexes served by a process: it opens
// their storage, tracks whether their data can be trusted, flushes them
// periodically and drives rebuilds.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/storage/badgerstore"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/storage/pgforward"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/badgerdb"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/postgres"
)

const markerTimeout = 3 * time.Second

var errVersionChanged = errors.New("index version changed")

// Handle is the type-independent view of a registered index.
type Handle interface {
	Name() string
	Version() int
	ModificationStamp() int64
	Generation() string
	Flush() error
	Clear() error
	Dispose() error
	BufferedKeys() int
	IsBufferingEnabled() bool
	SetBufferingEnabled(enabled bool) error
	ClearCaches() bool
	RequestRebuild(cause error)
}

// Deps are the optional collaborators of a Registry. Leave a field nil to
// go without it.
type Deps struct {
	Metrics  *metrics.Metrics
	Pressure index.PressureSource
	Notifier RebuildNotifier
	Markers  MarkerStore
	Postgres *postgres.Client
}

type entry struct {
	handle  Handle
	status  atomic.Int32
	closers []func() error

	mu     sync.Mutex
	reason string
}

func (e *entry) setReason(reason string) {
	e.mu.Lock()
	e.reason = reason
	e.mu.Unlock()
}

func (e *entry) getReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

type namedEntry struct {
	name string
	*entry
}

// IndexInfo summarizes one registered index.
type IndexInfo struct {
	Name              string `json:"name"`
	Version           int    `json:"version"`
	Status            string `json:"status"`
	ModificationStamp int64  `json:"modificationStamp"`
	Generation        string `json:"generation"`
	BufferedKeys      int    `json:"bufferedKeys"`
	Buffering         bool   `json:"buffering"`
}

// Registry maps index names to open indexes.
type Registry struct {
	cfg    config.IndexerConfig
	badger config.BadgerConfig
	deps   Deps
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	closed  bool
}

// NewRegistry creates an empty registry. Indexes live in sub-directories of
// cfg.DataDir unless badger runs in memory.
func NewRegistry(cfg config.IndexerConfig, badgerCfg config.BadgerConfig, deps Deps) (*Registry, error) {
	if !badgerCfg.InMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index data directory: %w", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:     cfg,
		badger:  badgerCfg,
		deps:    deps,
		logger:  logger.WithComponent("indexer"),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}, nil
}

// Register opens the storage of ext and adds the resulting index under
// ext.Name. Persisted data of another version is discarded and the index is
// marked for rebuild.
func Register[I any, K comparable, V comparable](ctx context.Context, r *Registry, ext index.Extension[I, K, V]) (*index.MapReduceIndex[I, K, V], error) {
	if err := ext.Validate(); err != nil {
		return nil, err
	}
	x, state, err := register(ctx, r, ext)
	if err != nil {
		return nil, err
	}
	if state == VersionStale {
		x.RequestRebuild(fmt.Errorf("%w to %d", errVersionChanged, ext.Version))
	}
	return x, nil
}

func register[I any, K comparable, V comparable](ctx context.Context, r *Registry, ext index.Extension[I, K, V]) (*index.MapReduceIndex[I, K, V], VersionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, 0, apperrors.ErrDisposed
	}
	if _, ok := r.entries[ext.Name]; ok {
		return nil, 0, fmt.Errorf("%w: index %q is already registered", apperrors.ErrInvalidInput, ext.Name)
	}

	log := r.logger.With("index", ext.Name)
	dir := filepath.Join(r.cfg.DataDir, ext.Name)
	state := VersionCreated
	if !r.badger.InMemory {
		var err error
		state, err = EnsureVersion(dir, ext.Version)
		if err != nil {
			return nil, 0, fmt.Errorf("checking version of index %s: %w", ext.Name, err)
		}
		if state == VersionStale {
			log.Warn("discarded index data of another version", "version", ext.Version)
		}
	}

	attempts := max(r.cfg.OpenAttempts, 1)
	var (
		x       *index.MapReduceIndex[I, K, V]
		closers []func() error
		err     error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		x, closers, err = openIndex(ctx, r, ext, dir, state != VersionCurrent)
		if err == nil {
			break
		}
		log.Error("opening index failed", "attempt", attempt, "error", err)
		if attempt == attempts || r.badger.InMemory {
			continue
		}
		if werr := wipe(dir); werr != nil {
			return nil, 0, werr
		}
		if werr := WriteVersion(dir, ext.Version); werr != nil {
			return nil, 0, werr
		}
		state = VersionStale
	}
	if err != nil {
		return nil, 0, fmt.Errorf("opening index %s: %w", ext.Name, err)
	}

	r.entries[ext.Name] = &entry{handle: x, closers: closers}
	r.order = append(r.order, ext.Name)
	r.deps.Metrics.SetRebuildStatus(ext.Name, int32(StatusOK))
	log.Info("index registered",
		"version", ext.Version,
		"forward_backend", r.cfg.ForwardBackend,
		"in_memory", r.badger.InMemory,
	)
	return x, state, nil
}

func openIndex[I any, K comparable, V comparable](ctx context.Context, r *Registry, ext index.Extension[I, K, V], dir string, fresh bool) (*index.MapReduceIndex[I, K, V], []func() error, error) {
	db, err := badgerdb.Open(badgerdb.Options{
		Path:           filepath.Join(dir, "kv"),
		InMemory:       r.badger.InMemory,
		SyncWrites:     r.badger.SyncWrites,
		GCInterval:     r.badger.GCInterval,
		GCDiscardRatio: r.badger.GCDiscardRatio,
		Logger:         logger.ForIndex("badger", ext.Name),
	})
	if err != nil {
		return nil, nil, err
	}
	codec := ext.Codec()
	forward, err := openForward(ctx, r, db, ext.Name, codec, fresh || r.badger.InMemory)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	x, err := index.NewMapReduceIndex(ext, badgerstore.NewStorage(db, ext.Name, codec), forward, r.indexOptions(ext.Name))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	db.StartGC(r.ctx)
	return x, []func() error{db.Close}, nil
}

// openForward picks the configured forward backend. A Postgres forward index
// outlives the badger directory, so it is cleared whenever that directory
// starts out empty.
func openForward[K comparable, V comparable](ctx context.Context, r *Registry, db *badgerdb.DB, name string, codec index.Codec[K, V], fresh bool) (index.ForwardIndex[K, V], error) {
	var forward index.ForwardIndex[K, V]
	switch r.cfg.ForwardBackend {
	case config.ForwardBackendPostgres:
		if r.deps.Postgres == nil {
			return nil, errors.New("postgres forward backend configured without a postgres client")
		}
		pf, err := pgforward.New(ctx, r.deps.Postgres, name, codec)
		if err != nil {
			return nil, err
		}
		if fresh {
			if err := pf.Clear(); err != nil {
				return nil, err
			}
		}
		forward = pf
	default:
		forward = badgerstore.NewForward(db, name, codec)
	}
	if r.cfg.ForwardCacheSize <= 0 {
		return forward, nil
	}
	cached, err := index.NewCachedForwardIndex(forward, r.cfg.ForwardCacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func (r *Registry) indexOptions(name string) index.Options {
	return index.Options{
		BufferingEnabled:      r.cfg.BufferingEnabled,
		ValidateValueContract: r.cfg.ValidateValueContract,
		OnRebuild:             r.RequestRebuild,
		Pressure:              r.deps.Pressure,
		Metrics:               r.deps.Metrics,
		Logger:                logger.ForIndex("index", name),
	}
}

// Get returns the index registered under name.
func (r *Registry) Get(name string) (Handle, error) {
	e, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return e.handle, nil
}

// Lookup returns the index registered under name with its concrete types.
func Lookup[I any, K comparable, V comparable](r *Registry, name string) (*index.MapReduceIndex[I, K, V], error) {
	h, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	x, ok := h.(*index.MapReduceIndex[I, K, V])
	if !ok {
		return nil, fmt.Errorf("%w: index %s has different content, key or value types", apperrors.ErrInvalidInput, name)
	}
	return x, nil
}

func (r *Registry) entry(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, name)
	}
	return e, nil
}

// snapshot copies the entries in registration order. Callers iterate it
// without holding r.mu since index operations may call back into the
// registry.
func (r *Registry) snapshot() []namedEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]namedEntry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, namedEntry{name: name, entry: r.entries[name]})
	}
	return out
}

// Names lists registered indexes in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Indexes() []IndexInfo {
	entries := r.snapshot()
	out := make([]IndexInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, IndexInfo{
			Name:              e.name,
			Version:           e.handle.Version(),
			Status:            Status(e.status.Load()).String(),
			ModificationStamp: e.handle.ModificationStamp(),
			Generation:        e.handle.Generation(),
			BufferedKeys:      e.handle.BufferedKeys(),
			Buffering:         e.handle.IsBufferingEnabled(),
		})
	}
	return out
}

// FlushAll flushes every index. A failing index requests its own rebuild.
func (r *Registry) FlushAll() error {
	var errs []error
	for _, e := range r.snapshot() {
		pending := e.handle.BufferedKeys()
		if err := e.handle.Flush(); err != nil {
			r.logger.Error("flush failed", "index", e.name, "error", err)
			errs = append(errs, err)
			continue
		}
		if pending > 0 {
			r.logger.Debug("index flushed", "index", e.name, "keys", pending)
		}
	}
	return errors.Join(errs...)
}

// SetBufferingEnabled toggles write buffering of every index.
func (r *Registry) SetBufferingEnabled(enabled bool) error {
	var errs []error
	for _, e := range r.snapshot() {
		if err := e.handle.SetBufferingEnabled(enabled); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartFlushLoop flushes every index and starts pending rebuilds each
// FlushInterval until ctx is done, then flushes one last time.
func (r *Registry) StartFlushLoop(ctx context.Context) {
	if r.cfg.FlushInterval <= 0 {
		r.logger.Info("periodic flush disabled")
		return
	}
	ticker := time.NewTicker(r.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("flush loop stopping, performing final flush")
				if err := r.FlushAll(); err != nil {
					r.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := r.FlushAll(); err != nil {
					r.logger.Error("periodic flush failed", "error", err)
				}
				if err := r.CheckRebuild(ctx); err != nil {
					r.logger.Error("starting rebuild failed", "error", err)
				}
			}
		}
	}()
}

// Close disposes every index in reverse registration order and releases
// their databases.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	entries := r.snapshot()
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := e.handle.Dispose(); err != nil {
			r.logger.Error("dispose failed", "index", e.name, "error", err)
			errs = append(errs, err)
		}
		for _, closeFn := range e.closers {
			if err := closeFn(); err != nil {
				r.logger.Error("close failed", "index", e.name, "error", err)
				errs = append(errs, err)
			}
		}
	}
	r.cancel()
	r.logger.Info("index registry closed", "indexes", len(entries))
	return errors.Join(errs...)
}
