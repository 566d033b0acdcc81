// Package badgerdb opens embedded badger databases with slog logging and
// periodic value-log garbage collection.
package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Options configures a database. Path is ignored when InMemory is set.
type Options struct {
	Path           string
	InMemory       bool
	SyncWrites     bool
	GCInterval     time.Duration
	GCDiscardRatio float64
	Logger         *slog.Logger
}

// InMemory returns options for a throwaway database.
func InMemory() Options {
	return Options{InMemory: true}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (l slogAdapter) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Badger is chatty at info level; its info lines are demoted to debug.
func (l slogAdapter) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB is a badger database plus its garbage collection loop.
type DB struct {
	*badger.DB
	opts   Options
	logger *slog.Logger

	gcOnce sync.Once
	stopGC context.CancelFunc
	gcDone chan struct{}
}

func Open(opts Options) (*DB, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("badger path is required for a persistent database")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating badger directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "badger")
	}
	bopts = bopts.WithLogger(slogAdapter{logger: logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database %s: %w", opts.Path, err)
	}
	return &DB{DB: db, opts: opts, logger: logger}, nil
}

// StartGC runs value-log garbage collection every GCInterval until ctx is
// done or the database is closed. It does nothing for in-memory databases or
// when no interval is configured.
func (d *DB) StartGC(ctx context.Context) {
	if d.opts.InMemory || d.opts.GCInterval <= 0 {
		return
	}
	d.gcOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		d.stopGC = cancel
		d.gcDone = make(chan struct{})
		go d.gcLoop(ctx)
	})
}

func (d *DB) gcLoop(ctx context.Context) {
	defer close(d.gcDone)
	ticker := time.NewTicker(d.opts.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runGC()
		}
	}
}

func (d *DB) runGC() {
	ratio := d.opts.GCDiscardRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	for {
		err := d.RunValueLogGC(ratio)
		if err == nil {
			d.logger.Debug("badger value log rewritten")
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
			d.logger.Warn("badger value log gc failed", "error", err)
		}
		return
	}
}

// Flush syncs written data to disk. In-memory databases have nothing to sync.
func (d *DB) Flush() error {
	if d.opts.InMemory {
		return nil
	}
	return d.Sync()
}

// Path is the directory of a persistent database, empty when in memory.
func (d *DB) Path() string {
	if d.opts.InMemory {
		return ""
	}
	return d.opts.Path
}

// Close stops garbage collection and closes the database.
func (d *DB) Close() error {
	if d.stopGC != nil {
		d.stopGC()
		<-d.gcDone
	}
	if d.DB.IsClosed() {
		return nil
	}
	return d.DB.Close()
}
