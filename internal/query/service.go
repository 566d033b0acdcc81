// Package query answers cross-key lookups over registered indexes. Results
// are cached in Redis under the index's modification stamp, so any change to
// the index makes earlier entries unreachable.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/resilience"
)

const (
	ModeAll = "all"
	ModeAny = "any"

	maxKeys = 64
)

// Request selects the inputs associated with Keys in Index.
type Request struct {
	Index   string   `json:"index"`
	Keys    []string `json:"keys"`
	Mode    string   `json:"mode,omitempty"`
	Context []string `json:"context,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

type Result struct {
	Index    string   `json:"index"`
	InputIDs []uint32 `json:"inputIds"`
	Total    uint64   `json:"total"`
	Stamp    int64    `json:"stamp"`
	Cached   bool     `json:"cached"`
}

// Cache stores serialized results. *redis.Client implements it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// StatusReader reports whether an index's data can be served.
// *indexer.Registry implements it.
type StatusReader interface {
	Status(name string) (indexer.Status, error)
}

type Service struct {
	status  StatusReader
	cache   Cache
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	group   singleflight.Group

	mu      sync.RWMutex
	sources map[string]Source
}

// NewService creates a query service. cache may be nil.
func NewService(status StatusReader, cache Cache, ttl time.Duration, m *metrics.Metrics) *Service {
	return &Service{
		status:  status,
		cache:   cache,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) { m.SetCircuitState(name, int(to)) },
		}),
		metrics: m,
		logger:  logger.WithComponent("query"),
		sources: make(map[string]Source),
	}
}

func (s *Service) Register(src Source) {
	s.mu.Lock()
	s.sources[src.Name()] = src
	s.mu.Unlock()
}

func (s *Service) source(name string) (Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, name)
	}
	return src, nil
}

// Search evaluates req. Indexes that are waiting for or running a rebuild are
// refused since their data is incomplete.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}
	src, err := s.source(req.Index)
	if err != nil {
		return nil, err
	}
	status, err := s.status.Status(req.Index)
	if err != nil {
		return nil, err
	}
	if status != indexer.StatusOK {
		return nil, fmt.Errorf("%w: %s is %s", apperrors.ErrRebuildInProgress, req.Index, status)
	}

	generation := src.Generation()
	stamp := src.ModificationStamp()
	key := cacheKey(req, generation, stamp)
	if bm, ok := s.cached(ctx, req.Index, key); ok {
		return result(req, stamp, bm, true), nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		bm, err := src.Evaluate(ctx, req)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, bm)
		return bm, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("query result shared", "index", req.Index)
	}
	return result(req, stamp, v.(*roaring.Bitmap), false), nil
}

func normalize(req *Request) error {
	if req.Index == "" {
		return fmt.Errorf("%w: index is required", apperrors.ErrInvalidInput)
	}
	if len(req.Keys) == 0 {
		return fmt.Errorf("%w: at least one key is required", apperrors.ErrInvalidInput)
	}
	if len(req.Keys) > maxKeys {
		return fmt.Errorf("%w: at most %d keys", apperrors.ErrInvalidInput, maxKeys)
	}
	switch req.Mode {
	case "":
		req.Mode = ModeAll
	case ModeAll, ModeAny:
	default:
		return fmt.Errorf("%w: mode must be %q or %q", apperrors.ErrInvalidInput, ModeAll, ModeAny)
	}
	if req.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", apperrors.ErrInvalidInput)
	}
	return nil
}

// cacheKey identifies a request at a generation and modification stamp. Key
// order does not matter, limit is applied after caching.
func cacheKey(req Request, generation string, stamp int64) string {
	keys := slices.Clone(req.Keys)
	slices.Sort(keys)
	ctxs := slices.Clone(req.Context)
	slices.Sort(ctxs)
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", req.Mode, strings.Join(ctxs, "\x01"), strings.Join(keys, "\x01"))
	return fmt.Sprintf("ix:q:%s:%s:%d:%s", req.Index, generation, stamp, hex.EncodeToString(h.Sum(nil))[:32])
}

func (s *Service) cached(ctx context.Context, name, key string) (*roaring.Bitmap, bool) {
	if s.cache == nil {
		return nil, false
	}
	var raw []byte
	err := s.breaker.Execute(func() error {
		var err error
		raw, err = s.cache.Get(ctx, key)
		if isMiss(err) {
			raw = nil
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			s.logger.Warn("query cache read failed", "index", name, "error", err)
		}
		return nil, false
	}
	if raw == nil {
		s.metrics.QueryCache(name, false)
		return nil, false
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(raw); err != nil {
		s.logger.Warn("discarding undecodable cache entry", "index", name, "error", err)
		s.metrics.QueryCache(name, false)
		return nil, false
	}
	s.metrics.QueryCache(name, true)
	return bm, true
}

func isMiss(err error) bool {
	return err != nil && redis.IsNilError(err)
}

func (s *Service) store(ctx context.Context, key string, bm *roaring.Bitmap) {
	if s.cache == nil {
		return
	}
	raw, err := bm.ToBytes()
	if err != nil {
		s.logger.Warn("serializing query result", "error", err)
		return
	}
	err = s.breaker.Execute(func() error {
		return s.cache.Set(ctx, key, raw, s.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		s.logger.Warn("query cache write failed", "error", err)
	}
}

func result(req Request, stamp int64, bm *roaring.Bitmap, cached bool) *Result {
	ids := bm.ToArray()
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}
	return &Result{
		Index:    req.Index,
		InputIDs: ids,
		Total:    bm.GetCardinality(),
		Stamp:    stamp,
		Cached:   cached,
	}
}
