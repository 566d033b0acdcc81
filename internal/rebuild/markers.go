package rebuild

import (
	"context"
	"fmt"
)

// DefaultMarkersKey is the Redis hash holding index name -> rebuild reason.
const DefaultMarkersKey = "ix:rebuild:markers"

// HashStore is the subset of *redis.Client the marker store uses.
type HashStore interface {
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Markers is an indexer.MarkerStore kept in one Redis hash.
type Markers struct {
	store HashStore
	key   string
}

func NewMarkers(store HashStore, key string) *Markers {
	if key == "" {
		key = DefaultMarkersKey
	}
	return &Markers{store: store, key: key}
}

func (m *Markers) Mark(ctx context.Context, index, reason string) error {
	if err := m.store.HSet(ctx, m.key, index, reason); err != nil {
		return fmt.Errorf("marking %s for rebuild: %w", index, err)
	}
	return nil
}

func (m *Markers) Unmark(ctx context.Context, index string) error {
	if err := m.store.HDel(ctx, m.key, index); err != nil {
		return fmt.Errorf("unmarking %s: %w", index, err)
	}
	return nil
}

func (m *Markers) Marked(ctx context.Context) (map[string]string, error) {
	marked, err := m.store.HGetAll(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("reading rebuild markers: %w", err)
	}
	return marked, nil
}
