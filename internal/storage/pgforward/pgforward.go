// Package pgforward keeps the forward side of indexes in PostgreSQL, one row
// per (index, input). Several indexes share the table.
package pgforward

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS index_forward (
	index_name TEXT   NOT NULL,
	input_id   BIGINT NOT NULL,
	data       BYTEA  NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (index_name, input_id)
)`

// Forward is a PostgreSQL-backed index.ForwardIndex. The client is owned by
// the caller.
type Forward[K comparable, V comparable] struct {
	client *postgres.Client
	name   string
	codec  index.Codec[K, V]
}

// New ensures the table exists and returns the forward index of one index.
func New[K comparable, V comparable](ctx context.Context, client *postgres.Client, name string, codec index.Codec[K, V]) (*Forward[K, V], error) {
	if err := client.EnsureSchema(ctx, schema); err != nil {
		return nil, apperrors.Storage(name, "forward schema", err)
	}
	return &Forward[K, V]{client: client, name: name, codec: codec}, nil
}

func (f *Forward[K, V]) Get(id index.InputID) (map[K]V, error) {
	ctx, cancel := f.client.QueryContext(context.Background())
	defer cancel()

	var raw []byte
	err := f.client.DB.QueryRowContext(ctx,
		`SELECT data FROM index_forward WHERE index_name = $1 AND input_id = $2`,
		f.name, int64(id),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage(f.name, "forward get", err)
	}
	data, err := f.codec.DecodeForward(raw)
	if err != nil {
		return nil, apperrors.Storage(f.name, "forward get", err)
	}
	return data, nil
}

func (f *Forward[K, V]) Put(id index.InputID, data map[K]V) error {
	raw, err := f.codec.EncodeForward(data)
	if err != nil {
		return apperrors.Storage(f.name, "forward put", err)
	}
	ctx, cancel := f.client.QueryContext(context.Background())
	defer cancel()
	_, err = f.client.DB.ExecContext(ctx,
		`INSERT INTO index_forward (index_name, input_id, data) VALUES ($1, $2, $3)
		 ON CONFLICT (index_name, input_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		f.name, int64(id), raw,
	)
	return apperrors.Storage(f.name, "forward put", err)
}

func (f *Forward[K, V]) Remove(id index.InputID) error {
	ctx, cancel := f.client.QueryContext(context.Background())
	defer cancel()
	_, err := f.client.DB.ExecContext(ctx,
		`DELETE FROM index_forward WHERE index_name = $1 AND input_id = $2`,
		f.name, int64(id),
	)
	return apperrors.Storage(f.name, "forward remove", err)
}

func (f *Forward[K, V]) Clear() error {
	ctx, cancel := f.client.QueryContext(context.Background())
	defer cancel()
	_, err := f.client.DB.ExecContext(ctx, `DELETE FROM index_forward WHERE index_name = $1`, f.name)
	return apperrors.Storage(f.name, "forward clear", err)
}

// Flush is a no-op: every statement commits on its own.
func (f *Forward[K, V]) Flush() error { return nil }

func (f *Forward[K, V]) Close() error { return nil }
