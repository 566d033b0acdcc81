// Package index implements an incremental inverted index: arbitrary keys
// extracted from content are mapped to the set of inputs that produced them,
// each input contributing at most one value per key. Re-indexing an input
// diffs its new key map against the one recorded for it last time and applies
// only the changed associations.
package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

// InputID identifies a content unit. Valid ids are positive.
type InputID uint32

// KeyDescriptor serializes index keys. Equality and hashing come from Go's
// comparable constraint.
type KeyDescriptor[K comparable] interface {
	Marshal(key K) ([]byte, error)
	Unmarshal(data []byte) (K, error)
}

// ValueExternalizer serializes the values stored alongside each association.
type ValueExternalizer[V comparable] interface {
	Marshal(value V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

// DataIndexer maps one input to the keys it contributes and the value it
// associates with each. Implementations must not retain the returned map.
type DataIndexer[I any, K comparable, V comparable] interface {
	Map(ctx context.Context, content I) (map[K]V, error)
}

// DataIndexerFunc adapts a plain function to DataIndexer.
type DataIndexerFunc[I any, K comparable, V comparable] func(ctx context.Context, content I) (map[K]V, error)

func (f DataIndexerFunc[I, K, V]) Map(ctx context.Context, content I) (map[K]V, error) {
	return f(ctx, content)
}

// Extension bundles everything needed to build and persist one index.
// Changing Version invalidates all data persisted under the previous one.
type Extension[I any, K comparable, V comparable] struct {
	Name    string
	Version int
	Indexer DataIndexer[I, K, V]
	Keys    KeyDescriptor[K]
	Values  ValueExternalizer[V]
}

func (e Extension[I, K, V]) Validate() error {
	switch {
	case e.Name == "":
		return fmt.Errorf("%w: extension name is required", apperrors.ErrInvalidInput)
	case e.Version < 0:
		return fmt.Errorf("%w: extension %s has negative version", apperrors.ErrInvalidInput, e.Name)
	case e.Indexer == nil:
		return fmt.Errorf("%w: extension %s has no indexer", apperrors.ErrInvalidInput, e.Name)
	case e.Keys == nil || e.Values == nil:
		return fmt.Errorf("%w: extension %s is missing a key or value descriptor", apperrors.ErrInvalidInput, e.Name)
	}
	return nil
}

// Codec returns the byte codec backends use for this extension's data.
func (e Extension[I, K, V]) Codec() Codec[K, V] {
	return Codec[K, V]{Keys: e.Keys, Values: e.Values}
}

// StringDescriptor stores strings as their raw bytes.
type StringDescriptor struct{}

func (StringDescriptor) Marshal(s string) ([]byte, error) { return []byte(s), nil }

func (StringDescriptor) Unmarshal(data []byte) (string, error) { return string(data), nil }

// Uint32Descriptor stores integers big-endian so byte order matches numeric order.
type Uint32Descriptor struct{}

func (Uint32Descriptor) Marshal(v uint32) ([]byte, error) {
	return binary.BigEndian.AppendUint32(nil, v), nil
}

func (Uint32Descriptor) Unmarshal(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("uint32 descriptor: want 4 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

// ByteDescriptor stores a single byte, typically a bit mask.
type ByteDescriptor struct{}

func (ByteDescriptor) Marshal(v uint8) ([]byte, error) { return []byte{v}, nil }

func (ByteDescriptor) Unmarshal(data []byte) (uint8, error) {
	if len(data) != 1 {
		return 0, fmt.Errorf("byte descriptor: want 1 byte, got %d", len(data))
	}
	return data[0], nil
}

// Unit is the value type of presence-only indexes.
type Unit struct{}

// UnitExternalizer stores Unit as zero bytes.
type UnitExternalizer struct{}

func (UnitExternalizer) Marshal(Unit) ([]byte, error) { return nil, nil }

func (UnitExternalizer) Unmarshal(data []byte) (Unit, error) {
	if len(data) != 0 {
		return Unit{}, fmt.Errorf("unit externalizer: unexpected %d bytes", len(data))
	}
	return Unit{}, nil
}

// JSONDescriptor serializes any comparable struct through encoding/json.
type JSONDescriptor[T comparable] struct{}

func (JSONDescriptor[T]) Marshal(v T) ([]byte, error) { return json.Marshal(v) }

func (JSONDescriptor[T]) Unmarshal(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
