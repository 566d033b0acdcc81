// Package badgerstore persists both sides of an index in a badger database.
// The inverted side lives under the "v/" prefix, one record per key; the
// forward side lives under "f/", one record per input.
//
// The database is shared by the two sides and owned by the caller: Close on
// either side does not close it.
package badgerstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/badgerdb"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

var (
	invertedPrefix = []byte("v/")
	forwardPrefix  = []byte("f/")
)

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// Storage is a badger-backed index.Storage.
type Storage[K comparable, V comparable] struct {
	db    *badgerdb.DB
	name  string
	codec index.Codec[K, V]
}

func NewStorage[K comparable, V comparable](db *badgerdb.DB, name string, codec index.Codec[K, V]) *Storage[K, V] {
	return &Storage[K, V]{db: db, name: name, codec: codec}
}

func (s *Storage[K, V]) dbKey(key K) ([]byte, error) {
	kb, err := s.codec.EncodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding key %v: %w", key, err)
	}
	return prefixed(invertedPrefix, kb), nil
}

func (s *Storage[K, V]) load(txn *badger.Txn, dbKey []byte) (*index.UpdatableContainer[V], error) {
	item, err := txn.Get(dbKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return index.NewContainer[V](), nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return s.codec.DecodeContainer(raw)
}

func (s *Storage[K, V]) store(txn *badger.Txn, dbKey []byte, c *index.UpdatableContainer[V]) error {
	if c.IsEmpty() {
		return txn.Delete(dbKey)
	}
	raw, err := s.codec.EncodeContainer(c)
	if err != nil {
		return err
	}
	return txn.Set(dbKey, raw)
}

func (s *Storage[K, V]) Read(key K) (index.ValueContainer[V], error) {
	dbKey, err := s.dbKey(key)
	if err != nil {
		return nil, apperrors.Storage(s.name, "read", err)
	}
	var c *index.UpdatableContainer[V]
	err = s.db.View(func(txn *badger.Txn) error {
		c, err = s.load(txn, dbKey)
		return err
	})
	if err != nil {
		return nil, apperrors.Storage(s.name, "read", err)
	}
	return c, nil
}

// modify runs a read-modify-write of one key's container.
func (s *Storage[K, V]) modify(op string, key K, fn func(c *index.UpdatableContainer[V])) error {
	dbKey, err := s.dbKey(key)
	if err != nil {
		return apperrors.Storage(s.name, op, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		c, err := s.load(txn, dbKey)
		if err != nil {
			return err
		}
		fn(c)
		return s.store(txn, dbKey, c)
	})
	return apperrors.Storage(s.name, op, err)
}

func (s *Storage[K, V]) AddValue(key K, id index.InputID, value V) error {
	return s.modify("add", key, func(c *index.UpdatableContainer[V]) {
		c.AddValue(id, value)
	})
}

func (s *Storage[K, V]) RemoveAllValues(key K, id index.InputID) error {
	return s.modify("remove", key, func(c *index.UpdatableContainer[V]) {
		c.RemoveAssociatedValue(id)
	})
}

// ApplyDelta writes all buffered changes of key in one transaction.
func (s *Storage[K, V]) ApplyDelta(key K, removed []index.InputID, added map[index.InputID]V) error {
	return s.modify("apply delta", key, func(c *index.UpdatableContainer[V]) {
		for _, id := range removed {
			c.RemoveAssociatedValue(id)
		}
		for id, v := range added {
			c.AddValue(id, v)
		}
	})
}

func (s *Storage[K, V]) ProcessKeys(fn func(key K) bool) (bool, error) {
	completed := true
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = invertedPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw := it.Item().KeyCopy(nil)
			key, err := s.codec.DecodeKey(raw[len(invertedPrefix):])
			if err != nil {
				return fmt.Errorf("decoding key: %w", err)
			}
			if !fn(key) {
				completed = false
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, apperrors.Storage(s.name, "process keys", err)
	}
	return completed, nil
}

func (s *Storage[K, V]) Clear() error {
	return apperrors.Storage(s.name, "clear", s.db.DropPrefix(invertedPrefix))
}

func (s *Storage[K, V]) Flush() error {
	return apperrors.Storage(s.name, "flush", s.db.Flush())
}

func (s *Storage[K, V]) Close() error { return nil }

// Forward is a badger-backed index.ForwardIndex.
type Forward[K comparable, V comparable] struct {
	db    *badgerdb.DB
	name  string
	codec index.Codec[K, V]
}

func NewForward[K comparable, V comparable](db *badgerdb.DB, name string, codec index.Codec[K, V]) *Forward[K, V] {
	return &Forward[K, V]{db: db, name: name, codec: codec}
}

func forwardKey(id index.InputID) []byte {
	return binary.BigEndian.AppendUint32(prefixed(forwardPrefix, nil), uint32(id))
}

func (f *Forward[K, V]) Get(id index.InputID) (map[K]V, error) {
	var data map[K]V
	err := f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(forwardKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		data, err = f.codec.DecodeForward(raw)
		return err
	})
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
	err = f.db.Update(func(txn *badger.Txn) error {
		return txn.Set(forwardKey(id), raw)
	})
	return apperrors.Storage(f.name, "forward put", err)
}

func (f *Forward[K, V]) Remove(id index.InputID) error {
	err := f.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(forwardKey(id))
	})
	return apperrors.Storage(f.name, "forward remove", err)
}

func (f *Forward[K, V]) Clear() error {
	return apperrors.Storage(f.name, "forward clear", f.db.DropPrefix(forwardPrefix))
}

func (f *Forward[K, V]) Flush() error {
	return apperrors.Storage(f.name, "forward flush", f.db.Flush())
}

func (f *Forward[K, V]) Close() error { return nil }
