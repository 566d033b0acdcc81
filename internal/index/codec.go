package index

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

const codecFormat byte = 1

var errTruncated = errors.New("truncated record")

// Codec turns containers and forward entries into bytes for persistent
// backends.
type Codec[K comparable, V comparable] struct {
	Keys   KeyDescriptor[K]
	Values ValueExternalizer[V]
}

// EncodeContainer lays out each distinct value followed by the bitmap of its
// inputs.
func (c Codec[K, V]) EncodeContainer(vc ValueContainer[V]) ([]byte, error) {
	buf := []byte{codecFormat}
	buf = binary.AppendUvarint(buf, uint64(vc.Size()))
	it := vc.Values()
	for it.Next() {
		vb, err := c.Values.Marshal(it.Value())
		if err != nil {
			return nil, fmt.Errorf("marshaling value: %w", err)
		}
		bm := roaring.New()
		ids := it.InputIDs()
		for ids.HasNext() {
			bm.Add(uint32(ids.Next()))
		}
		bb, err := bm.ToBytes()
		if err != nil {
			return nil, fmt.Errorf("serializing input ids: %w", err)
		}
		buf = appendBytes(buf, vb)
		buf = appendBytes(buf, bb)
	}
	return buf, nil
}

func (c Codec[K, V]) DecodeContainer(data []byte) (*UpdatableContainer[V], error) {
	out := NewContainer[V]()
	if len(data) == 0 {
		return out, nil
	}
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		vb, err := r.bytes()
		if err != nil {
			return nil, err
		}
		bb, err := r.bytes()
		if err != nil {
			return nil, err
		}
		v, err := c.Values.Unmarshal(vb)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling value: %w", err)
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(bb); err != nil {
			return nil, fmt.Errorf("decoding input ids: %w", err)
		}
		it := bm.Iterator()
		for it.HasNext() {
			out.AddValue(InputID(it.Next()), v)
		}
	}
	return out, nil
}

func (c Codec[K, V]) EncodeKey(key K) ([]byte, error) {
	return c.Keys.Marshal(key)
}

func (c Codec[K, V]) DecodeKey(data []byte) (K, error) {
	return c.Keys.Unmarshal(data)
}

// EncodeForward lays out a forward entry as key/value pairs.
func (c Codec[K, V]) EncodeForward(data map[K]V) ([]byte, error) {
	buf := []byte{codecFormat}
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	for k, v := range data {
		kb, err := c.Keys.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshaling key: %w", err)
		}
		vb, err := c.Values.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshaling value: %w", err)
		}
		buf = appendBytes(buf, kb)
		buf = appendBytes(buf, vb)
	}
	return buf, nil
}

func (c Codec[K, V]) DecodeForward(data []byte) (map[K]V, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, min(n, 1024))
	for i := uint64(0); i < n; i++ {
		kb, err := r.bytes()
		if err != nil {
			return nil, err
		}
		vb, err := r.bytes()
		if err != nil {
			return nil, err
		}
		k, err := c.Keys.Unmarshal(kb)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling key: %w", err)
		}
		v, err := c.Values.Unmarshal(vb)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling value: %w", err)
		}
		out[k] = v
	}
	return out, nil
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) (*reader, error) {
	if len(data) == 0 {
		return nil, errTruncated
	}
	if data[0] != codecFormat {
		return nil, fmt.Errorf("unsupported record format %d", data[0])
	}
	return &reader{data: data, pos: 1}, nil
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, errTruncated
	}
	r.pos += n
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.data)-r.pos) < n {
		return nil, errTruncated
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}
