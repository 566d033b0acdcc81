package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
)

func TestCodecContainerRoundTrip(t *testing.T) {
	codec := kvExtension().Codec()
	c := index.NewContainer[int]()
	c.AddValue(1, 10)
	c.AddValue(2, 10)
	c.AddValue(70000, -3)

	data, err := codec.EncodeContainer(c)
	require.NoError(t, err)
	back, err := codec.DecodeContainer(data)
	require.NoError(t, err)

	assert.Equal(t, 2, back.Size())
	v, ok := back.Get(70000)
	assert.True(t, ok)
	assert.Equal(t, -3, v)
	assert.Equal(t, 3, back.Len())
}

func TestCodecRejectsTruncatedRecords(t *testing.T) {
	codec := kvExtension().Codec()
	data, err := codec.EncodeForward(kv{"alpha": 1, "beta": 2})
	require.NoError(t, err)

	back, err := codec.DecodeForward(data)
	require.NoError(t, err)
	assert.Equal(t, kv{"alpha": 1, "beta": 2}, back)

	_, err = codec.DecodeForward(data[:len(data)-2])
	assert.Error(t, err)
	_, err = codec.DecodeForward([]byte{9, 0})
	assert.ErrorContains(t, err, "unsupported record format")
}

func TestCheckValue(t *testing.T) {
	assert.NoError(t, index.CheckValue[int](index.JSONDescriptor[int]{}, 42))
	assert.Error(t, index.CheckValue[int](lossyInts{}, 300))

	nan := 0.0
	nan = nan / nan
	assert.Error(t, index.CheckValue[float64](index.JSONDescriptor[float64]{}, nan))
}
