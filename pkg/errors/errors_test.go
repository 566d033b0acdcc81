package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageErrorMatchesSentinelAndCause(t *testing.T) {
	err := Storage("words", "read", io.ErrUnexpectedEOF)

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "index words: storage read: unexpected EOF", err.Error())

	wrapped := fmt.Errorf("commit: %w", err)
	var se *StorageError
	assert.True(t, errors.As(wrapped, &se))
	assert.Equal(t, "read", se.Op)
}

func TestStorageKeepsExistingStorageError(t *testing.T) {
	inner := Storage("words", "put", io.EOF)
	assert.Same(t, inner, Storage("other", "flush", inner))
	assert.Nil(t, Storage("words", "read", nil))
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, IsCancellation(context.Canceled))
	assert.True(t, IsCancellation(fmt.Errorf("map: %w", ErrCanceled)))
	assert.False(t, IsCancellation(ErrStorage))
	assert.False(t, IsCancellation(nil))
}

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrIndexNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", ErrInvalidInput), http.StatusBadRequest},
		{ErrRebuildInProgress, http.StatusServiceUnavailable},
		{ErrCanceled, http.StatusGatewayTimeout},
		{New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatusCode(c.err), c.err.Error())
	}
}
