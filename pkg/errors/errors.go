// Package errors defines the sentinel errors shared by the index engine and
// its outer surfaces, the StorageError type raised by backing stores, and
// the mapping from engine errors to HTTP status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrStorage           = errors.New("index storage failure")
	ErrCanceled          = errors.New("index operation canceled")
	ErrDisposed          = errors.New("index disposed")
	ErrIntegrity         = errors.New("value contract violated")
	ErrIndexNotFound     = errors.New("index not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRebuildInProgress = errors.New("index rebuild in progress")
	ErrInternal          = errors.New("internal error")
)

// StorageError reports a failed operation against an index's backing store.
// It always matches ErrStorage through errors.Is.
type StorageError struct {
	Index string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index %s: storage %s: %v", e.Index, e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// Storage wraps err as a StorageError. A nil err stays nil.
func Storage(index, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Index: index, Op: op, Err: err}
}

// IsCancellation is the default cancellation predicate used by the engine.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRebuildInProgress), errors.Is(err, ErrDisposed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrCanceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
