package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnknownTerm   = errors.New("term not in vocabulary")
	ErrSourceRead    = errors.New("document source unreadable")
	ErrCacheCorrupt  = errors.New("cache entry corrupt")
	ErrCacheMiss     = errors.New("cache entry not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCorpusUnbuilt = errors.New("corpus not built")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
)

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
	case errors.Is(err, ErrUnknownTerm), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrCacheMiss):
		return http.StatusNotFound
	case errors.Is(err, ErrCorpusUnbuilt), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
