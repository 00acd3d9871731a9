// Package errors maps engine and transport errors to HTTP status codes for
// the cmd/ binaries. The core library returns plain sentinel errors; this
// package wraps them with request-level context.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nullstream/slimsearch"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
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
	case errors.Is(err, slimsearch.ErrUnknownID):
		return http.StatusNotFound
	case errors.Is(err, slimsearch.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, slimsearch.ErrMissingID),
		errors.Is(err, slimsearch.ErrMissingField),
		errors.Is(err, slimsearch.ErrInvalidOption),
		errors.Is(err, slimsearch.ErrIncompatibleVersion),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
