// Package errors defines the error taxonomy shared across the router
// platform: sentinel errors, a wrapping AppError carrying an HTTP status,
// and a mapping from errors to status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfig marks fatal configuration errors, reported before any
	// retrieval work begins.
	ErrConfig = errors.New("invalid configuration")
	// ErrStorage marks telemetry backend failures. These propagate to the
	// caller unchanged and are never retried by the core.
	ErrStorage      = errors.New("storage error")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("operation timed out")
	ErrInternal     = errors.New("internal error")
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
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
