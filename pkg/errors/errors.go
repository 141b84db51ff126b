package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrPageNotFound       = errors.New("page not found")
	ErrCollectiveNotFound = errors.New("collective not found")
	ErrSearchUnavailable  = errors.New("full-text search unavailable")
	ErrIndexing           = errors.New("indexing failed")
	ErrPageUnreadable     = errors.New("page unreadable")
	ErrMarkdownParse      = errors.New("markdown parse failed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
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
	case errors.Is(err, ErrPageNotFound), errors.Is(err, ErrCollectiveNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMarkdownParse):
		return http.StatusBadRequest
	case errors.Is(err, ErrSearchUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
