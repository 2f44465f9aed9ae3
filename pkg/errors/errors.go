package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrOutOfRangePosition  = errors.New("position out of range")
	ErrUnknownCharacter    = errors.New("unknown character")
	ErrInconsistentHistory = errors.New("inconsistent edit history")
	ErrEditInProgress      = errors.New("edit already in progress")
	ErrCorruptIndex        = errors.New("corrupt index")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnavailable         = errors.New("dependency unavailable")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
	ErrReadOnly            = errors.New("index is read-only")
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

// IsEditRejection reports whether err left the index untouched because the
// edit was refused before it started.
func IsEditRejection(err error) bool {
	return errors.Is(err, ErrOutOfRangePosition) ||
		errors.Is(err, ErrUnknownCharacter) ||
		errors.Is(err, ErrEditInProgress)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrOutOfRangePosition), errors.Is(err, ErrUnknownCharacter), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrEditInProgress), errors.Is(err, ErrInconsistentHistory):
		return http.StatusConflict
	case errors.Is(err, ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
