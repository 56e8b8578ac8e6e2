// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Error de validacion", Fields: fields}
}

// Kind classifies service errors on the primary path.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindInsufficientStock
)

// Error is a typed service error. Detail is safe to show to clients; Err is not.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinels for errors.Is comparisons by kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrValidation        = &Error{Kind: KindValidation}
)

// Is matches any *Error of the same Kind, so errors.Is(err, ErrConflict) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Detail: entity + " no encontrado"}
}

func Conflict(detail string) *Error {
	return &Error{Kind: KindConflict, Detail: detail}
}

// Forbidden carries a generic message on purpose; callers must not add detail.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Detail: "No autorizado para realizar esta accion"}
}

func InsufficientStock() *Error {
	return &Error{Kind: KindInsufficientStock, Detail: "Stock insuficiente"}
}

func Invalid(detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail}
}

// StatusOf maps an error to its HTTP status and a client-safe message.
// Untyped errors become 500 with a generic message.
func StatusOf(err error) (int, *APIError) {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, New("Error interno del servidor")
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest, New(e.Detail)
	case KindNotFound:
		return http.StatusNotFound, New(e.Detail)
	case KindConflict:
		return http.StatusConflict, New(e.Detail)
	case KindForbidden:
		return http.StatusForbidden, New(e.Detail)
	case KindInsufficientStock:
		return http.StatusUnprocessableEntity, New(e.Detail)
	default:
		return http.StatusInternalServerError, New("Error interno del servidor")
	}
}
