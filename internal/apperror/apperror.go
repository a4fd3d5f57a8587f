package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error that knows how it should surface over HTTP.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so callers can compare against the sentinels below
// regardless of message overrides.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrNotFound        = &Error{Code: "NOT_FOUND", Status: http.StatusNotFound, Message: "resource not found"}
	ErrForbidden       = &Error{Code: "FORBIDDEN", Status: http.StatusForbidden, Message: "forbidden"}
	ErrUnauthorized    = &Error{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Message: "authentication required"}
	ErrInvalidInput    = &Error{Code: "INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
	ErrConflict        = &Error{Code: "CONFLICT", Status: http.StatusConflict, Message: "conflict"}
	ErrQuotaExceeded   = &Error{Code: "QUOTA_EXCEEDED", Status: http.StatusInsufficientStorage, Message: "storage limit reached"}
	ErrUpstreamFailure = &Error{Code: "UPSTREAM_FAILURE", Status: http.StatusBadGateway, Message: "storage service failure"}
	ErrInternal        = &Error{Code: "INTERNAL_ERROR", Status: http.StatusInternalServerError, Message: "internal server error"}
)

func derive(base *Error, message string, err error) *Error {
	e := *base
	if message != "" {
		e.Message = message
	}
	e.Err = err
	return &e
}

func NotFound(message string) *Error     { return derive(ErrNotFound, message, nil) }
func Forbidden(message string) *Error    { return derive(ErrForbidden, message, nil) }
func InvalidInput(message string) *Error { return derive(ErrInvalidInput, message, nil) }
func Conflict(message string) *Error     { return derive(ErrConflict, message, nil) }

func QuotaExceeded(message string) *Error { return derive(ErrQuotaExceeded, message, nil) }

// Upstream wraps an object-store failure.
func Upstream(message string, err error) *Error {
	return derive(ErrUpstreamFailure, message, err)
}

// Internal wraps an unexpected failure such as a database error.
func Internal(message string, err error) *Error {
	return derive(ErrInternal, message, err)
}

// FromError normalises any error into an *Error. Untyped errors become internal errors.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return derive(ErrInternal, "", err)
}
