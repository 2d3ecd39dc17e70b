// Package apperr defines the error taxonomy surfaced through the HTTP envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error is a user-facing failure with an HTTP status.
type Error struct {
	Status  int
	Message string
	Fields  []FieldError
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, message)
}

// Validation reports field-level failures under a single "Validation failed" message.
func Validation(fields []FieldError) *Error {
	e := newError(http.StatusBadRequest, "Validation failed")
	e.Fields = fields
	return e
}

func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, message)
}

func Forbidden(message string) *Error {
	return newError(http.StatusForbidden, message)
}

func NotFound(message string) *Error {
	return newError(http.StatusNotFound, message)
}

func Conflict(message string) *Error {
	return newError(http.StatusConflict, message)
}

func TooManyRequests(message string) *Error {
	return newError(http.StatusTooManyRequests, message)
}

// Internal wraps an unexpected failure and captures the current stack.
func Internal(message string, err error) *Error {
	e := newError(http.StatusInternalServerError, message)
	e.Err = err
	e.Stack = string(debug.Stack())
	return e
}

// From converts any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err.Error(), err)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
