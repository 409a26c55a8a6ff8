package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error represents a typed client error with HTTP awareness.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"detail"`
	Status  int               `json:"status,omitempty"`
	Fields  map[string]string `json:"errors,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so that clones compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "Invalid email or password.")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrRateLimited        = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrTransport          = New("TRANSPORT_ERROR", 0, "unable to reach the server")
	ErrStorage            = New("STORAGE_ERROR", 0, "local storage unavailable")
	ErrNotReady           = New("NOT_READY", 0, "session has not been restored yet")
	ErrDisposed           = New("DISPOSED", 0, "session service has been disposed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// FromStatus maps a remote HTTP status and payload message to a typed error.
func FromStatus(status int, message string, fields map[string]string) *Error {
	var base *Error
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		base = ErrValidation
	case status == http.StatusUnauthorized:
		base = ErrUnauthorized
	case status == http.StatusForbidden:
		base = ErrForbidden
	case status == http.StatusNotFound:
		base = ErrNotFound
	case status == http.StatusConflict:
		base = ErrConflict
	case status == http.StatusTooManyRequests:
		base = ErrRateLimited
	default:
		base = ErrInternal
	}
	e := Clone(base, message)
	e.Status = status
	if len(fields) > 0 {
		e.Fields = fields
	}
	return e
}

// Validation builds a VALIDATION_ERROR carrying field-scoped messages.
func Validation(message string, fields map[string]string) *Error {
	e := Clone(ErrValidation, message)
	e.Fields = fields
	return e
}

// UserMessage returns text suitable for display. Remote messages win; fallback covers
// errors that carry nothing human readable.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return fallback
	}
	if e.Message != "" && !generic(e.Message) {
		return e.Message
	}
	if len(e.Fields) > 0 {
		return firstField(e.Fields)
	}
	if fallback != "" {
		return fallback
	}
	return e.Message
}

// IsValidation reports whether err was raised before any network call or rejected as invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransport reports whether err is a network level failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

func generic(msg string) bool {
	switch msg {
	case ErrInternal.Message, ErrUnauthorized.Message, ErrValidation.Message:
		return true
	}
	return false
}

func firstField(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msg := fields[keys[0]]
	if strings.TrimSpace(msg) == "" {
		return keys[0]
	}
	return msg
}
