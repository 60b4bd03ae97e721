// Package errors defines the structured error type shared by signdeck's
// services, plus the sentinel errors surfaced by the manifest, fleet and
// store layers.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Type categorizes an error for handling and display.
type Type string

const (
	TypeValidation Type = "validation"
	TypeAuth       Type = "auth"
	TypeNetwork    Type = "network"
	TypeConflict   Type = "conflict"
	TypePublish    Type = "publish"
	TypeConfig     Type = "config"
	TypeInternal   Type = "internal"
)

// Sentinel errors for lookups and state checks. Callers match with
// errors.Is after any amount of %w wrapping.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrOffline       = errors.New("device offline")
	ErrTerminalState = errors.New("command already in a terminal state")
)

// Error is a structured error with category, stable code and optional
// key/value context.
type Error struct {
	Type        Type
	Code        string
	Message     string
	Cause       error
	Context     map[string]any
	Recoverable bool
}

func (e *Error) Error() string {
	var parts []string
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by type and code, so sentinels built with the
// constructors below compare correctly through wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext attaches a key/value pair to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewValidation creates a validation error. Validation failures are
// recoverable: the caller can fix the input and retry.
func NewValidation(code, message string) *Error {
	return &Error{Type: TypeValidation, Code: code, Message: message, Recoverable: true}
}

// NewAuth creates an authentication/authorization error.
func NewAuth(code, message string, cause error) *Error {
	return &Error{Type: TypeAuth, Code: code, Message: message, Cause: cause}
}

// NewNetwork creates a network error. Network failures are recoverable by
// the retry layer.
func NewNetwork(code, message string, cause error) *Error {
	return &Error{Type: TypeNetwork, Code: code, Message: message, Cause: cause, Recoverable: true}
}

// NewConflict creates a concurrent-modification error (manifest SHA moved
// under us).
func NewConflict(code, message string, cause error) *Error {
	return &Error{Type: TypeConflict, Code: code, Message: message, Cause: cause, Recoverable: true}
}

// NewPublish creates an MQTT publish/connection error.
func NewPublish(code, message string, cause error) *Error {
	return &Error{Type: TypePublish, Code: code, Message: message, Cause: cause, Recoverable: true}
}

// NewConfig creates a configuration error.
func NewConfig(code, message string) *Error {
	return &Error{Type: TypeConfig, Code: code, Message: message}
}

// NewInternal creates an internal error.
func NewInternal(code, message string, cause error) *Error {
	return &Error{Type: TypeInternal, Code: code, Message: message, Cause: cause}
}

// Is and As re-export the stdlib helpers so callers that already import
// this package do not need a second errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// IsRecoverable reports whether err (or anything it wraps) is a
// recoverable *Error.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// TypeOf returns the Type of err if it is a *Error, TypeInternal otherwise.
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}
