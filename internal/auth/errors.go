// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by repositories when a unique key is already taken.
var ErrConflict = errors.New("conflict")

// Kind classifies an error for callers. Callers switch on the kind instead of
// matching concrete error types.
type Kind string

// Error kinds.
const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindToken        Kind = "token"
	KindInternal     Kind = "internal"
)

// Detail describes one problem with a request, usually a single field.
type Detail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error is the tagged error returned by the auth service.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Details   []Detail
	Retryable bool
	Err       error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind returns the kind as a string for kind-agnostic helpers such as errutil.
func (e *Error) ErrorKind() string {
	return string(e.Kind)
}

// ErrorCode returns the machine-readable code.
func (e *Error) ErrorCode() string {
	return e.Code
}

// KindOf reports the kind of err. The outermost *Error wins; bare repository
// sentinels map to their kinds; anything else is internal. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// CodeOf returns the code of the outermost *Error, or "" if there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the failure was a timeout the caller may retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Retryable {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// NewError creates an *Error of the given kind.
func NewError(kind Kind, code, message string, details ...Detail) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details}
}

// ValidationError creates a KindValidation error.
func ValidationError(code, message string, details ...Detail) *Error {
	return NewError(KindValidation, code, message, details...)
}

// UnauthorizedError creates a KindUnauthorized error.
func UnauthorizedError(code, message string) *Error {
	return NewError(KindUnauthorized, code, message)
}

// ConflictError creates a KindConflict error.
func ConflictError(code, message string) *Error {
	return NewError(KindConflict, code, message)
}

// NotFoundError creates a KindNotFound error.
func NotFoundError(code, message string) *Error {
	return NewError(KindNotFound, code, message)
}

// TokenError creates a KindToken error.
func TokenError(code, message string) *Error {
	return NewError(KindToken, code, message)
}

// InternalError wraps err as KindInternal. Errors that already carry a specific
// kind are returned unchanged so an auth failure is never downgraded.
func InternalError(code, message string, err error) error {
	if err != nil {
		if k := KindOf(err); k != KindInternal {
			return err
		}
	}
	e := &Error{Kind: KindInternal, Code: code, Message: message, Err: err}
	if err != nil {
		e.Retryable = errors.Is(err, context.DeadlineExceeded)
	}
	return e
}
