// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for chanbus.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrNotSupported      = errors.New("operation not supported")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrNotFound          = errors.New("resource not found")
	ErrReactorClosed     = errors.New("reactor is closed")
	ErrNotifierClosed    = errors.New("notifier is closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeClosed
	ErrCodeWouldBlock
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid argument"
	case ErrCodeResourceExhausted:
		return "resource exhausted"
	case ErrCodeNotSupported:
		return "not supported"
	case ErrCodeAlreadyExists:
		return "already exists"
	case ErrCodeNotFound:
		return "not found"
	case ErrCodeClosed:
		return "closed"
	case ErrCodeWouldBlock:
		return "would block"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
// Two *Error values match under errors.Is when their codes and messages are equal,
// so a copy enriched with WithContext still matches the sentinel it came from.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is reports whether target is an *Error with the same code and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithContext returns a copy of the error carrying an extra context value.
// The receiver is left untouched so package-level sentinels stay immutable.
func (e *Error) WithContext(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Code: e.Code, Message: e.Message, Context: ctx}
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal when err carries none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
