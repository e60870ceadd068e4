package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindExpired      ErrorKind = "expired"
	KindValidation   ErrorKind = "validation"
)

// Error is a domain error carrying a human-readable reason. Two Errors
// match under errors.Is when their kinds match, so callers compare with the
// Err* sentinels below.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return e.Reason
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrExpired      = &Error{Kind: KindExpired}
	ErrValidation   = &Error{Kind: KindValidation}
)

func Unauthorized(reason string) error { return &Error{Kind: KindUnauthorized, Reason: reason} }
func Forbidden(reason string) error    { return &Error{Kind: KindForbidden, Reason: reason} }
func NotFound(reason string) error     { return &Error{Kind: KindNotFound, Reason: reason} }
func Conflict(reason string) error     { return &Error{Kind: KindConflict, Reason: reason} }
func Expired(reason string) error      { return &Error{Kind: KindExpired, Reason: reason} }
func Validation(reason string) error   { return &Error{Kind: KindValidation, Reason: reason} }

// Conflictf formats a Conflict reason.
func Conflictf(format string, args ...any) error {
	return Conflict(fmt.Sprintf(format, args...))
}

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
