// Package apperr defines the error kinds surfaced to callers of the visit
// services. Messages are user-facing and returned verbatim.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transports.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindInvalidState
	KindPermission
	KindConfiguration
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidState:
		return "invalid_state"
	case KindPermission:
		return "permission"
	case KindConfiguration:
		return "configuration"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified, user-facing error.
type Error struct {
	Kind   Kind
	Msg    string
	Fields []string // offending fields, validation only
}

// Error returns the message verbatim. Fields travel separately.
func (e *Error) Error() string {
	return e.Msg
}

// Is matches sentinels by kind. An invalid-state error is also a
// validation error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindValidation && e.Kind == KindInvalidState
}

// Sentinels for errors.Is.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrInvalidState  = &Error{Kind: KindInvalidState}
	ErrPermission    = &Error{Kind: KindPermission}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports a user-fixable business-rule violation.
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

// FieldValidation reports a violation tied to specific fields.
func FieldValidation(fields []string, format string, args ...any) *Error {
	e := newf(KindValidation, format, args...)
	e.Fields = fields
	return e
}

// InvalidState reports an operation attempted in the wrong state.
func InvalidState(format string, args ...any) *Error {
	return newf(KindInvalidState, format, args...)
}

// Permission reports a failed role gate.
func Permission(format string, args ...any) *Error {
	return newf(KindPermission, format, args...)
}

// Configuration reports missing required linkage.
func Configuration(format string, args ...any) *Error {
	return newf(KindConfiguration, format, args...)
}

// Conflict reports an illegal structural operation.
func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

// NotFound reports a missing record.
func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FieldsOf returns the offending fields carried by err, if any.
func FieldsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
