package repair

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a business-rule rejection.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindTokenExpired ErrorKind = "token_expired"
	KindConflict     ErrorKind = "conflict"
)

// Error is a rejected request. Nothing was written when one is returned.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return "repair: " + e.Message
}

// Is matches another *Error of the same kind, and the same code when the
// target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrTokenExpired = &Error{Kind: KindTokenExpired, Code: "TOKEN_EXPIRED", Message: "public link has expired"}
)

func invalid(field, code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", what, id)}
}

func conflict(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a repair error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Closure error codes.
const (
	CodePendingOutcomes = "PENDING_OUTCOMES"
	CodeIncompleteWork  = "INCOMPLETE_WORK"
)

// BlockingItem is a repair item that prevents closure.
type BlockingItem struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Outcome Outcome `json:"outcome"`
}

// ClosureError lists every item that prevents a health check from closing.
type ClosureError struct {
	Code  string         `json:"code"`
	Items []BlockingItem `json:"items"`
	Count int            `json:"count"`
}

func (e *ClosureError) Error() string {
	return fmt.Sprintf("repair: cannot close health check: %s (%d items)", e.Code, e.Count)
}
