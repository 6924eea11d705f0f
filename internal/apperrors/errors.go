// Package apperrors defines the typed domain errors returned by services and
// translated to HTTP responses by handlers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindInvalidState        Kind = "invalid_state"
	KindForbidden           Kind = "forbidden"
	KindUnauthorized        Kind = "unauthorized"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindBelowMinimum        Kind = "below_minimum"
	KindConflict            Kind = "conflict"
	KindRateLimited         Kind = "rate_limited"
	KindGateway             Kind = "gateway"
)

var statusByKind = map[Kind]int{
	KindValidation:          http.StatusBadRequest,
	KindNotFound:            http.StatusNotFound,
	KindInvalidState:        http.StatusBadRequest,
	KindForbidden:           http.StatusForbidden,
	KindUnauthorized:        http.StatusUnauthorized,
	KindInsufficientBalance: http.StatusBadRequest,
	KindBelowMinimum:        http.StatusBadRequest,
	KindConflict:            http.StatusConflict,
	KindRateLimited:         http.StatusTooManyRequests,
	KindGateway:             http.StatusInternalServerError,
}

// Error is a domain failure with a client-safe Message.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target with a message also
// has to match the message, so package-level sentinels compare exactly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func InvalidState(message string) *Error { return New(KindInvalidState, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func RateLimited(message string) *Error  { return New(KindRateLimited, message) }

func InsufficientBalance(message string) *Error { return New(KindInsufficientBalance, message) }
func BelowMinimum(message string) *Error        { return New(KindBelowMinimum, message) }

func Gateway(message string, err error) *Error { return Wrap(KindGateway, message, err) }

// Kind-only targets for errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrBelowMinimum        = &Error{Kind: KindBelowMinimum}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrGateway             = &Error{Kind: KindGateway}
)

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
