package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindParse         Kind = "parse"
	KindSignature     Kind = "signature"
	KindResourceLimit Kind = "resource_limit"
	KindResolve       Kind = "resolve"
	KindSource        Kind = "source"
	KindTimeout       Kind = "timeout"
	KindEngine        Kind = "engine"
	KindStorage       Kind = "storage"
	KindConfig        Kind = "config"
	KindBootstrap     Kind = "bootstrap"
	KindUnknown       Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// KindOf extracts the kind of the first typed error in the chain.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// MessageOf returns the message of the first typed error in the chain, or the
// plain error text for untyped errors.
func MessageOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// HTTPStatus maps an error kind to the response status served to clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindParse:
		return http.StatusBadRequest
	case KindSignature:
		return http.StatusForbidden
	case KindResourceLimit:
		return http.StatusRequestEntityTooLarge
	case KindResolve:
		return http.StatusUnprocessableEntity
	case KindSource:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
