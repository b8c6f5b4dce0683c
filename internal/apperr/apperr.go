// Package apperr defines the error kinds shared by the ingestion and search
// components. Every component error carries a stable Kind so callers and the
// HTTP layer can branch on it without matching messages.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindFetch      Kind = "fetch"
	KindRender     Kind = "render"
	KindEmbedding  Kind = "embedding"
	KindAuth       Kind = "auth"
	KindConnection Kind = "connection"
	KindValidation Kind = "validation"
	KindStorage    Kind = "storage"
	KindNotFound   Kind = "not_found"
	KindUnknown    Kind = "unknown"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindAuth}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
