package backend

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a normalized backend failure class.
type Kind uint8

const (
	KindInternal Kind = iota
	KindUnreachable
	KindAuthRejected
	KindProtocolMismatch
	KindNotFound
	KindAccessDenied
)

// String returns the error code reported to callers.
func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "UNREACHABLE"
	case KindAuthRejected:
		return "AUTH_REJECTED"
	case KindProtocolMismatch:
		return "PROTOCOL_MISMATCH"
	case KindNotFound:
		return "NOT_FOUND"
	case KindAccessDenied:
		return "ACCESS_DENIED"
	default:
		return "INTERNAL"
	}
}

// IsConnection reports whether k is fatal for the endpoint rather than for
// a single item.
func (k Kind) IsConnection() bool {
	switch k {
	case KindUnreachable, KindAuthRejected, KindProtocolMismatch:
		return true
	}
	return false
}

// Error is a normalized backend failure. Detail keeps the original protocol
// error text for diagnostics.
type Error struct {
	Kind     Kind
	Op       string
	Endpoint string
	Item     string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Item != "" {
		msg += " " + e.Item
	}
	if e.Endpoint != "" {
		msg += " (" + e.Endpoint + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with kind. Detail is taken from err when present.
func NewError(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

// Errorf builds an *Error with a formatted detail.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Context deadlines count as Unreachable; anything
// unrecognized is Internal.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnreachable
	}
	return KindInternal
}

// DetailOf returns the original protocol message of err.
func DetailOf(err error) string {
	var be *Error
	if errors.As(err, &be) && be.Detail != "" {
		return be.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// withContext fills the endpoint and item of a normalized error, converting
// plain errors first.
func withContext(err error, op, endpoint, item string) error {
	if err == nil {
		return nil
	}
	var be *Error
	if !errors.As(err, &be) {
		be = NewError(KindOf(err), op, err)
	} else {
		cp := *be
		be = &cp
	}
	if be.Op == "" {
		be.Op = op
	}
	if be.Endpoint == "" {
		be.Endpoint = endpoint
	}
	if be.Item == "" {
		be.Item = item
	}
	return be
}
