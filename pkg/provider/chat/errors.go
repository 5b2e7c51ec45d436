package chat

import (
	"errors"
	"fmt"
)

// Kind classifies why a chat operation failed. Callers branch on Kind (or
// on the matching sentinel via errors.Is), never on message text.
type Kind int

const (
	// KindTransport is a network-level failure: DNS, connection reset, TLS,
	// a cancelled context, or a broken response stream.
	KindTransport Kind = iota + 1

	// KindHTTPStatus is a non-2xx HTTP status.
	KindHTTPStatus

	// KindApplication is a 2xx response whose application code is non-zero.
	KindApplication

	// KindProtocol is a response that lacks a required field or is not valid
	// JSON.
	KindProtocol

	// KindTimeout is a completion poll that exhausted its attempts without
	// reaching a terminal status.
	KindTimeout

	// KindFailed is a chat the backend explicitly reported as failed.
	KindFailed
)

// Sentinel errors matching each [Kind] via errors.Is.
var (
	ErrTransport   = errors.New("chat: transport failed")
	ErrHTTPStatus  = errors.New("chat: unexpected http status")
	ErrApplication = errors.New("chat: application error")
	ErrProtocol    = errors.New("chat: protocol violation")
	ErrTimeout     = errors.New("chat: completion timed out")
	ErrFailed      = errors.New("chat: chat failed")
)

// String returns the short lower-case name of the kind, suitable for metric
// attributes.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindApplication:
		return "application"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindHTTPStatus:
		return ErrHTTPStatus
	case KindApplication:
		return ErrApplication
	case KindProtocol:
		return ErrProtocol
	case KindTimeout:
		return ErrTimeout
	case KindFailed:
		return ErrFailed
	default:
		return nil
	}
}

// Error is returned by every [Client] operation.
//
// Use errors.Is(err, chat.ErrApplication) (and friends) to test the kind, or
// errors.As to inspect the HTTP status and backend code.
type Error struct {
	Kind Kind

	// Op names the failing operation: "upload", "create", "retrieve",
	// "message_list" or "stream".
	Op string

	// Status is the HTTP status code, when one was received.
	Status int

	// Code is the backend's application code, when one was received.
	Code int

	// Msg is a human-readable detail from the backend or the client.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := fmt.Sprintf("chat: %s: %s", e.Op, e.Kind)
	switch {
	case e.Kind == KindHTTPStatus:
		s += fmt.Sprintf(" %d", e.Status)
	case e.Kind == KindApplication:
		s += fmt.Sprintf(" code %d", e.Code)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the [Kind] of err, or 0 when err is not a chat error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
