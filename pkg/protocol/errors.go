// ABOUTME: Typed error taxonomy for the Sendspin protocol
// ABOUTME: Classifies failures so the session layer can apply the right policy
package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol-level failure.
type Kind int

const (
	// KindTransport covers channel closed, read/write failures, unframed data.
	KindTransport Kind = iota
	// KindProtocol covers parse failures, missing fields, disallowed message
	// types and binary framing errors.
	KindProtocol
	// KindHandshake covers handshake timeout, missing server/hello and
	// failed format negotiation.
	KindHandshake
	// KindClock covers conversions attempted on an invalid estimator.
	KindClock
	// KindCodec covers decoder failures on well-framed payloads.
	KindCodec
	// KindTimeout covers idle and sync timeouts.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindHandshake:
		return "handshake"
	case KindClock:
		return "clock"
	case KindCodec:
		return "codec"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified protocol error with a short diagnostic string.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the error must close the connection. Clock and codec
// errors are handled locally by the session layer; everything else tears the
// connection down.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindClock, KindCodec:
		return false
	}
	return true
}

// TransportError wraps a transport-level failure.
func TransportError(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Msg: msg, Err: err}
}

// ProtocolErrorf builds a KindProtocol error.
func ProtocolErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Msg: fmt.Sprintf(format, args...)}
}

// HandshakeErrorf builds a KindHandshake error.
func HandshakeErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindHandshake, Msg: fmt.Sprintf(format, args...)}
}

// ClockErrorf builds a KindClock error.
func ClockErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindClock, Msg: fmt.Sprintf(format, args...)}
}

// CodecError wraps a decoder failure on a well-framed payload.
func CodecError(msg string, err error) *Error {
	return &Error{Kind: KindCodec, Msg: msg, Err: err}
}

// TimeoutErrorf builds a KindTimeout error.
func TimeoutErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTimeout, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or KindTransport if err is not a
// protocol error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransport
}
