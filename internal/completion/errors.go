// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes transport failures for handling.
type ErrorKind int

const (
	// KindNetwork covers connection failures, resets, timeouts,
	// cancellation and body read failures.
	KindNetwork ErrorKind = iota + 1

	// KindServer is a non-2xx response from the completion service.
	KindServer

	// KindDecode is an unusable stream: an oversized line or a stream that
	// ended before the [DONE] sentinel.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindServer:
		return "server error"
	case KindDecode:
		return "decode error"
	default:
		return "unknown error"
	}
}

// Error is returned by Send, Ping and the decoder.
type Error struct {
	Kind    ErrorKind
	Message string

	// StatusCode is set for KindServer.
	StatusCode int

	// Partial holds text streamed before the failure. It is informational
	// only and never returned as a reply.
	Partial string

	Cause error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrServer)
// works regardless of status code or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel errors for errors.Is checks.
var (
	ErrNetwork = &Error{Kind: KindNetwork}
	ErrServer  = &Error{Kind: KindServer}
	ErrDecode  = &Error{Kind: KindDecode}
)

// Causes carried by decode and network errors.
var (
	// ErrTruncated means the input ended before the [DONE] sentinel.
	ErrTruncated = errors.New("stream ended before [DONE]")

	// ErrLineTooLong means a single buffered line exceeded the maximum size.
	ErrLineTooLong = errors.New("stream line exceeds maximum size")

	// ErrHeaderTimeout means the service accepted the connection but did not
	// send response headers in time.
	ErrHeaderTimeout = errors.New("timed out waiting for response headers")

	// ErrRequestTimeout means the overall per-request deadline expired.
	ErrRequestTimeout = errors.New("request deadline exceeded")
)

// ErrNeedMoreInput is returned by Decoder.Next when no fragment is ready and
// the sentinel has not been seen yet. It is not a failure.
var ErrNeedMoreInput = errors.New("need more input")

// IsNetwork checks if an error is a network error.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// IsServer checks if an error is a server error.
func IsServer(err error) bool {
	return errors.Is(err, ErrServer)
}

// IsDecode checks if an error is a decode error.
func IsDecode(err error) bool {
	return errors.Is(err, ErrDecode)
}

// StatusCode returns the HTTP status of a server error, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

func decodeError(cause error) *Error {
	return &Error{Kind: KindDecode, Cause: cause}
}
