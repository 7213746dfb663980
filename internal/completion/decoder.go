// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// STREAMING: Line framing is independent of network delivery boundaries.

// =============================================================================
// STREAM CONSTANTS
// =============================================================================

// DefaultMaxLineSize is the largest single line the decoder will buffer (1 MiB).
const DefaultMaxLineSize = 1 << 20

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	contentPath  = "choices.0.delta.content"
	readSize     = 4096
)

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns raw byte chunks of an SSE completion stream into content
// fragments. Chunks may split lines anywhere, including inside a UTF-8
// sequence or the "data:" prefix; partial lines are buffered until their
// newline arrives.
//
// Usage:
//
//	d := NewDecoder(0)
//	d.Feed(chunk)
//	for {
//	    frag, err := d.Next()
//	    if err == ErrNeedMoreInput { break }   // feed more
//	    if err == io.EOF { return }           // [DONE] seen
//	    ...
//	}
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	pending []string
	maxLine int
	done    bool
	err     error
}

// NewDecoder creates a decoder. maxLine <= 0 selects DefaultMaxLineSize.
func NewDecoder(maxLine int) *Decoder {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	return &Decoder{maxLine: maxLine}
}

// Feed appends a chunk and processes every complete line in it. Input after
// the sentinel is ignored. Once Feed has failed, every later call returns
// the same error.
func (d *Decoder) Feed(chunk []byte) error {
	if d.err != nil {
		return d.err
	}
	if d.done {
		return nil
	}

	d.buf = append(d.buf, chunk...)

	off := 0
	for !d.done {
		idx := bytes.IndexByte(d.buf[off:], '\n')
		if idx < 0 {
			break
		}
		line := d.buf[off : off+idx]
		off += idx + 1
		if len(line) > d.maxLine {
			d.err = decodeError(ErrLineTooLong)
			return d.err
		}
		d.processLine(line)
	}

	if d.done {
		d.buf = nil
		return nil
	}

	n := copy(d.buf, d.buf[off:])
	d.buf = d.buf[:n]
	if len(d.buf) > d.maxLine {
		d.err = decodeError(ErrLineTooLong)
		return d.err
	}
	return nil
}

// Next returns the next fragment. When none is ready it returns
// ErrNeedMoreInput, or io.EOF if the sentinel was seen, or the decoder's
// failure.
func (d *Decoder) Next() (string, error) {
	if len(d.pending) > 0 {
		frag := d.pending[0]
		d.pending = d.pending[1:]
		return frag, nil
	}
	if d.err != nil {
		return "", d.err
	}
	if d.done {
		return "", io.EOF
	}
	return "", ErrNeedMoreInput
}

// Finish signals that no more input will arrive. An unterminated final
// line is processed as a complete line. If the sentinel was never seen the
// stream is truncated and Finish returns a decode error wrapping
// ErrTruncated; fragments already decoded remain available from Next.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.done {
		return nil
	}
	if len(d.buf) > 0 {
		line := d.buf
		d.buf = nil
		d.processLine(line)
	}
	if !d.done {
		d.err = decodeError(ErrTruncated)
		return d.err
	}
	return nil
}

// Done reports whether the sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// processLine handles one line without its terminating newline.
func (d *Decoder) processLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		// event:, id:, retry:, comments and blank separators.
		return
	}

	payload := bytes.TrimPrefix(line[len(dataPrefix):], []byte(" "))
	if string(bytes.TrimSpace(payload)) == doneSentinel {
		d.done = true
		return
	}

	if !gjson.ValidBytes(payload) {
		return
	}
	content := gjson.GetBytes(payload, contentPath)
	if content.Type != gjson.String || content.Str == "" {
		return
	}
	d.pending = append(d.pending, content.Str)
}

// =============================================================================
// READER ADAPTER
// =============================================================================

// Sink receives each content fragment as it is decoded.
type Sink func(fragment string)

// DecodeStream reads r until the sentinel, calling sink for every fragment
// in arrival order, and returns the concatenated reply.
func DecodeStream(ctx context.Context, r io.Reader, sink Sink) (string, error) {
	return NewDecoder(0).Stream(ctx, r, sink)
}

// Stream drives the decoder from r. Reading stops as soon as the sentinel is
// seen. Read failures become network errors, and on any error the partial
// text is attached to the returned *Error rather than returned as a reply.
func (d *Decoder) Stream(ctx context.Context, r io.Reader, sink Sink) (string, error) {
	var reply strings.Builder
	buf := make([]byte, readSize)

	drain := func() error {
		for {
			frag, err := d.Next()
			switch {
			case err == nil:
				reply.WriteString(frag)
				if sink != nil {
					sink(frag)
				}
			case errors.Is(err, ErrNeedMoreInput), errors.Is(err, io.EOF):
				return nil
			default:
				return err
			}
		}
	}

	fail := func(err error) (string, error) {
		var e *Error
		if !errors.As(err, &e) {
			e = &Error{Kind: KindNetwork, Message: "failed to read response", Cause: err}
		}
		e.Partial = reply.String()
		return "", e
	}

	for !d.done {
		if err := ctx.Err(); err != nil {
			return fail(contextCause(ctx))
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if err := d.Feed(buf[:n]); err != nil {
				return fail(err)
			}
			if err := drain(); err != nil {
				return fail(err)
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			finishErr := d.Finish()
			// The final unterminated line may still hold a fragment.
			_ = drain()
			if finishErr != nil {
				return fail(finishErr)
			}
			break
		}
		if ctx.Err() != nil {
			return fail(contextCause(ctx))
		}
		return fail(readErr)
	}

	return reply.String(), nil
}

// contextCause returns the cancellation cause, which carries which timeout
// fired when the transport set one.
func contextCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}
