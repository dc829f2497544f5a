// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ndjson turns an arbitrarily chunked byte stream of newline
// delimited JSON into decoded protocol events.
package ndjson

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"

	"github.com/noldarim/mindlaunch/internal/logger"
	"github.com/noldarim/mindlaunch/internal/protocol"
)

// DefaultMaxLineBytes bounds the pending buffer to one line of this size.
const DefaultMaxLineBytes = 8 << 20

// ErrLineTooLong is reported when a line exceeds the configured maximum.
// The line is discarded and decoding resumes after its terminating newline.
var ErrLineTooLong = errors.New("line exceeds maximum length")

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetStreamLogger()
		log = &l
	})
	return log
}

// Diagnostic describes a record that was dropped instead of delivered.
type Diagnostic struct {
	LineNumber int64
	Line       string // possibly truncated copy of the offending text
	Err        error
}

// DiagnosticSink receives every dropped record. Implementations must not block.
type DiagnosticSink interface {
	Dropped(Diagnostic)
}

// SinkFunc adapts a function to DiagnosticSink.
type SinkFunc func(Diagnostic)

// Dropped implements DiagnosticSink.
func (f SinkFunc) Dropped(d Diagnostic) { f(d) }

type logSink struct{}

func (logSink) Dropped(d Diagnostic) {
	getLog().Warn().
		Err(d.Err).
		Int64("line", d.LineNumber).
		Str("text", d.Line).
		Msg("Dropped stream record")
}

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithSink routes dropped-record diagnostics to sink instead of the stream logger.
func WithSink(sink DiagnosticSink) Option {
	return func(d *Demuxer) {
		if sink != nil {
			d.sink = sink
		}
	}
}

// WithMaxLineBytes sets the longest accepted line. Values <= 0 keep the default.
func WithMaxLineBytes(n int) Option {
	return func(d *Demuxer) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// Demuxer reassembles complete lines from chunks and decodes each one.
// It is not safe for concurrent use; one Demuxer serves one stream.
type Demuxer struct {
	pending    []byte
	discarding bool // inside an over-long line, skipping to the next newline
	lineNumber int64
	maxLine    int
	sink       DiagnosticSink
}

// New creates a Demuxer with an empty pending buffer.
func New(opts ...Option) *Demuxer {
	d := &Demuxer{
		maxLine: DefaultMaxLineBytes,
		sink:    logSink{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed consumes one chunk and returns every event completed by it, in
// arrival order. The trailing partial line, if any, stays pending.
// A multi-byte character split across chunks is reassembled because the
// pending buffer holds raw bytes and '\n' never occurs inside a UTF-8
// multi-byte sequence.
func (d *Demuxer) Feed(chunk []byte) []protocol.Event {
	var out []protocol.Event
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.buffer(chunk)
			break
		}
		d.buffer(chunk[:i])
		if ev, ok := d.flush(); ok {
			out = append(out, ev)
		}
		chunk = chunk[i+1:]
	}
	return out
}

// Finish decodes whatever remains after end of stream. It reports false
// when the remainder is blank or malformed.
func (d *Demuxer) Finish() (protocol.Event, bool) {
	if d.discarding {
		d.discarding = false
		d.pending = d.pending[:0]
		return protocol.Event{}, false
	}
	if len(bytes.TrimSpace(d.pending)) == 0 {
		d.pending = d.pending[:0]
		return protocol.Event{}, false
	}
	return d.flush()
}

// Pending returns the number of buffered bytes of the current partial line.
func (d *Demuxer) Pending() int {
	return len(d.pending)
}

func (d *Demuxer) buffer(b []byte) {
	if d.discarding || len(b) == 0 {
		return
	}
	if len(d.pending)+len(b) > d.maxLine {
		d.lineNumber++
		d.sink.Dropped(Diagnostic{
			LineNumber: d.lineNumber,
			Line:       preview(d.pending),
			Err:        fmt.Errorf("%w (%d bytes)", ErrLineTooLong, d.maxLine),
		})
		d.pending = d.pending[:0]
		d.discarding = true
		return
	}
	d.pending = append(d.pending, b...)
}

// flush decodes the pending line and resets the buffer.
func (d *Demuxer) flush() (protocol.Event, bool) {
	if d.discarding {
		// The over-long line was already counted and reported.
		d.discarding = false
		d.pending = d.pending[:0]
		return protocol.Event{}, false
	}

	d.lineNumber++
	line := d.pending
	d.pending = d.pending[:0]

	if len(bytes.TrimSpace(line)) == 0 {
		return protocol.Event{}, false
	}

	// Decoded events must not alias the pending buffer, which is reused.
	text := repairUTF8(bytes.Clone(line))

	ev, err := protocol.DecodeEvent(text)
	if err != nil {
		d.sink.Dropped(Diagnostic{LineNumber: d.lineNumber, Line: preview(text), Err: err})
		return protocol.Event{}, false
	}
	return ev, true
}

// repairUTF8 replaces each maximal ill-formed subsequence of line with one
// U+FFFD, the way a browser TextDecoder does. Valid lines are returned as is.
func repairUTF8(line []byte) []byte {
	if utf8.Valid(line) {
		return line
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(line)
	if err != nil {
		return bytes.ToValidUTF8(line, []byte(string(utf8.RuneError)))
	}
	return out
}

const previewBytes = 256

func preview(b []byte) string {
	if len(b) <= previewBytes {
		return string(b)
	}
	return strings.ToValidUTF8(string(b[:previewBytes]), "") + "..."
}
