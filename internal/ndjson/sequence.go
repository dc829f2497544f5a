// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package ndjson

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/noldarim/mindlaunch/internal/protocol"
)

// ReadBufferSize is the size of each read issued against the underlying stream.
const ReadBufferSize = 32 << 10

// Chunks returns a pull-based sequence of byte chunks read from r.
// The sequence ends at io.EOF; any other read error, or ctx cancellation
// observed between reads, is yielded once and ends the sequence.
// Yielded slices are only valid until the next iteration.
func Chunks(ctx context.Context, r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		buf := make([]byte, ReadBufferSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			n, err := r.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Demux folds a sequence of chunks through a fresh Demuxer and yields
// decoded events in arrival order. Chunk errors are passed through and end
// the sequence; the pending remainder is decoded only after a clean end.
func Demux(chunks iter.Seq2[[]byte, error], opts ...Option) iter.Seq2[protocol.Event, error] {
	return func(yield func(protocol.Event, error) bool) {
		d := New(opts...)
		for chunk, err := range chunks {
			if err != nil {
				yield(protocol.Event{}, err)
				return
			}
			for _, ev := range d.Feed(chunk) {
				if !yield(ev, nil) {
					return
				}
			}
		}
		if ev, ok := d.Finish(); ok {
			yield(ev, nil)
		}
	}
}

// Events decodes the stream read from r. Decode problems never surface
// here: they are reported to the configured DiagnosticSink and skipped.
func Events(ctx context.Context, r io.Reader, opts ...Option) iter.Seq2[protocol.Event, error] {
	return Demux(Chunks(ctx, r), opts...)
}

// FromSlices adapts in-memory chunks to a chunk sequence.
func FromSlices(chunks ...[]byte) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}
