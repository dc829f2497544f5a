// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResult is reported when the stream ends cleanly without a terminal result.
	ErrNoResult = errors.New("stream ended without a result")
	// ErrIdleTimeout is reported when no bytes arrive within the idle timeout.
	ErrIdleTimeout = errors.New("no data received from server")
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrCancelled is reported when the caller abandons the attempt.
	ErrCancelled = errors.New("attempt cancelled")
)

// TransportError is a failure to obtain a progress stream: the request
// could not be sent, or the server answered with a non-success status.
type TransportError struct {
	StatusCode int    // 0 when no response was received
	Detail     string // the server's "detail" field, when present
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
