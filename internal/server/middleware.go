// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noldarim/mindlaunch/internal/logger"
)

type contextKey string

const attemptIDKey contextKey = "attempt_id"

// Methods served by the router; preflight answers advertise exactly these.
var routedMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")

var validAttemptID = regexp.MustCompile(`^[a-zA-Z0-9\-_]{1,128}$`)

// AttemptID tags each request with the attempt it belongs to. Clients send
// their attempt id as X-Request-ID; a missing or malformed one is replaced
// with a fresh UUID. The id is echoed back and reaches every streamed event
// published to /ws observers.
func AttemptID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validAttemptID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), attemptIDKey, id)))
	})
}

// GetRequestID returns the attempt id set by AttemptID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(attemptIDKey).(string)
	return id
}

// Recovery turns a handler panic into a 500 detail response. Once a
// stream has started the status line is gone, so the stream is cut short
// instead.
func Recovery(l *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := trackResponse(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				l.Error().
					Str("attempt_id", GetRequestID(r.Context())).
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Bool("stream_started", tw.wroteHeader).
					Msg("Recovered from panic")
				if !tw.wroteHeader {
					writeDetail(tw, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

// MaxBodySize caps upload bodies. Only POST carries one on this server.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs each request once it ends, tagged with its attempt
// id. For streams it also records how many bytes and flushes went out.
func RequestLogger(l *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tw := trackResponse(w)
			next.ServeHTTP(tw, r)

			rl := logger.ForAttempt(*l, GetRequestID(r.Context()))
			ev := rl.Info()
			if tw.status >= http.StatusInternalServerError {
				ev = rl.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", tw.status).
				Int64("bytes", tw.bytes).
				Int("flushes", tw.flushes).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

// CORS lets browser clients call the generation endpoints and read the
// attempt id header. An empty allow list permits every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if len(allowed) == 0 {
				h.Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[r.Header.Get("Origin")]; ok {
				h.Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", routedMethods)
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseTracker records what a handler sent. Middlewares share one
// tracker per request.
type responseTracker struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int64
	flushes     int
}

func trackResponse(w http.ResponseWriter) *responseTracker {
	if tw, ok := w.(*responseTracker); ok {
		return tw
	}
	return &responseTracker{ResponseWriter: w, status: http.StatusOK}
}

func (w *responseTracker) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseTracker) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *responseTracker) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.wroteHeader = true
		w.flushes++
		f.Flush()
	}
}

// Hijack hands the connection to the WebSocket upgrader.
func (w *responseTracker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("response writer does not support hijacking")
}

func (w *responseTracker) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
