// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch opens progress streams against the mindmap generation
// service and drives them through a mission state machine.
package dispatch

import (
	"bytes"
	"context"
	encodingjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noldarim/mindlaunch/internal/config"
	"github.com/noldarim/mindlaunch/internal/logger"
	"github.com/noldarim/mindlaunch/internal/mission"
	"github.com/noldarim/mindlaunch/internal/ndjson"
	"github.com/noldarim/mindlaunch/internal/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Endpoint paths, relative to the configured base URL.
const (
	TextPath = "/mindmap/generate/stream"
	URLPath  = "/mindmap/web/generate/stream"
	FilePath = "/mindmap/file/generate/stream"
)

// RequestIDHeader carries the attempt ID on every request.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 1 << 20

// Messages of the steps announced before the server is reached.
const (
	connectingMessage  = "Connecting to server..."
	readingFileMessage = "Reading %s..."
)

// Attempt is the outcome of one Run.
type Attempt struct {
	ID         string
	Request    Request
	StartedAt  time.Time
	FinishedAt time.Time
	// State is the final, always terminal, mission state.
	State mission.State
	// Err is the local cause of a failure: transport, cancellation, idle
	// timeout, invalid request or a stream without result. It is nil when
	// the server reported the outcome itself.
	Err error
	// Dropped counts stream records discarded as undecodable.
	Dropped int
}

// Result returns the terminal result of the attempt.
func (a Attempt) Result() mission.Result {
	if a.State.Result == nil {
		return mission.Failure("")
	}
	return *a.State.Result
}

// Duration is the wall time the attempt took.
func (a Attempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = c
	}
}

// WithLimiter replaces the launch throttle.
func WithLimiter(l *rate.Limiter) Option {
	return func(d *Dispatcher) {
		d.limiter = l
	}
}

// WithIDGenerator replaces the attempt ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		d.newID = fn
	}
}

// WithDiagnosticSink additionally forwards dropped-record diagnostics to sink.
func WithDiagnosticSink(sink ndjson.DiagnosticSink) Option {
	return func(d *Dispatcher) {
		d.sink = sink
	}
}

// Dispatcher starts generation attempts. It never retries on its own; every
// Run is one attempt, throttled by the launch limiter.
type Dispatcher struct {
	baseURL     *url.URL
	client      *http.Client
	limiter     *rate.Limiter
	idleTimeout time.Duration
	maxLine     int
	maxFile     int64
	newID       func() string
	sink        ndjson.DiagnosticSink
}

// New creates a dispatcher for the service at cfg.BaseURL.
func New(cfg config.ClientConfig, opts ...Option) (*Dispatcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ConnectTimeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	}

	limit := rate.Inf
	if cfg.MinLaunchInterval > 0 {
		limit = rate.Every(cfg.MinLaunchInterval)
	}

	d := &Dispatcher{
		baseURL:     base,
		client:      &http.Client{Transport: transport},
		limiter:     rate.NewLimiter(limit, 1),
		idleTimeout: cfg.IdleTimeout,
		maxLine:     cfg.MaxLineBytes,
		maxFile:     cfg.MaxFileBytes,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run performs one attempt. The machine is reset, fed the locally
// announced steps and then every event of the stream. Run always leaves
// the machine terminal: failures that do not come from the server are
// applied with Machine.Abort. Cancelling ctx abandons the stream.
func (d *Dispatcher) Run(ctx context.Context, req Request, m *mission.Machine) Attempt {
	a := Attempt{ID: d.newID(), Request: req, StartedAt: time.Now()}
	log := logger.ForAttempt(logger.GetDispatchLogger(), a.ID)

	log.Info().
		Str("kind", string(req.Kind)).
		Str("input", req.Reference()).
		Str("llm", req.LLM.Type).
		Msg("Starting attempt")

	m.Reset()
	a.Err = d.run(ctx, &a, m, &log)
	if a.Err != nil {
		m.Abort(a.Err.Error())
	}

	a.State = m.State()
	a.FinishedAt = time.Now()

	res := a.Result()
	event := log.Info()
	if !res.OK() {
		event = log.Warn().Err(a.Err)
	}
	event.
		Str("outcome", res.Outcome.String()).
		Int("steps", len(a.State.Steps)).
		Int("dropped", a.Dropped).
		Dur("duration", a.Duration()).
		Msg("Attempt finished")

	return a
}

func (d *Dispatcher) run(ctx context.Context, a *Attempt, m *mission.Machine, log *zerolog.Logger) error {
	req := a.Request
	if err := req.Validate(); err != nil {
		return err
	}

	var upload *os.File
	if req.Kind == KindFile {
		f, err := d.openUpload(req.FilePath)
		if err != nil {
			return err
		}
		upload = f
	}
	if err := d.limiter.Wait(ctx); err != nil {
		if upload != nil {
			upload.Close()
		}
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	m.Apply(protocol.Event{Status: protocol.StatusConnecting, Message: connectingMessage})
	if req.Kind == KindFile {
		m.Apply(protocol.Event{
			Status:  protocol.StatusReadingFile,
			Message: fmt.Sprintf(readingFileMessage, req.FileName()),
		})
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var idle *time.Timer
	if d.idleTimeout > 0 {
		idle = time.AfterFunc(d.idleTimeout, func() { cancel(ErrIdleTimeout) })
		defer idle.Stop()
	}

	// The upload, if any, is owned by the request from here on.
	httpReq, err := d.newHTTPRequest(ctx, req, upload, a.ID)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if cause := d.interrupted(ctx); cause != nil {
			return cause
		}
		return &TransportError{Err: fmt.Errorf("cannot connect to server: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transportErrorFrom(resp)
	}

	log.Debug().Int("status", resp.StatusCode).Str("content_type", resp.Header.Get("Content-Type")).Msg("Stream opened")

	var body io.Reader = resp.Body
	if idle != nil {
		body = &idleReader{r: resp.Body, timer: idle, timeout: d.idleTimeout}
	}

	sink := ndjson.SinkFunc(func(diag ndjson.Diagnostic) {
		a.Dropped++
		log.Warn().Err(diag.Err).Int64("line", diag.LineNumber).Str("text", diag.Line).Msg("Dropped stream record")
		if d.sink != nil {
			d.sink.Dropped(diag)
		}
	})

	events := ndjson.Events(ctx, body, ndjson.WithMaxLineBytes(d.maxLine), ndjson.WithSink(sink))
	st, err := mission.Fold(events, m)
	if err != nil {
		if cause := d.interrupted(ctx); cause != nil {
			return cause
		}
		return &TransportError{Err: fmt.Errorf("connection lost: %w", err)}
	}
	if !st.Terminal {
		return ErrNoResult
	}
	return nil
}

// interrupted maps a cancelled request context to the reason it was cancelled.
func (d *Dispatcher) interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), ErrIdleTimeout) {
		return fmt.Errorf("%w in %s", ErrIdleTimeout, d.idleTimeout)
	}
	return fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))
}

func (d *Dispatcher) openUpload(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrInvalidRequest, path)
	}
	if d.maxFile > 0 && info.Size() > d.maxFile {
		return nil, fmt.Errorf("%w: file too large. Max size is %d MB", ErrInvalidRequest, d.maxFile>>20)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return f, nil
}

func (d *Dispatcher) endpoint(path string, query url.Values) string {
	u := d.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func llmQuery(llm LLMConfig) url.Values {
	q := url.Values{}
	q.Set("llm_type", llm.Type)
	if llm.APIKey != "" {
		q.Set("api_key", llm.APIKey)
	}
	return q
}

func (d *Dispatcher) newHTTPRequest(ctx context.Context, req Request, upload *os.File, id string) (*http.Request, error) {
	var (
		target      string
		body        io.Reader
		contentType string
		startUpload func()
	)

	switch req.Kind {
	case KindText:
		payload, err := json.Marshal(struct {
			Text      string    `json:"text"`
			LLMConfig LLMConfig `json:"llm_config"`
		}{req.Text, req.LLM})
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		target = d.endpoint(TextPath, nil)
		body = bytes.NewReader(payload)
		contentType = "application/json"

	case KindURL:
		q := llmQuery(req.LLM)
		q.Set("site_url", req.URL)
		target = d.endpoint(URLPath, q)

	case KindFile:
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		startUpload = func() {
			go func() {
				defer upload.Close()
				pw.CloseWithError(writeUpload(mw, req.FileName(), upload))
			}()
		}
		target = d.endpoint(FilePath, llmQuery(req.LLM))
		body = pr
		contentType = mw.FormDataContentType()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		if upload != nil {
			upload.Close()
		}
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if startUpload != nil {
		// The writer exits once the transport consumes or closes the pipe.
		startUpload()
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "text/event-stream, application/x-ndjson")
	httpReq.Header.Set(RequestIDHeader, id)
	return httpReq, nil
}

func writeUpload(mw *multipart.Writer, name string, src io.Reader) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

// transportErrorFrom reads the error body of a non-success response.
func transportErrorFrom(resp *http.Response) *TransportError {
	te := &TransportError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return te
	}
	te.Detail = parseDetail(raw)
	return te
}

// parseDetail extracts the "detail" field of an error body. A string is
// used as is; a list of validation errors is joined by their messages.
func parseDetail(raw []byte) string {
	var body struct {
		Detail encodingjson.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return string(body.Detail)
}

// idleReader re-arms the idle timer whenever bytes arrive.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}
