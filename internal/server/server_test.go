// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noldarim/mindlaunch/internal/config"
	"github.com/noldarim/mindlaunch/internal/dispatch"
	"github.com/noldarim/mindlaunch/internal/mission"
	"github.com/noldarim/mindlaunch/internal/ndjson"
	"github.com/noldarim/mindlaunch/internal/protocol"
)

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:             "127.0.0.1",
		Port:             0,
		MaxRetries:       3,
		MaxUploadBytes:   1 << 20,
		SucceedOnAttempt: 2,
	}
}

func newTestServer(t *testing.T, cfg *config.ServerConfig) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func readEvents(t *testing.T, body io.Reader) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	for ev, err := range ndjson.Events(context.Background(), body) {
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func eventStatuses(events []protocol.Event) []protocol.StatusCode {
	return lo.Map(events, func(ev protocol.Event, _ int) protocol.StatusCode { return ev.Status })
}

type detailBody struct {
	Detail interface{} `json:"detail"`
}

func decodeDetail(t *testing.T, resp *http.Response) interface{} {
	t.Helper()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body detailBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Detail
}

func TestGenerateText_StreamsBuiltinScenario(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())

	resp, err := http.Post(ts.URL+"/mindmap/generate/stream", "application/json",
		strings.NewReader(`{"text":"Goroutines are lightweight threads. Channels connect goroutines.","llm_config":{"llm_type":"ollama"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	events := readEvents(t, resp.Body)
	assert.Equal(t, []protocol.StatusCode{
		protocol.StatusPreparing,
		protocol.StatusProcessing, protocol.StatusValidating, protocol.StatusRetry,
		protocol.StatusProcessing, protocol.StatusValidating, protocol.StatusSuccess,
	}, eventStatuses(events))

	data, ok := events[len(events)-1].SuccessData()
	require.True(t, ok)
	assert.Equal(t, 2, data.AttemptsUsed)
	assert.True(t, strings.HasPrefix(data.CTM, "Goroutines are lightweight threads"))
	assert.Contains(t, data.ValidationMessage, "Valid CTM")
}

func TestGenerateText_AllAttemptsFail(t *testing.T) {
	cfg := testServerConfig()
	cfg.SucceedOnAttempt = 0
	_, ts := newTestServer(t, cfg)

	resp, err := http.Post(ts.URL+"/mindmap/generate/stream", "application/json", strings.NewReader(`{"text":"Hello there."}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	last := events[len(events)-1]
	assert.Equal(t, protocol.StatusError, last.Status)
	assert.Equal(t, "Could not generate the mindmap after 3 attempts.", last.Message)
	assert.Equal(t, 3, lo.CountBy(events, func(ev protocol.Event) bool { return ev.Status == protocol.StatusProcessing }))
}

func TestGenerateText_Validation(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{"missing text", `{}`, http.StatusUnprocessableEntity, "Field required"},
		{"invalid json", `{"text":`, http.StatusUnprocessableEntity, "JSON decode error"},
		{"unknown llm", `{"text":"x","llm_config":{"llm_type":"gpt"}}`, http.StatusUnprocessableEntity, "Input should be 'ollama' or 'gemini'"},
		{"gemini without key", `{"text":"x","llm_config":{"llm_type":"gemini"}}`, http.StatusBadRequest, "API key is required for Gemini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/mindmap/generate/stream", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			raw, err := json.Marshal(decodeDetail(t, resp))
			require.NoError(t, err)
			assert.Contains(t, string(raw), tt.wantDetail)
		})
	}
}

func TestGenerateWeb(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())

	t.Run("missing site_url", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/mindmap/web/generate/stream?llm_type=ollama", "", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		detail, ok := decodeDetail(t, resp).([]interface{})
		require.True(t, ok)
		require.Len(t, detail, 1)
		assert.Equal(t, []interface{}{"query", "site_url"}, detail[0].(map[string]interface{})["loc"])
	})

	t.Run("streams web prelude", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/mindmap/web/generate/stream?site_url=https%3A%2F%2Fgo.dev&llm_type=ollama", "", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		events := readEvents(t, resp.Body)
		require.GreaterOrEqual(t, len(events), 2)
		assert.Equal(t, protocol.StatusLoadingWeb, events[0].Status)
		assert.Equal(t, "Loading content from https://go.dev...", events[0].Message)
		assert.Equal(t, protocol.StatusExtractingText, events[1].Status)
	})
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("other", "value"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestGenerateFile(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())
	endpoint := ts.URL + "/mindmap/file/generate/stream?llm_type=ollama"

	t.Run("too large", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "big.pdf", bytes.Repeat([]byte("a"), 1<<20+10))
		resp, err := http.Post(endpoint, ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "File too large. Max size is 1 MB", decodeDetail(t, resp))
	})

	t.Run("missing file", func(t *testing.T) {
		body, ct := multipartBody(t, "", "", nil)
		resp, err := http.Post(endpoint, ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("empty file", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "empty.pdf", nil)
		resp, err := http.Post(endpoint, ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid PDF file: file is empty", decodeDetail(t, resp))
	})

	t.Run("streams file prelude", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "notes.pdf", []byte("Channels carry values. Mutexes guard memory."))
		resp, err := http.Post(endpoint, ct, body)
		require.NoError(t, err)
		defer resp.Body.Close()

		events := readEvents(t, resp.Body)
		require.NotEmpty(t, events)
		assert.Equal(t, protocol.StatusExtractingText, events[0].Status)
		assert.Equal(t, "Extracted text from notes.pdf...", events[0].Message)
		assert.Equal(t, protocol.StatusSuccess, events[len(events)-1].Status)
	})
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok", "scenario": "builtin"}, body)
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNew_BadScenarioFile(t *testing.T) {
	cfg := testServerConfig()
	cfg.ScenarioFile = writeScenario(t, "steps: []\n")
	_, err := New(cfg)
	assert.ErrorContains(t, err, "no steps")
}

func TestCustomScenario_RawBytes(t *testing.T) {
	cfg := testServerConfig()
	cfg.ScenarioFile = writeScenario(t, garbleScenario)
	_, ts := newTestServer(t, cfg)

	resp, err := http.Post(ts.URL+"/mindmap/generate/stream", "application/json", strings.NewReader(`{"text":"ignored"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "this is not json", lines[1])
	assert.Equal(t, `{"status":"PROCESSING","message":"Đang tạo sơ đồ..."}`, lines[2])
}

func testDispatcher(t *testing.T, baseURL string) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.New(config.ClientConfig{
		BaseURL:      baseURL,
		LLMType:      dispatch.LLMOllama,
		IdleTimeout:  5 * time.Second,
		MaxLineBytes: 1 << 20,
		MaxFileBytes: 1 << 20,
	}, dispatch.WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}))
	require.NoError(t, err)
	return d
}

func TestDispatcherAgainstServer(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())
	d := testDispatcher(t, ts.URL)

	var phases []protocol.StatusCode
	m := mission.NewMachine(mission.Hooks{
		OnPhase: func(info protocol.StatusInfo) { phases = append(phases, info.Code) },
	})

	a := d.Run(context.Background(), dispatch.TextRequest("Goroutines are lightweight threads. Channels connect goroutines.", dispatch.LLMConfig{}), m)
	require.NoError(t, a.Err)

	res := a.Result()
	require.True(t, res.OK(), res.String())
	assert.Equal(t, 2, res.AttemptsUsed)
	valid, _ := validateCTM(res.Payload)
	assert.True(t, valid)

	assert.Equal(t, 100, a.State.ProgressTarget)
	assert.Equal(t, 0, a.State.Count(mission.LifecycleActive))
	assert.Equal(t, protocol.StatusConnecting, phases[0])
	assert.Equal(t, protocol.StatusSuccess, phases[len(phases)-1])
	assert.Contains(t, phases, protocol.StatusRetry)
}

func TestDispatcherAgainstServer_GarbledScenario(t *testing.T) {
	cfg := testServerConfig()
	cfg.ScenarioFile = writeScenario(t, garbleScenario)
	_, ts := newTestServer(t, cfg)
	d := testDispatcher(t, ts.URL)

	a := d.Run(context.Background(), dispatch.TextRequest("ignored", dispatch.LLMConfig{}), mission.NewMachine(mission.Hooks{}))
	require.NoError(t, a.Err)
	assert.Equal(t, 1, a.Dropped)
	assert.Equal(t, "Root\n>Child", a.Result().Payload)

	step, ok := a.State.Step(protocol.StatusProcessing)
	require.True(t, ok)
	assert.Equal(t, "Đang tạo sơ đồ...", step.Message)
}

func TestDispatcherAgainstServer_Rejected(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())
	d := testDispatcher(t, ts.URL)

	a := d.Run(context.Background(), dispatch.URLRequest("https://go.dev", dispatch.LLMConfig{Type: "gpt"}), mission.NewMachine(mission.Hooks{}))
	// The client refuses the unknown model before any request is made.
	assert.ErrorIs(t, a.Err, dispatch.ErrInvalidRequest)

	a = d.Run(context.Background(), dispatch.URLRequest("https://go.dev", dispatch.LLMConfig{Type: dispatch.LLMGemini, APIKey: "k"}), mission.NewMachine(mission.Hooks{}))
	require.NoError(t, a.Err)
	assert.True(t, a.Result().OK())
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
}

func TestWebSocket_ObserverReceivesFilteredAttempt(t *testing.T) {
	s, ts := newTestServer(t, testServerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartBroadcaster(ctx)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "?attempt_id=watched"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	post := func(id string) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/mindmap/generate/stream", strings.NewReader(`{"text":"Watching attempts closely."}`))
		require.NoError(t, err)
		req.Header.Set("X-Request-ID", id)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		_, err = io.Copy(io.Discard, resp.Body)
		require.NoError(t, err)
	}
	post("other")
	post("watched")

	var seen []ObservedEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg wsOutMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		require.Equal(t, "event", msg.Type)
		require.NotNil(t, msg.Payload)
		seen = append(seen, *msg.Payload)
		if msg.Payload.Event.Status.IsTerminal() {
			break
		}
	}

	for i, ev := range seen {
		assert.Equal(t, "watched", ev.AttemptID)
		assert.Equal(t, i, ev.Seq)
	}
	assert.Equal(t, protocol.StatusPreparing, seen[0].Event.Status)
	assert.Equal(t, protocol.StatusSuccess, seen[len(seen)-1].Event.Status)
}

func TestClientRegistry_Filters(t *testing.T) {
	all := &wsClient{}
	one := &wsClient{filters: []SubscriptionFilter{{AttemptID: "a"}}}

	assert.True(t, all.matchesAny("a"))
	assert.True(t, all.matchesAny("b"))
	assert.True(t, one.matchesAny("a"))
	assert.False(t, one.matchesAny("b"))

	one.filters = removeFilter(one.filters, SubscriptionFilter{AttemptID: "a"})
	assert.Empty(t, one.filters)
}
