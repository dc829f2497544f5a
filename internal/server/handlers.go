// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/noldarim/mindlaunch/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	cfg      *config.ServerConfig
	scenario *Scenario // nil selects the built-in scenario
	publish  func(ObservedEvent)
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.ServerConfig, scenario *Scenario, publish func(ObservedEvent)) *Handlers {
	if publish == nil {
		publish = func(ObservedEvent) {}
	}
	return &Handlers{cfg: cfg, scenario: scenario, publish: publish}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		getLog().Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeDetail writes an error body in the service's {"detail": ...} shape.
func writeDetail(w http.ResponseWriter, status int, detail interface{}) {
	writeJSON(w, status, map[string]interface{}{"detail": detail})
}

// fieldError is one entry of a 422 validation error list.
type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func missing(loc ...string) []fieldError {
	return []fieldError{{Loc: loc, Msg: "Field required", Type: "missing"}}
}

// checkLLM validates the model selection and writes the error response
// when it is invalid.
func checkLLM(w http.ResponseWriter, llmType, apiKey string, loc ...string) bool {
	switch llmType {
	case "", "ollama":
		return true
	case "gemini":
		if apiKey == "" {
			writeDetail(w, http.StatusBadRequest, "API key is required for Gemini")
			return false
		}
		return true
	default:
		writeDetail(w, http.StatusUnprocessableEntity, []fieldError{{
			Loc:  append(loc, "llm_type"),
			Msg:  "Input should be 'ollama' or 'gemini'",
			Type: "enum",
		}})
		return false
	}
}

func (h *Handlers) scenarioFor(in scenarioInput) *Scenario {
	if h.scenario != nil {
		return h.scenario
	}
	return builtinScenario(in, h.cfg.MaxRetries, h.cfg.SucceedOnAttempt)
}

func tooLarge(w http.ResponseWriter, limit int64) {
	writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large. Max size is %d MB", limit>>20))
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return text
}

// --- streaming endpoints ---

type llmConfigBody struct {
	LLMType string `json:"llm_type"`
	APIKey  string `json:"api_key"`
}

type generateTextBody struct {
	Text      *string        `json:"text"`
	LLMConfig *llmConfigBody `json:"llm_config"`
}

// GenerateText handles POST /mindmap/generate/stream
func (h *Handlers) GenerateText(w http.ResponseWriter, r *http.Request) {
	var body generateTextBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			tooLarge(w, tooBig.Limit)
			return
		}
		writeDetail(w, http.StatusUnprocessableEntity, []fieldError{{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"}})
		return
	}
	if body.Text == nil {
		writeDetail(w, http.StatusUnprocessableEntity, missing("body", "text"))
		return
	}
	if body.LLMConfig != nil && !checkLLM(w, body.LLMConfig.LLMType, body.LLMConfig.APIKey, "body", "llm_config") {
		return
	}

	h.stream(w, r, h.scenarioFor(scenarioInput{
		kind:  "text",
		title: firstLine(*body.Text),
		text:  *body.Text,
	}))
}

// GenerateWeb handles POST /mindmap/web/generate/stream
func (h *Handlers) GenerateWeb(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	siteURL := q.Get("site_url")
	if siteURL == "" {
		writeDetail(w, http.StatusUnprocessableEntity, missing("query", "site_url"))
		return
	}
	if !checkLLM(w, q.Get("llm_type"), q.Get("api_key"), "query") {
		return
	}

	h.stream(w, r, h.scenarioFor(scenarioInput{
		kind:    "url",
		title:   siteURL,
		text:    siteURL,
		siteURL: siteURL,
	}))
}

// GenerateFile handles POST /mindmap/file/generate/stream
func (h *Handlers) GenerateFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !checkLLM(w, q.Get("llm_type"), q.Get("api_key"), "query") {
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			tooLarge(w, h.cfg.MaxUploadBytes)
			return
		}
		writeDetail(w, http.StatusUnprocessableEntity, missing("body", "file"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, missing("body", "file"))
		return
	}
	defer file.Close()

	if h.cfg.MaxUploadBytes > 0 && hdr.Size > h.cfg.MaxUploadBytes {
		tooLarge(w, h.cfg.MaxUploadBytes)
		return
	}

	contents, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Invalid PDF file: %v", err))
		return
	}
	if len(contents) == 0 {
		writeDetail(w, http.StatusBadRequest, "Invalid PDF file: file is empty")
		return
	}

	name := hdr.Filename
	if name == "" {
		name = "file.pdf"
	}
	h.stream(w, r, h.scenarioFor(scenarioInput{
		kind:     "file",
		title:    strings.TrimSuffix(name, filepath.Ext(name)),
		text:     strings.ToValidUTF8(string(contents), ""),
		fileName: name,
	}))
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	name := "builtin"
	if h.scenario != nil {
		name = h.scenario.Name
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": name})
}
