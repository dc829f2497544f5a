// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noldarim/mindlaunch/internal/protocol"
)

// Scenario is a scripted progress stream.
type Scenario struct {
	Name string `yaml:"name"`
	// Delay is the pause before each step that sets none.
	Delay time.Duration  `yaml:"delay"`
	Steps []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one line of a scripted stream. Raw, when set, is written
// verbatim instead of an encoded event, which lets a scenario inject
// garbage lines.
type ScenarioStep struct {
	Status  protocol.StatusCode `yaml:"status"`
	Message string              `yaml:"message,omitempty"`
	Data    map[string]any      `yaml:"data,omitempty"`
	Raw     string              `yaml:"raw,omitempty"`
	Delay   time.Duration       `yaml:"delay,omitempty"`
	// SplitAt writes the line in two flushed chunks, split at this byte offset.
	SplitAt int `yaml:"split_at,omitempty"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, errors.New("scenario has no steps")
	}
	for i, st := range sc.Steps {
		if st.Status == "" && st.Raw == "" {
			return nil, fmt.Errorf("step %d: either status or raw is required", i+1)
		}
		if st.SplitAt < 0 {
			return nil, fmt.Errorf("step %d: split_at must not be negative", i+1)
		}
	}
	return &sc, nil
}

// Event builds the event the step encodes. Raw steps have none.
func (st ScenarioStep) Event() (protocol.Event, error) {
	if st.Raw != "" {
		return protocol.Event{}, errors.New("raw step carries no event")
	}
	var data interface{}
	if st.Data != nil {
		data = st.Data
	}
	return protocol.NewEvent(st.Status, st.Message, data)
}

// Line renders the step as stream bytes, terminated by '\n'.
func (st ScenarioStep) Line() ([]byte, error) {
	if st.Raw != "" {
		return []byte(st.Raw + "\n"), nil
	}
	ev, err := st.Event()
	if err != nil {
		return nil, err
	}
	return ev.EncodeLine()
}

// scenarioInput is what the built-in scenario knows about a request.
type scenarioInput struct {
	kind     string // "text", "url" or "file"
	title    string
	text     string
	siteURL  string
	fileName string
}

// builtinScenario reproduces the generation service: an input-specific
// prelude followed by the generate, validate and retry loop.
func builtinScenario(in scenarioInput, maxRetries, succeedOn int) *Scenario {
	sc := &Scenario{Name: "builtin-" + in.kind}
	add := func(status protocol.StatusCode, msg string, data map[string]any) {
		sc.Steps = append(sc.Steps, ScenarioStep{Status: status, Message: msg, Data: data})
	}

	switch in.kind {
	case "text":
		add(protocol.StatusPreparing, "Preparing text data...", map[string]any{"text_length": len(in.text)})
	case "file":
		add(protocol.StatusExtractingText, fmt.Sprintf("Extracted text from %s...", in.fileName),
			map[string]any{"text_length": len(in.text), "filename": in.fileName})
	case "url":
		add(protocol.StatusLoadingWeb, fmt.Sprintf("Loading content from %s...", in.siteURL), map[string]any{"url": in.siteURL})
		add(protocol.StatusExtractingText, "Extracting content from the web page...", map[string]any{"url": in.siteURL})
	}

	var lastError string
	for attempt := 1; attempt <= maxRetries; attempt++ {
		add(protocol.StatusProcessing, fmt.Sprintf("Generating mindmap... (attempt %d/%d)", attempt, maxRetries),
			map[string]any{"attempt": attempt, "max_retries": maxRetries})

		draft := draftCTM(in.title, in.text, attempt != succeedOn)
		add(protocol.StatusValidating, "Checking CTM format...", map[string]any{"attempt": attempt})

		valid, msg := validateCTM(draft)
		if valid {
			add(protocol.StatusSuccess, "Mindmap generated!", map[string]any{
				"ctm":                draft,
				"attempts_used":      attempt,
				"validation_message": msg,
			})
			return sc
		}
		lastError = msg

		if attempt < maxRetries {
			add(protocol.StatusRetry, fmt.Sprintf("Invalid format, retrying... (%d/%d)", attempt+1, maxRetries),
				map[string]any{"error": msg, "next_attempt": attempt + 1, "remaining_retries": maxRetries - attempt})
		}
	}

	add(protocol.StatusError, fmt.Sprintf("Could not generate the mindmap after %d attempts.", maxRetries),
		map[string]any{"last_error": lastError, "attempts_used": maxRetries})
	return sc
}
