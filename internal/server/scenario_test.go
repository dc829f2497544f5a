// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noldarim/mindlaunch/internal/protocol"
)

const garbleScenario = `
name: garbled
delay: 5ms
steps:
  - status: PREPARING
    message: Preparing text data...
  - raw: "this is not json"
  - status: PROCESSING
    message: "Đang tạo sơ đồ..."
    split_at: 36
    delay: 1ms
  - status: SUCCESS
    message: Mindmap generated!
    data:
      ctm: "Root\n>Child"
      attempts_used: 1
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(garbleScenario))
	require.NoError(t, err)

	assert.Equal(t, "garbled", sc.Name)
	assert.Equal(t, 5*time.Millisecond, sc.Delay)
	require.Len(t, sc.Steps, 4)
	assert.Equal(t, "this is not json", sc.Steps[1].Raw)
	assert.Equal(t, 36, sc.Steps[2].SplitAt)
	assert.Equal(t, time.Millisecond, sc.Steps[2].Delay)

	ev, err := sc.Steps[3].Event()
	require.NoError(t, err)
	payload, ok := ev.Payload()
	require.True(t, ok)
	assert.Equal(t, "Root\n>Child", payload)

	_, err = sc.Steps[1].Event()
	assert.Error(t, err)
	line, err := sc.Steps[1].Line()
	require.NoError(t, err)
	assert.Equal(t, "this is not json\n", string(line))
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"no steps", "name: empty\n", "no steps"},
		{"step without status", "steps:\n  - message: hi\n", "step 1: either status or raw is required"},
		{"negative split", "steps:\n  - status: PREPARING\n    split_at: -1\n", "split_at must not be negative"},
		{"bad yaml", "steps: [", "failed to parse scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(garbleScenario), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Len(t, sc.Steps, 4)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func statuses(sc *Scenario) []protocol.StatusCode {
	return lo.Map(sc.Steps, func(st ScenarioStep, _ int) protocol.StatusCode { return st.Status })
}

func TestBuiltinScenario(t *testing.T) {
	text := scenarioInput{kind: "text", title: "Go", text: "Goroutines are lightweight threads."}

	t.Run("succeeds on second attempt", func(t *testing.T) {
		sc := builtinScenario(text, 3, 2)
		assert.Equal(t, []protocol.StatusCode{
			protocol.StatusPreparing,
			protocol.StatusProcessing, protocol.StatusValidating, protocol.StatusRetry,
			protocol.StatusProcessing, protocol.StatusValidating, protocol.StatusSuccess,
		}, statuses(sc))

		last, err := sc.Steps[len(sc.Steps)-1].Event()
		require.NoError(t, err)
		data, ok := last.SuccessData()
		require.True(t, ok)
		assert.Equal(t, 2, data.AttemptsUsed)
		valid, _ := validateCTM(data.CTM)
		assert.True(t, valid)
	})

	t.Run("exhausts retries", func(t *testing.T) {
		sc := builtinScenario(text, 2, 0)
		assert.Equal(t, []protocol.StatusCode{
			protocol.StatusPreparing,
			protocol.StatusProcessing, protocol.StatusValidating, protocol.StatusRetry,
			protocol.StatusProcessing, protocol.StatusValidating, protocol.StatusError,
		}, statuses(sc))
		assert.Equal(t, "Could not generate the mindmap after 2 attempts.", sc.Steps[len(sc.Steps)-1].Message)
	})

	t.Run("url prelude", func(t *testing.T) {
		sc := builtinScenario(scenarioInput{kind: "url", siteURL: "https://go.dev", title: "https://go.dev", text: "https://go.dev"}, 1, 1)
		assert.Equal(t, []protocol.StatusCode{
			protocol.StatusLoadingWeb, protocol.StatusExtractingText,
			protocol.StatusProcessing, protocol.StatusValidating, protocol.StatusSuccess,
		}, statuses(sc))
	})

	t.Run("file prelude", func(t *testing.T) {
		sc := builtinScenario(scenarioInput{kind: "file", fileName: "notes.pdf", title: "notes", text: "Some notes here."}, 1, 1)
		assert.Equal(t, protocol.StatusExtractingText, sc.Steps[0].Status)
		assert.Equal(t, "Extracted text from notes.pdf...", sc.Steps[0].Message)
	})
}
