// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package launchform

import (
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noldarim/mindlaunch/internal/dispatch"
)

func TestNew_Defaults(t *testing.T) {
	var v Values
	form := New(&v)
	require.NotNil(t, form)
	assert.Equal(t, huh.StateNormal, form.State)
	assert.Equal(t, "text", v.Kind)
	assert.Equal(t, dispatch.LLMOllama, v.LLM)
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		input   string
		wantErr bool
	}{
		{"text", "text", "Some notes about Go.", false},
		{"blank text", "text", "   \n", true},
		{"url", "url", " https://go.dev/doc ", false},
		{"relative url", "url", "go.dev", true},
		{"file", "file", "notes.pdf", false},
		{"empty file", "file", "", true},
		{"unknown kind", "video", "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.kind, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValues_Request(t *testing.T) {
	req, err := Values{Kind: "url", Input: " https://go.dev ", LLM: dispatch.LLMGemini, APIKey: " key "}.Request()
	require.NoError(t, err)
	assert.Equal(t, dispatch.KindURL, req.Kind)
	assert.Equal(t, "https://go.dev", req.URL)
	assert.Equal(t, dispatch.LLMConfig{Type: dispatch.LLMGemini, APIKey: "key"}, req.LLM)

	req, err = Values{Kind: "text", Input: "hello", LLM: dispatch.LLMOllama, APIKey: "stale"}.Request()
	require.NoError(t, err)
	assert.Empty(t, req.LLM.APIKey)

	_, err = Values{Kind: "text", Input: "hello", LLM: dispatch.LLMGemini}.Request()
	assert.ErrorIs(t, err, dispatch.ErrInvalidRequest)
}
