// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package launchform asks for the input of an attempt when none was given
// on the command line.
package launchform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/noldarim/mindlaunch/internal/dispatch"
)

// Values is what the form collects.
type Values struct {
	Kind   string
	Input  string
	LLM    string
	APIKey string
}

// New builds the launch form bound to v. Fields are pre-filled from v.
func New(v *Values) *huh.Form {
	if v.Kind == "" {
		v.Kind = string(dispatch.KindText)
	}
	if v.LLM == "" {
		v.LLM = dispatch.LLMOllama
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("kind").
				Title("Launch from").
				Options(
					huh.NewOption("Text", string(dispatch.KindText)),
					huh.NewOption("Web page", string(dispatch.KindURL)),
					huh.NewOption("PDF file", string(dispatch.KindFile)),
				).
				Value(&v.Kind),

			huh.NewSelect[string]().
				Key("llm").
				Title("Model").
				Options(
					huh.NewOption("Ollama (local)", dispatch.LLMOllama),
					huh.NewOption("Gemini", dispatch.LLMGemini),
				).
				Value(&v.LLM),
		),
		huh.NewGroup(
			huh.NewText().
				Key("input").
				Title("Payload").
				Description("Text to map, a web page URL or a PDF path").
				Placeholder("Paste text, a URL or a file path...").
				Validate(func(s string) error { return ValidateInput(v.Kind, s) }).
				Value(&v.Input),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("api_key").
				Title("Gemini API key").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("an API key is required for Gemini")
					}
					return nil
				}).
				Value(&v.APIKey),
		).WithHideFunc(func() bool { return v.LLM != dispatch.LLMGemini }),
	).WithTheme(huh.ThemeCharm())
}

// ValidateInput checks the payload field for the chosen kind.
func ValidateInput(kind, input string) error {
	_, err := request(kind, input, dispatch.LLMConfig{Type: dispatch.LLMOllama})
	return err
}

// Request converts the collected values into a dispatch request.
func (v Values) Request() (dispatch.Request, error) {
	llm := dispatch.LLMConfig{Type: v.LLM, APIKey: strings.TrimSpace(v.APIKey)}
	if v.LLM != dispatch.LLMGemini {
		llm.APIKey = ""
	}
	return request(v.Kind, v.Input, llm)
}

func request(kind, input string, llm dispatch.LLMConfig) (dispatch.Request, error) {
	var req dispatch.Request
	switch dispatch.Kind(kind) {
	case dispatch.KindText:
		req = dispatch.TextRequest(input, llm)
	case dispatch.KindURL:
		req = dispatch.URLRequest(strings.TrimSpace(input), llm)
	case dispatch.KindFile:
		req = dispatch.FileRequest(strings.TrimSpace(input), llm)
	default:
		return dispatch.Request{}, fmt.Errorf("unknown input kind %q", kind)
	}
	if err := req.Validate(); err != nil {
		return dispatch.Request{}, err
	}
	return req, nil
}
