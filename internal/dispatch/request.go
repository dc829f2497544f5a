// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Kind identifies the input a generation attempt starts from.
type Kind string

const (
	KindText Kind = "text"
	KindURL  Kind = "url"
	KindFile Kind = "file"
)

// LLM backends accepted by the service.
const (
	LLMOllama = "ollama"
	LLMGemini = "gemini"
)

// LLMConfig selects the model backend used by the server.
type LLMConfig struct {
	Type   string `json:"llm_type"`
	APIKey string `json:"api_key,omitempty"`
}

// Validate checks the backend name and that gemini carries a key.
func (c LLMConfig) Validate() error {
	switch c.Type {
	case LLMOllama:
		return nil
	case LLMGemini:
		if c.APIKey == "" {
			return fmt.Errorf("%w: an API key is required for gemini", ErrInvalidRequest)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported llm type %q", ErrInvalidRequest, c.Type)
	}
}

func (c LLMConfig) orDefault() LLMConfig {
	if c.Type == "" {
		c.Type = LLMOllama
	}
	return c
}

// Request describes one generation attempt.
type Request struct {
	Kind     Kind
	Text     string // KindText
	URL      string // KindURL
	FilePath string // KindFile
	LLM      LLMConfig
}

// TextRequest builds a request that submits raw text.
func TextRequest(text string, llm LLMConfig) Request {
	return Request{Kind: KindText, Text: text, LLM: llm.orDefault()}
}

// URLRequest builds a request that asks the server to fetch a web page.
func URLRequest(siteURL string, llm LLMConfig) Request {
	return Request{Kind: KindURL, URL: siteURL, LLM: llm.orDefault()}
}

// FileRequest builds a request that uploads a document.
func FileRequest(path string, llm LLMConfig) Request {
	return Request{Kind: KindFile, FilePath: path, LLM: llm.orDefault()}
}

// Validate checks the request before anything is sent.
func (r Request) Validate() error {
	switch r.Kind {
	case KindText:
		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("%w: text is empty", ErrInvalidRequest)
		}
	case KindURL:
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidRequest, r.URL)
		}
	case KindFile:
		if r.FilePath == "" {
			return fmt.Errorf("%w: file path is empty", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown request kind %q", ErrInvalidRequest, r.Kind)
	}
	return r.LLM.Validate()
}

// FileName is the base name of the uploaded file.
func (r Request) FileName() string {
	return filepath.Base(r.FilePath)
}

// Reference is a short human-readable description of the input, used in
// history listings.
func (r Request) Reference() string {
	switch r.Kind {
	case KindText:
		return abbreviate(strings.Join(strings.Fields(r.Text), " "), 60)
	case KindURL:
		return r.URL
	case KindFile:
		return r.FileName()
	default:
		return ""
	}
}

func abbreviate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
