// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// StatusCode identifies a phase the server reports for a generation attempt.
type StatusCode string

// The closed set of status codes a server may emit.
const (
	StatusConnecting     StatusCode = "CONNECTING"
	StatusPreparing      StatusCode = "PREPARING"
	StatusReadingFile    StatusCode = "READING_FILE"
	StatusLoadingWeb     StatusCode = "LOADING_WEB"
	StatusExtractingText StatusCode = "EXTRACTING_TEXT"
	StatusProcessing     StatusCode = "PROCESSING"
	StatusValidating     StatusCode = "VALIDATING"
	StatusRetry          StatusCode = "RETRY"
	StatusSuccess        StatusCode = "SUCCESS"
	StatusError          StatusCode = "ERROR"
)

var statusCodes = []StatusCode{
	StatusConnecting,
	StatusPreparing,
	StatusReadingFile,
	StatusLoadingWeb,
	StatusExtractingText,
	StatusProcessing,
	StatusValidating,
	StatusRetry,
	StatusSuccess,
	StatusError,
}

// AllStatusCodes returns every known status code in phase order.
func AllStatusCodes() []StatusCode {
	out := make([]StatusCode, len(statusCodes))
	copy(out, statusCodes)
	return out
}

// Known reports whether s belongs to the closed enumeration.
func (s StatusCode) Known() bool {
	_, ok := catalog[s]
	return ok
}

// IsTerminal reports whether s ends an attempt when accepted.
func (s StatusCode) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// ErrEmptyRecord is returned when decoding a blank line.
var ErrEmptyRecord = errors.New("empty record")

// Event is one decoded status update. Events are values and are never
// mutated after decoding.
type Event struct {
	Status  StatusCode `json:"status"`
	Message string     `json:"message,omitempty"`
	Data    RawData    `json:"data,omitempty"`
}

// SuccessData is the data object carried by a SUCCESS event.
type SuccessData struct {
	CTM               string `json:"ctm"`
	AttemptsUsed      int    `json:"attempts_used,omitempty"`
	ValidationMessage string `json:"validation_message,omitempty"`
}

// ErrNotObject is returned for a well-formed JSON value that is not an
// object, such as null or an array.
var ErrNotObject = errors.New("event record is not a JSON object")

// DecodeEvent parses one line of the stream. Any JSON object decodes,
// including one with a status outside the enumeration; malformed JSON and
// non-object values (null included) are errors.
func DecodeEvent(line []byte) (Event, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Event{}, ErrEmptyRecord
	}
	if trimmed[0] != '{' {
		return Event{}, fmt.Errorf("invalid event record: %w", ErrNotObject)
	}

	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return Event{}, fmt.Errorf("invalid event record: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(ev.Data), []byte("null")) {
		ev.Data = nil
	}
	return ev, nil
}

// EncodeLine renders the event as one stream line terminated by '\n'.
func (e Event) EncodeLine() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", e.Status, err)
	}
	return append(b, '\n'), nil
}

// Payload returns the generated document carried by a SUCCESS event.
// It reports false when data is absent, not an object, or has no
// non-empty string ctm field.
func (e Event) Payload() (string, bool) {
	sd, ok := e.SuccessData()
	if !ok {
		return "", false
	}
	return sd.CTM, true
}

// SuccessData decodes the data object of a SUCCESS event. It reports false
// under the same conditions as Payload.
func (e Event) SuccessData() (SuccessData, bool) {
	if len(e.Data) == 0 {
		return SuccessData{}, false
	}
	var sd SuccessData
	if err := json.Unmarshal(e.Data, &sd); err != nil || sd.CTM == "" {
		return SuccessData{}, false
	}
	return sd, true
}

// NewEvent builds an event, marshalling data when it is not nil.
func NewEvent(status StatusCode, message string, data interface{}) (Event, error) {
	ev := Event{Status: status, Message: message}
	if data == nil {
		return ev, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s data: %w", status, err)
	}
	ev.Data = raw
	return ev, nil
}
