// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Event
		wantErr bool
	}{
		{
			name: "status only",
			line: `{"status":"CONNECTING"}`,
			want: Event{Status: StatusConnecting},
		},
		{
			name: "message and data",
			line: `{"status":"PROCESSING","message":"attempt 1/3","data":{"attempt":1}}`,
			want: Event{Status: StatusProcessing, Message: "attempt 1/3", Data: RawData(`{"attempt":1}`)},
		},
		{
			name: "null data is dropped",
			line: `{"status":"VALIDATING","data":null}`,
			want: Event{Status: StatusValidating},
		},
		{
			name: "unknown status still decodes",
			line: `{"status":"WARP_DRIVE"}`,
			want: Event{Status: "WARP_DRIVE"},
		},
		{
			name: "trailing carriage return",
			line: "{\"status\":\"RETRY\"}\r",
			want: Event{Status: StatusRetry},
		},
		{name: "truncated", line: `{"status":"PROCESS`, wantErr: true},
		{name: "not an object", line: `42`, wantErr: true},
		{name: "null", line: `null`, wantErr: true},
		{name: "array", line: `[{"status":"SUCCESS"}]`, wantErr: true},
		{name: "quoted object", line: `"{\"status\":\"SUCCESS\"}"`, wantErr: true},
		{name: "blank", line: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.line))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Status, got.Status)
			assert.Equal(t, tt.want.Message, got.Message)
			if tt.want.Data == nil {
				assert.Nil(t, got.Data)
			} else {
				assert.JSONEq(t, string(tt.want.Data), string(got.Data))
			}
		})
	}
}

func TestDecodeEvent_NullIsNotAnObject(t *testing.T) {
	_, err := DecodeEvent([]byte(" null \r"))
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestEvent_Payload(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   string
		wantOK bool
	}{
		{name: "present", data: `{"ctm":"# Root","attempts_used":2}`, want: "# Root", wantOK: true},
		{name: "missing field", data: `{"attempts_used":2}`},
		{name: "empty string", data: `{"ctm":""}`},
		{name: "wrong type", data: `{"ctm":7}`},
		{name: "not an object", data: `"ctm"`},
		{name: "absent data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Status: StatusSuccess}
			if tt.data != "" {
				ev.Data = RawData(tt.data)
			}
			got, ok := ev.Payload()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvent_EncodeLineRoundTrip(t *testing.T) {
	ev, err := NewEvent(StatusSuccess, "done", SuccessData{CTM: "mindmap", AttemptsUsed: 1})
	require.NoError(t, err)

	line, err := ev.EncodeLine()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])

	decoded, err := DecodeEvent(line)
	require.NoError(t, err)
	payload, ok := decoded.Payload()
	require.True(t, ok)
	assert.Equal(t, "mindmap", payload)
}

func TestCatalog(t *testing.T) {
	for _, code := range AllStatusCodes() {
		info, ok := Lookup(code)
		require.True(t, ok, "missing catalog entry for %s", code)
		assert.Equal(t, code, info.Code)
		assert.NotEmpty(t, info.Label)
		assert.True(t, code.Known())
	}

	want := map[StatusCode]int{
		StatusConnecting:     10,
		StatusPreparing:      20,
		StatusReadingFile:    30,
		StatusLoadingWeb:     30,
		StatusExtractingText: 45,
		StatusProcessing:     70,
		StatusValidating:     85,
		StatusRetry:          75,
		StatusSuccess:        100,
	}
	for code, progress := range want {
		info, _ := Lookup(code)
		assert.True(t, info.HasProgress, code)
		assert.Equal(t, progress, info.Progress, code)
	}

	errInfo, _ := Lookup(StatusError)
	assert.False(t, errInfo.HasProgress, "ERROR leaves the progress target unchanged")

	unknown := Describe("WARP_DRIVE")
	assert.Equal(t, "WARP_DRIVE", unknown.Label)
	assert.False(t, StatusCode("WARP_DRIVE").Known())
	assert.True(t, StatusError.IsTerminal())
	assert.False(t, StatusRetry.IsTerminal())
}
