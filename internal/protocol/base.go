// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the wire records of the mindmap generation
// progress stream: one JSON object per line, each carrying a status code,
// an optional human-readable message and optional structured data.
package protocol

import (
	encodingjson "encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// json is the codec used on the stream hot path.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RawData is an undecoded JSON value carried in an event's data field.
type RawData = encodingjson.RawMessage
