// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to config.yaml log.levels
// These ensure consistent logger names across the codebase

// GetStreamLogger returns a logger for the line-delimited JSON demuxer
func GetStreamLogger() zerolog.Logger {
	return GetLogger("stream")
}

// GetMissionLogger returns a logger for the mission state machine
func GetMissionLogger() zerolog.Logger {
	return GetLogger("mission")
}

// GetDispatchLogger returns a logger for the request dispatcher
func GetDispatchLogger() zerolog.Logger {
	return GetLogger("dispatch")
}

// GetTUILogger returns a logger for TUI components
func GetTUILogger() zerolog.Logger {
	return GetLogger("tui")
}

// GetJournalLogger returns a logger for attempt history storage
func GetJournalLogger() zerolog.Logger {
	return GetLogger("journal")
}

// GetAPILogger returns a logger for the mission-control stub server
func GetAPILogger() zerolog.Logger {
	return GetLogger("api")
}

// ForAttempt tags base with one generation attempt. The client and the
// stub server use the same field, so both sides of an attempt can be
// joined in the logs.
func ForAttempt(base zerolog.Logger, attemptID string) zerolog.Logger {
	if attemptID == "" {
		return base
	}
	return base.With().Str("attempt_id", attemptID).Logger()
}
