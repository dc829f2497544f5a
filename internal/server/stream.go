// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/noldarim/mindlaunch/internal/logger"
)

// stream writes the scenario as line-delimited JSON, flushing after every
// chunk so the client sees each line as soon as it is produced. Streaming
// stops when the client goes away.
func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, sc *Scenario) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	attemptID := GetRequestID(ctx)
	l := logger.ForAttempt(*getLog(), attemptID).With().Str("scenario", sc.Name).Logger()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	l.Info().Int("steps", len(sc.Steps)).Msg("Streaming scenario")

	for i, st := range sc.Steps {
		if i > 0 && !sleepCtx(ctx, h.delayFor(sc, st)) {
			l.Info().Int("step", i).Msg("Client went away")
			return
		}

		line, err := st.Line()
		if err != nil {
			l.Error().Err(err).Int("step", i).Msg("Failed to encode scenario step")
			continue
		}

		chunks := [][]byte{line}
		if st.SplitAt > 0 && st.SplitAt < len(line) {
			chunks = [][]byte{line[:st.SplitAt], line[st.SplitAt:]}
		}
		for _, c := range chunks {
			if _, err := w.Write(c); err != nil {
				l.Info().Err(err).Int("step", i).Msg("Client went away")
				return
			}
			flusher.Flush()
		}

		if ev, err := st.Event(); err == nil {
			h.publish(ObservedEvent{AttemptID: attemptID, Seq: i, Event: ev})
		}
	}

	l.Info().Msg("Scenario finished")
}

func (h *Handlers) delayFor(sc *Scenario, st ScenarioStep) time.Duration {
	switch {
	case st.Delay > 0:
		return st.Delay
	case sc.Delay > 0:
		return sc.Delay
	default:
		return h.cfg.StepDelay
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
