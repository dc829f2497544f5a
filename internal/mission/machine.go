// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package mission

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/noldarim/mindlaunch/internal/logger"
	"github.com/noldarim/mindlaunch/internal/protocol"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetMissionLogger()
		log = &l
	})
	return log
}

// Hooks are the presenter callbacks driven by the machine. Every field is
// optional; a nil hook is skipped. Hooks run synchronously inside Apply.
type Hooks struct {
	// OnSnapshot receives a snapshot after every event the machine accepts.
	OnSnapshot func(State)
	// OnPhase fires when the phase changes.
	OnPhase func(protocol.StatusInfo)
	// OnTurbo fires when the turbo hint flips.
	OnTurbo func(bool)
	// OnResult fires exactly once per attempt, with the terminal result.
	OnResult func(Result)
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger replaces the package logger, typically with one tagged by attempt.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) {
		m.log = &l
	}
}

// Machine folds events into the state of one attempt. It is not safe for
// concurrent use: events must be applied in arrival order from one goroutine.
type Machine struct {
	state State
	hooks Hooks
	log   *zerolog.Logger
}

// NewMachine creates a machine in the initial state of a new attempt.
func NewMachine(hooks Hooks, opts ...Option) *Machine {
	m := &Machine{hooks: hooks}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = getLog()
	}
	return m
}

// Reset starts a new attempt: steps cleared, progress target 0, not terminal.
func (m *Machine) Reset() {
	m.state = State{}
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	return m.state.Clone()
}

// Apply folds one event into the state and returns the resulting snapshot.
// Once the state is terminal every further event is ignored.
func (m *Machine) Apply(ev protocol.Event) State {
	if m.state.Terminal {
		m.log.Debug().Str("status", string(ev.Status)).Msg("Ignoring event after terminal result")
		return m.State()
	}

	info, known := protocol.Lookup(ev.Status)
	if !known {
		m.log.Warn().
			Str("status", string(ev.Status)).
			Str("message", ev.Message).
			Msg("Ignoring unrecognized status")
		return m.State()
	}

	prevPhase := m.state.Phase.Code
	prevTurbo := m.state.Turbo
	var result *Result

	switch ev.Status {
	case protocol.StatusSuccess:
		for i := range m.state.Steps {
			m.state.Steps[i].Lifecycle = LifecycleCompleted
		}
		m.state.ProgressTarget = info.Progress
		if sd, ok := ev.SuccessData(); ok {
			r := Success(sd.CTM)
			r.AttemptsUsed = sd.AttemptsUsed
			r.ValidationMessage = sd.ValidationMessage
			result = &r
		} else {
			// Left non-terminal: the attempt only fails if the stream then ends.
			m.log.Warn().Msg("SUCCESS event without payload, no result produced")
		}

	case protocol.StatusError:
		for i := range m.state.Steps {
			if m.state.Steps[i].Lifecycle == LifecycleActive {
				m.state.Steps[i].Lifecycle = LifecycleError
			}
		}
		r := Failure(ev.Message)
		result = &r

	default:
		m.activate(ev.Status, ev.Message)
		m.state.ProgressTarget = info.Progress
		switch ev.Status {
		case protocol.StatusProcessing:
			m.state.Turbo = true
		case protocol.StatusValidating:
			m.state.Turbo = false
		}
	}

	m.state.Phase = info
	if result != nil {
		m.state.Result = result
		m.state.Terminal = true
	}

	m.log.Debug().
		Str("status", string(ev.Status)).
		Int("progress_target", m.state.ProgressTarget).
		Int("steps", len(m.state.Steps)).
		Bool("terminal", m.state.Terminal).
		Msg("Applied event")

	m.notify(prevPhase, prevTurbo)
	return m.State()
}

// Abort ends the attempt with a failure that did not come from the stream,
// such as a transport error or a stream that ended without a result. The
// Active step, if any, is marked Error. It reports false and changes
// nothing when the state is already terminal.
func (m *Machine) Abort(reason string) (State, bool) {
	if m.state.Terminal {
		return m.State(), false
	}

	prevPhase := m.state.Phase.Code
	prevTurbo := m.state.Turbo

	for i := range m.state.Steps {
		if m.state.Steps[i].Lifecycle == LifecycleActive {
			m.state.Steps[i].Lifecycle = LifecycleError
		}
	}
	r := Failure(reason)
	m.state.Result = &r
	m.state.Terminal = true
	m.state.Turbo = false
	m.state.Phase = protocol.Describe(protocol.StatusError)

	m.log.Info().Str("reason", r.Reason).Msg("Attempt aborted")

	m.notify(prevPhase, prevTurbo)
	return m.State(), true
}

// activate upserts the step for status and makes it the only Active step.
func (m *Machine) activate(status protocol.StatusCode, message string) {
	idx := -1
	for i := range m.state.Steps {
		if m.state.Steps[i].Status == status {
			idx = i
			continue
		}
		if m.state.Steps[i].Lifecycle == LifecycleActive {
			m.state.Steps[i].Lifecycle = LifecycleCompleted
		}
	}

	if idx >= 0 {
		m.state.Steps[idx].Message = message
		m.state.Steps[idx].Lifecycle = LifecycleActive
		return
	}

	m.state.Steps = append(m.state.Steps, Step{
		Status:    status,
		Message:   message,
		Lifecycle: LifecycleActive,
	})
}

func (m *Machine) notify(prevPhase protocol.StatusCode, prevTurbo bool) {
	h := m.hooks
	if h.OnPhase != nil && m.state.Phase.Code != prevPhase {
		h.OnPhase(m.state.Phase)
	}
	if h.OnTurbo != nil && m.state.Turbo != prevTurbo {
		h.OnTurbo(m.state.Turbo)
	}
	if h.OnSnapshot != nil {
		h.OnSnapshot(m.State())
	}
	if h.OnResult != nil && m.state.Terminal && m.state.Result != nil {
		h.OnResult(*m.state.Result)
	}
}
