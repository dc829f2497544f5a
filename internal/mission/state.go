// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mission folds decoded progress events into the per-attempt
// mission state shown to the user: an ordered list of steps, a progress
// target, a turbo hint and at most one terminal result.
package mission

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/noldarim/mindlaunch/internal/protocol"
)

// Lifecycle is the state of one step
type Lifecycle int

const (
	LifecyclePending Lifecycle = iota
	LifecycleActive
	LifecycleCompleted
	LifecycleError
)

func (l Lifecycle) String() string {
	switch l {
	case LifecyclePending:
		return "pending"
	case LifecycleActive:
		return "active"
	case LifecycleCompleted:
		return "completed"
	case LifecycleError:
		return "error"
	default:
		return "unknown"
	}
}

// Step is one phase the attempt has entered. A step list holds at most one
// step per status code.
type Step struct {
	Status    protocol.StatusCode
	Message   string
	Lifecycle Lifecycle
}

// Info returns the catalog entry of the step's status.
func (s Step) Info() protocol.StatusInfo {
	return protocol.Describe(s.Status)
}

// Outcome distinguishes the two kinds of terminal result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "none"
	}
}

// Result is the single outcome ending an attempt: a payload on success or a
// human-readable reason on failure.
type Result struct {
	Outcome Outcome
	Payload string
	Reason  string

	// Optional extras reported by the server with a successful result.
	AttemptsUsed      int
	ValidationMessage string
}

// Success builds a successful result carrying payload.
func Success(payload string) Result {
	return Result{Outcome: OutcomeSuccess, Payload: payload}
}

// Failure builds a failed result. An empty reason becomes the default text.
func Failure(reason string) Result {
	if reason == "" {
		reason = protocol.DefaultFailureReason
	}
	return Result{Outcome: OutcomeFailure, Reason: reason}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("Success(%d bytes)", len(r.Payload))
	}
	return fmt.Sprintf("Failure(%s)", r.Reason)
}

// State is the mission state of one attempt. Values returned by the machine
// are snapshots and share nothing with its internal state.
type State struct {
	Steps          []Step
	ProgressTarget int
	Terminal       bool
	Turbo          bool
	Result         *Result
	// Phase is the catalog entry of the last accepted status.
	Phase protocol.StatusInfo
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	if s.Steps != nil {
		out.Steps = make([]Step, len(s.Steps))
		copy(out.Steps, s.Steps)
	}
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	return out
}

// ActiveStep returns the step currently Active, if any.
func (s State) ActiveStep() (Step, bool) {
	return lo.Find(s.Steps, func(st Step) bool {
		return st.Lifecycle == LifecycleActive
	})
}

// Step returns the step for status, if the attempt has entered it.
func (s State) Step(status protocol.StatusCode) (Step, bool) {
	return lo.Find(s.Steps, func(st Step) bool {
		return st.Status == status
	})
}

// Count returns the number of steps in the given lifecycle.
func (s State) Count(l Lifecycle) int {
	return lo.CountBy(s.Steps, func(st Step) bool {
		return st.Lifecycle == l
	})
}
