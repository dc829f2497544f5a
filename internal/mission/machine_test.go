// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package mission

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noldarim/mindlaunch/internal/ndjson"
	"github.com/noldarim/mindlaunch/internal/protocol"
)

func ev(status protocol.StatusCode, msg string) protocol.Event {
	return protocol.Event{Status: status, Message: msg}
}

func success(ctm string) protocol.Event {
	e, err := protocol.NewEvent(protocol.StatusSuccess, "done", protocol.SuccessData{CTM: ctm, AttemptsUsed: 2})
	if err != nil {
		panic(err)
	}
	return e
}

func applyAll(m *Machine, events ...protocol.Event) State {
	var st State
	for _, e := range events {
		st = m.Apply(e)
	}
	return st
}

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine(Hooks{})
	st := applyAll(m,
		ev(protocol.StatusConnecting, "linking"),
		ev(protocol.StatusProcessing, "attempt 1/3"),
		ev(protocol.StatusValidating, ""),
		success("X"),
	)

	want := []Step{
		{Status: protocol.StatusConnecting, Message: "linking", Lifecycle: LifecycleCompleted},
		{Status: protocol.StatusProcessing, Message: "attempt 1/3", Lifecycle: LifecycleCompleted},
		{Status: protocol.StatusValidating, Lifecycle: LifecycleCompleted},
	}
	if diff := cmp.Diff(want, st.Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 100, st.ProgressTarget)
	assert.True(t, st.Terminal)
	assert.False(t, st.Turbo, "VALIDATING turns turbo off before SUCCESS")
	require.NotNil(t, st.Result)
	assert.True(t, st.Result.OK())
	assert.Equal(t, "X", st.Result.Payload)
	assert.Equal(t, 2, st.Result.AttemptsUsed)
	assert.Equal(t, protocol.StatusSuccess, st.Phase.Code)
}

func TestMachine_ErrorMarksActiveStep(t *testing.T) {
	m := NewMachine(Hooks{})
	st := applyAll(m, ev(protocol.StatusConnecting, ""), ev(protocol.StatusError, "boom"))

	require.Len(t, st.Steps, 1)
	assert.Equal(t, LifecycleError, st.Steps[0].Lifecycle)
	assert.Equal(t, 10, st.ProgressTarget, "ERROR leaves the target unchanged")
	assert.True(t, st.Terminal)
	require.NotNil(t, st.Result)
	assert.Equal(t, Failure("boom"), *st.Result)
}

func TestMachine_ErrorWithoutMessageUsesDefault(t *testing.T) {
	m := NewMachine(Hooks{})
	st := m.Apply(ev(protocol.StatusError, ""))

	require.NotNil(t, st.Result)
	assert.Equal(t, OutcomeFailure, st.Result.Outcome)
	assert.Equal(t, protocol.DefaultFailureReason, st.Result.Reason)
	assert.Empty(t, st.Steps)
}

func TestMachine_ProgressTargets(t *testing.T) {
	tests := []struct {
		status protocol.StatusCode
		want   int
	}{
		{protocol.StatusConnecting, 10},
		{protocol.StatusPreparing, 20},
		{protocol.StatusReadingFile, 30},
		{protocol.StatusLoadingWeb, 30},
		{protocol.StatusExtractingText, 45},
		{protocol.StatusProcessing, 70},
		{protocol.StatusValidating, 85},
		{protocol.StatusRetry, 75},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			m := NewMachine(Hooks{})
			st := m.Apply(ev(tt.status, ""))
			assert.Equal(t, tt.want, st.ProgressTarget)
			active, ok := st.ActiveStep()
			require.True(t, ok)
			assert.Equal(t, tt.status, active.Status)
		})
	}
}

func TestMachine_ReannounceUpdatesInPlace(t *testing.T) {
	m := NewMachine(Hooks{})
	applyAll(m,
		ev(protocol.StatusProcessing, "attempt 1/3"),
		ev(protocol.StatusValidating, ""),
		ev(protocol.StatusRetry, "invalid format"),
	)
	st := m.Apply(ev(protocol.StatusProcessing, "attempt 2/3"))

	require.Len(t, st.Steps, 3, "re-announcing must not append")
	assert.Equal(t, "attempt 2/3", st.Steps[0].Message)
	assert.Equal(t, LifecycleActive, st.Steps[0].Lifecycle)
	assert.Equal(t, 1, st.Count(LifecycleActive))
	assert.Equal(t, 2, st.Count(LifecycleCompleted))
	assert.True(t, st.Turbo)
	assert.Equal(t, 70, st.ProgressTarget)
}

func TestMachine_SuccessWithoutPayloadIsNotTerminal(t *testing.T) {
	var results []Result
	m := NewMachine(Hooks{OnResult: func(r Result) { results = append(results, r) }})

	st := applyAll(m,
		ev(protocol.StatusConnecting, ""),
		ev(protocol.StatusSuccess, "done"),
	)

	assert.False(t, st.Terminal)
	assert.Nil(t, st.Result)
	assert.Equal(t, 100, st.ProgressTarget)
	assert.Equal(t, 1, st.Count(LifecycleCompleted))
	assert.Empty(t, results)

	// The attempt is still open, so a later ERROR still ends it.
	st = m.Apply(ev(protocol.StatusError, "late"))
	assert.True(t, st.Terminal)
	require.Len(t, results, 1)
	assert.Equal(t, "late", results[0].Reason)
}

func TestMachine_FrozenAfterTerminal(t *testing.T) {
	m := NewMachine(Hooks{})
	before := applyAll(m, ev(protocol.StatusConnecting, ""), success("X"))

	after := applyAll(m,
		ev(protocol.StatusProcessing, "stray"),
		ev(protocol.StatusError, "stray"),
	)
	assert.Empty(t, cmp.Diff(before, after))
}

func TestMachine_UnknownStatusIsNoop(t *testing.T) {
	m := NewMachine(Hooks{})
	before := m.Apply(ev(protocol.StatusPreparing, "fuel"))

	for _, status := range []protocol.StatusCode{"WARP_DRIVE", ""} {
		after := m.Apply(ev(status, "??"))
		assert.Empty(t, cmp.Diff(before, after), "status %q", status)
	}
}

func TestMachine_SnapshotsAreIsolated(t *testing.T) {
	m := NewMachine(Hooks{})
	snap := m.Apply(ev(protocol.StatusConnecting, "first"))

	snap.Steps[0].Message = "mutated"
	m.Apply(ev(protocol.StatusPreparing, ""))

	st := m.State()
	assert.Equal(t, "first", st.Steps[0].Message)
	assert.Equal(t, LifecycleActive, snap.Steps[0].Lifecycle, "old snapshot is unaffected by later events")
}

func TestMachine_Reset(t *testing.T) {
	m := NewMachine(Hooks{})
	applyAll(m, ev(protocol.StatusProcessing, ""), ev(protocol.StatusError, "x"))

	m.Reset()
	st := m.State()
	assert.Empty(t, st.Steps)
	assert.Zero(t, st.ProgressTarget)
	assert.False(t, st.Terminal)
	assert.False(t, st.Turbo)
	assert.Nil(t, st.Result)

	st = m.Apply(ev(protocol.StatusConnecting, ""))
	assert.Len(t, st.Steps, 1)
}

func TestMachine_Hooks(t *testing.T) {
	var (
		phases    []protocol.StatusCode
		turbo     []bool
		snapshots int
		results   []Result
	)
	m := NewMachine(Hooks{
		OnSnapshot: func(State) { snapshots++ },
		OnPhase:    func(info protocol.StatusInfo) { phases = append(phases, info.Code) },
		OnTurbo:    func(on bool) { turbo = append(turbo, on) },
		OnResult:   func(r Result) { results = append(results, r) },
	})

	applyAll(m,
		ev(protocol.StatusConnecting, ""),
		ev(protocol.StatusConnecting, "again"),
		ev(protocol.StatusProcessing, ""),
		ev(protocol.StatusValidating, ""),
		ev(protocol.StatusRetry, ""),
		ev(protocol.StatusProcessing, ""),
		ev(protocol.StatusValidating, ""),
		success("map"),
		ev(protocol.StatusError, "ignored"),
	)

	assert.Equal(t, []protocol.StatusCode{
		protocol.StatusConnecting,
		protocol.StatusProcessing,
		protocol.StatusValidating,
		protocol.StatusRetry,
		protocol.StatusProcessing,
		protocol.StatusValidating,
		protocol.StatusSuccess,
	}, phases)
	assert.Equal(t, []bool{true, false, true, false}, turbo)
	assert.Equal(t, 8, snapshots)
	require.Len(t, results, 1)
	assert.Equal(t, "map", results[0].Payload)
}

func TestMachine_Abort(t *testing.T) {
	var results []Result
	m := NewMachine(Hooks{OnResult: func(r Result) { results = append(results, r) }})
	m.Apply(ev(protocol.StatusProcessing, ""))

	st, ok := m.Abort("stream ended without a result")
	require.True(t, ok)
	assert.True(t, st.Terminal)
	assert.False(t, st.Turbo)
	assert.Equal(t, LifecycleError, st.Steps[0].Lifecycle)
	assert.Equal(t, "stream ended without a result", st.Result.Reason)

	_, ok = m.Abort("again")
	assert.False(t, ok)
	require.Len(t, results, 1)
}

func TestMachine_StepInvariantsHoldForAnySequence(t *testing.T) {
	codes := append(protocol.AllStatusCodes(), "BOGUS")
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 500; run++ {
		m := NewMachine(Hooks{})
		for i := 0; i < 30; i++ {
			code := codes[rng.Intn(len(codes))]
			e := ev(code, "")
			if code == protocol.StatusSuccess && rng.Intn(2) == 0 {
				e = success("payload")
			}
			st := m.Apply(e)

			require.LessOrEqual(t, st.Count(LifecycleActive), 1)
			seen := map[protocol.StatusCode]bool{}
			for _, s := range st.Steps {
				require.False(t, seen[s.Status], "duplicate step %s", s.Status)
				seen[s.Status] = true
			}
			if st.Terminal {
				require.NotNil(t, st.Result)
			}
		}
	}
}

func TestFold(t *testing.T) {
	stream := strings.Join([]string{
		`{"status":"CONNECTING"}`,
		`{"status":"PROCESSING","message":"attempt 1/3"}`,
		`garbage`,
		`{"status":"VALIDATING"}`,
		`{"status":"SUCCESS","data":{"ctm":"# Root"}}`,
		`{"status":"ERROR","message":"never applied"}`,
	}, "\n")

	m := NewMachine(Hooks{})
	seq := ndjson.Demux(ndjson.FromSlices([]byte(stream)), ndjson.WithSink(ndjson.SinkFunc(func(ndjson.Diagnostic) {})))
	st, err := Fold(seq, m)

	require.NoError(t, err)
	require.NotNil(t, st.Result)
	assert.Equal(t, "# Root", st.Result.Payload)
	assert.Len(t, st.Steps, 3)
}

func TestFold_SequenceError(t *testing.T) {
	boom := errors.New("connection reset")
	seq := func(yield func(protocol.Event, error) bool) {
		if !yield(ev(protocol.StatusConnecting, ""), nil) {
			return
		}
		yield(protocol.Event{}, boom)
	}

	m := NewMachine(Hooks{})
	st, err := Fold(seq, m)

	assert.ErrorIs(t, err, boom)
	assert.False(t, st.Terminal)
	assert.Len(t, st.Steps, 1)
}

func TestFold_EndWithoutResult(t *testing.T) {
	m := NewMachine(Hooks{})
	st, err := Fold(ndjson.Demux(ndjson.FromSlices([]byte(`{"status":"PREPARING"}`))), m)

	require.NoError(t, err)
	assert.False(t, st.Terminal)
	assert.Nil(t, st.Result)
}
