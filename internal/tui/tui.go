// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui presents running attempts: a bubbletea mission control view
// for terminals and a line-per-snapshot log otherwise.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/noldarim/mindlaunch/internal/dispatch"
	"github.com/noldarim/mindlaunch/internal/logger"
	"github.com/noldarim/mindlaunch/internal/mission"
	"github.com/noldarim/mindlaunch/internal/tui/components/missionsummary"
	"github.com/noldarim/mindlaunch/internal/tui/components/missionview"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetTUILogger()
		log = &l
	})
	return log
}

// Launcher runs one attempt against a machine built by the presenter.
type Launcher func(ctx context.Context, m *mission.Machine) dispatch.Attempt

// Presenter shows an attempt while it runs and reports it when it ends.
type Presenter interface {
	Present(ctx context.Context, title string, launch Launcher) (dispatch.Attempt, error)
}

// Select picks the rich presenter when out is a terminal and plain is not
// forced, and the plain presenter otherwise.
func Select(out *os.File, plain bool) Presenter {
	if !plain && IsTerminal(out) {
		return &Rich{Out: out}
	}
	return &Plain{Out: out}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Summary renders the end-of-attempt report.
func Summary(a dispatch.Attempt, outputPath string) string {
	data := missionsummary.FromAttempt(a)
	data.OutputPath = outputPath
	return missionsummary.New().SetData(data).View()
}

// Rich runs the mission control view.
type Rich struct {
	Out     io.Writer
	Options []tea.ProgramOption
}

// Present runs launch in the background and the view in the foreground.
// Ctrl+C cancels the attempt; the view quits once the attempt is done.
func (r *Rich) Present(ctx context.Context, title string, launch Launcher) (dispatch.Attempt, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := missionview.New(title).SetCancelRequest(func() {
		getLog().Info().Msg("Cancellation requested from the mission view")
		cancel()
	})

	opts := []tea.ProgramOption{tea.WithOutput(r.Out)}
	if !IsTerminal(os.Stdin) {
		// Text was piped in; keys still come from the terminal.
		opts = append(opts, tea.WithInputTTY())
	}
	opts = append(opts, r.Options...)
	p := tea.NewProgram(model, opts...)

	hooks := mission.Hooks{
		OnSnapshot: func(s mission.State) { p.Send(missionview.SnapshotMsg{State: s}) },
	}

	done := make(chan dispatch.Attempt, 1)
	go func() {
		a := launch(ctx, mission.NewMachine(hooks))
		p.Send(missionview.DoneMsg{Result: a.Result(), Err: a.Err})
		done <- a
	}()

	_, runErr := p.Run()
	// The view may quit before the attempt does, on a second Ctrl+C.
	cancel()
	a := <-done

	if runErr != nil {
		getLog().Error().Err(runErr).Msg("Mission view failed")
		return a, fmt.Errorf("mission view: %w", runErr)
	}
	return a, nil
}

// Plain writes one line per accepted event.
type Plain struct {
	Out io.Writer
}

// Present runs launch in the foreground.
func (p *Plain) Present(ctx context.Context, title string, launch Launcher) (dispatch.Attempt, error) {
	if title != "" {
		fmt.Fprintf(p.Out, "Launching: %s\n", title)
	}
	hooks := mission.Hooks{
		OnSnapshot: func(s mission.State) {
			if line := SnapshotLine(s); line != "" {
				fmt.Fprintln(p.Out, line)
			}
		},
	}
	return launch(ctx, mission.NewMachine(hooks)), nil
}

// SnapshotLine renders a snapshot as one log line:
//
//	[ 70%] PROCESSING Generating: Generating mindmap... (attempt 1/3)
func SnapshotLine(s mission.State) string {
	if s.Result != nil {
		if s.Result.OK() {
			return fmt.Sprintf("[%3d%%] %s %s", s.ProgressTarget, s.Phase.Code, "Mindmap generated")
		}
		return fmt.Sprintf("[%3d%%] %s %s", s.ProgressTarget, s.Phase.Code, s.Result.Reason)
	}
	step, ok := s.ActiveStep()
	if !ok {
		if s.Phase.Code == "" {
			return ""
		}
		return fmt.Sprintf("[%3d%%] %s %s", s.ProgressTarget, s.Phase.Code, s.Phase.Label)
	}
	line := fmt.Sprintf("[%3d%%] %s %s", s.ProgressTarget, step.Status, step.Info().Label)
	if step.Message != "" {
		line += ": " + step.Message
	}
	return line
}
