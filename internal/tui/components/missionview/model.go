// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package missionview

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/noldarim/mindlaunch/internal/mission"
	"github.com/noldarim/mindlaunch/internal/tui/components/elapsedtimer"
	"github.com/noldarim/mindlaunch/internal/tui/components/stepprogress"
)

// SnapshotMsg carries a mission state snapshot to the view.
type SnapshotMsg struct {
	State mission.State
}

// DoneMsg signals that the attempt has finished.
type DoneMsg struct {
	Result mission.Result
	Err    error
}

// RunStatus represents the attempt status as the view sees it
type RunStatus int

const (
	StatusRunning RunStatus = iota
	StatusCompleted
	StatusFailed
	StatusCancelling // User requested cancellation, waiting for the attempt to stop
)

// CancelRequestFunc is called when user presses Ctrl+C to request cancellation
type CancelRequestFunc func()

const (
	maxBarWidth = 60
	// Turbo divides the spinner frame interval by this factor.
	turboFactor = 3
)

// Model is the mission control view: phase banner, step list, animated
// progress bar and a status line with the step counter and mission clock.
type Model struct {
	width  int
	height int

	title   string
	bar     progress.Model
	spinner spinner.Model
	timer   elapsedtimer.Model
	steps   stepprogress.Model

	state  mission.State
	result *mission.Result
	status RunStatus

	cancelRequest CancelRequestFunc
}

// New creates a mission view for an attempt described by title.
func New(title string) Model {
	return Model{
		width:   80,
		title:   title,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		spinner: spinner.New(spinner.WithSpinner(cruise()), spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("75")))),
		timer:   elapsedtimer.New().Start(),
		steps:   stepprogress.New().SetWidth(15),
		status:  StatusRunning,
	}
}

func cruise() spinner.Spinner {
	return spinner.Dot
}

func turbo() spinner.Spinner {
	s := spinner.Dot
	s.FPS = s.FPS / turboFactor
	return s
}

// SetCancelRequest sets the function to call when user requests cancellation (Ctrl+C)
func (m Model) SetCancelRequest(fn CancelRequestFunc) Model {
	m.cancelRequest = fn
	return m
}

// Init starts the spinner and the clock
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.timer.Init(),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			// Second Ctrl+C, or nothing to cancel: leave now.
			if m.status == StatusCancelling || m.cancelRequest == nil || m.status != StatusRunning {
				return m, tea.Quit
			}
			m.status = StatusCancelling
			m.cancelRequest()
			return m, nil
		case "q":
			if m.status != StatusRunning {
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(maxBarWidth, max(10, msg.Width-12))

	case SnapshotMsg:
		return m.applySnapshot(msg.State)

	case DoneMsg:
		res := msg.Result
		m.result = &res
		m.timer = m.timer.Stop()
		if res.OK() {
			m.status = StatusCompleted
		} else {
			m.status = StatusFailed
		}
		return m, tea.Quit

	case progress.FrameMsg:
		pm, cmd := m.bar.Update(msg)
		m.bar = pm.(progress.Model)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case elapsedtimer.TickMsg:
		var cmd tea.Cmd
		m.timer, cmd = m.timer.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) applySnapshot(s mission.State) (Model, tea.Cmd) {
	if s.Turbo != m.state.Turbo {
		if s.Turbo {
			m.spinner.Spinner = turbo()
		} else {
			m.spinner.Spinner = cruise()
		}
	}
	m.state = s
	m.steps = m.steps.SetSteps(stepprogress.FromMission(s.Steps))
	return m, m.bar.SetPercent(float64(s.ProgressTarget) / 100)
}

// State returns the last snapshot the view received.
func (m Model) State() mission.State {
	return m.state
}

// Status returns the final run status
func (m Model) Status() RunStatus {
	return m.status
}

// Result returns the terminal result, once the attempt is done.
func (m Model) Result() (mission.Result, bool) {
	if m.result == nil {
		return mission.Result{}, false
	}
	return *m.result, true
}

// Elapsed returns the mission clock.
func (m Model) Elapsed() time.Duration {
	return m.timer.Elapsed()
}
