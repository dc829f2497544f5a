// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepprogress

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/noldarim/mindlaunch/internal/mission"
)

// StepStatus represents the status of a step
type StepStatus int

const (
	StatusPending StepStatus = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

// Step represents a single step in the progress
type Step struct {
	Name   string
	Status StepStatus
}

// FromMission converts mission steps, keeping their order.
func FromMission(steps []mission.Step) []Step {
	return lo.Map(steps, func(s mission.Step, _ int) Step {
		return Step{Name: s.Info().Label, Status: fromLifecycle(s.Lifecycle)}
	})
}

func fromLifecycle(l mission.Lifecycle) StepStatus {
	switch l {
	case mission.LifecycleActive:
		return StatusRunning
	case mission.LifecycleCompleted:
		return StatusCompleted
	case mission.LifecycleError:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Model represents the step progress component
type Model struct {
	steps []Step
	width int
}

// New creates a new step progress model
func New() Model {
	return Model{
		width: 20,
	}
}

// SetSteps sets the list of steps
func (m Model) SetSteps(steps []Step) Model {
	m.steps = steps
	return m
}

// SetWidth sets the progress bar width
func (m Model) SetWidth(w int) Model {
	m.width = w
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders: [▓▓▓▓▓░░░░░] 3/5 Generating
func (m Model) View() string {
	total := len(m.steps)
	if total == 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	success := lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	fail := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	completed := lo.CountBy(m.steps, func(s Step) bool { return s.Status == StatusCompleted })
	current, currentIdx, running := lo.FindIndexOf(m.steps, func(s Step) bool { return s.Status == StatusRunning })
	failed, failedIdx, hasFailed := lo.FindIndexOf(m.steps, func(s Step) bool { return s.Status == StatusFailed })

	// A running step counts as half done.
	filled := (completed * m.width) / total
	if running {
		filled = (completed*m.width + m.width/2) / total
	}

	var bar strings.Builder
	for i := 0; i < m.width; i++ {
		if i < filled {
			bar.WriteString(success.Render("▓"))
		} else {
			bar.WriteString(dim.Render("░"))
		}
	}

	displayStep := completed
	label := ""
	switch {
	case hasFailed:
		displayStep = failedIdx + 1
		label = fail.Render(failed.Name + " ✗")
	case running:
		displayStep = currentIdx + 1
		label = accent.Render(current.Name)
	case completed == total:
		label = success.Render("Complete ✓")
	}

	return fmt.Sprintf("[%s] %s %s", bar.String(), dim.Render(fmt.Sprintf("%d/%d", displayStep, total)), label)
}
