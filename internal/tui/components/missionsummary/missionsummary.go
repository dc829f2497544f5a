// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package missionsummary

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/noldarim/mindlaunch/internal/dispatch"
	"github.com/noldarim/mindlaunch/internal/mission"
	"github.com/noldarim/mindlaunch/internal/tui/components/elapsedtimer"
)

// SummaryData holds everything the end-of-attempt report shows.
type SummaryData struct {
	AttemptID         string
	Reference         string
	Outcome           mission.Outcome
	Duration          time.Duration
	TotalSteps        int
	CompletedSteps    int
	FailedSteps       int
	AttemptsUsed      int
	PayloadBytes      int
	ValidationMessage string
	Reason            string
	Dropped           int
	OutputPath        string
}

// FromAttempt collects the summary of a finished attempt.
func FromAttempt(a dispatch.Attempt) SummaryData {
	res := a.Result()
	return SummaryData{
		AttemptID:         a.ID,
		Reference:         a.Request.Reference(),
		Outcome:           res.Outcome,
		Duration:          a.Duration(),
		TotalSteps:        len(a.State.Steps),
		CompletedSteps:    a.State.Count(mission.LifecycleCompleted),
		FailedSteps:       a.State.Count(mission.LifecycleError),
		AttemptsUsed:      res.AttemptsUsed,
		PayloadBytes:      len(res.Payload),
		ValidationMessage: res.ValidationMessage,
		Reason:            res.Reason,
		Dropped:           a.Dropped,
	}
}

// Model represents the mission summary component
type Model struct {
	data SummaryData
}

// New creates a new mission summary model
func New() Model {
	return Model{}
}

// SetData updates the summary data
func (m Model) SetData(data SummaryData) Model {
	m.data = data
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the mission summary
func (m Model) View() string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	success := lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	fail := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))

	var lines []string

	lines = append(lines, renderOutcome(m.data.Outcome, success, fail, label))

	if m.data.Reference != "" {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render("Input:"), value.Render(m.data.Reference)))
	}
	if m.data.Duration > 0 {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render("Duration:"), value.Render(elapsedtimer.Format(m.data.Duration))))
	}

	stepsInfo := fmt.Sprintf("%d/%d", m.data.CompletedSteps, m.data.TotalSteps)
	if m.data.FailedSteps > 0 {
		stepsInfo += fail.Render(fmt.Sprintf(" (%d failed)", m.data.FailedSteps))
	}
	lines = append(lines, fmt.Sprintf("%s %s", label.Render("Steps:"), value.Render(stepsInfo)))

	if m.data.AttemptsUsed > 0 {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render("Generations:"), value.Render(fmt.Sprintf("%d", m.data.AttemptsUsed))))
	}

	if m.data.Outcome == mission.OutcomeSuccess {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render("Mindmap:"), value.Render(formatBytes(m.data.PayloadBytes))))
		if m.data.ValidationMessage != "" {
			lines = append(lines, dim.Render(m.data.ValidationMessage))
		}
		if m.data.OutputPath != "" && m.data.OutputPath != "-" {
			lines = append(lines, fmt.Sprintf("%s %s", label.Render("Saved to:"), accent.Render(m.data.OutputPath)))
		}
	}

	if m.data.Dropped > 0 {
		lines = append(lines, dim.Render(fmt.Sprintf("%d unreadable stream line(s) skipped", m.data.Dropped)))
	}

	if m.data.Outcome != mission.OutcomeSuccess && m.data.Reason != "" {
		lines = append(lines, fail.Render("Error: "+m.data.Reason))
	}

	if m.data.AttemptID != "" {
		lines = append(lines, dim.Render("Attempt "+m.data.AttemptID))
	}

	return strings.Join(lines, "\n")
}

func renderOutcome(o mission.Outcome, success, fail, label lipgloss.Style) string {
	switch o {
	case mission.OutcomeSuccess:
		return success.Render("✓") + " " + success.Bold(true).Render("Mission complete")
	case mission.OutcomeFailure:
		return fail.Render("✗") + " " + fail.Bold(true).Render("Mission failed")
	default:
		return label.Render("○") + " " + label.Bold(true).Render("No result")
	}
}

func formatBytes(n int) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
