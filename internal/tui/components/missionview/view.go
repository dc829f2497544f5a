// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package missionview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/noldarim/mindlaunch/internal/mission"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("239"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// View renders the mission control screen
func (m Model) View() string {
	var sections []string

	sections = append(sections, m.viewHeader())
	if steps := m.viewSteps(); steps != "" {
		sections = append(sections, steps)
	}
	sections = append(sections, m.bar.View())
	sections = append(sections, separatorStyle.Render(strings.Repeat("─", max(m.width, 10))))
	sections = append(sections, statusBarStyle.Render(m.ViewStatusBar()))

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) viewHeader() string {
	phase := m.state.Phase
	title := phase.Phase
	subtitle := phase.Subtitle
	if title == "" {
		title = "PRE-LAUNCH"
		subtitle = "Preparing the mission..."
	}
	if m.status == StatusCancelling {
		subtitle = "Aborting mission..."
	}

	lines := []string{titleStyle.Render(fmt.Sprintf("%s %s", m.spinner.View(), title))}
	if subtitle != "" {
		lines = append(lines, subtitleStyle.Render(subtitle))
	}
	if m.title != "" {
		lines = append(lines, messageStyle.Render(m.title))
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewSteps() string {
	lines := make([]string, 0, len(m.state.Steps))
	for _, s := range m.state.Steps {
		info := s.Info()
		line := fmt.Sprintf("%s %s %s", lifecycleIcon(s.Lifecycle, m.spinner.View()), info.Icon, info.Label)
		if s.Message != "" {
			line += "  " + messageStyle.Render(s.Message)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func lifecycleIcon(l mission.Lifecycle, active string) string {
	switch l {
	case mission.LifecycleActive:
		return active
	case mission.LifecycleCompleted:
		return doneStyle.Render("✓")
	case mission.LifecycleError:
		return errorStyle.Render("✗")
	default:
		return pendingStyle.Render("○")
	}
}

// ViewStatusBar renders the step counter, target and clock
func (m Model) ViewStatusBar() string {
	parts := []string{}
	if v := m.steps.View(); v != "" {
		parts = append(parts, v)
	}
	parts = append(parts, fmt.Sprintf("%3d%%", m.state.ProgressTarget))
	parts = append(parts, m.timer.View())
	if m.state.Turbo {
		parts = append(parts, "⚡")
	}
	return strings.Join(parts, " │ ")
}
