// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package elapsedtimer

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TickMsg is sent every second while the timer runs
type TickMsg time.Time

// Model is the mission clock: time since launch.
type Model struct {
	startTime time.Time
	elapsed   time.Duration
	running   bool
	now       func() time.Time
}

// New creates a stopped timer.
func New() Model {
	return Model{now: time.Now}
}

// Start begins the timer from now
func (m Model) Start() Model {
	return m.StartFrom(m.now())
}

// StartFrom begins the timer from a specific time
func (m Model) StartFrom(t time.Time) Model {
	m.startTime = t
	m.running = true
	m.elapsed = m.now().Sub(t)
	return m
}

// Stop freezes the displayed time.
func (m Model) Stop() Model {
	if m.running {
		m.elapsed = m.now().Sub(m.startTime)
		m.running = false
	}
	return m
}

// Running reports whether the timer is ticking.
func (m Model) Running() bool {
	return m.running
}

func (m Model) Init() tea.Cmd {
	if m.running {
		return tick()
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(TickMsg); ok && m.running {
		m.elapsed = m.now().Sub(m.startTime)
		return m, tick()
	}
	return m, nil
}

// View renders: "T+ 02:34"
func (m Model) View() string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))

	return dim.Render("T+") + " " + accent.Render(Format(m.Elapsed()))
}

// Elapsed returns the current elapsed duration
func (m Model) Elapsed() time.Duration {
	if m.running {
		return m.now().Sub(m.startTime)
	}
	return m.elapsed
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Format renders d as mm:ss, or h:mm:ss past the hour.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
