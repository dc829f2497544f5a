// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/noldarim/mindlaunch/internal/config"
	"github.com/noldarim/mindlaunch/internal/journal"
	"github.com/noldarim/mindlaunch/internal/protocol"
	"github.com/noldarim/mindlaunch/internal/tui/components/stepprogress"
)

func main() {
	steps := loadSteps()
	component := stepprogress.New().SetSteps(steps).SetWidth(20)
	fmt.Println(component.View())
}

// loadSteps reads the steps of the latest journaled attempt.
func loadSteps() []stepprogress.Step {
	cfg, err := config.NewConfig("config.yaml")
	if err != nil || !cfg.Journal.Enabled {
		return mockSteps()
	}

	store, err := journal.Open(&cfg.Journal)
	if err != nil {
		return mockSteps()
	}
	defer store.Close()

	recent, err := store.Recent(context.Background(), 1)
	if err != nil || len(recent) == 0 {
		return mockSteps()
	}
	rec, err := store.Get(context.Background(), recent[0].ID)
	if err != nil || rec == nil || len(rec.Steps) == 0 {
		return mockSteps()
	}

	steps := make([]stepprogress.Step, len(rec.Steps))
	for i, s := range rec.Steps {
		steps[i] = stepprogress.Step{
			Name:   protocol.Describe(protocol.StatusCode(s.Status)).Label,
			Status: convertLifecycle(s.Lifecycle),
		}
	}
	return steps
}

func convertLifecycle(l string) stepprogress.StepStatus {
	switch l {
	case "completed":
		return stepprogress.StatusCompleted
	case "active":
		return stepprogress.StatusRunning
	case "error":
		return stepprogress.StatusFailed
	default:
		return stepprogress.StatusPending
	}
}

func mockSteps() []stepprogress.Step {
	return []stepprogress.Step{
		{Name: "Connecting", Status: stepprogress.StatusCompleted},
		{Name: "Preparing data", Status: stepprogress.StatusCompleted},
		{Name: "Generating", Status: stepprogress.StatusRunning},
		{Name: "Validating format", Status: stepprogress.StatusPending},
	}
}
