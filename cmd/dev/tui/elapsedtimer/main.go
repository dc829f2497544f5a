// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/noldarim/mindlaunch/internal/config"
	"github.com/noldarim/mindlaunch/internal/journal"
	"github.com/noldarim/mindlaunch/internal/tui/components/elapsedtimer"
)

func main() {
	startTime := loadStartTime()
	m := elapsedtimer.New().StartFrom(startTime)
	fmt.Println(m.View())
}

func loadStartTime() time.Time {
	cfg, err := config.NewConfig("config.yaml")
	if err != nil || !cfg.Journal.Enabled {
		return mockStartTime()
	}

	store, err := journal.Open(&cfg.Journal)
	if err != nil {
		return mockStartTime()
	}
	defer store.Close()

	recent, err := store.Recent(context.Background(), 1)
	if err != nil || len(recent) == 0 || recent[0].StartedAt.IsZero() {
		return mockStartTime()
	}
	return recent[0].StartedAt
}

func mockStartTime() time.Time {
	return time.Now().Add(-2*time.Minute - 34*time.Second)
}
