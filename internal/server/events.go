// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server is a local mission-control server speaking the mindmap
// generation progress protocol. It streams scripted scenarios on the
// generation endpoints and mirrors every streamed event to WebSocket
// observers.
package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noldarim/mindlaunch/internal/logger"
	"github.com/noldarim/mindlaunch/internal/protocol"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetAPILogger()
		log = &l
	})
	return log
}

// ObservedEvent is an event streamed to one attempt, as seen by observers.
type ObservedEvent struct {
	AttemptID string         `json:"attempt_id"`
	Seq       int            `json:"seq"`
	Event     protocol.Event `json:"event"`
}

// EventBroadcaster reads every streamed event from eventChan and fans them
// out to all connected WebSocket clients.
type EventBroadcaster struct {
	eventChan <-chan ObservedEvent
	clients   *ClientRegistry
}

// NewEventBroadcaster creates a broadcaster over the stream handlers' event channel.
func NewEventBroadcaster(eventChan <-chan ObservedEvent, clients *ClientRegistry) *EventBroadcaster {
	return &EventBroadcaster{
		eventChan: eventChan,
		clients:   clients,
	}
}

// Run reads events until the channel is closed or context is cancelled.
func (b *EventBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case event, ok := <-b.eventChan:
			if !ok {
				getLog().Info().Msg("Event broadcaster stopped (channel closed)")
				return
			}
			b.dispatch(event)
		case <-ctx.Done():
			getLog().Info().Msg("Event broadcaster stopped (context cancelled)")
			return
		}
	}
}

func (b *EventBroadcaster) dispatch(event ObservedEvent) {
	if b.clients != nil {
		b.clients.Broadcast(event)
	}
}
