// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noldarim/mindlaunch/internal/config"
)

const (
	eventBuffer = 256
	// Room for multipart headers around an upload of the maximum size.
	multipartOverhead = 1 << 20
)

// Server is the streaming + WebSocket mission-control server.
type Server struct {
	httpServer  *http.Server
	broadcaster *EventBroadcaster
	registry    *ClientRegistry
	events      chan ObservedEvent
}

// New creates and wires up the server. It does NOT start listening;
// call Run() for that.
func New(cfg *config.ServerConfig) (*Server, error) {
	var scenario *Scenario
	if cfg.ScenarioFile != "" {
		sc, err := LoadScenario(cfg.ScenarioFile)
		if err != nil {
			return nil, err
		}
		scenario = sc
	}

	s := &Server{
		registry: NewClientRegistry(),
		events:   make(chan ObservedEvent, eventBuffer),
	}
	s.broadcaster = NewEventBroadcaster(s.events, s.registry)
	handlers := NewHandlers(cfg, scenario, s.publish)

	r := chi.NewRouter()

	// Global middleware
	r.Use(AttemptID)
	r.Use(Recovery(getLog()))
	r.Use(RequestLogger(getLog()))
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(MaxBodySize(cfg.MaxUploadBytes + multipartOverhead))

	r.Get("/healthz", handlers.Health)

	// Streaming routes
	r.Route("/mindmap", func(r chi.Router) {
		r.Post("/generate/stream", handlers.GenerateText)
		r.Post("/web/generate/stream", handlers.GenerateWeb)
		r.Post("/file/generate/stream", handlers.GenerateFile)
	})

	// WebSocket
	r.Get("/ws", HandleWebSocket(s.registry, cfg.AllowedOrigins))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	// No write timeout: streams last as long as their scenario.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// publish hands an event to the broadcaster without ever blocking a stream.
func (s *Server) publish(ev ObservedEvent) {
	select {
	case s.events <- ev:
	default:
		getLog().Warn().Str("attempt_id", ev.AttemptID).Msg("Dropping observed event, broadcaster is behind")
	}
}

// StartBroadcaster runs the event broadcaster in the background until ctx
// is cancelled, restarting it after a panic.
func (s *Server) StartBroadcaster(ctx context.Context) {
	go func() {
		const maxRetries = 3
		for attempt := 1; attempt <= maxRetries; attempt++ {
			func() {
				defer func() {
					if r := recover(); r != nil {
						getLog().Error().Interface("panic", r).Int("attempt", attempt).Msg("Event broadcaster panic")
					}
				}()
				s.broadcaster.Run(ctx)
			}()

			// Normal return (context cancelled): exit without retry.
			if ctx.Err() != nil {
				return
			}

			if attempt < maxRetries {
				getLog().Warn().Int("attempt", attempt).Msg("Restarting event broadcaster after panic")
				time.Sleep(1 * time.Second)
			}
		}
		getLog().Error().Msg("Event broadcaster exhausted retries - events will no longer be dispatched")
	}()
}

// Run starts the event broadcaster and the HTTP server.
// Blocks until the server is shut down.
func (s *Server) Run(ctx context.Context) error {
	s.StartBroadcaster(ctx)

	getLog().Info().Str("addr", s.httpServer.Addr).Msg("Mission control listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
