// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/noldarim/mindlaunch/internal/config"
	"github.com/noldarim/mindlaunch/internal/logger"
	"github.com/noldarim/mindlaunch/internal/server"
)

type serveOptions struct {
	host     string
	port     int
	scenario string
	delay    time.Duration
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	sopts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local mission-control stub server",
		Long: `Run a local server that speaks the generation service's streaming protocol.
It plays the built-in generate, validate and retry scenario, or a YAML scenario file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = sopts.host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = sopts.port
			}
			if cmd.Flags().Changed("scenario") {
				cfg.Server.ScenarioFile = sopts.scenario
			}
			if cmd.Flags().Changed("delay") {
				cfg.Server.StepDelay = sopts.delay
			}

			closeLog, err := initLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cmd, cfg.Server)
		},
	}
	f := cmd.Flags()
	f.StringVar(&sopts.host, "host", "127.0.0.1", "Listen host")
	f.IntVar(&sopts.port, "port", 8000, "Listen port")
	f.StringVar(&sopts.scenario, "scenario", "", "YAML scenario file to play instead of the built-in one")
	f.DurationVar(&sopts.delay, "delay", 400*time.Millisecond, "Pause between streamed events")
	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, cfg config.ServerConfig) error {
	mainLog := logger.GetLogger("main")

	srv, err := server.New(&cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Run(ctx)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "▸ Mission control listening on http://%s\n", srv.Addr())

	select {
	case <-ctx.Done():
		mainLog.Info().Msg("Shutdown requested")
	case err := <-serverErrChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	// Graceful shutdown: fresh context with timeout, independent of ctx.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Error shutting down server")
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "▸ Mission control shut down")
	return nil
}
