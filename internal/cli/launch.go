// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/noldarim/mindlaunch/internal/dispatch"
	"github.com/noldarim/mindlaunch/internal/logger"
	"github.com/noldarim/mindlaunch/internal/mission"
	"github.com/noldarim/mindlaunch/internal/tui"
	"github.com/noldarim/mindlaunch/internal/tui/components/launchform"
)

// ErrMissionFailed is returned when the last attempt ended without a mindmap.
var ErrMissionFailed = errors.New("mission failed")

const recordTimeout = 5 * time.Second

func newTextCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "text <text|->",
		Short: "Generate a mindmap from text",
		Long:  `Generate a mindmap from text. Use "-" to read the text from stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			if text == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(b)
			}
			return launch(cmd, opts, func(llm dispatch.LLMConfig) dispatch.Request {
				return dispatch.TextRequest(text, llm)
			})
		},
	}
}

func newURLCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "url <url>",
		Short: "Generate a mindmap from a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(cmd, opts, func(llm dispatch.LLMConfig) dispatch.Request {
				return dispatch.URLRequest(args[0], llm)
			})
		},
	}
}

func newFileCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "file <path>",
		Short: "Generate a mindmap from a PDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(cmd, opts, func(llm dispatch.LLMConfig) dispatch.Request {
				return dispatch.FileRequest(args[0], llm)
			})
		},
	}
}

func newLaunchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "launch",
		Short: "Choose the input interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunchForm(cmd, opts)
		},
	}
}

// runLaunchForm asks for the input with the launch form, then launches.
func runLaunchForm(cmd *cobra.Command, opts *globalOptions) error {
	if !tui.IsTerminal(os.Stdin) {
		return cmd.Help()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	v := launchform.Values{LLM: cfg.Client.LLMType, APIKey: cfg.Client.APIKey}
	if err := launchform.New(&v).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return fmt.Errorf("launch form: %w", err)
	}

	req, err := v.Request()
	if err != nil {
		return err
	}
	return launch(cmd, opts, func(dispatch.LLMConfig) dispatch.Request { return req })
}

// launch sets up the environment and flies the mission built by build.
func launch(cmd *cobra.Command, opts *globalOptions, build func(dispatch.LLMConfig) dispatch.Request) error {
	e, cleanup, err := setup(cmd, opts)
	defer cleanup()
	if err != nil {
		return err
	}

	req := build(e.llm())
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return e.fly(ctx, req)
}

// fly runs attempts of req until one succeeds or the user stops
// relaunching. Relaunches go through the dispatcher's launch throttle.
func (e *env) fly(ctx context.Context, req dispatch.Request) error {
	mainLog := logger.GetLogger("main")

	for {
		a, err := e.presenter.Present(ctx, req.Reference(), func(ctx context.Context, m *mission.Machine) dispatch.Attempt {
			return e.dispatcher.Run(ctx, req, m)
		})
		if err != nil {
			return err
		}

		e.record(ctx, a)

		res := a.Result()
		if res.OK() {
			if err := writePayload(e.cfg.Presenter.OutputPath, e.stdout, res.Payload); err != nil {
				return err
			}
		}
		fmt.Fprintln(e.stderr, tui.Summary(a, e.cfg.Presenter.OutputPath))

		if res.OK() {
			return nil
		}
		failure := fmt.Errorf("%w: %s", ErrMissionFailed, res.Reason)
		if ctx.Err() != nil || !e.interactive {
			return failure
		}

		again, err := e.confirm("Relaunch the mission?")
		if err != nil || !again {
			return failure
		}
		mainLog.Info().Str("previous_attempt", a.ID).Msg("Relaunching")
	}
}

// record stores the attempt in the journal, even when ctx is already
// cancelled.
func (e *env) record(ctx context.Context, a dispatch.Attempt) {
	if e.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := e.journal.Record(ctx, a); err != nil {
		mainLog := logger.GetLogger("main")
		mainLog.Error().Err(err).Str("attempt_id", a.ID).Msg("Failed to record attempt")
		fmt.Fprintf(e.stderr, "▸ Could not record attempt: %v\n", err)
	}
}

// writePayload writes the mindmap to path, or to stdout for "-".
func writePayload(path string, stdout io.Writer, payload string) error {
	if path == "" || path == "-" {
		if !strings.HasSuffix(payload, "\n") {
			payload += "\n"
		}
		_, err := io.WriteString(stdout, payload)
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		return fmt.Errorf("failed to write mindmap: %w", err)
	}
	return nil
}
