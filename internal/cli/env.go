// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/noldarim/mindlaunch/internal/config"
	"github.com/noldarim/mindlaunch/internal/dispatch"
	"github.com/noldarim/mindlaunch/internal/journal"
	"github.com/noldarim/mindlaunch/internal/logger"
	"github.com/noldarim/mindlaunch/internal/tui"
)

// env is everything a launching command needs.
type env struct {
	cfg        *config.AppConfig
	dispatcher *dispatch.Dispatcher
	journal    *journal.Store // nil when the journal is disabled or unavailable
	presenter  tui.Presenter

	stdout io.Writer
	stderr io.Writer

	// interactive enables prompts such as the relaunch confirmation.
	interactive bool
	confirm     func(title string) (bool, error)
}

// loadConfig reads the configuration and applies the global flags on top.
func loadConfig(opts *globalOptions) (*config.AppConfig, error) {
	cfg, err := config.NewConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.llm != "" {
		cfg.Client.LLMType = opts.llm
	}
	if opts.apiKey != "" {
		cfg.Client.APIKey = opts.apiKey
	}
	if opts.out != "" {
		cfg.Presenter.OutputPath = opts.out
	}
	if opts.plain {
		cfg.Presenter.Plain = true
	}
	return cfg, nil
}

// initLogging starts the logger (to file only by default, keeping the
// terminal clean) and returns its cleanup.
func initLogging(cfg *config.AppConfig) (func(), error) {
	if err := logger.Initialize(&cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return func() { _ = logger.CloseGlobal() }, nil
}

// openJournal opens and migrates the attempt journal.
func openJournal(cfg *config.AppConfig) (*journal.Store, error) {
	store, err := journal.Open(&cfg.Journal)
	if err != nil {
		return nil, err
	}
	if err := store.AutoMigrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// setup builds the launch environment. The returned cleanup is never nil.
func setup(cmd *cobra.Command, opts *globalOptions) (*env, func(), error) {
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, cleanup, err
	}

	closeLog, err := initLogging(cfg)
	if err != nil {
		return nil, cleanup, err
	}
	cleanups = append(cleanups, closeLog)
	mainLog := logger.GetLogger("main")

	d, err := dispatch.New(cfg.Client)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	e := &env{
		cfg:        cfg,
		dispatcher: d,
		stdout:     cmd.OutOrStdout(),
		stderr:     cmd.ErrOrStderr(),
		confirm:    confirm,
	}

	if cfg.Journal.Enabled {
		store, err := openJournal(cfg)
		if err != nil {
			// Attempts still run without a journal.
			mainLog.Warn().Err(err).Msg("Journal unavailable, attempts will not be recorded")
			fmt.Fprintf(e.stderr, "▸ Journal unavailable: %v\n", err)
		} else {
			e.journal = store
			cleanups = append(cleanups, func() { _ = store.Close() })
		}
	}

	errFile, isFile := e.stderr.(*os.File)
	if isFile {
		e.presenter = tui.Select(errFile, cfg.Presenter.Plain)
	} else {
		e.presenter = &tui.Plain{Out: e.stderr}
	}
	e.interactive = isFile && !cfg.Presenter.Plain && tui.IsTerminal(errFile) && tui.IsTerminal(os.Stdin)

	return e, cleanup, nil
}

// llm is the model selection for new requests.
func (e *env) llm() dispatch.LLMConfig {
	return dispatch.LLMConfig{Type: e.cfg.Client.LLMType, APIKey: e.cfg.Client.APIKey}
}

func confirm(title string) (bool, error) {
	ok := true
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Relaunch").
		Negative("Abort").
		Value(&ok).
		Run()
	return ok, err
}
