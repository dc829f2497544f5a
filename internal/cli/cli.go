// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the mindlaunch command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	appName    = "mindlaunch"
	appVersion = "0.1.0-alpha"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	plain      bool
	out        string
	llm        string
	apiKey     string
}

// Execute runs the CLI application
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree. Without a subcommand it opens the
// interactive launch form.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Launch mindmap generations and follow them from mission control",
		Long: appName + ` sends text, a web page or a PDF to the mindmap generation service,
follows its progress stream and writes the generated mindmap.`,
		Example: `  mindlaunch text "Goroutines are lightweight threads managed by the Go runtime."
  pbpaste | mindlaunch text - --out notes.ctm
  mindlaunch url https://go.dev/doc/effective_go --llm gemini --api-key $GEMINI_KEY
  mindlaunch file lecture.pdf --plain
  mindlaunch history
  mindlaunch serve --port 8000`,
		Version:       appVersion,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunchForm(cmd, opts)
		},
	}
	cmd.SetVersionTemplate("{{.Name}} version {{.Version}}\n")

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "Path to config file (default: ./config.yaml, ./config/ or ~/.mindlaunch/)")
	f.BoolVar(&opts.plain, "plain", false, "Print one line per event instead of the mission control view")
	f.StringVarP(&opts.out, "out", "o", "", `Where to write the generated mindmap, "-" for stdout`)
	f.StringVar(&opts.llm, "llm", "", "Model backend: ollama or gemini")
	f.StringVar(&opts.apiKey, "api-key", "", "API key, required for gemini")

	cmd.AddCommand(
		newTextCmd(opts),
		newURLCmd(opts),
		newFileCmd(opts),
		newLaunchCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
		},
	}
}
