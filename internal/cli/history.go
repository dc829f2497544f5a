// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/noldarim/mindlaunch/internal/journal"
	"github.com/noldarim/mindlaunch/internal/tui/components/elapsedtimer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type historyOptions struct {
	limit   int
	asJSON  bool
	payload bool
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	hopts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history [attempt-id]",
		Short: "List recent attempts, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return errors.New("the journal is disabled (journal.enabled: false)")
			}
			closeLog, err := initLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			store, err := openJournal(cfg)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if len(args) == 1 {
				return showAttempt(ctx, cmd.OutOrStdout(), store, args[0], hopts)
			}
			return listAttempts(ctx, cmd.OutOrStdout(), store, hopts)
		},
	}
	cmd.Flags().IntVarP(&hopts.limit, "limit", "n", 20, "Number of attempts to list (0 for all)")
	cmd.Flags().BoolVar(&hopts.asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&hopts.payload, "payload", false, "Print only the mindmap of the attempt")
	return cmd
}

func listAttempts(ctx context.Context, w io.Writer, store *journal.Store, opts *historyOptions) error {
	records, err := store.Recent(ctx, opts.limit)
	if err != nil {
		return fmt.Errorf("failed to load attempts: %w", err)
	}

	if opts.asJSON {
		for _, r := range records {
			r.Payload = ""
		}
		return writeIndentedJSON(w, records)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No attempts recorded yet.")
		fmt.Fprintln(w, "\nLaunch one with:")
		fmt.Fprintf(w, "  %s text \"Some text to map\"\n", appName)
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-36s  %-4s  %-7s  %-16s  %8s  %s\n", "ID", "KIND", "OUTCOME", "STARTED", "DURATION", "INPUT")
	fmt.Fprintln(w, "────────────────────────────────────  ────  ───────  ────────────────  ────────  ────────────────────────────────")
	for _, r := range records {
		fmt.Fprintf(w, "%-36s  %-4s  %-7s  %-16s  %8s  %s\n",
			r.ID,
			r.Kind,
			r.Outcome,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			elapsedtimer.Format(r.Duration()),
			truncate(r.Input, 40))
	}
	fmt.Fprintln(w)
	return nil
}

func showAttempt(ctx context.Context, w io.Writer, store *journal.Store, id string, opts *historyOptions) error {
	rec, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load attempt: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("attempt %s not found", id)
	}

	switch {
	case opts.payload:
		if !rec.Succeeded() {
			return fmt.Errorf("attempt %s produced no mindmap: %s", id, rec.Reason)
		}
		return writePayload("-", w, rec.Payload)
	case opts.asJSON:
		return writeIndentedJSON(w, rec)
	}

	fmt.Fprintf(w, "Attempt:   %s\n", rec.ID)
	fmt.Fprintf(w, "Input:     %s (%s)\n", rec.Input, rec.Kind)
	fmt.Fprintf(w, "Model:     %s\n", rec.LLMType)
	fmt.Fprintf(w, "Started:   %s\n", rec.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:  %s\n", elapsedtimer.Format(rec.Duration()))
	fmt.Fprintf(w, "Outcome:   %s\n", rec.Outcome)
	if rec.Succeeded() {
		fmt.Fprintf(w, "Mindmap:   %d bytes", rec.PayloadBytes)
		if rec.AttemptsUsed > 0 {
			fmt.Fprintf(w, " after %d generation(s)", rec.AttemptsUsed)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "Reason:    %s\n", rec.Reason)
	}
	if rec.DroppedLines > 0 {
		fmt.Fprintf(w, "Dropped:   %d stream line(s)\n", rec.DroppedLines)
	}

	fmt.Fprintln(w, "\nSteps:")
	for _, s := range rec.Steps {
		line := fmt.Sprintf("  %d. %-15s %-9s", s.Position+1, s.Status, s.Lifecycle)
		if s.Message != "" {
			line += " " + s.Message
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	return nil
}

func writeIndentedJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
