package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hotdeploy/internal/journal"
)

// errNoJournal is returned by history when the journal is disabled.
var errNoJournal = errors.New("journal is disabled (--no-journal)")

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		q      journal.Query
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently mirrored changes",
		Long: `Print the newest outcomes from the journal: what was copied or deleted,
by which instance, how many attempts it took and why it failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, opts, q, asJSON)
		},
	}

	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of rows (default 50)")
	cmd.Flags().StringVar(&q.Instance, "instance", "", "only show this instance")
	cmd.Flags().BoolVar(&q.FailedOnly, "failed", false, "only show failed changes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *rootOptions, q journal.Query, asJSON bool) error {
	path := resolveJournalPath(opts)
	if path == "" {
		return errNoJournal
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	j, err := journal.Open(cmd.Context(), path, logger)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(cmd.Context(), q)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}

		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes recorded.")
		return nil
	}

	headers := []string{"TIME", "INSTANCE", "KIND", "RESULT", "ATTEMPTS", "PATH", "ERROR"}
	rows := make([][]string, 0, len(entries))

	for i := range entries {
		e := &entries[i]
		rows = append(rows, []string{
			formatTime(e.At),
			e.Instance,
			e.Kind,
			e.Result,
			strconv.Itoa(e.Attempts),
			e.Path,
			e.Error,
		})
	}

	printTable(cmd.OutOrStdout(), headers, rows)

	return nil
}
