// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-extract/internal/ledger"
	"github.com/pdiddy/pubmed-extract/internal/ui"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show runs recorded in the ledger",
	Long: `Runs lists extract and resume runs recorded in the SQLite ledger with
their outcome counts. With --failed it prints the identifiers of records
that failed in one run, one per line, in the format resume --missing reads.

Examples:
  pubmed-extract runs --ledger runs.db
  pubmed-extract runs --ledger runs.db --failed 3f2a9c1e > missing.txt`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().String("ledger", "", "SQLite run ledger path")
	runsCmd.Flags().String("failed", "", "print failed identifiers of this run (ID or prefix)")
	runsCmd.Flags().Int("limit", 20, "maximum runs to list (0 for all)")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, _, closeLog, err := setup(cmd, map[string]string{"ledger": "ledger"})
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Ledger == "" {
		return errors.New("no ledger: set --ledger or ledger")
	}

	l, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if ref, _ := cmd.Flags().GetString("failed"); ref != "" {
		id, err := l.ResolveRun(ctx, ref)
		if err != nil {
			return err
		}
		ids, err := l.Failed(ctx, id)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := l.Runs(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	fmt.Fprintln(out, ui.Runs(runs))
	return nil
}
