// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-extract/internal/checkpoint"
	"github.com/pdiddy/pubmed-extract/internal/source"
	"github.com/pdiddy/pubmed-extract/internal/storage"
)

var missingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List identifiers of input records that have no result",
	Long: `Missing compares the input collections with a result collection and
writes, one per line, the identifiers of records that have no result yet.
The list feeds resume --missing.

Examples:
  pubmed-extract missing --input pubmed.json --results results.json
  pubmed-extract missing --input pubmed.json --results results.json --out missing.txt`,
	RunE: runMissing,
}

func init() {
	missingCmd.Flags().StringSliceP("input", "i", nil, "input JSON collection (repeatable; path or s3:// URI)")
	missingCmd.Flags().StringP("results", "r", "", "result collection (default: checkpoint.output)")
	missingCmd.Flags().String("out", "", "write the list here instead of stdout (path or s3:// URI)")
	rootCmd.AddCommand(missingCmd)
}

func runMissing(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup(cmd, map[string]string{
		"input":   "source.inputs",
		"results": "checkpoint.output",
	})
	if err != nil {
		return err
	}
	defer closeLog()

	if len(cfg.Source.Inputs) == 0 {
		return errors.New("no input collections: set --input or source.inputs")
	}
	if cfg.Checkpoint.Output == "" {
		return errors.New("no result collection: set --results or checkpoint.output")
	}

	ctx := cmd.Context()
	store := storage.New(withStorageSecrets(cfg.Storage))

	records, err := source.Load(ctx, store, cfg.Source, cfg.Source.Inputs...)
	if err != nil {
		return err
	}
	results, err := checkpoint.Load(ctx, store, cfg.Checkpoint.Output, cfg.ResultIDKey())
	if err != nil {
		return err
	}

	ids := source.ComputeMissing(records, results)
	logger.Info("computed missing identifiers", "records", len(records), "results", len(results), "missing", len(ids))

	var buf bytes.Buffer
	if err := source.WriteMissing(&buf, ids); err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" || out == "-" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := store.Write(ctx, out, buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d missing identifier(s) to %s\n", len(ids), out)
	return nil
}
