// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-extract/internal/checkpoint"
	"github.com/pdiddy/pubmed-extract/internal/export"
	"github.com/pdiddy/pubmed-extract/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Flatten a result collection into a CSV, XLSX, or YAML table",
	Long: `Export reads a result collection and writes one row per extracted
trait (exposures and outcomes) or one row per record (affiliation results).
The layout is detected from the results unless --layout is given.

Examples:
  pubmed-extract export --results results.json --format csv > traits.csv
  pubmed-extract export --results results.json --format xlsx --out traits.xlsx
  pubmed-extract export --results affil.json --layout affiliation --format yaml`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("results", "r", "", "result collection (default: checkpoint.output)")
	exportCmd.Flags().StringP("format", "f", "csv", "output format: csv, xlsx, or yaml")
	exportCmd.Flags().String("layout", "", "row layout: traits or affiliation (default: detect)")
	exportCmd.Flags().String("sheet", "results", "worksheet name for xlsx output")
	exportCmd.Flags().String("out", "", "write here instead of stdout (path or s3:// URI)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup(cmd, map[string]string{"results": "checkpoint.output"})
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Checkpoint.Output == "" {
		return errors.New("no result collection: set --results or checkpoint.output")
	}
	formatName, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store := storage.New(withStorageSecrets(cfg.Storage))

	results, err := checkpoint.Load(ctx, store, cfg.Checkpoint.Output, cfg.ResultIDKey())
	if err != nil {
		return err
	}

	layoutName, _ := cmd.Flags().GetString("layout")
	layout := export.Layout(layoutName)
	if layout == "" {
		layout = export.DetectLayout(results)
	}
	table, err := export.Flatten(results, layout)
	if err != nil {
		return err
	}
	logger.Info("exporting", "results", len(results), "rows", len(table.Rows), "layout", string(layout), "format", string(format))

	sheet, _ := cmd.Flags().GetString("sheet")
	var buf bytes.Buffer
	if err := export.Write(&buf, table, format, sheet); err != nil {
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
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d row(s) to %s\n", len(table.Rows), out)
	return nil
}
