// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-extract/internal/extract"
	"github.com/pdiddy/pubmed-extract/internal/source"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured data from every record in the input collections",
	Long: `Extract renders the prompt template for each record, sends it to the
completion API and collects the parsed JSON replies. Records without an
abstract, or without the template's input field, are skipped. Records whose request or reply fails
are logged and left out of the results; list them later with missing.

The result collection is written to --output every --every processed
records and once more at the end, including after an interrupt.

Examples:
  pubmed-extract extract --input pubmed.json --output results.json
  pubmed-extract extract --input a.json --input b.json --template affiliation --output affil.json
  pubmed-extract extract --input s3://bucket/pubmed.json --output s3://bucket/results.json --ledger runs.db`,
	RunE: runExtract,
}

// pipelineFlagKeys maps flags shared by extract and resume to config keys.
var pipelineFlagKeys = map[string]string{
	"input":       "source.inputs",
	"output":      "checkpoint.output",
	"template":    "template",
	"every":       "checkpoint.every",
	"ledger":      "ledger",
	"provider":    "ai.provider",
	"model":       "ai.model",
	"base-url":    "ai.base_url",
	"max-retries": "ai.max_retries",
}

func init() {
	addPipelineFlags(extractCmd)
	rootCmd.AddCommand(extractCmd)
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("input", "i", nil, "input JSON collection (repeatable; path or s3:// URI)")
	cmd.Flags().StringP("output", "o", "", "result collection destination (path or s3:// URI)")
	cmd.Flags().StringP("template", "t", "exposures", "built-in template name or YAML template file")
	cmd.Flags().Int("every", 100, "records processed between checkpoints")
	cmd.Flags().String("ledger", "", "SQLite run ledger path (optional)")
	cmd.Flags().String("provider", "openai", "completion API: openai, anthropic, or gemini")
	cmd.Flags().String("model", "", "model identifier (default depends on provider)")
	cmd.Flags().String("base-url", "", "override the OpenAI-compatible endpoint")
	cmd.Flags().Int("max-retries", 0, "extra attempts for a record whose extraction fails")
	cmd.Flags().Bool("strict", false, "exit non-zero when any record fails")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup(cmd, pipelineFlagKeys)
	if err != nil {
		return err
	}
	defer closeLog()

	if len(cfg.Source.Inputs) == 0 {
		return errors.New("no input collections: set --input or source.inputs")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := openPipeline(ctx, cfg, logger, out, "extract")
	if err != nil {
		return err
	}
	defer p.close()

	records, err := source.Load(ctx, p.store, cfg.Source, cfg.Source.Inputs...)
	if err != nil {
		p.finish(ctx, extract.BatchSummary{}, err)
		return err
	}
	fmt.Fprintf(out, "Extracting %d record(s) with template %s\n", len(records), p.tmpl.Name)

	_, summary, runErr := p.runner.Run(ctx, records)
	p.finish(ctx, summary, runErr)
	p.report(out, summary)
	if runErr != nil {
		return runErr
	}

	strict, _ := cmd.Flags().GetBool("strict")
	return failureError(summary, strict)
}
