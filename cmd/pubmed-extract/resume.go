// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-extract/internal/checkpoint"
	"github.com/pdiddy/pubmed-extract/internal/extract"
	"github.com/pdiddy/pubmed-extract/internal/ledger"
	"github.com/pdiddy/pubmed-extract/internal/source"
	"github.com/pdiddy/pubmed-extract/internal/storage"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Reprocess the records that have no result and merge them into --output",
	Long: `Resume loads the existing result collection at --output, reprocesses
only the records named in a missing-identifier file (or the records that
failed in a ledger run), and writes the merged collection back to --output.

With --merge append (the default) new results are added after the
existing ones. With --merge replace a new result replaces existing results
that carry the same identifier.

Examples:
  pubmed-extract missing --input pubmed.json --results results.json --out missing.txt
  pubmed-extract resume --input pubmed.json --output results.json --missing missing.txt
  pubmed-extract resume --input pubmed.json --output results.json --ledger runs.db --run 3f2a9c1e`,
	RunE: runResume,
}

func init() {
	addPipelineFlags(resumeCmd)
	resumeCmd.Flags().String("missing", "", "file of identifiers to reprocess, one per line (path or s3:// URI)")
	resumeCmd.Flags().String("run", "", "reprocess the records that failed in this ledger run (ID or prefix)")
	resumeCmd.Flags().String("merge", "append", "merge policy: append or replace")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	keys := maps.Clone(pipelineFlagKeys)
	keys["merge"] = "merge"
	cfg, logger, closeLog, err := setup(cmd, keys)
	if err != nil {
		return err
	}
	defer closeLog()

	missingPath, _ := cmd.Flags().GetString("missing")
	runRef, _ := cmd.Flags().GetString("run")
	switch {
	case missingPath == "" && runRef == "":
		return errors.New("nothing to resume: set --missing or --run")
	case missingPath != "" && runRef != "":
		return errors.New("--missing and --run are mutually exclusive")
	case runRef != "" && cfg.Ledger == "":
		return errors.New("--run needs a ledger: set --ledger or ledger")
	}
	if len(cfg.Source.Inputs) == 0 {
		return errors.New("no input collections: set --input or source.inputs")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// The failed set is read before the pipeline opens its own ledger run.
	var missing source.MissingSet
	if runRef != "" {
		missing, err = failedInRun(ctx, cfg.Ledger, runRef)
	} else {
		missing, err = readMissing(ctx, storage.New(withStorageSecrets(cfg.Storage)), missingPath)
	}
	if err != nil {
		return err
	}

	p, err := openPipeline(ctx, cfg, logger, out, "resume")
	if err != nil {
		return err
	}
	defer p.close()

	previous, err := checkpoint.Load(ctx, p.store, cfg.Checkpoint.Output, cfg.ResultIDKey())
	if err != nil {
		p.finish(ctx, extract.BatchSummary{}, err)
		return err
	}
	records, err := source.Load(ctx, p.store, cfg.Source, cfg.Source.Inputs...)
	if err != nil {
		p.finish(ctx, extract.BatchSummary{}, err)
		return err
	}
	fmt.Fprintf(out, "Resuming %d missing identifier(s) against %d record(s); %d existing result(s)\n",
		len(missing), len(records), len(previous))

	merged, summary, runErr := extract.Resume(ctx, p.runner, extract.ResumeInput{
		Records:  records,
		Missing:  missing,
		Previous: previous,
		Policy:   cfg.Merge,
	})
	p.finish(ctx, summary, runErr)
	p.report(out, summary)
	if runErr != nil {
		return runErr
	}
	logger.Info("resume complete", "results", len(merged), "policy", string(cfg.Merge))

	strict, _ := cmd.Flags().GetBool("strict")
	return failureError(summary, strict)
}

func readMissing(ctx context.Context, store storage.Store, location string) (source.MissingSet, error) {
	data, err := store.Read(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("reading missing identifiers %s: %w", location, err)
	}
	return source.ParseMissing(data)
}

func failedInRun(ctx context.Context, path, ref string) (source.MissingSet, error) {
	l, err := ledger.Open(path)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	id, err := l.ResolveRun(ctx, ref)
	if err != nil {
		return nil, err
	}
	ids, err := l.Failed(ctx, id)
	if err != nil {
		return nil, err
	}
	return source.NewMissingSet(ids...), nil
}

