// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdiddy/pubmed-extract/internal/checkpoint"
	"github.com/pdiddy/pubmed-extract/internal/extract"
	"github.com/pdiddy/pubmed-extract/internal/ledger"
	"github.com/pdiddy/pubmed-extract/internal/llm"
	"github.com/pdiddy/pubmed-extract/internal/prompt"
	"github.com/pdiddy/pubmed-extract/internal/storage"
	"github.com/pdiddy/pubmed-extract/internal/ui"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// pipeline holds everything an extract or resume run needs.
type pipeline struct {
	cfg       types.Config
	log       *slog.Logger
	store     *storage.Router
	tmpl      *prompt.Template
	completer llm.Completer
	writer    *checkpoint.Writer
	ledger    *ledger.Store
	run       *ledger.Run
	runner    *extract.Runner
}

// withStorageSecrets fills S3 credentials from .secrets/ when the config
// leaves them empty.
func withStorageSecrets(cfg types.StorageConfig) types.StorageConfig {
	if cfg.AccessKey == "" && cfg.SecretKey == "" {
		cfg.AccessKey = loadedSecrets["aws-access-key-id"]
		cfg.SecretKey = loadedSecrets["aws-secret-access-key"]
	}
	return cfg
}

// openPipeline resolves the template, builds the completion client, locks
// the output and, when a ledger is configured, opens a run. The caller
// must call close.
func openPipeline(ctx context.Context, cfg types.Config, logger *slog.Logger, progress io.Writer, command string) (*pipeline, error) {
	if cfg.Checkpoint.Output == "" {
		return nil, errors.New("no output location: set --output or checkpoint.output")
	}

	p := &pipeline{cfg: cfg, log: logger, store: storage.New(withStorageSecrets(cfg.Storage))}

	tmpl, err := prompt.Resolve(cfg.Template)
	if err != nil {
		return nil, err
	}
	p.tmpl = tmpl

	key, err := loadedSecrets.APIKey(cfg.AI.Provider, cfg.AI.APIKey)
	if err != nil {
		return nil, err
	}
	p.completer, err = llm.New(ctx, cfg.AI.Provider, llm.OptionsFromConfig(cfg.AI, key))
	if err != nil {
		return nil, err
	}

	client, err := extract.NewClient(p.completer, tmpl, cfg.AI.Timeout)
	if err != nil {
		p.close()
		return nil, err
	}

	p.writer = checkpoint.New(p.store, cfg.Checkpoint.Output)
	if err := p.writer.Lock(); err != nil {
		p.writer = nil
		p.close()
		return nil, err
	}

	var recorder extract.Recorder
	if cfg.Ledger != "" {
		p.ledger, err = ledger.Open(cfg.Ledger)
		if err != nil {
			p.close()
			return nil, err
		}
		p.run, err = p.ledger.BeginRun(ctx, ledger.RunInfo{
			Command:  command,
			Template: tmpl.Name,
			Output:   cfg.Checkpoint.Output,
			Model:    cfg.AI.Model,
		})
		if err != nil {
			p.close()
			return nil, err
		}
		recorder = p.run
	}

	p.runner, err = extract.NewRunner(extract.RunnerOptions{
		Extractor:  client,
		Template:   tmpl,
		Flusher:    p.writer,
		Recorder:   recorder,
		Logger:     logger,
		Progress:   progress,
		Every:      cfg.Checkpoint.Every,
		MaxRetries: cfg.AI.MaxRetries,
		IDKey:      cfg.ResultIDKey(),
	})
	if err != nil {
		p.close()
		return nil, err
	}

	logger.Info("pipeline ready",
		"command", command,
		"provider", string(cfg.AI.Provider),
		"model", cfg.AI.Model,
		"template", tmpl.Name,
		"output", cfg.Checkpoint.Output,
		"every", cfg.Checkpoint.Every)
	return p, nil
}

// finish records the end of the run in the ledger, if any.
func (p *pipeline) finish(ctx context.Context, summary extract.BatchSummary, runErr error) {
	if p.run == nil {
		return
	}
	if err := p.run.Finish(context.WithoutCancel(ctx), summary, runErr); err != nil {
		p.log.Warn("could not finish ledger run", "run", p.run.ID, "error", err)
	}
}

func (p *pipeline) close() {
	if p.ledger != nil {
		if err := p.ledger.Close(); err != nil {
			p.log.Warn("closing ledger", "error", err)
		}
	}
	if p.writer != nil {
		if err := p.writer.Unlock(); err != nil {
			p.log.Warn("releasing output lock", "error", err)
		}
	}
	if p.completer != nil {
		if err := p.completer.Close(); err != nil {
			p.log.Warn("closing completion client", "error", err)
		}
	}
}

// report prints the run summary and, with a ledger, the retry hint.
func (p *pipeline) report(w io.Writer, summary extract.BatchSummary) {
	fmt.Fprintln(w, ui.Summary(summary, p.cfg.Checkpoint.Output))
	if p.run != nil {
		fmt.Fprintln(w, ui.Failed(summary.Failed(), p.run.ID))
	}
}

// failureError returns an error when strict is set and records failed.
func failureError(summary extract.BatchSummary, strict bool) error {
	if strict && summary.HasFailures() {
		return fmt.Errorf("%d record(s) failed extraction", summary.Failed())
	}
	return nil
}
