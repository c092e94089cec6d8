// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract runs records through a prompt template and a completion
// API, accumulating the structured results and checkpointing them as it
// goes. Records are processed strictly in order, one request at a time.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/pdiddy/pubmed-extract/internal/prompt"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// DefaultEvery is the checkpoint cadence when none is configured.
const DefaultEvery = 100

// Extractor performs one extraction exchange. *Client is the production
// implementation; tests supply fakes.
type Extractor interface {
	Extract(ctx context.Context, messages []prompt.Message) (map[string]json.RawMessage, error)
}

// Flusher persists the full result collection.
type Flusher interface {
	Flush(ctx context.Context, results []types.ExtractionResult) error
}

// Recorder receives every per-record outcome. The run ledger implements it.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// Status is the disposition of one record.
type Status string

const (
	StatusExtracted  Status = "extracted"
	StatusSkipped    Status = "skipped"
	StatusAPIError   Status = "api_error"
	StatusParseError Status = "parse_error"
)

// Outcome is the typed result of processing one record.
type Outcome struct {
	Identifier string
	Status     Status
	Err        error
	Attempts   int
	Duration   time.Duration
}

// BatchSummary holds counts from one run.
type BatchSummary struct {
	Extracted   int
	Skipped     int
	APIErrors   int
	ParseErrors int
	Checkpoints int
}

// Failed returns the number of attempted records that produced no result.
func (s BatchSummary) Failed() int {
	return s.APIErrors + s.ParseErrors
}

// Processed returns the number of attempted (non-skipped) records.
func (s BatchSummary) Processed() int {
	return s.Extracted + s.Failed()
}

// Total returns the number of records seen.
func (s BatchSummary) Total() int {
	return s.Processed() + s.Skipped
}

// HasFailures reports whether any attempted record failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed() > 0
}

func (s *BatchSummary) add(st Status) {
	switch st {
	case StatusExtracted:
		s.Extracted++
	case StatusSkipped:
		s.Skipped++
	case StatusAPIError:
		s.APIErrors++
	case StatusParseError:
		s.ParseErrors++
	}
}

// RunnerOptions holds the collaborators of a Runner.
type RunnerOptions struct {
	Extractor Extractor
	Template  *prompt.Template
	Flusher   Flusher

	// Recorder is optional.
	Recorder Recorder

	// Logger receives structured diagnostics. Nil discards them.
	Logger *slog.Logger

	// Progress receives one human-readable line per record. Nil discards.
	Progress io.Writer

	// Every is the number of processed records between checkpoints.
	Every int

	// MaxRetries is the number of extra attempts for a failed record.
	MaxRetries int

	// IDKey is the key the identifier is written under in each result.
	IDKey string
}

// Runner drives a batch of records through the extraction pipeline.
type Runner struct {
	extractor  Extractor
	tmpl       *prompt.Template
	flusher    Flusher
	recorder   Recorder
	log        *slog.Logger
	progress   io.Writer
	every      int
	maxRetries int
	idKey      string
}

// NewRunner validates opts and returns a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Extractor == nil {
		return nil, errors.New("runner: extractor is required")
	}
	if opts.Template == nil {
		return nil, errors.New("runner: template is required")
	}
	if opts.Flusher == nil {
		return nil, errors.New("runner: flusher is required")
	}
	if opts.IDKey == "" {
		return nil, errors.New("runner: identifier key is required")
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("runner: max retries must not be negative, got %d", opts.MaxRetries)
	}
	r := &Runner{
		extractor:  opts.Extractor,
		tmpl:       opts.Template,
		flusher:    opts.Flusher,
		recorder:   opts.Recorder,
		log:        opts.Logger,
		progress:   opts.Progress,
		every:      opts.Every,
		maxRetries: opts.MaxRetries,
		idKey:      opts.IDKey,
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.progress == nil {
		r.progress = io.Discard
	}
	if r.every <= 0 {
		r.every = DefaultEvery
	}
	return r, nil
}

// Run processes records in order. A record without primary text, or
// without the template's input field, is skipped. A record that fails
// extraction is counted, logged and recorded, then dropped. Every r.every
// processed records, and once at the end, the whole collection is flushed.
//
// Cancelling ctx stops the loop after the in-flight record; the final flush
// still runs and ctx.Err() is returned. A flush failure aborts the run with
// the flush error.
func (r *Runner) Run(ctx context.Context, records []types.Record) ([]types.ExtractionResult, BatchSummary, error) {
	results := make([]types.ExtractionResult, 0, len(records))
	var summary BatchSummary
	var runErr error
	processed := 0

	r.log.Info("run started", "template", r.tmpl.Name, "records", len(records), "every", r.every)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		o, res := r.process(ctx, rec)
		summary.add(o.Status)
		r.record(ctx, o)

		if o.Status == StatusSkipped {
			continue
		}
		if o.Status == StatusExtracted {
			results = append(results, res)
		}

		processed++
		if processed%r.every == 0 {
			if err := r.flush(ctx, results, processed); err != nil {
				return results, summary, err
			}
			summary.Checkpoints++
		}
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	// The final flush must land even when the run was interrupted.
	if err := r.flush(context.WithoutCancel(ctx), results, processed); err != nil {
		return results, summary, err
	}
	summary.Checkpoints++

	r.log.Info("run finished",
		"extracted", summary.Extracted, "skipped", summary.Skipped,
		"api_errors", summary.APIErrors, "parse_errors", summary.ParseErrors,
		"checkpoints", summary.Checkpoints)
	return results, summary, runErr
}

// process handles one record and returns its outcome and, on success, the
// tagged result.
func (r *Runner) process(ctx context.Context, rec types.Record) (Outcome, types.ExtractionResult) {
	o := Outcome{Identifier: rec.Identifier}

	// A record without its primary text is skipped whatever the template
	// consumes; the affiliation pass only covers records with an abstract.
	missing := ""
	input, hasInput := r.tmpl.InputOf(rec)
	switch {
	case !rec.HasText():
		missing = types.FieldText
	case !hasInput:
		missing = r.tmpl.Input
	}
	if missing != "" {
		o.Status = StatusSkipped
		fmt.Fprintf(r.progress, "skipped %s: no %s\n", rec.Identifier, missing)
		r.log.Debug("record skipped", "identifier", rec.Identifier, "missing", missing)
		return o, types.ExtractionResult{}
	}

	fmt.Fprintf(r.progress, "extracting %s\n", rec.Identifier)
	start := time.Now()
	fields, attempts, err := callWithRetry(ctx, r.extractor, r.tmpl.Render(input), r.maxRetries)
	o.Attempts = attempts
	o.Duration = time.Since(start)

	if err != nil {
		o.Err = err
		o.Status = ErrorKind(err)
		if o.Status == "" {
			o.Status = StatusAPIError
		}
		fmt.Fprintf(r.progress, "failed  %s: %v\n", rec.Identifier, err)
		r.log.Warn("extraction failed",
			"identifier", rec.Identifier, "kind", string(o.Status), "attempts", attempts, "error", err)
		return o, types.ExtractionResult{}
	}

	o.Status = StatusExtracted
	fmt.Fprintf(r.progress, "extracted %s\n", rec.Identifier)
	r.log.Debug("record extracted", "identifier", rec.Identifier, "attempts", attempts, "duration", o.Duration)
	return o, types.ResultForRecord(r.idKey, rec, fields)
}

func (r *Runner) record(ctx context.Context, o Outcome) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(context.WithoutCancel(ctx), o); err != nil {
		r.log.Warn("recording outcome", "identifier", o.Identifier, "error", err)
	}
}

func (r *Runner) flush(ctx context.Context, results []types.ExtractionResult, processed int) error {
	if err := r.flusher.Flush(ctx, results); err != nil {
		r.log.Error("checkpoint failed", "processed", processed, "results", len(results), "error", err)
		return fmt.Errorf("checkpoint after %d records: %w", processed, err)
	}
	r.log.Info("checkpoint", "processed", processed, "results", len(results))
	return nil
}

// backoffBase controls the base duration for exponential backoff between
// attempts of one record. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls the extractor up to maxRetries+1 times with
// exponential backoff, returning the number of attempts made.
func callWithRetry(ctx context.Context, ex Extractor, messages []prompt.Message, maxRetries int) (map[string]json.RawMessage, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return nil, attempts, lastErr
			case <-time.After(backoff):
			}
		}

		attempts++
		fields, err := ex.Extract(ctx, messages)
		if err == nil {
			return fields, attempts, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, attempts, lastErr
}
