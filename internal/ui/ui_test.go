// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/pubmed-extract/internal/extract"
	"github.com/pdiddy/pubmed-extract/internal/ledger"
)

func TestSummary(t *testing.T) {
	out := Summary(extract.BatchSummary{Extracted: 12, Skipped: 3, APIErrors: 2, ParseErrors: 1, Checkpoints: 4}, "results.json")
	for _, want := range []string{"Extracted", "12", "Skipped", "API errors", "Parse errors", "Checkpoints", "results.json"} {
		assert.Contains(t, out, want)
	}
}

func TestRuns(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	out := Runs([]ledger.RunInfo{
		{
			ID: "0c4e9a71-1111-2222-3333-444455556666", Command: "extract", Template: "exposures",
			StartedAt: start, FinishedAt: &end, State: ledger.StateCompleted,
			Summary: extract.BatchSummary{Extracted: 10, Skipped: 2, APIErrors: 1},
		},
		{ID: "short", Command: "resume", Template: "affiliation", StartedAt: start, State: ledger.StateRunning},
	})

	assert.Contains(t, out, "0c4e9a71")
	assert.NotContains(t, out, "0c4e9a71-1111")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "affiliation")
}

func TestFailed(t *testing.T) {
	assert.Contains(t, Failed(0, "abc"), "no failed records")
	assert.Contains(t, Failed(3, "0c4e9a71-1111"), "resume --run 0c4e9a71")
}
