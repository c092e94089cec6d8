// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"

	"github.com/pdiddy/pubmed-extract/internal/source"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// ResumeInput describes a resume run.
type ResumeInput struct {
	// Records is the full input collection.
	Records []types.Record

	// Missing selects the records to reprocess.
	Missing source.MissingSet

	// Previous is the prior result collection.
	Previous []types.ExtractionResult

	// Policy decides how Previous and the new results combine.
	Policy types.MergePolicy
}

// Resume reprocesses the records named by in.Missing and merges the new
// results into in.Previous. Every checkpoint written during the run holds
// the merged collection, so the destination never loses prior results.
func Resume(ctx context.Context, r *Runner, in ResumeInput) ([]types.ExtractionResult, BatchSummary, error) {
	policy := in.Policy
	if policy == "" {
		policy = types.MergeAppend
	}
	if policy != types.MergeAppend && policy != types.MergeReplace {
		return nil, BatchSummary{}, fmt.Errorf("unknown merge policy %q", policy)
	}

	todo := source.Filter(in.Records, in.Missing)
	r.log.Info("resuming", "missing", len(in.Missing), "matched", len(todo), "previous", len(in.Previous), "policy", string(policy))

	merging := *r
	merging.flusher = &mergeFlusher{previous: in.Previous, policy: policy, next: r.flusher}

	fresh, summary, err := merging.Run(ctx, todo)
	return Merge(in.Previous, fresh, policy), summary, err
}

// mergeFlusher writes Merge(previous, partial) on every flush.
type mergeFlusher struct {
	previous []types.ExtractionResult
	policy   types.MergePolicy
	next     Flusher
}

func (m *mergeFlusher) Flush(ctx context.Context, results []types.ExtractionResult) error {
	return m.next.Flush(ctx, Merge(m.previous, results, m.policy))
}

// Merge combines a prior collection with new results.
//
// MergeAppend concatenates, keeping duplicates. MergeReplace drops every
// previous entry whose identifier appears in fresh; the surviving previous
// entries keep their order and the fresh entries follow.
func Merge(previous, fresh []types.ExtractionResult, policy types.MergePolicy) []types.ExtractionResult {
	out := make([]types.ExtractionResult, 0, len(previous)+len(fresh))
	if policy != types.MergeReplace {
		out = append(out, previous...)
		return append(out, fresh...)
	}

	replaced := make(map[string]struct{}, len(fresh))
	for _, res := range fresh {
		replaced[res.Identifier] = struct{}{}
	}
	for _, res := range previous {
		if _, ok := replaced[res.Identifier]; !ok {
			out = append(out, res)
		}
	}
	return append(out, fresh...)
}
