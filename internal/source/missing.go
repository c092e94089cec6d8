// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// MissingSet is the set of identifiers a resume run is scoped to.
type MissingSet map[string]struct{}

// NewMissingSet builds a set from identifiers.
func NewMissingSet(ids ...string) MissingSet {
	m := make(MissingSet, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// Contains reports whether id is in the set.
func (m MissingSet) Contains(id string) bool {
	_, ok := m[id]
	return ok
}

// ReadMissing reads newline-delimited identifiers. Trailing whitespace is
// trimmed from each line and blank lines are ignored.
func ReadMissing(r io.Reader) (MissingSet, error) {
	m := make(MissingSet)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		id := strings.TrimRight(sc.Text(), " \t\r\n\v\f")
		if id == "" {
			continue
		}
		m[id] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading missing identifiers: %w", err)
	}
	return m, nil
}

// ParseMissing is ReadMissing over a byte slice.
func ParseMissing(data []byte) (MissingSet, error) {
	return ReadMissing(bytes.NewReader(data))
}

// ComputeMissing returns the identifiers present in records but absent from
// results, in record order without duplicates.
func ComputeMissing(records []types.Record, results []types.ExtractionResult) []string {
	done := make(map[string]struct{}, len(results))
	for _, r := range results {
		done[r.Identifier] = struct{}{}
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, rec := range records {
		if _, ok := done[rec.Identifier]; ok {
			continue
		}
		if _, ok := seen[rec.Identifier]; ok {
			continue
		}
		seen[rec.Identifier] = struct{}{}
		missing = append(missing, rec.Identifier)
	}
	return missing
}

// WriteMissing writes one identifier per line.
func WriteMissing(w io.Writer, ids []string) error {
	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := fmt.Fprintln(bw, id); err != nil {
			return err
		}
	}
	return bw.Flush()
}
