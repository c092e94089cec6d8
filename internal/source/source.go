// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source loads input records from persisted JSON collections and
// scopes them for resume runs.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/pubmed-extract/internal/storage"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// SourceError reports an input collection that is missing or malformed.
// It is fatal: no record is processed when loading fails.
type SourceError struct {
	Location string
	Message  string
	Cause    error
}

func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s unreadable: %s: %v", e.Location, e.Message, e.Cause)
	}
	return fmt.Sprintf("source %s unreadable: %s", e.Location, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Load reads each location as a JSON array of objects and returns the
// records in order, concatenating the arrays in argument order. Records
// without the text field are kept so positions stay stable; the batch
// runner skips them.
func Load(ctx context.Context, store storage.Store, cfg types.SourceConfig, locations ...string) ([]types.Record, error) {
	if len(locations) == 0 {
		return nil, &SourceError{Location: "(none)", Message: "no input collection given"}
	}

	var records []types.Record
	for _, loc := range locations {
		data, err := store.Read(ctx, loc)
		if err != nil {
			return nil, &SourceError{Location: loc, Message: "read failed", Cause: err}
		}
		recs, err := Parse(data, cfg)
		if err != nil {
			return nil, &SourceError{Location: loc, Message: "invalid collection", Cause: err}
		}
		records = append(records, recs...)
	}
	return records, nil
}

// Parse decodes a JSON array of objects into records using the field names
// in cfg.
func Parse(data []byte, cfg types.SourceConfig) ([]types.Record, error) {
	// Invalid byte sequences are dropped here; decoding would otherwise
	// turn them into U+FFFD before the prompt sanitizer sees them.
	data = bytes.ToValidUTF8(data, nil)

	var objects []map[string]json.RawMessage
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("expected a JSON array of objects: %w", err)
	}

	records := make([]types.Record, 0, len(objects))
	for i, obj := range objects {
		if obj == nil {
			return nil, fmt.Errorf("element %d is null", i)
		}

		id, ok := types.IdentifierFromJSON(obj[cfg.IDField])
		if !ok {
			return nil, fmt.Errorf("element %d: missing or invalid %q", i, cfg.IDField)
		}

		text, err := optionalString(obj, cfg.TextField)
		if err != nil {
			return nil, fmt.Errorf("element %d (%s): %w", i, id, err)
		}
		affil, err := optionalString(obj, cfg.AffiliationField)
		if err != nil {
			return nil, fmt.Errorf("element %d (%s): %w", i, id, err)
		}

		records = append(records, types.Record{
			Identifier:    id,
			RawIdentifier: bytes.TrimSpace(obj[cfg.IDField]),
			Text:          text,
			Affiliation:   affil,
		})
	}
	return records, nil
}

// optionalString returns nil for an absent or null field.
func optionalString(obj map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("field %q is not a string", key)
	}
	return &s, nil
}

// Filter returns the records whose identifier is in missing, preserving
// their relative order.
func Filter(records []types.Record, missing MissingSet) []types.Record {
	out := make([]types.Record, 0, len(missing))
	for _, r := range records {
		if missing.Contains(r.Identifier) {
			out = append(out, r)
		}
	}
	return out
}
