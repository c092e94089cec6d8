// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint persists the result collection. Every flush rewrites
// the whole collection so the destination always holds a complete, valid
// JSON array.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/pdiddy/pubmed-extract/internal/storage"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// ErrLocked is returned by Lock when another process holds the output.
var ErrLocked = errors.New("output is locked by another run")

// WriteError reports a failed flush. The run that hit it must stop.
type WriteError struct {
	Location string
	Cause    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing checkpoint %s: %v", e.Location, e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

// Writer flushes result collections to one location.
type Writer struct {
	store    storage.Store
	location string
	lock     *flock.Flock
}

// New returns a Writer for location.
func New(store storage.Store, location string) *Writer {
	return &Writer{store: store, location: location}
}

// Location returns the destination.
func (w *Writer) Location() string {
	return w.location
}

// Lock takes an advisory lock on <location>.lock so two runs cannot share
// one output. It is a no-op for s3:// destinations.
func (w *Writer) Lock() error {
	if storage.IsS3(w.location) {
		return nil
	}
	lockPath := w.location + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring output lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", w.location, ErrLocked)
	}
	w.lock = lock
	return nil
}

// Unlock releases the lock taken by Lock and removes the lock file.
func (w *Writer) Unlock() error {
	if w.lock == nil {
		return nil
	}
	err := w.lock.Unlock()
	_ = os.Remove(w.lock.Path())
	w.lock = nil
	return err
}

// Flush writes the full collection. Failures are *WriteError.
func (w *Writer) Flush(ctx context.Context, results []types.ExtractionResult) error {
	data, err := Marshal(results)
	if err != nil {
		return &WriteError{Location: w.location, Cause: err}
	}
	if err := w.store.Write(ctx, w.location, data); err != nil {
		return &WriteError{Location: w.location, Cause: err}
	}
	return nil
}

// Marshal encodes results as an indented JSON array. A nil collection
// encodes as [].
func Marshal(results []types.ExtractionResult) ([]byte, error) {
	if results == nil {
		results = []types.ExtractionResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling results: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads a collection written by Flush, taking each identifier from
// idKey. A missing location yields an empty collection.
func Load(ctx context.Context, store storage.Store, location, idKey string) ([]types.ExtractionResult, error) {
	data, err := store.Read(ctx, location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []types.ExtractionResult{}, nil
		}
		return nil, fmt.Errorf("reading checkpoint %s: %w", location, err)
	}
	return Parse(data, idKey)
}

// Parse decodes a serialized collection.
func Parse(data []byte, idKey string) ([]types.ExtractionResult, error) {
	var objs []map[string]json.RawMessage
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	results := make([]types.ExtractionResult, 0, len(objs))
	for i, obj := range objs {
		if obj == nil {
			return nil, fmt.Errorf("checkpoint element %d is null", i)
		}
		res, err := types.ResultFromObject(idKey, obj)
		if err != nil {
			return nil, fmt.Errorf("checkpoint element %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}
