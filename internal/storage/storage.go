// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package storage reads and writes whole objects addressed by location:
// a local filesystem path or an s3://bucket/key URI.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pdiddy/pubmed-extract/pkg/types"
)

const s3Scheme = "s3://"

// Store reads and writes whole objects. Read wraps fs.ErrNotExist when the
// object does not exist. Write replaces the object in one step: readers see
// either the previous content or the new content, never a partial write.
type Store interface {
	Read(ctx context.Context, location string) ([]byte, error)
	Write(ctx context.Context, location string, data []byte) error
}

// IsS3 reports whether location is an s3:// URI.
func IsS3(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// ParseS3URI splits an s3://bucket/key URI.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3(uri) {
		return "", "", fmt.Errorf("not an s3 URI: %s", uri)
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URI must be s3://bucket/key: %s", uri)
	}
	return bucket, key, nil
}

// Router dispatches s3:// locations to an S3 store and everything else to
// the local filesystem. The S3 client is created on first use so runs that
// never touch S3 need no AWS configuration.
type Router struct {
	local *FS
	cfg   types.StorageConfig

	mu     sync.Mutex
	remote Store
}

// New returns a Router for the given S3 settings.
func New(cfg types.StorageConfig) *Router {
	return &Router{local: NewFS(), cfg: cfg}
}

// Read implements Store.
func (r *Router) Read(ctx context.Context, location string) ([]byte, error) {
	s, err := r.pick(ctx, location)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, location)
}

// Write implements Store.
func (r *Router) Write(ctx context.Context, location string, data []byte) error {
	s, err := r.pick(ctx, location)
	if err != nil {
		return err
	}
	return s.Write(ctx, location, data)
}

func (r *Router) pick(ctx context.Context, location string) (Store, error) {
	if !IsS3(location) {
		return r.local, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remote == nil {
		s3Store, err := NewS3(ctx, r.cfg)
		if err != nil {
			return nil, err
		}
		r.remote = s3Store
	}
	return r.remote, nil
}
