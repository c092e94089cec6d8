// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-extract/pkg/types"
)

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"s3://bucket/results.json", "bucket", "results.json", false},
		{"s3://bucket/nested/dir/results.json", "bucket", "nested/dir/results.json", false},
		{"s3://bucket", "", "", true},
		{"s3://bucket/", "", "", true},
		{"s3:///key", "", "", true},
		{"data/results.json", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestFSWriteRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "results.json")

	s := NewFS()
	require.NoError(t, s.Write(ctx, path, []byte(`[1]`)))
	require.NoError(t, s.Write(ctx, path, []byte(`[1,2]`)))

	got, err := s.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFSReadMissing(t *testing.T) {
	_, err := NewFS().Read(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFSWriteFailureKeepsPrevious(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")

	s := NewFS()
	require.NoError(t, s.Write(ctx, path, []byte(`["old"]`)))

	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	err := s.Write(ctx, path, []byte(`["new"]`))
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `["old"]`, string(got))
}

func TestFSCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "results.json")
	err := NewFS().Write(ctx, path, []byte(`[]`))
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRouterLocal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "r.json")

	r := New(types.StorageConfig{})
	require.NoError(t, r.Write(ctx, path, []byte(`{}`)))
	got, err := r.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))
	assert.Nil(t, r.remote, "local access must not create an S3 client")
}

func TestIsS3(t *testing.T) {
	assert.True(t, IsS3("s3://b/k"))
	assert.False(t, IsS3("/tmp/s3://b/k"))
	assert.False(t, IsS3("results.json"))
}
