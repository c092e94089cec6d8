// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-extract/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		dirs  []string
		want  Secrets
	}{
		{
			name: "trims provider and storage keys",
			files: map[string]string{
				"openai-api-key":        "  sk-abc123  \n",
				"gemini-api-key":        "gk_xyz789",
				"aws-access-key-id":     "AKIAEXAMPLE\n",
				"aws-secret-access-key": "\tsecret\n",
			},
			want: Secrets{
				"openai-api-key":        "sk-abc123",
				"gemini-api-key":        "gk_xyz789",
				"aws-access-key-id":     "AKIAEXAMPLE",
				"aws-secret-access-key": "secret",
			},
		},
		{
			name:  "drops blank values",
			files: map[string]string{"anthropic-api-key": "ak", "empty": "", "blank": " \n\t "},
			want:  Secrets{"anthropic-api-key": "ak"},
		},
		{
			name:  "ignores dotfiles and directories",
			files: map[string]string{".gitkeep": "", ".hidden": "x", "openai-api-key": "sk-real"},
			dirs:  []string{"nested"},
			want:  Secrets{"openai-api-key": "sk-real"},
		},
		{
			name: "empty directory",
			want: Secrets{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			for _, d := range tt.dirs {
				require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o755))
			}

			got, err := Load(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), ".secrets"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadSkipsUnreadableFile(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	writeFile(t, dir, "openai-api-key", "sk-ok")
	locked := filepath.Join(dir, "anthropic-api-key")
	require.NoError(t, os.WriteFile(locked, []byte("ak"), 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Secrets{"openai-api-key": "sk-ok"}, got)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestAPIKeyPrecedence(t *testing.T) {
	s := Secrets{"openai-api-key": "from-file", "anthropic-api-key": "ak-file"}

	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	tests := []struct {
		name     string
		provider types.Provider
		explicit string
		want     string
		wantErr  bool
	}{
		{"explicit wins", types.ProviderOpenAI, "from-config", "from-config", false},
		{"env beats file", types.ProviderOpenAI, "", "from-env", false},
		{"file fallback", types.ProviderAnthropic, "", "ak-file", false},
		{"nothing configured", types.ProviderGemini, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.APIKey(tt.provider, tt.explicit)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoAPIKey)
				assert.Contains(t, err.Error(), "gemini-api-key")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "PUBMED_EXTRACT_TEST_KEY=from-dotenv\nPUBMED_EXTRACT_TEST_SET=ignored\n")

	t.Setenv("PUBMED_EXTRACT_TEST_SET", "already-set")
	t.Setenv("PUBMED_EXTRACT_TEST_KEY", "")
	os.Unsetenv("PUBMED_EXTRACT_TEST_KEY")

	require.NoError(t, LoadEnv(filepath.Join(dir, ".env")))
	t.Cleanup(func() { os.Unsetenv("PUBMED_EXTRACT_TEST_KEY") })

	assert.Equal(t, "from-dotenv", os.Getenv("PUBMED_EXTRACT_TEST_KEY"))
	assert.Equal(t, "already-set", os.Getenv("PUBMED_EXTRACT_TEST_SET"), "existing variables are not overridden")

	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))
}
