// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-extract/internal/checkpoint"
	"github.com/pdiddy/pubmed-extract/internal/ledger"
	"github.com/pdiddy/pubmed-extract/internal/storage"
)

// resetFlags clears flag state left by a previous Execute in this process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// affiliationServer answers chat completions with a fixed affiliation, or
// with HTTP 500 for prompts mentioning failOn while failing is set.
func affiliationServer(t *testing.T, failOn string, failing *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var all strings.Builder
		for _, m := range req.Messages {
			all.WriteString(m.Content)
		}
		if failing.Load() && strings.Contains(all.String(), failOn) {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
			return
		}

		reply := `{"institution":"University of Bristol","country":"UK"}`
		if strings.Contains(all.String(), "Karolinska") {
			reply = `{"institution":"Karolinska Institutet","country":"Sweden"}`
		}
		content, _ := json.Marshal(reply)
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%s},"finish_reason":"stop"}]}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractMissingResumeExport(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	ctx := context.Background()
	dir := t.TempDir()

	input := filepath.Join(dir, "pubmed.json")
	require.NoError(t, os.WriteFile(input, []byte(`[
		{"identifier":"A","text":"abstract a","affiliation":"Dept of Epidemiology, University of Bristol, UK"},
		{"identifier":"B","text":"abstract b"},
		{"identifier":"C","text":"abstract c","affiliation":"Karolinska Institutet, Stockholm, Sweden"}
	]`), 0o644))
	output := filepath.Join(dir, "affil.json")
	ledgerPath := filepath.Join(dir, "runs.db")

	var failing atomic.Bool
	failing.Store(true)
	srv := affiliationServer(t, "Karolinska", &failing)

	// First pass: A extracted, B skipped, C fails.
	out, err := execute(t, "extract",
		"--input", input, "--output", output, "--template", "affiliation",
		"--base-url", srv.URL, "--every", "1", "--ledger", ledgerPath)
	require.NoError(t, err)
	assert.Contains(t, out, "extracted A")
	assert.Contains(t, out, "skipped B")
	assert.Contains(t, out, "failed  C")

	results, err := checkpoint.Load(ctx, storage.NewFS(), output, "identifier")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Identifier)

	// Missing lists every record without a result, skipped ones included.
	out, err = execute(t, "missing", "--input", input, "--results", output)
	require.NoError(t, err)
	assert.Equal(t, "B\nC\n", out)

	// The ledger knows which records failed.
	l, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	runs, err := l.Runs(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.StateCompleted, runs[0].State)
	assert.Equal(t, 1, runs[0].Summary.APIErrors)

	out, err = execute(t, "runs", "--ledger", ledgerPath, "--failed", runs[0].ID[:8])
	require.NoError(t, err)
	assert.Equal(t, "C\n", out)

	out, err = execute(t, "runs", "--ledger", ledgerPath)
	require.NoError(t, err)
	assert.Contains(t, out, "extract")

	// Resume the failed run once the API recovers.
	failing.Store(false)
	out, err = execute(t, "resume",
		"--input", input, "--output", output, "--template", "affiliation",
		"--base-url", srv.URL, "--ledger", ledgerPath, "--run", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "extracted C")

	results, err = checkpoint.Load(ctx, storage.NewFS(), output, "identifier")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Identifier)
	assert.Equal(t, "C", results[1].Identifier)

	out, err = execute(t, "export", "--results", output, "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "identifier,institution,country\n"+
		"A,University of Bristol,UK\n"+
		"C,Karolinska Institutet,Sweden\n", out)

	xlsx := filepath.Join(dir, "affil.xlsx")
	_, err = execute(t, "export", "--results", output, "--format", "xlsx", "--out", xlsx)
	require.NoError(t, err)
	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestExtractStrictFailsOnErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	dir := t.TempDir()
	input := filepath.Join(dir, "pubmed.json")
	require.NoError(t, os.WriteFile(input, []byte(`[{"identifier":"X","text":"abstract x","affiliation":"Karolinska Institutet"}]`), 0o644))
	output := filepath.Join(dir, "out.json")

	var failing atomic.Bool
	failing.Store(true)
	srv := affiliationServer(t, "Karolinska", &failing)

	_, err := execute(t, "extract", "--input", input, "--output", output,
		"--template", "affiliation", "--base-url", srv.URL, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 record(s) failed")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data), "the final flush writes an empty collection")
}

func TestCommandArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"extract without input", []string{"extract", "--output", "x.json"}, "no input collections"},
		{"resume without selector", []string{"resume", "--input", "in.json", "--output", "x.json"}, "nothing to resume"},
		{"resume run without ledger", []string{"resume", "--input", "in.json", "--output", "x.json", "--run", "abc"}, "needs a ledger"},
		{"missing without results", []string{"missing", "--input", "in.json"}, "no result collection"},
		{"export bad format", []string{"export", "--results", "r.json", "--format", "pdf"}, "unknown export format"},
		{"runs without ledger", []string{"runs"}, "no ledger"},
		{"unknown template", []string{"templates", "nope"}, "unknown template"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTemplatesCommand(t *testing.T) {
	out, err := execute(t, "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "exposures")
	assert.Contains(t, out, "affiliation")

	out, err = execute(t, "templates", "affiliation", "--text", "Univ of Oslo, Norway")
	require.NoError(t, err)
	assert.Contains(t, out, "# affiliation (input: affiliation)")
	assert.Contains(t, out, "Univ of Oslo, Norway")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "pubmed-extract dev\n", out)
}
