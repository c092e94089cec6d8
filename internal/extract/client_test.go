// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-extract/internal/prompt"
)

// fakeCompleter returns a fixed response or error.
type fakeCompleter struct {
	text  string
	err   error
	block bool
	got   []prompt.Message
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	f.got = messages
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func (f *fakeCompleter) Close() error { return nil }

func exposuresTmpl(t *testing.T) *prompt.Template {
	t.Helper()
	tmpl, err := prompt.Builtin("exposures")
	require.NoError(t, err)
	return tmpl
}

func TestClientExtract(t *testing.T) {
	valid := `{"exposures":[{"id":"1","trait":"coffee","category":"Diet"}],"outcomes":[{"id":1,"trait":"CHD","category":"Cardiovascular"}],"methods":["mendelian randomization"],"results":{"null":1,"non-null":2}}`

	tests := []struct {
		name      string
		text      string
		err       error
		wantKind  Status
		wantKeys  []string
		violation string
	}{
		{name: "valid object", text: valid, wantKeys: []string{"exposures", "outcomes", "methods", "results"}},
		{name: "surrounding whitespace", text: "\n  " + valid + "\n", wantKeys: []string{"exposures", "outcomes", "methods", "results"}},
		{name: "code fenced", text: "```json\n" + valid + "\n```", wantKind: StatusParseError},
		{name: "prose prefix", text: "Here is the JSON: " + valid, wantKind: StatusParseError},
		{name: "array", text: `[{"exposures":[]}]`, wantKind: StatusParseError},
		{name: "null", text: `null`, wantKind: StatusParseError},
		{name: "trailing garbage", text: valid + " thanks!", wantKind: StatusParseError},
		{name: "empty", text: "", wantKind: StatusParseError},
		{name: "missing outcomes", text: `{"exposures":[]}`, wantKind: StatusParseError, violation: "outcomes"},
		{name: "wrong tally type", text: `{"exposures":[],"outcomes":[],"results":{"null":"one"}}`, wantKind: StatusParseError, violation: "results.null"},
		{name: "api failure", err: errors.New("connection reset"), wantKind: StatusAPIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := exposuresTmpl(t)
			fc := &fakeCompleter{text: tt.text, err: tt.err}
			c, err := NewClient(fc, tmpl, time.Second)
			require.NoError(t, err)

			msgs := tmpl.Render("An abstract.")
			fields, err := c.Extract(context.Background(), msgs)
			assert.Equal(t, msgs, fc.got)

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, ErrorKind(err))
				assert.Nil(t, fields)
				if tt.violation != "" {
					var pe *ParseError
					require.True(t, errors.As(err, &pe))
					assert.Contains(t, pe.Error(), tt.violation)
				}
				return
			}
			require.NoError(t, err)
			for _, k := range tt.wantKeys {
				assert.Contains(t, fields, k)
			}
		})
	}
}

func TestClientTimeoutIsAPIError(t *testing.T) {
	c, err := NewClient(&fakeCompleter{block: true}, nil, 20*time.Millisecond)
	require.NoError(t, err)

	_, err = c.Extract(context.Background(), []prompt.Message{{Role: prompt.RoleUser, Content: "x"}})
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "timed out")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientWithoutSchemaAcceptsAnyObject(t *testing.T) {
	c, err := NewClient(&fakeCompleter{text: `{"anything":true}`}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.timeout)

	fields, err := c.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(fields["anything"]))
}

func TestNewClientRejectsBadSchema(t *testing.T) {
	tmpl, err := prompt.Parse([]byte(`
name: bad
input: text
schema: '{"type": 12}'
messages:
  - role: user
    variable: true
`))
	require.NoError(t, err)
	_, err = NewClient(&fakeCompleter{}, tmpl, 0)
	assert.ErrorContains(t, err, "compiling schema")
}

func TestParseErrorMessage(t *testing.T) {
	pe := &ParseError{Message: "response does not match schema", Violations: []string{"(root): outcomes is required", "results.null: Invalid type"}}
	assert.Equal(t, "parse error: response does not match schema: (root): outcomes is required; results.null: Invalid type", pe.Error())

	cause := errors.New("boom")
	ae := &APIError{Message: "completion request", Cause: cause}
	assert.Equal(t, "API call failed: completion request: boom", ae.Error())
	assert.ErrorIs(t, ae, cause)
}

func TestExcerptKeepsWholeRunes(t *testing.T) {
	short := "not json"
	assert.Equal(t, short, excerpt(short))

	// 501 bytes of two-byte runes puts the limit mid-rune.
	reply := "x" + strings.Repeat("é", maxResponseExcerpt/2)
	got := excerpt(reply)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "x"+strings.Repeat("é", maxResponseExcerpt/2-1)+"...", got)
}
