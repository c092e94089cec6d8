// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-extract/internal/prompt"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

func msg(role prompt.Role, content string) prompt.Message {
	return prompt.Message{Role: role, Content: content}
}

func TestSplitSystem(t *testing.T) {
	system, convo := splitSystem([]prompt.Message{
		msg(prompt.RoleSystem, "You are a helpful assistant."),
		msg(prompt.RoleUser, "example abstract"),
		msg(prompt.RoleUser, "instructions"),
		msg(prompt.RoleAssistant, `{"exposures":[]}`),
		msg(prompt.RoleSystem, "Be terse."),
		msg(prompt.RoleUser, "real abstract"),
	})

	assert.Equal(t, "You are a helpful assistant.\n\nBe terse.", system)
	assert.Equal(t, []prompt.Message{
		msg(prompt.RoleUser, "example abstract\n\ninstructions"),
		msg(prompt.RoleAssistant, `{"exposures":[]}`),
		msg(prompt.RoleUser, "real abstract"),
	}, convo)
}

func TestSplitSystemDoesNotMutateInput(t *testing.T) {
	in := []prompt.Message{msg(prompt.RoleUser, "a"), msg(prompt.RoleUser, "b")}
	_, convo := splitSystem(in)
	require.Len(t, convo, 1)
	assert.Equal(t, "a", in[0].Content)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		provider types.Provider
		opts     Options
		wantType any
		wantErr  string
	}{
		{"openai", types.ProviderOpenAI, Options{APIKey: "k"}, &OpenAI{}, ""},
		{"empty provider is openai", "", Options{APIKey: "k"}, &OpenAI{}, ""},
		{"anthropic", types.ProviderAnthropic, Options{APIKey: "k"}, &Anthropic{}, ""},
		{"missing key", types.ProviderOpenAI, Options{}, nil, "API key is required"},
		{"unknown provider", "cohere", Options{APIKey: "k"}, nil, "unknown provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(context.Background(), tt.provider, tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, c)
			assert.NoError(t, c.Close())
		})
	}
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, DefaultOpenAIModel, DefaultModel(types.ProviderOpenAI))
	assert.Equal(t, DefaultAnthropicModel, DefaultModel(types.ProviderAnthropic))
	assert.Equal(t, DefaultGeminiModel, DefaultModel(types.ProviderGemini))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "abc", max: 5, want: "abc"},
		{name: "ascii cut", in: "abcdef", max: 3, want: "abc..."},
		{name: "backs off to rune start", in: "aβγ", max: 2, want: "a..."},
		{name: "cut on rune boundary", in: "aβγ", max: 3, want: "aβ..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.max))
		})
	}

	body := strings.Repeat("β", 400)
	assert.True(t, utf8.ValidString(truncate(body, 500)))
}
