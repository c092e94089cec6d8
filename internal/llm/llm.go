// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm sends role-tagged conversations to a chat completion API and
// returns the text of the top candidate. Each provider implements
// Completer so the extraction client never depends on a concrete SDK.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pdiddy/pubmed-extract/internal/prompt"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// Default models per provider.
const (
	DefaultOpenAIModel    = "gpt-3.5-turbo"
	DefaultAnthropicModel = "claude-3-5-haiku-20241022"
	DefaultGeminiModel    = "gemini-1.5-flash"
)

const defaultMaxTokens = 2048

// Completer abstracts a chat completion API so tests can supply a fake.
type Completer interface {
	// Complete sends messages in order and returns the top candidate text.
	Complete(ctx context.Context, messages []prompt.Message) (string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Options configures a Completer.
type Options struct {
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature *float64

	// RateLimitRetries is the number of retries on HTTP 429. Zero disables
	// retrying.
	RateLimitRetries int

	// HTTPClient overrides the transport for HTTP backends.
	HTTPClient *http.Client
}

// OptionsFromConfig builds Options from the ai section of the config.
func OptionsFromConfig(cfg types.AIConfig, apiKey string) Options {
	return Options{
		Model:            cfg.Model,
		APIKey:           apiKey,
		BaseURL:          cfg.BaseURL,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		RateLimitRetries: cfg.RateLimitRetries,
	}
}

// New creates the Completer for provider.
func New(ctx context.Context, provider types.Provider, opts Options) (Completer, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", provider)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	switch provider {
	case types.ProviderOpenAI, "":
		return NewOpenAI(opts), nil
	case types.ProviderAnthropic:
		return NewAnthropic(opts), nil
	case types.ProviderGemini:
		return NewGemini(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider types.Provider) string {
	switch provider {
	case types.ProviderAnthropic:
		return DefaultAnthropicModel
	case types.ProviderGemini:
		return DefaultGeminiModel
	default:
		return DefaultOpenAIModel
	}
}

// StatusError reports a non-success HTTP status from a completion API.
type StatusError struct {
	Provider   types.Provider
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// EmptyResponseError reports a response with no usable candidate text.
type EmptyResponseError struct {
	Provider types.Provider
	Reason   string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s API returned no text: %s", e.Provider, e.Reason)
}

// splitSystem separates system messages from the conversation. System
// contents are joined with blank lines; the remaining messages keep their
// order and consecutive messages of the same role are merged, which the
// Anthropic and Gemini APIs require.
func splitSystem(messages []prompt.Message) (string, []prompt.Message) {
	var system string
	var convo []prompt.Message
	for _, m := range messages {
		if m.Role == prompt.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		if n := len(convo); n > 0 && convo[n-1].Role == m.Role {
			convo[n-1].Content += "\n\n" + m.Content
			continue
		}
		convo = append(convo, m)
	}
	return system, convo
}
