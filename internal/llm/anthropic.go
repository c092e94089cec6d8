// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/pubmed-extract/internal/prompt"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// Anthropic calls the Claude Messages API through the official SDK.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	temp      *float64
}

// NewAnthropic creates an Anthropic backend. The SDK's own retry loop is
// bounded by Options.RateLimitRetries.
func NewAnthropic(opts Options) *Anthropic {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.RateLimitRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	model := opts.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(model),
		maxTokens: int64(opts.MaxTokens),
		temp:      opts.Temperature,
	}
}

// Complete moves system messages into the system prompt, merges adjacent
// same-role messages, and returns the concatenated text blocks.
func (a *Anthropic) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	system, convo := splitSystem(messages)
	if len(convo) == 0 {
		return "", fmt.Errorf("anthropic: conversation has no user message")
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if a.temp != nil {
		params.Temperature = anthropic.Float(*a.temp)
	}
	for _, m := range convo {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == prompt.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Provider: types.ProviderAnthropic, StatusCode: apiErr.StatusCode, Body: truncate(apiErr.Error(), 500)}
		}
		return "", fmt.Errorf("calling anthropic API: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", &EmptyResponseError{Provider: types.ProviderAnthropic, Reason: "no text content blocks"}
	}
	return text, nil
}

// Close implements Completer.
func (a *Anthropic) Close() error { return nil }
