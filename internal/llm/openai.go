// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/pubmed-extract/internal/httputil"
	"github.com/pdiddy/pubmed-extract/internal/prompt"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// openAIBaseURL is the default Chat Completions base. Package-level var for
// test substitution.
var openAIBaseURL = "https://api.openai.com/v1"

// OpenAI calls the Chat Completions endpoint of OpenAI or any compatible
// server.
type OpenAI struct {
	opts     Options
	endpoint string
	client   *http.Client
}

// NewOpenAI creates an OpenAI backend. Options.BaseURL replaces the
// default base (the request goes to BaseURL + "/chat/completions").
func NewOpenAI(opts Options) *OpenAI {
	base := opts.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		opts:     opts,
		endpoint: strings.TrimRight(base, "/") + "/chat/completions",
		client:   client,
	}
}

// openAIRequest is the request body for the Chat Completions API.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIResponse models the parts of the response we read.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends the messages unchanged and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	reqBody := openAIRequest{
		Model:       o.opts.Model,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
		Messages:    make([]openAIMessage, len(messages)),
	}
	for i, m := range messages {
		reqBody.Messages[i] = openAIMessage{Role: string(m.Role), Content: m.Content}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.opts.APIKey)

	resp, err := httputil.DoWithRetry(ctx, o.client, req, o.opts.RateLimitRetries)
	if err != nil {
		return "", fmt.Errorf("calling openai API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Provider: types.ProviderOpenAI, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	var oResp openAIResponse
	if err := json.Unmarshal(respBody, &oResp); err != nil {
		return "", fmt.Errorf("decoding openai response: %w", err)
	}
	if len(oResp.Choices) == 0 {
		return "", &EmptyResponseError{Provider: types.ProviderOpenAI, Reason: "no choices"}
	}
	return oResp.Choices[0].Message.Content, nil
}

// Close implements Completer.
func (o *OpenAI) Close() error { return nil }

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	n := maxLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
