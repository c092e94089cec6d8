// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pdiddy/pubmed-extract/internal/prompt"
	"github.com/pdiddy/pubmed-extract/pkg/types"
)

// Gemini calls the Google Gemini API.
type Gemini struct {
	client *genai.Client
	opts   Options
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, opts Options) (*Gemini, error) {
	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.BaseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	return &Gemini{client: client, opts: opts}, nil
}

// Complete replays the conversation as chat history and sends the final
// user message.
func (g *Gemini) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	system, history, last, err := geminiConversation(messages)
	if err != nil {
		return "", err
	}

	model := g.client.GenerativeModel(g.opts.Model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if g.opts.Temperature != nil {
		model.SetTemperature(float32(*g.opts.Temperature))
	}
	if g.opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.opts.MaxTokens))
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("calling gemini API: %w", err)
	}
	return geminiText(resp)
}

// Close releases the underlying client connection.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// geminiConversation converts messages into a system instruction, a chat
// history, and the final user turn. Gemini names the assistant role
// "model".
func geminiConversation(messages []prompt.Message) (string, []*genai.Content, string, error) {
	system, convo := splitSystem(messages)
	if len(convo) == 0 || convo[len(convo)-1].Role != prompt.RoleUser {
		return "", nil, "", fmt.Errorf("gemini: conversation must end with a user message")
	}
	history := make([]*genai.Content, 0, len(convo)-1)
	for _, m := range convo[:len(convo)-1] {
		role := "user"
		if m.Role == prompt.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return system, history, convo[len(convo)-1].Content, nil
}

// geminiText joins the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &EmptyResponseError{Provider: types.ProviderGemini, Reason: "no candidates"}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", &EmptyResponseError{Provider: types.ProviderGemini, Reason: "no content"}
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", &EmptyResponseError{Provider: types.ProviderGemini, Reason: "no text parts"}
	}
	return strings.Join(parts, ""), nil
}
