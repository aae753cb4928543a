// Package providers wires the collaborator interfaces (internal/collaborator)
// to concrete external services: an OpenAI-compatible chat model for prompt
// refinement, a Gemini vision model for pairwise comparison, and a Bedrock
// image model for generation.
package providers

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
)

// OpenAITextModel implements collaborator.TextModel against an
// OpenAI-compatible chat completions endpoint.
type OpenAITextModel struct {
	client *openai.Client
	model  string
}

// NewOpenAITextModel builds an OpenAITextModel. baseURL may be empty to use
// the public OpenAI API, or set to point at a compatible endpoint.
func NewOpenAITextModel(apiKey, baseURL, model string) *OpenAITextModel {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAITextModel{client: openai.NewClientWithConfig(cfg), model: model}
}

// GenerateChat implements collaborator.TextModel.
func (m *OpenAITextModel) GenerateChat(ctx context.Context, system, user string, opts collaborator.CompletionOptions) (*collaborator.CompletionResult, error) {
	model := m.model
	if model == "" {
		model = openai.GPT4oMini
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai text model: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai text model: no choices in response")
	}

	return &collaborator.CompletionResult{
		Text: resp.Choices[0].Message.Content,
		Usage: collaborator.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
