package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// OpenAIGenerator talks to any OpenAI-compatible chat completions API
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewOpenAIGenerator creates a generator; an empty baseURL uses OpenAI's.
func NewOpenAIGenerator(apiKey, baseURL, model string, logger zerolog.Logger) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Generate implements Generator
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := Apply(opts...)

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: float32(o.Temperature),
	}
	if o.System != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.System})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	if o.MaxTokens > 0 {
		req.MaxTokens = o.MaxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	g.logger.Debug().Str("finish_reason", string(resp.Choices[0].FinishReason)).Msg("Received completion")
	return resp.Choices[0].Message.Content, nil
}
