package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// LangchainGenerator drives any langchaingo chat model
type LangchainGenerator struct {
	model  llms.Model
	logger zerolog.Logger
}

// NewLangchainGenerator wraps model
func NewLangchainGenerator(model llms.Model, logger zerolog.Logger) *LangchainGenerator {
	return &LangchainGenerator{model: model, logger: logger}
}

// Generate sends prompt as a human message, preceded by the system prompt
// when one is set.
func (g *LangchainGenerator) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := Apply(opts...)

	messages := make([]llms.MessageContent, 0, 2)
	if o.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, o.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{llms.WithTemperature(o.Temperature)}
	if o.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.MaxTokens))
	}

	resp, err := g.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	g.logger.Debug().Str("stop_reason", resp.Choices[0].StopReason).Msg("Received completion")
	return resp.Choices[0].Content, nil
}
