// Package llm wraps the chat and embedding providers behind two small
// interfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fastctx/fastctx/pkg/config"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// OpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

var (
	// ErrEmptyResponse is returned when the provider answers without content.
	ErrEmptyResponse = errors.New("llm returned no choices")
	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Generator produces a completion for a single prompt
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Embedder turns text into vectors
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Options are per-call generation settings
type Options struct {
	Temperature float64
	MaxTokens   int
	System      string
}

// Option mutates Options
type Option func(*Options)

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = t }
}

// WithMaxTokens caps the completion length
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithSystem sets the system prompt
func WithSystem(s string) Option {
	return func(o *Options) { o.System = s }
}

// Apply folds opts over the defaults (temperature 0, no token cap).
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// headerTransport adds fixed headers to every request
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	for k, v := range t.headers {
		out.Header.Set(k, v)
	}
	return t.base.RoundTrip(out)
}

func openRouterClient() *http.Client {
	return &http.Client{
		Timeout: 120 * time.Second,
		Transport: &headerTransport{
			base: http.DefaultTransport,
			headers: map[string]string{
				"HTTP-Referer": "http://localhost",
				"X-Title":      "FastCTX",
			},
		},
	}
}

// New builds the generator for cfg.LLMProvider
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Generator, error) {
	logger = logger.With().Str("component", "llm").Str("provider", cfg.LLMProvider).Logger()

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		client, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.GeminiAPIKey),
			googleai.WithDefaultModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		logger.Info().Str("model", cfg.LLMModel).Msg("Initialized LLM")
		return NewLangchainGenerator(client, logger), nil

	case config.ProviderOpenRouter:
		client, err := lcopenai.New(
			lcopenai.WithToken(cfg.OpenRouterAPIKey),
			lcopenai.WithModel(cfg.LLMModel),
			lcopenai.WithBaseURL(OpenRouterBaseURL),
			lcopenai.WithHTTPClient(openRouterClient()),
		)
		if err != nil {
			return nil, fmt.Errorf("openrouter client: %w", err)
		}
		logger.Info().Str("model", cfg.LLMModel).Msg("Initialized LLM")
		return NewLangchainGenerator(client, logger), nil

	case config.ProviderOpenAI:
		logger.Info().Str("model", cfg.LLMModel).Msg("Initialized LLM")
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, logger), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.LLMProvider)
}

// NewEmbedder builds the embedder for cfg.LLMProvider. OpenRouter embeds
// through its OpenAI-compatible endpoint with the OpenRouter key.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		opts := []googleai.Option{googleai.WithAPIKey(cfg.GeminiAPIKey)}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, googleai.WithDefaultEmbeddingModel(cfg.EmbeddingModel))
		}
		client, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini embedding client: %w", err)
		}
		return newEmbedder(client)

	case config.ProviderOpenRouter, config.ProviderOpenAI:
		client, err := lcopenai.New(embeddingOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("%s embedding client: %w", cfg.LLMProvider, err)
		}
		return newEmbedder(client)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.LLMProvider)
}

// embeddingEndpoint returns the token and base URL the OpenAI-compatible
// embedder talks to. An empty base URL means the OpenAI default.
func embeddingEndpoint(cfg *config.Config) (token, baseURL string) {
	if cfg.LLMProvider == config.ProviderOpenRouter {
		return cfg.OpenRouterAPIKey, OpenRouterBaseURL
	}
	return cfg.OpenAIAPIKey, cfg.OpenAIBaseURL
}

func embeddingOptions(cfg *config.Config) []lcopenai.Option {
	token, baseURL := embeddingEndpoint(cfg)
	opts := []lcopenai.Option{lcopenai.WithToken(token)}
	if baseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(baseURL))
	}
	if cfg.LLMProvider == config.ProviderOpenRouter {
		opts = append(opts, lcopenai.WithHTTPClient(openRouterClient()))
	}
	if cfg.EmbeddingModel != "" {
		opts = append(opts, lcopenai.WithEmbeddingModel(cfg.EmbeddingModel))
	}
	return opts
}

func newEmbedder(client embeddings.EmbedderClient) (Embedder, error) {
	e, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return e, nil
}
