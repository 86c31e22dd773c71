// Package qa answers natural language questions over the stored graph and
// retrieves similar chunks for context.
package qa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fastctx/fastctx/pkg/cache"
	"github.com/fastctx/fastctx/pkg/graphstore"
	"github.com/fastctx/fastctx/pkg/llm"
	"github.com/fastctx/fastctx/pkg/metrics"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/rs/zerolog"
)

const (
	// DefaultK is the number of rows or chunks used when none is requested.
	DefaultK = 4
	// maxAnswerRows caps rows handed to the answer prompt regardless of k.
	maxAnswerRows = 50
)

var (
	// ErrUnsafeCypher is returned when generated Cypher would write.
	ErrUnsafeCypher = errors.New("generated Cypher is not read-only")
	// ErrNoEmbedder is returned by Context when no embedder is configured.
	ErrNoEmbedder = errors.New("no embedder configured")
	// ErrEmptyCypher is returned when the model produced no statement.
	ErrEmptyCypher = errors.New("no Cypher statement generated")
)

var cypherFence = regexp.MustCompile("(?s)```(?:cypher|Cypher|sql)?\\s*\\n?(.*?)```")

// Chain ties the graph store, the LLM and the cache together
type Chain struct {
	store    graphstore.Store
	gen      llm.Generator
	embedder llm.Embedder
	cache    cache.Cache
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewChain creates a chain. embedder may be nil, which disables Context.
func NewChain(store graphstore.Store, gen llm.Generator, embedder llm.Embedder, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Chain {
	return &Chain{
		store:    store,
		gen:      gen,
		embedder: embedder,
		cache:    c,
		ttl:      ttl,
		logger:   logger.With().Str("component", "qa").Logger(),
	}
}

func answerKey(question string, k int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", k, question)))
	return cache.KeyAnswer + hex.EncodeToString(sum[:8])
}

func lookup[T any](ctx context.Context, c cache.Cache, kind, key string) (T, bool) {
	v, ok := cache.Fetch[T](ctx, c, key)
	metrics.CacheLookups.WithLabelValues(kind, metrics.CacheResult(ok)).Inc()
	return v, ok
}

// Schema returns the graph schema, cached until the next write
func (c *Chain) Schema(ctx context.Context) (*models.Schema, error) {
	if cached, ok := lookup[*models.Schema](ctx, c.cache, "schema", cache.KeySchema); ok && cached != nil {
		return cached, nil
	}

	schema, err := c.store.Schema(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, cache.KeySchema, schema, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache schema")
	}
	return schema, nil
}

// Graph returns a bounded snapshot of the stored graph, cached per limit
func (c *Chain) Graph(ctx context.Context, limit int) (*models.GraphSnapshot, error) {
	key := fmt.Sprintf("%s%d", cache.KeySnapshot, limit)
	if cached, ok := lookup[*models.GraphSnapshot](ctx, c.cache, "snapshot", key); ok && cached != nil {
		return cached, nil
	}

	snapshot, err := c.store.Graph(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, snapshot, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache graph snapshot")
	}
	return snapshot, nil
}

func (c *Chain) generate(ctx context.Context, purpose, prompt string, opts ...llm.Option) (string, error) {
	out, err := c.gen.Generate(ctx, prompt, opts...)
	metrics.LLMCalls.WithLabelValues(purpose, metrics.Result(err)).Inc()
	return out, err
}

// CleanCypher strips code fences and surrounding prose from a generated
// statement.
func CleanCypher(s string) string {
	if m := cypherFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "cypher")
	s = strings.TrimPrefix(s, "Cypher:")
	return strings.TrimSuffix(strings.TrimSpace(s), ";")
}

// Ask generates Cypher for question, runs it and phrases an answer from at
// most k result rows.
func (c *Chain) Ask(ctx context.Context, question string, k int) (*models.QAResponse, error) {
	if k <= 0 {
		k = DefaultK
	}
	if k > maxAnswerRows {
		k = maxAnswerRows
	}

	key := answerKey(question, k)
	if cached, ok := lookup[*models.QAResponse](ctx, c.cache, "answer", key); ok && cached != nil {
		return cached, nil
	}

	schema, err := c.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	reply, err := c.generate(ctx, "cypher", fmt.Sprintf(cypherPrompt, schema.Text(), question), llm.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("generate cypher: %w", err)
	}
	cypher := CleanCypher(reply)
	if cypher == "" {
		return nil, ErrEmptyCypher
	}
	if !graphstore.IsReadOnly(cypher) {
		c.logger.Warn().Str("cypher", cypher).Msg("Rejected generated write query")
		return nil, ErrUnsafeCypher
	}
	c.logger.Debug().Str("cypher", cypher).Msg("Generated Cypher")

	rows, err := c.store.RunQuery(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("run generated cypher: %w", err)
	}
	if len(rows) > k {
		rows = rows[:k]
	}

	contextJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}

	answer, err := c.generate(ctx, "answer", fmt.Sprintf(answerPrompt, contextJSON, question), llm.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	resp := &models.QAResponse{
		Answer: strings.TrimSpace(answer),
		IntermediateSteps: []map[string]interface{}{
			{"query": cypher},
			{"context": rows},
		},
	}
	if err := c.cache.Set(ctx, key, resp, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache answer")
	}
	return resp, nil
}

// Context returns the k chunks most similar to query
func (c *Chain) Context(ctx context.Context, query string, k int) ([]models.ContextItem, error) {
	if c.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if k <= 0 {
		k = DefaultK
	}

	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := c.store.SimilaritySearch(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	items := make([]models.ContextItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, models.ContextItem{
			Content: h.Text,
			Metadata: map[string]interface{}{
				"id":     h.ID,
				"source": h.Source,
				"score":  h.Score,
			},
		})
	}
	return items, nil
}

// ExampleQueries asks the LLM for n question/Cypher pairs grounded in the
// current schema. Pairs whose Cypher would write are dropped.
func (c *Chain) ExampleQueries(ctx context.Context, n int) ([]models.ExampleQuery, error) {
	if n <= 0 {
		n = 5
	}

	key := fmt.Sprintf("%s%d", cache.KeyExamples, n)
	if cached, ok := lookup[[]models.ExampleQuery](ctx, c.cache, "examples", key); ok {
		return cached, nil
	}

	schema, err := c.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	reply, err := c.generate(ctx, "examples", fmt.Sprintf(examplesPrompt, schema.Text(), n), llm.WithTemperature(0.2))
	if err != nil {
		return nil, fmt.Errorf("generate examples: %w", err)
	}

	parsed, err := llm.ExtractJSONAs[struct {
		Examples []models.ExampleQuery `json:"examples"`
	}](reply)
	if err != nil {
		return nil, fmt.Errorf("parse examples: %w", err)
	}

	examples := make([]models.ExampleQuery, 0, n)
	for _, ex := range parsed.Examples {
		ex.Cypher = CleanCypher(ex.Cypher)
		if ex.Question == "" || ex.Cypher == "" || !graphstore.IsReadOnly(ex.Cypher) {
			continue
		}
		examples = append(examples, ex)
		if len(examples) == n {
			break
		}
	}

	if err := c.cache.Set(ctx, key, examples, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache examples")
	}
	return examples, nil
}
