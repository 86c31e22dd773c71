// Package ingest wires source acquisition, document loading, graph
// extraction and persistence into runnable pipelines.
package ingest

import (
	"context"
	"fmt"

	"github.com/fastctx/fastctx/pkg/cache"
	"github.com/fastctx/fastctx/pkg/document"
	"github.com/fastctx/fastctx/pkg/graphstore"
	"github.com/fastctx/fastctx/pkg/llm"
	"github.com/fastctx/fastctx/pkg/metrics"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/source"
	"github.com/rs/zerolog"
)

// Converter extracts graph documents from documents
type Converter interface {
	Convert(ctx context.Context, docs []models.Document) ([]models.GraphDocument, error)
}

// Fetcher downloads a remote repository into a temporary project
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*source.Project, error)
}

// Options sizes the pipeline
type Options struct {
	VectorDimensions int
	EmbedBatchSize   int
}

// Pipeline runs the load, extract and store stages
type Pipeline struct {
	loader    *document.Loader
	splitter  *document.Splitter
	converter Converter
	store     graphstore.Store
	embedder  llm.Embedder
	fetcher   Fetcher
	cache     cache.Cache
	opts      Options
	logger    zerolog.Logger
}

// NewPipeline assembles a pipeline. embedder may be nil when IndexCodebase
// is never used.
func NewPipeline(
	loader *document.Loader,
	splitter *document.Splitter,
	converter Converter,
	store graphstore.Store,
	embedder llm.Embedder,
	fetcher Fetcher,
	c cache.Cache,
	opts Options,
	logger zerolog.Logger,
) *Pipeline {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 64
	}
	return &Pipeline{
		loader:    loader,
		splitter:  splitter,
		converter: converter,
		store:     store,
		embedder:  embedder,
		fetcher:   fetcher,
		cache:     c,
		opts:      opts,
		logger:    logger.With().Str("component", "ingest").Logger(),
	}
}

func (p *Pipeline) load(ctx context.Context, root string, extra map[string]interface{}) (*document.LoadResult, error) {
	loaded, err := p.loader.LoadDir(ctx, root, extra)
	if err != nil {
		return nil, err
	}
	metrics.DocumentsLoaded.WithLabelValues("loaded").Add(float64(len(loaded.Documents)))
	metrics.DocumentsLoaded.WithLabelValues("skipped").Add(float64(loaded.Skipped))
	return loaded, nil
}

// extractAndStore converts docs and merges the result into the graph.
func (p *Pipeline) extractAndStore(ctx context.Context, docs []models.Document, stats *models.IngestStats) error {
	if len(docs) == 0 {
		return nil
	}

	graphDocs, err := p.converter.Convert(ctx, docs)
	if err != nil {
		return fmt.Errorf("extract graph: %w", err)
	}
	metrics.GraphDocuments.WithLabelValues("extracted").Add(float64(len(graphDocs)))
	metrics.GraphDocuments.WithLabelValues("failed").Add(float64(len(docs) - len(graphDocs)))
	stats.GraphDocuments = len(graphDocs)

	if len(graphDocs) == 0 {
		return nil
	}

	written, err := p.store.AddGraphDocuments(ctx, graphDocs, true)
	if err != nil {
		return fmt.Errorf("store graph: %w", err)
	}
	metrics.NodesWritten.Add(float64(written.Nodes))
	metrics.RelationshipsWritten.Add(float64(written.Relationships))
	stats.Nodes = written.Nodes
	stats.Relationships = written.Relationships
	return nil
}

func (p *Pipeline) invalidate(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := cache.InvalidateGraph(ctx, p.cache); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to invalidate graph cache")
	}
}

// IngestDirectory loads every file under root, extracts a graph from the
// documents and stores it. extra is merged into every document's metadata.
func (p *Pipeline) IngestDirectory(ctx context.Context, root string, extra map[string]interface{}) (*models.IngestStats, error) {
	p.logger.Info().Str("root", root).Msg("Ingesting directory")

	loaded, err := p.load(ctx, root, extra)
	if err != nil {
		return nil, err
	}

	stats := &models.IngestStats{
		Documents: len(loaded.Documents),
		Skipped:   loaded.Skipped,
	}
	defer p.invalidate(context.Background())

	if err := p.extractAndStore(ctx, loaded.Documents, stats); err != nil {
		return stats, err
	}

	p.logger.Info().
		Str("root", root).
		Int("documents", stats.Documents).
		Int("nodes", stats.Nodes).
		Int("relationships", stats.Relationships).
		Msg("Ingestion finished")
	return stats, nil
}

// IngestGitHub downloads the repository archive, ingests it with the
// repository URL attached to every document, and removes the download.
func (p *Pipeline) IngestGitHub(ctx context.Context, url string) (*models.IngestStats, error) {
	if err := source.ValidateGitHubURL(url); err != nil {
		return nil, err
	}
	if p.fetcher == nil {
		return nil, fmt.Errorf("github ingestion is not configured")
	}

	project, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := project.Cleanup(); err != nil {
			p.logger.Warn().Err(err).Str("dir", project.Dir).Msg("Failed to remove downloaded repository")
		}
	}()

	return p.IngestDirectory(ctx, project.Root, map[string]interface{}{
		models.MetaGitHubURL: url,
		models.MetaGitHubRef: project.Ref,
	})
}

// IndexCodebase stores documents and embedded chunks for similarity search,
// then extracts the graph as IngestDirectory does.
func (p *Pipeline) IndexCodebase(ctx context.Context, root string) (*models.IngestStats, error) {
	if p.embedder == nil {
		return nil, fmt.Errorf("indexing requires an embedder")
	}
	p.logger.Info().Str("root", root).Msg("Indexing codebase")

	loaded, err := p.load(ctx, root, nil)
	if err != nil {
		return nil, err
	}
	stats := &models.IngestStats{
		Documents: len(loaded.Documents),
		Skipped:   loaded.Skipped,
	}
	if len(loaded.Documents) == 0 {
		return stats, nil
	}
	defer p.invalidate(context.Background())

	if err := p.store.UpsertDocuments(ctx, loaded.Documents); err != nil {
		return stats, err
	}

	chunks, err := p.splitter.SplitAll(loaded.Documents)
	if err != nil {
		return stats, err
	}

	indexed := false
	for start := 0; start < len(chunks); start += p.opts.EmbedBatchSize {
		end := start + p.opts.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embed chunks: %w", err)
		}

		if !indexed && len(vectors) > 0 {
			dims := len(vectors[0])
			if dims == 0 {
				dims = p.opts.VectorDimensions
			}
			if err := p.store.EnsureVectorIndex(ctx, dims); err != nil {
				return stats, err
			}
			indexed = true
		}

		if err := p.store.UpsertChunks(ctx, batch, vectors); err != nil {
			return stats, err
		}
		stats.Chunks += len(batch)
		metrics.ChunksIndexed.Add(float64(len(batch)))
	}
	p.logger.Info().Int("chunks", stats.Chunks).Msg("Indexed chunks")

	if err := p.extractAndStore(ctx, loaded.Documents, stats); err != nil {
		return stats, err
	}
	return stats, nil
}
