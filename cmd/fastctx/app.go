package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fastctx/fastctx/pkg/cache"
	"github.com/fastctx/fastctx/pkg/config"
	"github.com/fastctx/fastctx/pkg/document"
	"github.com/fastctx/fastctx/pkg/extract"
	"github.com/fastctx/fastctx/pkg/graphstore"
	"github.com/fastctx/fastctx/pkg/ingest"
	"github.com/fastctx/fastctx/pkg/llm"
	"github.com/fastctx/fastctx/pkg/mcptools"
	"github.com/fastctx/fastctx/pkg/qa"
	"github.com/fastctx/fastctx/pkg/source"
	"github.com/fastctx/fastctx/pkg/storage"
	"github.com/fastctx/fastctx/pkg/workspace"
	"github.com/rs/zerolog"
)

const (
	embedBatchSize   = 32
	neo4jPingTimeout = 10 * time.Second
)

// app holds every wired component of the service
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     graphstore.Store
	runs      storage.Store
	cache     cache.Cache
	chain     *qa.Chain
	runner    *ingest.Runner
	tools     *mcptools.Tools
	workspace *workspace.Workspace
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	// Stdout carries command output and the MCP stdio stream.
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	if cfg.LogFormat != "json" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger
}

func openRunStore(cfg *config.Config) (storage.Store, error) {
	if cfg.StorageType != "sqlite" {
		if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return storage.Open(cfg)
}

// newApp opens Neo4j and builds the pipeline, runner and retrieval chain.
// An unreachable database is logged and the app starts degraded; /health
// reports it until the database comes back. The LLM is only validated when
// needLLM is set.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, needLLM bool) (*app, error) {
	if needLLM {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	store, err := graphstore.Open(graphstore.Config{
		URI:         cfg.Neo4jURI,
		Username:    cfg.Neo4jUsername,
		Password:    cfg.Neo4jPassword,
		Database:    cfg.Neo4jDatabase,
		AllowWrite:  cfg.AllowWriteQueries,
		VectorIndex: cfg.VectorIndex,
	}, logger)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, neo4jPingTimeout)
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("uri", cfg.Neo4jURI).Msg("Neo4j unreachable, starting degraded")
	} else {
		logger.Info().Str("uri", cfg.Neo4jURI).Msg("Connected to Neo4j")
	}
	cancel()

	runs, err := openRunStore(cfg)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if infoProvider, ok := runs.(storage.InfoProvider); ok {
		info := infoProvider.Info()
		logger.Info().
			Str("type", info.Type).
			Str("version", info.Version).
			Msg("Run ledger initialized")
	}

	ttl := time.Duration(cfg.CacheTTL) * time.Second
	c := cache.New(cache.Options{
		Type:      cfg.CacheType,
		Size:      cfg.CacheSize,
		TTL:       ttl,
		RedisHost: cfg.RedisHost,
		RedisPort: cfg.RedisPort,
	}, logger)

	gen, err := llm.New(ctx, cfg, logger)
	if err != nil && needLLM {
		store.Close(ctx)
		runs.Close()
		return nil, err
	}

	var embedder llm.Embedder
	if e, err := llm.NewEmbedder(ctx, cfg); err != nil {
		logger.Warn().Err(err).Msg("Embeddings unavailable, indexing and context retrieval are disabled")
	} else {
		embedder = e
	}

	loader := document.NewLoader(document.LoaderConfig{
		MaxFileSize: cfg.MaxFileSize,
		Concurrency: cfg.IngestConcurrency,
		Walk:        source.DefaultWalkOptions(),
	}, logger)
	transformer := extract.NewTransformer(gen, extract.Config{
		BatchSize:       cfg.ExtractBatchSize,
		Workers:         cfg.ExtractWorkers,
		MaxContentChars: cfg.ExtractMaxChars,
	}, logger)
	fetcher := source.NewGitHubFetcher(nil, cfg.GitHubBranch, logger)

	pipeline := ingest.NewPipeline(
		loader,
		document.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		transformer,
		store,
		embedder,
		fetcher,
		c,
		ingest.Options{VectorDimensions: cfg.VectorDimensions, EmbedBatchSize: embedBatchSize},
		logger,
	)
	runner := ingest.NewRunner(pipeline, runs, logger)
	chain := qa.NewChain(store, gen, embedder, c, ttl, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		runs:      runs,
		cache:     c,
		chain:     chain,
		runner:    runner,
		tools:     mcptools.New(store, chain, runner, c, logger),
		workspace: workspace.New(gen, cfg.WorkspaceDir, cfg.WorkspaceMaxFiles, logger),
	}, nil
}

// Close waits for background runs and releases connections
func (a *app) Close(ctx context.Context) {
	if err := a.runner.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Background runs did not finish")
	}
	if err := a.runs.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close run ledger")
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close cache")
	}
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close Neo4j driver")
	}
}
