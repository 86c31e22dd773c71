// Package graphstore persists extracted graphs, documents and chunk
// embeddings in Neo4j and answers read queries against it.
package graphstore

import (
	"context"
	"fmt"

	"github.com/fastctx/fastctx/pkg/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

// Store is the graph database surface used by the rest of the service
type Store interface {
	Ping(ctx context.Context) error
	RunQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error)
	ReadFileContent(ctx context.Context, path string) (string, bool, error)
	WriteFileContent(ctx context.Context, path, content string) error
	Schema(ctx context.Context) (*models.Schema, error)
	Graph(ctx context.Context, limit int) (*models.GraphSnapshot, error)
	AddGraphDocuments(ctx context.Context, docs []models.GraphDocument, includeSource bool) (*models.GraphWriteStats, error)
	UpsertDocuments(ctx context.Context, docs []models.Document) error
	UpsertChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	EnsureVectorIndex(ctx context.Context, dimensions int) error
	SimilaritySearch(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error)
	Close(ctx context.Context) error
}

// Config holds Neo4j connection settings
type Config struct {
	URI         string
	Username    string
	Password    string
	Database    string
	AllowWrite  bool   // allow write clauses through RunQuery
	VectorIndex string // name of the chunk embedding index
}

// Neo4jStore implements Store with the official driver
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	config Config
	logger zerolog.Logger
}

// Open creates a store without contacting the server. The driver dials
// lazily, so an unreachable database surfaces on the first query or Ping.
func Open(config Config, logger zerolog.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(config.URI, neo4j.BasicAuth(config.Username, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver for %s: %w", config.URI, err)
	}

	if config.VectorIndex == "" {
		config.VectorIndex = "code_embeddings"
	}

	logger = logger.With().Str("component", "graphstore").Logger()
	return &Neo4jStore{driver: driver, config: config, logger: logger}, nil
}

// Connect opens a store and verifies connectivity
func Connect(ctx context.Context, config Config, logger zerolog.Logger) (*Neo4jStore, error) {
	store, err := Open(config, logger)
	if err != nil {
		return nil, err
	}

	if err := store.Ping(ctx); err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity at %s: %w", config.URI, err)
	}

	store.logger.Info().Str("uri", config.URI).Str("user", config.Username).Msg("Connected to Neo4j")
	return store, nil
}

// Ping verifies the database is reachable
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close closes the driver
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) read(ctx context.Context, cypher string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.config.Database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
}

func (s *Neo4jStore) write(ctx context.Context, cypher string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.config.Database),
		neo4j.ExecuteQueryWithWritersRouting(),
	)
}

// RunQuery executes raw Cypher and returns JSON-safe rows. Write clauses are
// rejected unless the store was configured with AllowWrite.
func (s *Neo4jStore) RunQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	readOnly := IsReadOnly(cypher)
	if !readOnly && !s.config.AllowWrite {
		return nil, ErrWriteQuery
	}

	var (
		result *neo4j.EagerResult
		err    error
	)
	if readOnly {
		result, err = s.read(ctx, cypher, params)
	} else {
		result, err = s.write(ctx, cypher, params)
	}
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(result.Records))
	for _, record := range result.Records {
		rows = append(rows, convertMap(record.AsMap()))
	}
	return rows, nil
}

// ReadFileContent returns the content stored on the File node at path
func (s *Neo4jStore) ReadFileContent(ctx context.Context, path string) (string, bool, error) {
	result, err := s.read(ctx, `MATCH (f:File {path: $path}) RETURN f.content AS content LIMIT 1`,
		map[string]interface{}{"path": path})
	if err != nil {
		return "", false, err
	}
	if len(result.Records) == 0 {
		return "", false, nil
	}

	content, isNil, err := neo4j.GetRecordValue[string](result.Records[0], "content")
	if err != nil && !isNil {
		return "", false, err
	}
	if isNil {
		return "", false, nil
	}
	return content, true, nil
}

// WriteFileContent creates or overwrites the File node at path
func (s *Neo4jStore) WriteFileContent(ctx context.Context, path, content string) error {
	_, err := s.write(ctx, `MERGE (f:File {path: $path}) SET f.content = $content`,
		map[string]interface{}{"path": path, "content": content})
	return err
}
