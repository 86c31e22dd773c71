// Package graphstoretest provides an in-memory graphstore.Store for tests.
package graphstoretest

import (
	"context"
	"sync"

	"github.com/fastctx/fastctx/pkg/graphstore"
	"github.com/fastctx/fastctx/pkg/models"
)

// Store records writes and serves canned reads
type Store struct {
	mu sync.Mutex

	Files        map[string]string
	SchemaResult *models.Schema
	Rows         []map[string]interface{}
	Snapshot     *models.GraphSnapshot
	Hits         []models.ScoredChunk

	// Err, when set, is returned by every method.
	Err error

	Queries        []string
	GraphDocuments []models.GraphDocument
	Documents      []models.Document
	Chunks         []models.Chunk
	Vectors        [][]float32
	IndexDims      int
	SchemaCalls    int
	SearchK        int
}

var _ graphstore.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		Files:        map[string]string{},
		SchemaResult: &models.Schema{Labels: []string{}, RelationshipTypes: []string{}},
		Snapshot:     &models.GraphSnapshot{Nodes: []models.SnapshotNode{}, Relationships: []models.SnapshotRelationship{}},
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.Err }

func (s *Store) Close(ctx context.Context) error { return nil }

func (s *Store) RunQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, cypher)
	if s.Err != nil {
		return nil, s.Err
	}
	if !graphstore.IsReadOnly(cypher) {
		return nil, graphstore.ErrWriteQuery
	}
	return s.Rows, nil
}

func (s *Store) ReadFileContent(ctx context.Context, path string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", false, s.Err
	}
	content, ok := s.Files[path]
	return content, ok, nil
}

func (s *Store) WriteFileContent(ctx context.Context, path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Files[path] = content
	return nil
}

func (s *Store) Schema(ctx context.Context) (*models.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SchemaCalls++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.SchemaResult, nil
}

func (s *Store) Graph(ctx context.Context, limit int) (*models.GraphSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Snapshot, nil
}

func (s *Store) AddGraphDocuments(ctx context.Context, docs []models.GraphDocument, includeSource bool) (*models.GraphWriteStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	stats := &models.GraphWriteStats{}
	for _, gd := range docs {
		s.GraphDocuments = append(s.GraphDocuments, gd)
		stats.Documents++
		stats.Nodes += len(gd.Nodes)
		stats.Relationships += len(gd.Relationships)
	}
	return stats, nil
}

func (s *Store) UpsertDocuments(ctx context.Context, docs []models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Documents = append(s.Documents, docs...)
	for _, d := range docs {
		s.Files[d.Path()] = d.Content
	}
	return nil
}

func (s *Store) UpsertChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Chunks = append(s.Chunks, chunks...)
	s.Vectors = append(s.Vectors, vectors...)
	return nil
}

func (s *Store) EnsureVectorIndex(ctx context.Context, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.IndexDims = dimensions
	return nil
}

func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchK = k
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Hits) > k {
		return s.Hits[:k], nil
	}
	return s.Hits, nil
}
