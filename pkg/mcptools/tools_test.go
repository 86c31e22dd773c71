package mcptools_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/fastctx/fastctx/pkg/cache"
	"github.com/fastctx/fastctx/pkg/graphstore/graphstoretest"
	"github.com/fastctx/fastctx/pkg/llm/llmtest"
	"github.com/fastctx/fastctx/pkg/mcptools"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/qa"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = zerolog.New(os.Stdout).Level(zerolog.Disabled)

type fakeIndexer struct {
	targets []string
	err     error
}

func (f *fakeIndexer) Start(ctx context.Context, kind, target string) (*models.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.targets = append(f.targets, kind+":"+target)
	return &models.Run{ID: len(f.targets), Kind: kind, Target: target, Status: models.RunPending}, nil
}

type fixture struct {
	tools   *mcptools.Tools
	store   *graphstoretest.Store
	gen     *llmtest.Generator
	indexer *fakeIndexer
	cache   cache.Cache
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   graphstoretest.New(),
		gen:     &llmtest.Generator{},
		indexer: &fakeIndexer{},
		cache:   cache.NewMemoryCache(100, time.Minute),
	}
	chain := qa.NewChain(f.store, f.gen, &llmtest.Embedder{Dims: 4}, f.cache, time.Minute, testLogger)
	f.tools = mcptools.New(f.store, chain, f.indexer, f.cache, testLogger)
	return f
}

func toolError(t *testing.T, err error) *mcptools.ToolError {
	t.Helper()
	var te *mcptools.ToolError
	require.True(t, errors.As(err, &te), "expected *ToolError, got %v", err)
	return te
}

func TestReadFile(t *testing.T) {
	f := setup(t)
	f.store.Files["/test/path.txt"] = "file content from neo4j"

	result, err := f.tools.Execute(context.Background(), mcptools.ReadFile, map[string]interface{}{"path": "/test/path.txt"})
	require.NoError(t, err)
	assert.Equal(t, "file content from neo4j", result)
}

func TestReadFile_NotFound(t *testing.T) {
	f := setup(t)

	_, err := f.tools.Execute(context.Background(), mcptools.ReadFile, map[string]interface{}{"path": "/nonexistent/path.txt"})
	te := toolError(t, err)
	assert.Equal(t, http.StatusNotFound, te.Status)
	assert.Equal(t, "File not found in Neo4j: /nonexistent/path.txt", te.Message)
}

func TestReadFile_StoreError(t *testing.T) {
	f := setup(t)
	f.store.Err = errors.New("DB error")

	_, err := f.tools.Execute(context.Background(), mcptools.ReadFile, map[string]interface{}{"path": "/error/path.txt"})
	te := toolError(t, err)
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Equal(t, "Error reading file from Neo4j: DB error", te.Message)
}

func TestWriteFile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, cache.KeySchema, "stale", 0))

	result, err := f.tools.Execute(ctx, mcptools.WriteFile, map[string]interface{}{"path": "/new/file.txt", "content": "new content"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully wrote to /new/file.txt in Neo4j", result)
	assert.Equal(t, "new content", f.store.Files["/new/file.txt"])

	exists, _ := f.cache.Exists(ctx, cache.KeySchema)
	assert.False(t, exists)
}

func TestWriteFile_Errors(t *testing.T) {
	f := setup(t)

	_, err := f.tools.Execute(context.Background(), mcptools.WriteFile, map[string]interface{}{"path": "/x"})
	assert.Equal(t, http.StatusBadRequest, toolError(t, err).Status)

	f.store.Err = errors.New("DB write error")
	_, err = f.tools.Execute(context.Background(), mcptools.WriteFile, map[string]interface{}{"path": "/x", "content": "c"})
	te := toolError(t, err)
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Contains(t, te.Message, "Error writing to file in Neo4j")
}

func TestIndexCodebase(t *testing.T) {
	f := setup(t)

	result, err := f.tools.Execute(context.Background(), mcptools.IndexCodebase, map[string]interface{}{"root_dir": "/codebase"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully initiated indexing for /codebase", result)
	assert.Equal(t, []string{"index:/codebase"}, f.indexer.targets)

	f.indexer.err = errors.New("Indexing error")
	_, err = f.tools.Execute(context.Background(), mcptools.IndexCodebase, map[string]interface{}{"root_dir": "/error_codebase"})
	assert.Equal(t, "Error indexing codebase: Indexing error", toolError(t, err).Message)
}

func TestQueryGraphRAG(t *testing.T) {
	f := setup(t)
	f.gen.On("Task: Generate a Cypher", "MATCH (f:File) RETURN f.path AS path")
	f.gen.On("Helpful Answer:", "There is one file.")
	f.store.Rows = []map[string]interface{}{{"path": "main.go"}}

	result, err := f.tools.Execute(context.Background(), mcptools.QueryGraphRAG, map[string]interface{}{"query": "Which files?", "k": float64(2)})
	require.NoError(t, err)
	resp := result.(*models.QAResponse)
	assert.Equal(t, "There is one file.", resp.Answer)

	_, err = f.tools.Execute(context.Background(), mcptools.QueryGraphRAG, map[string]interface{}{"query": "q", "k": 2.5})
	assert.Equal(t, http.StatusBadRequest, toolError(t, err).Status)

	f.store.Err = errors.New("offline")
	_, err = f.tools.Execute(context.Background(), mcptools.QueryGraphRAG, map[string]interface{}{"query": "Another?"})
	assert.Contains(t, toolError(t, err).Message, "Error retrieving context")
}

func TestGetContext(t *testing.T) {
	f := setup(t)
	f.store.Hits = []models.ScoredChunk{
		{ID: "a:0", Text: "doc1", Source: "file1.py", Score: 0.9},
		{ID: "b:0", Text: "doc2", Source: "file2.py", Score: 0.8},
		{ID: "c:0", Text: "doc3", Source: "file3.py", Score: 0.7},
	}

	result, err := f.tools.Execute(context.Background(), mcptools.GetContext, map[string]interface{}{"query": "test query", "k": float64(2)})
	require.NoError(t, err)
	items := result.([]models.ContextItem)
	require.Len(t, items, 2)
	assert.Equal(t, "doc1", items[0].Content)
	assert.Equal(t, "file1.py", items[0].Metadata["source"])

	_, err = f.tools.Execute(context.Background(), mcptools.GetContext, map[string]interface{}{"query": "q"})
	require.NoError(t, err)
	assert.Equal(t, 4, f.store.SearchK)
}

func TestGetGraphSchema(t *testing.T) {
	f := setup(t)
	f.store.SchemaResult = &models.Schema{Labels: []string{"File"}, RelationshipTypes: []string{"DEFINES"}}

	result, err := f.tools.Execute(context.Background(), mcptools.GetGraphSchema, nil)
	require.NoError(t, err)
	assert.Equal(t, &mcptools.GraphSchema{Labels: []string{"File"}, RelationshipTypes: []string{"DEFINES"}}, result)
}

func TestGetGraphSchema_Error(t *testing.T) {
	f := setup(t)
	f.store.Err = errors.New("down")

	_, err := f.tools.Execute(context.Background(), mcptools.GetGraphSchema, nil)
	assert.Equal(t, "Error retrieving graph schema: down", toolError(t, err).Message)
}

func TestUnknownTool(t *testing.T) {
	f := setup(t)

	_, err := f.tools.Execute(context.Background(), "rm_rf", nil)
	assert.Equal(t, http.StatusNotFound, toolError(t, err).Status)
}
