// Package mcptools implements the code context tools shared by the MCP
// server and the REST adapter.
package mcptools

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/fastctx/fastctx/pkg/cache"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/rs/zerolog"
)

// Tool names
const (
	ReadFile       = "read_file"
	WriteFile      = "write_file"
	IndexCodebase  = "index_codebase"
	QueryGraphRAG  = "query_graph_rag"
	GetContext     = "get_context"
	GetGraphSchema = "get_graph_schema"
)

const defaultK = 4

// ToolError carries the HTTP status a tool failure maps to
type ToolError struct {
	Status  int
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}

func toolErr(status int, format string, args ...interface{}) *ToolError {
	return &ToolError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Files reads and writes file content kept in the graph
type Files interface {
	ReadFileContent(ctx context.Context, path string) (string, bool, error)
	WriteFileContent(ctx context.Context, path, content string) error
}

// Retriever answers questions over the graph
type Retriever interface {
	Ask(ctx context.Context, question string, k int) (*models.QAResponse, error)
	Context(ctx context.Context, query string, k int) ([]models.ContextItem, error)
	Schema(ctx context.Context) (*models.Schema, error)
}

// Indexer starts background index runs
type Indexer interface {
	Start(ctx context.Context, kind, target string) (*models.Run, error)
}

// Param describes one tool argument
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Info describes one tool
type Info struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

// Catalogue lists the tools in registration order
var Catalogue = []Info{
	{
		Name:        ReadFile,
		Description: "Read the contents of a file from Neo4j.",
		Params:      []Param{{Name: "path", Type: "string", Description: "The path to the file.", Required: true}},
	},
	{
		Name:        WriteFile,
		Description: "Write content to a file in Neo4j.",
		Params: []Param{
			{Name: "path", Type: "string", Description: "The path to the file.", Required: true},
			{Name: "content", Type: "string", Description: "The content to write.", Required: true},
		},
	},
	{
		Name:        IndexCodebase,
		Description: "Index the codebase by reading files and storing their content in Neo4j.",
		Params:      []Param{{Name: "root_dir", Type: "string", Description: "The root directory of the codebase to index.", Required: true}},
	},
	{
		Name:        QueryGraphRAG,
		Description: "Process chat queries using GraphRAG retrievers to answer questions based on the indexed codebase.",
		Params: []Param{
			{Name: "query", Type: "string", Description: "The user's natural language query.", Required: true},
			{Name: "k", Type: "integer", Description: "The number of relevant snippets to consider for RAG (optional, default 4)."},
		},
	},
	{
		Name:        GetContext,
		Description: "Retrieve the code snippets most similar to a query from the vector index.",
		Params: []Param{
			{Name: "query", Type: "string", Description: "The text to search for.", Required: true},
			{Name: "k", Type: "integer", Description: "The number of snippets to return (optional, default 4)."},
		},
	},
	{
		Name:        GetGraphSchema,
		Description: "Retrieves the current schema of the Neo4j graph, including node labels and relationship types.",
		Params:      []Param{},
	},
}

// Tools executes the catalogue against the graph services
type Tools struct {
	files     Files
	retriever Retriever
	indexer   Indexer
	cache     cache.Cache
	logger    zerolog.Logger
}

// New creates the tool set. The cache is invalidated after writes and may
// be nil.
func New(files Files, retriever Retriever, indexer Indexer, c cache.Cache, logger zerolog.Logger) *Tools {
	return &Tools{
		files:     files,
		retriever: retriever,
		indexer:   indexer,
		cache:     c,
		logger:    logger.With().Str("component", "mcptools").Logger(),
	}
}

// Execute runs the named tool with decoded JSON arguments. Failures are
// returned as *ToolError.
func (t *Tools) Execute(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case ReadFile:
		path, err := requireString(args, "path")
		if err != nil {
			return nil, err
		}
		return t.ReadFile(ctx, path)
	case WriteFile:
		path, err := requireString(args, "path")
		if err != nil {
			return nil, err
		}
		content, err := requireString(args, "content")
		if err != nil {
			return nil, err
		}
		return t.WriteFile(ctx, path, content)
	case IndexCodebase:
		root, err := requireString(args, "root_dir")
		if err != nil {
			return nil, err
		}
		return t.IndexCodebase(ctx, root)
	case QueryGraphRAG:
		query, err := requireString(args, "query")
		if err != nil {
			return nil, err
		}
		k, err := optionalInt(args, "k", defaultK)
		if err != nil {
			return nil, err
		}
		return t.QueryGraphRAG(ctx, query, k)
	case GetContext:
		query, err := requireString(args, "query")
		if err != nil {
			return nil, err
		}
		k, err := optionalInt(args, "k", defaultK)
		if err != nil {
			return nil, err
		}
		return t.GetContext(ctx, query, k)
	case GetGraphSchema:
		return t.GetGraphSchema(ctx)
	}
	return nil, toolErr(http.StatusNotFound, "Unknown tool: %s", name)
}

// ReadFile returns the stored content of path
func (t *Tools) ReadFile(ctx context.Context, path string) (string, error) {
	content, found, err := t.files.ReadFileContent(ctx, path)
	if err != nil {
		t.logger.Error().Err(err).Str("path", path).Msg("read_file failed")
		return "", toolErr(http.StatusInternalServerError, "Error reading file from Neo4j: %v", err)
	}
	if !found {
		return "", toolErr(http.StatusNotFound, "File not found in Neo4j: %s", path)
	}
	return content, nil
}

// WriteFile stores content at path
func (t *Tools) WriteFile(ctx context.Context, path, content string) (string, error) {
	if err := t.files.WriteFileContent(ctx, path, content); err != nil {
		t.logger.Error().Err(err).Str("path", path).Msg("write_file failed")
		return "", toolErr(http.StatusInternalServerError, "Error writing to file in Neo4j: %v", err)
	}
	if t.cache != nil {
		if err := cache.InvalidateGraph(ctx, t.cache); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to invalidate graph cache")
		}
	}
	return fmt.Sprintf("Successfully wrote to %s in Neo4j", path), nil
}

// IndexCodebase starts a background index run for rootDir
func (t *Tools) IndexCodebase(ctx context.Context, rootDir string) (string, error) {
	run, err := t.indexer.Start(ctx, models.RunKindIndex, rootDir)
	if err != nil {
		t.logger.Error().Err(err).Str("root_dir", rootDir).Msg("index_codebase failed")
		return "", toolErr(http.StatusInternalServerError, "Error indexing codebase: %v", err)
	}
	t.logger.Info().Int("run_id", run.ID).Str("root_dir", rootDir).Msg("Index run started")
	return fmt.Sprintf("Successfully initiated indexing for %s", rootDir), nil
}

// QueryGraphRAG answers query from the graph
func (t *Tools) QueryGraphRAG(ctx context.Context, query string, k int) (*models.QAResponse, error) {
	resp, err := t.retriever.Ask(ctx, query, k)
	if err != nil {
		t.logger.Error().Err(err).Str("query", query).Msg("query_graph_rag failed")
		return nil, toolErr(http.StatusInternalServerError, "Error retrieving context: %v", err)
	}
	return resp, nil
}

// GetContext returns the k chunks most similar to query
func (t *Tools) GetContext(ctx context.Context, query string, k int) ([]models.ContextItem, error) {
	items, err := t.retriever.Context(ctx, query, k)
	if err != nil {
		t.logger.Error().Err(err).Str("query", query).Msg("get_context failed")
		return nil, toolErr(http.StatusInternalServerError, "Error retrieving context: %v", err)
	}
	return items, nil
}

// GraphSchema is the label and relationship type summary
type GraphSchema struct {
	Labels            []string `json:"labels"`
	RelationshipTypes []string `json:"relationship_types"`
}

// GetGraphSchema returns the graph's labels and relationship types
func (t *Tools) GetGraphSchema(ctx context.Context) (*GraphSchema, error) {
	schema, err := t.retriever.Schema(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("get_graph_schema failed")
		return nil, toolErr(http.StatusInternalServerError, "Error retrieving graph schema: %v", err)
	}
	out := &GraphSchema{Labels: schema.Labels, RelationshipTypes: schema.RelationshipTypes}
	if out.Labels == nil {
		out.Labels = []string{}
	}
	if out.RelationshipTypes == nil {
		out.RelationshipTypes = []string{}
	}
	return out, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", toolErr(http.StatusBadRequest, "missing required argument: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", toolErr(http.StatusBadRequest, "argument %s must be a string", key)
	}
	return s, nil
}

// optionalInt accepts JSON numbers and numeric strings.
func optionalInt(args map[string]interface{}, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && n > 0 {
			return int(n), nil
		}
	case int:
		if n > 0 {
			return n, nil
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil && i > 0 {
			return i, nil
		}
	}
	return 0, toolErr(http.StatusBadRequest, "argument %s must be a positive integer", key)
}
