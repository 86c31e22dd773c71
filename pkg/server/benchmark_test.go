package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/fastctx/fastctx/pkg/cache"
	"github.com/fastctx/fastctx/pkg/config"
	"github.com/fastctx/fastctx/pkg/document"
	"github.com/fastctx/fastctx/pkg/extract"
	"github.com/fastctx/fastctx/pkg/graphstore/graphstoretest"
	"github.com/fastctx/fastctx/pkg/ingest"
	"github.com/fastctx/fastctx/pkg/llm/llmtest"
	"github.com/fastctx/fastctx/pkg/mcptools"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/qa"
	"github.com/fastctx/fastctx/pkg/server"
	"github.com/fastctx/fastctx/pkg/source"
	"github.com/fastctx/fastctx/pkg/storage"
	"github.com/fastctx/fastctx/pkg/validation"
	"github.com/fastctx/fastctx/pkg/workspace"
	"github.com/rs/zerolog"
)

// setupBenchServer creates a server for benchmarking
func setupBenchServer(b *testing.B) (*httptest.Server, *graphstoretest.Store) {
	b.Helper()

	tmpDir, err := os.MkdirTemp("", "fastctx-bench-*")
	if err != nil {
		b.Fatal(err)
	}

	cfg := config.Default()
	cfg.BaseDir = tmpDir

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	store := graphstoretest.New()
	store.Files["/src/main.go"] = "package main\n"
	store.Rows = []map[string]interface{}{{"path": "/src/main.go"}}
	store.Hits = []models.ScoredChunk{{ID: "a:0", Text: "package main", Source: "/src/main.go", Score: 0.9}}

	gen := &llmtest.Generator{Default: `{"nodes": [], "relationships": []}`}
	embedder := &llmtest.Embedder{Dims: 8}
	memCache := cache.NewMemoryCache(1000, time.Duration(cfg.CacheTTL)*time.Second)
	runs, _ := storage.NewJSONFileStore(tmpDir)

	loader := document.NewLoader(document.LoaderConfig{Concurrency: 2, MaxFileSize: 1 << 20, Walk: source.DefaultWalkOptions()}, logger)
	transformer := extract.NewTransformer(gen, extract.Config{BatchSize: 2, Workers: 2}, logger)
	pipeline := ingest.NewPipeline(loader, document.NewSplitter(200, 20), transformer, store, embedder, nil, memCache,
		ingest.Options{VectorDimensions: 8, EmbedBatchSize: 4}, logger)
	runner := ingest.NewRunner(pipeline, runs, logger)
	chain := qa.NewChain(store, gen, embedder, memCache, time.Minute, logger)

	srv := server.New(cfg, server.Services{
		Store:     store,
		Chain:     chain,
		Runner:    runner,
		Tools:     mcptools.New(store, chain, runner, memCache, logger),
		Workspace: workspace.New(gen, tmpDir, 20, logger),
	}, validation.New(), logger)
	ts := httptest.NewServer(srv.Handler())

	b.Cleanup(func() {
		ts.Close()
		runner.Wait()
		os.RemoveAll(tmpDir)
	})

	return ts, store
}

func post(url string, body []byte) {
	req, _ := http.NewRequest("POST", url, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err == nil {
		resp.Body.Close()
	}
}

func get(url string) {
	resp, err := http.Get(url)
	if err == nil {
		resp.Body.Close()
	}
}

// BenchmarkHealthCheck benchmarks health endpoint
func BenchmarkHealthCheck(b *testing.B) {
	ts, _ := setupBenchServer(b)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			get(ts.URL + "/health")
		}
	})
}

// BenchmarkQuery benchmarks raw read queries including the write check
func BenchmarkQuery(b *testing.B) {
	ts, _ := setupBenchServer(b)
	body, _ := json.Marshal(map[string]interface{}{
		"query": "MATCH (f:File)-[:DEFINES]->(fn:Function) WHERE f.path = $path RETURN fn.id LIMIT 25",
		"params": map[string]interface{}{"path": "/src/main.go"},
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			post(ts.URL+"/query", body)
		}
	})
}

// BenchmarkSchema benchmarks cached schema reads
func BenchmarkSchema(b *testing.B) {
	ts, store := setupBenchServer(b)
	store.SchemaResult = &models.Schema{Labels: []string{"File", "Function"}, RelationshipTypes: []string{"DEFINES"}}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			get(ts.URL + "/schema")
		}
	})
}

// BenchmarkContext benchmarks similarity search
func BenchmarkContext(b *testing.B) {
	ts, _ := setupBenchServer(b)
	body, _ := json.Marshal(map[string]interface{}{"query": "entry point", "k": 4})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			post(ts.URL+"/api/context", body)
		}
	})
}

// BenchmarkReadFileTool benchmarks the MCP REST adapter
func BenchmarkReadFileTool(b *testing.B) {
	ts, _ := setupBenchServer(b)
	body, _ := json.Marshal(map[string]interface{}{"path": "/src/main.go"})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			post(ts.URL+"/api/mcp/tools/read_file/execute", body)
		}
	})
}

// BenchmarkConcurrentOperations benchmarks mixed concurrent operations
func BenchmarkConcurrentOperations(b *testing.B) {
	ts, _ := setupBenchServer(b)

	queryBody, _ := json.Marshal(map[string]interface{}{"query": "MATCH (n) RETURN count(n) AS total"})
	writeBody := func(i int) []byte {
		data, _ := json.Marshal(map[string]interface{}{
			"path":    fmt.Sprintf("/src/file%d.go", i),
			"content": "package src\n",
		})
		return data
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			switch i % 4 {
			case 0: // Write
				post(ts.URL+"/api/mcp/tools/write_file/execute", writeBody(i))
			case 1: // Query
				post(ts.URL+"/query", queryBody)
			case 2: // Schema
				get(ts.URL + "/schema")
			case 3: // Graph
				get(ts.URL + "/api/graph?limit=100")
			}
			i++
		}
	})
}
