package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4jURI)
	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLMModel)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, "code_embeddings", cfg.VectorIndex)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("LLM_PROVIDER", "OpenRouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("ALLOW_WRITE_QUERIES", "yes")
	t.Setenv("MAX_FILE_SIZE", "2048")
	t.Setenv("INGEST_CONCURRENCY", "not-a-number")
	t.Setenv("EXTRACT_MAX_CONTENT_CHARS", "4000")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "neo4j://graph:7687", cfg.Neo4jURI)
	assert.Equal(t, ProviderOpenRouter, cfg.LLMProvider)
	assert.Equal(t, "sk-test", cfg.APIKey())
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.True(t, cfg.AllowWriteQueries)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.Equal(t, 16, cfg.IngestConcurrency, "invalid numbers keep the default")
	assert.Equal(t, 4000, cfg.ExtractMaxChars)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI API key not set")

	cfg.GeminiAPIKey = "key"
	assert.NoError(t, cfg.Validate())

	cfg.LLMProvider = "llama"
	cfg.StorageType = "postgres"
	cfg.ChunkOverlap = cfg.ChunkSize
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
	assert.Contains(t, err.Error(), "unsupported storage type")
	assert.Contains(t, err.Error(), "chunk overlap")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("FASTCTX_TEST_VALUE=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("FASTCTX_TEST_VALUE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-dotenv", os.Getenv("FASTCTX_TEST_VALUE"))
}
