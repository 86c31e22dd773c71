package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const Version = "0.3.0"

// Supported LLM providers.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

// Config holds application configuration
type Config struct {
	// Server configuration
	Host        string
	Port        int
	CORSOrigins []string

	// Neo4j
	Neo4jURI          string
	Neo4jUsername     string
	Neo4jPassword     string
	Neo4jDatabase     string
	AllowWriteQueries bool // allow write clauses on the raw query endpoint

	// LLM configuration
	LLMProvider      string // "gemini", "openrouter" or "openai"
	LLMModel         string
	GeminiAPIKey     string
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	EmbeddingModel   string

	// Ingestion
	ChunkSize         int
	ChunkOverlap      int
	IngestConcurrency int
	ExtractBatchSize  int
	ExtractWorkers    int
	ExtractMaxChars   int // runes of a document sent for extraction; zero keeps all
	MaxFileSize       int64 // bytes
	GitHubBranch      string
	VectorIndex       string
	VectorDimensions  int

	// Run ledger storage
	StorageType string // "jsonfile" or "sqlite"
	BaseDir     string
	DBPath      string

	// Cache configuration
	CacheType string // "memory" or "redis"
	CacheTTL  int    // seconds
	CacheSize int
	RedisHost string
	RedisPort int

	// Workspace explorer
	WorkspaceDir      string
	WorkspaceMaxFiles int

	// Debug
	Debug     bool
	LogFormat string // "console" or "json"
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8000,
		CORSOrigins:       []string{"*"},
		Neo4jURI:          "bolt://localhost:7687",
		Neo4jUsername:     "neo4j",
		Neo4jPassword:     "password",
		Neo4jDatabase:     "",
		LLMProvider:       ProviderGemini,
		LLMModel:          "gemini-2.0-flash",
		EmbeddingModel:    "",
		ChunkSize:         1000,
		ChunkOverlap:      200,
		IngestConcurrency: 16,
		ExtractBatchSize:  8,
		ExtractWorkers:    4,
		MaxFileSize:       1 << 20, // 1MB
		GitHubBranch:      "main",
		VectorIndex:       "code_embeddings",
		VectorDimensions:  768,
		StorageType:       "sqlite",
		BaseDir:           "data",
		DBPath:            "fastctx.db",
		CacheType:         "memory",
		CacheTTL:          300,
		CacheSize:         1024,
		RedisHost:         "localhost",
		RedisPort:         6379,
		WorkspaceDir:      ".",
		WorkspaceMaxFiles: 20,
		LogFormat:         "console",
	}
}

// LoadDotEnv loads .env style files into the process environment.
// Files that do not exist are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if val := os.Getenv("HOST"); val != "" {
		cfg.Host = val
	}
	setInt(&cfg.Port, "PORT")
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		cfg.CORSOrigins = splitList(val)
	}

	if val := os.Getenv("NEO4J_URI"); val != "" {
		cfg.Neo4jURI = val
	}
	if val := os.Getenv("NEO4J_USERNAME"); val != "" {
		cfg.Neo4jUsername = val
	}
	if val := os.Getenv("NEO4J_PASSWORD"); val != "" {
		cfg.Neo4jPassword = val
	}
	if val := os.Getenv("NEO4J_DATABASE"); val != "" {
		cfg.Neo4jDatabase = val
	}
	if val := os.Getenv("ALLOW_WRITE_QUERIES"); val != "" {
		cfg.AllowWriteQueries = parseBool(val)
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		cfg.LLMProvider = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		cfg.LLMModel = val
	}
	if val := os.Getenv("GEMINI_API_KEY"); val != "" {
		cfg.GeminiAPIKey = val
	}
	if val := os.Getenv("OPENROUTER_API_KEY"); val != "" {
		cfg.OpenRouterAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		cfg.OpenAIAPIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		cfg.OpenAIBaseURL = val
	}
	if val := os.Getenv("EMBEDDING_MODEL"); val != "" {
		cfg.EmbeddingModel = val
	}

	setInt(&cfg.ChunkSize, "CHUNK_SIZE")
	setInt(&cfg.ChunkOverlap, "CHUNK_OVERLAP")
	setInt(&cfg.IngestConcurrency, "INGEST_CONCURRENCY")
	setInt(&cfg.ExtractBatchSize, "EXTRACT_BATCH_SIZE")
	setInt(&cfg.ExtractWorkers, "EXTRACT_WORKERS")
	setInt(&cfg.ExtractMaxChars, "EXTRACT_MAX_CONTENT_CHARS")
	if val := os.Getenv("MAX_FILE_SIZE"); val != "" {
		if size, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.MaxFileSize = size
		}
	}
	if val := os.Getenv("GITHUB_BRANCH"); val != "" {
		cfg.GitHubBranch = val
	}
	if val := os.Getenv("VECTOR_INDEX"); val != "" {
		cfg.VectorIndex = val
	}
	setInt(&cfg.VectorDimensions, "VECTOR_DIMENSIONS")

	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		cfg.StorageType = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		cfg.DBPath = val
	}
	if val := os.Getenv("BASE_DIR"); val != "" {
		cfg.BaseDir = val
	}

	if val := os.Getenv("CACHE_TYPE"); val != "" {
		cfg.CacheType = val
	}
	setInt(&cfg.CacheTTL, "CACHE_TTL")
	setInt(&cfg.CacheSize, "CACHE_SIZE")
	if val := os.Getenv("REDIS_HOST"); val != "" {
		cfg.RedisHost = val
	}
	setInt(&cfg.RedisPort, "REDIS_PORT")

	if val := os.Getenv("WORKSPACE_DIR"); val != "" {
		cfg.WorkspaceDir = val
	}
	setInt(&cfg.WorkspaceMaxFiles, "WORKSPACE_MAX_FILES")

	if val := os.Getenv("DEBUG"); val != "" {
		cfg.Debug = parseBool(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.LogFormat = strings.ToLower(val)
	}
}

// APIKey returns the key for the configured LLM provider.
func (c *Config) APIKey() string {
	switch c.LLMProvider {
	case ProviderGemini:
		return c.GeminiAPIKey
	case ProviderOpenRouter:
		return c.OpenRouterAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	}
	return ""
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenRouter, ProviderOpenAI:
		if c.APIKey() == "" {
			errs = append(errs, fmt.Errorf("%s API key not set", strings.ToUpper(c.LLMProvider)))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM provider: %q", c.LLMProvider))
	}

	switch c.StorageType {
	case "jsonfile", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported storage type: %q", c.StorageType))
	}

	switch c.CacheType {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported cache type: %q", c.CacheType))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, errors.New("chunk overlap must be smaller than chunk size"))
	}

	return errors.Join(errs...)
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(val string) bool {
	val = strings.ToLower(val)
	return val == "true" || val == "1" || val == "yes"
}
