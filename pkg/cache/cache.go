package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("key not found")

// Key prefixes. Everything derived from the stored graph lives under
// GraphPrefix so a single DeletePattern drops it after a write.
const (
	GraphPrefix = "graph:"
	KeySchema   = GraphPrefix + "schema"
	KeySnapshot = GraphPrefix + "snapshot:"
	KeyAnswer   = GraphPrefix + "qa:"
	KeyExamples = GraphPrefix + "examples:"
)

// Cache is the read-through store for schema, snapshots and answers.
// A ttl of zero means the backend default.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Options selects and sizes a cache backend
type Options struct {
	Type      string // "memory" or "redis"
	Size      int
	TTL       time.Duration
	RedisHost string
	RedisPort int
}

// New builds the configured cache, falling back to memory when Redis is unreachable.
func New(opts Options, logger zerolog.Logger) Cache {
	if opts.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", opts.RedisHost, opts.RedisPort)
		redisCache, err := NewRedisCache(opts.RedisHost, opts.RedisPort, opts.TTL)
		if err == nil {
			logger.Info().Str("addr", addr).Msg("Using Redis cache")
			return redisCache
		}
		logger.Warn().Err(err).Str("addr", addr).Msg("Redis unreachable, falling back to memory cache")
	}

	logger.Info().Int("size", opts.Size).Dur("ttl", opts.TTL).Msg("Using in-memory cache")
	return NewMemoryCache(opts.Size, opts.TTL)
}

// Fetch reads key into a value of type T. Redis hands back raw JSON and
// memory hands back whatever was stored, so both are decoded the same way.
func Fetch[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var out T
	raw, err := c.Get(ctx, key)
	if err != nil {
		return out, false
	}

	var data []byte
	switch v := raw.(type) {
	case T:
		return v, true
	case json.RawMessage:
		data = v
	default:
		if data, err = json.Marshal(v); err != nil {
			return out, false
		}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, true
}

// InvalidateGraph drops every cached view of the stored graph.
func InvalidateGraph(ctx context.Context, c Cache) error {
	return c.DeletePattern(ctx, GraphPrefix)
}
