package cache_test

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fastctx/fastctx/pkg/cache"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	c, err := cache.NewRedisCache(mr.Host(), port, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func backends(t *testing.T) map[string]cache.Cache {
	redisCache, _ := newRedisCache(t)
	return map[string]cache.Cache{
		"memory": cache.NewMemoryCache(16, time.Minute),
		"redis":  redisCache,
	}
}

func TestCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Get(ctx, "missing")
			assert.ErrorIs(t, err, cache.ErrMiss)

			require.NoError(t, c.Set(ctx, "k", map[string]interface{}{"a": "b"}, 0))
			ok, err := c.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, c.Delete(ctx, "k"))
			ok, _ = c.Exists(ctx, "k")
			assert.False(t, ok)
		})
	}
}

func TestCache_InvalidateGraph(t *testing.T) {
	ctx := context.Background()

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, cache.KeySchema, "schema", 0))
			require.NoError(t, c.Set(ctx, cache.KeySnapshot+"100", "snapshot", 0))
			require.NoError(t, c.Set(ctx, "workspace:tools", "tools", 0))

			require.NoError(t, cache.InvalidateGraph(ctx, c))

			ok, _ := c.Exists(ctx, cache.KeySchema)
			assert.False(t, ok)
			ok, _ = c.Exists(ctx, cache.KeySnapshot+"100")
			assert.False(t, ok)
			ok, _ = c.Exists(ctx, "workspace:tools")
			assert.True(t, ok, "keys outside the graph prefix survive")
		})
	}
}

func TestFetch_NormalizesBackends(t *testing.T) {
	ctx := context.Background()
	schema := &models.Schema{Labels: []string{"File"}, RelationshipTypes: []string{"IMPORTS"}}

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, cache.KeySchema, schema, 0))

			got, ok := cache.Fetch[*models.Schema](ctx, c, cache.KeySchema)
			require.True(t, ok)
			assert.Equal(t, []string{"File"}, got.Labels)
			assert.Equal(t, []string{"IMPORTS"}, got.RelationshipTypes)

			_, ok = cache.Fetch[*models.Schema](ctx, c, "graph:nothing")
			assert.False(t, ok)
		})
	}
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	require.NoError(t, c.Set(ctx, "short", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestNew_FallsBackToMemory(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	c := cache.New(cache.Options{
		Type:      "redis",
		Size:      8,
		TTL:       time.Minute,
		RedisHost: "127.0.0.1",
		RedisPort: 1,
	}, logger)
	defer c.Close()

	_, isMemory := c.(*cache.MemoryCache)
	assert.True(t, isMemory)
}

func TestMemoryCache_EntryTTL(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(8, time.Hour)

	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
	require.NoError(t, c.Set(ctx, "long", "v", 0))
	assert.Equal(t, 2, c.Len())

	time.Sleep(40 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, cache.ErrMiss)
	ok, _ := c.Exists(ctx, "long")
	assert.True(t, ok)
}

func TestRedisCache_ReturnsRawJSON(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)

	require.NoError(t, c.Set(ctx, cache.KeyAnswer+"q", map[string]interface{}{"answer": "42"}, 0))

	raw, err := c.Get(ctx, cache.KeyAnswer+"q")
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"42"}`, string(raw.(json.RawMessage)))
}
