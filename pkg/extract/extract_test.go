package extract

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/fastctx/fastctx/pkg/llm"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = zerolog.New(os.Stdout).Level(zerolog.Disabled)

// fakeGenerator answers by looking up the document content in replies.
type fakeGenerator struct {
	mu       sync.Mutex
	replies  map[string]string
	prompts  []string
	inFlight int32
	maxSeen  int32
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	for content, reply := range f.replies {
		if strings.HasSuffix(prompt, "Input:\n"+content) {
			if reply == "ERR" {
				return "", errors.New("provider unavailable")
			}
			return reply, nil
		}
	}
	return `{"nodes": [], "relationships": []}`, nil
}

func doc(path, content string) models.Document {
	return models.Document{
		ID:       path,
		Content:  content,
		Metadata: map[string]interface{}{models.MetaPath: path},
	}
}

func TestNormalization(t *testing.T) {
	assert.Equal(t, "CodeFile", NodeLabel("code file"))
	assert.Equal(t, "CodeFile", NodeLabel("code_file"))
	assert.Equal(t, "Function", NodeLabel("FUNCTION"))
	assert.Equal(t, "HttpServer", NodeLabel("HTTPServer"))
	assert.Equal(t, "", NodeLabel("  "))

	assert.Equal(t, "DEPENDS_ON", RelationshipType("dependsOn"))
	assert.Equal(t, "IMPORTS_FROM", RelationshipType("imports from"))
	assert.Equal(t, "CALLS", RelationshipType("CALLS"))
	assert.Equal(t, "INHERITS_FROM", RelationshipType("inherits-from"))
}

func TestConvertOne(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{
		"class A(B): pass": "```json\n" + `{
			"nodes": [
				{"id": "A", "type": "class"},
				{"id": "A", "type": "Class"},
				{"id": "main.py", "type": "file", "properties": {"lines": 1}}
			],
			"relationships": [
				{"source_node_id": "A", "source_node_type": "class", "target_node_id": "B", "target_node_type": "class", "type": "inheritsFrom"},
				{"source_node_id": "main.py", "target_node_id": "A", "type": "defines"},
				{"source_node_id": "A", "target_node_id": "Unknown", "type": "uses"},
				{"source": {"id": "main.py", "type": "File"}, "target": {"id": "A", "type": "Class"}, "type": "DEFINES"}
			]
		}` + "\n```",
	}}
	tr := NewTransformer(gen, Config{}, testLogger)

	gd, err := tr.ConvertOne(context.Background(), doc("main.py", "class A(B): pass"))
	require.NoError(t, err)

	assert.Equal(t, "main.py", gd.Source.Path())
	assert.Equal(t, []models.Node{
		{ID: "A", Type: "Class"},
		{ID: "main.py", Type: "File", Properties: map[string]interface{}{"lines": float64(1)}},
		{ID: "B", Type: "Class"},
	}, gd.Nodes)

	require.Len(t, gd.Relationships, 2, "unknown endpoint without a type is dropped, duplicate DEFINES merged")
	assert.Equal(t, "INHERITS_FROM", gd.Relationships[0].Type)
	assert.Equal(t, "B", gd.Relationships[0].Target.ID)
	assert.Equal(t, "DEFINES", gd.Relationships[1].Type)
	assert.Equal(t, "File", gd.Relationships[1].Source.Type)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "File: main.py")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 0))
	assert.Equal(t, "héllo", truncateRunes("héllo", 5))
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, "日本語", truncateRunes("日本語", 4), "byte length is not the cap")
}

func TestConvertOne_TruncatesOnRuneBoundary(t *testing.T) {
	gen := &fakeGenerator{}
	tr := NewTransformer(gen, Config{MaxContentChars: 3}, testLogger)

	_, err := tr.ConvertOne(context.Background(), doc("i18n.txt", "ééééé"))
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.True(t, utf8.ValidString(gen.prompts[0]))
	assert.True(t, strings.HasSuffix(gen.prompts[0], "Input:\nééé"))
}

func TestConvertOne_AllowedTypes(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{
		"x": `{"nodes": [{"id": "f", "type": "Function"}, {"id": "v", "type": "Variable"}],
		       "relationships": [
		         {"source_node_id": "f", "source_node_type": "Function", "target_node_id": "v", "target_node_type": "Variable", "type": "READS"},
		         {"source_node_id": "f", "source_node_type": "Function", "target_node_id": "g", "target_node_type": "Function", "type": "CALLS"}
		       ]}`,
	}}
	tr := NewTransformer(gen, Config{
		AllowedNodes:         []string{"function"},
		AllowedRelationships: []string{"calls"},
	}, testLogger)

	gd, err := tr.ConvertOne(context.Background(), doc("x.go", "x"))
	require.NoError(t, err)

	assert.Equal(t, []models.Node{{ID: "f", Type: "Function"}, {ID: "g", Type: "Function"}}, gd.Nodes)
	require.Len(t, gd.Relationships, 1)
	assert.Equal(t, "CALLS", gd.Relationships[0].Type)
	assert.Contains(t, gen.prompts[0], "Use only these node types: function")
}

func TestConvert_SkipsFailures(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{
		"ok1":  `{"nodes": [{"id": "a", "type": "Module"}], "relationships": []}`,
		"bad":  "ERR",
		"junk": "I cannot help with that.",
		"ok2":  `{"nodes": [{"id": 42, "type": "Constant"}]}`,
	}}
	tr := NewTransformer(gen, Config{BatchSize: 2, Workers: 2}, testLogger)

	docs := []models.Document{doc("1", "ok1"), doc("2", "bad"), doc("3", "junk"), doc("4", "ok2")}
	out, err := tr.Convert(context.Background(), docs)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].Source.Path())
	assert.Equal(t, "4", out[1].Source.Path())
	assert.Equal(t, "42", out[1].Nodes[0].ID)
	assert.Empty(t, out[1].Relationships)
}

func TestConvert_BoundedWorkers(t *testing.T) {
	gen := &fakeGenerator{}
	tr := NewTransformer(gen, Config{BatchSize: 10, Workers: 3}, testLogger)

	docs := make([]models.Document, 25)
	for i := range docs {
		docs[i] = doc(string(rune('a'+i)), "content")
	}
	out, err := tr.Convert(context.Background(), docs)
	require.NoError(t, err)

	assert.Len(t, out, 25)
	assert.LessOrEqual(t, atomic.LoadInt32(&gen.maxSeen), int32(3))
}

func TestConvert_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &cancellingGenerator{}
	_, err := NewTransformer(gen, Config{}, testLogger).Convert(ctx, []models.Document{doc("a", "b")})
	assert.ErrorIs(t, err, context.Canceled)
}

type cancellingGenerator struct{}

func (cancellingGenerator) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return "", ctx.Err()
}
