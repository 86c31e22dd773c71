package graphstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fastctx/fastctx/pkg/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReadOnly(t *testing.T) {
	readOnly := []string{
		"MATCH (n) RETURN n LIMIT 10",
		"MATCH (f:File) WHERE f.path = 'CREATE TABLE' RETURN f",
		"MATCH (n) // MERGE later\nRETURN count(n)",
		"MATCH (n) WHERE n.offset > 1 RETURN n.reset",
		"CALL db.labels() YIELD label RETURN label",
		"MATCH (n:`SET`) RETURN n",
		"MATCH (n) /* CREATE */ RETURN n",
		"MATCH (n) WHERE n.name = \"it's // not a comment\" RETURN n",
		"CALL db.index.vector.queryNodes('code_embeddings', 4, $v) YIELD node RETURN node",
		"CALL apoc.cypher.run('MATCH (n) RETURN n', {}) YIELD value RETURN value",
	}
	for _, q := range readOnly {
		assert.True(t, IsReadOnly(q), q)
	}

	writes := []string{
		"CREATE (n:File {path: 'a'})",
		"MATCH (n) DETACH DELETE n",
		"match (n) set n.x = 1",
		"MERGE (n:File {path: $p})",
		"MATCH (n) REMOVE n:Label",
		"LOAD CSV FROM 'file:///x' AS row RETURN row",
		"CALL apoc.create.node(['X'], {})",
		"DROP INDEX code_embeddings",
		"MATCH (n) RETURN n // it's\nCREATE (x:Pwn) // '",
		"CALL db.index.vector.createNodeIndex('i','Chunk','embedding',3,'cosine')",
		"CALL apoc.cypher.doIt('CREATE (n)', {})",
		"CALL apoc.cypher.runWrite('CREATE (n)', {})",
		"CALL apoc.do.when(true, 'CREATE (n)', '', {})",
		"CALL apoc.refactor.mergeNodes([], {})",
		"CALL `apoc`.`create`.node(['X'], {})",
		"CALL apoc . periodic . iterate('MATCH (n) RETURN n', 'DELETE n', {})",
		"MATCH (n) RETURN n /* unterminated",
		"MATCH (n) WHERE n.x = 'unterminated RETURN n",
	}
	for _, q := range writes {
		assert.False(t, IsReadOnly(q), q)
	}
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "Class", SanitizeLabel("Class"))
	assert.Equal(t, "Code_File", SanitizeLabel("Code File"))
	assert.Equal(t, "DEPENDS_ON", SanitizeLabel("DEPENDS-ON"))
	assert.Equal(t, "Bad", SanitizeLabel("B`a)d"))
	assert.Equal(t, "_3D", SanitizeLabel("3D"))
	assert.Equal(t, "", SanitizeLabel("``"))
}

func TestSanitizeProperties(t *testing.T) {
	props := sanitizeProperties(map[string]interface{}{
		"name":   "main",
		"lines":  float64(12),
		"tags":   []interface{}{"a", "b"},
		"mixed":  []interface{}{"a", 1.0},
		"nested": map[string]interface{}{"k": "v"},
		"none":   nil,
	})

	assert.Equal(t, "main", props["name"])
	assert.Equal(t, float64(12), props["lines"])
	assert.Equal(t, []interface{}{"a", "b"}, props["tags"])
	assert.Equal(t, `["a",1]`, props["mixed"])
	assert.Equal(t, `{"k":"v"}`, props["nested"])
	assert.NotContains(t, props, "none")
}

func TestConvertValue(t *testing.T) {
	node := dbtype.Node{ElementId: "4:abc:1", Labels: []string{"File"}, Props: map[string]interface{}{"path": "a.go"}}
	rel := dbtype.Relationship{ElementId: "5:abc:2", StartElementId: "4:abc:1", EndElementId: "4:abc:3", Type: "IMPORTS", Props: map[string]interface{}{}}

	got := ConvertValue([]interface{}{node, rel, int64(3)})
	require.IsType(t, []interface{}{}, got)
	items := got.([]interface{})

	assert.Equal(t, map[string]interface{}{
		"id":         "4:abc:1",
		"labels":     []string{"File"},
		"properties": map[string]interface{}{"path": "a.go"},
	}, items[0])
	assert.Equal(t, "IMPORTS", items[1].(map[string]interface{})["type"])
	assert.Equal(t, "4:abc:3", items[1].(map[string]interface{})["end_node"])
	assert.Equal(t, int64(3), items[2])

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-05-01T12:00:00Z", ConvertValue(ts))
	assert.Equal(t, "2024-05-01", ConvertValue(dbtype.Date(ts)))
}

func TestFloat64s(t *testing.T) {
	assert.Equal(t, []float64{0.5, -1}, float64s([]float32{0.5, -1}))
}

func TestOpen_Unreachable(t *testing.T) {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	cfg := Config{URI: "bolt://127.0.0.1:1", Username: "neo4j", Password: "x"}

	store, err := Open(cfg, logger)
	require.NoError(t, err, "opening does not dial")
	defer store.Close(context.Background())
	assert.Equal(t, "code_embeddings", store.config.VectorIndex)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	assert.Error(t, store.Ping(ctx))

	_, err = Connect(ctx, cfg, logger)
	assert.ErrorContains(t, err, "verify neo4j connectivity")

	_, err = Open(Config{URI: "ftp://127.0.0.1:7687"}, logger)
	assert.ErrorContains(t, err, "create neo4j driver")
}

// Integration tests run against a live database when NEO4J_TEST_URI is set.
func testStore(t *testing.T) *Neo4jStore {
	t.Helper()
	uri := os.Getenv("NEO4J_TEST_URI")
	if uri == "" {
		t.Skip("NEO4J_TEST_URI not set")
	}

	store, err := Connect(context.Background(), Config{
		URI:         uri,
		Username:    envOr("NEO4J_TEST_USERNAME", "neo4j"),
		Password:    envOr("NEO4J_TEST_PASSWORD", "password"),
		VectorIndex: "fastctx_test_embeddings",
	}, zerolog.New(os.Stdout).Level(zerolog.Disabled))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.write(context.Background(), `MATCH (n) WHERE n.path STARTS WITH 'fastctx-test/' OR n.id STARTS WITH 'fastctx-test-' DETACH DELETE n`, nil)
		store.Close(context.Background())
	})
	return store
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestNeo4jStore_FileContent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, found, err := store.ReadFileContent(ctx, "fastctx-test/missing.go")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.WriteFileContent(ctx, "fastctx-test/a.go", "package a"))
	content, found, err := store.ReadFileContent(ctx, "fastctx-test/a.go")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "package a", content)
}

func TestNeo4jStore_GraphDocuments(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	gd := models.GraphDocument{
		Nodes: []models.Node{
			{ID: "fastctx-test-A", Type: "Class"},
			{ID: "fastctx-test-B", Type: "Class"},
		},
		Relationships: []models.Relationship{{
			Source: models.Node{ID: "fastctx-test-A", Type: "Class"},
			Target: models.Node{ID: "fastctx-test-B", Type: "Class"},
			Type:   "INHERITS_FROM",
		}},
		Source: models.Document{ID: "d1", Content: "class A(B)", Metadata: map[string]interface{}{models.MetaPath: "fastctx-test/a.py"}},
	}

	stats, err := store.AddGraphDocuments(ctx, []models.GraphDocument{gd}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Nodes)

	rows, err := store.RunQuery(ctx, `MATCH (:Document {path: 'fastctx-test/a.py'})-[:MENTIONS]->(e) RETURN count(e) AS n`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["n"])

	_, err = store.RunQuery(ctx, `CREATE (n:Forbidden)`, nil)
	assert.ErrorIs(t, err, ErrWriteQuery)

	schema, err := store.Schema(ctx)
	require.NoError(t, err)
	assert.Contains(t, schema.Labels, "Class")
	assert.Contains(t, schema.RelationshipTypes, "INHERITS_FROM")
	assert.NotContains(t, schema.Labels, EntityLabel)
}

func TestNeo4jStore_DocumentsKeyedBySource(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	docs := make([]models.Document, 0, 2)
	for _, origin := range []string{"/repo/one", "/repo/two"} {
		key := origin + "#fastctx-test/README.md"
		docs = append(docs, models.Document{
			ID:      "fastctx-test-" + origin[len("/repo/"):],
			Content: "# " + origin,
			Metadata: map[string]interface{}{
				models.MetaPath: "fastctx-test/README.md",
				models.MetaKey:  key,
			},
		})
	}
	require.NoError(t, store.UpsertDocuments(ctx, docs))

	rows, err := store.RunQuery(ctx, `MATCH (d:Document {path: 'fastctx-test/README.md'}) RETURN d.content AS content ORDER BY d.key`, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "# /repo/one", rows[0]["content"])
	assert.Equal(t, "# /repo/two", rows[1]["content"])
}
