package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T) *IndexedGraph {
	t.Helper()
	g := NewIndexedGraph()
	require.NoError(t, g.AddNode("0", "folder"))
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, g.AddNode(id, "file"))
		require.NoError(t, g.AddEdge("0", id, "contains"))
	}
	require.NoError(t, g.AddEdge("1", "2", "imports"))
	require.NoError(t, g.AddEdge("1", "2", "depends"))
	require.NoError(t, g.AddEdge("2", "3", "imports"))
	return g
}

func TestAddNodeAndEdge(t *testing.T) {
	g := buildGraph(t)

	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 6, g.EdgeCount())
	typ, ok := g.NodeType("0")
	assert.True(t, ok)
	assert.Equal(t, "folder", typ)

	neighbors, err := g.GetNeighbors("1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"2": {"depends", "imports"}}, neighbors)

	incoming, err := g.GetIncomingEdges("2")
	require.NoError(t, err)
	assert.Equal(t, []string{"contains"}, incoming["0"])
	assert.Equal(t, []string{"depends", "imports"}, incoming["1"])
}

func TestAddNode_Retype(t *testing.T) {
	g := NewIndexedGraph()
	require.NoError(t, g.AddNode("a", "file"))
	require.NoError(t, g.AddNode("a", "folder"))

	typ, _ := g.NodeType("a")
	assert.Equal(t, "folder", typ)
	assert.Error(t, g.AddNode("", "file"))

	require.NoError(t, g.AddEdge("a", "b", "imports"))
	_, ok := g.NodeType("b")
	assert.False(t, ok, "edge endpoints are untyped")
	assert.Equal(t, 2, g.NodeCount())
}

func TestRemoveEdge(t *testing.T) {
	g := buildGraph(t)

	require.NoError(t, g.RemoveEdge("1", "2", "depends"))
	neighbors, _ := g.GetNeighbors("1")
	assert.Equal(t, []string{"imports"}, neighbors["2"])

	require.NoError(t, g.RemoveEdge("1", "2", ""))
	neighbors, _ = g.GetNeighbors("1")
	assert.Empty(t, neighbors)
	incoming, _ := g.GetIncomingEdges("2")
	assert.NotContains(t, incoming, "1")
}

func TestFindPath(t *testing.T) {
	g := buildGraph(t)

	path, err := g.FindPath("1", "3", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, path)

	path, err = g.FindPath("0", "3", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "3"}, path, "shortest path wins")

	_, err = g.FindPath("1", "3", 2)
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = g.FindPath("3", "1", 0)
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = g.FindPath("1", "missing", 0)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestHasCycle(t *testing.T) {
	g := buildGraph(t)
	assert.False(t, g.HasCycle())

	require.NoError(t, g.AddEdge("3", "1", "imports"))
	assert.True(t, g.HasCycle())
}
