// Package graph holds the in-memory file graph behind the workspace explorer.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNodeNotFound is returned when a path query names an unknown node
var ErrNodeNotFound = errors.New("node not found")

// ErrNoPath is returned when no path exists within the depth limit
var ErrNoPath = errors.New("no path found")

// Graph defines the operations the workspace needs
type Graph interface {
	AddNode(nodeID string, nodeType string) error
	NodeType(nodeID string) (string, bool)
	AddEdge(from, to, relationship string) error
	RemoveEdge(from, to, relationship string) error
	GetNeighbors(nodeID string) (map[string][]string, error)
	GetIncomingEdges(nodeID string) (map[string][]string, error)
	FindPath(from, to string, maxDepth int) ([]string, error)
	HasCycle() bool
	NodeCount() int
	EdgeCount() int
}

var _ Graph = (*IndexedGraph)(nil)

// relations is the set of relationship types between an ordered node pair
type relations map[string]bool

func (r relations) sorted() []string {
	out := make([]string, 0, len(r))
	for rel := range r {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// IndexedGraph implements Graph with forward and reverse adjacency lists
type IndexedGraph struct {
	adjacency map[string]map[string]relations // node -> {neighbor -> relationships}
	reverse   map[string]map[string]relations
	types     map[string]string // node -> type
	mu        sync.RWMutex
}

// NewIndexedGraph creates an empty graph
func NewIndexedGraph() *IndexedGraph {
	return &IndexedGraph{
		adjacency: make(map[string]map[string]relations),
		reverse:   make(map[string]map[string]relations),
		types:     make(map[string]string),
	}
}

// ensure creates the adjacency entries for nodeID. Callers hold g.mu.
func (g *IndexedGraph) ensure(nodeID string) {
	if _, exists := g.adjacency[nodeID]; !exists {
		g.adjacency[nodeID] = make(map[string]relations)
		g.reverse[nodeID] = make(map[string]relations)
	}
}

// AddNode adds a node, or retypes an existing one
func (g *IndexedGraph) AddNode(nodeID string, nodeType string) error {
	if nodeID == "" {
		return fmt.Errorf("node id is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensure(nodeID)
	if nodeType != "" {
		g.types[nodeID] = nodeType
	}
	return nil
}

// NodeType returns the type a node was added with. Nodes created only as
// edge endpoints have no type.
func (g *IndexedGraph) NodeType(nodeID string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	typ, ok := g.types[nodeID]
	return typ, ok
}

// AddEdge adds a directed edge. Missing endpoints are created untyped.
func (g *IndexedGraph) AddEdge(from, to, relationship string) error {
	if from == "" || to == "" {
		return fmt.Errorf("edge endpoints are required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensure(from)
	g.ensure(to)
	if g.adjacency[from][to] == nil {
		g.adjacency[from][to] = make(relations)
		g.reverse[to][from] = make(relations)
	}
	g.adjacency[from][to][relationship] = true
	g.reverse[to][from][relationship] = true
	return nil
}

// RemoveEdge removes one relationship between from and to, or all of them
// when relationship is empty.
func (g *IndexedGraph) RemoveEdge(from, to, relationship string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rels, exists := g.adjacency[from][to]
	if !exists {
		return nil
	}
	if relationship != "" {
		delete(rels, relationship)
		delete(g.reverse[to][from], relationship)
		if len(rels) > 0 {
			return nil
		}
	}
	delete(g.adjacency[from], to)
	delete(g.reverse[to], from)
	return nil
}

func copyRelations(in map[string]relations) map[string][]string {
	result := make(map[string][]string, len(in))
	for node, rels := range in {
		result[node] = rels.sorted()
	}
	return result
}

// GetNeighbors returns outgoing neighbours with their relationship types
func (g *IndexedGraph) GetNeighbors(nodeID string) (map[string][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyRelations(g.adjacency[nodeID]), nil
}

// GetIncomingEdges returns incoming neighbours with their relationship types
func (g *IndexedGraph) GetIncomingEdges(nodeID string) (map[string][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyRelations(g.reverse[nodeID]), nil
}

// sortedNeighbors keeps traversal deterministic. Callers hold g.mu.
func (g *IndexedGraph) sortedNeighbors(nodeID string) []string {
	out := make([]string, 0, len(g.adjacency[nodeID]))
	for n := range g.adjacency[nodeID] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// FindPath finds a shortest path between two nodes using BFS. maxDepth
// bounds the number of nodes on the path; zero means unbounded.
func (g *IndexedGraph) FindPath(from, to string, maxDepth int) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, exists := g.adjacency[from]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if _, exists := g.adjacency[to]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}

	queue := [][]string{{from}}
	visited := map[string]bool{from: true}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		current := path[len(path)-1]
		if current == to {
			return path, nil
		}
		if maxDepth > 0 && len(path) >= maxDepth {
			continue
		}

		for _, neighbor := range g.sortedNeighbors(current) {
			if !visited[neighbor] {
				visited[neighbor] = true
				newPath := make([]string, len(path), len(path)+1)
				copy(newPath, path)
				queue = append(queue, append(newPath, neighbor))
			}
		}
	}

	return nil, ErrNoPath
}

// HasCycle checks for a directed cycle using DFS
func (g *IndexedGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycleFrom func(string) bool
	hasCycleFrom = func(node string) bool {
		visited[node] = true
		recStack[node] = true

		for neighbor := range g.adjacency[node] {
			if !visited[neighbor] {
				if hasCycleFrom(neighbor) {
					return true
				}
			} else if recStack[neighbor] {
				return true
			}
		}

		recStack[node] = false
		return false
	}

	for node := range g.adjacency {
		if !visited[node] && hasCycleFrom(node) {
			return true
		}
	}
	return false
}

// NodeCount returns the number of nodes in the graph
func (g *IndexedGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adjacency)
}

// EdgeCount returns the number of typed edges in the graph
func (g *IndexedGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, neighbors := range g.adjacency {
		for _, rels := range neighbors {
			count += len(rels)
		}
	}
	return count
}
