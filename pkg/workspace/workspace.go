// Package workspace is an in-memory code explorer: it scans a directory,
// has the LLM summarize each file, links files by their imports and
// answers tool commands over the result.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fastctx/fastctx/pkg/document"
	"github.com/fastctx/fastctx/pkg/graph"
	"github.com/fastctx/fastctx/pkg/llm"
	"github.com/fastctx/fastctx/pkg/source"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CodeExtensions are the file types the explorer scans
var CodeExtensions = []string{
	".py", ".js", ".jsx", ".ts", ".tsx", ".json", ".java", ".cpp", ".c", ".h",
	".hpp", ".cs", ".rb", ".go", ".rs", ".php", ".swift", ".kt", ".scala",
	".r", ".m", ".mm", ".xml", ".yaml", ".yml", ".toml", ".ini", ".cfg",
	".conf", ".sh", ".bash", ".zsh", ".fish", ".ps1", ".bat", ".cmd",
}

const (
	rootNodeID     = "0"
	previewChars   = 500
	relContains    = "contains"
	relImports     = "imports"
	relDepends     = "depends"
	nodeTypeFolder = "folder"
	nodeTypeFile   = "file"
)

// ErrFileNotFound is returned by Update for a missing file
var ErrFileNotFound = errors.New("File not found")

// Node is a vertex in the explorer graph
type Node struct {
	ID    string                 `json:"id"`
	Type  string                 `json:"type"`
	Label string                 `json:"label"`
	Data  map[string]interface{} `json:"data"`
}

// Edge connects two nodes
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Label  string `json:"label,omitempty"`
}

// Stats summarizes an initialization
type Stats struct {
	FilesAnalyzed int  `json:"filesAnalyzed"`
	NodesCreated  int  `json:"nodesCreated"`
	EdgesCreated  int  `json:"edgesCreated"`
	HasCycles     bool `json:"hasCycles"`
}

// InitResult is returned by Initialize
type InitResult struct {
	ID    string `json:"id"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats Stats  `json:"stats"`
}

// UpdateResult is returned by Update
type UpdateResult struct {
	Status   string    `json:"status"`
	File     string    `json:"file,omitempty"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// NodeDetails describes one node for the detail panel
type NodeDetails struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Path     string    `json:"path,omitempty"`
	Content  string    `json:"content"`
	Analysis *Analysis `json:"analysis"`
	// Labels of files this node imports or depends on, and of files that
	// import or depend on it.
	References   []string `json:"references"`
	ReferencedBy []string `json:"referencedBy"`
}

// PathResult is a route between two nodes
type PathResult struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Nodes  []string `json:"nodes"`
	Labels []string `json:"labels"`
}

type fileEntry struct {
	NodeID      string
	Content     string
	Analysis    *Analysis
	LastUpdated time.Time
}

// Workspace holds the explorer state for the most recently initialized path
type Workspace struct {
	gen      llm.Generator
	baseDir  string
	maxFiles int
	logger   zerolog.Logger

	mu       sync.RWMutex
	basePath string
	files    map[string]*fileEntry // absolute path -> entry
	labels   map[string]string     // node id -> label
	graph    *graph.IndexedGraph
}

// New creates a workspace. Relative paths given to Initialize resolve
// against baseDir.
func New(gen llm.Generator, baseDir string, maxFiles int, logger zerolog.Logger) *Workspace {
	if maxFiles <= 0 {
		maxFiles = 20
	}
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}
	return &Workspace{
		gen:      gen,
		baseDir:  baseDir,
		maxFiles: maxFiles,
		logger:   logger.With().Str("component", "workspace").Logger(),
		files:    make(map[string]*fileEntry),
		labels:   make(map[string]string),
		graph:    graph.NewIndexedGraph(),
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// resolve maps a requested path onto a directory, falling back to baseDir.
func (w *Workspace) resolve(requested string) string {
	if requested != "" && filepath.IsAbs(requested) && exists(requested) {
		return filepath.Clean(requested)
	}
	candidate := filepath.Join(w.baseDir, strings.TrimPrefix(requested, "/"))
	if exists(candidate) {
		return candidate
	}
	return w.baseDir
}

func readText(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

// cleanReference strips relative prefixes and script extensions so that an
// import can be matched against file names and stems.
func cleanReference(ref string, stripPrefixes bool) string {
	if stripPrefixes {
		ref = strings.ReplaceAll(ref, "../", "")
		ref = strings.ReplaceAll(ref, "./", "")
	}
	ref = strings.ReplaceAll(ref, ".py", "")
	return strings.ReplaceAll(ref, ".js", "")
}

// Initialize scans path, analyzes every file and rebuilds the graph.
func (w *Workspace) Initialize(ctx context.Context, path string) (*InitResult, error) {
	base := w.resolve(path)

	paths, err := source.Walk(ctx, base, source.WalkOptions{
		ExcludeDirs: source.DefaultExcludeDirs,
		IncludeExts: CodeExtensions,
		MaxFiles:    w.maxFiles,
	}, w.logger)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", base, err)
	}

	contents := make(map[string]string, len(paths))
	for _, p := range paths {
		if content, ok := readText(p); ok {
			contents[p] = content
		}
	}
	known := make([]string, 0, len(contents))
	for _, p := range paths {
		if _, ok := contents[p]; ok {
			known = append(known, p)
		}
	}

	label := filepath.Base(base)
	if label == "" || label == "." || label == string(filepath.Separator) {
		label = "root"
	}
	nodes := []Node{{
		ID:    rootNodeID,
		Type:  nodeTypeFolder,
		Label: label,
		Data:  map[string]interface{}{"path": base, "type": nodeTypeFolder},
	}}
	var edges []Edge
	g := graph.NewIndexedGraph()
	_ = g.AddNode(rootNodeID, nodeTypeFolder)

	files := make(map[string]*fileEntry)
	labels := map[string]string{rootNodeID: label}
	byName := make(map[string]string)
	analyses := make(map[string]*Analysis)

	nextID := 1
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content := contents[p]
		if content == "" {
			continue
		}

		analysis := w.analyze(ctx, p, content, known)
		id := strconv.Itoa(nextID)
		nextID++
		name := filepath.Base(p)

		nodes = append(nodes, Node{
			ID:    id,
			Type:  nodeTypeFile,
			Label: name,
			Data: map[string]interface{}{
				"path":         p,
				"type":         document.LanguageFromPath(p),
				"content":      truncate(content, previewChars),
				"full_content": content,
				"analysis":     analysis,
			},
		})
		byName[name] = id
		byName[strings.TrimSuffix(name, filepath.Ext(name))] = id
		labels[id] = name
		analyses[id] = analysis

		edges = append(edges, Edge{
			ID:     fmt.Sprintf("e-%s-%s", rootNodeID, id),
			Source: rootNodeID,
			Target: id,
			Type:   relContains,
		})
		_ = g.AddNode(id, nodeTypeFile)
		_ = g.AddEdge(rootNodeID, id, relContains)

		files[p] = &fileEntry{NodeID: id, Content: content, Analysis: analysis, LastUpdated: time.Now().UTC()}
	}

	for _, node := range nodes[1:] {
		edges = append(edges, linkEdges(g, node.ID, analyses[node.ID], byName)...)
	}

	w.mu.Lock()
	w.basePath = base
	w.files = files
	w.labels = labels
	w.graph = g
	w.mu.Unlock()

	result := &InitResult{
		ID:    uuid.New().String(),
		Nodes: nodes,
		Edges: edges,
		Stats: Stats{
			FilesAnalyzed: len(paths),
			NodesCreated:  g.NodeCount(),
			EdgesCreated:  g.EdgeCount(),
			HasCycles:     g.HasCycle(),
		},
	}
	w.logger.Info().
		Str("path", base).
		Int("files", result.Stats.FilesAnalyzed).
		Int("edges", result.Stats.EdgesCreated).
		Msg("Workspace initialized")
	return result, nil
}

// linkEdges adds import and dependency edges for one file.
func linkEdges(g *graph.IndexedGraph, id string, analysis *Analysis, byName map[string]string) []Edge {
	if analysis == nil {
		return nil
	}
	var edges []Edge
	seen := make(map[string]bool)

	link := func(ref, rel, suffix, label string, stripPrefixes bool) {
		target, ok := byName[cleanReference(ref, stripPrefixes)]
		if !ok || target == id {
			return
		}
		edgeID := fmt.Sprintf("e-%s-%s-%s", id, target, suffix)
		if seen[edgeID] {
			return
		}
		seen[edgeID] = true
		_ = g.AddEdge(id, target, rel)
		edges = append(edges, Edge{ID: edgeID, Source: id, Target: target, Type: rel, Label: label})
	}

	for _, imp := range analysis.Imports {
		link(imp, relImports, "import", "imports", true)
	}
	for _, dep := range analysis.Dependencies {
		link(dep, relDepends, "dep", "depends on", false)
	}
	return edges
}

// Update re-reads and re-analyzes one file. Relative paths resolve against
// the initialized directory.
func (w *Workspace) Update(ctx context.Context, path string) (*UpdateResult, error) {
	w.mu.RLock()
	base := w.basePath
	known := make([]string, 0, len(w.files))
	for p := range w.files {
		known = append(known, p)
	}
	w.mu.RUnlock()
	sort.Strings(known)

	full := path
	if !filepath.IsAbs(full) && base != "" {
		full = filepath.Join(base, path)
	}
	content, ok := readText(full)
	if !ok {
		return &UpdateResult{Status: "error", Message: ErrFileNotFound.Error()}, ErrFileNotFound
	}

	analysis := w.analyze(ctx, full, content, known)

	w.mu.Lock()
	defer w.mu.Unlock()
	entry, tracked := w.files[full]
	if !tracked {
		entry = &fileEntry{}
		w.files[full] = entry
	}
	entry.Content = content
	entry.Analysis = analysis
	entry.LastUpdated = time.Now().UTC()

	if entry.NodeID != "" {
		w.relink(entry.NodeID, analysis)
	}

	return &UpdateResult{Status: "success", File: full, Analysis: analysis}, nil
}

// relink replaces a file's outgoing import and dependency edges. Callers
// hold w.mu.
func (w *Workspace) relink(id string, analysis *Analysis) {
	neighbors, _ := w.graph.GetNeighbors(id)
	for target, rels := range neighbors {
		for _, rel := range rels {
			if rel == relImports || rel == relDepends {
				_ = w.graph.RemoveEdge(id, target, rel)
			}
		}
	}

	byName := make(map[string]string)
	for p, e := range w.files {
		if e.NodeID == "" {
			continue
		}
		name := filepath.Base(p)
		byName[name] = e.NodeID
		byName[strings.TrimSuffix(name, filepath.Ext(name))] = e.NodeID
	}
	linkEdges(w.graph, id, analysis, byName)
}

// Node returns details for a node id, or an "unknown" placeholder.
func (w *Workspace) Node(id string) *NodeDetails {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for p, entry := range w.files {
		if entry.NodeID == id {
			outgoing, _ := w.graph.GetNeighbors(id)
			incoming, _ := w.graph.GetIncomingEdges(id)
			return &NodeDetails{
				ID:           id,
				Type:         nodeTypeFile,
				Path:         p,
				Content:      entry.Content,
				Analysis:     entry.Analysis,
				References:   w.linkLabels(outgoing),
				ReferencedBy: w.linkLabels(incoming),
			}
		}
	}
	return &NodeDetails{ID: id, Type: "unknown", Content: "", Analysis: &Analysis{}, References: []string{}, ReferencedBy: []string{}}
}

// linkLabels names the file nodes joined by import or dependency edges,
// skipping folder containment. Callers hold w.mu.
func (w *Workspace) linkLabels(links map[string][]string) []string {
	out := []string{}
	for node, rels := range links {
		if typ, _ := w.graph.NodeType(node); typ != nodeTypeFile {
			continue
		}
		for _, rel := range rels {
			if rel == relImports || rel == relDepends {
				out = append(out, w.labels[node])
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Path finds the shortest chain of edges from one node to another.
func (w *Workspace) Path(from, to string, maxDepth int) (*PathResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids, err := w.graph.FindPath(from, to, maxDepth)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = w.labels[id]
	}
	return &PathResult{From: from, To: to, Nodes: ids, Labels: labels}, nil
}

// snapshot copies the file map for read-only scans.
func (w *Workspace) snapshot() (string, map[string]*fileEntry) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	files := make(map[string]*fileEntry, len(w.files))
	for p, e := range w.files {
		copied := *e
		files[p] = &copied
	}
	return w.basePath, files
}
