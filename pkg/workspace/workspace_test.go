package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fastctx/fastctx/pkg/graph"
	"github.com/fastctx/fastctx/pkg/llm/llmtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = zerolog.New(os.Stdout).Level(zerolog.Disabled)

func writeProject(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "proj")
	files := map[string]string{
		"main.py":   "import utils\n\ndef main():\n    api_key = load()\n    utils.helper()\n",
		"utils.py":  "def helper():\n    return 42\n",
		"app.js":    "const u = require('./utils')\n",
		"README.md": "# not scanned\n",
	}
	for name, content := range files {
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return base, dir
}

func setup(t *testing.T) (*Workspace, *llmtest.Generator, string) {
	t.Helper()
	base, dir := writeProject(t)
	gen := &llmtest.Generator{Default: "no json here"}
	gen.On("File: "+filepath.Join(dir, "main.py")+"\n", `{"type": "module", "name": "main", "imports": ["utils"], "dependencies": ["utils.py"]}`)
	gen.On("File: "+filepath.Join(dir, "app.js")+"\n", "```json\n{\"type\": \"module\", \"name\": \"app\", \"imports\": [\"./utils\"]}\n```")
	return New(gen, base, 20, testLogger), gen, dir
}

func TestInitialize(t *testing.T) {
	ws, gen, dir := setup(t)

	res, err := ws.Initialize(context.Background(), "proj")
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	require.Len(t, res.Nodes, 4)
	assert.Equal(t, Node{ID: "0", Type: "folder", Label: "proj", Data: map[string]interface{}{"path": dir, "type": "folder"}}, res.Nodes[0])
	assert.Equal(t, "app.js", res.Nodes[1].Label)
	assert.Equal(t, "main.py", res.Nodes[2].Label)
	assert.Equal(t, "python", res.Nodes[2].Data["type"])
	assert.Equal(t, "utils.py", res.Nodes[3].Label)

	ids := make([]string, len(res.Edges))
	for i, e := range res.Edges {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"e-0-1", "e-0-2", "e-0-3", "e-1-3-import", "e-2-3-import", "e-2-3-dep"}, ids)
	assert.Equal(t, "depends on", res.Edges[5].Label)

	assert.Equal(t, Stats{FilesAnalyzed: 3, NodesCreated: 4, EdgesCreated: 6}, res.Stats)

	fallback := res.Nodes[3].Data["analysis"].(*Analysis)
	assert.Equal(t, "utils", fallback.Name, "unparseable replies fall back to the file stem")
	assert.Equal(t, 3, gen.Calls())
	assert.Equal(t, 0.1, gen.Options[0].Temperature)
	assert.Equal(t, 500, gen.Options[0].MaxTokens)
}

func TestInitialize_FallsBackToBaseDir(t *testing.T) {
	ws, _, _ := setup(t)

	res, err := ws.Initialize(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.FilesAnalyzed, "base dir holds the project")
}

func TestInitialize_MaxFiles(t *testing.T) {
	base, _ := writeProject(t)
	ws := New(&llmtest.Generator{Default: "{}"}, base, 2, testLogger)

	res, err := ws.Initialize(context.Background(), "proj")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.FilesAnalyzed)
	assert.Len(t, res.Nodes, 3)
}

func TestInitialize_AnalysisError(t *testing.T) {
	base, _ := writeProject(t)
	gen := (&llmtest.Generator{}).Fail("Analyze this code file", errors.New("unavailable"))
	ws := New(gen, base, 20, testLogger)

	res, err := ws.Initialize(context.Background(), "proj")
	require.NoError(t, err)
	assert.Equal(t, "Analysis failed", res.Nodes[1].Data["analysis"].(*Analysis).Error)
	assert.Len(t, res.Edges, 3)
}

func TestExecute_Search(t *testing.T) {
	ws, gen, _ := setup(t)
	ctx := context.Background()
	_, err := ws.Initialize(ctx, "proj")
	require.NoError(t, err)
	calls := gen.Calls()

	res := ws.Execute(ctx, "find helper")
	require.NotNil(t, res.Tool)
	assert.Equal(t, "search_codebase", *res.Tool)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "Found 'helper' in 2 files (2 total matches):\n\n\n📄 main.py:\n  Line 5: utils.helper()\n\n📄 utils.py:\n  Line 1: def helper():", res.Output)
	assert.Equal(t, 2, res.Details["filesWithMatches"])
	assert.Equal(t, calls, gen.Calls(), "keyword commands skip the LLM")
}

func TestExecute_SearchVariants(t *testing.T) {
	ws, _, _ := setup(t)
	ctx := context.Background()
	_, err := ws.Initialize(ctx, "proj")
	require.NoError(t, err)

	res := ws.Execute(ctx, "where is API key")
	assert.Equal(t, "success", res.Status)
	assert.Contains(t, res.Output, "Line 4: api_key = load()")
}

func TestExecute_SearchFuzzyAndMissing(t *testing.T) {
	ws, _, _ := setup(t)
	ctx := context.Background()
	_, err := ws.Initialize(ctx, "proj")
	require.NoError(t, err)

	res := ws.Execute(ctx, "search return helper")
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "No exact matches for 'return helper', but found potential matches in:\n📄 utils.py", res.Output)

	res = ws.Execute(ctx, "locate quantum")
	assert.Equal(t, "warning", res.Status)
	assert.Equal(t, "No matches found for 'quantum'", res.Output)
}

func TestExecute_LLMInterpretation(t *testing.T) {
	ws, gen, _ := setup(t)
	gen.On("Command: map the imports", `{"tool": "dependency_mapper", "params": {}, "confidence": 0.7}`)
	gen.On("Command: parse main", `{"tool": "ast_parser", "params": {"file_path": "main.py"}}`)
	gen.On("Command: do a barrel roll", `{"tool": null, "confidence": 0}`)

	ctx := context.Background()
	_, err := ws.Initialize(ctx, "proj")
	require.NoError(t, err)

	res := ws.Execute(ctx, "map the imports")
	assert.Equal(t, "Mapped dependencies across 3 files", res.Output)
	assert.Equal(t, 2, res.Details["edgesCreated"])
	assert.Equal(t, 0.7, res.Details["confidence"])
	assert.Equal(t, 300, gen.Options[len(gen.Options)-1].MaxTokens)

	res = ws.Execute(ctx, "parse main")
	assert.Equal(t, `Executed ast_parser with params: {"file_path":"main.py"}`, res.Output)

	res = ws.Execute(ctx, "do a barrel roll")
	assert.Nil(t, res.Tool)
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "No matching MCP tool found for this command", res.Error)
	assert.Equal(t, "Try using '/' to see available tools", res.Suggestion)
}

func TestUpdateAndPath(t *testing.T) {
	ws, gen, dir := setup(t)
	ctx := context.Background()
	_, err := ws.Initialize(ctx, "proj")
	require.NoError(t, err)

	_, err = ws.Path("3", "2", 0)
	assert.ErrorIs(t, err, graph.ErrNoPath)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "utils.py"), []byte("import main\n"), 0644))
	gen.On("import main", `{"type": "module", "name": "utils", "imports": ["main"]}`)

	res, err := ws.Update(ctx, "utils.py")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, filepath.Join(dir, "utils.py"), res.File)
	assert.Equal(t, []string{"main"}, res.Analysis.Imports)

	path, err := ws.Path("3", "2", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, path.Nodes)
	assert.Equal(t, []string{"utils.py", "main.py"}, path.Labels)

	details := ws.Node("3")
	assert.Equal(t, "file", details.Type)
	assert.Equal(t, "import main\n", details.Content)
	assert.Equal(t, []string{"main.py"}, details.References)
	assert.Equal(t, []string{"app.js", "main.py"}, details.ReferencedBy)

	details = ws.Node("1")
	assert.Equal(t, []string{"utils.py"}, details.References)
	assert.Empty(t, details.ReferencedBy)
}

func TestUpdate_Missing(t *testing.T) {
	ws, _, _ := setup(t)
	_, err := ws.Initialize(context.Background(), "proj")
	require.NoError(t, err)

	res, err := ws.Update(context.Background(), "nope.py")
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Equal(t, &UpdateResult{Status: "error", Message: "File not found"}, res)
}

func TestNode_Unknown(t *testing.T) {
	ws, _, _ := setup(t)

	details := ws.Node("42")
	assert.Equal(t, "unknown", details.Type)
	assert.Empty(t, details.Content)
	assert.Empty(t, details.ReferencedBy)
}

func TestTools(t *testing.T) {
	tools := Tools()
	require.Len(t, tools, 8)
	assert.Equal(t, "file_reader", tools[0].Name)
	assert.Equal(t, "/search_codebase", tools[3].Command)
	assert.Equal(t, []string{"query", "file_pattern"}, tools[3].Params)
}

func TestSearchTerms(t *testing.T) {
	terms := searchTerms("userService")
	assert.Contains(t, terms, "userservice")
	assert.Contains(t, terms, "user service")
}
