package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fastctx/fastctx/pkg/llm"
)

// Tool describes one explorer command
type Tool struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []string `json:"params"`
	Command     string   `json:"command"`
}

var catalogue = []Tool{
	{Name: "file_reader", Description: "Read and analyze file contents", Params: []string{"path"}},
	{Name: "code_analyzer", Description: "Deep analysis of code structure and patterns", Params: []string{"file_path", "analysis_type"}},
	{Name: "dependency_mapper", Description: "Map dependencies and imports between files", Params: []string{"source_file", "target_files"}},
	{Name: "search_codebase", Description: "Search for patterns, functions, or text in codebase", Params: []string{"query", "file_pattern"}},
	{Name: "graph_builder", Description: "Build or update knowledge graph connections", Params: []string{"nodes", "relationship_type"}},
	{Name: "ast_parser", Description: "Parse abstract syntax tree of code", Params: []string{"file_path", "extract_type"}},
	{Name: "symbol_finder", Description: "Find symbol definitions and usages", Params: []string{"symbol_name", "scope"}},
	{Name: "refactor_helper", Description: "Suggest refactoring opportunities", Params: []string{"file_path", "refactor_type"}},
}

// Tools returns the command catalogue
func Tools() []Tool {
	tools := make([]Tool, len(catalogue))
	for i, t := range catalogue {
		t.Command = "/" + t.Name
		tools[i] = t
	}
	return tools
}

// Interpretation is the tool chosen for a command
type Interpretation struct {
	Tool        string                 `json:"tool"`
	Params      map[string]interface{} `json:"params"`
	Confidence  float64                `json:"confidence"`
	Explanation string                 `json:"explanation"`
}

// Result is the outcome of Execute
type Result struct {
	Tool       *string                `json:"tool"`
	Status     string                 `json:"status"`
	Output     string                 `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

var (
	searchKeywords = []string{"search", "find", "look for", "where is", "locate"}
	searchPrefixes = []string{"search for", "find", "look for", "where is", "locate", "search"}
	searchPhrase   = regexp.MustCompile(`(?i)(?:search|find|look for|where is)\s+(.+?)(?:\s+stored|\s+located|$)`)
)

// interpretKeywords recognizes search commands without the LLM.
func interpretKeywords(command string) (*Interpretation, bool) {
	lower := strings.ToLower(command)
	matched := false
	for _, kw := range searchKeywords {
		if strings.Contains(lower, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, false
	}

	query := command
	for _, prefix := range searchPrefixes {
		if i := strings.Index(lower, prefix); i >= 0 {
			rest := lower[i+len(prefix):]
			if len(lower) == len(command) {
				rest = command[i+len(prefix):]
			}
			query = strings.TrimSpace(rest)
			break
		}
	}
	return &Interpretation{
		Tool:        "search_codebase",
		Params:      map[string]interface{}{"query": query},
		Confidence:  0.9,
		Explanation: "Searching codebase for: " + query,
	}, true
}

func interpretPrompt(command string) string {
	tools := make(map[string]interface{}, len(catalogue))
	for _, t := range catalogue {
		tools[t.Name] = map[string]interface{}{"description": t.Description, "params": t.Params}
	}
	catalogueJSON, _ := json.MarshalIndent(tools, "", "  ")

	return fmt.Sprintf(`Given this natural language command, determine which MCP tool to use and with what parameters.

Command: %s

Available tools:
%s

Return JSON with:
- tool: the tool name to use (or null if no matching tool)
- params: dict of parameters with actual values extracted from the command
- confidence: 0-1 confidence score
- explanation: brief explanation

For search commands, extract the actual search term into params.query
If the command doesn't match any tool well, return tool: null
`, command, catalogueJSON)
}

// Interpret maps a natural language command onto a tool. An empty Tool
// means nothing matched.
func (w *Workspace) Interpret(ctx context.Context, command string) *Interpretation {
	if in, ok := interpretKeywords(command); ok {
		return in
	}

	reply, err := w.gen.Generate(ctx, interpretPrompt(command),
		llm.WithTemperature(0.1),
		llm.WithMaxTokens(300),
	)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Command interpretation failed")
		return &Interpretation{}
	}
	in, err := llm.ExtractJSONAs[Interpretation](reply)
	if err != nil {
		w.logger.Debug().Err(err).Msg("Unparseable interpretation")
		return &Interpretation{}
	}
	if in.Params == nil {
		in.Params = map[string]interface{}{}
	}
	return &in
}

func confidence(in *Interpretation, fallback float64) float64 {
	if in.Confidence == 0 {
		return fallback
	}
	return in.Confidence
}

// Execute interprets and runs a command against the initialized files.
func (w *Workspace) Execute(ctx context.Context, command string) *Result {
	in := w.Interpret(ctx, command)
	if in.Tool == "" {
		return &Result{
			Status:     "error",
			Error:      "No matching MCP tool found for this command",
			Suggestion: "Try using '/' to see available tools",
		}
	}
	tool := in.Tool
	base, files := w.snapshot()

	switch tool {
	case "search_codebase":
		query, _ := in.Params["query"].(string)
		if query == "" {
			if m := searchPhrase.FindStringSubmatch(command); m != nil {
				query = m[1]
			} else {
				query = strings.TrimSpace(strings.ReplaceAll(command, "/search_codebase", ""))
			}
		}
		res := search(base, files, query, confidence(in, 0.9))
		res.Tool = &tool
		return res

	case "dependency_mapper":
		edges := 0
		for _, e := range files {
			if e.Analysis != nil {
				edges += len(e.Analysis.Imports)
			}
		}
		return &Result{
			Tool:   &tool,
			Status: "success",
			Output: fmt.Sprintf("Mapped dependencies across %d files", len(files)),
			Details: map[string]interface{}{
				"filesAnalyzed": len(files),
				"edgesCreated":  edges,
				"confidence":    confidence(in, 0.8),
			},
		}

	default:
		params, _ := json.Marshal(in.Params)
		return &Result{
			Tool:   &tool,
			Status: "success",
			Output: fmt.Sprintf("Executed %s with params: %s", tool, params),
			Details: map[string]interface{}{
				"filesAnalyzed": len(files),
				"confidence":    confidence(in, 0.8),
			},
		}
	}
}
