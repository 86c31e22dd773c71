package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fastctx/fastctx/pkg/llm"
)

const analysisPreviewChars = 1500

// Analysis is the per-file summary produced by the LLM
type Analysis struct {
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	Imports      []string `json:"imports"`
	Exports      []string `json:"exports"`
	Functions    []string `json:"functions"`
	Classes      []string `json:"classes"`
	Dependencies []string `json:"dependencies"`
	Calls        []string `json:"calls"`
	Error        string   `json:"error,omitempty"`
}

// fallbackAnalysis is used when the reply cannot be parsed
func fallbackAnalysis(path string) *Analysis {
	return &Analysis{
		Type:         "module",
		Name:         strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Imports:      []string{},
		Exports:      []string{},
		Functions:    []string{},
		Classes:      []string{},
		Dependencies: []string{},
		Calls:        []string{},
	}
}

func analysisPrompt(path, content string, allFiles []string) string {
	names := make([]string, len(allFiles))
	for i, f := range allFiles {
		names[i] = fmt.Sprintf("%q", filepath.Base(f))
	}

	var b strings.Builder
	b.WriteString("Analyze this code file and extract detailed information. Return ONLY valid JSON.\n\n")
	fmt.Fprintf(&b, "File: %s\n", path)
	fmt.Fprintf(&b, "Extension: %s\n", filepath.Ext(path))
	fmt.Fprintf(&b, "Available files in project: [%s]\n\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "Code (first %d chars):\n%s\n\n", analysisPreviewChars, truncate(content, analysisPreviewChars))
	b.WriteString(`Return JSON with these fields:
- type: "module" or "class" or "component"
- name: main name/identifier
- imports: list of imported modules/files (match with available files)
- exports: list of exported functions/classes/components
- functions: list of function names defined
- classes: list of class names defined
- dependencies: list of files this depends on (from available files)
- calls: list of functions/methods this file calls from other files
`)
	return b.String()
}

// analyze asks the LLM for a file analysis. A failed call yields an
// analysis carrying only an error; an unparseable reply yields the fallback.
func (w *Workspace) analyze(ctx context.Context, path, content string, allFiles []string) *Analysis {
	reply, err := w.gen.Generate(ctx, analysisPrompt(path, content, allFiles),
		llm.WithTemperature(0.1),
		llm.WithMaxTokens(500),
	)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("File analysis failed")
		return &Analysis{Error: "Analysis failed"}
	}

	analysis, err := llm.ExtractJSONAs[Analysis](reply)
	if err != nil {
		w.logger.Debug().Err(err).Str("path", path).Msg("Unparseable analysis, using fallback")
		return fallbackAnalysis(path)
	}
	return &analysis
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
