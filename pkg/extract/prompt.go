package extract

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a top-tier algorithm designed for extracting information in structured formats to build a knowledge graph of a software code base.
Extract the entities (nodes) and the relations between them from the given source file.
- Nodes represent code entities such as modules, files, classes, functions, methods, variables, interfaces, packages, libraries and concepts.
- Node ids are human-readable names as they appear in the code, never integers.
- Node types are basic, general labels such as "Class" or "Function".
- Relationship types are general and timeless, such as "IMPORTS", "CALLS", "DEFINES", "INHERITS_FROM" or "DEPENDS_ON".
- Keep entity references consistent: an entity mentioned several times uses the same id everywhere.
Answer with a single JSON object and nothing else.`

const outputFormat = `Return JSON of the form:
{
  "nodes": [{"id": "...", "type": "...", "properties": {"...": "..."}}],
  "relationships": [{"source_node_id": "...", "source_node_type": "...", "target_node_id": "...", "target_node_type": "...", "type": "...", "properties": {}}]
}`

func buildPrompt(path, content string, allowedNodes, allowedRels []string) string {
	var b strings.Builder

	b.WriteString(outputFormat)
	b.WriteString("\n\n")
	if len(allowedNodes) > 0 {
		fmt.Fprintf(&b, "Use only these node types: %s\n", strings.Join(allowedNodes, ", "))
	}
	if len(allowedRels) > 0 {
		fmt.Fprintf(&b, "Use only these relationship types: %s\n", strings.Join(allowedRels, ", "))
	}
	if path != "" {
		fmt.Fprintf(&b, "File: %s\n", path)
	}
	b.WriteString("Input:\n")
	b.WriteString(content)

	return b.String()
}
