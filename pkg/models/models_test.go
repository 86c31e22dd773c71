package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaText(t *testing.T) {
	s := &Schema{
		Labels:            []string{"Function", "File"},
		RelationshipTypes: []string{"CALLS", "DEFINED_IN"},
		NodeProperties: map[string][]PropertyInfo{
			"Function": {{Property: "id", Types: []string{"String"}}, {Property: "arity"}},
		},
		RelationshipProperties: map[string][]PropertyInfo{
			"CALLS": {{Property: "count", Types: []string{"Long"}}},
		},
		Patterns: []RelationshipPattern{{Start: "Function", Type: "DEFINED_IN", End: "File"}},
	}

	text := s.Text()
	assert.Contains(t, text, "Function {id: String, arity: ANY}")
	assert.Contains(t, text, "File {}")
	assert.Contains(t, text, "CALLS {count: Long}")
	assert.Contains(t, text, "(:Function)-[:DEFINED_IN]->(:File)")
	assert.NotContains(t, text, "()-[:CALLS]->()")
}

func TestSchemaTextWithoutPatterns(t *testing.T) {
	s := &Schema{RelationshipTypes: []string{"IMPORTS"}}
	assert.Contains(t, s.Text(), "()-[:IMPORTS]->()")
}

func TestRunFilter(t *testing.T) {
	run := &Run{Kind: RunKindGitHub, Status: RunCompleted}

	assert.True(t, RunFilter{}.Match(run))
	assert.True(t, RunFilter{Kind: RunKindGitHub}.Match(run))
	assert.False(t, RunFilter{Kind: RunKindLocal}.Match(run))
	assert.False(t, RunFilter{Status: RunFailed}.Match(run))
	assert.True(t, RunCompleted.Done())
	assert.False(t, RunRunning.Done())
}

func TestDocumentPath(t *testing.T) {
	doc := Document{ID: "abc", Metadata: map[string]interface{}{MetaPath: "pkg/a.go"}}
	assert.Equal(t, "pkg/a.go", doc.Path())
	assert.Equal(t, "abc", Document{ID: "abc"}.Path())
}
