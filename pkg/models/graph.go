package models

import (
	"fmt"
	"sort"
	"strings"
)

// Node is an entity extracted from a document
type Node struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Relationship is a typed, directed edge between two extracted nodes
type Relationship struct {
	Source     Node                   `json:"source"`
	Target     Node                   `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// GraphDocument groups the nodes and relationships inferred from one source document
type GraphDocument struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
	Source        Document       `json:"source"`
}

// GraphWriteStats counts what a graph write touched
type GraphWriteStats struct {
	Documents     int `json:"documents"`
	Nodes         int `json:"nodes"`
	Relationships int `json:"relationships"`
}

// PropertyInfo describes one property seen on a label or relationship type
type PropertyInfo struct {
	Property string   `json:"property"`
	Types    []string `json:"types"`
}

// RelationshipPattern is a (:Start)-[:TYPE]->(:End) triple seen in the graph
type RelationshipPattern struct {
	Start string `json:"start"`
	Type  string `json:"type"`
	End   string `json:"end"`
}

// Schema describes the shape of the stored graph
type Schema struct {
	Labels                 []string                  `json:"labels"`
	RelationshipTypes      []string                  `json:"relationship_types"`
	NodeProperties         map[string][]PropertyInfo `json:"node_properties,omitempty"`
	RelationshipProperties map[string][]PropertyInfo `json:"relationship_properties,omitempty"`
	Patterns               []RelationshipPattern     `json:"relationships,omitempty"`
}

// Text renders the schema in the compact form used inside LLM prompts.
func (s *Schema) Text() string {
	var b strings.Builder

	b.WriteString("Node properties:\n")
	for _, label := range sortedKeys(s.NodeProperties) {
		fmt.Fprintf(&b, "%s {%s}\n", label, joinProps(s.NodeProperties[label]))
	}
	for _, label := range s.Labels {
		if _, ok := s.NodeProperties[label]; !ok {
			fmt.Fprintf(&b, "%s {}\n", label)
		}
	}

	b.WriteString("Relationship properties:\n")
	for _, rel := range sortedKeys(s.RelationshipProperties) {
		fmt.Fprintf(&b, "%s {%s}\n", rel, joinProps(s.RelationshipProperties[rel]))
	}

	b.WriteString("The relationships:\n")
	if len(s.Patterns) == 0 {
		for _, rel := range s.RelationshipTypes {
			fmt.Fprintf(&b, "()-[:%s]->()\n", rel)
		}
	}
	for _, p := range s.Patterns {
		fmt.Fprintf(&b, "(:%s)-[:%s]->(:%s)\n", p.Start, p.Type, p.End)
	}

	return b.String()
}

func joinProps(props []PropertyInfo) string {
	parts := make([]string, 0, len(props))
	for _, p := range props {
		t := "ANY"
		if len(p.Types) > 0 {
			t = strings.Join(p.Types, "|")
		}
		parts = append(parts, fmt.Sprintf("%s: %s", p.Property, t))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string][]PropertyInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SnapshotNode is a stored node as returned by the graph endpoint
type SnapshotNode struct {
	ID         string                 `json:"id"`
	Labels     []string               `json:"labels"`
	Properties map[string]interface{} `json:"properties"`
}

// SnapshotRelationship is a stored relationship as returned by the graph endpoint
type SnapshotRelationship struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	StartNode  string                 `json:"start_node"`
	EndNode    string                 `json:"end_node"`
	Properties map[string]interface{} `json:"properties"`
}

// GraphSnapshot is a bounded view of the stored graph
type GraphSnapshot struct {
	Nodes         []SnapshotNode         `json:"nodes"`
	Relationships []SnapshotRelationship `json:"relationships"`
}
