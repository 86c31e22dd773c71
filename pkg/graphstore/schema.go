package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fastctx/fastctx/pkg/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// EntityLabel is added to every extracted node
const EntityLabel = "__Entity__"

const patternQuery = `
MATCH (a)-[r]->(b)
WITH [l IN labels(a) WHERE l <> '__Entity__'][0] AS start, type(r) AS rel,
     [l IN labels(b) WHERE l <> '__Entity__'][0] AS end
RETURN DISTINCT start, rel, end
LIMIT 200`

// Schema introspects labels, relationship types, their properties and the
// relationship patterns in use.
func (s *Neo4jStore) Schema(ctx context.Context) (*models.Schema, error) {
	schema := &models.Schema{
		Labels:                 []string{},
		RelationshipTypes:      []string{},
		NodeProperties:         map[string][]models.PropertyInfo{},
		RelationshipProperties: map[string][]models.PropertyInfo{},
	}

	labels, err := s.read(ctx, `CALL db.labels() YIELD label RETURN label ORDER BY label`, nil)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	for _, rec := range labels.Records {
		if label, _, err := neo4j.GetRecordValue[string](rec, "label"); err == nil && label != EntityLabel {
			schema.Labels = append(schema.Labels, label)
		}
	}

	types, err := s.read(ctx, `CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType ORDER BY relationshipType`, nil)
	if err != nil {
		return nil, fmt.Errorf("list relationship types: %w", err)
	}
	for _, rec := range types.Records {
		if t, _, err := neo4j.GetRecordValue[string](rec, "relationshipType"); err == nil {
			schema.RelationshipTypes = append(schema.RelationshipTypes, t)
		}
	}

	nodeProps, err := s.read(ctx, `CALL db.schema.nodeTypeProperties() YIELD nodeLabels, propertyName, propertyTypes
		RETURN nodeLabels, propertyName, propertyTypes`, nil)
	if err != nil {
		return nil, fmt.Errorf("node properties: %w", err)
	}
	for _, rec := range nodeProps.Records {
		m := rec.AsMap()
		prop, _ := m["propertyName"].(string)
		if prop == "" || prop == "embedding" {
			continue
		}
		info := models.PropertyInfo{Property: prop, Types: stringList(m["propertyTypes"])}
		for _, label := range stringList(m["nodeLabels"]) {
			if label == EntityLabel {
				continue
			}
			schema.NodeProperties[label] = appendProp(schema.NodeProperties[label], info)
		}
	}

	relProps, err := s.read(ctx, `CALL db.schema.relTypeProperties() YIELD relType, propertyName, propertyTypes
		RETURN relType, propertyName, propertyTypes`, nil)
	if err != nil {
		return nil, fmt.Errorf("relationship properties: %w", err)
	}
	for _, rec := range relProps.Records {
		m := rec.AsMap()
		prop, _ := m["propertyName"].(string)
		relType, _ := m["relType"].(string)
		if prop == "" || relType == "" {
			continue
		}
		relType = strings.Trim(strings.TrimPrefix(relType, ":"), "`")
		info := models.PropertyInfo{Property: prop, Types: stringList(m["propertyTypes"])}
		schema.RelationshipProperties[relType] = appendProp(schema.RelationshipProperties[relType], info)
	}

	patterns, err := s.read(ctx, patternQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("relationship patterns: %w", err)
	}
	for _, rec := range patterns.Records {
		m := rec.AsMap()
		start, _ := m["start"].(string)
		rel, _ := m["rel"].(string)
		end, _ := m["end"].(string)
		if start == "" || rel == "" || end == "" {
			continue
		}
		schema.Patterns = append(schema.Patterns, models.RelationshipPattern{Start: start, Type: rel, End: end})
	}
	sort.Slice(schema.Patterns, func(i, j int) bool {
		a, b := schema.Patterns[i], schema.Patterns[j]
		return a.Start+a.Type+a.End < b.Start+b.Type+b.End
	})

	return schema, nil
}

func appendProp(props []models.PropertyInfo, info models.PropertyInfo) []models.PropertyInfo {
	for _, p := range props {
		if p.Property == info.Property {
			return props
		}
	}
	return append(props, info)
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Graph returns up to limit nodes together with their outgoing
// relationships and the nodes at the other end.
func (s *Neo4jStore) Graph(ctx context.Context, limit int) (*models.GraphSnapshot, error) {
	if limit <= 0 {
		limit = 1000
	}

	result, err := s.read(ctx, `MATCH (n) WITH n LIMIT $limit
		OPTIONAL MATCH (n)-[r]->(m)
		RETURN n, r, m`, map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, err
	}

	snapshot := &models.GraphSnapshot{
		Nodes:         []models.SnapshotNode{},
		Relationships: []models.SnapshotRelationship{},
	}
	seenNodes := make(map[string]bool)
	seenRels := make(map[string]bool)

	addNode := func(v interface{}) {
		node, ok := v.(dbtype.Node)
		if !ok || seenNodes[node.ElementId] {
			return
		}
		seenNodes[node.ElementId] = true
		props := convertMap(node.Props)
		delete(props, "embedding")
		snapshot.Nodes = append(snapshot.Nodes, models.SnapshotNode{
			ID:         node.ElementId,
			Labels:     node.Labels,
			Properties: props,
		})
	}

	for _, rec := range result.Records {
		m := rec.AsMap()
		addNode(m["n"])
		addNode(m["m"])
		if rel, ok := m["r"].(dbtype.Relationship); ok && !seenRels[rel.ElementId] {
			seenRels[rel.ElementId] = true
			snapshot.Relationships = append(snapshot.Relationships, models.SnapshotRelationship{
				ID:         rel.ElementId,
				Type:       rel.Type,
				StartNode:  rel.StartElementId,
				EndNode:    rel.EndElementId,
				Properties: convertMap(rel.Props),
			})
		}
	}

	return snapshot, nil
}
