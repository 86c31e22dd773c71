package graphstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/fastctx/fastctx/pkg/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// AddGraphDocuments merges the nodes and relationships of docs. With
// includeSource each document gets a Document node linked to the entities
// it mentions.
func (s *Neo4jStore) AddGraphDocuments(ctx context.Context, docs []models.GraphDocument, includeSource bool) (*models.GraphWriteStats, error) {
	stats := &models.GraphWriteStats{}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.config.Database,
	})
	defer session.Close(ctx)

	for _, gd := range docs {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			return nil, writeGraphDocument(ctx, tx, gd, includeSource)
		})
		if err != nil {
			return stats, fmt.Errorf("write graph document %s: %w", gd.Source.Path(), err)
		}
		stats.Documents++
		stats.Nodes += len(gd.Nodes)
		stats.Relationships += len(gd.Relationships)
	}

	s.logger.Info().
		Int("documents", stats.Documents).
		Int("nodes", stats.Nodes).
		Int("relationships", stats.Relationships).
		Msg("Stored graph documents")
	return stats, nil
}

func writeGraphDocument(ctx context.Context, tx neo4j.ManagedTransaction, gd models.GraphDocument, includeSource bool) error {
	byLabel := make(map[string][]map[string]interface{})
	ids := make([]string, 0, len(gd.Nodes))
	for _, n := range gd.Nodes {
		label := SanitizeLabel(n.Type)
		if label == "" || n.ID == "" {
			continue
		}
		byLabel[label] = append(byLabel[label], map[string]interface{}{
			"id":         n.ID,
			"properties": sanitizeProperties(n.Properties),
		})
		ids = append(ids, n.ID)
	}

	for _, label := range sortedLabels(byLabel) {
		cypher := fmt.Sprintf(`UNWIND $nodes AS n
			MERGE (e:%s {id: n.id})
			SET e += n.properties
			SET e:`+"`%s`", EntityLabel, label)
		if _, err := tx.Run(ctx, cypher, map[string]interface{}{"nodes": byLabel[label]}); err != nil {
			return err
		}
	}

	byType := make(map[string][]map[string]interface{})
	for _, r := range gd.Relationships {
		relType := SanitizeLabel(r.Type)
		if relType == "" {
			continue
		}
		byType[relType] = append(byType[relType], map[string]interface{}{
			"source":     r.Source.ID,
			"target":     r.Target.ID,
			"properties": sanitizeProperties(r.Properties),
		})
	}

	for _, relType := range sortedLabels(byType) {
		cypher := fmt.Sprintf(`UNWIND $rels AS r
			MERGE (s:%[1]s {id: r.source})
			MERGE (t:%[1]s {id: r.target})
			MERGE (s)-[rel:`+"`%[2]s`"+`]->(t)
			SET rel += r.properties`, EntityLabel, relType)
		if _, err := tx.Run(ctx, cypher, map[string]interface{}{"rels": byType[relType]}); err != nil {
			return err
		}
	}

	if !includeSource {
		return nil
	}

	_, err := tx.Run(ctx, `MERGE (d:Document {key: $key})
		SET d += $properties, d.id = $id, d.path = $path, d.text = $text
		WITH d
		UNWIND $ids AS id
		MATCH (e:__Entity__ {id: id})
		MERGE (d)-[:MENTIONS]->(e)`, map[string]interface{}{
		"key":        gd.Source.Key(),
		"path":       gd.Source.Path(),
		"id":         gd.Source.ID,
		"text":       gd.Source.Content,
		"properties": sanitizeProperties(gd.Source.Metadata),
		"ids":        ids,
	})
	return err
}

func sortedLabels(m map[string][]map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UpsertDocuments stores each document as a Document node carrying the File
// label, so its content is readable through ReadFileContent. Documents are
// keyed on their source-qualified key, so equal relative paths from
// different roots stay apart.
func (s *Neo4jStore) UpsertDocuments(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, map[string]interface{}{
			"key":        d.Key(),
			"path":       d.Path(),
			"id":         d.ID,
			"content":    d.Content,
			"properties": sanitizeProperties(d.Metadata),
		})
	}

	_, err := s.write(ctx, `UNWIND $docs AS doc
		MERGE (d:Document {key: doc.key})
		SET d += doc.properties, d.id = doc.id, d.path = doc.path, d.content = doc.content
		SET d:File`, map[string]interface{}{"docs": rows})
	if err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}

	s.logger.Debug().Int("documents", len(docs)).Msg("Upserted documents")
	return nil
}

// UpsertChunks stores chunks with their embeddings and links each to its
// document. vectors[i] belongs to chunks[i].
func (s *Neo4jStore) UpsertChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert chunks: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(chunks))
	for i, c := range chunks {
		path, _ := c.Metadata[models.MetaPath].(string)
		rows = append(rows, map[string]interface{}{
			"id":          c.ID,
			"document_id": c.DocumentID,
			"text":        c.Text,
			"chunk_index": c.Index,
			"path":        path,
			"embedding":   float64s(vectors[i]),
		})
	}

	_, err := s.write(ctx, `UNWIND $chunks AS c
		MERGE (ch:Chunk {id: c.id})
		SET ch.text = c.text, ch.chunk_index = c.chunk_index, ch.path = c.path, ch.embedding = c.embedding
		WITH ch, c
		MATCH (d:Document {id: c.document_id})
		MERGE (ch)-[:PART_OF_DOCUMENT]->(d)`, map[string]interface{}{"chunks": rows})
	if err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}

	s.logger.Debug().Int("chunks", len(chunks)).Msg("Upserted chunks")
	return nil
}

// EnsureVectorIndex creates the chunk embedding index when it is missing
func (s *Neo4jStore) EnsureVectorIndex(ctx context.Context, dimensions int) error {
	name := SanitizeLabel(s.config.VectorIndex)
	cypher := fmt.Sprintf("CREATE VECTOR INDEX `%s` IF NOT EXISTS FOR (c:Chunk) ON (c.embedding) "+
		"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}", name, dimensions)

	if _, err := s.write(ctx, cypher, nil); err != nil {
		return fmt.Errorf("create vector index %s: %w", name, err)
	}
	return nil
}

// SimilaritySearch returns the k chunks nearest to vector
func (s *Neo4jStore) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		k = 4
	}

	result, err := s.read(ctx, `CALL db.index.vector.queryNodes($index, $k, $vector) YIELD node, score
		RETURN node.id AS id, node.text AS text, node.path AS source, score
		ORDER BY score DESC`, map[string]interface{}{
		"index":  SanitizeLabel(s.config.VectorIndex),
		"k":      k,
		"vector": float64s(vector),
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := make([]models.ScoredChunk, 0, len(result.Records))
	for _, rec := range result.Records {
		m := rec.AsMap()
		c := models.ScoredChunk{}
		c.ID, _ = m["id"].(string)
		c.Text, _ = m["text"].(string)
		c.Source, _ = m["source"].(string)
		c.Score, _ = m["score"].(float64)
		out = append(out, c)
	}
	return out, nil
}
