// Package extract converts documents into graph documents by prompting an
// LLM for the entities and relations in each file.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/fastctx/fastctx/pkg/llm"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config controls batching and the allowed vocabulary
type Config struct {
	BatchSize            int
	Workers              int
	AllowedNodes         []string
	AllowedRelationships []string
	// MaxContentChars caps the characters (runes) of a document sent in a
	// prompt; zero keeps all.
	MaxContentChars int
}

// Transformer turns documents into graph documents
type Transformer struct {
	gen          llm.Generator
	config       Config
	allowedNodes map[string]bool
	allowedRels  map[string]bool
	logger       zerolog.Logger
}

// NewTransformer creates a transformer backed by gen
func NewTransformer(gen llm.Generator, config Config, logger zerolog.Logger) *Transformer {
	if config.BatchSize <= 0 {
		config.BatchSize = 8
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	return &Transformer{
		gen:          gen,
		config:       config,
		allowedNodes: typeSet(config.AllowedNodes, NodeLabel),
		allowedRels:  typeSet(config.AllowedRelationships, RelationshipType),
		logger:       logger.With().Str("component", "extract").Logger(),
	}
}

// Convert extracts a graph document per input document, in input order.
// Documents whose extraction fails are logged and left out; only context
// cancellation fails the call.
func (t *Transformer) Convert(ctx context.Context, docs []models.Document) ([]models.GraphDocument, error) {
	out := make([]models.GraphDocument, 0, len(docs))

	for start := 0; start < len(docs); start += t.config.BatchSize {
		end := start + t.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		results := make([]*models.GraphDocument, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(t.config.Workers)
		for i := range batch {
			i := i
			g.Go(func() error {
				gd, err := t.ConvertOne(gctx, batch[i])
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					t.logger.Warn().Err(err).Str("path", batch[i].Path()).Msg("Graph extraction failed, skipping document")
					return nil
				}
				results[i] = gd
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, gd := range results {
			if gd != nil {
				out = append(out, *gd)
			}
		}
		t.logger.Debug().Int("batch_start", start).Int("batch_size", len(batch)).Msg("Extracted batch")
	}

	t.logger.Info().Int("documents", len(docs)).Int("graph_documents", len(out)).Msg("Graph extraction finished")
	return out, nil
}

// ConvertOne prompts the LLM for a single document
func (t *Transformer) ConvertOne(ctx context.Context, doc models.Document) (*models.GraphDocument, error) {
	content := truncateRunes(doc.Content, t.config.MaxContentChars)

	reply, err := t.gen.Generate(ctx,
		buildPrompt(doc.Path(), content, t.config.AllowedNodes, t.config.AllowedRelationships),
		llm.WithSystem(systemPrompt),
		llm.WithTemperature(0),
	)
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractJSONAs[rawGraph](reply)
	if err != nil {
		return nil, fmt.Errorf("parse extraction: %w", err)
	}

	gd := t.build(raw)
	gd.Source = doc
	return gd, nil
}

// truncateRunes keeps the first max runes of s, never splitting a UTF-8
// sequence.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

type rawNode struct {
	ID         interface{}            `json:"id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

type rawRelationship struct {
	SourceID   interface{}            `json:"source_node_id"`
	SourceType string                 `json:"source_node_type"`
	TargetID   interface{}            `json:"target_node_id"`
	TargetType string                 `json:"target_node_type"`
	Source     interface{}            `json:"source"`
	Target     interface{}            `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

type rawGraph struct {
	Nodes         []rawNode         `json:"nodes"`
	Relationships []rawRelationship `json:"relationships"`
}

// idString renders an id that the model may have emitted as a number.
func idString(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprintf("%g", id)
	default:
		return strings.TrimSpace(fmt.Sprint(id))
	}
}

// endpoint reads a relationship end given either flat fields or a nested
// {"id","type"} object.
func endpoint(flatID interface{}, flatType string, nested interface{}) (string, string) {
	id, typ := idString(flatID), flatType
	if obj, ok := nested.(map[string]interface{}); ok {
		if id == "" {
			id = idString(obj["id"])
		}
		if typ == "" {
			typ, _ = obj["type"].(string)
		}
	} else if id == "" {
		id = idString(nested)
	}
	return id, typ
}

type nodeKey struct{ id, typ string }

func (t *Transformer) build(raw rawGraph) *models.GraphDocument {
	gd := &models.GraphDocument{
		Nodes:         []models.Node{},
		Relationships: []models.Relationship{},
	}
	seen := make(map[nodeKey]bool)
	byID := make(map[string]models.Node)

	addNode := func(n models.Node) bool {
		if t.allowedNodes != nil && !t.allowedNodes[n.Type] {
			return false
		}
		key := nodeKey{n.ID, n.Type}
		if seen[key] {
			return true
		}
		seen[key] = true
		gd.Nodes = append(gd.Nodes, n)
		if _, ok := byID[n.ID]; !ok {
			byID[n.ID] = n
		}
		return true
	}

	for _, rn := range raw.Nodes {
		id := idString(rn.ID)
		typ := NodeLabel(rn.Type)
		if id == "" || typ == "" {
			continue
		}
		addNode(models.Node{ID: id, Type: typ, Properties: rn.Properties})
	}

	// resolve finds or creates the node for one relationship end.
	resolve := func(id, typ string) (models.Node, bool) {
		if id == "" {
			return models.Node{}, false
		}
		typ = NodeLabel(typ)
		if typ == "" {
			n, ok := byID[id]
			return n, ok
		}
		n := models.Node{ID: id, Type: typ}
		if existing, ok := byID[id]; ok && existing.Type == typ {
			return existing, true
		}
		return n, addNode(n)
	}

	relSeen := make(map[string]bool)
	for _, rr := range raw.Relationships {
		relType := RelationshipType(rr.Type)
		if relType == "" || (t.allowedRels != nil && !t.allowedRels[relType]) {
			continue
		}

		srcID, srcType := endpoint(rr.SourceID, rr.SourceType, rr.Source)
		tgtID, tgtType := endpoint(rr.TargetID, rr.TargetType, rr.Target)

		src, ok := resolve(srcID, srcType)
		if !ok {
			continue
		}
		tgt, ok := resolve(tgtID, tgtType)
		if !ok {
			continue
		}

		key := src.Type + "\x00" + src.ID + "\x00" + relType + "\x00" + tgt.Type + "\x00" + tgt.ID
		if relSeen[key] {
			continue
		}
		relSeen[key] = true

		gd.Relationships = append(gd.Relationships, models.Relationship{
			Source:     models.Node{ID: src.ID, Type: src.Type},
			Target:     models.Node{ID: tgt.ID, Type: tgt.Type},
			Type:       relType,
			Properties: rr.Properties,
		})
	}

	return gd
}
