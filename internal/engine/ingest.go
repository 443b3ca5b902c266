package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/halcyard/engram/internal/llm"
	"github.com/halcyard/engram/pkg/types"
)

// relationshipStrengthenDelta is the weight added when a known
// (source, target, type) relationship is re-observed.
const relationshipStrengthenDelta = 0.1

// IngestResult reports what one Ingest call changed.
type IngestResult struct {
	Entities      []types.Entity       `json:"entities"`
	Relationships []types.Relationship `json:"relationships"`
	Indexed       int                  `json:"indexed"`
}

// Ingest extracts entities and relationships from the messages, upserts
// them into the graph, and indexes the combined text as documents tagged
// "agent:{agentID}". Extraction failure is logged and skipped; the raw
// text is still indexed. Storage failure is fatal and returned.
func (e *Engine) Ingest(ctx context.Context, messages []Message, agentID string) (*IngestResult, error) {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) != "" {
			texts = append(texts, m.Content)
		}
	}
	if len(texts) == 0 {
		return &IngestResult{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result := &IngestResult{}

	var extraction *llm.Extraction
	if e.extractor != nil {
		var err error
		extraction, err = e.extractor.ExtractBatch(ctx, texts, e.graph.Entities())
		if err != nil {
			log.Printf("engine: extraction failed, indexing raw text only: %v", err)
			extraction = nil
		}
	}

	if extraction != nil {
		if err := e.applyExtraction(ctx, extraction, result); err != nil {
			return result, err
		}
	}

	combined := strings.Join(texts, "\n")
	ids, err := e.index.Add(ctx, combined, "agent:"+agentID, map[string]interface{}{
		"agent": agentID,
	})
	if err != nil {
		return result, fmt.Errorf("engine: index ingest text: %w", err)
	}
	result.Indexed = len(ids)
	return result, nil
}

// applyExtraction upserts candidate entities and relationships into the
// graph, staged in one batch so the whole extraction persists in a single
// transaction. Candidates carrying a matched entity ID update that entity
// directly; candidates missing a name or type are dropped; relationships
// whose endpoints did not resolve are dropped. Re-observed relationships
// strengthen instead of duplicating.
func (e *Engine) applyExtraction(ctx context.Context, extraction *llm.Extraction, result *IngestResult) error {
	batch := e.graph.NewBatch()

	for _, cand := range extraction.Entities {
		if strings.TrimSpace(cand.Name) == "" || strings.TrimSpace(cand.Type) == "" {
			continue
		}
		ent, err := batch.UpsertEntity(types.Entity{
			ID:         cand.MatchedID,
			Name:       cand.Name,
			Type:       types.NormalizeEntityType(cand.Type),
			Attributes: cand.Attributes,
			Confidence: cand.Confidence,
		})
		if err != nil {
			return fmt.Errorf("engine: upsert entity %q: %w", cand.Name, err)
		}
		result.Entities = append(result.Entities, *ent)
	}

	for _, cand := range extraction.Relationships {
		source := e.graph.GetEntityByName(cand.Source)
		target := e.graph.GetEntityByName(cand.Target)
		if source == nil || target == nil || strings.TrimSpace(cand.Type) == "" {
			continue
		}

		if existing := e.graph.FindRelationship(source.ID, target.ID, cand.Type); existing != nil {
			if updated := batch.Strengthen(existing.ID, relationshipStrengthenDelta); updated != nil {
				result.Relationships = append(result.Relationships, *updated)
			}
			continue
		}

		weight := cand.Weight
		if weight <= 0 {
			weight = 1
		}
		rel, err := batch.AddRelationship(types.Relationship{
			SourceID: source.ID,
			TargetID: target.ID,
			Type:     cand.Type,
			Context:  cand.Context,
			Weight:   weight,
		})
		if err != nil {
			return fmt.Errorf("engine: add relationship %s-%s: %w", source.ID, target.ID, err)
		}
		result.Relationships = append(result.Relationships, *rel)
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("engine: persist extraction batch: %w", err)
	}
	return nil
}
