package llm

import (
	"context"
	"strings"

	"github.com/halcyard/engram/pkg/types"
)

// BatchExtractor wraps an Extractor and handles the merge step that keeps
// duplicate entities from reaching the graph: candidates are matched
// case-insensitively by name against the known-entity list, and matched
// candidates carry the known entity's ID so the graph can update instead
// of create.
//
// One extraction call is made per batch, not per text, to amortize the
// latency of the upstream LLM.
type BatchExtractor struct {
	extractor Extractor
}

// NewBatchExtractor creates a batch extractor around the given collaborator.
func NewBatchExtractor(extractor Extractor) *BatchExtractor {
	return &BatchExtractor{extractor: extractor}
}

// ExtractBatch runs one extraction call over the whole batch and annotates
// candidates that match known entities. Unmatched candidates are returned
// untouched as new-entity proposals. Malformed candidates (missing name or
// type) pass through; the engine is responsible for dropping them.
func (b *BatchExtractor) ExtractBatch(ctx context.Context, texts []string, known []types.Entity) (*Extraction, error) {
	if len(texts) == 0 {
		return &Extraction{}, nil
	}

	result, err := b.extractor.Extract(ctx, texts, known)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &Extraction{}, nil
	}

	byName := make(map[string]string, len(known))
	for _, ent := range known {
		byName[strings.ToLower(ent.Name)] = ent.ID
	}

	for i := range result.Entities {
		if id, ok := byName[strings.ToLower(result.Entities[i].Name)]; ok {
			result.Entities[i].MatchedID = id
		}
	}

	return result, nil
}
