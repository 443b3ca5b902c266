package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/halcyard/engram/internal/consolidate"
	"github.com/halcyard/engram/pkg/types"
)

// ConsolidateResult aggregates the counts of one maintenance pass.
type ConsolidateResult struct {
	Merged    int                    `json:"merged"`
	Removed   int                    `json:"removed"`
	Promoted  int                    `json:"promoted"`
	Decayed   int                    `json:"decayed"`
	Changelog []types.ChangeLogEntry `json:"changelog,omitempty"`
}

// Consolidate runs the full maintenance pipeline: resolve contradictions,
// deduplicate near-identical documents, promote repeated or explicitly
// flagged facts to long-term notes, and decay stale relationships.
// Summarizer failure leaves clusters unmerged; storage failure is fatal.
func (e *Engine) Consolidate(ctx context.Context) (*ConsolidateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &ConsolidateResult{}
	fragments := e.dumpFragments()

	// Contradictions first, so a superseded fact cannot survive by being
	// merged into a summary.
	dropped, changelog := e.consolidator.ResolveContradictions(fragments)
	result.Changelog = append(result.Changelog, changelog...)
	for _, f := range dropped {
		if err := e.index.Remove(ctx, f.ID); err != nil {
			return result, fmt.Errorf("engine: remove contradicted %s: %w", f.ID, err)
		}
		result.Removed++
	}
	fragments = withoutFragments(fragments, dropped)

	dedup := e.consolidator.Consolidate(ctx, fragments, consolidate.Options{
		SimilarityThreshold: e.cfg.Consolidate.SimilarityThreshold,
	})
	result.Changelog = append(result.Changelog, dedup.Changelog...)
	result.Merged = dedup.Merged

	for _, f := range dedup.Removed {
		if err := e.index.Remove(ctx, f.ID); err != nil {
			return result, fmt.Errorf("engine: remove duplicate %s: %w", f.ID, err)
		}
		result.Removed++
	}
	if err := e.reindexMerged(ctx, dedup.Kept); err != nil {
		return result, err
	}

	promoted, err := e.promote(ctx, dedup.Kept, result)
	if err != nil {
		return result, err
	}
	result.Promoted = promoted

	decay, err := e.mapper.DecayRelationships(ctx)
	if err != nil {
		return result, fmt.Errorf("engine: decay relationships: %w", err)
	}
	result.Decayed = decay.Decayed

	log.Printf("engine: consolidation merged=%d removed=%d promoted=%d decayed=%d",
		result.Merged, result.Removed, result.Promoted, result.Decayed)
	return result, nil
}

// dumpFragments converts every indexed document into a fragment for the
// consolidator, ordered oldest first. Clustering is greedy over input
// order, so the ordering fixes which fragment seeds a cluster and which
// identity survives a merge across otherwise identical runs.
func (e *Engine) dumpFragments() []types.MemoryFragment {
	docs := e.index.Documents()
	fragments := make([]types.MemoryFragment, len(docs))
	for i, doc := range docs {
		fragments[i] = types.MemoryFragment{
			ID:        doc.ID,
			Content:   doc.Content,
			Source:    doc.Source,
			Timestamp: doc.Timestamp,
		}
	}
	sort.Slice(fragments, func(i, j int) bool {
		if !fragments[i].Timestamp.Equal(fragments[j].Timestamp) {
			return fragments[i].Timestamp.Before(fragments[j].Timestamp)
		}
		return fragments[i].ID < fragments[j].ID
	})
	return fragments
}

// reindexMerged rewrites kept fragments whose content no longer matches
// the stored document, i.e. the merged summaries.
func (e *Engine) reindexMerged(ctx context.Context, kept []types.MemoryFragment) error {
	for _, f := range kept {
		doc := e.index.Get(f.ID)
		if doc == nil || doc.Content == f.Content {
			continue
		}
		if err := e.index.Remove(ctx, f.ID); err != nil {
			return fmt.Errorf("engine: remove pre-merge %s: %w", f.ID, err)
		}
		if _, err := e.index.Add(ctx, f.Content, f.Source, doc.Metadata); err != nil {
			return fmt.Errorf("engine: index merged fragment: %w", err)
		}
	}
	return nil
}

// promote re-indexes promotion candidates under the long-term source tag
// so future recalls boost them. Fragments already in long-term memory are
// not promoted again.
func (e *Engine) promote(ctx context.Context, fragments []types.MemoryFragment, result *ConsolidateResult) (int, error) {
	promotions := consolidate.PromoteFrequent(fragments, consolidate.PromoteOptions{
		MinMentions: e.cfg.Consolidate.PromoteMinMentions,
		MinScore:    e.cfg.Consolidate.PromoteMinScore,
	})

	promoted := 0
	for _, p := range promotions {
		if p.Fragment.Source == sourceLongTerm {
			continue
		}
		if _, err := e.index.Add(ctx, p.Fragment.Content, sourceLongTerm, map[string]interface{}{
			"promoted_from": p.Fragment.ID,
			"reason":        p.Reason,
		}); err != nil {
			return promoted, fmt.Errorf("engine: promote fragment %s: %w", p.Fragment.ID, err)
		}
		promoted++
		result.Changelog = append(result.Changelog, types.ChangeLogEntry{
			Action:      types.ActionPromoted,
			Description: fmt.Sprintf("promoted to long-term memory (%s)", p.Reason),
			Fragments:   []string{p.Fragment.ID},
			Timestamp:   p.Fragment.Timestamp,
		})
	}
	return promoted, nil
}

func withoutFragments(fragments, exclude []types.MemoryFragment) []types.MemoryFragment {
	if len(exclude) == 0 {
		return fragments
	}
	excluded := make(map[string]bool, len(exclude))
	for _, f := range exclude {
		excluded[f.ID] = true
	}
	out := fragments[:0]
	for _, f := range fragments {
		if !excluded[f.ID] {
			out = append(out, f)
		}
	}
	return out
}
