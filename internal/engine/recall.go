package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/halcyard/engram/internal/index"
	"github.com/halcyard/engram/internal/rank"
	"github.com/halcyard/engram/internal/storage"
	"github.com/halcyard/engram/pkg/types"
)

// RecallOptions tunes a recall. Zero values use the configured defaults.
type RecallOptions struct {
	// Limit caps how many index hits feed the ranker.
	Limit int

	// TokenBudget caps the assembled context.
	TokenBudget int

	// Sources restricts the search to documents with these source tags.
	Sources []string

	// PrioritySources get a ranking boost, e.g. the agent the caller is
	// currently serving.
	PrioritySources []string
}

// RecallResult is the assembled memory context for one query.
type RecallResult struct {
	Context         string                 `json:"context"`
	Fragments       []types.MemoryFragment `json:"fragments"`
	RelatedEntities []types.Entity         `json:"related_entities"`
}

// Recall searches the index, ranks the hits against the query, gathers
// graph entities related to the query, and renders a two-section context
// string. Recall is best-effort: a missing embedder, an empty graph, or
// zero hits all shrink the output rather than failing it.
func (e *Engine) Recall(ctx context.Context, query string, opts RecallOptions) *RecallResult {
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.Ranker.SearchLimit
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = e.cfg.Ranker.TokenBudget
	}

	hits := e.index.SearchWithContext(ctx, query, storage.SearchOptions{
		Limit:   opts.Limit,
		Sources: opts.Sources,
	})

	fragments := make([]types.MemoryFragment, len(hits))
	for i, hit := range hits {
		fragments[i] = types.MemoryFragment{
			ID:        hit.Document.ID,
			Content:   hit.Document.Content,
			Source:    hit.Document.Source,
			Timestamp: hit.Document.Timestamp,
			Score:     hit.Score,
		}
	}

	related := e.relatedEntities(query)

	selected := rank.Rank(fragments, query, opts.TokenBudget, rank.Options{
		Weights: rank.Weights{
			Relevance:   e.cfg.Ranker.RelevanceWeight,
			Recency:     e.cfg.Ranker.RecencyWeight,
			Connections: e.cfg.Ranker.ConnectionsWeight,
			Frequency:   e.cfg.Ranker.FrequencyWeight,
		},
		DiversityPenalty: e.cfg.Ranker.DiversityPenalty,
		RecencyHalfLife:  e.cfg.Ranker.RecencyHalfLife,
		PrioritySources:  opts.PrioritySources,
		LongTermSources:  []string{sourceLongTerm},
		RelatedEntities:  related,
	})

	return &RecallResult{
		Context:         renderContext(related, selected),
		Fragments:       selected,
		RelatedEntities: related,
	}
}

// relatedEntities gathers graph entities relevant to the query: direct
// name matches on query tokens plus their 1-hop neighbours.
func (e *Engine) relatedEntities(query string) []types.Entity {
	seen := make(map[string]bool)
	var out []types.Entity
	add := func(ent types.Entity) {
		if !seen[ent.ID] {
			seen[ent.ID] = true
			out = append(out, ent)
		}
	}

	var direct []types.Entity
	for _, token := range index.Tokenize(query) {
		for _, ent := range e.graph.FindEntities(token) {
			direct = append(direct, ent)
		}
	}
	for _, ent := range direct {
		add(ent)
	}
	for _, ent := range direct {
		for _, neighbour := range e.graph.GetConnectedEntities(ent.ID, 1) {
			add(neighbour)
		}
	}
	return out
}

// renderContext formats the recall output as a two-section context string
// ready to inject into an agent prompt. Empty sections are omitted; both
// empty yields "".
func renderContext(entities []types.Entity, fragments []types.MemoryFragment) string {
	var b strings.Builder

	if len(entities) > 0 {
		b.WriteString("Known Entities:\n")
		for _, ent := range entities {
			fmt.Fprintf(&b, "- %s (%s)", ent.Name, ent.Type)
			if len(ent.Attributes) > 0 {
				fmt.Fprintf(&b, ": %s", formatAttributes(ent.Attributes))
			}
			b.WriteString("\n")
		}
	}

	if len(fragments) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Relevant Memories:\n")
		for _, f := range fragments {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Timestamp.Format("2006-01-02"), f.Content)
		}
	}

	return b.String()
}

func formatAttributes(attrs map[string]interface{}) string {
	parts := make([]string, 0, len(attrs))
	for k, v := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
