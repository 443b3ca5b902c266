// Package consolidate implements the memory consolidator: deduplication
// of near-identical fragments, contradiction detection and resolution,
// and promotion of frequently repeated facts to long-term notes.
//
// The consolidator operates on fragments dumped from the relevance index
// and never mutates stores itself; the engine applies its decisions.
package consolidate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/halcyard/engram/internal/graph"
	"github.com/halcyard/engram/internal/index"
	"github.com/halcyard/engram/internal/llm"
	"github.com/halcyard/engram/pkg/types"
)

const (
	// defaultSimilarityThreshold is the pairwise Jaccard similarity at or
	// above which two fragments in the same entity group are considered
	// near-duplicates.
	defaultSimilarityThreshold = 0.55

	// highScoreThreshold marks fragments too important to dilute through
	// summarization. High-score cluster members are kept verbatim.
	highScoreThreshold = 0.8
)

// Options tunes a consolidation pass. Zero values use the defaults.
type Options struct {
	SimilarityThreshold float64
	HighScore           float64
}

func (o *Options) normalize() {
	if o.SimilarityThreshold == 0 {
		o.SimilarityThreshold = defaultSimilarityThreshold
	}
	if o.HighScore == 0 {
		o.HighScore = highScoreThreshold
	}
}

// Result reports the outcome of a deduplication pass. Kept holds the
// surviving fragments (merged replacements included); Removed holds the
// originals that should be deleted from the index.
type Result struct {
	Kept      []types.MemoryFragment
	Merged    int
	Removed   []types.MemoryFragment
	Changelog []types.ChangeLogEntry
}

// Consolidator groups, deduplicates, and merges memory fragments. The
// graph supplies entity grouping; the summarizer merges duplicate text.
type Consolidator struct {
	graph      *graph.Graph
	summarizer llm.Summarizer

	// Contradictions is the pluggable detection strategy. Defaults to the
	// built-in polarity-pattern scanner.
	Contradictions ContradictionStrategy
}

// New creates a consolidator over the given graph and summarizer. The
// summarizer may be nil; duplicate clusters are then kept rather than
// merged.
func New(g *graph.Graph, summarizer llm.Summarizer) *Consolidator {
	return &Consolidator{
		graph:          g,
		summarizer:     summarizer,
		Contradictions: NewPolarityStrategy(),
	}
}

// Consolidate deduplicates the given fragments: groups them by dominant
// graph entity (ungrouped fragments form their own bucket), clusters each
// group by pairwise Jaccard similarity, and collapses each multi-member
// cluster either by keeping its high-score members verbatim or by merging
// all members through the summarizer into one fragment carrying the
// latest timestamp and the maximum score.
func (c *Consolidator) Consolidate(ctx context.Context, fragments []types.MemoryFragment, opts Options) Result {
	opts.normalize()

	var result Result
	for _, group := range c.groupByEntity(fragments) {
		for _, cluster := range clusterBySimilarity(group, opts.SimilarityThreshold) {
			c.collapseCluster(ctx, cluster, opts, &result)
		}
	}
	return result
}

// groupByEntity buckets fragments by the dominant graph entity appearing
// in their text. Fragments mentioning no known entity share one bucket.
func (c *Consolidator) groupByEntity(fragments []types.MemoryFragment) map[string][]types.MemoryFragment {
	entities := c.graph.Entities()

	groups := make(map[string][]types.MemoryFragment)
	for _, f := range fragments {
		key := dominantEntity(f.Content, entities)
		groups[key] = append(groups[key], f)
	}
	return groups
}

// dominantEntity returns the ID of the known entity mentioned most often
// in the text, or "" when none appears. Ties go to the entity with the
// higher overall mention count.
func dominantEntity(content string, entities []types.Entity) string {
	lower := strings.ToLower(content)
	bestID := ""
	bestCount := 0
	bestMentions := 0
	for _, ent := range entities {
		count := strings.Count(lower, strings.ToLower(ent.Name))
		if count == 0 {
			continue
		}
		if count > bestCount || (count == bestCount && ent.MentionCount > bestMentions) {
			bestID = ent.ID
			bestCount = count
			bestMentions = ent.MentionCount
		}
	}
	return bestID
}

// clusterBySimilarity greedily assigns each fragment to the first cluster
// whose seed it resembles at or above the threshold, preserving input
// order so the "first" member of a cluster is the earliest-seen one.
func clusterBySimilarity(fragments []types.MemoryFragment, threshold float64) [][]types.MemoryFragment {
	var clusters [][]types.MemoryFragment
	seeds := make([]map[string]bool, 0)

	for _, f := range fragments {
		tokens := tokenSet(f.Content)
		placed := false
		for i, seed := range seeds {
			if jaccard(tokens, seed) >= threshold {
				clusters[i] = append(clusters[i], f)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []types.MemoryFragment{f})
			seeds = append(seeds, tokens)
		}
	}
	return clusters
}

// collapseCluster applies the dedup policy to one similarity cluster and
// appends its decisions to the result.
func (c *Consolidator) collapseCluster(ctx context.Context, cluster []types.MemoryFragment, opts Options, result *Result) {
	if len(cluster) == 1 {
		result.Kept = append(result.Kept, cluster[0])
		return
	}

	// High-score members are known-important facts: keep them verbatim and
	// drop the rest instead of diluting them through a merge.
	var high, rest []types.MemoryFragment
	for _, f := range cluster {
		if f.Score > opts.HighScore {
			high = append(high, f)
		} else {
			rest = append(rest, f)
		}
	}
	if len(high) > 0 {
		result.Kept = append(result.Kept, high...)
		result.Removed = append(result.Removed, rest...)
		result.Changelog = append(result.Changelog, types.ChangeLogEntry{
			Action:      types.ActionRemoved,
			Description: fmt.Sprintf("dropped %d near-duplicates of %d high-score fragment(s)", len(rest), len(high)),
			Fragments:   fragmentIDs(rest),
			Timestamp:   time.Now(),
		})
		return
	}

	merged, err := c.mergeCluster(ctx, cluster)
	if err != nil {
		// Collaborator failure: keep the cluster untouched this pass.
		log.Printf("consolidate: merge failed, keeping %d fragments: %v", len(cluster), err)
		result.Kept = append(result.Kept, cluster...)
		return
	}

	result.Kept = append(result.Kept, merged)
	result.Removed = append(result.Removed, cluster[1:]...)
	result.Merged++
	result.Changelog = append(result.Changelog, types.ChangeLogEntry{
		Action:      types.ActionMerged,
		Description: fmt.Sprintf("merged %d near-duplicate fragments into %s", len(cluster), merged.ID),
		Fragments:   fragmentIDs(cluster),
		Timestamp:   time.Now(),
	})
}

// mergeCluster summarizes all members' text into one fragment reusing the
// first member's identity, carrying the latest timestamp and the maximum
// score.
func (c *Consolidator) mergeCluster(ctx context.Context, cluster []types.MemoryFragment) (types.MemoryFragment, error) {
	if c.summarizer == nil {
		return types.MemoryFragment{}, fmt.Errorf("no summarizer configured")
	}

	texts := make([]string, len(cluster))
	for i, f := range cluster {
		texts[i] = f.Content
	}
	summary, err := c.summarizer.Summarize(ctx, texts)
	if err != nil {
		return types.MemoryFragment{}, err
	}

	merged := cluster[0]
	merged.Content = summary
	merged.Tokens = 0
	for _, f := range cluster[1:] {
		if f.Timestamp.After(merged.Timestamp) {
			merged.Timestamp = f.Timestamp
		}
		if f.Score > merged.Score {
			merged.Score = f.Score
		}
	}
	return merged, nil
}

// ResolveContradictions keeps the fragment with the later timestamp from
// each detected contradiction and marks the other removed. Keeping the
// newer fact is a deliberate simplifying policy, not a semantic judgment.
func (c *Consolidator) ResolveContradictions(fragments []types.MemoryFragment) ([]types.MemoryFragment, []types.ChangeLogEntry) {
	if c.Contradictions == nil {
		return nil, nil
	}

	var removed []types.MemoryFragment
	var changelog []types.ChangeLogEntry
	dropped := make(map[string]bool)

	for _, con := range c.Contradictions.Detect(fragments) {
		keep, drop := con.A, con.B
		if drop.Timestamp.After(keep.Timestamp) {
			keep, drop = drop, keep
		}
		if dropped[drop.ID] {
			continue
		}
		dropped[drop.ID] = true
		removed = append(removed, drop)
		changelog = append(changelog, types.ChangeLogEntry{
			Action: types.ActionContradictionResolved,
			Description: fmt.Sprintf("%s; kept newer %q, discarded %q",
				con.Reason, keep.Content, drop.Content),
			Fragments: []string{keep.ID, drop.ID},
			Timestamp: time.Now(),
		})
	}
	return removed, changelog
}

// tokenSet returns the Jaccard token set for a fragment, tokens of
// length > 2 only.
func tokenSet(content string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range index.Tokenize(content) {
		if len(tok) > 2 {
			set[tok] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func fragmentIDs(fragments []types.MemoryFragment) []string {
	ids := make([]string, len(fragments))
	for i, f := range fragments {
		ids[i] = f.ID
	}
	sort.Strings(ids)
	return ids
}
