// Package rank implements the context ranker: composite re-weighting of
// scored memory fragments followed by diversity-aware selection under a
// token budget via Maximal Marginal Relevance (MMR).
//
// Raw top-k lexical hits are often near-duplicates (repeated daily-log
// lines); MMR guarantees the selected set favors both relevance and
// non-redundancy.
package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/halcyard/engram/internal/index"
	"github.com/halcyard/engram/pkg/types"
)

// Weights holds the composite-score weights for the four ranking signals.
type Weights struct {
	Relevance   float64
	Recency     float64
	Connections float64
	Frequency   float64
}

// DefaultWeights are the tuned defaults.
var DefaultWeights = Weights{
	Relevance:   0.40,
	Recency:     0.25,
	Connections: 0.20,
	Frequency:   0.15,
}

const (
	// defaultRecencyHalfLife makes a day-old fragment worth half a fresh one.
	defaultRecencyHalfLife = 24 * time.Hour

	// defaultDiversityPenalty is the MMR lambda applied to the maximum
	// Jaccard similarity against already-selected fragments.
	defaultDiversityPenalty = 0.3

	// Source boosts. Non-stacking: a fragment matching both gets the max.
	priorityBoost = 1.5
	longTermBoost = 1.3
)

// Options configures a ranking pass.
type Options struct {
	// Weights for the composite score. Zero value uses DefaultWeights.
	Weights Weights

	// DiversityPenalty is the MMR lambda. Zero uses the default.
	DiversityPenalty float64

	// RecencyHalfLife controls recency decay. Zero uses 24 hours.
	RecencyHalfLife time.Duration

	// PrioritySources get a x1.5 boost after composite scoring.
	PrioritySources []string

	// LongTermSources get a x1.3 boost. A source in both lists gets only
	// the larger of the two.
	LongTermSources []string

	// RelatedEntities are the graph entities related to the query, used
	// for the connections and frequency signals.
	RelatedEntities []types.Entity

	// Now anchors recency computation; zero means time.Now().
	Now time.Time
}

func (o *Options) normalize() {
	if o.Weights == (Weights{}) {
		o.Weights = DefaultWeights
	}
	if o.DiversityPenalty == 0 {
		o.DiversityPenalty = defaultDiversityPenalty
	}
	if o.RecencyHalfLife == 0 {
		o.RecencyHalfLife = defaultRecencyHalfLife
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
}

// temporalWords are query terms signalling the caller cares about recency.
// Their presence flattens the decay curve (square root) so older but
// relevant fragments are not crowded out entirely.
var temporalWords = map[string]bool{
	"recent": true, "recently": true, "latest": true, "last": true,
	"today": true, "yesterday": true, "now": true, "current": true,
	"new": true, "newest": true,
}

// Rank re-weights fragments by relevance, recency, graph connectivity, and
// entity frequency, then selects a diverse subset fitting the token
// budget via MMR. Fragments are mutated in place: Score is overwritten
// with the final MMR score and Signals is filled in. The returned slice
// holds the selected fragments in selection order.
func Rank(fragments []types.MemoryFragment, query string, tokenBudget int, opts Options) []types.MemoryFragment {
	if len(fragments) == 0 || tokenBudget <= 0 {
		return nil
	}
	opts.normalize()

	temporal := isTemporalQuery(query)

	// Normalize the index relevance scores to 0..1.
	maxRelevance := 0.0
	for i := range fragments {
		if fragments[i].Score > maxRelevance {
			maxRelevance = fragments[i].Score
		}
	}

	maxMentions := 0
	for _, ent := range opts.RelatedEntities {
		if ent.MentionCount > maxMentions {
			maxMentions = ent.MentionCount
		}
	}

	for i := range fragments {
		f := &fragments[i]

		relevance := 0.0
		if maxRelevance > 0 {
			relevance = f.Score / maxRelevance
		}

		recency := recencyScore(opts.Now.Sub(f.Timestamp), opts.RecencyHalfLife, temporal)
		connections, frequency := graphSignals(f.Content, opts.RelatedEntities, maxMentions)

		f.Signals = types.FragmentSignals{
			Relevance:   relevance,
			Recency:     recency,
			Connections: connections,
			Frequency:   frequency,
		}

		composite := opts.Weights.Relevance*relevance +
			opts.Weights.Recency*recency +
			opts.Weights.Connections*connections +
			opts.Weights.Frequency*frequency

		f.Score = composite * sourceBoost(f.Source, opts)
	}

	return selectMMR(fragments, tokenBudget, opts.DiversityPenalty)
}

// recencyScore applies exponential decay with the given half-life. For
// temporal queries the score is square-rooted, flattening the curve.
func recencyScore(age time.Duration, halfLife time.Duration, temporal bool) float64 {
	if age < 0 {
		age = 0
	}
	score := math.Exp(-float64(age.Milliseconds()) * math.Ln2 / float64(halfLife.Milliseconds()))
	if temporal {
		score = math.Sqrt(score)
	}
	return score
}

// graphSignals computes the connections signal (fraction of query-related
// entity names literally appearing in the text) and the frequency signal
// (average mention count of appearing entities, normalized by the maximum
// mention count among the related entities).
func graphSignals(content string, related []types.Entity, maxMentions int) (connections, frequency float64) {
	if len(related) == 0 {
		return 0, 0
	}
	lower := strings.ToLower(content)

	appearing := 0
	mentionSum := 0
	for _, ent := range related {
		if strings.Contains(lower, strings.ToLower(ent.Name)) {
			appearing++
			mentionSum += ent.MentionCount
		}
	}
	if appearing == 0 {
		return 0, 0
	}

	connections = float64(appearing) / float64(len(related))
	if maxMentions > 0 {
		frequency = (float64(mentionSum) / float64(appearing)) / float64(maxMentions)
		if frequency > 1 {
			frequency = 1
		}
	}
	return connections, frequency
}

// sourceBoost returns the post-composite multiplier for the fragment's
// source. Boosts do not stack; a source in both lists gets the larger.
func sourceBoost(source string, opts Options) float64 {
	boost := 1.0
	for _, s := range opts.PrioritySources {
		if s == source {
			boost = priorityBoost
		}
	}
	if boost < longTermBoost {
		for _, s := range opts.LongTermSources {
			if s == source {
				boost = longTermBoost
			}
		}
	}
	return boost
}

// selectMMR repeatedly picks the remaining fragment maximizing
// score - lambda*maxSimilarity(selected), stopping when the token budget
// is exhausted or nothing fits. Similarity is Jaccard over token sets.
func selectMMR(fragments []types.MemoryFragment, tokenBudget int, lambda float64) []types.MemoryFragment {
	// Stable candidate order so equal MMR values resolve deterministically:
	// by composite score descending, then timestamp descending.
	order := make([]int, len(fragments))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		fa, fb := &fragments[order[a]], &fragments[order[b]]
		if fa.Score != fb.Score {
			return fa.Score > fb.Score
		}
		return fa.Timestamp.After(fb.Timestamp)
	})

	tokenSets := make([]map[string]bool, len(fragments))
	for i := range fragments {
		tokenSets[i] = mmrTokens(fragments[i].Content)
	}

	remaining := tokenBudget
	used := make([]bool, len(fragments))
	var selectedIdx []int
	var selected []types.MemoryFragment

	for {
		bestIdx := -1
		bestValue := math.Inf(-1)
		var bestPenalty float64

		for _, i := range order {
			if used[i] {
				continue
			}
			f := &fragments[i]
			if f.EstimateTokens() > remaining {
				continue
			}

			maxSim := 0.0
			for _, j := range selectedIdx {
				if sim := jaccard(tokenSets[i], tokenSets[j]); sim > maxSim {
					maxSim = sim
				}
			}
			penalty := lambda * maxSim
			if value := f.Score - penalty; value > bestValue {
				bestValue = value
				bestIdx = i
				bestPenalty = penalty
			}
		}

		if bestIdx < 0 {
			break
		}
		used[bestIdx] = true
		selectedIdx = append(selectedIdx, bestIdx)
		remaining -= fragments[bestIdx].EstimateTokens()

		f := fragments[bestIdx]
		f.Signals.DiversityPenalty = bestPenalty
		f.Score = bestValue
		selected = append(selected, f)
	}

	return selected
}

// mmrTokens returns the token set used for similarity, keeping only tokens
// of length > 2 so stop-word overlap does not count as redundancy.
func mmrTokens(content string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range index.Tokenize(content) {
		if len(tok) > 2 {
			set[tok] = true
		}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| for two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for tok := range small {
		if large[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func isTemporalQuery(query string) bool {
	for _, tok := range index.Tokenize(query) {
		if temporalWords[tok] {
			return true
		}
	}
	return false
}
