package consolidate

import (
	"sort"
	"strings"

	"github.com/halcyard/engram/internal/index"
	"github.com/halcyard/engram/pkg/types"
)

const (
	// fingerprintWords is how many of the longest words form a fragment's
	// content fingerprint for repetition counting.
	fingerprintWords = 10

	// repetitionReward is the promotion-score bonus per extra repetition
	// of a fingerprint.
	repetitionReward = 0.5

	// rememberBoost is added when a fragment carries an explicit
	// remember-this phrase.
	rememberBoost = 1.0
)

// PromoteOptions tunes candidate selection for long-term promotion.
type PromoteOptions struct {
	// MinMentions is the fingerprint repetition count at which a group
	// becomes a candidate. Defaults to 3.
	MinMentions int

	// MinScore is the score at which a single fragment becomes a
	// candidate on its own. Defaults to 0.8.
	MinScore float64
}

func (o *PromoteOptions) normalize() {
	if o.MinMentions == 0 {
		o.MinMentions = 3
	}
	if o.MinScore == 0 {
		o.MinScore = 0.8
	}
}

// Promotion is one fragment flagged for promotion to a durable long-term
// note, with the score that ranked it.
type Promotion struct {
	Fragment       types.MemoryFragment
	PromotionScore float64
	Reason         string
}

// rememberPhrases mark content the user explicitly asked to keep.
var rememberPhrases = []string{"remember this", "remember that", "don't forget"}

// PromoteFrequent selects fragments worth promoting to long-term memory:
// fingerprint groups repeated at least MinMentions times, single fragments
// scoring at least MinScore, and fragments carrying an explicit
// remember-this phrase. Results are sorted descending by a promotion score
// that rewards repetition.
func PromoteFrequent(fragments []types.MemoryFragment, opts PromoteOptions) []Promotion {
	opts.normalize()

	groups := make(map[string][]types.MemoryFragment)
	for _, f := range fragments {
		fp := fingerprint(f.Content)
		groups[fp] = append(groups[fp], f)
	}

	var out []Promotion
	seen := make(map[string]bool)
	add := func(p Promotion) {
		if seen[p.Fragment.ID] {
			return
		}
		seen[p.Fragment.ID] = true
		out = append(out, p)
	}

	for _, group := range groups {
		// The newest member represents a repeated group; a score-based
		// pick carries the high-scoring fragment itself.
		rep := group[0]
		top := group[0]
		for _, f := range group[1:] {
			if f.Timestamp.After(rep.Timestamp) {
				rep = f
			}
			if f.Score > top.Score {
				top = f
			}
		}

		base := top.Score + repetitionReward*float64(len(group)-1)

		switch {
		case len(group) >= opts.MinMentions:
			add(Promotion{Fragment: rep, PromotionScore: base, Reason: "repeated fact"})
		case top.Score >= opts.MinScore:
			add(Promotion{Fragment: top, PromotionScore: base, Reason: "high score"})
		}
	}

	for _, f := range fragments {
		if containsRememberPhrase(f.Content) {
			add(Promotion{
				Fragment:       f,
				PromotionScore: f.Score + rememberBoost,
				Reason:         "explicit remember request",
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PromotionScore != out[j].PromotionScore {
			return out[i].PromotionScore > out[j].PromotionScore
		}
		return out[i].Fragment.ID < out[j].Fragment.ID
	})
	return out
}

// fingerprint joins the sorted top-N longest words of the content, so
// rephrasings sharing the same salient vocabulary collide.
func fingerprint(content string) string {
	tokens := index.Tokenize(content)
	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i]) > len(tokens[j])
	})
	if len(tokens) > fingerprintWords {
		tokens = tokens[:fingerprintWords]
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func containsRememberPhrase(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range rememberPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
