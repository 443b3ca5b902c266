package types

import "time"

// FragmentSignals holds the individual scoring signals the context ranker
// combines into a composite score.
type FragmentSignals struct {
	Relevance        float64 `json:"relevance"`
	Recency          float64 `json:"recency"`
	Connections      float64 `json:"connections"`
	Frequency        float64 `json:"frequency"`
	DiversityPenalty float64 `json:"diversity_penalty"`
}

// MemoryFragment is the transient unit that flows from the relevance index
// through the context ranker and consolidator. The ranker mutates Score in
// place, overwriting it with the final composite/MMR score. Fragments are
// never persisted as-is.
type MemoryFragment struct {
	ID        string          `json:"id,omitempty"` // Backing document ID, when known
	Content   string          `json:"content"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Score     float64         `json:"score"`
	Tokens    int             `json:"tokens"`
	Signals   FragmentSignals `json:"signals"`
}

// EstimateTokens returns Tokens when set, otherwise a rough estimate of
// one token per four characters.
func (f *MemoryFragment) EstimateTokens() int {
	if f.Tokens > 0 {
		return f.Tokens
	}
	n := len(f.Content) / 4
	if n < 1 {
		n = 1
	}
	return n
}
