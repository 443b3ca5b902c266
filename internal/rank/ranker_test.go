package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyard/engram/pkg/types"
)

func fragment(id, content string, score float64, age time.Duration) types.MemoryFragment {
	return types.MemoryFragment{
		ID:        id,
		Content:   content,
		Source:    "agent:test",
		Timestamp: time.Now().Add(-age),
		Score:     score,
	}
}

func TestRankEmptyInput(t *testing.T) {
	assert.Nil(t, Rank(nil, "query", 100, Options{}))
	assert.Nil(t, Rank([]types.MemoryFragment{fragment("a", "text", 1, 0)}, "query", 0, Options{}))
}

func TestMMRPrefersDiversity(t *testing.T) {
	// Two near-duplicate high-relevance fragments and one distinct
	// lower-relevance fragment. With room for only two, the selection must
	// take one duplicate and the distinct fragment, not both duplicates.
	dupA := fragment("dup-a", "alice works on projectx migration planning", 1.0, time.Hour)
	dupB := fragment("dup-b", "alice works on projectx migration planning today", 0.95, time.Hour)
	distinct := fragment("distinct", "bob prefers espresso over filter coffee", 0.6, time.Hour)

	perFragment := dupA.EstimateTokens()
	budget := perFragment*2 + 2

	selected := Rank([]types.MemoryFragment{dupA, dupB, distinct}, "alice", budget, Options{
		DiversityPenalty: 0.9,
	})

	require.Len(t, selected, 2)
	assert.Contains(t, []string{"dup-a", "dup-b"}, selected[0].ID)
	assert.Equal(t, "distinct", selected[1].ID)
	assert.Greater(t, selected[1].Signals.DiversityPenalty, -0.001)
}

func TestRankHonorsTokenBudget(t *testing.T) {
	frags := []types.MemoryFragment{
		fragment("a", "first fact about the project deadline", 1.0, time.Hour),
		fragment("b", "second fact about vacation schedules", 0.9, time.Hour),
		fragment("c", "third fact about the coffee machine", 0.8, time.Hour),
	}
	budget := frags[0].EstimateTokens() + 1

	selected := Rank(frags, "project", budget, Options{})
	require.Len(t, selected, 1)

	total := 0
	for _, f := range selected {
		total += f.EstimateTokens()
	}
	assert.LessOrEqual(t, total, budget)
}

func TestRecencySignalDecays(t *testing.T) {
	fresh := recencyScore(0, 24*time.Hour, false)
	dayOld := recencyScore(24*time.Hour, 24*time.Hour, false)
	weekOld := recencyScore(7*24*time.Hour, 24*time.Hour, false)

	assert.InDelta(t, 1.0, fresh, 0.001)
	assert.InDelta(t, 0.5, dayOld, 0.001)
	assert.Less(t, weekOld, dayOld)
}

func TestTemporalQueryFlattensDecay(t *testing.T) {
	plain := recencyScore(48*time.Hour, 24*time.Hour, false)
	flattened := recencyScore(48*time.Hour, 24*time.Hour, true)
	assert.Greater(t, flattened, plain)

	assert.True(t, isTemporalQuery("what happened recently"))
	assert.True(t, isTemporalQuery("latest news on the project"))
	assert.False(t, isTemporalQuery("who is alice"))
}

func TestSourceBoostsDoNotStack(t *testing.T) {
	opts := Options{
		PrioritySources: []string{"user"},
		LongTermSources: []string{"user", "long-term"},
	}
	assert.Equal(t, 1.5, sourceBoost("user", opts))
	assert.Equal(t, 1.3, sourceBoost("long-term", opts))
	assert.Equal(t, 1.0, sourceBoost("agent:other", opts))
}

func TestGraphSignals(t *testing.T) {
	related := []types.Entity{
		{ID: "ent:person:alice", Name: "Alice", MentionCount: 10},
		{ID: "ent:project:projectx", Name: "ProjectX", MentionCount: 5},
	}

	connections, frequency := graphSignals("Alice shipped a ProjectX milestone", related, 10)
	assert.InDelta(t, 1.0, connections, 0.001)
	assert.InDelta(t, 0.75, frequency, 0.001)

	connections, frequency = graphSignals("nothing relevant here", related, 10)
	assert.Zero(t, connections)
	assert.Zero(t, frequency)

	connections, _ = graphSignals("Alice only", related, 10)
	assert.InDelta(t, 0.5, connections, 0.001)
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"alpha": true, "beta": true}
	b := map[string]bool{"alpha": true, "gamma": true}
	assert.InDelta(t, 1.0/3.0, jaccard(a, b), 0.001)
	assert.Zero(t, jaccard(a, map[string]bool{}))
	assert.InDelta(t, 1.0, jaccard(a, a), 0.001)
}
