package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/halcyard/engram/pkg/types"
)

const (
	// defaultDecayHalfLife is how long a relationship takes to lose half
	// its weight without being re-observed.
	defaultDecayHalfLife = 7 * 24 * time.Hour

	// weightEpsilon is the removal threshold: relationships at or below
	// this weight are deleted during a decay pass.
	weightEpsilon = 0.01
)

// Mapper provides higher-level relationship operations over a Graph:
// strengthening, clustering, inference, decay, and descriptions.
type Mapper struct {
	g *Graph

	// DecayHalfLife controls the time-based weight reduction applied by
	// DecayRelationships. Defaults to one week.
	DecayHalfLife time.Duration
}

// NewMapper creates a mapper over the given graph.
func NewMapper(g *Graph) *Mapper {
	return &Mapper{g: g, DecayHalfLife: defaultDecayHalfLife}
}

// Strengthen increases the weight of a relationship and refreshes its
// timestamp. Used when a relationship with the same (source, target, type)
// is re-observed instead of duplicated. Unknown IDs are a no-op.
func (m *Mapper) Strengthen(ctx context.Context, relID string, delta float64) error {
	updated := m.g.strengthenMem(relID, delta)
	if updated == nil {
		return nil
	}
	if m.g.persist != nil {
		return m.g.persist.PutRelationship(ctx, updated)
	}
	return nil
}

// Cluster is one connected component of the relationship graph.
type Cluster struct {
	ClusterID int      `json:"cluster_id"`
	Entities  []string `json:"entities"` // entity IDs, sorted for determinism
}

// DetectClusters groups entities into connected components over the full
// relationship graph. Entities with no relationships are not reported.
func (m *Mapper) DetectClusters() []Cluster {
	g := m.g
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[int]bool)
	var clusters []Cluster

	for handle := range g.entities {
		if g.entities[handle].deleted || visited[handle] {
			continue
		}
		if len(g.liveAdjacency(handle)) == 0 {
			continue
		}

		// Flood-fill the component containing this entity.
		var component []string
		frontier := []int{handle}
		visited[handle] = true
		for len(frontier) > 0 {
			h := frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
			component = append(component, g.entities[h].ent.ID)
			for _, neighbour := range g.neighbours(h) {
				if !visited[neighbour] {
					visited[neighbour] = true
					frontier = append(frontier, neighbour)
				}
			}
		}

		sort.Strings(component)
		clusters = append(clusters, Cluster{ClusterID: len(clusters), Entities: component})
	}
	return clusters
}

// InferredRelationship is a suggested (not committed) link between two
// entities, with a human-readable reason. Suggestions are never written to
// the graph automatically.
type InferredRelationship struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// InferRelationships suggests plausible new links for the given entity
// based on shared second-degree neighbours: the more direct neighbours two
// unconnected entities have in common, the more likely they are related.
// Returns up to limit suggestions sorted by confidence descending.
func (m *Mapper) InferRelationships(entityID string, limit int) []InferredRelationship {
	g := m.g
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.entityByID[entityID]
	if !ok {
		return nil
	}
	if limit < 1 {
		limit = 5
	}

	direct := make(map[int]bool)
	for _, n := range g.neighbours(start) {
		direct[n] = true
	}
	if len(direct) == 0 {
		return nil
	}

	// Count how many direct neighbours each second-degree entity shares.
	shared := make(map[int]int)
	bridges := make(map[int]string) // candidate handle -> one bridge entity name
	for n := range direct {
		for _, nn := range g.neighbours(n) {
			if nn == start || direct[nn] {
				continue
			}
			shared[nn]++
			if _, ok := bridges[nn]; !ok {
				bridges[nn] = g.entities[n].ent.Name
			}
		}
	}

	var out []InferredRelationship
	for candidate, count := range shared {
		confidence := float64(count) / float64(len(direct))
		if confidence > 1 {
			confidence = 1
		}
		reason := fmt.Sprintf("shares %d connection(s) with %s, e.g. via %s",
			count, g.entities[start].ent.Name, bridges[candidate])
		out = append(out, InferredRelationship{
			SourceID:   entityID,
			TargetID:   g.entities[candidate].ent.ID,
			Reason:     reason,
			Confidence: confidence,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].TargetID < out[j].TargetID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DecayResult reports the outcome of a decay pass.
type DecayResult struct {
	Decayed int `json:"decayed"` // relationships whose weight was reduced
	Removed int `json:"removed"` // relationships deleted at/below the epsilon
}

// DecayRelationships applies a time-based weight reduction to all
// relationships, covering the period since the last decay pass:
// weight *= 2^(-elapsed / halfLife). Relationships falling at or below the
// removal epsilon are deleted.
func (m *Mapper) DecayRelationships(ctx context.Context) (DecayResult, error) {
	g := m.g
	halfLife := m.DecayHalfLife
	if halfLife <= 0 {
		halfLife = defaultDecayHalfLife
	}

	g.mu.Lock()
	elapsed := time.Since(g.lastDecay)
	g.lastDecay = time.Now()
	if elapsed <= 0 {
		g.mu.Unlock()
		return DecayResult{}, nil
	}
	factor := math.Pow(2, -elapsed.Hours()/halfLife.Hours())

	var result DecayResult
	var updated []*types.Relationship
	var removedIDs []string
	for handle := range g.rels {
		rec := &g.rels[handle]
		if rec.deleted {
			continue
		}
		rec.rel.Weight *= factor
		if rec.rel.Weight <= weightEpsilon {
			g.detachRelationship(handle)
			removedIDs = append(removedIDs, rec.rel.ID)
			result.Removed++
			continue
		}
		rel := rec.rel
		updated = append(updated, &rel)
		result.Decayed++
	}
	g.mu.Unlock()

	if g.persist != nil {
		if err := g.persist.PutBatch(ctx, nil, updated); err != nil {
			return result, err
		}
		for _, id := range removedIDs {
			if err := g.persist.DeleteRelationship(ctx, id); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// DescribeRelationship renders the relationship(s) between two entities,
// looked up by name, into a human-readable sentence. Returns a "no
// information" message when either entity is unknown or no relationship
// exists.
func (m *Mapper) DescribeRelationship(a, b string) string {
	entA := m.g.GetEntityByName(a)
	entB := m.g.GetEntityByName(b)
	if entA == nil || entB == nil {
		return fmt.Sprintf("No information about how %s and %s are related.", a, b)
	}

	rels := m.g.GetRelationshipBetween(entA.ID, entB.ID)
	if len(rels) == 0 {
		return fmt.Sprintf("No information about how %s and %s are related.", entA.Name, entB.Name)
	}

	var parts []string
	for _, rel := range rels {
		subject, object := entA.Name, entB.Name
		if rel.SourceID == entB.ID {
			subject, object = entB.Name, entA.Name
		}
		sentence := fmt.Sprintf("%s %s %s (strength %.2f)", subject, rel.Type, object, rel.Weight)
		if rel.Context != "" {
			sentence += ": " + rel.Context
		}
		parts = append(parts, sentence)
	}
	return strings.Join(parts, ". ") + "."
}

// liveAdjacency returns the non-deleted relationship handles for an entity
// handle. Caller must hold g.mu.
func (g *Graph) liveAdjacency(handle int) []int {
	var out []int
	for _, relHandle := range g.adjacency[handle] {
		if !g.rels[relHandle].deleted {
			out = append(out, relHandle)
		}
	}
	return out
}
