package graph

import (
	"github.com/halcyard/engram/pkg/types"
)

// GetConnectedEntities performs a breadth-first traversal from the given
// entity up to depth hops and returns every entity reachable via any
// relationship, excluding the origin. Edges are treated as undirected.
// Unknown IDs or depth < 1 return an empty slice.
func (g *Graph) GetConnectedEntities(id string, depth int) []types.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.entityByID[id]
	if !ok || depth < 1 {
		return nil
	}

	visited := map[int]bool{start: true}
	frontier := []int{start}
	var out []types.Entity

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []int
		for _, handle := range frontier {
			for _, neighbour := range g.neighbours(handle) {
				if visited[neighbour] {
					continue
				}
				visited[neighbour] = true
				next = append(next, neighbour)
				out = append(out, g.entities[neighbour].ent)
			}
		}
		frontier = next
	}
	return out
}

// ShortestPath returns the ordered entity-ID path from a to b, including
// both endpoints, found by BFS over undirected edges. Returns (nil, false)
// when either entity is unknown or the two are disconnected. The path from
// an entity to itself is the single-element path.
func (g *Graph) ShortestPath(a, b string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.entityByID[a]
	if !ok {
		return nil, false
	}
	goal, ok := g.entityByID[b]
	if !ok {
		return nil, false
	}
	if start == goal {
		return []string{a}, true
	}

	// parent maps each visited handle to its BFS predecessor so the path
	// can be reconstructed once the goal is reached.
	parent := map[int]int{start: start}
	frontier := []int{start}

	for len(frontier) > 0 {
		var next []int
		for _, handle := range frontier {
			for _, neighbour := range g.neighbours(handle) {
				if _, seen := parent[neighbour]; seen {
					continue
				}
				parent[neighbour] = handle
				if neighbour == goal {
					return g.reconstructPath(parent, start, goal), true
				}
				next = append(next, neighbour)
			}
		}
		frontier = next
	}
	return nil, false
}

// neighbours returns the entity handles adjacent to the given handle via
// any live relationship, in either direction. Caller must hold g.mu.
func (g *Graph) neighbours(handle int) []int {
	var out []int
	entityID := g.entities[handle].ent.ID
	for _, relHandle := range g.adjacency[handle] {
		rec := &g.rels[relHandle]
		if rec.deleted {
			continue
		}
		otherID := rec.rel.Other(entityID)
		if other, ok := g.entityByID[otherID]; ok {
			out = append(out, other)
		}
	}
	return out
}

// reconstructPath walks parent links backward from goal to start and
// returns the entity-ID path in forward order. Caller must hold g.mu.
func (g *Graph) reconstructPath(parent map[int]int, start, goal int) []string {
	var handles []int
	for h := goal; ; h = parent[h] {
		handles = append(handles, h)
		if h == start {
			break
		}
	}
	path := make([]string, len(handles))
	for i, h := range handles {
		path[len(handles)-1-i] = g.entities[h].ent.ID
	}
	return path
}
