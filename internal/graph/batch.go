package graph

import (
	"context"

	"github.com/halcyard/engram/pkg/types"
)

// Batch stages graph mutations for one transactional flush. Mutations
// land in the in-memory arena immediately, so later lookups within the
// same batch observe them; nothing reaches storage until Commit, which
// writes every staged record through a single PutBatch transaction.
type Batch struct {
	g        *Graph
	entities []*types.Entity
	rels     []*types.Relationship
}

// NewBatch starts an empty mutation batch over the graph.
func (g *Graph) NewBatch() *Batch {
	return &Batch{g: g}
}

// UpsertEntity applies re-mention semantics and stages the result.
func (b *Batch) UpsertEntity(candidate types.Entity) (*types.Entity, error) {
	ent, err := b.g.upsertEntityMem(candidate)
	if err != nil {
		return nil, err
	}
	b.entities = append(b.entities, ent)
	return ent, nil
}

// AddRelationship stores a new relationship and stages it. Both
// endpoints must already exist in the arena, staged or persisted.
func (b *Batch) AddRelationship(rel types.Relationship) (*types.Relationship, error) {
	stored, err := b.g.addRelationshipMem(rel)
	if err != nil {
		return nil, err
	}
	b.rels = append(b.rels, stored)
	return stored, nil
}

// Strengthen adds delta to an existing relationship's weight and stages
// the update. Unknown IDs are a no-op returning nil.
func (b *Batch) Strengthen(relID string, delta float64) *types.Relationship {
	updated := b.g.strengthenMem(relID, delta)
	if updated != nil {
		b.rels = append(b.rels, updated)
	}
	return updated
}

// Commit writes all staged records in one transaction. Empty batches do
// not touch storage.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.entities) == 0 && len(b.rels) == 0 {
		return nil
	}
	return b.g.PersistBatch(ctx, b.entities, b.rels)
}
