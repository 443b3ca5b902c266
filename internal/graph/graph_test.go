package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/halcyard/engram/internal/storage"
	"github.com/halcyard/engram/pkg/types"
)

func addTestEntity(t *testing.T, g *Graph, name, entType string) *types.Entity {
	t.Helper()
	ent, err := g.AddEntity(context.Background(), types.Entity{Name: name, Type: entType})
	if err != nil {
		t.Fatalf("AddEntity(%q) failed: %v", name, err)
	}
	return ent
}

func linkTestEntities(t *testing.T, g *Graph, sourceID, targetID, relType string) *types.Relationship {
	t.Helper()
	rel, err := g.AddRelationship(context.Background(), types.Relationship{
		SourceID: sourceID,
		TargetID: targetID,
		Type:     relType,
		Weight:   1.0,
	})
	if err != nil {
		t.Fatalf("AddRelationship(%s, %s) failed: %v", sourceID, targetID, err)
	}
	return rel
}

func TestUpsertEntityIdempotentReMention(t *testing.T) {
	g := New()
	ctx := context.Background()

	first, err := g.UpsertEntity(ctx, types.Entity{Name: "Alice", Type: types.EntityTypePerson})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if first.MentionCount != 1 {
		t.Fatalf("expected mention count 1, got %d", first.MentionCount)
	}

	// Re-mention with different case must mutate, not duplicate.
	second, err := g.UpsertEntity(ctx, types.Entity{Name: "alice", Type: types.EntityTypePerson})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-mention created a new entity: %s vs %s", second.ID, first.ID)
	}
	if second.MentionCount != 2 {
		t.Errorf("expected mention count 2, got %d", second.MentionCount)
	}

	if entities, _ := g.Stats(); entities != 1 {
		t.Errorf("expected 1 entity after re-mention, got %d", entities)
	}
}

func TestUpsertEntityMatchesByID(t *testing.T) {
	g := New()
	ctx := context.Background()

	ent := addTestEntity(t, g, "Alice Smith", types.EntityTypePerson)

	// An alias resolved to a known ID updates that entity even though the
	// candidate name differs.
	updated, err := g.UpsertEntity(ctx, types.Entity{
		ID:   ent.ID,
		Name: "Ally",
		Type: types.EntityTypePerson,
	})
	if err != nil {
		t.Fatalf("upsert by ID failed: %v", err)
	}
	if updated.ID != ent.ID {
		t.Errorf("expected update of %s, got %s", ent.ID, updated.ID)
	}
	if updated.MentionCount != 2 {
		t.Errorf("expected mention count 2, got %d", updated.MentionCount)
	}
	if g.GetEntityByName("Ally") != nil {
		t.Error("alias must not create a second entity")
	}
	if entities, _ := g.Stats(); entities != 1 {
		t.Errorf("expected 1 entity, got %d", entities)
	}
}

func TestUpsertEntityMergesAttributesAndConfidence(t *testing.T) {
	g := New()
	ctx := context.Background()

	if _, err := g.UpsertEntity(ctx, types.Entity{
		Name:       "Alice",
		Type:       types.EntityTypePerson,
		Attributes: map[string]interface{}{"role": "engineer"},
		Confidence: 0.9,
	}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	updated, err := g.UpsertEntity(ctx, types.Entity{
		Name:       "Alice",
		Type:       types.EntityTypePerson,
		Attributes: map[string]interface{}{"team": "infra"},
		Confidence: 0.5,
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if updated.Confidence != 0.9 {
		t.Errorf("confidence should merge as max, got %v", updated.Confidence)
	}
	if updated.Attributes["role"] != "engineer" || updated.Attributes["team"] != "infra" {
		t.Errorf("attributes should merge, got %+v", updated.Attributes)
	}
}

func TestAddRelationshipRequiresEndpoints(t *testing.T) {
	g := New()
	ctx := context.Background()
	alice := addTestEntity(t, g, "Alice", types.EntityTypePerson)

	_, err := g.AddRelationship(ctx, types.Relationship{
		SourceID: alice.ID,
		TargetID: "ent:project:missing",
		Type:     "works on",
	})
	if !errors.Is(err, storage.ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint, got %v", err)
	}
}

func TestFindRelationshipMatchesDirectedTriple(t *testing.T) {
	g := New()
	alice := addTestEntity(t, g, "Alice", types.EntityTypePerson)
	project := addTestEntity(t, g, "ProjectX", types.EntityTypeProject)
	rel := linkTestEntities(t, g, alice.ID, project.ID, "works on")

	if got := g.FindRelationship(alice.ID, project.ID, "works on"); got == nil || got.ID != rel.ID {
		t.Errorf("expected to find relationship %s, got %+v", rel.ID, got)
	}
	if got := g.FindRelationship(project.ID, alice.ID, "works on"); got != nil {
		t.Errorf("reversed direction should not match, got %+v", got)
	}
	if got := g.FindRelationship(alice.ID, project.ID, "manages"); got != nil {
		t.Errorf("different type should not match, got %+v", got)
	}
}

func TestDeleteEntityCascadesRelationships(t *testing.T) {
	g := New()
	ctx := context.Background()
	alice := addTestEntity(t, g, "Alice", types.EntityTypePerson)
	bob := addTestEntity(t, g, "Bob", types.EntityTypePerson)
	carol := addTestEntity(t, g, "Carol", types.EntityTypePerson)
	linkTestEntities(t, g, alice.ID, bob.ID, "knows")
	linkTestEntities(t, g, carol.ID, alice.ID, "knows")

	removed, err := g.DeleteEntity(ctx, alice.ID)
	if err != nil {
		t.Fatalf("DeleteEntity failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 cascaded relationships, got %d", removed)
	}
	if g.GetEntity(alice.ID) != nil {
		t.Error("deleted entity still resolvable")
	}
	if rels := g.GetRelationships(bob.ID); len(rels) != 0 {
		t.Errorf("expected no relationships left on Bob, got %d", len(rels))
	}
}

func TestDeleteEntityUnknownIsNoOp(t *testing.T) {
	g := New()
	removed, err := g.DeleteEntity(context.Background(), "ent:person:ghost")
	if err != nil {
		t.Fatalf("expected no error for unknown ID, got %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
}

func TestFindEntitiesSubstring(t *testing.T) {
	g := New()
	addTestEntity(t, g, "Alice", types.EntityTypePerson)
	addTestEntity(t, g, "Alicia", types.EntityTypePerson)
	addTestEntity(t, g, "Bob", types.EntityTypePerson)

	if got := g.FindEntities("alic"); len(got) != 2 {
		t.Errorf("expected 2 matches for %q, got %d", "alic", len(got))
	}
	if got := g.FindEntities(""); len(got) != 3 {
		t.Errorf("empty substring should return all entities, got %d", len(got))
	}
}
