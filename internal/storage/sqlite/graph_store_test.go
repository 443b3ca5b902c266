package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/halcyard/engram/pkg/types"
)

func newTestGraphStore(t *testing.T) *GraphStore {
	t.Helper()
	store, err := NewGraphStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEntity(id, name string) *types.Entity {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Entity{
		ID:           id,
		Name:         name,
		Type:         types.EntityTypePerson,
		Attributes:   map[string]interface{}{"role": "engineer"},
		FirstSeen:    now,
		LastSeen:     now,
		MentionCount: 1,
		Confidence:   0.9,
	}
}

func TestGraphStoreEntityRoundTrip(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()

	ent := testEntity("ent:person:alice", "Alice")
	if err := store.PutEntity(ctx, ent); err != nil {
		t.Fatalf("PutEntity failed: %v", err)
	}

	entities, rels, err := store.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if len(entities) != 1 || len(rels) != 0 {
		t.Fatalf("expected 1 entity and 0 relationships, got %d and %d", len(entities), len(rels))
	}

	got := entities[0]
	if got.ID != ent.ID || got.Name != ent.Name || got.Type != ent.Type {
		t.Errorf("entity mismatch: got %+v", got)
	}
	if got.Attributes["role"] != "engineer" {
		t.Errorf("attributes did not round-trip: %+v", got.Attributes)
	}
	if got.MentionCount != 1 || got.Confidence != 0.9 {
		t.Errorf("counters did not round-trip: %+v", got)
	}
}

func TestGraphStoreEntityUpsert(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()

	ent := testEntity("ent:person:alice", "Alice")
	if err := store.PutEntity(ctx, ent); err != nil {
		t.Fatalf("PutEntity failed: %v", err)
	}

	ent.MentionCount = 4
	ent.Confidence = 0.95
	if err := store.PutEntity(ctx, ent); err != nil {
		t.Fatalf("second PutEntity failed: %v", err)
	}

	entities, _, err := store.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("upsert created a duplicate: %d entities", len(entities))
	}
	if entities[0].MentionCount != 4 {
		t.Errorf("expected mention count 4, got %d", entities[0].MentionCount)
	}
}

func TestGraphStoreDeleteEntityCascades(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()

	alice := testEntity("ent:person:alice", "Alice")
	project := testEntity("ent:project:projectx", "ProjectX")
	project.Type = types.EntityTypeProject

	rel := &types.Relationship{
		ID:        "rel:test-1",
		SourceID:  alice.ID,
		TargetID:  project.ID,
		Type:      "works on",
		Weight:    1.0,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}

	if err := store.PutBatch(ctx, []*types.Entity{alice, project}, []*types.Relationship{rel}); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	if err := store.DeleteEntity(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteEntity failed: %v", err)
	}

	entities, rels, err := store.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 remaining entity, got %d", len(entities))
	}
	if len(rels) != 0 {
		t.Errorf("expected cascade delete of relationships, got %d", len(rels))
	}
}

func TestGraphStoreRejectsOrphanRelationship(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()

	rel := &types.Relationship{
		ID:        "rel:orphan",
		SourceID:  "ent:person:nobody",
		TargetID:  "ent:person:noone",
		Type:      "knows",
		Weight:    1.0,
		Timestamp: time.Now(),
	}
	if err := store.PutRelationship(ctx, rel); err == nil {
		t.Fatal("expected foreign key violation for orphan relationship")
	}
}

func TestGraphStorePutBatchIsTransactional(t *testing.T) {
	store := newTestGraphStore(t)
	ctx := context.Background()

	alice := testEntity("ent:person:alice", "Alice")
	badRel := &types.Relationship{
		ID:        "rel:bad",
		SourceID:  alice.ID,
		TargetID:  "ent:missing",
		Type:      "knows",
		Weight:    1.0,
		Timestamp: time.Now(),
	}

	if err := store.PutBatch(ctx, []*types.Entity{alice}, []*types.Relationship{badRel}); err == nil {
		t.Fatal("expected batch with dangling relationship to fail")
	}

	entities, _, err := store.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("failed batch should roll back entity writes, got %d entities", len(entities))
	}
}
