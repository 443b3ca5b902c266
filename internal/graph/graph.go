// Package graph implements the knowledge graph store: an in-memory arena
// of entities and relationships indexed by integer handles, with a
// name side-index for O(1) lookup and O(k) substring search, backed by
// optional write-through persistence.
//
// The arena is the source of truth during operation; persistence exists so
// the graph survives restarts. Handles never escape this package; the
// public API speaks string IDs only.
package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyard/engram/internal/storage"
	"github.com/halcyard/engram/pkg/types"
)

type entityRecord struct {
	ent     types.Entity
	deleted bool
}

type relRecord struct {
	rel     types.Relationship
	deleted bool
}

// Graph is the knowledge graph store. Safe for concurrent readers; callers
// must serialize mutating operations against each other externally when
// multiple agents share one instance (the engine does this).
type Graph struct {
	mu           sync.RWMutex
	entities     []entityRecord // arena; handle = index
	rels         []relRecord
	entityByID   map[string]int
	entityByName map[string]int // lowercase name -> handle
	relByID      map[string]int
	adjacency    map[int][]int // entity handle -> relationship handles

	persist   storage.GraphPersistence // nil for memory-only graphs
	lastDecay time.Time
}

// New creates an empty in-memory graph with no persistence.
func New() *Graph {
	return &Graph{
		entityByID:   make(map[string]int),
		entityByName: make(map[string]int),
		relByID:      make(map[string]int),
		adjacency:    make(map[int][]int),
		lastDecay:    time.Now(),
	}
}

// Open creates a graph backed by the given persistence and loads the
// stored entities and relationships into the arena.
func Open(ctx context.Context, persist storage.GraphPersistence) (*Graph, error) {
	g := New()
	g.persist = persist

	entities, rels, err := persist.LoadGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: load: %w", err)
	}
	for i := range entities {
		g.insertEntity(entities[i])
	}
	for i := range rels {
		// Skip edges whose endpoints did not load; they cannot be traversed
		// and would violate the endpoint invariant.
		if _, ok := g.entityByID[rels[i].SourceID]; !ok {
			continue
		}
		if _, ok := g.entityByID[rels[i].TargetID]; !ok {
			continue
		}
		g.insertRelationship(rels[i])
	}
	return g, nil
}

// Close releases the persistence layer, if any.
func (g *Graph) Close() error {
	if g.persist == nil {
		return nil
	}
	return g.persist.Close()
}

// AddEntity stores a new entity. An empty ID is assigned as
// "ent:<type>:<slug>"; zero timestamps default to now. Returns the stored
// entity.
func (g *Graph) AddEntity(ctx context.Context, ent types.Entity) (*types.Entity, error) {
	stored, err := g.addEntityMem(ent)
	if err != nil {
		return nil, err
	}
	if g.persist != nil {
		if err := g.persist.PutEntity(ctx, stored); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// addEntityMem validates, fills defaults, and inserts into the arena
// without touching storage.
func (g *Graph) addEntityMem(ent types.Entity) (*types.Entity, error) {
	if strings.TrimSpace(ent.Name) == "" {
		return nil, fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}

	now := time.Now()
	if ent.Type == "" {
		ent.Type = types.EntityTypeCustom
	}
	if ent.ID == "" {
		ent.ID = GenerateEntityID(ent.Type, ent.Name)
	}
	if ent.FirstSeen.IsZero() {
		ent.FirstSeen = now
	}
	if ent.LastSeen.IsZero() || ent.LastSeen.Before(ent.FirstSeen) {
		ent.LastSeen = ent.FirstSeen
	}
	if ent.MentionCount < 1 {
		ent.MentionCount = 1
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.entityByID[ent.ID]; exists {
		return nil, fmt.Errorf("%w: entity %s already exists", storage.ErrInvalidInput, ent.ID)
	}

	g.insertEntity(ent)
	return &ent, nil
}

// UpsertEntity applies re-mention semantics: an existing entity is found
// by ID when the candidate carries one (extraction annotates resolved
// aliases this way), falling back to the case-insensitive name index. A
// match is mutated (mention count incremented, last-seen advanced,
// confidence maxed, attributes merged); otherwise a new entity is created.
func (g *Graph) UpsertEntity(ctx context.Context, candidate types.Entity) (*types.Entity, error) {
	updated, err := g.upsertEntityMem(candidate)
	if err != nil {
		return nil, err
	}
	if g.persist != nil {
		if err := g.persist.PutEntity(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (g *Graph) upsertEntityMem(candidate types.Entity) (*types.Entity, error) {
	g.mu.Lock()
	handle, exists := g.entityByID[candidate.ID]
	if !exists {
		handle, exists = g.entityByName[strings.ToLower(candidate.Name)]
	}
	if !exists {
		g.mu.Unlock()
		return g.addEntityMem(candidate)
	}

	rec := &g.entities[handle]
	rec.ent.MentionCount++
	rec.ent.LastSeen = time.Now()
	if candidate.Confidence > rec.ent.Confidence {
		rec.ent.Confidence = candidate.Confidence
	}
	rec.ent.MergeAttributes(candidate.Attributes)
	updated := rec.ent
	g.mu.Unlock()
	return &updated, nil
}

// GetEntity returns a copy of the entity with the given ID, or nil if it
// does not exist.
func (g *Graph) GetEntity(id string) *types.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handle, ok := g.entityByID[id]
	if !ok {
		return nil
	}
	ent := g.entities[handle].ent
	return &ent
}

// GetEntityByName returns the entity with a case-insensitive-identical
// name, or nil.
func (g *Graph) GetEntityByName(name string) *types.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handle, ok := g.entityByName[strings.ToLower(name)]
	if !ok {
		return nil
	}
	ent := g.entities[handle].ent
	return &ent
}

// EntityUpdate is a partial update for UpdateEntity. Nil/zero fields are
// left untouched. Confidence merges as max(old, new); MentionDelta only
// ever increases the count.
type EntityUpdate struct {
	Attributes   map[string]interface{}
	Confidence   *float64
	LastSeen     *time.Time
	MentionDelta int
}

// UpdateEntity applies a partial update. Unknown IDs are a no-op.
func (g *Graph) UpdateEntity(ctx context.Context, id string, update EntityUpdate) error {
	g.mu.Lock()
	handle, ok := g.entityByID[id]
	if !ok {
		g.mu.Unlock()
		return nil
	}

	rec := &g.entities[handle]
	rec.ent.MergeAttributes(update.Attributes)
	if update.Confidence != nil && *update.Confidence > rec.ent.Confidence {
		rec.ent.Confidence = *update.Confidence
	}
	if update.LastSeen != nil && update.LastSeen.After(rec.ent.LastSeen) {
		rec.ent.LastSeen = *update.LastSeen
	}
	if update.MentionDelta > 0 {
		rec.ent.MentionCount += update.MentionDelta
	}
	updated := rec.ent
	g.mu.Unlock()

	if g.persist != nil {
		return g.persist.PutEntity(ctx, &updated)
	}
	return nil
}

// FindEntities returns all entities whose name contains the given
// substring, case-insensitively. An empty substring returns all entities.
func (g *Graph) FindEntities(substr string) []types.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	needle := strings.ToLower(substr)
	var out []types.Entity
	for i := range g.entities {
		if g.entities[i].deleted {
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(g.entities[i].ent.Name), needle) {
			out = append(out, g.entities[i].ent)
		}
	}
	return out
}

// DeleteEntity removes an entity and all relationships touching it.
// Unknown IDs are a no-op. Returns the number of relationships removed.
func (g *Graph) DeleteEntity(ctx context.Context, id string) (int, error) {
	g.mu.Lock()
	handle, ok := g.entityByID[id]
	if !ok {
		g.mu.Unlock()
		return 0, nil
	}

	removed := 0
	for _, relHandle := range g.adjacency[handle] {
		if g.rels[relHandle].deleted {
			continue
		}
		g.detachRelationship(relHandle)
		removed++
	}
	delete(g.adjacency, handle)

	rec := &g.entities[handle]
	delete(g.entityByID, rec.ent.ID)
	delete(g.entityByName, strings.ToLower(rec.ent.Name))
	rec.deleted = true
	g.mu.Unlock()

	if g.persist != nil {
		// Relationship rows cascade with the entity row.
		if err := g.persist.DeleteEntity(ctx, id); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// AddRelationship stores a new relationship. Both endpoints must reference
// existing entities; otherwise ErrMissingEndpoint is returned. Weight is
// clamped to >= 0 and an empty ID is assigned as "rel:<uuid>".
func (g *Graph) AddRelationship(ctx context.Context, rel types.Relationship) (*types.Relationship, error) {
	stored, err := g.addRelationshipMem(rel)
	if err != nil {
		return nil, err
	}
	if g.persist != nil {
		if err := g.persist.PutRelationship(ctx, stored); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

func (g *Graph) addRelationshipMem(rel types.Relationship) (*types.Relationship, error) {
	if rel.Type == "" {
		return nil, fmt.Errorf("%w: relationship type is required", storage.ErrInvalidInput)
	}
	if rel.ID == "" {
		rel.ID = "rel:" + uuid.NewString()
	}
	if rel.Weight < 0 {
		rel.Weight = 0
	}
	if rel.Timestamp.IsZero() {
		rel.Timestamp = time.Now()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entityByID[rel.SourceID]; !ok {
		return nil, fmt.Errorf("%w: source %s", storage.ErrMissingEndpoint, rel.SourceID)
	}
	if _, ok := g.entityByID[rel.TargetID]; !ok {
		return nil, fmt.Errorf("%w: target %s", storage.ErrMissingEndpoint, rel.TargetID)
	}
	g.insertRelationship(rel)
	return &rel, nil
}

// strengthenMem adds delta to a relationship's weight in memory, clamped
// at zero, and refreshes its timestamp. Unknown IDs return nil.
func (g *Graph) strengthenMem(relID string, delta float64) *types.Relationship {
	g.mu.Lock()
	defer g.mu.Unlock()
	handle, ok := g.relByID[relID]
	if !ok {
		return nil
	}
	rec := &g.rels[handle]
	rec.rel.Weight += delta
	if rec.rel.Weight < 0 {
		rec.rel.Weight = 0
	}
	rec.rel.Timestamp = time.Now()
	updated := rec.rel
	return &updated
}

// GetRelationships returns all relationships touching the given entity,
// in either direction. Unknown IDs return an empty slice.
func (g *Graph) GetRelationships(entityID string) []types.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handle, ok := g.entityByID[entityID]
	if !ok {
		return nil
	}
	var out []types.Relationship
	for _, relHandle := range g.adjacency[handle] {
		if !g.rels[relHandle].deleted {
			out = append(out, g.rels[relHandle].rel)
		}
	}
	return out
}

// GetRelationshipBetween returns all relationships between two entities,
// checking both directions.
func (g *Graph) GetRelationshipBetween(a, b string) []types.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handle, ok := g.entityByID[a]
	if !ok {
		return nil
	}
	var out []types.Relationship
	for _, relHandle := range g.adjacency[handle] {
		rec := &g.rels[relHandle]
		if rec.deleted {
			continue
		}
		if (rec.rel.SourceID == a && rec.rel.TargetID == b) ||
			(rec.rel.SourceID == b && rec.rel.TargetID == a) {
			out = append(out, rec.rel)
		}
	}
	return out
}

// FindRelationship returns the relationship with the exact directed
// (source, target, type) triple, or nil. Used by ingest to strengthen a
// re-observed relationship instead of duplicating it.
func (g *Graph) FindRelationship(sourceID, targetID, relType string) *types.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handle, ok := g.entityByID[sourceID]
	if !ok {
		return nil
	}
	for _, relHandle := range g.adjacency[handle] {
		rec := &g.rels[relHandle]
		if rec.deleted {
			continue
		}
		if rec.rel.SourceID == sourceID && rec.rel.TargetID == targetID && rec.rel.Type == relType {
			rel := rec.rel
			return &rel
		}
	}
	return nil
}

// Stats returns total entity and relationship counts.
func (g *Graph) Stats() (entities, relationships int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entityByID), len(g.relByID)
}

// Entities returns a copy of all entities.
func (g *Graph) Entities() []types.Entity {
	return g.FindEntities("")
}

// Relationships returns a copy of all relationships.
func (g *Graph) Relationships() []types.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []types.Relationship
	for i := range g.rels {
		if !g.rels[i].deleted {
			out = append(out, g.rels[i].rel)
		}
	}
	return out
}

// PersistBatch writes the given entities and relationships in one
// transaction. Ingest uses this so a crash mid-write cannot leave a
// relationship referencing a missing entity.
func (g *Graph) PersistBatch(ctx context.Context, entities []*types.Entity, rels []*types.Relationship) error {
	if g.persist == nil {
		return nil
	}
	return g.persist.PutBatch(ctx, entities, rels)
}

// ---------------------------------------------------------------------------
// Internal arena plumbing. Callers must hold g.mu for writing.
// ---------------------------------------------------------------------------

func (g *Graph) insertEntity(ent types.Entity) int {
	handle := len(g.entities)
	g.entities = append(g.entities, entityRecord{ent: ent})
	g.entityByID[ent.ID] = handle
	g.entityByName[strings.ToLower(ent.Name)] = handle
	return handle
}

func (g *Graph) insertRelationship(rel types.Relationship) int {
	handle := len(g.rels)
	g.rels = append(g.rels, relRecord{rel: rel})
	g.relByID[rel.ID] = handle
	src := g.entityByID[rel.SourceID]
	tgt := g.entityByID[rel.TargetID]
	g.adjacency[src] = append(g.adjacency[src], handle)
	if tgt != src {
		g.adjacency[tgt] = append(g.adjacency[tgt], handle)
	}
	return handle
}

// detachRelationship marks a relationship deleted and removes it from the
// ID index. Adjacency lists keep the handle; lookups skip deleted records.
func (g *Graph) detachRelationship(relHandle int) {
	rec := &g.rels[relHandle]
	delete(g.relByID, rec.rel.ID)
	rec.deleted = true
}

// GenerateEntityID builds an entity ID in the "ent:<type>:<slug>" format.
func GenerateEntityID(entityType, name string) string {
	return fmt.Sprintf("ent:%s:%s", entityType, slugify(name))
}

// slugify lowercases and replaces non-alphanumeric runs with hyphens.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
