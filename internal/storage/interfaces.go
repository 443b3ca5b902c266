package storage

import (
	"context"

	"github.com/halcyard/engram/pkg/types"
)

// GraphPersistence is the durable backing for the in-memory knowledge
// graph. The graph writes through on every mutation and loads the full
// entity/relationship set at open. Implementations must make PutBatch
// transactional so a crash mid-ingest cannot leave a relationship
// referencing a missing entity.
type GraphPersistence interface {
	// LoadGraph returns all stored entities and relationships.
	LoadGraph(ctx context.Context) ([]types.Entity, []types.Relationship, error)

	// PutEntity creates or updates an entity (upsert semantics).
	PutEntity(ctx context.Context, entity *types.Entity) error

	// DeleteEntity removes an entity and all relationships touching it.
	DeleteEntity(ctx context.Context, id string) error

	// PutRelationship creates or updates a relationship.
	PutRelationship(ctx context.Context, rel *types.Relationship) error

	// DeleteRelationship removes a relationship by ID.
	DeleteRelationship(ctx context.Context, id string) error

	// PutBatch upserts entities and relationships in one transaction.
	PutBatch(ctx context.Context, entities []*types.Entity, rels []*types.Relationship) error

	// Close releases the underlying database resources.
	Close() error
}

// DocumentStore is the durable backing for the relevance index. Raw
// documents are the source of truth; term-frequency tables are derived in
// memory and never persisted.
type DocumentStore interface {
	// PutDocument stores a document (upsert semantics).
	PutDocument(ctx context.Context, doc *types.Document) error

	// DeleteDocument removes a document by ID. Unknown IDs are a no-op.
	DeleteDocument(ctx context.Context, id string) error

	// DeleteBySource removes all documents with the given source tag and
	// returns the number removed.
	DeleteBySource(ctx context.Context, source string) (int, error)

	// LoadDocuments returns all stored documents.
	LoadDocuments(ctx context.Context) ([]types.Document, error)

	// Close releases the underlying database resources.
	Close() error
}
