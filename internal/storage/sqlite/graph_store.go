package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/halcyard/engram/internal/storage"
	"github.com/halcyard/engram/pkg/types"
)

// Ensure *GraphStore implements storage.GraphPersistence at compile time.
var _ storage.GraphPersistence = (*GraphStore)(nil)

// GraphStore persists entities and relationships to SQLite. It is the
// write-through backing for the in-memory knowledge graph; all reads
// during normal operation go to the arena, so this type only needs
// LoadGraph for startup and mutation methods thereafter.
type GraphStore struct {
	db *sql.DB
}

// NewGraphStore opens (or creates) a graph store at the given DSN.
func NewGraphStore(dsn string) (*GraphStore, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: graph store: %w", err)
	}
	return &GraphStore{db: db}, nil
}

// NewGraphStoreWithDB wraps an existing database handle. The caller
// retains ownership of the handle; Close becomes a no-op.
func NewGraphStoreWithDB(db *sql.DB) *GraphStore {
	return &GraphStore{db: db}
}

// LoadGraph returns all stored entities and relationships.
func (s *GraphStore) LoadGraph(ctx context.Context) ([]types.Entity, []types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, attributes, first_seen, last_seen, mention_count, confidence
		FROM entities`)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: LoadGraph entities: %w", err)
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		var ent types.Entity
		var attrsJSON sql.NullString
		if err := rows.Scan(&ent.ID, &ent.Name, &ent.Type, &attrsJSON,
			&ent.FirstSeen, &ent.LastSeen, &ent.MentionCount, &ent.Confidence); err != nil {
			return nil, nil, fmt.Errorf("sqlite: LoadGraph scan entity: %w", err)
		}
		if attrsJSON.Valid && attrsJSON.String != "" {
			if err := json.Unmarshal([]byte(attrsJSON.String), &ent.Attributes); err != nil {
				return nil, nil, fmt.Errorf("sqlite: LoadGraph unmarshal attributes for %s: %w", ent.ID, err)
			}
		}
		entities = append(entities, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("sqlite: LoadGraph entities rows: %w", err)
	}

	relRows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, weight, context, timestamp
		FROM relationships`)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: LoadGraph relationships: %w", err)
	}
	defer relRows.Close()

	var rels []types.Relationship
	for relRows.Next() {
		var rel types.Relationship
		var relCtx sql.NullString
		if err := relRows.Scan(&rel.ID, &rel.SourceID, &rel.TargetID, &rel.Type,
			&rel.Weight, &relCtx, &rel.Timestamp); err != nil {
			return nil, nil, fmt.Errorf("sqlite: LoadGraph scan relationship: %w", err)
		}
		if relCtx.Valid {
			rel.Context = relCtx.String
		}
		rels = append(rels, rel)
	}
	if err := relRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("sqlite: LoadGraph relationships rows: %w", err)
	}

	return entities, rels, nil
}

// PutEntity creates or updates an entity.
func (s *GraphStore) PutEntity(ctx context.Context, entity *types.Entity) error {
	if entity == nil || entity.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	return putEntityTx(ctx, s.db, entity)
}

// DeleteEntity removes an entity; relationships touching it are removed by
// the ON DELETE CASCADE constraints.
func (s *GraphStore) DeleteEntity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: DeleteEntity %s: %w", id, err)
	}
	return nil
}

// PutRelationship creates or updates a relationship.
func (s *GraphStore) PutRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil || rel.ID == "" {
		return fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}
	return putRelationshipTx(ctx, s.db, rel)
}

// DeleteRelationship removes a relationship by ID.
func (s *GraphStore) DeleteRelationship(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: DeleteRelationship %s: %w", id, err)
	}
	return nil
}

// PutBatch upserts entities and relationships in one transaction.
// Entities are written first so relationship endpoint constraints hold.
func (s *GraphStore) PutBatch(ctx context.Context, entities []*types.Entity, rels []*types.Relationship) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: PutBatch begin: %w", err)
	}
	defer tx.Rollback()

	for _, ent := range entities {
		if err := putEntityTx(ctx, tx, ent); err != nil {
			return err
		}
	}
	for _, rel := range rels {
		if err := putRelationshipTx(ctx, tx, rel); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: PutBatch commit: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *GraphStore) Close() error {
	return s.db.Close()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func putEntityTx(ctx context.Context, db execer, entity *types.Entity) error {
	var attrsJSON []byte
	if len(entity.Attributes) > 0 {
		var err error
		attrsJSON, err = json.Marshal(entity.Attributes)
		if err != nil {
			return fmt.Errorf("sqlite: marshal attributes for %s: %w", entity.ID, err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO entities (id, name, type, attributes, first_seen, last_seen, mention_count, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			attributes = excluded.attributes,
			last_seen = excluded.last_seen,
			mention_count = excluded.mention_count,
			confidence = excluded.confidence`,
		entity.ID, entity.Name, entity.Type, nullableString(attrsJSON),
		entity.FirstSeen, entity.LastSeen, entity.MentionCount, entity.Confidence)
	if err != nil {
		return fmt.Errorf("sqlite: PutEntity %s: %w", entity.ID, err)
	}
	return nil
}

func putRelationshipTx(ctx context.Context, db execer, rel *types.Relationship) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO relationships (id, source_id, target_id, type, weight, context, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			weight = excluded.weight,
			context = excluded.context,
			timestamp = excluded.timestamp`,
		rel.ID, rel.SourceID, rel.TargetID, rel.Type, rel.Weight, rel.Context, rel.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite: PutRelationship %s: %w", rel.ID, err)
	}
	return nil
}

// nullableString converts an empty byte slice to a SQL NULL.
func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
