package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/halcyard/engram/internal/storage"
	"github.com/halcyard/engram/pkg/types"
)

// Ensure *DocumentStore implements storage.DocumentStore at compile time.
var _ storage.DocumentStore = (*DocumentStore)(nil)

// DocumentStore persists raw index documents to SQLite. Term-frequency
// tables are derived in memory by the relevance index, so this store only
// holds raw content, metadata, and optional embeddings.
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore opens (or creates) a document store at the given DSN.
func NewDocumentStore(dsn string) (*DocumentStore, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: document store: %w", err)
	}
	return &DocumentStore{db: db}, nil
}

// NewDocumentStoreWithDB wraps an existing database handle.
func NewDocumentStoreWithDB(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// PutDocument stores a document (upsert semantics).
func (s *DocumentStore) PutDocument(ctx context.Context, doc *types.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}
	if doc.Content == "" {
		return fmt.Errorf("%w: document content is required", storage.ErrInvalidInput)
	}

	var metaJSON []byte
	if len(doc.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: marshal metadata for %s: %w", doc.ID, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, content, source, timestamp, metadata, embedding, dimension)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			source = excluded.source,
			timestamp = excluded.timestamp,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dimension = excluded.dimension`,
		doc.ID, doc.Content, doc.Source, doc.Timestamp, nullableString(metaJSON),
		serializeEmbedding(doc.Embedding), len(doc.Embedding))
	if err != nil {
		return fmt.Errorf("sqlite: PutDocument %s: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument removes a document by ID. Unknown IDs are a no-op.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: DeleteDocument %s: %w", id, err)
	}
	return nil
}

// DeleteBySource removes all documents with the given source tag.
func (s *DocumentStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("sqlite: DeleteBySource %s: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: DeleteBySource rows affected: %w", err)
	}
	return int(n), nil
}

// LoadDocuments returns all stored documents.
func (s *DocumentStore) LoadDocuments(ctx context.Context) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source, timestamp, metadata, embedding, dimension
		FROM documents
		ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: LoadDocuments: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var doc types.Document
		var metaJSON sql.NullString
		var blob []byte
		var dim int
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Source, &doc.Timestamp,
			&metaJSON, &blob, &dim); err != nil {
			return nil, fmt.Errorf("sqlite: LoadDocuments scan: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: LoadDocuments unmarshal metadata for %s: %w", doc.ID, err)
			}
		}
		embedding, err := deserializeEmbedding(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("sqlite: LoadDocuments embedding for %s: %w", doc.ID, err)
		}
		doc.Embedding = embedding
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: LoadDocuments rows: %w", err)
	}
	return docs, nil
}

// Close releases the underlying database handle.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}
