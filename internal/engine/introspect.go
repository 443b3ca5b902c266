package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/halcyard/engram/pkg/types"
)

// Remember indexes a standalone fact directly, bypassing extraction.
// Returns the created document IDs.
func (e *Engine) Remember(ctx context.Context, fact, source string) ([]string, error) {
	if source == "" {
		source = "user"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Add(ctx, fact, source, nil)
}

// ForgetResult reports what Forget removed.
type ForgetResult struct {
	DeletedEntities int `json:"deleted_entities"`
	DeletedIndex    int `json:"deleted_index"`
}

// Forget deletes the entity matching the given name, its relationships,
// and all indexed documents containing the text. Unknown names delete
// nothing and return zero counts, not an error.
func (e *Engine) Forget(ctx context.Context, entityOrFact string) (*ForgetResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &ForgetResult{}

	if ent := e.graph.GetEntityByName(entityOrFact); ent != nil {
		if _, err := e.graph.DeleteEntity(ctx, ent.ID); err != nil {
			return result, fmt.Errorf("engine: delete entity %s: %w", ent.ID, err)
		}
		result.DeletedEntities = 1
	}

	needle := strings.ToLower(entityOrFact)
	for _, doc := range e.index.Documents() {
		if strings.Contains(strings.ToLower(doc.Content), needle) {
			if err := e.index.Remove(ctx, doc.ID); err != nil {
				return result, fmt.Errorf("engine: remove document %s: %w", doc.ID, err)
			}
			result.DeletedIndex++
		}
	}
	return result, nil
}

// EntityProfile is the introspection view of one entity: the entity
// itself, its relationships, its direct neighbours, and recent documents
// mentioning it.
type EntityProfile struct {
	Entity          types.Entity         `json:"entity"`
	Relationships   []types.Relationship `json:"relationships"`
	Related         []types.Entity       `json:"related"`
	RecentDocuments []types.Document     `json:"recent_documents"`
}

// profileDocumentLimit caps the documents attached to a profile.
const profileDocumentLimit = 5

// GetEntityProfile assembles the profile for the named entity, or nil
// when the entity is unknown.
func (e *Engine) GetEntityProfile(name string) *EntityProfile {
	ent := e.graph.GetEntityByName(name)
	if ent == nil {
		return nil
	}

	docs := e.documentsMentioning(ent.Name)
	if len(docs) > profileDocumentLimit {
		docs = docs[:profileDocumentLimit]
	}

	return &EntityProfile{
		Entity:          *ent,
		Relationships:   e.graph.GetRelationships(ent.ID),
		Related:         e.graph.GetConnectedEntities(ent.ID, 1),
		RecentDocuments: docs,
	}
}

// TimelineEntry is one dated observation of an entity.
type TimelineEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	DocumentID string    `json:"document_id"`
}

// GetTimeline returns documents mentioning the named entity, newest
// first, up to limit (default 10). Unknown names return an empty slice.
func (e *Engine) GetTimeline(entityName string, limit int) []TimelineEntry {
	if limit <= 0 {
		limit = 10
	}

	docs := e.documentsMentioning(entityName)
	if len(docs) > limit {
		docs = docs[:limit]
	}

	entries := make([]TimelineEntry, len(docs))
	for i, doc := range docs {
		entries[i] = TimelineEntry{
			Timestamp:  doc.Timestamp,
			Content:    doc.Content,
			Source:     doc.Source,
			DocumentID: doc.ID,
		}
	}
	return entries
}

// SummarizeRelationship renders how two named entities relate, based on
// the graph alone.
func (e *Engine) SummarizeRelationship(a, b string) string {
	return e.mapper.DescribeRelationship(a, b)
}

// documentsMentioning returns indexed documents containing the name,
// case-insensitively, sorted newest first with ID tiebreak.
func (e *Engine) documentsMentioning(name string) []types.Document {
	needle := strings.ToLower(name)
	var docs []types.Document
	for _, doc := range e.index.Documents() {
		if strings.Contains(strings.ToLower(doc.Content), needle) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].Timestamp.Equal(docs[j].Timestamp) {
			return docs[i].Timestamp.After(docs[j].Timestamp)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}
