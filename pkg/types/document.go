package types

import "time"

// Document is one indexed unit of raw text: an ingested conversation batch
// or an explicitly remembered fact. The relevance index derives a
// per-document token-frequency table from Content at index time; the table
// is not persisted and is rebuilt when documents are reloaded.
type Document struct {
	ID        string                 `json:"id"` // Unique identifier (format: doc:uuid)
	Content   string                 `json:"content"`
	Source    string                 `json:"source"` // e.g. "agent:main", "user", "long-term"
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	// Embedding is the optional vector for this document, present only
	// when an embedder was configured at index time.
	Embedding []float64 `json:"embedding,omitempty"`
}
