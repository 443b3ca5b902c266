// Package index implements the relevance index: BM25-style lexical
// scoring over stored documents with optional embedding-based re-ranking.
//
// Raw documents are persisted through a storage.DocumentStore; the
// per-document term-frequency tables used for scoring are derived in
// memory at index time and rebuilt from raw content on load, so the index
// is always fully re-derivable from stored documents.
package index

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyard/engram/internal/llm"
	"github.com/halcyard/engram/internal/storage"
	"github.com/halcyard/engram/pkg/types"
)

// maxChunkRunes caps the size of a single indexed document. Longer content
// is split on paragraph boundaries so BM25 length normalization stays
// meaningful for conversational batches.
const maxChunkRunes = 2000

type indexedDoc struct {
	doc    types.Document
	tf     map[string]int
	length int // total token count
}

// Index is the relevance index. Safe for concurrent readers; mutating
// calls are serialized by the engine.
type Index struct {
	mu      sync.RWMutex
	docs    map[string]*indexedDoc
	docFreq map[string]int // term -> number of documents containing it
	totalLn int            // sum of document token counts

	store    storage.DocumentStore // nil for memory-only indexes
	embedder llm.Embedder          // nil disables the embedding signal

	// embedWeight scales the cosine-similarity contribution when blending
	// with lexical scores in SearchWithContext.
	embedWeight float64
}

// New creates an empty in-memory index with no persistence.
func New() *Index {
	return &Index{
		docs:        make(map[string]*indexedDoc),
		docFreq:     make(map[string]int),
		embedWeight: 0.5,
	}
}

// Open creates an index backed by the given document store and rebuilds
// the term-frequency tables from the stored raw documents.
func Open(ctx context.Context, store storage.DocumentStore) (*Index, error) {
	idx := New()
	idx.store = store

	docs, err := store.LoadDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: load: %w", err)
	}
	for i := range docs {
		idx.insert(docs[i])
	}
	return idx, nil
}

// SetEmbedder configures the optional embedding collaborator. Without one
// the index degrades to lexical-only scoring.
func (idx *Index) SetEmbedder(embedder llm.Embedder) {
	idx.mu.Lock()
	idx.embedder = embedder
	idx.mu.Unlock()
}

// Add tokenizes and stores the given content, returning the IDs of the
// documents created (more than one when content is chunked). An embedding
// is attached when an embedder is configured; embedding failure is logged
// and the document is indexed without one.
func (idx *Index) Add(ctx context.Context, content, source string, metadata map[string]interface{}) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}

	now := time.Now()
	var ids []string
	for _, chunk := range chunkContent(content) {
		doc := types.Document{
			ID:        "doc:" + uuid.NewString(),
			Content:   chunk,
			Source:    source,
			Timestamp: now,
			Metadata:  metadata,
		}

		idx.mu.RLock()
		embedder := idx.embedder
		idx.mu.RUnlock()
		if embedder != nil {
			vec, err := embedder.Embed(ctx, chunk)
			if err != nil {
				log.Printf("index: embedding failed for %s, indexing without vector: %v", doc.ID, err)
			} else {
				doc.Embedding = vec
			}
		}

		if idx.store != nil {
			if err := idx.store.PutDocument(ctx, &doc); err != nil {
				return ids, err
			}
		}

		idx.mu.Lock()
		idx.insert(doc)
		idx.mu.Unlock()

		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// Get returns a copy of the document with the given ID, or nil.
func (idx *Index) Get(id string) *types.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.docs[id]
	if !ok {
		return nil
	}
	doc := rec.doc
	return &doc
}

// Documents returns copies of all indexed documents.
func (idx *Index) Documents() []types.Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]types.Document, 0, len(idx.docs))
	for _, rec := range idx.docs {
		out = append(out, rec.doc)
	}
	return out
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Remove deletes a document by ID. Unknown IDs are a no-op.
func (idx *Index) Remove(ctx context.Context, id string) error {
	idx.mu.Lock()
	idx.evict(id)
	idx.mu.Unlock()

	if idx.store != nil {
		return idx.store.DeleteDocument(ctx, id)
	}
	return nil
}

// RemoveBySource deletes all documents with the given source tag and
// returns the number removed.
func (idx *Index) RemoveBySource(ctx context.Context, source string) (int, error) {
	idx.mu.Lock()
	var ids []string
	for id, rec := range idx.docs {
		if rec.doc.Source == source {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		idx.evict(id)
	}
	idx.mu.Unlock()

	if idx.store != nil {
		if _, err := idx.store.DeleteBySource(ctx, source); err != nil {
			return len(ids), err
		}
	}
	return len(ids), nil
}

// Close releases the document store, if any.
func (idx *Index) Close() error {
	if idx.store == nil {
		return nil
	}
	return idx.store.Close()
}

// insert adds a document to the in-memory tables. Caller must hold idx.mu
// for writing (or have exclusive access during load).
func (idx *Index) insert(doc types.Document) {
	if old, ok := idx.docs[doc.ID]; ok {
		// Re-indexing an existing ID: retract the old postings first.
		idx.retract(old)
	}
	tokens := Tokenize(doc.Content)
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	rec := &indexedDoc{doc: doc, tf: tf, length: len(tokens)}
	idx.docs[doc.ID] = rec
	for term := range tf {
		idx.docFreq[term]++
	}
	idx.totalLn += rec.length
}

func (idx *Index) evict(id string) {
	rec, ok := idx.docs[id]
	if !ok {
		return
	}
	idx.retract(rec)
	delete(idx.docs, id)
}

func (idx *Index) retract(rec *indexedDoc) {
	for term := range rec.tf {
		if idx.docFreq[term] <= 1 {
			delete(idx.docFreq, term)
		} else {
			idx.docFreq[term]--
		}
	}
	idx.totalLn -= rec.length
}

// chunkContent splits content into chunks of at most maxChunkRunes,
// preferring paragraph boundaries. Most conversational batches fit in a
// single chunk.
func chunkContent(content string) []string {
	if len([]rune(content)) <= maxChunkRunes {
		return []string{content}
	}

	paragraphs := strings.Split(content, "\n\n")
	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(p)) > maxChunkRunes {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	if len(chunks) == 0 {
		return []string{content}
	}
	return chunks
}
