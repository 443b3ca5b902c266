package index

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/halcyard/engram/internal/storage"
	"github.com/halcyard/engram/pkg/types"
)

// BM25 tuning constants, the conventional defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// ScoredDocument is one search hit.
type ScoredDocument struct {
	Document types.Document `json:"document"`
	Score    float64        `json:"score"`
}

// Tokenize lowercases the text, strips non-word characters, splits on
// whitespace, and drops tokens of length <= 1.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Search ranks documents against the query using BM25. Documents matching
// none of the query tokens are excluded. Results are sorted by score
// descending, ties broken by timestamp descending then ID for determinism.
func (idx *Index) Search(query string, opts storage.SearchOptions) []ScoredDocument {
	opts.Normalize()

	idx.mu.RLock()
	hits := idx.scoreLexical(query, &opts)
	idx.mu.RUnlock()

	sortHits(hits)
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

// SearchWithContext ranks documents like Search and, when an embedder is
// configured, blends in cosine similarity between the query embedding and
// each candidate's stored embedding: final = lexical + embedWeight*cosine.
// The blend is monotonic in the lexical score for documents with equal
// embedding similarity, and ties are broken deterministically by timestamp
// descending. Embedding failure degrades silently to lexical-only scoring.
func (idx *Index) SearchWithContext(ctx context.Context, query string, opts storage.SearchOptions) []ScoredDocument {
	opts.Normalize()

	idx.mu.RLock()
	embedder := idx.embedder
	hits := idx.scoreLexical(query, &opts)
	idx.mu.RUnlock()

	if embedder != nil && len(hits) > 0 {
		queryVec, err := embedder.Embed(ctx, query)
		if err != nil {
			log.Printf("index: query embedding failed, lexical scores only: %v", err)
		} else {
			weight := idx.embedWeight
			for i := range hits {
				if len(hits[i].Document.Embedding) > 0 {
					hits[i].Score += weight * cosineSimilarity(queryVec, hits[i].Document.Embedding)
				}
			}
		}
	}

	sortHits(hits)
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

// scoreLexical computes BM25 scores for all documents matching at least
// one query token and passing the source/time/threshold filters. Caller
// must hold idx.mu for reading.
func (idx *Index) scoreLexical(query string, opts *storage.SearchOptions) []ScoredDocument {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || len(idx.docs) == 0 {
		return nil
	}

	n := float64(len(idx.docs))
	avgLen := float64(idx.totalLn) / n

	var hits []ScoredDocument
	for _, rec := range idx.docs {
		if !opts.MatchesSource(rec.doc.Source) || !opts.MatchesTimeRange(rec.doc.Timestamp) {
			continue
		}

		var score float64
		matched := false
		for _, term := range queryTokens {
			tf := rec.tf[term]
			if tf == 0 {
				continue
			}
			matched = true
			df := float64(idx.docFreq[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			norm := 1 - bm25B + bm25B*(float64(rec.length)/avgLen)
			score += idf * (float64(tf) * (bm25K1 + 1)) / (float64(tf) + bm25K1*norm)
		}
		if !matched || score < opts.Threshold {
			continue
		}
		hits = append(hits, ScoredDocument{Document: rec.doc, Score: score})
	}
	return hits
}

// sortHits orders hits by score descending, timestamp descending, ID.
func sortHits(hits []ScoredDocument) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Document.Timestamp.Equal(hits[j].Document.Timestamp) {
			return hits[i].Document.Timestamp.After(hits[j].Document.Timestamp)
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 if either vector has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
