package index

import (
	"context"
	"errors"
	"testing"

	"github.com/halcyard/engram/internal/storage"
)

func searchOpts(limit int) storage.SearchOptions {
	return storage.SearchOptions{Limit: limit}
}

func TestBM25Ordering(t *testing.T) {
	idx := New()
	addTestDoc(t, idx, "the cat sat", "test")
	addTestDoc(t, idx, "the cat sat on the mat the mat", "test")

	catHits := idx.Search("cat", searchOpts(10))
	if len(catHits) != 2 {
		t.Fatalf("expected both documents to match %q, got %d", "cat", len(catHits))
	}
	for _, hit := range catHits {
		if hit.Score <= 0 {
			t.Errorf("expected positive score, got %v for %q", hit.Score, hit.Document.Content)
		}
	}

	matHits := idx.Search("mat", searchOpts(10))
	if len(matHits) != 1 {
		t.Fatalf("expected only one document to match %q, got %d", "mat", len(matHits))
	}
	if matHits[0].Document.Content != "the cat sat on the mat the mat" {
		t.Errorf("wrong document matched: %q", matHits[0].Document.Content)
	}
}

func TestSearchExcludesNonMatching(t *testing.T) {
	idx := New()
	addTestDoc(t, idx, "completely unrelated text", "test")

	if hits := idx.Search("zebra", searchOpts(10)); len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
	if hits := idx.Search("", searchOpts(10)); len(hits) != 0 {
		t.Errorf("empty query should match nothing, got %d", len(hits))
	}
}

func TestSearchSourceFilter(t *testing.T) {
	idx := New()
	addTestDoc(t, idx, "shared topic one", "agent:a")
	addTestDoc(t, idx, "shared topic two", "agent:b")

	hits := idx.Search("topic", storage.SearchOptions{Limit: 10, Sources: []string{"agent:b"}})
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit with source filter, got %d", len(hits))
	}
	if hits[0].Document.Source != "agent:b" {
		t.Errorf("wrong source: %s", hits[0].Document.Source)
	}
}

// staticEmbedder returns a fixed vector for any input, or an error.
type staticEmbedder struct {
	vec []float64
	err error
}

func (s *staticEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return s.vec, s.err
}

func TestSearchWithContextBlendsEmbeddings(t *testing.T) {
	idx := New()
	idA := addTestDoc(t, idx, "project status update", "test")
	idB := addTestDoc(t, idx, "project status report", "test")

	// Give document B an embedding aligned with the query vector so the
	// blend pushes it above A, which gets no embedding contribution.
	if doc := idx.Get(idB); doc != nil {
		d := *doc
		d.Embedding = []float64{1, 0}
		idx.mu.Lock()
		idx.insert(d)
		idx.mu.Unlock()
	}
	idx.SetEmbedder(&staticEmbedder{vec: []float64{1, 0}})

	hits := idx.SearchWithContext(context.Background(), "project status", searchOpts(10))
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Document.ID != idB {
		t.Errorf("embedding blend should rank %s first, got %s", idB, hits[0].Document.ID)
	}
	if hits[1].Document.ID != idA {
		t.Errorf("expected %s second, got %s", idA, hits[1].Document.ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("blended score should exceed lexical-only score: %v vs %v", hits[0].Score, hits[1].Score)
	}
}

func TestSearchWithContextDegradesOnEmbedderFailure(t *testing.T) {
	idx := New()
	addTestDoc(t, idx, "graceful degradation works", "test")
	idx.SetEmbedder(&staticEmbedder{err: errors.New("backend down")})

	hits := idx.SearchWithContext(context.Background(), "degradation", searchOpts(10))
	if len(hits) != 1 {
		t.Fatalf("expected lexical fallback to return 1 hit, got %d", len(hits))
	}
	if hits[0].Score <= 0 {
		t.Errorf("expected positive lexical score, got %v", hits[0].Score)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float64{1, 0}, []float64{1, 0}); got < 0.999 {
		t.Errorf("identical vectors should score 1, got %v", got)
	}
	if got := cosineSimilarity([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors should score 0, got %v", got)
	}
	if got := cosineSimilarity([]float64{1, 0}, []float64{1}); got != 0 {
		t.Errorf("mismatched lengths should score 0, got %v", got)
	}
}
