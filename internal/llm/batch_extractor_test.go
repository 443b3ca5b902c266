package llm

import (
	"context"
	"testing"

	"github.com/halcyard/engram/pkg/types"
)

type fixedExtractor struct {
	extraction *Extraction
	err        error
	gotTexts   []string
}

func (f *fixedExtractor) Extract(ctx context.Context, texts []string, known []types.Entity) (*Extraction, error) {
	f.gotTexts = texts
	return f.extraction, f.err
}

func TestExtractBatchAnnotatesKnownEntities(t *testing.T) {
	inner := &fixedExtractor{extraction: &Extraction{
		Entities: []CandidateEntity{
			{Name: "alice", Type: "person"},
			{Name: "ProjectY", Type: "project"},
		},
	}}
	b := NewBatchExtractor(inner)

	known := []types.Entity{{ID: "ent:person:alice", Name: "Alice"}}
	result, err := b.ExtractBatch(context.Background(), []string{"alice mentioned ProjectY"}, known)
	if err != nil {
		t.Fatalf("ExtractBatch failed: %v", err)
	}

	if result.Entities[0].MatchedID != "ent:person:alice" {
		t.Errorf("case-insensitive name match should set MatchedID, got %q", result.Entities[0].MatchedID)
	}
	if result.Entities[1].MatchedID != "" {
		t.Errorf("unknown candidate should stay a new-entity proposal, got %q", result.Entities[1].MatchedID)
	}
}

func TestExtractBatchEmptyInput(t *testing.T) {
	inner := &fixedExtractor{}
	b := NewBatchExtractor(inner)

	result, err := b.ExtractBatch(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("ExtractBatch failed: %v", err)
	}
	if len(result.Entities) != 0 || len(result.Relationships) != 0 {
		t.Errorf("expected empty extraction, got %+v", result)
	}
	if inner.gotTexts != nil {
		t.Error("extractor should not be called for an empty batch")
	}
}

func TestExtractBatchNilResult(t *testing.T) {
	b := NewBatchExtractor(&fixedExtractor{})
	result, err := b.ExtractBatch(context.Background(), []string{"text"}, nil)
	if err != nil {
		t.Fatalf("ExtractBatch failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil extraction for nil collaborator result")
	}
}
