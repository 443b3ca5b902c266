// Package llm defines the collaborator contracts the memory engine
// consumes: entity extraction, summarization, and embedding. All three are
// backed by LLM calls upstream, may be slow, may fail, and produce noisy
// output the engine must treat as untrusted. Concrete provider clients
// live outside this module; callers supply implementations.
package llm

import (
	"context"

	"github.com/halcyard/engram/pkg/types"
)

// CandidateEntity is an extraction proposal. Candidates without a Name or
// Type are dropped by the engine, not by the extractor.
type CandidateEntity struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Confidence float64                `json:"confidence"`

	// MatchedID is set by the batch extractor when the candidate matched
	// a known entity case-insensitively by name. Empty means new-entity
	// proposal; the graph, not the extractor, decides create-vs-update.
	MatchedID string `json:"matched_id,omitempty"`
}

// CandidateRelationship is an extraction proposal linking two candidate
// entities by name.
type CandidateRelationship struct {
	Source  string  `json:"source"`
	Target  string  `json:"target"`
	Type    string  `json:"type"`
	Context string  `json:"context,omitempty"`
	Weight  float64 `json:"weight"`
}

// Extraction is the result of one extraction call over a text batch.
type Extraction struct {
	Entities      []CandidateEntity       `json:"entities"`
	Relationships []CandidateRelationship `json:"relationships"`
}

// Extractor extracts candidate entities and relationships from raw text,
// given the entities already known to the graph.
type Extractor interface {
	Extract(ctx context.Context, texts []string, known []types.Entity) (*Extraction, error)
}

// Summarizer condenses a list of texts into a single string. Used by the
// consolidator when merging near-duplicate fragments.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string) (string, error)
}

// Embedder converts text into a fixed-length vector. Optional: the engine
// degrades to lexical-only scoring when no Embedder is configured.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
