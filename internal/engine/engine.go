// Package engine is the memory engine: the orchestrator tying the
// knowledge graph, relevance index, context ranker, and consolidator
// together behind the surface the agent loop consumes.
//
// The engine is synchronous and caller-driven. It starts no background
// workers or timers; periodic consolidation is triggered by the caller.
// Mutating operations are serialized internally so multiple agents can
// share one instance safely.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/halcyard/engram/internal/config"
	"github.com/halcyard/engram/internal/consolidate"
	"github.com/halcyard/engram/internal/graph"
	"github.com/halcyard/engram/internal/index"
	"github.com/halcyard/engram/internal/llm"
	"github.com/halcyard/engram/internal/storage"
	"github.com/halcyard/engram/internal/storage/postgres"
	"github.com/halcyard/engram/internal/storage/sqlite"
	"github.com/halcyard/engram/pkg/types"
)

// sourceLongTerm tags documents promoted to durable long-term notes. The
// ranker boosts this source during recall.
const sourceLongTerm = "long-term"

// Message is one conversational turn handed to Ingest.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Collaborators bundles the external LLM-backed functions the engine
// consumes. All three are optional; the engine degrades per operation
// when one is missing or failing.
type Collaborators struct {
	Extractor  llm.Extractor
	Summarizer llm.Summarizer
	Embedder   llm.Embedder
}

// Engine orchestrates the memory subsystem.
type Engine struct {
	// mu serializes mutating operations. The graph's in-memory indices
	// are not safe under concurrent mutation, so each mutating call is a
	// critical section.
	mu sync.Mutex

	cfg          *config.Config
	graph        *graph.Graph
	mapper       *graph.Mapper
	index        *index.Index
	consolidator *consolidate.Consolidator

	extractor  *llm.BatchExtractor // nil when no extractor is configured
	summarizer llm.Summarizer      // nil when no summarizer is configured
}

// New assembles an engine over pre-built stores. Collaborator calls are
// wrapped with the rate limiter and circuit breaker configured in cfg.
func New(cfg *config.Config, g *graph.Graph, idx *index.Index, collab Collaborators) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if g == nil || idx == nil {
		return nil, fmt.Errorf("engine: graph and index are required")
	}

	e := &Engine{
		cfg:   cfg,
		graph: g,
		index: idx,
	}

	e.mapper = graph.NewMapper(g)
	if cfg.Graph.DecayHalfLife > 0 {
		e.mapper.DecayHalfLife = cfg.Graph.DecayHalfLife
	}

	breakerCfg := llm.CircuitBreakerConfig{
		MaxFailures: uint32(cfg.Collaborator.BreakerMaxFailures),
		Timeout:     cfg.Collaborator.BreakerTimeout,
	}
	rps := cfg.Collaborator.RateLimit
	burst := cfg.Collaborator.RateBurst

	if collab.Extractor != nil {
		resilient := llm.NewResilientExtractor(collab.Extractor, rps, burst,
			llm.NewCircuitBreakerWithConfig(breakerCfg))
		e.extractor = llm.NewBatchExtractor(resilient)
	}
	if collab.Summarizer != nil {
		e.summarizer = llm.NewResilientSummarizer(collab.Summarizer, rps, burst,
			llm.NewCircuitBreakerWithConfig(breakerCfg))
	}
	if collab.Embedder != nil {
		idx.SetEmbedder(collab.Embedder)
	}

	e.consolidator = consolidate.New(g, e.summarizer)
	return e, nil
}

// Open builds the stores described by cfg and assembles an engine over
// them. The graph always persists to sqlite under the data path; the
// document store backend is selected by cfg.Storage.Engine.
func Open(ctx context.Context, cfg *config.Config, collab Collaborators) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data path: %w", err)
	}

	graphStore, err := sqlite.NewGraphStore(filepath.Join(cfg.Storage.DataPath, "graph.db"))
	if err != nil {
		return nil, fmt.Errorf("engine: open graph store: %w", err)
	}
	g, err := graph.Open(ctx, graphStore)
	if err != nil {
		graphStore.Close()
		return nil, fmt.Errorf("engine: load graph: %w", err)
	}

	docStore, err := openDocumentStore(cfg)
	if err != nil {
		g.Close()
		return nil, err
	}
	idx, err := index.Open(ctx, docStore)
	if err != nil {
		g.Close()
		docStore.Close()
		return nil, fmt.Errorf("engine: load index: %w", err)
	}

	return New(cfg, g, idx, collab)
}

func openDocumentStore(cfg *config.Config) (storage.DocumentStore, error) {
	switch cfg.Storage.Engine {
	case "", "sqlite":
		store, err := sqlite.NewDocumentStore(filepath.Join(cfg.Storage.DataPath, "documents.db"))
		if err != nil {
			return nil, fmt.Errorf("engine: open document store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := postgres.NewDocumentStore(cfg.Storage.PostgresDSN, cfg.Storage.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("engine: open document store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("engine: unknown storage engine %q", cfg.Storage.Engine)
	}
}

// Stats returns counts of stored entities, relationships, and documents.
func (e *Engine) Stats() types.MemoryStats {
	entities, relationships := e.graph.Stats()
	return types.MemoryStats{
		EntityCount:       entities,
		RelationshipCount: relationships,
		DocumentCount:     e.index.Count(),
	}
}

// ExportData is a full dump of the knowledge graph for backup or
// inspection. Documents are not included; the index is rebuilt from its
// own store.
type ExportData struct {
	Entities      []types.Entity       `json:"entities"`
	Relationships []types.Relationship `json:"relationships"`
	Stats         types.MemoryStats    `json:"stats"`
}

// Export dumps all entities and relationships with summary stats.
func (e *Engine) Export() ExportData {
	return ExportData{
		Entities:      e.graph.Entities(),
		Relationships: e.graph.Relationships(),
		Stats:         e.Stats(),
	}
}

// ImportResult counts what an Import actually added.
type ImportResult struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// Import rebuilds graph contents from a previous Export. Entities already
// present by ID and relationships already present as the same directed
// (source, target, type) triple are skipped, so importing into a
// non-empty engine is additive.
func (e *Engine) Import(ctx context.Context, data ExportData) (ImportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result ImportResult
	for _, ent := range data.Entities {
		if e.graph.GetEntity(ent.ID) != nil {
			continue
		}
		if _, err := e.graph.AddEntity(ctx, ent); err != nil {
			return result, fmt.Errorf("engine: import entity %s: %w", ent.ID, err)
		}
		result.Entities++
	}
	for _, rel := range data.Relationships {
		if e.graph.FindRelationship(rel.SourceID, rel.TargetID, rel.Type) != nil {
			continue
		}
		if _, err := e.graph.AddRelationship(ctx, rel); err != nil {
			return result, fmt.Errorf("engine: import relationship %s: %w", rel.ID, err)
		}
		result.Relationships++
	}
	return result, nil
}

// Close releases both stores' underlying resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.graph.Close(), e.index.Close())
}
