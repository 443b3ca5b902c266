package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/halcyard/engram/pkg/types"
)

// ResilientExtractor wraps an Extractor with a rate limiter and a circuit
// breaker. The limiter keeps consolidation and bursty ingest from
// stampeding the LLM backend; the breaker cuts off a backend that keeps
// failing. Both collaborators share the engine's degradation policy:
// callers treat any error as "skip extraction this turn".
type ResilientExtractor struct {
	inner   Extractor
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// NewResilientExtractor wraps the given extractor. rps is the sustained
// calls-per-second allowance; burst is the bucket size. A nil breaker gets
// the default configuration.
func NewResilientExtractor(inner Extractor, rps float64, burst int, breaker *CircuitBreaker) *ResilientExtractor {
	if breaker == nil {
		breaker = NewCircuitBreaker()
	}
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &ResilientExtractor{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
	}
}

// Extract waits for rate-limit headroom, then runs the wrapped extractor
// through the circuit breaker.
func (r *ResilientExtractor) Extract(ctx context.Context, texts []string, known []types.Entity) (*Extraction, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("extraction rate limit: %w", err)
	}
	result, err := r.breaker.Execute(ctx, func() (interface{}, error) {
		return r.inner.Extract(ctx, texts, known)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Extraction), nil
}

// ResilientSummarizer wraps a Summarizer with a rate limiter and circuit
// breaker, mirroring ResilientExtractor.
type ResilientSummarizer struct {
	inner   Summarizer
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// NewResilientSummarizer wraps the given summarizer.
func NewResilientSummarizer(inner Summarizer, rps float64, burst int, breaker *CircuitBreaker) *ResilientSummarizer {
	if breaker == nil {
		breaker = NewCircuitBreaker()
	}
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &ResilientSummarizer{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
	}
}

// Summarize waits for rate-limit headroom, then runs the wrapped
// summarizer through the circuit breaker.
func (r *ResilientSummarizer) Summarize(ctx context.Context, texts []string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("summarization rate limit: %w", err)
	}
	result, err := r.breaker.Execute(ctx, func() (interface{}, error) {
		return r.inner.Summarize(ctx, texts)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
