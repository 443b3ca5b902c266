// Package storage provides the persistence interfaces and shared option
// types for the Engram memory engine.
//
// Entity/relationship storage and document storage are deliberately
// separate so that either store can be rebuilt independently: the
// relevance index is fully re-derivable by re-indexing stored raw
// documents, and the graph never references documents by pointer.
package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingEndpoint indicates a relationship referencing an entity
	// that does not exist. This is rejected at creation time, never
	// tolerated silently.
	ErrMissingEndpoint = errors.New("relationship endpoint does not exist")
)

// SearchOptions provides filtering options for relevance search.
type SearchOptions struct {
	// Limit is the maximum number of results to return (default: 10).
	Limit int

	// Sources restricts results to documents with one of these source
	// tags. Empty means no source filter.
	Sources []string

	// After restricts results to documents with a timestamp strictly
	// after this time. Zero value means no lower bound.
	After time.Time

	// Before restricts results to documents with a timestamp strictly
	// before this time. Zero value means no upper bound.
	Before time.Time

	// Threshold drops documents scoring below this value. Zero means no
	// minimum.
	Threshold float64
}

// Normalize applies defaults and validates the SearchOptions.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Threshold < 0 {
		o.Threshold = 0
	}
}

// MatchesTimeRange reports whether ts falls within the window defined by
// After and Before. A zero bound is unconstrained.
func (o *SearchOptions) MatchesTimeRange(ts time.Time) bool {
	if !o.After.IsZero() && !ts.After(o.After) {
		return false
	}
	if !o.Before.IsZero() && !ts.Before(o.Before) {
		return false
	}
	return true
}

// MatchesSource reports whether the given source tag passes the Sources
// filter.
func (o *SearchOptions) MatchesSource(source string) bool {
	if len(o.Sources) == 0 {
		return true
	}
	for _, s := range o.Sources {
		if s == source {
			return true
		}
	}
	return false
}
