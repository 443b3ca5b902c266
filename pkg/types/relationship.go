package types

import "time"

// Relationship represents a directed, weighted, typed edge between two
// entities. Both endpoints must reference existing entities at creation
// time. Weight decays toward zero over time; a relationship whose weight
// falls at or below a small epsilon is removed during a decay pass.
//
// Storage is directed, but traversal and neighborhood queries treat edges
// as undirected unless a consumer explicitly asks for direction.
type Relationship struct {
	ID        string    `json:"id"`        // Unique identifier (format: rel:uuid)
	SourceID  string    `json:"source_id"` // Source entity ID
	TargetID  string    `json:"target_id"` // Target entity ID
	Type      string    `json:"type"`      // Free-form label (e.g. "works on")
	Weight    float64   `json:"weight"`    // Strength, clamped to >= 0
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Touches reports whether the relationship has the given entity as either
// endpoint.
func (r *Relationship) Touches(entityID string) bool {
	return r.SourceID == entityID || r.TargetID == entityID
}

// Other returns the opposite endpoint from the given entity ID, or an
// empty string if the entity is not an endpoint.
func (r *Relationship) Other(entityID string) string {
	switch entityID {
	case r.SourceID:
		return r.TargetID
	case r.TargetID:
		return r.SourceID
	}
	return ""
}
