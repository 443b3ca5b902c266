package types

import "time"

// Entity represents a named, typed thing tracked across conversations.
// An entity is created on its first extraction match and mutated on every
// re-mention: MentionCount increments, LastSeen advances, Confidence takes
// the max of old and new, and Attributes are merged key-wise.
//
// Invariants: ID is immutable once assigned, MentionCount only increases,
// and LastSeen >= FirstSeen.
type Entity struct {
	ID           string                 `json:"id"`   // Unique identifier (format: ent:type:slug)
	Name         string                 `json:"name"` // Display name
	Type         string                 `json:"type"` // Entity type (see EntityType constants)
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	FirstSeen    time.Time              `json:"first_seen"`
	LastSeen     time.Time              `json:"last_seen"`
	MentionCount int                    `json:"mention_count"`
	Confidence   float64                `json:"confidence"` // Extraction confidence (0.0-1.0)
}

// MergeAttributes copies the given attributes into the entity, overwriting
// existing keys. A nil map is a no-op.
func (e *Entity) MergeAttributes(attrs map[string]interface{}) {
	if len(attrs) == 0 {
		return
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]interface{}, len(attrs))
	}
	for k, v := range attrs {
		e.Attributes[k] = v
	}
}
