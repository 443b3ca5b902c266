package types

import "time"

// ChangeAction categorizes a consolidation changelog entry.
type ChangeAction string

const (
	ActionMerged                ChangeAction = "merged"
	ActionRemoved               ChangeAction = "removed"
	ActionPromoted              ChangeAction = "promoted"
	ActionContradictionResolved ChangeAction = "contradiction_resolved"
)

// ChangeLogEntry records one decision made during a consolidation run.
// The changelog is append-only and held in memory for the duration of a
// single run; it is not persisted across restarts.
type ChangeLogEntry struct {
	Action      ChangeAction `json:"action"`
	Description string       `json:"description"`
	Fragments   []string     `json:"fragments,omitempty"` // Affected fragment IDs
	Timestamp   time.Time    `json:"timestamp"`
}
