// Package types defines the core data structures for the Engram memory
// engine: entities, relationships, indexed documents, ranking fragments,
// and the consolidation changelog.
package types

// Entity type constants. Extraction may also produce free-form custom
// types; EntityTypeCustom is the catch-all used when a candidate's type
// is not one of the well-known values.
const (
	EntityTypePerson  = "person"
	EntityTypeProject = "project"
	EntityTypeConcept = "concept"
	EntityTypePlace   = "place"
	EntityTypeFile    = "file"
	EntityTypeEvent   = "event"
	EntityTypeCustom  = "custom"
)

// ValidEntityTypes is a slice of all well-known entity types.
var ValidEntityTypes = []string{
	EntityTypePerson,
	EntityTypeProject,
	EntityTypeConcept,
	EntityTypePlace,
	EntityTypeFile,
	EntityTypeEvent,
	EntityTypeCustom,
}

// IsValidEntityType checks if the given entity type is one of the
// well-known values.
func IsValidEntityType(entityType string) bool {
	for _, validType := range ValidEntityTypes {
		if validType == entityType {
			return true
		}
	}
	return false
}

// NormalizeEntityType maps unknown extraction types to EntityTypeCustom.
func NormalizeEntityType(entityType string) string {
	if IsValidEntityType(entityType) {
		return entityType
	}
	return EntityTypeCustom
}

// MemoryStats summarizes the contents of both stores.
type MemoryStats struct {
	EntityCount       int `json:"entity_count"`
	RelationshipCount int `json:"relationship_count"`
	DocumentCount     int `json:"document_count"`
}
