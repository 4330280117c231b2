package relationships

import (
	"strings"

	"github.com/memengine/memengine/internal/engineerr"
	"github.com/memengine/memengine/internal/store"
)

// RelationshipTypeInfo describes one recognized relationship type.
type RelationshipTypeInfo struct {
	Name        string
	Description string
}

var relationshipTypeDescriptions = map[string]string{
	"CONTINUATION": "the target record continues the same thread of discussion",
	"REFERENCE":    "the source record refers back to the target without continuing it",
	"RELATED":      "the records share topic or entity overlap without direct continuation",
	"SUPERSEDES":   "the source record replaces the target as the current truth",
	"CONTRADICTION": "the source record conflicts with a claim made in the target",
}

// GetRelationshipTypes returns the recognized relationship types with
// descriptions, in the canonical order defined in §3.
func GetRelationshipTypes() []RelationshipTypeInfo {
	out := make([]RelationshipTypeInfo, 0, len(store.RelationshipTypes))
	for _, t := range store.RelationshipTypes {
		out = append(out, RelationshipTypeInfo{Name: t, Description: relationshipTypeDescriptions[t]})
	}
	return out
}

// ValidateRelationshipType reports an error unless t (case-insensitively)
// names a recognized relationship type.
func ValidateRelationshipType(t string) error {
	if !store.IsValidRelationshipType(strings.ToUpper(t)) {
		return engineerr.New("relationships.ValidateRelationshipType", engineerr.Validation, "invalid relationship type: "+t)
	}
	return nil
}
