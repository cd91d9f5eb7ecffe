package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// LibraryKind classifies versioned library entities.
type LibraryKind string

// Library kinds.
const (
	LibraryBoatModel        LibraryKind = "BOAT_MODEL"
	LibraryCatalog          LibraryKind = "CATALOG"
	LibraryDocumentTemplate LibraryKind = "DOCUMENT_TEMPLATE"
	LibraryArticle          LibraryKind = "ARTICLE"
	LibraryKit              LibraryKind = "KIT"
	LibraryProcedure        LibraryKind = "PROCEDURE"
)

// Valid reports whether k is a known library kind.
func (k LibraryKind) Valid() bool {
	switch k {
	case LibraryBoatModel, LibraryCatalog, LibraryDocumentTemplate, LibraryArticle, LibraryKit, LibraryProcedure:
		return true
	}
	return false
}

// VersionStatus is the lifecycle state of a library version.
type VersionStatus string

// Library version statuses.
const (
	VersionDraft      VersionStatus = "DRAFT"
	VersionApproved   VersionStatus = "APPROVED"
	VersionDeprecated VersionStatus = "DEPRECATED"
)

// LibraryEntity has a mutable current version pointer and an append-only
// history of versions.
type LibraryEntity struct {
	Base
	Kind             LibraryKind  `json:"kind"`
	Key              string       `json:"key"`
	Name             string       `json:"name"`
	DocumentType     DocumentType `json:"document_type,omitempty"`
	CurrentVersionID string       `json:"current_version_id,omitempty"`
}

// LibraryVersion is one version of a library entity.
type LibraryVersion struct {
	Base
	EntityID     string          `json:"entity_id"`
	Label        string          `json:"label"`
	Status       VersionStatus   `json:"status"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedBy    string          `json:"created_by"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy   string          `json:"approved_by,omitempty"`
	DeprecatedAt *time.Time      `json:"deprecated_at,omitempty"`
}

func sortedDocumentTypes(m map[DocumentType]string) []DocumentType {
	out := make([]DocumentType, 0, len(m))
	for dt := range m {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
