package domain

import (
	"encoding/json"
	"time"
)

// AuditKind classifies audit entries.
type AuditKind string

// Audit entry kinds.
const (
	AuditCreate           AuditKind = "CREATE"
	AuditUpdate           AuditKind = "UPDATE"
	AuditArchive          AuditKind = "ARCHIVE"
	AuditStatusTransition AuditKind = "STATUS_TRANSITION"
	AuditApprove          AuditKind = "APPROVE"
	AuditAmendment        AuditKind = "AMENDMENT"
	AuditEmergencyUnlock  AuditKind = "EMERGENCY_UNLOCK"
	// AuditTransitionFailed documents an aborted status transition.
	AuditTransitionFailed AuditKind = "TRANSITION_FAILED"
	// AuditAmendmentFailed documents an amendment that could not be created
	// or approved.
	AuditAmendmentFailed AuditKind = "AMENDMENT_FAILED"
	// AuditAccessDenied documents a rejected authorization check.
	AuditAccessDenied AuditKind = "ACCESS_DENIED"
)

// AuditActor identifies who performed an audited action.
type AuditActor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// AuditEntry is a write-once record of a significant state change.
type AuditEntry struct {
	ID          string          `json:"id"`
	Sequence    int64           `json:"sequence"`
	Kind        AuditKind       `json:"kind"`
	EntityType  EntityType      `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Description string          `json:"description"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	Actor       AuditActor      `json:"actor"`
	Timestamp   time.Time       `json:"timestamp"`
}
