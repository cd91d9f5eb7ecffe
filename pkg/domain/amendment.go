package domain

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// AmendmentType classifies a post-freeze change.
type AmendmentType string

// Amendment types.
const (
	AmendmentEquipmentAdd    AmendmentType = "EQUIPMENT_ADD"
	AmendmentEquipmentRemove AmendmentType = "EQUIPMENT_REMOVE"
	AmendmentScopeChange     AmendmentType = "SCOPE_CHANGE"
	AmendmentPriceAdjustment AmendmentType = "PRICE_ADJUSTMENT"
)

// Valid reports whether t is a known amendment type.
func (t AmendmentType) Valid() bool {
	switch t {
	case AmendmentEquipmentAdd, AmendmentEquipmentRemove, AmendmentScopeChange, AmendmentPriceAdjustment:
		return true
	}
	return false
}

// AmendmentStatus tracks amendment approval.
type AmendmentStatus string

// Amendment statuses.
const (
	AmendmentPending  AmendmentStatus = "PENDING_APPROVAL"
	AmendmentApproved AmendmentStatus = "APPROVED"
	AmendmentRejected AmendmentStatus = "REJECTED"
)

// Amendment is a controlled change applied on top of the latest frozen
// configuration snapshot.
type Amendment struct {
	ID               string             `json:"id"`
	ProjectID        string             `json:"project_id"`
	Number           int                `json:"number"`
	Type             AmendmentType      `json:"type"`
	Reason           string             `json:"reason"`
	Delta            ConfigurationDelta `json:"delta"`
	Status           AmendmentStatus    `json:"status"`
	BeforeSnapshotID string             `json:"before_snapshot_id"`
	AfterSnapshotID  string             `json:"after_snapshot_id,omitempty"`
	PriceImpact      Money              `json:"price_impact"`
	BOMSnapshotID    string             `json:"bom_snapshot_id,omitempty"`
	LibraryPinsID    string             `json:"library_pins_id,omitempty"`
	RequestedBy      string             `json:"requested_by"`
	RequestedAt      time.Time          `json:"requested_at"`
	ApprovedBy       string             `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time         `json:"approved_at,omitempty"`
	RejectedBy       string             `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time         `json:"rejected_at,omitempty"`
	RejectionReason  string             `json:"rejection_reason,omitempty"`
}

// Label renders the amendment number as "AMENDMENT #n".
func (a Amendment) Label() string { return "AMENDMENT #" + strconv.Itoa(a.Number) }

// AmendmentChainProblem describes the first break in the project's amendment
// chain, or returns "". Each applied amendment's after snapshot directly
// follows its before snapshot, and the only snapshots allowed after the first
// applied amendment that are not amendment results are emergency unlock
// edits, which link one amendment's after snapshot to the next one's before.
func (p Project) AmendmentChainProblem() string {
	index := make(map[string]int, len(p.ConfigurationSnapshots))
	for i, snap := range p.ConfigurationSnapshots {
		index[snap.ID] = i
	}
	var applied []Amendment
	for _, a := range p.Amendments {
		if a.Status == AmendmentApproved && a.AfterSnapshotID != "" {
			applied = append(applied, a)
		}
	}
	sort.SliceStable(applied, func(i, j int) bool {
		return index[applied[i].AfterSnapshotID] < index[applied[j].AfterSnapshotID]
	})

	prevAfter := -1
	linksOnly := func(from, to int, next string) string {
		for i := from; i <= to; i++ {
			if snap := p.ConfigurationSnapshots[i]; !snap.Emergency() {
				return fmt.Sprintf("snapshot %s (%s) breaks the amendment chain before %s", snap.Label(), snap.Reason, next)
			}
		}
		return ""
	}
	for _, a := range applied {
		before, okBefore := index[a.BeforeSnapshotID]
		after, okAfter := index[a.AfterSnapshotID]
		if !okBefore || !okAfter {
			return fmt.Sprintf("%s references a snapshot the project does not hold", a.Label())
		}
		if before != after-1 {
			return fmt.Sprintf("%s after snapshot does not directly follow its before snapshot", a.Label())
		}
		if prevAfter >= 0 {
			if msg := linksOnly(prevAfter+1, before, a.Label()); msg != "" {
				return msg
			}
		}
		prevAfter = after
	}
	if prevAfter >= 0 {
		return linksOnly(prevAfter+1, len(p.ConfigurationSnapshots)-1, "the latest snapshot")
	}
	return ""
}
