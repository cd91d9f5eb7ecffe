// Package domain defines the persistent entities, value types, error taxonomy
// and rule evaluation primitives shared by the navisol core and its
// persistence adapters.
package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// EntityType identifies the type of record referenced by audit entries and rule violations.
type EntityType string

// Supported entity type identifiers.
const (
	// EntityProject identifies a project aggregate.
	EntityProject EntityType = "project"
	// EntityClient identifies a client record.
	EntityClient EntityType = "client"
	// EntityLibraryEntity identifies a versioned library entity (boat model, catalog, template, ...).
	EntityLibraryEntity EntityType = "library_entity"
	// EntityLibraryVersion identifies a single version of a library entity.
	EntityLibraryVersion EntityType = "library_version"
	// EntityAmendment identifies an amendment recorded on a project.
	EntityAmendment EntityType = "amendment"
	// EntityQuote identifies a quote version recorded on a project.
	EntityQuote EntityType = "quote"
	// EntityAuditEntry identifies an audit log entry.
	EntityAuditEntry EntityType = "audit_entry"
)

// Namespace names a persistence bucket. Every persisted record lives in exactly one namespace.
type Namespace string

// Namespaces used by the core.
const (
	NamespaceProjects        Namespace = "projects"
	NamespaceClients         Namespace = "clients"
	NamespaceLibraryEntities Namespace = "library_entities"
	NamespaceLibraryVersions Namespace = "library_versions"
	NamespaceAudit           Namespace = "audit"
	NamespaceSequences       Namespace = "sequences"
)

// Namespaces lists every namespace in a stable order. Persistence adapters use
// it to create buckets and to hydrate state.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceProjects,
		NamespaceClients,
		NamespaceLibraryEntities,
		NamespaceLibraryVersions,
		NamespaceAudit,
		NamespaceSequences,
	}
}

// Money is an amount in euro cents.
type Money int64

// LineTotal multiplies a unit price by a (possibly fractional) quantity, rounding to the cent.
func LineTotal(quantity float64, unit Money) Money {
	return Money(math.Round(quantity * float64(unit)))
}

// String renders the amount as "EUR 1234.56".
func (m Money) String() string {
	sign := ""
	cents := int64(m)
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("EUR %s%d.%02d", sign, cents/100, cents%100)
}

// Base contains common fields for persisted records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectType classifies the work a project covers.
type ProjectType string

// Project types.
const (
	ProjectTypeNewBuild    ProjectType = "NEW_BUILD"
	ProjectTypeRefit       ProjectType = "REFIT"
	ProjectTypeMaintenance ProjectType = "MAINTENANCE"
)

// Valid reports whether t is a known project type.
func (t ProjectType) Valid() bool {
	switch t {
	case ProjectTypeNewBuild, ProjectTypeRefit, ProjectTypeMaintenance:
		return true
	}
	return false
}

// Client is a customer that commissions projects.
type Client struct {
	Base
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	Country    string     `json:"country,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Project is the aggregate root of the workflow engine.
type Project struct {
	Base
	Number                 int                     `json:"number"`
	Title                  string                  `json:"title"`
	Type                   ProjectType             `json:"type"`
	ClientID               string                  `json:"client_id,omitempty"`
	Status                 ProjectStatus           `json:"status"`
	Library                LibraryRefs             `json:"library"`
	Configuration          Configuration           `json:"configuration"`
	ConfigurationSnapshots []ConfigurationSnapshot `json:"configuration_snapshots"`
	Quotes                 []Quote                 `json:"quotes"`
	BOMSnapshots           []BOMSnapshot           `json:"bom_snapshots"`
	Amendments             []Amendment             `json:"amendments"`
	LibraryPins            *LibraryPins            `json:"library_pins,omitempty"`
	PinHistory             []LibraryPins           `json:"pin_history"`
	Documents              []ComplianceDocument    `json:"documents"`
	Checklist              []ChecklistItem         `json:"checklist"`
	EmergencyUnlock        *UnlockGrant            `json:"emergency_unlock,omitempty"`
	Version                int64                   `json:"version"`
	ArchivedAt             *time.Time              `json:"archived_at,omitempty"`
	ArchiveReason          string                  `json:"archive_reason,omitempty"`
}

// Archived reports whether the project has been archived.
func (p Project) Archived() bool { return p.ArchivedAt != nil }

// Frozen reports whether the configuration has been frozen by order confirmation.
func (p Project) Frozen() bool { return p.Status.AtLeast(StatusOrderConfirmed) }

// LatestSnapshot returns the most recent configuration snapshot.
func (p Project) LatestSnapshot() (ConfigurationSnapshot, bool) {
	if len(p.ConfigurationSnapshots) == 0 {
		return ConfigurationSnapshot{}, false
	}
	return p.ConfigurationSnapshots[len(p.ConfigurationSnapshots)-1], true
}

// FindSnapshot looks up a configuration snapshot by ID.
func (p Project) FindSnapshot(id string) (ConfigurationSnapshot, bool) {
	for _, s := range p.ConfigurationSnapshots {
		if s.ID == id {
			return s, true
		}
	}
	return ConfigurationSnapshot{}, false
}

// FindPins looks up a pin record by ID in the pin history.
func (p Project) FindPins(id string) (LibraryPins, bool) {
	for _, pins := range p.PinHistory {
		if pins.ID == id {
			return pins, true
		}
	}
	return LibraryPins{}, false
}

// ActiveQuoteIndex returns the index of the SENT or ACCEPTED quote, or -1.
func (p Project) ActiveQuoteIndex() int {
	for i, q := range p.Quotes {
		if q.Status.Active() {
			return i
		}
	}
	return -1
}

// LatestQuoteIndex returns the index of the highest quote version, or -1.
func (p Project) LatestQuoteIndex() int {
	idx, best := -1, 0
	for i, q := range p.Quotes {
		if q.Version > best {
			idx, best = i, q.Version
		}
	}
	return idx
}

// FindQuote returns the index of the quote with the supplied ID, or -1.
func (p Project) FindQuote(id string) int {
	for i, q := range p.Quotes {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// FindAmendment returns the index of the amendment with the supplied ID, or -1.
func (p Project) FindAmendment(id string) int {
	for i, a := range p.Amendments {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// LibraryRefs lists the library entities a project draws from.
type LibraryRefs struct {
	BoatModelID string                  `json:"boat_model_id,omitempty"`
	CatalogID   string                  `json:"catalog_id,omitempty"`
	Templates   map[DocumentType]string `json:"templates,omitempty"`
}

// EntityIDs returns every referenced library entity ID in a stable order.
func (r LibraryRefs) EntityIDs() []string {
	var ids []string
	if r.BoatModelID != "" {
		ids = append(ids, r.BoatModelID)
	}
	if r.CatalogID != "" {
		ids = append(ids, r.CatalogID)
	}
	for _, dt := range sortedDocumentTypes(r.Templates) {
		ids = append(ids, r.Templates[dt])
	}
	return ids
}

// Empty reports whether no library entity is referenced.
func (r LibraryRefs) Empty() bool {
	return r.BoatModelID == "" && r.CatalogID == "" && len(r.Templates) == 0
}

// ConfigItem is one line of scope or equipment in a configuration.
type ConfigItem struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	ArticleID   string  `json:"article_id,omitempty"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
	UnitPrice   Money   `json:"unit_price"`
	BOMRelevant bool    `json:"bom_relevant"`
}

// Total returns the extended price of the item.
func (i ConfigItem) Total() Money { return LineTotal(i.Quantity, i.UnitPrice) }

// Configuration is the mutable scope and equipment selection of a project.
type Configuration struct {
	Items             []ConfigItem      `json:"items"`
	Scope             map[string]string `json:"scope,omitempty"`
	VersionSelections map[string]string `json:"version_selections,omitempty"`
	PriceAdjustment   Money             `json:"price_adjustment,omitempty"`
}

// Clone returns a deep copy of the configuration.
func (c Configuration) Clone() Configuration {
	cp := Configuration{PriceAdjustment: c.PriceAdjustment}
	if c.Items != nil {
		cp.Items = append([]ConfigItem(nil), c.Items...)
	}
	if c.Scope != nil {
		cp.Scope = make(map[string]string, len(c.Scope))
		for k, v := range c.Scope {
			cp.Scope[k] = v
		}
	}
	if c.VersionSelections != nil {
		cp.VersionSelections = make(map[string]string, len(c.VersionSelections))
		for k, v := range c.VersionSelections {
			cp.VersionSelections[k] = v
		}
	}
	return cp
}

// Total sums the item totals plus any price adjustment.
func (c Configuration) Total() Money {
	var total Money
	for _, item := range c.Items {
		total += item.Total()
	}
	return total + c.PriceAdjustment
}

// FindItem returns the index of the item with the supplied code, or -1.
func (c Configuration) FindItem(code string) int {
	for i, item := range c.Items {
		if item.Code == code {
			return i
		}
	}
	return -1
}

// ConfigurationSnapshot is an immutable frozen copy of a configuration.
type ConfigurationSnapshot struct {
	ID            string        `json:"id"`
	Sequence      int           `json:"sequence"`
	Reason        string        `json:"reason"`
	FrozenAt      time.Time     `json:"frozen_at"`
	FrozenBy      string        `json:"frozen_by"`
	PinsID        string        `json:"pins_id,omitempty"`
	Configuration Configuration `json:"configuration"`
	// Set on snapshots written by an edit under an emergency unlock grant.
	UnlockGrantID string `json:"unlock_grant_id,omitempty"`
	UnlockAuditID string `json:"unlock_audit_id,omitempty"`
}

// Label renders the snapshot sequence as "#n".
func (s ConfigurationSnapshot) Label() string { return "#" + strconv.Itoa(s.Sequence) }

// Emergency reports whether the snapshot records an emergency unlock edit.
func (s ConfigurationSnapshot) Emergency() bool { return s.UnlockGrantID != "" }

// QuoteStatus enumerates quote lifecycle states.
type QuoteStatus string

// Quote statuses.
const (
	QuoteDraft      QuoteStatus = "DRAFT"
	QuoteSent       QuoteStatus = "SENT"
	QuoteAccepted   QuoteStatus = "ACCEPTED"
	QuoteRejected   QuoteStatus = "REJECTED"
	QuoteSuperseded QuoteStatus = "SUPERSEDED"
)

// Active reports whether the status marks the project's active quote.
func (s QuoteStatus) Active() bool { return s == QuoteSent || s == QuoteAccepted }

// QuoteLine is a priced line on a quote.
type QuoteLine struct {
	ConfigItemCode string  `json:"config_item_code,omitempty"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPrice      Money   `json:"unit_price"`
}

// Total returns the extended price of the line.
func (l QuoteLine) Total() Money { return LineTotal(l.Quantity, l.UnitPrice) }

// Quote is one version of the commercial offer for a project.
type Quote struct {
	ID         string       `json:"id"`
	Version    int          `json:"version"`
	Status     QuoteStatus  `json:"status"`
	Lines      []QuoteLine  `json:"lines"`
	Total      Money        `json:"total"`
	Notes      string       `json:"notes,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	CreatedBy  string       `json:"created_by"`
	SentAt     *time.Time   `json:"sent_at,omitempty"`
	AcceptedAt *time.Time   `json:"accepted_at,omitempty"`
	Document   *DocumentRef `json:"document,omitempty"`
}

// Label renders the quote version as "vN".
func (q Quote) Label() string { return "v" + strconv.Itoa(q.Version) }

// Editable reports whether the quote lines may still be edited directly.
func (q Quote) Editable() bool { return q.Status == QuoteDraft }

// SumLines recomputes the quote total from its lines.
func SumLines(lines []QuoteLine) Money {
	var total Money
	for _, l := range lines {
		total += l.Total()
	}
	return total
}

// DocumentRef points at a rendered document stored in the blob store.
type DocumentRef struct {
	Key         string    `json:"key"`
	SHA256      string    `json:"sha256"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	StoredAt    time.Time `json:"stored_at"`
}

// BOMLine is one aggregated material line of a bill of materials.
type BOMLine struct {
	Code         string  `json:"code"`
	Description  string  `json:"description"`
	ArticleID    string  `json:"article_id,omitempty"`
	Category     string  `json:"category,omitempty"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	UnitCost     Money   `json:"unit_cost"`
	ExtendedCost Money   `json:"extended_cost"`
}

// BOMSnapshot is a bill-of-materials baseline derived from a configuration snapshot.
type BOMSnapshot struct {
	ID                      string    `json:"id"`
	Sequence                int       `json:"sequence"`
	ConfigurationSnapshotID string    `json:"configuration_snapshot_id"`
	Lines                   []BOMLine `json:"lines"`
	TotalCost               Money     `json:"total_cost"`
	GeneratedAt             time.Time `json:"generated_at"`
}

// LibraryPins records the exact library versions a project was built against.
type LibraryPins struct {
	ID                 string                  `json:"id"`
	BoatModelVersionID string                  `json:"boat_model_version_id,omitempty"`
	CatalogVersionID   string                  `json:"catalog_version_id,omitempty"`
	TemplateVersionIDs map[DocumentType]string `json:"template_version_ids,omitempty"`
	Versions           map[string]string       `json:"versions"`
	PinnedAt           time.Time               `json:"pinned_at"`
	PinnedBy           string                  `json:"pinned_by"`
}

// DocumentType classifies compliance and commercial documents.
type DocumentType string

// Document types produced for a project.
const (
	DocumentOffer         DocumentType = "OFFER"
	DocumentCEDeclaration DocumentType = "CE_DECLARATION"
	DocumentOwnerManual   DocumentType = "OWNER_MANUAL"
	DocumentTechnicalFile DocumentType = "TECHNICAL_FILE"
	DocumentDeliveryNote  DocumentType = "DELIVERY_NOTE"
)

// DocumentStatus tracks whether a project document is finalized.
type DocumentStatus string

// Document statuses.
const (
	DocumentStatusDraft DocumentStatus = "DRAFT"
	DocumentStatusFinal DocumentStatus = "FINAL"
)

// ComplianceDocument is a project-level document instantiated from a template version.
type ComplianceDocument struct {
	ID                string         `json:"id"`
	Type              DocumentType   `json:"type"`
	Title             string         `json:"title"`
	TemplateVersionID string         `json:"template_version_id,omitempty"`
	Status            DocumentStatus `json:"status"`
	Document          *DocumentRef   `json:"document,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	FinalizedAt       *time.Time     `json:"finalized_at,omitempty"`
	FinalizedBy       string         `json:"finalized_by,omitempty"`
}

// ChecklistItem is one entry of the delivery checklist.
type ChecklistItem struct {
	Key    string     `json:"key"`
	Label  string     `json:"label"`
	Done   bool       `json:"done"`
	DoneBy string     `json:"done_by,omitempty"`
	DoneAt *time.Time `json:"done_at,omitempty"`
}

// UnlockGrant is a one-shot permission to edit a frozen project outside the amendment flow.
type UnlockGrant struct {
	ID           string    `json:"id"`
	Reason       string    `json:"reason"`
	GrantedBy    string    `json:"granted_by"`
	GrantedAt    time.Time `json:"granted_at"`
	AuditEntryID string    `json:"audit_entry_id"`
}

// SequenceCounter persists a monotonic counter in the sequences namespace.
type SequenceCounter struct {
	ID    string `json:"id"`
	Value int64  `json:"value"`
}
