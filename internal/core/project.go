package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"navisol/pkg/domain"
)

// CreateProjectRequest describes a new project.
type CreateProjectRequest struct {
	Title         string
	Type          domain.ProjectType
	ClientID      string
	Library       domain.LibraryRefs
	Configuration Configuration
	Checklist     []domain.ChecklistItem
}

// CreateProject creates a DRAFT project with the next sequential number.
func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest, actor Actor) (Project, error) {
	const op = "create_project"
	var out Project
	err := s.mutate(ctx, op, actor, domain.EntityProject, "", false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermCreateProject); err != nil {
			return err
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return domain.NewError(domain.KindValidation, op, "title is required").WithField("title")
		}
		typ := req.Type
		if typ == "" {
			typ = domain.ProjectTypeNewBuild
		}
		if !typ.Valid() {
			return domain.NewError(domain.KindValidation, op, "unknown project type %q", req.Type).WithField("type")
		}
		if req.ClientID != "" {
			c, ok, err := load[Client](t.tx, domain.NamespaceClients, req.ClientID)
			if err != nil {
				return err
			}
			if !ok || c.ArchivedAt != nil {
				return domain.NewError(domain.KindValidation, op, "client %q does not exist", req.ClientID).WithField("client_id")
			}
		}
		if err := t.validateLibraryRefs(op, req.Library); err != nil {
			return err
		}
		if err := validateConfiguration(op, req.Configuration); err != nil {
			return err
		}
		checklist, err := normalizeChecklist(op, req.Checklist)
		if err != nil {
			return err
		}
		number, err := t.nextSequence(sequenceProject)
		if err != nil {
			return err
		}
		out = Project{
			Base:          domain.Base{ID: s.newID(), CreatedAt: t.now},
			Number:        int(number),
			Title:         title,
			Type:          typ,
			ClientID:      req.ClientID,
			Status:        domain.StatusDraft,
			Library:       req.Library,
			Configuration: req.Configuration.Clone(),
			Checklist:     checklist,
		}
		if err := t.saveProject(&out); err != nil {
			return err
		}
		_, err = t.record(domain.AuditCreate, domain.EntityProject, out.ID,
			fmt.Sprintf("created project %d %q", out.Number, out.Title), nil, out, actor)
		return err
	})
	return out, err
}

func (t *txn) validateLibraryRefs(op string, refs domain.LibraryRefs) error {
	check := func(field, id string, kind domain.LibraryKind) error {
		if id == "" {
			return nil
		}
		e, ok, err := load[LibraryEntity](t.tx, domain.NamespaceLibraryEntities, id)
		if err != nil {
			return err
		}
		if !ok || e.Kind != kind {
			return domain.NewError(domain.KindValidation, op, "%s %q is not a %s", field, id, kind).WithField(field)
		}
		return nil
	}
	if err := check("library.boat_model_id", refs.BoatModelID, domain.LibraryBoatModel); err != nil {
		return err
	}
	if err := check("library.catalog_id", refs.CatalogID, domain.LibraryCatalog); err != nil {
		return err
	}
	for _, dt := range sortedTemplateTypes(refs.Templates) {
		if err := check("library.templates."+string(dt), refs.Templates[dt], domain.LibraryDocumentTemplate); err != nil {
			return err
		}
	}
	return nil
}

func validateConfiguration(op string, cfg Configuration) error {
	seen := map[string]bool{}
	for i, item := range cfg.Items {
		field := fmt.Sprintf("configuration.items[%d]", i)
		if strings.TrimSpace(item.Code) == "" {
			return domain.NewError(domain.KindValidation, op, "item code is required").WithField(field + ".code")
		}
		if seen[item.Code] {
			return domain.NewError(domain.KindValidation, op, "duplicate item code %q", item.Code).WithField(field + ".code")
		}
		seen[item.Code] = true
		if item.Quantity < 0 {
			return domain.NewError(domain.KindValidation, op, "quantity must not be negative").WithField(field + ".quantity")
		}
		if item.UnitPrice < 0 {
			return domain.NewError(domain.KindValidation, op, "unit price must not be negative").WithField(field + ".unit_price")
		}
	}
	return nil
}

func normalizeChecklist(op string, items []domain.ChecklistItem) ([]domain.ChecklistItem, error) {
	seen := map[string]bool{}
	out := make([]domain.ChecklistItem, 0, len(items))
	for i, item := range items {
		key := strings.TrimSpace(item.Key)
		if key == "" || seen[key] {
			return nil, domain.NewError(domain.KindValidation, op, "checklist keys must be unique and non-empty").
				WithField(fmt.Sprintf("checklist[%d].key", i))
		}
		seen[key] = true
		out = append(out, domain.ChecklistItem{Key: key, Label: item.Label})
	}
	return out, nil
}

// UpdateConfiguration replaces the live configuration. Frozen projects need an
// outstanding emergency unlock, which the edit consumes; the edited
// configuration is then frozen as an EMERGENCY_UNLOCK snapshot so later
// amendments build on it.
func (s *Service) UpdateConfiguration(ctx context.Context, projectID string, cfg Configuration, expectedVersion int64, actor Actor) (Project, error) {
	const op = "update_configuration"
	var out Project
	err := s.mutate(ctx, op, actor, domain.EntityProject, projectID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermEditProject); err != nil {
			return err
		}
		p, err := t.writableProject(op, projectID, expectedVersion)
		if err != nil {
			return err
		}
		if err := validateConfiguration(op, cfg); err != nil {
			return err
		}
		var grant *domain.UnlockGrant
		if p.Frozen() {
			if grant, err = consumeUnlock(op, &p, "frozen configuration"); err != nil {
				return err
			}
		}
		before := p.Configuration
		p.Configuration = cfg.Clone()
		if grant != nil {
			if err := t.freezeEmergencyEdit(ctx, &p, *grant, actor); err != nil {
				return err
			}
		}
		if err := t.saveProject(&p); err != nil {
			return err
		}
		out = p
		_, err = t.record(domain.AuditUpdate, domain.EntityProject, p.ID,
			editDescription("updated configuration", grant), before, p.Configuration, actor)
		return err
	})
	return out, err
}

func editDescription(what string, grant *domain.UnlockGrant) string {
	if grant == nil {
		return what
	}
	return fmt.Sprintf("%s under emergency unlock %s (audit %s)", what, grant.ID, grant.AuditEntryID)
}

// QuoteRequest describes a new quote version. Nil Lines copies the latest
// quote's lines, or derives them from the configuration for the first quote.
type QuoteRequest struct {
	ProjectID       string
	Lines           []QuoteLine
	Notes           string
	ExpectedVersion int64
}

// CreateQuoteVersion adds the next quote version, superseding earlier drafts.
// After the offer was sent the new version is issued immediately as a revised
// offer and supersedes the sent quote.
func (s *Service) CreateQuoteVersion(ctx context.Context, req QuoteRequest, actor Actor) (Quote, error) {
	const op = "create_quote_version"
	var out Quote
	err := s.mutate(ctx, op, actor, domain.EntityProject, req.ProjectID, false, func(t *txn) error {
		if err := validateActor(op, actor); err != nil {
			return err
		}
		p, err := t.writableProject(op, req.ProjectID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		perm := domain.PermQuoteProject
		if p.Status == domain.StatusOfferSent {
			perm = domain.PermSendOffer
		}
		if err := s.authorize(op, actor, perm); err != nil {
			return err
		}
		for _, q := range p.Quotes {
			if q.Status == domain.QuoteAccepted {
				return domain.NewError(domain.KindInvalidState, op, "quote %s was accepted", q.Label()).
					WithField("quotes").WithEntity(domain.EntityQuote, q.ID)
			}
		}
		if p.Status.AtLeast(domain.StatusOrderConfirmed) {
			return domain.NewError(domain.KindInvalidState, op, "quotes are closed in status %s", p.Status).
				WithField("status").WithEntity(domain.EntityProject, p.ID)
		}
		lines := req.Lines
		if lines == nil {
			lines = defaultQuoteLines(p)
		}
		if err := validateQuoteLines(op, lines); err != nil {
			return err
		}
		q := Quote{
			ID:        s.newID(),
			Version:   len(p.Quotes) + 1,
			Status:    domain.QuoteDraft,
			Lines:     append([]QuoteLine(nil), lines...),
			Total:     domain.SumLines(lines),
			Notes:     req.Notes,
			CreatedAt: t.now,
			CreatedBy: actor.ID,
		}
		for i := range p.Quotes {
			if p.Quotes[i].Status == domain.QuoteDraft {
				p.Quotes[i].Status = domain.QuoteSuperseded
			}
		}
		if p.Status == domain.StatusOfferSent {
			for i := range p.Quotes {
				if p.Quotes[i].Status == domain.QuoteSent {
					p.Quotes[i].Status = domain.QuoteSuperseded
				}
			}
			now := t.now
			q.Status = domain.QuoteSent
			q.SentAt = &now
			if q.Document, err = t.storeOffer(ctx, p, q, actor); err != nil {
				return err
			}
		}
		p.Quotes = append(p.Quotes, q)
		if err := t.saveProject(&p); err != nil {
			return err
		}
		out = q
		_, err = t.record(domain.AuditCreate, domain.EntityQuote, q.ID,
			fmt.Sprintf("created quote %s for project %d", q.Label(), p.Number), nil, q, actor)
		return err
	})
	return out, err
}

func defaultQuoteLines(p Project) []QuoteLine {
	if idx := p.LatestQuoteIndex(); idx >= 0 {
		return append([]QuoteLine(nil), p.Quotes[idx].Lines...)
	}
	lines := make([]QuoteLine, 0, len(p.Configuration.Items)+1)
	for _, item := range p.Configuration.Items {
		lines = append(lines, QuoteLine{
			ConfigItemCode: item.Code,
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
		})
	}
	if adj := p.Configuration.PriceAdjustment; adj != 0 {
		lines = append(lines, QuoteLine{Description: "Price adjustment", Quantity: 1, UnitPrice: adj})
	}
	return lines
}

func validateQuoteLines(op string, lines []QuoteLine) error {
	for i, l := range lines {
		if strings.TrimSpace(l.Description) == "" && l.ConfigItemCode == "" {
			return domain.NewError(domain.KindValidation, op, "line needs a description").
				WithField(fmt.Sprintf("lines[%d].description", i))
		}
		if l.Quantity <= 0 {
			return domain.NewError(domain.KindValidation, op, "quantity must be positive").
				WithField(fmt.Sprintf("lines[%d].quantity", i))
		}
	}
	return nil
}

// UpdateQuoteLines replaces a DRAFT quote's lines. SENT or ACCEPTED quotes are
// locked unless an emergency unlock is outstanding.
func (s *Service) UpdateQuoteLines(ctx context.Context, projectID, quoteID string, lines []QuoteLine, expectedVersion int64, actor Actor) (Quote, error) {
	const op = "update_quote_lines"
	var out Quote
	err := s.mutate(ctx, op, actor, domain.EntityQuote, quoteID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermQuoteProject); err != nil {
			return err
		}
		p, err := t.writableProject(op, projectID, expectedVersion)
		if err != nil {
			return err
		}
		idx := p.FindQuote(quoteID)
		if idx < 0 {
			return notFound(op, domain.EntityQuote, quoteID)
		}
		if err := validateQuoteLines(op, lines); err != nil {
			return err
		}
		q := &p.Quotes[idx]
		var grant *domain.UnlockGrant
		switch {
		case q.Editable():
		case q.Status.Active():
			if grant, err = consumeUnlock(op, &p, "quote "+q.Label()); err != nil {
				return err
			}
		default:
			return domain.NewError(domain.KindInvalidState, op, "quote %s is %s", q.Label(), q.Status).
				WithField("status").WithEntity(domain.EntityQuote, q.ID)
		}
		before := *q
		q.Lines = append([]QuoteLine(nil), lines...)
		q.Total = domain.SumLines(lines)
		out = *q
		if err := t.saveProject(&p); err != nil {
			return err
		}
		_, err = t.record(domain.AuditUpdate, domain.EntityQuote, q.ID,
			editDescription("updated quote "+out.Label(), grant), before, out, actor)
		return err
	})
	return out, err
}

// RejectQuote marks a DRAFT or SENT quote as rejected.
func (s *Service) RejectQuote(ctx context.Context, projectID, quoteID string, actor Actor) (Quote, error) {
	const op = "reject_quote"
	var out Quote
	err := s.mutate(ctx, op, actor, domain.EntityQuote, quoteID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermQuoteProject); err != nil {
			return err
		}
		p, err := t.writableProject(op, projectID, 0)
		if err != nil {
			return err
		}
		idx := p.FindQuote(quoteID)
		if idx < 0 {
			return notFound(op, domain.EntityQuote, quoteID)
		}
		q := &p.Quotes[idx]
		if q.Status != domain.QuoteDraft && q.Status != domain.QuoteSent {
			return domain.NewError(domain.KindInvalidState, op, "quote %s is %s", q.Label(), q.Status).
				WithField("status").WithEntity(domain.EntityQuote, q.ID)
		}
		from := q.Status
		q.Status = domain.QuoteRejected
		out = *q
		if err := t.saveProject(&p); err != nil {
			return err
		}
		_, err = t.record(domain.AuditUpdate, domain.EntityQuote, q.ID, "rejected quote "+out.Label(),
			map[string]any{"status": from}, map[string]any{"status": out.Status}, actor)
		return err
	})
	return out, err
}

// DocumentRequest adds a compliance document to a project. An empty
// TemplateVersionID uses the pinned template for the document type.
type DocumentRequest struct {
	ProjectID         string
	Type              domain.DocumentType
	Title             string
	TemplateVersionID string
}

// AddComplianceDocument adds a DRAFT compliance document.
func (s *Service) AddComplianceDocument(ctx context.Context, req DocumentRequest, actor Actor) (domain.ComplianceDocument, error) {
	const op = "add_compliance_document"
	var out domain.ComplianceDocument
	err := s.mutate(ctx, op, actor, domain.EntityProject, req.ProjectID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermEditProject); err != nil {
			return err
		}
		p, err := t.writableProject(op, req.ProjectID, 0)
		if err != nil {
			return err
		}
		if p.Status.AtLeast(domain.StatusDelivered) {
			return domain.NewError(domain.KindInvalidState, op, "project %d is already %s", p.Number, p.Status).
				WithField("status").WithEntity(domain.EntityProject, p.ID)
		}
		if req.Type == "" {
			return domain.NewError(domain.KindValidation, op, "document type is required").WithField("type")
		}
		templateID := req.TemplateVersionID
		if templateID == "" && p.LibraryPins != nil {
			templateID = p.LibraryPins.TemplateVersionIDs[req.Type]
		}
		if templateID != "" {
			if _, err := t.libraryVersion(op, templateID); err != nil {
				return err
			}
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = string(req.Type)
		}
		out = domain.ComplianceDocument{
			ID:                s.newID(),
			Type:              req.Type,
			Title:             title,
			TemplateVersionID: templateID,
			Status:            domain.DocumentStatusDraft,
			CreatedAt:         t.now,
		}
		p.Documents = append(p.Documents, out)
		if err := t.saveProject(&p); err != nil {
			return err
		}
		_, err = t.record(domain.AuditCreate, domain.EntityProject, p.ID,
			fmt.Sprintf("added %s document %q", out.Type, out.Title), nil, out, actor)
		return err
	})
	return out, err
}

// FinalizeDocument marks a compliance document FINAL and stores its rendering.
func (s *Service) FinalizeDocument(ctx context.Context, projectID, documentID string, actor Actor) (domain.ComplianceDocument, error) {
	const op = "finalize_document"
	var out domain.ComplianceDocument
	err := s.mutate(ctx, op, actor, domain.EntityProject, projectID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermEditProject); err != nil {
			return err
		}
		p, err := t.writableProject(op, projectID, 0)
		if err != nil {
			return err
		}
		idx := -1
		for i, d := range p.Documents {
			if d.ID == documentID {
				idx = i
			}
		}
		if idx < 0 {
			return domain.NewError(domain.KindNotFound, op, "document %q not found", documentID).WithField("document_id")
		}
		doc := &p.Documents[idx]
		if doc.Status != domain.DocumentStatusDraft {
			return domain.NewError(domain.KindInvalidState, op, "document %q is already %s", doc.Title, doc.Status).WithField("status")
		}
		now := t.now
		doc.Status = domain.DocumentStatusFinal
		doc.FinalizedAt = &now
		doc.FinalizedBy = actor.ID
		key := fmt.Sprintf("projects/%s/documents/%s-%s.json", p.ID, strings.ToLower(string(doc.Type)), doc.ID)
		rendered := map[string]any{
			"project_id":     p.ID,
			"project_number": p.Number,
			"document":       *doc,
			"library_pins":   p.LibraryPins,
			"configuration":  latestConfiguration(p),
		}
		if doc.Document, err = t.putDocument(ctx, key, rendered, map[string]string{"project": p.ID, "type": string(doc.Type)}); err != nil {
			return err
		}
		out = *doc
		if err := t.saveProject(&p); err != nil {
			return err
		}
		_, err = t.record(domain.AuditUpdate, domain.EntityProject, p.ID,
			fmt.Sprintf("finalized %s document %q", out.Type, out.Title),
			map[string]any{"status": domain.DocumentStatusDraft}, out, actor)
		return err
	})
	return out, err
}

func latestConfiguration(p Project) Configuration {
	if snap, ok := p.LatestSnapshot(); ok {
		return snap.Configuration
	}
	return p.Configuration
}

// SetChecklistItem marks a delivery checklist item done or open, adding it
// when the key is new.
func (s *Service) SetChecklistItem(ctx context.Context, projectID, key, label string, done bool, actor Actor) (domain.ChecklistItem, error) {
	const op = "set_checklist_item"
	var out domain.ChecklistItem
	err := s.mutate(ctx, op, actor, domain.EntityProject, projectID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermAddTaskOrTime); err != nil {
			return err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return domain.NewError(domain.KindValidation, op, "checklist key is required").WithField("key")
		}
		p, err := t.writableProject(op, projectID, 0)
		if err != nil {
			return err
		}
		idx := -1
		for i, item := range p.Checklist {
			if item.Key == key {
				idx = i
			}
		}
		if idx < 0 {
			p.Checklist = append(p.Checklist, domain.ChecklistItem{Key: key, Label: label})
			idx = len(p.Checklist) - 1
		}
		item := &p.Checklist[idx]
		before := *item
		if label != "" {
			item.Label = label
		}
		item.Done = done
		item.DoneBy, item.DoneAt = "", nil
		if done {
			now := t.now
			item.DoneBy = actor.ID
			item.DoneAt = &now
		}
		out = *item
		if err := t.saveProject(&p); err != nil {
			return err
		}
		_, err = t.record(domain.AuditUpdate, domain.EntityProject, p.ID,
			fmt.Sprintf("checklist %q done=%t", key, done), before, out, actor)
		return err
	})
	return out, err
}

// ArchiveProject soft-deletes a project. Archived projects reject every mutation.
func (s *Service) ArchiveProject(ctx context.Context, projectID, reason string, actor Actor) (Project, error) {
	const op = "archive_project"
	var out Project
	err := s.mutate(ctx, op, actor, domain.EntityProject, projectID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermArchiveProject); err != nil {
			return err
		}
		p, err := t.writableProject(op, projectID, 0)
		if err != nil {
			return err
		}
		now := t.now
		p.ArchivedAt = &now
		p.ArchiveReason = strings.TrimSpace(reason)
		if err := t.saveProject(&p); err != nil {
			return err
		}
		out = p
		_, err = t.record(domain.AuditArchive, domain.EntityProject, p.ID,
			fmt.Sprintf("archived project %d", p.Number), nil, map[string]any{"reason": p.ArchiveReason}, actor)
		return err
	})
	return out, err
}

// GetProject returns a project by ID.
func (s *Service) GetProject(ctx context.Context, id string) (Project, error) {
	var out Project
	err := s.store.View(ctx, func(view TransactionView) error {
		p, ok, err := load[Project](view, domain.NamespaceProjects, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("get_project", domain.EntityProject, id)
		}
		out = p
		return nil
	})
	return out, err
}

// ProjectQuery filters ListProjects. Zero values match everything except
// archived projects.
type ProjectQuery struct {
	Status          ProjectStatus
	ClientID        string
	IncludeArchived bool
}

// ListProjects returns matching projects ordered by number.
func (s *Service) ListProjects(ctx context.Context, q ProjectQuery) ([]Project, error) {
	var out []Project
	err := s.store.View(ctx, func(view TransactionView) error {
		all, err := loadAll[Project](view, domain.NamespaceProjects, nil)
		if err != nil {
			return err
		}
		for _, p := range all {
			if (q.Status != "" && p.Status != q.Status) ||
				(q.ClientID != "" && p.ClientID != q.ClientID) ||
				(!q.IncludeArchived && p.Archived()) {
				continue
			}
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
		return nil
	})
	return out, err
}

// HistoryEntry is one link of a project's snapshot chain.
type HistoryEntry struct {
	Snapshot  ConfigurationSnapshot `json:"snapshot"`
	Pins      *LibraryPins          `json:"pins,omitempty"`
	BOM       *BOMSnapshot          `json:"bom,omitempty"`
	Amendment *Amendment            `json:"amendment,omitempty"`
}

// History walks the configuration snapshot chain from the order confirmation
// to the latest amendment. Emergency edits show up as entries without an
// amendment whose snapshot carries the unlock audit reference.
func (s *Service) History(ctx context.Context, projectID string) ([]HistoryEntry, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byAfter := map[string]Amendment{}
	for _, a := range p.Amendments {
		if a.AfterSnapshotID != "" {
			byAfter[a.AfterSnapshotID] = a
		}
	}
	out := make([]HistoryEntry, 0, len(p.ConfigurationSnapshots))
	for _, snap := range p.ConfigurationSnapshots {
		entry := HistoryEntry{Snapshot: snap}
		if pins, ok := p.FindPins(snap.PinsID); ok {
			entry.Pins = &pins
		}
		for i := len(p.BOMSnapshots) - 1; i >= 0; i-- {
			if p.BOMSnapshots[i].ConfigurationSnapshotID == snap.ID {
				bom := p.BOMSnapshots[i]
				entry.BOM = &bom
				break
			}
		}
		if a, ok := byAfter[snap.ID]; ok {
			entry.Amendment = &a
		}
		out = append(out, entry)
	}
	return out, nil
}
