package core

import (
	"context"
	"fmt"
	"sort"

	"navisol/pkg/domain"
)

// TransitionRequest asks the workflow engine to move a project to Target.
// ExpectedVersion, when non-zero, must match the stored project version.
type TransitionRequest struct {
	ProjectID       string
	Target          ProjectStatus
	Actor           Actor
	ExpectedVersion int64
	Context         map[string]string
}

// Milestone step names reported by WorkflowError.
const (
	StepRequireDraftQuote     = "require_draft_quote"
	StepLockQuote             = "lock_quote"
	StepRenderOffer           = "render_offer"
	StepAcceptQuote           = "accept_quote"
	StepPinLibraryVersions    = "pin_library_versions"
	StepFreezeConfiguration   = "freeze_configuration"
	StepGenerateBOM           = "generate_bom"
	StepDeliveryPreconditions = "delivery_preconditions"
)

// Snapshot reasons besides amendment labels.
const (
	reasonOrderConfirmed  = "ORDER_CONFIRMED"
	reasonManual          = "MANUAL"
	reasonEmergencyUnlock = "EMERGENCY_UNLOCK"
)

type transitionAudit struct {
	Status  ProjectStatus     `json:"status"`
	Version int64             `json:"version"`
	Context map[string]string `json:"context,omitempty"`
}

// Transition advances a project one step along the workflow chain and applies
// the target's milestone effects in the same transaction. Milestone failures
// roll back every effect and are returned as *domain.WorkflowError.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (Project, error) {
	const op = "transition"
	var out Project
	err := s.mutate(ctx, op, req.Actor, domain.EntityProject, req.ProjectID, true, func(t *txn) error {
		perm, ok := domain.TransitionPermission(req.Target)
		if !ok {
			if err := validateActor(op, req.Actor); err != nil {
				return err
			}
			return domain.NewError(domain.KindInvalidTransition, op, "%q is not a reachable workflow state", req.Target).
				WithField("target").WithEntity(domain.EntityProject, req.ProjectID)
		}
		if err := s.authorize(op, req.Actor, perm); err != nil {
			return err
		}
		p, err := t.writableProject(op, req.ProjectID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		from := p.Status
		if next, ok := from.Next(); !ok || next != req.Target {
			return domain.NewError(domain.KindInvalidTransition, op, "cannot move from %s to %s", from, req.Target).
				WithField("target").WithEntity(domain.EntityProject, p.ID)
		}
		if err := t.applyMilestone(ctx, &p, req.Target, req.Actor); err != nil {
			return err
		}
		p.Status = req.Target
		if err := t.saveProject(&p); err != nil {
			return err
		}
		out = p
		_, err = t.record(domain.AuditStatusTransition, domain.EntityProject, p.ID,
			fmt.Sprintf("project %d moved %s -> %s", p.Number, from, req.Target),
			transitionAudit{Status: from, Version: p.Version - 1},
			transitionAudit{Status: p.Status, Version: p.Version, Context: req.Context}, req.Actor)
		return err
	})
	return out, err
}

func (t *txn) applyMilestone(ctx context.Context, p *Project, target ProjectStatus, actor Actor) error {
	from := p.Status
	fail := func(step string, err error) error {
		return &domain.WorkflowError{Step: step, From: from, To: target, Err: err}
	}
	const op = "transition"
	switch target {
	case domain.StatusQuoted:
		if latestDraftQuote(*p) < 0 {
			return fail(StepRequireDraftQuote, domain.NewError(domain.KindIncompleteMilestonePrecondition, op,
				"a draft quote is required before quoting").WithField("quotes").WithEntity(domain.EntityProject, p.ID))
		}
	case domain.StatusOfferSent:
		idx := latestDraftQuote(*p)
		if idx < 0 {
			return fail(StepLockQuote, domain.NewError(domain.KindIncompleteMilestonePrecondition, op,
				"no draft quote to send").WithField("quotes").WithEntity(domain.EntityProject, p.ID))
		}
		now := t.now
		for i := range p.Quotes {
			if p.Quotes[i].Status == domain.QuoteSent {
				p.Quotes[i].Status = domain.QuoteSuperseded
			}
		}
		q := &p.Quotes[idx]
		q.Status = domain.QuoteSent
		q.SentAt = &now
		q.Total = domain.SumLines(q.Lines)
		doc, err := t.storeOffer(ctx, *p, *q, actor)
		if err != nil {
			return fail(StepRenderOffer, err)
		}
		q.Document = doc
	case domain.StatusOrderConfirmed:
		idx := -1
		for i, q := range p.Quotes {
			if q.Status == domain.QuoteSent {
				idx = i
			}
		}
		if idx < 0 {
			return fail(StepAcceptQuote, domain.NewError(domain.KindIncompleteMilestonePrecondition, op,
				"no sent quote to accept").WithField("quotes").WithEntity(domain.EntityProject, p.ID))
		}
		now := t.now
		p.Quotes[idx].Status = domain.QuoteAccepted
		p.Quotes[idx].AcceptedAt = &now
		if p.LibraryPins != nil {
			return fail(StepPinLibraryVersions, pinsAlreadySet(op, *p))
		}
		pins, err := t.pinLibraryVersions(op, p.Library, p.Configuration, actor)
		if err != nil {
			return fail(StepPinLibraryVersions, err)
		}
		p.LibraryPins = &pins
		p.PinHistory = append(p.PinHistory, pins)
		snap := t.freezeConfiguration(p, p.Configuration, reasonOrderConfirmed, actor)
		attachPins(p, pins.ID)
		snap.PinsID = pins.ID
		if _, err := t.generateBOM(ctx, p, snap, &pins); err != nil {
			return fail(StepGenerateBOM, err)
		}
	case domain.StatusDelivered:
		if err := t.deliveryPreconditions(op, *p); err != nil {
			return fail(StepDeliveryPreconditions, err)
		}
	}
	return nil
}

// latestDraftQuote returns the index of the highest-versioned DRAFT quote, or -1.
func latestDraftQuote(p Project) int {
	idx, best := -1, 0
	for i, q := range p.Quotes {
		if q.Status == domain.QuoteDraft && q.Version > best {
			idx, best = i, q.Version
		}
	}
	return idx
}

func (t *txn) deliveryPreconditions(op string, p Project) error {
	precondition := func(field, format string, args ...any) error {
		return domain.NewError(domain.KindIncompleteMilestonePrecondition, op, format, args...).
			WithField(field).WithEntity(domain.EntityProject, p.ID)
	}
	for _, doc := range p.Documents {
		if doc.Status == domain.DocumentStatusDraft {
			return precondition("documents", "document %s (%s) is still DRAFT", doc.Title, doc.Type)
		}
	}
	if p.LibraryPins != nil {
		for _, dt := range sortedTemplateTypes(p.LibraryPins.TemplateVersionIDs) {
			versionID := p.LibraryPins.TemplateVersionIDs[dt]
			v, ok, err := load[LibraryVersion](t.tx, domain.NamespaceLibraryVersions, versionID)
			if err != nil {
				return err
			}
			if !ok || v.Status == domain.VersionDraft {
				return precondition("library_pins.template_version_ids", "pinned %s template version %q is not approved", dt, versionID)
			}
		}
	}
	for _, item := range p.Checklist {
		if !item.Done {
			return precondition("checklist", "checklist item %q is not done", item.Key)
		}
	}
	return nil
}

func sortedTemplateTypes(m map[domain.DocumentType]string) []domain.DocumentType {
	out := make([]domain.DocumentType, 0, len(m))
	for dt := range m {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
