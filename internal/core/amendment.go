package core

import (
	"context"
	"fmt"
	"strings"

	"navisol/pkg/domain"
)

// AmendmentRequest describes a post-freeze change to a project.
type AmendmentRequest struct {
	ProjectID                string
	Type                     domain.AmendmentType
	Reason                   string
	Delta                    ConfigurationDelta
	Actor                    Actor
	ExpectedBeforeSnapshotID string
	ExpectedVersion          int64
}

// CreateAmendment records an amendment against the latest configuration
// snapshot. Actors allowed to approve amendments have it applied immediately;
// others leave it PENDING_APPROVAL.
func (s *Service) CreateAmendment(ctx context.Context, req AmendmentRequest) (Amendment, error) {
	const op = "create_amendment"
	var out Amendment
	err := s.mutate(ctx, op, req.Actor, domain.EntityProject, req.ProjectID, true, func(t *txn) error {
		if err := s.authorize(op, req.Actor, domain.PermCreateAmendment); err != nil {
			return err
		}
		p, err := t.writableProject(op, req.ProjectID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		if !p.Status.Amendable() {
			return domain.NewError(domain.KindInvalidTransition, op, "amendments are not accepted in status %s", p.Status).
				WithField("status").WithEntity(domain.EntityProject, p.ID)
		}
		if !req.Type.Valid() {
			return domain.NewError(domain.KindValidation, op, "unknown amendment type %q", req.Type).WithField("type")
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			return domain.NewError(domain.KindValidation, op, "a reason is required").WithField("reason")
		}
		if err := req.Delta.Validate(); err != nil {
			return err
		}
		latest, ok := p.LatestSnapshot()
		if !ok {
			return domain.NewError(domain.KindInvalidState, op, "project has no frozen configuration").
				WithField("configuration_snapshots").WithEntity(domain.EntityProject, p.ID)
		}
		if req.ExpectedBeforeSnapshotID != "" && req.ExpectedBeforeSnapshotID != latest.ID {
			return chainError(op, p.ID, req.ExpectedBeforeSnapshotID, latest)
		}
		a := Amendment{
			ID:               s.newID(),
			ProjectID:        p.ID,
			Number:           len(p.Amendments) + 1,
			Type:             req.Type,
			Reason:           reason,
			Delta:            req.Delta,
			Status:           domain.AmendmentPending,
			BeforeSnapshotID: latest.ID,
			RequestedBy:      req.Actor.ID,
			RequestedAt:      t.now,
		}
		desc := fmt.Sprintf("%s requested: %s", a.Label(), reason)
		if s.authz.Can(req.Actor.Role, domain.PermApproveAmendment) {
			if err := t.applyAmendment(ctx, op, &p, &a, req.Actor); err != nil {
				return err
			}
			desc = fmt.Sprintf("%s applied: %s", a.Label(), reason)
		} else if _, err := a.Delta.Apply(latest.Configuration); err != nil {
			return err
		}
		p.Amendments = append(p.Amendments, a)
		if err := t.saveProject(&p); err != nil {
			return err
		}
		out = a
		_, err = t.record(domain.AuditAmendment, domain.EntityAmendment, a.ID, desc,
			map[string]any{"snapshot_id": a.BeforeSnapshotID}, a, req.Actor)
		return err
	})
	return out, err
}

// ApproveAmendment applies a pending amendment. Its before snapshot must still
// be the project's latest snapshot.
func (s *Service) ApproveAmendment(ctx context.Context, amendmentID string, actor Actor) (Amendment, error) {
	const op = "approve_amendment"
	var out Amendment
	err := s.mutate(ctx, op, actor, domain.EntityAmendment, amendmentID, true, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermApproveAmendment); err != nil {
			return err
		}
		p, idx, err := t.pendingAmendment(op, amendmentID)
		if err != nil {
			return err
		}
		a := p.Amendments[idx]
		if err := t.applyAmendment(ctx, op, &p, &a, actor); err != nil {
			return err
		}
		p.Amendments[idx] = a
		if err := t.saveProject(&p); err != nil {
			return err
		}
		out = a
		_, err = t.record(domain.AuditAmendment, domain.EntityAmendment, a.ID,
			fmt.Sprintf("%s approved", a.Label()),
			map[string]any{"status": domain.AmendmentPending}, a, actor)
		return err
	})
	return out, err
}

// RejectAmendment closes a pending amendment without applying it.
func (s *Service) RejectAmendment(ctx context.Context, amendmentID, reason string, actor Actor) (Amendment, error) {
	const op = "reject_amendment"
	var out Amendment
	err := s.mutate(ctx, op, actor, domain.EntityAmendment, amendmentID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermApproveAmendment); err != nil {
			return err
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return domain.NewError(domain.KindValidation, op, "a rejection reason is required").WithField("reason")
		}
		p, idx, err := t.pendingAmendment(op, amendmentID)
		if err != nil {
			return err
		}
		a := &p.Amendments[idx]
		now := t.now
		a.Status = domain.AmendmentRejected
		a.RejectedBy = actor.ID
		a.RejectedAt = &now
		a.RejectionReason = reason
		if err := t.saveProject(&p); err != nil {
			return err
		}
		out = *a
		_, err = t.record(domain.AuditAmendment, domain.EntityAmendment, a.ID,
			fmt.Sprintf("%s rejected: %s", a.Label(), reason),
			map[string]any{"status": domain.AmendmentPending}, map[string]any{"status": a.Status}, actor)
		return err
	})
	return out, err
}

// pendingAmendment locates the project holding a pending amendment.
func (t *txn) pendingAmendment(op, amendmentID string) (Project, int, error) {
	matches := t.tx.Query(domain.NamespaceProjects, func(r domain.Record) bool {
		p, err := domain.Decode[Project](r.Payload)
		return err == nil && p.FindAmendment(amendmentID) >= 0
	})
	if len(matches) == 0 {
		return Project{}, -1, notFound(op, domain.EntityAmendment, amendmentID)
	}
	p, err := t.writableProject(op, matches[0].ID, 0)
	if err != nil {
		return Project{}, -1, err
	}
	idx := p.FindAmendment(amendmentID)
	if p.Amendments[idx].Status != domain.AmendmentPending {
		return Project{}, -1, domain.NewError(domain.KindInvalidState, op, "%s is %s", p.Amendments[idx].Label(), p.Amendments[idx].Status).
			WithField("status").WithEntity(domain.EntityAmendment, amendmentID)
	}
	if !p.Status.Amendable() {
		return Project{}, -1, domain.NewError(domain.KindInvalidTransition, op, "amendments are not accepted in status %s", p.Status).
			WithField("status").WithEntity(domain.EntityProject, p.ID)
	}
	return p, idx, nil
}

// applyAmendment applies a's delta on top of its before snapshot, appending
// the after snapshot and, where needed, a new pin record and BOM snapshot.
func (t *txn) applyAmendment(ctx context.Context, op string, p *Project, a *Amendment, actor Actor) error {
	before, ok := p.LatestSnapshot()
	if !ok {
		return domain.NewError(domain.KindInvalidState, op, "project has no frozen configuration").
			WithField("configuration_snapshots").WithEntity(domain.EntityProject, p.ID)
	}
	if a.BeforeSnapshotID != before.ID {
		return chainError(op, p.ID, a.BeforeSnapshotID, before)
	}
	after, err := a.Delta.Apply(before.Configuration)
	if err != nil {
		return err
	}
	pinsID := before.PinsID
	if a.Delta.SelectsVersions() {
		pins, err := t.pinLibraryVersions(op, p.Library, after, actor)
		if err != nil {
			return err
		}
		p.PinHistory = append(p.PinHistory, pins)
		pinsID = pins.ID
		a.LibraryPinsID = pins.ID
	}
	snap := t.freezeConfiguration(p, after, a.Label(), actor)
	attachPins(p, pinsID)
	snap.PinsID = pinsID
	p.Configuration = after.Clone()
	if a.Delta.AffectsBOM(before.Configuration) {
		var pins *LibraryPins
		if found, ok := p.FindPins(pinsID); ok {
			pins = &found
		}
		bom, err := t.generateBOM(ctx, p, snap, pins)
		if err != nil {
			return &domain.WorkflowError{Step: StepGenerateBOM, From: p.Status, To: p.Status, Err: err}
		}
		a.BOMSnapshotID = bom.ID
	}
	now := t.now
	a.PriceImpact = after.Total() - before.Configuration.Total()
	a.AfterSnapshotID = snap.ID
	a.Status = domain.AmendmentApproved
	a.ApprovedBy = actor.ID
	a.ApprovedAt = &now
	return nil
}

func chainError(op, projectID, expected string, latest ConfigurationSnapshot) error {
	return domain.NewError(domain.KindAmendmentChain, op,
		"amendment is based on snapshot %q but the latest snapshot is %s (%s)", expected, latest.Label(), latest.ID).
		WithField("before_snapshot_id").WithEntity(domain.EntityProject, projectID)
}

// EmergencyUnlock grants a one-shot edit of a frozen configuration or locked
// quote outside the amendment flow.
func (s *Service) EmergencyUnlock(ctx context.Context, projectID, reason string, actor Actor) (domain.UnlockGrant, error) {
	const op = "emergency_unlock"
	var out domain.UnlockGrant
	err := s.mutate(ctx, op, actor, domain.EntityProject, projectID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermEmergencyUnlock); err != nil {
			return err
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return domain.NewError(domain.KindValidation, op, "a reason is required").WithField("reason")
		}
		p, err := t.writableProject(op, projectID, 0)
		if err != nil {
			return err
		}
		if !p.Frozen() && !hasLockedQuote(p) {
			return domain.NewError(domain.KindInvalidState, op, "project %d has nothing locked", p.Number).
				WithField("status").WithEntity(domain.EntityProject, p.ID)
		}
		if p.EmergencyUnlock != nil {
			return domain.NewError(domain.KindInvalidState, op, "an unlock granted by %s is still outstanding", p.EmergencyUnlock.GrantedBy).
				WithField("emergency_unlock").WithEntity(domain.EntityProject, p.ID)
		}
		grant := domain.UnlockGrant{
			ID:        s.newID(),
			Reason:    reason,
			GrantedBy: actor.ID,
			GrantedAt: t.now,
		}
		entry, err := t.record(domain.AuditEmergencyUnlock, domain.EntityProject, p.ID,
			fmt.Sprintf("emergency unlock: %s", reason), nil, grant, actor)
		if err != nil {
			return err
		}
		grant.AuditEntryID = entry.ID
		p.EmergencyUnlock = &grant
		out = grant
		return t.saveProject(&p)
	})
	return out, err
}

func hasLockedQuote(p Project) bool {
	for _, q := range p.Quotes {
		if !q.Editable() && q.Status.Active() {
			return true
		}
	}
	return false
}

// consumeUnlock clears the project's outstanding unlock grant, or reports
// that the edit is locked.
func consumeUnlock(op string, p *Project, what string) (*domain.UnlockGrant, error) {
	if p.EmergencyUnlock == nil {
		return nil, domain.NewError(domain.KindLocked, op, "%s is locked; use an amendment or an emergency unlock", what).
			WithEntity(domain.EntityProject, p.ID)
	}
	grant := p.EmergencyUnlock
	p.EmergencyUnlock = nil
	return grant, nil
}
