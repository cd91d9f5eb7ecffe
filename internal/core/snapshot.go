package core

import (
	"context"
	"fmt"
	"sort"

	"navisol/pkg/domain"
)

// freezeConfiguration appends a deep copy of the live configuration as the
// next snapshot. Earlier snapshots are left untouched.
func (t *txn) freezeConfiguration(p *Project, cfg Configuration, reason string, actor Actor) ConfigurationSnapshot {
	snap := ConfigurationSnapshot{
		ID:            t.svc.newID(),
		Sequence:      len(p.ConfigurationSnapshots) + 1,
		Reason:        reason,
		FrozenAt:      t.now,
		FrozenBy:      actor.ID,
		Configuration: cfg.Clone(),
	}
	p.ConfigurationSnapshots = append(p.ConfigurationSnapshots, snap)
	return snap
}

// freezeEmergencyEdit snapshots p's live configuration after an edit under
// grant. Pins carry over from the previous snapshot and the BOM is
// regenerated when BOM-relevant items changed.
func (t *txn) freezeEmergencyEdit(ctx context.Context, p *Project, grant domain.UnlockGrant, actor Actor) error {
	prev, ok := p.LatestSnapshot()
	if !ok {
		return domain.NewError(domain.KindInvalidState, "update_configuration", "project has no frozen configuration").
			WithField("configuration_snapshots").WithEntity(domain.EntityProject, p.ID)
	}
	t.freezeConfiguration(p, p.Configuration, reasonEmergencyUnlock, actor)
	last := &p.ConfigurationSnapshots[len(p.ConfigurationSnapshots)-1]
	last.PinsID = prev.PinsID
	last.UnlockGrantID = grant.ID
	last.UnlockAuditID = grant.AuditEntryID
	snap := *last
	if sameJSON(bomItems(prev.Configuration), bomItems(snap.Configuration)) {
		return nil
	}
	var pins *LibraryPins
	if found, ok := p.FindPins(snap.PinsID); ok {
		pins = &found
	}
	if _, err := t.generateBOM(ctx, p, snap, pins); err != nil {
		return &domain.WorkflowError{Step: StepGenerateBOM, From: p.Status, To: p.Status, Err: err}
	}
	return nil
}

func bomItems(cfg Configuration) []domain.ConfigItem {
	var out []domain.ConfigItem
	for _, item := range cfg.Items {
		if item.BOMRelevant {
			out = append(out, item)
		}
	}
	return out
}

// attachPins links the latest snapshot to a pin record.
func attachPins(p *Project, pinsID string) {
	if n := len(p.ConfigurationSnapshots); n > 0 {
		p.ConfigurationSnapshots[n-1].PinsID = pinsID
	}
}

// pinLibraryVersions resolves every referenced library entity to a concrete
// approved version. Explicit selections in cfg win over the entity's current
// version; nothing is ever resolved to "latest".
func (t *txn) pinLibraryVersions(op string, refs domain.LibraryRefs, cfg Configuration, actor Actor) (LibraryPins, error) {
	pins := LibraryPins{
		ID:       t.svc.newID(),
		Versions: map[string]string{},
		PinnedAt: t.now,
		PinnedBy: actor.ID,
	}
	for _, entityID := range pinTargets(refs, cfg) {
		versionID, err := t.resolveVersion(op, entityID, cfg.VersionSelections[entityID])
		if err != nil {
			return LibraryPins{}, err
		}
		pins.Versions[entityID] = versionID
	}
	pins.BoatModelVersionID = pins.Versions[refs.BoatModelID]
	pins.CatalogVersionID = pins.Versions[refs.CatalogID]
	if len(refs.Templates) > 0 {
		pins.TemplateVersionIDs = make(map[domain.DocumentType]string, len(refs.Templates))
		for dt, entityID := range refs.Templates {
			pins.TemplateVersionIDs[dt] = pins.Versions[entityID]
		}
	}
	return pins, nil
}

func pinTargets(refs domain.LibraryRefs, cfg Configuration) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range refs.EntityIDs() {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	extra := make([]string, 0, len(cfg.VersionSelections))
	for id := range cfg.VersionSelections {
		if !seen[id] {
			seen[id] = true
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func (t *txn) resolveVersion(op, entityID, selected string) (string, error) {
	entity, ok, err := load[LibraryEntity](t.tx, domain.NamespaceLibraryEntities, entityID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.NewError(domain.KindMissingLibraryVersion, op, "library entity %q does not exist", entityID).
			WithEntity(domain.EntityLibraryEntity, entityID).WithField("library")
	}
	if selected != "" {
		version, ok, err := load[LibraryVersion](t.tx, domain.NamespaceLibraryVersions, selected)
		if err != nil {
			return "", err
		}
		if !ok || version.EntityID != entityID {
			return "", domain.NewError(domain.KindMissingLibraryVersion, op, "selected version %q is not a version of %s %s", selected, entity.Kind, entity.Key).
				WithEntity(domain.EntityLibraryVersion, selected).WithField("configuration.version_selections")
		}
		if version.Status != domain.VersionApproved {
			return "", domain.NewError(domain.KindUnapprovedLibraryVersion, op, "selected version %s of %s %s is %s", version.Label, entity.Kind, entity.Key, version.Status).
				WithEntity(domain.EntityLibraryVersion, selected).WithField("configuration.version_selections")
		}
		return version.ID, nil
	}
	if entity.CurrentVersionID == "" {
		versions, err := versionsOf(t.tx, entityID)
		if err != nil {
			return "", err
		}
		if len(versions) == 0 {
			return "", domain.NewError(domain.KindMissingLibraryVersion, op, "%s %s has no versions", entity.Kind, entity.Key).
				WithEntity(domain.EntityLibraryEntity, entityID).WithField("library")
		}
		latest := versions[len(versions)-1]
		return "", domain.NewError(domain.KindUnapprovedLibraryVersion, op, "%s %s has no approved version (latest %s is %s)", entity.Kind, entity.Key, latest.Label, latest.Status).
			WithEntity(domain.EntityLibraryVersion, latest.ID).WithField("library")
	}
	current, ok, err := load[LibraryVersion](t.tx, domain.NamespaceLibraryVersions, entity.CurrentVersionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.NewError(domain.KindMissingLibraryVersion, op, "current version %q of %s %s does not exist", entity.CurrentVersionID, entity.Kind, entity.Key).
			WithEntity(domain.EntityLibraryEntity, entityID).WithField("library")
	}
	if current.Status != domain.VersionApproved {
		return "", domain.NewError(domain.KindUnapprovedLibraryVersion, op, "current version %s of %s %s is %s", current.Label, entity.Kind, entity.Key, current.Status).
			WithEntity(domain.EntityLibraryVersion, current.ID).WithField("library")
	}
	return current.ID, nil
}

// FreezeConfiguration appends a snapshot of the live configuration ahead of
// the ORDER_CONFIRMED milestone. Once the order is confirmed, snapshots only
// come from amendments and emergency unlock edits.
func (s *Service) FreezeConfiguration(ctx context.Context, projectID string, actor Actor) (ConfigurationSnapshot, error) {
	const op = "freeze_configuration"
	var out ConfigurationSnapshot
	err := s.mutate(ctx, op, actor, domain.EntityProject, projectID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermConfirmOrder); err != nil {
			return err
		}
		p, err := t.writableProject(op, projectID, 0)
		if err != nil {
			return err
		}
		if p.Frozen() {
			return domain.NewError(domain.KindInvalidState, op, "configuration of project %d is frozen since %s; use an amendment", p.Number, domain.StatusOrderConfirmed).
				WithField("status").WithEntity(domain.EntityProject, p.ID)
		}
		out = t.freezeConfiguration(&p, p.Configuration, reasonManual, actor)
		if latest := len(p.PinHistory); latest > 0 {
			attachPins(&p, p.PinHistory[latest-1].ID)
			out.PinsID = p.PinHistory[latest-1].ID
		}
		if err := t.saveProject(&p); err != nil {
			return err
		}
		_, err = t.record(domain.AuditUpdate, domain.EntityProject, p.ID,
			fmt.Sprintf("froze configuration snapshot %s", out.Label()), nil, out, actor)
		return err
	})
	return out, err
}

// PinLibraryVersions resolves and stores the project's library pins. Pins are
// set once; a pinned project is rejected.
func (s *Service) PinLibraryVersions(ctx context.Context, projectID string, actor Actor) (LibraryPins, error) {
	const op = "pin_library_versions"
	var out LibraryPins
	err := s.mutate(ctx, op, actor, domain.EntityProject, projectID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermConfirmOrder); err != nil {
			return err
		}
		p, err := t.writableProject(op, projectID, 0)
		if err != nil {
			return err
		}
		if p.LibraryPins != nil {
			return pinsAlreadySet(op, p)
		}
		pins, err := t.pinLibraryVersions(op, p.Library, p.Configuration, actor)
		if err != nil {
			return err
		}
		p.LibraryPins = &pins
		p.PinHistory = append(p.PinHistory, pins)
		if err := t.saveProject(&p); err != nil {
			return err
		}
		out = pins
		_, err = t.record(domain.AuditUpdate, domain.EntityProject, p.ID, "pinned library versions", nil, pins, actor)
		return err
	})
	return out, err
}

func pinsAlreadySet(op string, p Project) error {
	return domain.NewError(domain.KindInvalidState, op, "PinsAlreadySet: library versions were pinned at %s",
		p.LibraryPins.PinnedAt.Format("2006-01-02T15:04:05Z07:00")).
		WithEntity(domain.EntityProject, p.ID).WithField("library_pins")
}
