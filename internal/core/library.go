package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"navisol/pkg/domain"
)

// LibraryEntityRequest describes a new library entity.
type LibraryEntityRequest struct {
	Kind         domain.LibraryKind
	Key          string
	Name         string
	DocumentType domain.DocumentType
}

// CreateLibraryEntity registers a versioned library entity without versions.
func (s *Service) CreateLibraryEntity(ctx context.Context, req LibraryEntityRequest, actor Actor) (LibraryEntity, error) {
	const op = "create_library_entity"
	var out LibraryEntity
	err := s.mutate(ctx, op, actor, domain.EntityLibraryEntity, req.Key, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermManageLibrary); err != nil {
			return err
		}
		if !req.Kind.Valid() {
			return domain.NewError(domain.KindValidation, op, "unknown library kind %q", req.Kind).WithField("kind")
		}
		key := strings.TrimSpace(req.Key)
		if key == "" {
			return domain.NewError(domain.KindValidation, op, "key is required").WithField("key")
		}
		if req.Kind == domain.LibraryDocumentTemplate && req.DocumentType == "" {
			return domain.NewError(domain.KindValidation, op, "document templates need a document type").WithField("document_type")
		}
		dup := t.tx.Query(domain.NamespaceLibraryEntities, func(r domain.Record) bool {
			e, err := domain.Decode[LibraryEntity](r.Payload)
			return err == nil && e.Kind == req.Kind && strings.EqualFold(e.Key, key)
		})
		if len(dup) > 0 {
			return domain.NewError(domain.KindValidation, op, "%s %q already exists", req.Kind, key).WithField("key")
		}
		out = LibraryEntity{
			Base:         domain.Base{ID: s.newID(), CreatedAt: t.now, UpdatedAt: t.now},
			Kind:         req.Kind,
			Key:          key,
			Name:         strings.TrimSpace(req.Name),
			DocumentType: req.DocumentType,
		}
		if err := t.put(domain.NamespaceLibraryEntities, out.ID, out); err != nil {
			return err
		}
		_, err := t.record(domain.AuditCreate, domain.EntityLibraryEntity, out.ID,
			fmt.Sprintf("created %s %s", out.Kind, out.Key), nil, out, actor)
		return err
	})
	return out, err
}

// CreateLibraryVersion appends a DRAFT version with the next label.
func (s *Service) CreateLibraryVersion(ctx context.Context, entityID string, payload json.RawMessage, notes string, actor Actor) (LibraryVersion, error) {
	const op = "create_library_version"
	var out LibraryVersion
	err := s.mutate(ctx, op, actor, domain.EntityLibraryEntity, entityID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermManageLibrary); err != nil {
			return err
		}
		if len(payload) > 0 && !json.Valid(payload) {
			return domain.NewError(domain.KindValidation, op, "payload must be valid JSON").WithField("payload")
		}
		entity, err := t.libraryEntity(op, entityID)
		if err != nil {
			return err
		}
		existing, err := versionsOf(t.tx, entityID)
		if err != nil {
			return err
		}
		labels := make([]string, 0, len(existing))
		for _, v := range existing {
			labels = append(labels, v.Label)
		}
		out = LibraryVersion{
			Base:      domain.Base{ID: s.newID(), CreatedAt: t.now, UpdatedAt: t.now},
			EntityID:  entityID,
			Label:     nextVersionLabel(entity.Kind, labels, t.now),
			Status:    domain.VersionDraft,
			Payload:   payload,
			Notes:     notes,
			CreatedBy: actor.ID,
		}
		if err := t.put(domain.NamespaceLibraryVersions, out.ID, out); err != nil {
			return err
		}
		_, err = t.record(domain.AuditCreate, domain.EntityLibraryVersion, out.ID,
			fmt.Sprintf("created %s %s version %s", entity.Kind, entity.Key, out.Label), nil, out, actor)
		return err
	})
	return out, err
}

// UpdateDraftVersion replaces the payload of a DRAFT version.
func (s *Service) UpdateDraftVersion(ctx context.Context, versionID string, payload json.RawMessage, notes string, actor Actor) (LibraryVersion, error) {
	const op = "update_library_version"
	var out LibraryVersion
	err := s.mutate(ctx, op, actor, domain.EntityLibraryVersion, versionID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermManageLibrary); err != nil {
			return err
		}
		if len(payload) > 0 && !json.Valid(payload) {
			return domain.NewError(domain.KindValidation, op, "payload must be valid JSON").WithField("payload")
		}
		version, err := t.libraryVersion(op, versionID)
		if err != nil {
			return err
		}
		if version.Status != domain.VersionDraft {
			return domain.NewError(domain.KindLocked, op, "version %s is %s; create a new version instead", version.Label, version.Status).
				WithEntity(domain.EntityLibraryVersion, versionID).WithField("status")
		}
		before := version
		version.Payload = payload
		version.Notes = notes
		version.UpdatedAt = t.now
		if err := t.put(domain.NamespaceLibraryVersions, version.ID, version); err != nil {
			return err
		}
		out = version
		_, err = t.record(domain.AuditUpdate, domain.EntityLibraryVersion, version.ID,
			fmt.Sprintf("updated draft version %s", version.Label), before, version, actor)
		return err
	})
	return out, err
}

// ApproveLibraryVersion approves a DRAFT version and makes it the entity's current version.
func (s *Service) ApproveLibraryVersion(ctx context.Context, versionID string, actor Actor) (LibraryVersion, error) {
	const op = "approve_library_version"
	var out LibraryVersion
	err := s.mutate(ctx, op, actor, domain.EntityLibraryVersion, versionID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermApproveLibraryVersion); err != nil {
			return err
		}
		version, err := t.libraryVersion(op, versionID)
		if err != nil {
			return err
		}
		if version.Status != domain.VersionDraft {
			return domain.NewError(domain.KindInvalidState, op, "version %s is %s", version.Label, version.Status).
				WithEntity(domain.EntityLibraryVersion, versionID).WithField("status")
		}
		entity, err := t.libraryEntity(op, version.EntityID)
		if err != nil {
			return err
		}
		now := t.now
		version.Status = domain.VersionApproved
		version.ApprovedAt = &now
		version.ApprovedBy = actor.ID
		version.UpdatedAt = now
		if err := t.put(domain.NamespaceLibraryVersions, version.ID, version); err != nil {
			return err
		}
		entity.CurrentVersionID = version.ID
		entity.UpdatedAt = now
		if err := t.put(domain.NamespaceLibraryEntities, entity.ID, entity); err != nil {
			return err
		}
		out = version
		_, err = t.record(domain.AuditApprove, domain.EntityLibraryVersion, version.ID,
			fmt.Sprintf("approved %s %s version %s", entity.Kind, entity.Key, version.Label),
			map[string]any{"status": domain.VersionDraft}, map[string]any{"status": version.Status, "current_version_id": version.ID}, actor)
		return err
	})
	return out, err
}

// DeprecateLibraryVersion retires an APPROVED version. When it was current the
// pointer moves to the newest remaining approved version, if any.
func (s *Service) DeprecateLibraryVersion(ctx context.Context, versionID string, actor Actor) (LibraryVersion, error) {
	const op = "deprecate_library_version"
	var out LibraryVersion
	err := s.mutate(ctx, op, actor, domain.EntityLibraryVersion, versionID, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermManageLibrary); err != nil {
			return err
		}
		version, err := t.libraryVersion(op, versionID)
		if err != nil {
			return err
		}
		if version.Status != domain.VersionApproved {
			return domain.NewError(domain.KindInvalidState, op, "only approved versions can be deprecated; %s is %s", version.Label, version.Status).
				WithEntity(domain.EntityLibraryVersion, versionID).WithField("status")
		}
		entity, err := t.libraryEntity(op, version.EntityID)
		if err != nil {
			return err
		}
		now := t.now
		version.Status = domain.VersionDeprecated
		version.DeprecatedAt = &now
		version.UpdatedAt = now
		if err := t.put(domain.NamespaceLibraryVersions, version.ID, version); err != nil {
			return err
		}
		if entity.CurrentVersionID == version.ID {
			siblings, err := versionsOf(t.tx, entity.ID)
			if err != nil {
				return err
			}
			entity.CurrentVersionID = ""
			for i := len(siblings) - 1; i >= 0; i-- {
				if siblings[i].ID != version.ID && siblings[i].Status == domain.VersionApproved {
					entity.CurrentVersionID = siblings[i].ID
					break
				}
			}
			entity.UpdatedAt = now
			if err := t.put(domain.NamespaceLibraryEntities, entity.ID, entity); err != nil {
				return err
			}
		}
		out = version
		_, err = t.record(domain.AuditUpdate, domain.EntityLibraryVersion, version.ID,
			fmt.Sprintf("deprecated %s %s version %s", entity.Kind, entity.Key, version.Label),
			map[string]any{"status": domain.VersionApproved}, map[string]any{"status": version.Status}, actor)
		return err
	})
	return out, err
}

// GetLibraryEntity returns a library entity by ID.
func (s *Service) GetLibraryEntity(ctx context.Context, id string) (LibraryEntity, error) {
	var out LibraryEntity
	err := s.store.View(ctx, func(view TransactionView) error {
		e, ok, err := load[LibraryEntity](view, domain.NamespaceLibraryEntities, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("get_library_entity", domain.EntityLibraryEntity, id)
		}
		out = e
		return nil
	})
	return out, err
}

// GetLibraryVersion returns a library version by ID.
func (s *Service) GetLibraryVersion(ctx context.Context, id string) (LibraryVersion, error) {
	var out LibraryVersion
	err := s.store.View(ctx, func(view TransactionView) error {
		v, ok, err := load[LibraryVersion](view, domain.NamespaceLibraryVersions, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("get_library_version", domain.EntityLibraryVersion, id)
		}
		out = v
		return nil
	})
	return out, err
}

// ListLibraryEntities lists entities, optionally restricted to one kind.
func (s *Service) ListLibraryEntities(ctx context.Context, kind domain.LibraryKind) ([]LibraryEntity, error) {
	var out []LibraryEntity
	err := s.store.View(ctx, func(view TransactionView) error {
		all, err := loadAll[LibraryEntity](view, domain.NamespaceLibraryEntities, nil)
		if err != nil {
			return err
		}
		for _, e := range all {
			if kind == "" || e.Kind == kind {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Kind != out[j].Kind {
				return out[i].Kind < out[j].Kind
			}
			return out[i].Key < out[j].Key
		})
		return nil
	})
	return out, err
}

// ListLibraryVersions lists an entity's versions oldest first.
func (s *Service) ListLibraryVersions(ctx context.Context, entityID string) ([]LibraryVersion, error) {
	var out []LibraryVersion
	err := s.store.View(ctx, func(view TransactionView) error {
		var err error
		out, err = versionsOf(view, entityID)
		return err
	})
	return out, err
}

func versionsOf(view TransactionView, entityID string) ([]LibraryVersion, error) {
	versions, err := loadAll[LibraryVersion](view, domain.NamespaceLibraryVersions, func(r domain.Record) bool {
		v, err := domain.Decode[LibraryVersion](r.Payload)
		return err == nil && v.EntityID == entityID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(versions, func(i, j int) bool {
		if !versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].CreatedAt.Before(versions[j].CreatedAt)
		}
		return versions[i].ID < versions[j].ID
	})
	return versions, nil
}
