package core

import (
	"encoding/json"
	"fmt"
	"time"

	"navisol/pkg/domain"
)

// txn wraps a store transaction with typed accessors for the core namespaces.
type txn struct {
	tx       Transaction
	svc      *Service
	now      time.Time
	audits   []AuditEntry
	blobKeys []string
}

func load[T any](view TransactionView, ns domain.Namespace, id string) (T, bool, error) {
	var zero T
	raw, ok := view.GetByID(ns, id)
	if !ok {
		return zero, false, nil
	}
	out, err := domain.Decode[T](raw)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s/%s: %w", ns, id, err)
	}
	return out, true, nil
}

func loadAll[T any](view TransactionView, ns domain.Namespace, filter domain.Filter) ([]T, error) {
	records := view.Query(ns, filter)
	out := make([]T, 0, len(records))
	for _, rec := range records {
		v, err := domain.Decode[T](rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", ns, rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *txn) put(ns domain.Namespace, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", ns, id, err)
	}
	return t.tx.Save(ns, id, raw)
}

func notFound(op string, entity domain.EntityType, id string) error {
	return domain.NewError(domain.KindNotFound, op, "%s %q not found", entity, id).WithEntity(entity, id)
}

func (t *txn) project(op, id string) (Project, error) {
	p, ok, err := load[Project](t.tx, domain.NamespaceProjects, id)
	if err != nil {
		return Project{}, err
	}
	if !ok {
		return Project{}, notFound(op, domain.EntityProject, id)
	}
	return p, nil
}

// writableProject loads a project for mutation, rejecting archived projects
// and stale expected versions.
func (t *txn) writableProject(op, id string, expectedVersion int64) (Project, error) {
	p, err := t.project(op, id)
	if err != nil {
		return Project{}, err
	}
	if expectedVersion != 0 && expectedVersion != p.Version {
		return Project{}, domain.NewError(domain.KindConcurrencyConflict, op,
			"project version is %d, expected %d", p.Version, expectedVersion).
			WithField("expected_version").WithEntity(domain.EntityProject, id)
	}
	if p.Archived() {
		return Project{}, domain.NewError(domain.KindInvalidTransition, op, "project is archived").
			WithField("archived_at").WithEntity(domain.EntityProject, id)
	}
	return p, nil
}

// saveProject bumps the optimistic version and persists p.
func (t *txn) saveProject(p *Project) error {
	p.Version++
	p.UpdatedAt = t.now
	return t.put(domain.NamespaceProjects, p.ID, p)
}

func (t *txn) libraryEntity(op, id string) (LibraryEntity, error) {
	e, ok, err := load[LibraryEntity](t.tx, domain.NamespaceLibraryEntities, id)
	if err != nil {
		return LibraryEntity{}, err
	}
	if !ok {
		return LibraryEntity{}, notFound(op, domain.EntityLibraryEntity, id)
	}
	return e, nil
}

func (t *txn) libraryVersion(op, id string) (LibraryVersion, error) {
	v, ok, err := load[LibraryVersion](t.tx, domain.NamespaceLibraryVersions, id)
	if err != nil {
		return LibraryVersion{}, err
	}
	if !ok {
		return LibraryVersion{}, notFound(op, domain.EntityLibraryVersion, id)
	}
	return v, nil
}

// nextSequence increments and returns the named counter.
func (t *txn) nextSequence(name string) (int64, error) {
	counter, _, err := load[domain.SequenceCounter](t.tx, domain.NamespaceSequences, name)
	if err != nil {
		return 0, err
	}
	counter.ID = name
	counter.Value++
	if err := t.put(domain.NamespaceSequences, name, counter); err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// record appends an audit entry within the transaction.
func (t *txn) record(kind domain.AuditKind, entity domain.EntityType, entityID, description string, before, after any, actor Actor) (AuditEntry, error) {
	seq, err := t.nextSequence(sequenceAudit)
	if err != nil {
		return AuditEntry{}, err
	}
	entry := AuditEntry{
		ID:          t.svc.newID(),
		Sequence:    seq,
		Kind:        kind,
		EntityType:  entity,
		EntityID:    entityID,
		Description: description,
		Actor:       actor.Audit(),
		Timestamp:   t.now,
	}
	if entry.Before, err = marshalOptional(before); err != nil {
		return AuditEntry{}, err
	}
	if entry.After, err = marshalOptional(after); err != nil {
		return AuditEntry{}, err
	}
	if err := t.put(domain.NamespaceAudit, entry.ID, entry); err != nil {
		return AuditEntry{}, err
	}
	t.audits = append(t.audits, entry)
	return entry, nil
}

func marshalOptional(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}
	return raw, nil
}

const (
	sequenceAudit   = "audit"
	sequenceProject = "project"
)
