package core

import (
	"context"
	"sort"

	"navisol/pkg/domain"
)

// AuditQuery narrows an audit listing. Zero values match everything.
type AuditQuery struct {
	Kind       domain.AuditKind
	EntityType domain.EntityType
	EntityID   string
	ActorID    string
	Limit      int
}

// RecentAudit returns the n most recent audit entries, newest first.
func (s *Service) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	return s.QueryAudit(ctx, AuditQuery{Limit: n})
}

// AuditForEntity returns every entry for one entity, newest first.
func (s *Service) AuditForEntity(ctx context.Context, entity domain.EntityType, id string) ([]AuditEntry, error) {
	return s.QueryAudit(ctx, AuditQuery{EntityType: entity, EntityID: id})
}

// QueryAudit lists audit entries in reverse-chronological order.
func (s *Service) QueryAudit(ctx context.Context, q AuditQuery) ([]AuditEntry, error) {
	var out []AuditEntry
	err := s.store.View(ctx, func(view TransactionView) error {
		entries, err := loadAll[AuditEntry](view, domain.NamespaceAudit, nil)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence > entries[j].Sequence })
		for _, e := range entries {
			if q.Kind != "" && e.Kind != q.Kind {
				continue
			}
			if q.EntityType != "" && e.EntityType != q.EntityType {
				continue
			}
			if q.EntityID != "" && e.EntityID != q.EntityID {
				continue
			}
			if q.ActorID != "" && e.Actor.ID != q.ActorID {
				continue
			}
			out = append(out, e)
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// AuditLog adapts the service to the record/recent collaborator shape.
type AuditLog struct {
	svc *Service
}

// AuditLog returns the audit collaborator view of the service.
func (s *Service) AuditLog() AuditLog { return AuditLog{svc: s} }

// Record appends a standalone entry in its own transaction.
func (l AuditLog) Record(ctx context.Context, kind domain.AuditKind, entity domain.EntityType, entityID, description string, before, after any, actor Actor) (AuditEntry, error) {
	var entry AuditEntry
	err := l.svc.inTx(ctx, func(t *txn) error {
		var err error
		entry, err = t.record(kind, entity, entityID, description, before, after, actor)
		return err
	})
	return entry, err
}

// Recent returns the n newest entries.
func (l AuditLog) Recent(ctx context.Context, n int) ([]AuditEntry, error) {
	return l.svc.RecentAudit(ctx, n)
}
