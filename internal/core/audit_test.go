package core

import (
	"context"
	"testing"

	"navisol/pkg/domain"
)

func TestAuditEntriesAreSequencedAndAttributed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)
	advanceTo(t, svc, p.ID, domain.StatusQuoted)

	entries, err := svc.AuditForEntity(ctx, domain.EntityProject, p.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected create and transition entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Sequence <= entries[i].Sequence {
			t.Fatalf("entries must be newest first")
		}
		if entries[i-1].Timestamp.Before(entries[i].Timestamp) {
			t.Fatalf("timestamps must not go backwards")
		}
	}
	latest := entries[0]
	if latest.Kind != domain.AuditStatusTransition || latest.Actor.ID != managerActor.ID || latest.Actor.Role != domain.RoleManager {
		t.Fatalf("unexpected latest entry %+v", latest)
	}
	if len(latest.Before) == 0 || len(latest.After) == 0 {
		t.Fatalf("transition entry must carry before and after state")
	}

	byActor, _ := svc.QueryAudit(ctx, AuditQuery{ActorID: salesActor.ID, Kind: domain.AuditCreate})
	for _, e := range byActor {
		if e.Actor.ID != salesActor.ID || e.Kind != domain.AuditCreate {
			t.Fatalf("filter leaked %+v", e)
		}
	}
	if len(byActor) != 2 {
		t.Fatalf("expected project and quote CREATE entries by sales, got %d", len(byActor))
	}
	recent, _ := svc.AuditLog().Recent(ctx, 3)
	if len(recent) != 3 || recent[0].ID != latest.ID {
		t.Fatalf("unexpected recent entries %+v", recent)
	}
}

func TestAuditLogRecordStandalone(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	svc := newTestService(t, WithAuditRecorder(audit))

	entry, err := svc.AuditLog().Record(ctx, domain.AuditUpdate, domain.EntityClient, "c-1", "imported from CRM",
		nil, map[string]string{"source": "crm"}, adminActor)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.Sequence != 1 || entry.ID == "" || string(entry.After) != `{"source":"crm"}` {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !audit.has(domain.AuditUpdate, "c-1") {
		t.Fatalf("expected standalone entry forwarded after commit")
	}
}
