package core

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"navisol/pkg/domain"
)

func TestNextVersionLabel(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		kind     domain.LibraryKind
		existing []string
		want     string
	}{
		{"boat model first", domain.LibraryBoatModel, nil, "1.0.0"},
		{"boat model minor bump", domain.LibraryBoatModel, []string{"1.0.0", "1.2.0", "1.1.0"}, "1.3.0"},
		{"boat model ignores junk", domain.LibraryBoatModel, []string{"draft", "2.0.0"}, "2.1.0"},
		{"catalog first of year", domain.LibraryCatalog, []string{"2025.4"}, "2026.1"},
		{"catalog next in year", domain.LibraryCatalog, []string{"2026.1", "2026.2"}, "2026.3"},
		{"template sequential", domain.LibraryDocumentTemplate, []string{"1", "3", "2"}, "4"},
		{"article first", domain.LibraryArticle, nil, "1"},
	}
	for _, tc := range cases {
		if got := nextVersionLabel(tc.kind, tc.existing, now); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLibraryEntityValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.CreateLibraryEntity(ctx, LibraryEntityRequest{Kind: "YACHT", Key: "X"}, adminActor)
	expectKind(t, err, domain.KindValidation)
	_, err = svc.CreateLibraryEntity(ctx, LibraryEntityRequest{Kind: domain.LibraryCatalog, Key: "  "}, adminActor)
	expectKind(t, err, domain.KindValidation)
	_, err = svc.CreateLibraryEntity(ctx, LibraryEntityRequest{Kind: domain.LibraryDocumentTemplate, Key: "CE"}, adminActor)
	expectKind(t, err, domain.KindValidation)
	_, err = svc.CreateLibraryEntity(ctx, LibraryEntityRequest{Kind: domain.LibraryCatalog, Key: "MAIN"}, salesActor)
	expectKind(t, err, domain.KindAuthorization)

	mustEntity(t, svc, domain.LibraryCatalog, "MAIN", "")
	_, err = svc.CreateLibraryEntity(ctx, LibraryEntityRequest{Kind: domain.LibraryCatalog, Key: "main"}, adminActor)
	expectKind(t, err, domain.KindValidation)
	mustEntity(t, svc, domain.LibraryKit, "MAIN", "")

	entities, err := svc.ListLibraryEntities(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entities) != 2 || entities[0].Kind != domain.LibraryCatalog || entities[1].Kind != domain.LibraryKit {
		t.Fatalf("unexpected entities %+v", entities)
	}
	catalogs, _ := svc.ListLibraryEntities(ctx, domain.LibraryCatalog)
	if len(catalogs) != 1 {
		t.Fatalf("expected one catalog, got %d", len(catalogs))
	}
}

func TestLibraryVersionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	model := mustEntity(t, svc, domain.LibraryBoatModel, "EAGLE-28", "")

	v1 := mustVersion(t, svc, model.ID, `{"length_m":8.5}`, false)
	if v1.Status != domain.VersionDraft || v1.Label != "1.0.0" {
		t.Fatalf("unexpected first version %+v", v1)
	}
	if e, _ := svc.GetLibraryEntity(ctx, model.ID); e.CurrentVersionID != "" {
		t.Fatalf("draft must not become current")
	}
	if _, err := svc.UpdateDraftVersion(ctx, v1.ID, json.RawMessage(`{"length_m":8.6}`), "fix", adminActor); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	_, err := svc.UpdateDraftVersion(ctx, v1.ID, json.RawMessage(`{bad`), "", adminActor)
	expectKind(t, err, domain.KindValidation)

	_, err = svc.ApproveLibraryVersion(ctx, v1.ID, salesActor)
	expectKind(t, err, domain.KindAuthorization)
	approved, err := svc.ApproveLibraryVersion(ctx, v1.ID, managerActor)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ApprovedBy != managerActor.ID || approved.ApprovedAt == nil {
		t.Fatalf("approval not stamped: %+v", approved)
	}
	if string(approved.Payload) != `{"length_m":8.6}` {
		t.Fatalf("expected updated payload, got %s", approved.Payload)
	}
	_, err = svc.ApproveLibraryVersion(ctx, v1.ID, managerActor)
	expectKind(t, err, domain.KindInvalidState)
	_, err = svc.UpdateDraftVersion(ctx, v1.ID, json.RawMessage(`{}`), "", adminActor)
	expectKind(t, err, domain.KindLocked)

	v2 := mustVersion(t, svc, model.ID, `{"length_m":8.7}`, true)
	if v2.Label != "1.1.0" {
		t.Fatalf("expected 1.1.0, got %s", v2.Label)
	}
	entity, _ := svc.GetLibraryEntity(ctx, model.ID)
	if entity.CurrentVersionID != v2.ID {
		t.Fatalf("expected v2 current, got %s", entity.CurrentVersionID)
	}

	if _, err := svc.DeprecateLibraryVersion(ctx, v2.ID, adminActor); err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	entity, _ = svc.GetLibraryEntity(ctx, model.ID)
	if entity.CurrentVersionID != v1.ID {
		t.Fatalf("expected current to fall back to v1, got %s", entity.CurrentVersionID)
	}
	if _, err := svc.DeprecateLibraryVersion(ctx, v1.ID, adminActor); err != nil {
		t.Fatalf("deprecate v1: %v", err)
	}
	entity, _ = svc.GetLibraryEntity(ctx, model.ID)
	if entity.CurrentVersionID != "" {
		t.Fatalf("expected no current version, got %s", entity.CurrentVersionID)
	}
	_, err = svc.DeprecateLibraryVersion(ctx, v1.ID, adminActor)
	expectKind(t, err, domain.KindInvalidState)

	versions, err := svc.ListLibraryVersions(ctx, model.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 || versions[0].ID != v1.ID || versions[1].ID != v2.ID {
		t.Fatalf("unexpected version order %+v", versions)
	}
	if got := countKind(auditKinds(t, svc, domain.EntityLibraryVersion, v1.ID), domain.AuditApprove); got != 1 {
		t.Fatalf("expected one APPROVE entry, got %d", got)
	}
}

func TestLibraryVersionNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.CreateLibraryVersion(ctx, "missing", json.RawMessage(`{}`), "", adminActor)
	expectKind(t, err, domain.KindNotFound)
	_, err = svc.GetLibraryVersion(ctx, "missing")
	expectKind(t, err, domain.KindNotFound)
}
