package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"navisol/pkg/domain"
)

var (
	adminActor      = Actor{ID: "u-admin", Name: "Ada", Role: domain.RoleAdmin}
	managerActor    = Actor{ID: "u-manager", Name: "Mia", Role: domain.RoleManager}
	salesActor      = Actor{ID: "u-sales", Name: "Sam", Role: domain.RoleSales}
	productionActor = Actor{ID: "u-prod", Name: "Pim", Role: domain.RoleProduction}
	viewerActor     = Actor{ID: "u-viewer", Name: "Vic", Role: domain.RoleViewer}
)

// steppingClock advances one second on every call.
func steppingClock(start time.Time) ClockFunc {
	var n int64
	return func() time.Time {
		step := atomic.AddInt64(&n, 1)
		return start.Add(time.Duration(step) * time.Second)
	}
}

func sequentialIDs(prefix string) func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("%s-%04d", prefix, atomic.AddInt64(&n, 1))
	}
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithClock(steppingClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))),
		WithIDGenerator(sequentialIDs("id")),
	}
	return NewInMemoryService(nil, append(base, opts...)...)
}

type libraryFixture struct {
	boatModel        LibraryEntity
	boatModelVersion LibraryVersion
	catalog          LibraryEntity
	catalogVersion   LibraryVersion
	template         LibraryEntity
	templateVersion  LibraryVersion
}

func (l libraryFixture) refs() domain.LibraryRefs {
	return domain.LibraryRefs{
		BoatModelID: l.boatModel.ID,
		CatalogID:   l.catalog.ID,
		Templates:   map[domain.DocumentType]string{domain.DocumentCEDeclaration: l.template.ID},
	}
}

func mustEntity(t *testing.T, svc *Service, kind domain.LibraryKind, key string, dt domain.DocumentType) LibraryEntity {
	t.Helper()
	e, err := svc.CreateLibraryEntity(context.Background(), LibraryEntityRequest{Kind: kind, Key: key, Name: key, DocumentType: dt}, adminActor)
	if err != nil {
		t.Fatalf("create %s %s: %v", kind, key, err)
	}
	return e
}

func mustVersion(t *testing.T, svc *Service, entityID string, payload string, approve bool) LibraryVersion {
	t.Helper()
	ctx := context.Background()
	v, err := svc.CreateLibraryVersion(ctx, entityID, json.RawMessage(payload), "", adminActor)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if approve {
		if v, err = svc.ApproveLibraryVersion(ctx, v.ID, adminActor); err != nil {
			t.Fatalf("approve version: %v", err)
		}
	}
	return v
}

// seedLibrary creates a boat model, catalog and CE template, each with one
// approved version.
func seedLibrary(t *testing.T, svc *Service) libraryFixture {
	t.Helper()
	var f libraryFixture
	f.boatModel = mustEntity(t, svc, domain.LibraryBoatModel, "EAGLE-28", "")
	f.boatModelVersion = mustVersion(t, svc, f.boatModel.ID, `{"length_m":8.5}`, true)
	f.catalog = mustEntity(t, svc, domain.LibraryCatalog, "MAIN", "")
	f.catalogVersion = mustVersion(t, svc, f.catalog.ID, `{"articles":{"ART-ENG":{"unit_cost":900000},"ART-NAV":{"unit_cost":120000}}}`, true)
	f.template = mustEntity(t, svc, domain.LibraryDocumentTemplate, "CE-DOC", domain.DocumentCEDeclaration)
	f.templateVersion = mustVersion(t, svc, f.template.ID, `{"body":"CE"}`, true)
	return f
}

func sampleConfiguration() Configuration {
	return Configuration{
		Items: []domain.ConfigItem{
			{Code: "HULL", Description: "Hull EAGLE 28", Quantity: 1, UnitPrice: 8_000_000, BOMRelevant: true},
			{Code: "ENG", Description: "Electric engine 20kW", ArticleID: "ART-ENG", Quantity: 1, UnitPrice: 1_500_000, BOMRelevant: true},
			{Code: "NAV", Description: "Navigation lights", ArticleID: "ART-NAV", Quantity: 2, UnitPrice: 150_000, BOMRelevant: true},
			{Code: "DELIVERY", Description: "Delivery", Quantity: 1, UnitPrice: 50_000},
		},
		Scope: map[string]string{"color": "white"},
	}
}

// newProject creates a DRAFT project referencing lib with one draft quote.
func newProject(t *testing.T, svc *Service, lib libraryFixture) Project {
	t.Helper()
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, CreateProjectRequest{
		Title:         "Eagle 28 for Jansen",
		Type:          domain.ProjectTypeNewBuild,
		Library:       lib.refs(),
		Configuration: sampleConfiguration(),
	}, salesActor)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := svc.CreateQuoteVersion(ctx, QuoteRequest{ProjectID: p.ID}, salesActor); err != nil {
		t.Fatalf("create quote: %v", err)
	}
	return mustProject(t, svc, p.ID)
}

func mustProject(t *testing.T, svc *Service, id string) Project {
	t.Helper()
	p, err := svc.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("get project %s: %v", id, err)
	}
	return p
}

func mustTransition(t *testing.T, svc *Service, id string, target ProjectStatus, actor Actor) Project {
	t.Helper()
	p, err := svc.Transition(context.Background(), TransitionRequest{ProjectID: id, Target: target, Actor: actor})
	if err != nil {
		t.Fatalf("transition to %s: %v", target, err)
	}
	return p
}

// advanceTo walks the project forward until it reaches target.
func advanceTo(t *testing.T, svc *Service, id string, target ProjectStatus) Project {
	t.Helper()
	p := mustProject(t, svc, id)
	for p.Status != target {
		next, ok := p.Status.Next()
		if !ok {
			t.Fatalf("cannot advance past %s", p.Status)
		}
		p = mustTransition(t, svc, id, next, managerActor)
	}
	return p
}

func auditKinds(t *testing.T, svc *Service, entity domain.EntityType, id string) []domain.AuditKind {
	t.Helper()
	entries, err := svc.AuditForEntity(context.Background(), entity, id)
	if err != nil {
		t.Fatalf("audit for %s: %v", id, err)
	}
	kinds := make([]domain.AuditKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func countKind(kinds []domain.AuditKind, kind domain.AuditKind) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func expectKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
	if !errors.Is(err, &domain.Error{Kind: kind}) {
		t.Fatalf("errors.Is does not match %s for %v", kind, err)
	}
}

func mustChangePayload[T any](t *testing.T, value T) domain.ChangePayload {
	t.Helper()
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		t.Fatalf("build change payload: %v", err)
	}
	return payload
}
