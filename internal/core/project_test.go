package core

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"navisol/pkg/domain"
)

func TestCreateProjectValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)

	cases := []struct {
		name string
		req  CreateProjectRequest
	}{
		{"missing title", CreateProjectRequest{Title: " "}},
		{"unknown type", CreateProjectRequest{Title: "x", Type: "RENTAL"}},
		{"unknown client", CreateProjectRequest{Title: "x", ClientID: "nope"}},
		{"catalog as boat model", CreateProjectRequest{Title: "x", Library: domain.LibraryRefs{BoatModelID: lib.catalog.ID}}},
		{"duplicate item", CreateProjectRequest{Title: "x", Configuration: Configuration{Items: []domain.ConfigItem{
			{Code: "A", Quantity: 1}, {Code: "A", Quantity: 1},
		}}}},
		{"negative price", CreateProjectRequest{Title: "x", Configuration: Configuration{Items: []domain.ConfigItem{
			{Code: "A", Quantity: 1, UnitPrice: -1},
		}}}},
		{"duplicate checklist", CreateProjectRequest{Title: "x", Checklist: []domain.ChecklistItem{{Key: "k"}, {Key: "k"}}}},
	}
	for _, tc := range cases {
		_, err := svc.CreateProject(ctx, tc.req, salesActor)
		if domain.KindOf(err) != domain.KindValidation {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
	_, err := svc.CreateProject(ctx, CreateProjectRequest{Title: "x"}, productionActor)
	expectKind(t, err, domain.KindAuthorization)
	if projects, _ := svc.ListProjects(ctx, ProjectQuery{IncludeArchived: true}); len(projects) != 0 {
		t.Fatalf("rejected creates must not persist projects")
	}
}

func TestProjectNumbersAndListing(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	client, err := svc.CreateClient(ctx, ClientRequest{Name: "Jansen Marine", Email: "info@jansen.nl", Country: "NL"}, salesActor)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	a := newProject(t, svc, lib)
	b, err := svc.CreateProject(ctx, CreateProjectRequest{Title: "Refit", Type: domain.ProjectTypeRefit, ClientID: client.ID}, salesActor)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if a.Number != 1 || b.Number != 2 {
		t.Fatalf("expected sequential numbers, got %d and %d", a.Number, b.Number)
	}
	if a.Version != 2 || b.Version != 1 {
		t.Fatalf("unexpected versions %d and %d", a.Version, b.Version)
	}

	advanceTo(t, svc, a.ID, domain.StatusQuoted)
	quoted, _ := svc.ListProjects(ctx, ProjectQuery{Status: domain.StatusQuoted})
	if len(quoted) != 1 || quoted[0].ID != a.ID {
		t.Fatalf("unexpected status filter result %+v", quoted)
	}
	forClient, _ := svc.ListProjects(ctx, ProjectQuery{ClientID: client.ID})
	if len(forClient) != 1 || forClient[0].ID != b.ID {
		t.Fatalf("unexpected client filter result %+v", forClient)
	}

	if _, err := svc.ArchiveProject(ctx, b.ID, "customer withdrew", salesActor); err == nil {
		t.Fatalf("sales must not archive projects")
	}
	archived, err := svc.ArchiveProject(ctx, b.ID, "customer withdrew", managerActor)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived.Archived() || archived.ArchiveReason != "customer withdrew" {
		t.Fatalf("unexpected archived project %+v", archived)
	}
	active, _ := svc.ListProjects(ctx, ProjectQuery{})
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("archived project must be hidden by default, got %d", len(active))
	}
	all, _ := svc.ListProjects(ctx, ProjectQuery{IncludeArchived: true})
	if len(all) != 2 || all[0].Number != 1 {
		t.Fatalf("expected both projects ordered by number, got %+v", all)
	}
	_, err = svc.ArchiveProject(ctx, b.ID, "again", managerActor)
	expectKind(t, err, domain.KindInvalidTransition)
	_, err = svc.GetProject(ctx, "missing")
	expectKind(t, err, domain.KindNotFound)
}

func TestUpdateConfigurationLockedAfterFreeze(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)

	cfg := sampleConfiguration()
	cfg.Scope["color"] = "blue"
	updated, err := svc.UpdateConfiguration(ctx, p.ID, cfg, p.Version, salesActor)
	if err != nil {
		t.Fatalf("update draft configuration: %v", err)
	}
	if updated.Configuration.Scope["color"] != "blue" {
		t.Fatalf("configuration not updated")
	}
	_, err = svc.UpdateConfiguration(ctx, p.ID, cfg, p.Version, salesActor)
	expectKind(t, err, domain.KindConcurrencyConflict)

	p = advanceTo(t, svc, p.ID, domain.StatusOrderConfirmed)
	cfg.Scope["color"] = "red"
	_, err = svc.UpdateConfiguration(ctx, p.ID, cfg, 0, salesActor)
	expectKind(t, err, domain.KindLocked)

	if _, err := svc.EmergencyUnlock(ctx, p.ID, "wrong hull color", adminActor); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	edited, err := svc.UpdateConfiguration(ctx, p.ID, cfg, 0, salesActor)
	if err != nil {
		t.Fatalf("update under unlock: %v", err)
	}
	if edited.EmergencyUnlock != nil || edited.Configuration.Scope["color"] != "red" {
		t.Fatalf("unexpected project after unlock edit")
	}
	if got := edited.ConfigurationSnapshots[0].Configuration.Scope["color"]; got != "blue" {
		t.Fatalf("order snapshot must keep the confirmed color, got %q", got)
	}
	snap, _ := edited.LatestSnapshot()
	if !snap.Emergency() || snap.Configuration.Scope["color"] != "red" {
		t.Fatalf("expected an emergency snapshot of the edit, got %+v", snap)
	}
}

func TestQuoteVersions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)

	first := p.Quotes[0]
	if first.Version != 1 || first.Status != domain.QuoteDraft || first.Total != sampleConfiguration().Total() {
		t.Fatalf("unexpected derived first quote %+v", first)
	}
	second, err := svc.CreateQuoteVersion(ctx, QuoteRequest{ProjectID: p.ID, Notes: "discounted"}, salesActor)
	if err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if second.Version != 2 || second.Total != first.Total {
		t.Fatalf("expected copied lines, got %+v", second)
	}
	p = mustProject(t, svc, p.ID)
	if p.Quotes[0].Status != domain.QuoteSuperseded {
		t.Fatalf("earlier draft must be superseded, got %s", p.Quotes[0].Status)
	}
	_, err = svc.CreateQuoteVersion(ctx, QuoteRequest{ProjectID: p.ID, Lines: []QuoteLine{{Description: "", Quantity: 1}}}, salesActor)
	expectKind(t, err, domain.KindValidation)

	edited, err := svc.UpdateQuoteLines(ctx, p.ID, second.ID, []QuoteLine{{Description: "Boat", Quantity: 1, UnitPrice: 9_000_000}}, 0, salesActor)
	if err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if edited.Total != 9_000_000 {
		t.Fatalf("expected recomputed total, got %d", edited.Total)
	}
	_, err = svc.UpdateQuoteLines(ctx, p.ID, first.ID, edited.Lines, 0, salesActor)
	expectKind(t, err, domain.KindInvalidState)

	p = advanceTo(t, svc, p.ID, domain.StatusOfferSent)
	revised, err := svc.CreateQuoteVersion(ctx, QuoteRequest{ProjectID: p.ID, Lines: []QuoteLine{{Description: "Boat", Quantity: 1, UnitPrice: 8_800_000}}}, salesActor)
	if err != nil {
		t.Fatalf("revised offer: %v", err)
	}
	if revised.Status != domain.QuoteSent || revised.Document == nil {
		t.Fatalf("revised offer must be issued immediately, got %+v", revised)
	}
	p = mustProject(t, svc, p.ID)
	if p.Quotes[1].Status != domain.QuoteSuperseded || p.ActiveQuoteIndex() != 2 {
		t.Fatalf("expected v2 superseded and v3 active, got %s / %d", p.Quotes[1].Status, p.ActiveQuoteIndex())
	}

	p = advanceTo(t, svc, p.ID, domain.StatusOrderConfirmed)
	if p.Quotes[2].Status != domain.QuoteAccepted {
		t.Fatalf("expected v3 accepted, got %s", p.Quotes[2].Status)
	}
	_, err = svc.CreateQuoteVersion(ctx, QuoteRequest{ProjectID: p.ID}, managerActor)
	expectKind(t, err, domain.KindInvalidState)
	_, err = svc.RejectQuote(ctx, p.ID, p.Quotes[2].ID, managerActor)
	expectKind(t, err, domain.KindInvalidState)
}

func TestRejectQuote(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)
	p = advanceTo(t, svc, p.ID, domain.StatusOfferSent)

	q, err := svc.RejectQuote(ctx, p.ID, p.Quotes[0].ID, salesActor)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if q.Status != domain.QuoteRejected {
		t.Fatalf("expected rejected, got %s", q.Status)
	}
	_, err = svc.Transition(ctx, TransitionRequest{ProjectID: p.ID, Target: domain.StatusOrderConfirmed, Actor: managerActor})
	if domain.KindOf(err) != domain.KindIncompleteMilestonePrecondition {
		t.Fatalf("expected missing sent quote to block the order, got %v", err)
	}
	_, err = svc.RejectQuote(ctx, p.ID, "missing", salesActor)
	expectKind(t, err, domain.KindNotFound)
}

func TestComplianceDocuments(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)
	p = advanceTo(t, svc, p.ID, domain.StatusOrderConfirmed)

	doc, err := svc.AddComplianceDocument(ctx, DocumentRequest{ProjectID: p.ID, Type: domain.DocumentCEDeclaration}, salesActor)
	if err != nil {
		t.Fatalf("add document: %v", err)
	}
	if doc.TemplateVersionID != lib.templateVersion.ID || doc.Status != domain.DocumentStatusDraft || doc.Title != "CE_DECLARATION" {
		t.Fatalf("unexpected document %+v", doc)
	}
	_, err = svc.AddComplianceDocument(ctx, DocumentRequest{ProjectID: p.ID}, salesActor)
	expectKind(t, err, domain.KindValidation)
	_, err = svc.AddComplianceDocument(ctx, DocumentRequest{ProjectID: p.ID, Type: domain.DocumentOwnerManual, TemplateVersionID: "missing"}, salesActor)
	expectKind(t, err, domain.KindNotFound)

	final, err := svc.FinalizeDocument(ctx, p.ID, doc.ID, salesActor)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if final.Status != domain.DocumentStatusFinal || final.Document == nil || final.FinalizedBy != salesActor.ID {
		t.Fatalf("unexpected finalized document %+v", final)
	}
	info, rc, err := svc.Blobs().Get(ctx, final.Document.Key)
	if err != nil {
		t.Fatalf("get rendered document: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	var rendered map[string]any
	if err := json.Unmarshal(body, &rendered); err != nil || rendered["project_id"] != p.ID {
		t.Fatalf("unexpected rendered document %s (%v)", body, err)
	}
	if info.Size != final.Document.Size {
		t.Fatalf("size mismatch %d != %d", info.Size, final.Document.Size)
	}
	_, err = svc.FinalizeDocument(ctx, p.ID, doc.ID, salesActor)
	expectKind(t, err, domain.KindInvalidState)
	_, err = svc.FinalizeDocument(ctx, p.ID, "missing", salesActor)
	expectKind(t, err, domain.KindNotFound)
}

func TestChecklistItems(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)

	item, err := svc.SetChecklistItem(ctx, p.ID, "sea-trial", "Sea trial", true, productionActor)
	if err != nil {
		t.Fatalf("set item: %v", err)
	}
	if !item.Done || item.DoneBy != productionActor.ID || item.DoneAt == nil {
		t.Fatalf("unexpected item %+v", item)
	}
	item, err = svc.SetChecklistItem(ctx, p.ID, "sea-trial", "", false, productionActor)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if item.Done || item.DoneAt != nil || item.Label != "Sea trial" {
		t.Fatalf("unexpected reopened item %+v", item)
	}
	_, err = svc.SetChecklistItem(ctx, p.ID, " ", "", true, productionActor)
	expectKind(t, err, domain.KindValidation)
	_, err = svc.SetChecklistItem(ctx, p.ID, "x", "", true, viewerActor)
	expectKind(t, err, domain.KindAuthorization)
	if got := len(mustProject(t, svc, p.ID).Checklist); got != 1 {
		t.Fatalf("expected one checklist item, got %d", got)
	}
}

func TestManualFreezeAndPin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)

	pins, err := svc.PinLibraryVersions(ctx, p.ID, salesActor)
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	if pins.BoatModelVersionID != lib.boatModelVersion.ID || pins.TemplateVersionIDs[domain.DocumentCEDeclaration] != lib.templateVersion.ID {
		t.Fatalf("unexpected pins %+v", pins)
	}
	_, err = svc.PinLibraryVersions(ctx, p.ID, salesActor)
	expectKind(t, err, domain.KindInvalidState)

	snap, err := svc.FreezeConfiguration(ctx, p.ID, salesActor)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if snap.Reason != "MANUAL" || snap.PinsID != pins.ID || snap.Sequence != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	_, err = svc.Transition(ctx, TransitionRequest{ProjectID: p.ID, Target: domain.StatusQuoted, Actor: managerActor})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	advanceTo(t, svc, p.ID, domain.StatusOfferSent)
	_, err = svc.Transition(ctx, TransitionRequest{ProjectID: p.ID, Target: domain.StatusOrderConfirmed, Actor: managerActor})
	if domain.KindOf(err) != domain.KindInvalidState {
		t.Fatalf("expected pinned project to reject re-pinning on order, got %v", err)
	}
}

func TestClients(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.CreateClient(ctx, ClientRequest{Name: ""}, salesActor)
	expectKind(t, err, domain.KindValidation)
	_, err = svc.CreateClient(ctx, ClientRequest{Name: "X", Email: "not-an-address"}, salesActor)
	expectKind(t, err, domain.KindValidation)

	b, err := svc.CreateClient(ctx, ClientRequest{Name: "Bakker"}, salesActor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	a, err := svc.CreateClient(ctx, ClientRequest{Name: "Albers"}, salesActor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := svc.UpdateClient(ctx, b.ID, ClientRequest{Name: "Bakker BV", Country: "NL"}, salesActor)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Bakker BV" || updated.Country != "NL" {
		t.Fatalf("unexpected client %+v", updated)
	}
	clients, _ := svc.ListClients(ctx)
	if len(clients) != 2 || clients[0].ID != a.ID {
		t.Fatalf("expected clients sorted by name, got %+v", clients)
	}

	_, err = svc.ArchiveClient(ctx, a.ID, salesActor)
	expectKind(t, err, domain.KindAuthorization)
	if _, err := svc.ArchiveClient(ctx, a.ID, managerActor); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_, err = svc.UpdateClient(ctx, a.ID, ClientRequest{Name: "Albers"}, salesActor)
	expectKind(t, err, domain.KindInvalidState)
	_, err = svc.CreateProject(ctx, CreateProjectRequest{Title: "x", ClientID: a.ID}, salesActor)
	expectKind(t, err, domain.KindValidation)
	if clients, _ := svc.ListClients(ctx); len(clients) != 1 {
		t.Fatalf("archived clients must be hidden, got %d", len(clients))
	}
}
