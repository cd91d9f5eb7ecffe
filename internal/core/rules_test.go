package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"navisol/pkg/domain"
)

// tamper rewrites a stored record behind the service's back and returns the
// store error.
func tamper[T any](t *testing.T, svc *Service, ns domain.Namespace, id string, edit func(*T)) error {
	t.Helper()
	_, err := svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		raw, ok := tx.GetByID(ns, id)
		if !ok {
			t.Fatalf("record %s/%s not found", ns, id)
		}
		v, err := domain.Decode[T](raw)
		if err != nil {
			return err
		}
		edit(&v)
		payload, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Save(ns, id, payload)
	})
	return err
}

func expectBlockedBy(t *testing.T, err error, rule string) {
	t.Helper()
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	for _, v := range violation.Result.Violations {
		if v.Rule == rule && v.Severity == SeverityBlock {
			return
		}
	}
	t.Fatalf("expected %s violation, got %+v", rule, violation.Result.Violations)
}

func TestDefaultRulesEngineRegistersInvariants(t *testing.T) {
	names := map[string]bool{}
	for _, r := range NewDefaultRulesEngine().Rules() {
		names[r.Name()] = true
	}
	for _, want := range []string{projectHistoryRuleName, quoteLockRuleName, libraryVersionRuleName, auditAppendOnlyRuleName} {
		if !names[want] {
			t.Fatalf("missing rule %s", want)
		}
	}
}

func TestFrozenSnapshotsCannotBeRewritten(t *testing.T) {
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)
	p = advanceTo(t, svc, p.ID, domain.StatusOrderConfirmed)

	err := tamper(t, svc, domain.NamespaceProjects, p.ID, func(p *Project) {
		p.ConfigurationSnapshots[0].Configuration.Items[0].UnitPrice = 1
		p.Version++
	})
	expectBlockedBy(t, err, projectHistoryRuleName)

	err = tamper(t, svc, domain.NamespaceProjects, p.ID, func(p *Project) {
		p.LibraryPins.CatalogVersionID = "other"
		p.Version++
	})
	expectBlockedBy(t, err, projectHistoryRuleName)

	err = tamper(t, svc, domain.NamespaceProjects, p.ID, func(p *Project) {
		p.BOMSnapshots = nil
		p.Version++
	})
	expectBlockedBy(t, err, projectHistoryRuleName)

	if got := mustProject(t, svc, p.ID); !sameJSON(got, p) {
		t.Fatalf("blocked writes must leave the project untouched")
	}
}

func TestProjectStatusAndVersionGuarded(t *testing.T) {
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)

	err := tamper(t, svc, domain.NamespaceProjects, p.ID, func(p *Project) {
		p.Status = domain.StatusOrderConfirmed
		p.Version++
	})
	expectBlockedBy(t, err, projectHistoryRuleName)

	err = tamper(t, svc, domain.NamespaceProjects, p.ID, func(p *Project) { p.Title = "no version bump" })
	expectBlockedBy(t, err, projectHistoryRuleName)

	_, err = svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.Delete(domain.NamespaceProjects, p.ID)
	})
	expectBlockedBy(t, err, projectHistoryRuleName)
}

func TestSentQuoteLockedAtStoreLevel(t *testing.T) {
	svc := newTestService(t)
	lib := seedLibrary(t, svc)
	p := newProject(t, svc, lib)
	p = advanceTo(t, svc, p.ID, domain.StatusOfferSent)

	err := tamper(t, svc, domain.NamespaceProjects, p.ID, func(p *Project) {
		p.Quotes[0].Lines[0].UnitPrice = 1
		p.Quotes[0].Total = domain.SumLines(p.Quotes[0].Lines)
		p.Version++
	})
	expectBlockedBy(t, err, quoteLockRuleName)

	err = tamper(t, svc, domain.NamespaceProjects, p.ID, func(p *Project) {
		extra := p.Quotes[0]
		extra.ID = "second-active"
		extra.Version = 2
		p.Quotes = append(p.Quotes, extra)
		p.Version++
	})
	expectBlockedBy(t, err, quoteLockRuleName)
}

func TestApprovedLibraryVersionImmutable(t *testing.T) {
	svc := newTestService(t)
	lib := seedLibrary(t, svc)

	err := tamper(t, svc, domain.NamespaceLibraryVersions, lib.catalogVersion.ID, func(v *LibraryVersion) {
		v.Payload = json.RawMessage(`{"articles":{}}`)
	})
	expectBlockedBy(t, err, libraryVersionRuleName)

	err = tamper(t, svc, domain.NamespaceLibraryVersions, lib.catalogVersion.ID, func(v *LibraryVersion) {
		v.Status = domain.VersionDraft
	})
	expectBlockedBy(t, err, libraryVersionRuleName)

	draft := mustVersion(t, svc, lib.catalog.ID, `{}`, false)
	err = tamper(t, svc, domain.NamespaceLibraryEntities, lib.catalog.ID, func(e *LibraryEntity) {
		e.CurrentVersionID = draft.ID
	})
	expectBlockedBy(t, err, libraryVersionRuleName)

	_, err = svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.Delete(domain.NamespaceLibraryVersions, draft.ID)
	})
	expectBlockedBy(t, err, libraryVersionRuleName)
}

func TestAuditEntriesAreAppendOnly(t *testing.T) {
	svc := newTestService(t)
	seedLibrary(t, svc)
	recent, err := svc.RecentAudit(context.Background(), 1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("recent audit: %v (%d)", err, len(recent))
	}
	id := recent[0].ID

	err = tamper(t, svc, domain.NamespaceAudit, id, func(e *AuditEntry) { e.Description = "rewritten" })
	expectBlockedBy(t, err, auditAppendOnlyRuleName)

	_, err = svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.Delete(domain.NamespaceAudit, id)
	})
	expectBlockedBy(t, err, auditAppendOnlyRuleName)
}

func TestAmendmentHistoryRule(t *testing.T) {
	approved := Amendment{ID: "a1", Number: 1, Status: domain.AmendmentApproved, BeforeSnapshotID: "s1", AfterSnapshotID: "s2"}
	pending := Amendment{ID: "a2", Number: 2, Status: domain.AmendmentPending, BeforeSnapshotID: "s2"}

	cases := []struct {
		name   string
		before []Amendment
		after  []Amendment
		want   string
	}{
		{"append", []Amendment{approved}, []Amendment{approved, pending}, ""},
		{"decide pending", []Amendment{approved, pending}, []Amendment{approved, func() Amendment {
			a := pending
			a.Status = domain.AmendmentRejected
			return a
		}()}, ""},
		{"rewrite decided", []Amendment{approved}, []Amendment{func() Amendment {
			a := approved
			a.PriceImpact = 10
			return a
		}()}, "immutable"},
		{"drop entry", []Amendment{approved, pending}, []Amendment{approved}, "removed"},
		{"skip number", nil, []Amendment{{ID: "a9", Number: 9, Status: domain.AmendmentPending}}, "numbered"},
		{"move pending base", []Amendment{pending}, []Amendment{func() Amendment {
			a := pending
			a.BeforeSnapshotID = "s9"
			return a
		}()}, "cannot be rewritten"},
	}
	for _, tc := range cases {
		got := amendmentHistoryProblem(tc.before, tc.after)
		if tc.want == "" && got != "" {
			t.Errorf("%s: unexpected problem %q", tc.name, got)
		}
		if tc.want != "" && !strings.Contains(got, tc.want) {
			t.Errorf("%s: expected problem mentioning %q, got %q", tc.name, tc.want, got)
		}
	}
}
