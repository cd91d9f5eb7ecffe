package core

import (
	"context"
	"fmt"

	"navisol/pkg/domain"
)

const projectHistoryRuleName = "project_history"

// ProjectHistoryRule blocks writes that rewrite a project's frozen history:
// snapshots, BOM snapshots, pin records and decided amendments are append
// only, applied amendments form an unbroken chain, pins are set once, the status only moves to its immediate successor
// and every write bumps the version by one.
func ProjectHistoryRule() domain.Rule {
	return projectHistoryRule{}
}

type projectHistoryRule struct{}

func (projectHistoryRule) Name() string { return projectHistoryRuleName }

func (projectHistoryRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Namespace != domain.NamespaceProjects {
			continue
		}
		violate := func(format string, args ...any) {
			res.Violations = append(res.Violations, block(projectHistoryRuleName, domain.EntityProject, change.ID, fmt.Sprintf(format, args...)))
		}
		if change.Action == domain.ActionDelete {
			violate("project %s cannot be deleted; archive it instead", change.ID)
			continue
		}
		after, ok := decodeChange[Project](change.After)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			violate("project %s has invalid status %q", change.ID, after.Status)
			continue
		}
		before, ok := decodeChange[Project](change.Before)
		if !ok {
			if after.Status != domain.StatusDraft {
				violate("project %s must be created in %s, got %s", change.ID, domain.StatusDraft, after.Status)
			}
			continue
		}
		if after.Status != before.Status {
			if next, ok := before.Status.Next(); !ok || next != after.Status {
				violate("project %s cannot move from %s to %s", change.ID, before.Status, after.Status)
			}
		}
		if after.Version != before.Version+1 {
			violate("project %s version must advance from %d to %d, got %d", change.ID, before.Version, before.Version+1, after.Version)
		}
		if !appendOnly(before.ConfigurationSnapshots, after.ConfigurationSnapshots) {
			violate("project %s configuration snapshots are append-only", change.ID)
		}
		if !appendOnly(before.BOMSnapshots, after.BOMSnapshots) {
			violate("project %s BOM snapshots are append-only", change.ID)
		}
		if !appendOnly(before.PinHistory, after.PinHistory) {
			violate("project %s pin history is append-only", change.ID)
		}
		if before.LibraryPins != nil && !sameJSON(before.LibraryPins, after.LibraryPins) {
			violate("project %s library pins are set once", change.ID)
		}
		if msg := amendmentHistoryProblem(before.Amendments, after.Amendments); msg != "" {
			violate("project %s %s", change.ID, msg)
		}
		if msg := after.AmendmentChainProblem(); msg != "" {
			violate("project %s: %s", change.ID, msg)
		}
		if before.Archived() && !sameJSON(before.ArchivedAt, after.ArchivedAt) {
			violate("project %s is archived", change.ID)
		}
	}
	return res, nil
}

// appendOnly reports whether after keeps every element of before unchanged
// and in place.
func appendOnly[T any](before, after []T) bool {
	if len(after) < len(before) {
		return false
	}
	for i := range before {
		if !sameJSON(before[i], after[i]) {
			return false
		}
	}
	return true
}

func amendmentHistoryProblem(before, after []Amendment) string {
	if len(after) < len(before) {
		return "amendments cannot be removed"
	}
	for i, prev := range before {
		next := after[i]
		if prev.Status != domain.AmendmentPending {
			if !sameJSON(prev, next) {
				return fmt.Sprintf("%s is %s and immutable", prev.Label(), prev.Status)
			}
			continue
		}
		if next.ID != prev.ID || next.Number != prev.Number || next.BeforeSnapshotID != prev.BeforeSnapshotID || !sameJSON(prev.Delta, next.Delta) {
			return fmt.Sprintf("%s request cannot be rewritten", prev.Label())
		}
	}
	for i := len(before); i < len(after); i++ {
		if after[i].Number != i+1 {
			return fmt.Sprintf("amendment at position %d must be numbered %d", i+1, i+1)
		}
	}
	return ""
}
