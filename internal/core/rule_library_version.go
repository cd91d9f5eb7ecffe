package core

import (
	"context"
	"fmt"

	"navisol/pkg/domain"
)

const libraryVersionRuleName = "library_version_immutability"

// LibraryVersionImmutabilityRule keeps approved library versions immutable,
// allows only APPROVED -> DEPRECATED afterwards, forbids deleting versions and
// requires an entity's current version to be an approved version of itself.
func LibraryVersionImmutabilityRule() domain.Rule {
	return libraryVersionRule{}
}

type libraryVersionRule struct{}

func (libraryVersionRule) Name() string { return libraryVersionRuleName }

func (libraryVersionRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Namespace {
		case domain.NamespaceLibraryVersions:
			if msg := versionChangeProblem(change); msg != "" {
				res.Violations = append(res.Violations, block(libraryVersionRuleName, domain.EntityLibraryVersion, change.ID, msg))
			}
		case domain.NamespaceLibraryEntities:
			if change.Action == domain.ActionDelete {
				res.Violations = append(res.Violations, block(libraryVersionRuleName, domain.EntityLibraryEntity, change.ID,
					fmt.Sprintf("library entity %s cannot be deleted", change.ID)))
				continue
			}
			entity, ok := decodeChange[LibraryEntity](change.After)
			if !ok || entity.CurrentVersionID == "" {
				continue
			}
			version, found, err := load[LibraryVersion](view, domain.NamespaceLibraryVersions, entity.CurrentVersionID)
			if err != nil {
				return domain.Result{}, err
			}
			if !found || version.EntityID != entity.ID || version.Status != domain.VersionApproved {
				res.Violations = append(res.Violations, block(libraryVersionRuleName, domain.EntityLibraryEntity, change.ID,
					fmt.Sprintf("current version %s of %s %s is not an approved version of it", entity.CurrentVersionID, entity.Kind, entity.Key)))
			}
		}
	}
	return res, nil
}

func versionChangeProblem(change domain.Change) string {
	if change.Action == domain.ActionDelete {
		return fmt.Sprintf("library version %s cannot be deleted", change.ID)
	}
	after, ok := decodeChange[LibraryVersion](change.After)
	if !ok {
		return ""
	}
	before, ok := decodeChange[LibraryVersion](change.Before)
	if !ok {
		if after.Status != domain.VersionDraft {
			return fmt.Sprintf("library version %s must be created as %s", change.ID, domain.VersionDraft)
		}
		return ""
	}
	switch before.Status {
	case domain.VersionDraft:
		if after.Status != domain.VersionDraft && after.Status != domain.VersionApproved {
			return fmt.Sprintf("draft version %s cannot become %s", before.Label, after.Status)
		}
		if before.Label != after.Label || before.EntityID != after.EntityID {
			return fmt.Sprintf("version %s cannot be relabelled or moved", before.Label)
		}
	case domain.VersionApproved, domain.VersionDeprecated:
		if after.Status != domain.VersionDeprecated && after.Status != before.Status {
			return fmt.Sprintf("%s version %s cannot become %s", before.Status, before.Label, after.Status)
		}
		if before.Status == domain.VersionDeprecated && after.Status != domain.VersionDeprecated {
			return fmt.Sprintf("deprecated version %s cannot be revived", before.Label)
		}
		if before.Label != after.Label || before.EntityID != after.EntityID || !sameJSON(before.Payload, after.Payload) {
			return fmt.Sprintf("approved version %s is immutable", before.Label)
		}
	}
	return ""
}
