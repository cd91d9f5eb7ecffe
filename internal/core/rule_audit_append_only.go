package core

import (
	"context"
	"fmt"

	"navisol/pkg/domain"
)

const auditAppendOnlyRuleName = "audit_append_only"

// AuditAppendOnlyRule blocks updates and deletes of audit entries.
func AuditAppendOnlyRule() domain.Rule {
	return auditAppendOnlyRule{}
}

type auditAppendOnlyRule struct{}

func (auditAppendOnlyRule) Name() string { return auditAppendOnlyRuleName }

func (auditAppendOnlyRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Namespace != domain.NamespaceAudit || change.Action == domain.ActionCreate {
			continue
		}
		res.Violations = append(res.Violations, block(auditAppendOnlyRuleName, domain.EntityAuditEntry, change.ID,
			fmt.Sprintf("audit entry %s is write-once (%s rejected)", change.ID, change.Action)))
	}
	return res, nil
}
