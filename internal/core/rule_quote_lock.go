package core

import (
	"context"
	"fmt"

	"navisol/pkg/domain"
)

const quoteLockRuleName = "quote_lock"

// QuoteLockRule enforces at most one SENT or ACCEPTED quote per project and
// keeps sent quotes unchanged unless the write consumes an emergency unlock.
func QuoteLockRule() domain.Rule {
	return quoteLockRule{}
}

type quoteLockRule struct{}

func (quoteLockRule) Name() string { return quoteLockRuleName }

func (quoteLockRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Namespace != domain.NamespaceProjects || change.Action == domain.ActionDelete {
			continue
		}
		after, ok := decodeChange[Project](change.After)
		if !ok {
			continue
		}
		active := 0
		for _, q := range after.Quotes {
			if q.Status.Active() {
				active++
			}
		}
		if active > 1 {
			res.Violations = append(res.Violations, block(quoteLockRuleName, domain.EntityProject, change.ID,
				fmt.Sprintf("project %s has %d active quotes", change.ID, active)))
		}
		before, ok := decodeChange[Project](change.Before)
		if !ok {
			continue
		}
		unlocked := before.EmergencyUnlock != nil && after.EmergencyUnlock == nil
		for _, prev := range before.Quotes {
			if !prev.Status.Active() {
				continue
			}
			idx := after.FindQuote(prev.ID)
			if idx < 0 {
				res.Violations = append(res.Violations, block(quoteLockRuleName, domain.EntityQuote, prev.ID,
					fmt.Sprintf("locked quote %s was removed", prev.Label())))
				continue
			}
			next := after.Quotes[idx]
			if prev.Status == domain.QuoteAccepted && next.Status != domain.QuoteAccepted {
				res.Violations = append(res.Violations, block(quoteLockRuleName, domain.EntityQuote, prev.ID,
					fmt.Sprintf("accepted quote %s cannot become %s", prev.Label(), next.Status)))
			}
			if !unlocked && (!sameJSON(prev.Lines, next.Lines) || prev.Total != next.Total) {
				res.Violations = append(res.Violations, block(quoteLockRuleName, domain.EntityQuote, prev.ID,
					fmt.Sprintf("quote %s is %s and locked", prev.Label(), prev.Status)))
			}
		}
	}
	return res, nil
}
