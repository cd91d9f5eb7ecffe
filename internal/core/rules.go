package core

import (
	"bytes"
	"encoding/json"

	"navisol/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(ProjectHistoryRule())
	engine.Register(QuoteLockRule())
	engine.Register(LibraryVersionImmutabilityRule())
	engine.Register(AuditAppendOnlyRule())
	return engine
}

func decodeChange[T any](p domain.ChangePayload) (T, bool) {
	v, ok, err := domain.DecodePayload[T](p)
	if err != nil {
		return v, false
	}
	return v, ok
}

func sameJSON(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}

func block(rule string, entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
	}
}
