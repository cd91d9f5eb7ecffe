package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRuleViolationErrorNamesFirstBlockingRule(t *testing.T) {
	cases := []struct {
		name       string
		violations []Violation
		blocking   bool
		message    string
	}{
		{"empty", nil, false, "transaction blocked by rules"},
		{"warn only", []Violation{{Rule: "quote_total", Severity: SeverityWarn}}, false, "transaction blocked by rules"},
		{"first block wins", []Violation{
			{Rule: "quote_total", Severity: SeverityWarn, Message: "rounded"},
			{Rule: "frozen_configuration", Severity: SeverityBlock, Message: "snapshot is immutable"},
			{Rule: "pins_immutable", Severity: SeverityBlock, Message: "pins are frozen"},
		}, true, "frozen_configuration: snapshot is immutable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var res Result
			res.Merge(Result{Violations: tc.violations})
			if res.HasBlocking() != tc.blocking {
				t.Fatalf("HasBlocking = %v, want %v", res.HasBlocking(), tc.blocking)
			}
			if msg := (RuleViolationError{Result: res}).Error(); !strings.HasSuffix(msg, tc.message) {
				t.Fatalf("message %q does not end with %q", msg, tc.message)
			}
		})
	}
}

func TestRulesEngineRunsRulesInOrder(t *testing.T) {
	var calls []string
	engine := NewRulesEngine()
	for _, name := range []string{"first", "second"} {
		engine.Register(recordingRule{name: name, calls: &calls})
	}
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if strings.Join(calls, ",") != "first,second" || len(res.Violations) != 2 {
		t.Fatalf("expected both rules in order, calls=%v violations=%+v", calls, res.Violations)
	}
	if got := engine.Rules(); len(got) != 2 || got[0].Name() != "first" {
		t.Fatalf("unexpected registered rules %v", got)
	}
}

func TestRulesEngineStopsOnRuleError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	engine := NewRulesEngine()
	engine.Register(recordingRule{name: "broken", calls: &calls, err: boom})
	engine.Register(recordingRule{name: "after", calls: &calls})
	_, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "rule broken") {
		t.Fatalf("expected wrapped rule error, got %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected evaluation to stop after the failing rule, calls=%v", calls)
	}
}

type recordingRule struct {
	name  string
	calls *[]string
	err   error
}

func (r recordingRule) Name() string { return r.name }

func (r recordingRule) Evaluate(context.Context, TransactionView, []Change) (Result, error) {
	*r.calls = append(*r.calls, r.name)
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type emptyView struct{}

func (emptyView) GetByID(Namespace, string) (json.RawMessage, bool) { return nil, false }
func (emptyView) GetAll(Namespace) []Record                         { return nil }
func (emptyView) Query(Namespace, Filter) []Record                  { return nil }
