package governance

import (
	"errors"
	"testing"

	"github.com/danielohoh/sales-ai-agent/internal/plan"
)

func TestDefaultPolicy_RejectsUnknownTable(t *testing.T) {
	p := NewDefaultPolicy()

	valueSets := []map[string]any{
		nil,
		{},
		{"stage": "won"},
		{"name": "x", "amount": 10},
	}
	for _, values := range valueSets {
		err := p.Validate([]plan.ActionStep{{Type: plan.StepInsert, Table: "users", Values: values}})
		var v *Violation
		if !errors.As(err, &v) {
			t.Fatalf("Expected Violation for values %v, got %v", values, err)
		}
		if v.Rule != RuleTable {
			t.Errorf("Expected rule %s, got %s", RuleTable, v.Rule)
		}
	}
}

func TestDefaultPolicy_EnumFields(t *testing.T) {
	p := NewDefaultPolicy()

	update := func(stage any) []plan.ActionStep {
		return []plan.ActionStep{{
			Type:   plan.StepUpdate,
			Table:  "clients",
			Values: map[string]any{"stage": stage},
			Where:  map[string]any{"id": 1},
		}}
	}

	for _, s := range Stages {
		if err := p.Validate(update(s)); err != nil {
			t.Errorf("Expected stage %q to pass, got %v", s, err)
		}
	}

	for _, s := range []string{"closed", "WON", "", "lead "} {
		err := p.Validate(update(s))
		var v *Violation
		if !errors.As(err, &v) || v.Rule != RuleValue || v.Field != "stage" {
			t.Errorf("Expected value violation for stage %q, got %v", s, err)
		}
	}

	// non-string and null values bypass the allow-list
	for _, s := range []any{nil, 3, 1.5, true} {
		if err := p.Validate(update(s)); err != nil {
			t.Errorf("Expected non-string stage %v to pass, got %v", s, err)
		}
	}

	// absent field passes
	steps := []plan.ActionStep{{Type: plan.StepInsert, Table: "activity_logs", Values: map[string]any{"content": "hi"}}}
	if err := p.Validate(steps); err != nil {
		t.Errorf("Expected absent enum field to pass, got %v", err)
	}
}

func TestDefaultPolicy_FirstViolationWins(t *testing.T) {
	p := NewDefaultPolicy()
	steps := []plan.ActionStep{
		{Type: plan.StepUpdate, Table: "clients", Values: map[string]any{"stage": "won"}, Where: map[string]any{"id": 1}},
		{Type: plan.StepInsert, Table: "activity_logs", Values: map[string]any{"activity_type": "telepathy"}},
		{Type: plan.StepInsert, Table: "secrets", Values: map[string]any{}},
	}

	err := p.Validate(steps)
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("Expected Violation, got %v", err)
	}
	if v.StepIndex != 2 || v.Rule != RuleValue {
		t.Errorf("Expected value violation at step 2, got %+v", v)
	}
}

func TestDefaultPolicy_StepShape(t *testing.T) {
	p := NewDefaultPolicy()

	err := p.Validate([]plan.ActionStep{{Type: "delete", Table: "clients"}})
	var v *Violation
	if !errors.As(err, &v) || v.Rule != RuleStepType {
		t.Errorf("Expected step type violation, got %v", err)
	}

	err = p.Validate([]plan.ActionStep{{Type: plan.StepUpdate, Table: "clients", Values: map[string]any{"stage": "won"}}})
	if !errors.As(err, &v) || v.Rule != RuleWhere {
		t.Errorf("Expected where violation, got %v", err)
	}
}

func TestDefaultPolicy_ResultRefsMustPointBackwards(t *testing.T) {
	p := NewDefaultPolicy()

	forward := []plan.ActionStep{
		{Type: plan.StepInsert, Table: "contacts", Values: map[string]any{"name": "Jane"}, ValueRefs: map[string]string{"client_id": "client_id"}},
		{Type: plan.StepInsert, Table: "clients", Values: map[string]any{"company_name": "Acme"}, ResultKey: "client_id"},
	}
	var v *Violation
	if err := p.Validate(forward); !errors.As(err, &v) || v.Rule != RuleResultRef {
		t.Errorf("Expected result ref violation, got %v", err)
	}

	backward := []plan.ActionStep{forward[1], forward[0]}
	if err := p.Validate(backward); err != nil {
		t.Errorf("Expected backward reference to pass, got %v", err)
	}
}
