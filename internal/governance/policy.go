package governance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielohoh/sales-ai-agent/internal/plan"
)

// Rule names the check a Violation failed.
type Rule string

const (
	RuleTable     Rule = "table"
	RuleStepType  Rule = "step_type"
	RuleValue     Rule = "value"
	RuleWhere     Rule = "where"
	RuleResultRef Rule = "result_ref"
)

// Violation describes the first step that a policy rejected.
type Violation struct {
	Rule      Rule
	StepIndex int // 1-based
	Table     string
	Field     string
	Reason    string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("step %d (%s): %s", v.StepIndex, v.Table, v.Reason)
}

// Validator checks a plan's steps before anything executes.
type Validator interface {
	Validate(actions []plan.ActionStep) error
}

// Policy is an allow-list validator over tables and closed-enumeration fields.
type Policy struct {
	AllowedTables map[string]bool
	AllowedValues map[string]map[string]bool
}

func NewPolicy() *Policy {
	return &Policy{
		AllowedTables: make(map[string]bool),
		AllowedValues: make(map[string]map[string]bool),
	}
}

// Closed enumerations for CRM fields.
var (
	Stages        = []string{"lead", "contact", "proposal", "negotiation", "contract", "won", "lost"}
	ActivityTypes = []string{"call", "email", "meeting", "visit", "note"}
	ScheduleTypes = []string{"meeting", "call", "visit", "demo", "deadline", "other"}
)

// NewDefaultPolicy returns the policy for the CRM tables.
func NewDefaultPolicy() *Policy {
	p := NewPolicy()
	p.AllowTable("clients", "contacts", "activity_logs", "schedules")
	p.AllowValues("stage", Stages...)
	p.AllowValues("activity_type", ActivityTypes...)
	p.AllowValues("schedule_type", ScheduleTypes...)
	return p
}

func (p *Policy) AllowTable(names ...string) {
	for _, n := range names {
		p.AllowedTables[n] = true
	}
}

func (p *Policy) AllowValues(field string, values ...string) {
	set, ok := p.AllowedValues[field]
	if !ok {
		set = make(map[string]bool, len(values))
		p.AllowedValues[field] = set
	}
	for _, v := range values {
		set[v] = true
	}
}

// Validate returns the first violation found, or nil. Only string values are
// checked against a field's allow-list; numbers, booleans and nulls pass.
func (p *Policy) Validate(actions []plan.ActionStep) error {
	produced := make(map[string]bool)

	for i, step := range actions {
		idx := i + 1
		if !p.AllowedTables[step.Table] {
			return &Violation{
				Rule:      RuleTable,
				StepIndex: idx,
				Table:     step.Table,
				Reason:    fmt.Sprintf("table '%s' is not allowed", step.Table),
			}
		}

		switch step.Type {
		case plan.StepInsert:
		case plan.StepUpdate:
			if len(step.Where) == 0 {
				return &Violation{
					Rule:      RuleWhere,
					StepIndex: idx,
					Table:     step.Table,
					Reason:    "update requires a where predicate",
				}
			}
		default:
			return &Violation{
				Rule:      RuleStepType,
				StepIndex: idx,
				Table:     step.Table,
				Reason:    fmt.Sprintf("step type '%s' is not allowed", step.Type),
			}
		}

		if v := p.checkValues(idx, step.Table, step.Values); v != nil {
			return v
		}
		if v := p.checkValues(idx, step.Table, step.Where); v != nil {
			return v
		}

		for col, key := range step.ValueRefs {
			if !produced[key] {
				return &Violation{
					Rule:      RuleResultRef,
					StepIndex: idx,
					Table:     step.Table,
					Field:     col,
					Reason:    fmt.Sprintf("'%s' refers to result '%s' which no earlier step produces", col, key),
				}
			}
		}

		if step.ResultKey != "" {
			produced[step.ResultKey] = true
		}
	}
	return nil
}

func (p *Policy) checkValues(idx int, table string, values map[string]any) *Violation {
	// sorted so the reported violation is deterministic
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		allowed, ok := p.AllowedValues[field]
		if !ok {
			continue
		}
		s, isString := values[field].(string)
		if !isString {
			continue
		}
		if !allowed[s] {
			return &Violation{
				Rule:      RuleValue,
				StepIndex: idx,
				Table:     table,
				Field:     field,
				Reason: fmt.Sprintf("value '%s' is not allowed for %s (allowed: %s)",
					s, field, strings.Join(p.sortedValues(field), ", ")),
			}
		}
	}
	return nil
}

func (p *Policy) sortedValues(field string) []string {
	out := make([]string, 0, len(p.AllowedValues[field]))
	for v := range p.AllowedValues[field] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
