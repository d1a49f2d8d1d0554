// Package plan holds the action-plan data model shared by the dispatcher,
// the approval gate and the executor.
package plan

import (
	"strings"
)

// Intent is the closed set of operations a plan can accomplish.
type Intent string

const (
	IntentCreateClient   Intent = "create_client"
	IntentLogActivity    Intent = "log_activity"
	IntentChangeStage    Intent = "change_stage"
	IntentCreateSchedule Intent = "create_schedule"
	IntentUpdateClient   Intent = "update_client"
)

var knownIntents = map[Intent]bool{
	IntentCreateClient:   true,
	IntentLogActivity:    true,
	IntentChangeStage:    true,
	IntentCreateSchedule: true,
	IntentUpdateClient:   true,
}

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	return knownIntents[i]
}

// StepType is the write kind of a step. Read steps never appear in a plan.
type StepType string

const (
	StepInsert StepType = "insert"
	StepUpdate StepType = "update"
)

// Risk flags attached to plans.
const (
	RiskDuplicateClient = "duplicate_client"
	RiskAmbiguousClient = "ambiguous_client"
	RiskUnknownClient   = "unknown_client"
)

// ActionStep is one atomic mutation within a plan.
type ActionStep struct {
	Type   StepType       `json:"type"`
	Table  string         `json:"table"`
	Values map[string]any `json:"values"`
	// ValueRefs maps a column to the result_key of an earlier step whose
	// produced id is written into that column.
	ValueRefs map[string]string `json:"value_refs,omitempty"`
	Where     map[string]any    `json:"where,omitempty"`
	ResultKey string            `json:"result_key,omitempty"`
	Notes     string            `json:"notes,omitempty"`
}

// IsEmpty reports whether every entry of Values is nil or blank.
func (s ActionStep) IsEmpty() bool {
	for _, v := range s.Values {
		if !isBlank(v) {
			return false
		}
	}
	return true
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// Candidate is an existing record that resembles the one a plan would create.
type Candidate struct {
	ID          int64  `json:"id"`
	CompanyName string `json:"company_name"`
	Alias       string `json:"alias,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Exact       bool   `json:"exact"`
}

// ActionPlan is a proposed batch of mutations awaiting human approval.
type ActionPlan struct {
	PlanID              string         `json:"plan_id" validate:"required"`
	Intent              Intent         `json:"intent"`
	Confidence          float64        `json:"confidence"`
	Entities            map[string]any `json:"entities"`
	Actions             []ActionStep   `json:"actions" validate:"min=1"`
	NeedsConfirmation   bool           `json:"needs_confirmation"`
	MissingFields       []string       `json:"missing_fields"`
	RiskFlags           []string       `json:"risk_flags"`
	DuplicateCandidates []Candidate    `json:"duplicate_candidates,omitempty"`
}

// HasRisk reports whether flag is among the plan's risk flags.
func (p *ActionPlan) HasRisk(flag string) bool {
	for _, f := range p.RiskFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the plan's maps and slices.
func (p *ActionPlan) Clone() *ActionPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Entities = cloneMap(p.Entities)
	out.MissingFields = append([]string(nil), p.MissingFields...)
	out.RiskFlags = append([]string(nil), p.RiskFlags...)
	out.DuplicateCandidates = append([]Candidate(nil), p.DuplicateCandidates...)
	out.Actions = make([]ActionStep, len(p.Actions))
	for i, s := range p.Actions {
		s.Values = cloneMap(s.Values)
		s.Where = cloneMap(s.Where)
		if s.ValueRefs != nil {
			refs := make(map[string]string, len(s.ValueRefs))
			for k, v := range s.ValueRefs {
				refs[k] = v
			}
			s.ValueRefs = refs
		}
		out.Actions[i] = s
	}
	return &out
}

// Notes returns the non-empty step notes in order.
func (p *ActionPlan) Notes() []string {
	var notes []string
	for _, s := range p.Actions {
		if s.Notes != "" {
			notes = append(notes, s.Notes)
		}
	}
	return notes
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
