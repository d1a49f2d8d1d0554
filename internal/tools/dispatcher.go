package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/danielohoh/sales-ai-agent/internal/dedup"
	"github.com/danielohoh/sales-ai-agent/internal/observability"
	"github.com/danielohoh/sales-ai-agent/internal/plan"
)

// OutcomeKind classifies what a dispatched tool call produced.
type OutcomeKind string

const (
	OutcomeData        OutcomeKind = "data"
	OutcomePlan        OutcomeKind = "plan"
	OutcomeUnknownTool OutcomeKind = "unknown_tool"
	OutcomeInvalidArgs OutcomeKind = "invalid_arguments"
	OutcomeError       OutcomeKind = "error"
)

// Outcome is the result of one tool call. Exactly one of Data, Plan or Err
// is meaningful, according to Kind.
type Outcome struct {
	Tool   string
	Kind   OutcomeKind
	Data   any
	Plan   *plan.ActionPlan
	Err    string
	Fields []FieldError
}

// NeedsApproval reports whether the outcome is a plan awaiting a human.
func (o Outcome) NeedsApproval() bool {
	return o.Kind == OutcomePlan && o.Plan != nil
}

// Content renders the outcome as the tool message fed back to the model.
func (o Outcome) Content() string {
	var payload any
	switch o.Kind {
	case OutcomeData:
		payload = map[string]any{"data": o.Data}
	case OutcomePlan:
		payload = map[string]any{"needsApproval": true, "actionPlan": o.Plan}
	case OutcomeUnknownTool:
		payload = map[string]any{"error": fmt.Sprintf("unknown tool '%s'", o.Tool)}
	default:
		body := map[string]any{"error": o.Err}
		if len(o.Fields) > 0 {
			body["fields"] = o.Fields
		}
		payload = body
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}

// DuplicateFinder is the part of the duplicate detector the dispatcher uses.
type DuplicateFinder interface {
	FindDuplicates(ctx context.Context, name string, userID string) ([]plan.Candidate, error)
}

// Dispatcher maps a tool name and raw arguments to an Outcome. Read tools run
// against the store; write tools only ever produce a plan.
type Dispatcher struct {
	Registry   *Registry
	Duplicates DuplicateFinder
	Logger     *observability.Logger
	NewPlanID  func() string
}

func NewDispatcher(reg *Registry, dups DuplicateFinder, logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		Registry:   reg,
		Duplicates: dups,
		Logger:     logger,
		NewPlanID:  uuid.NewString,
	}
}

// Dispatch runs one tool call. It never returns an error: every failure is
// an Outcome so it can be fed back to the model.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, input string, userID string) (out Outcome) {
	d.Logger.LogToolCall(userID, name, input)
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Tool: name, Kind: OutcomeError, Err: fmt.Sprintf("tool panicked: %v", r)}
		}
		planID := ""
		if out.Plan != nil {
			planID = out.Plan.PlanID
		}
		d.Logger.LogToolResult(userID, name, string(out.Kind), planID)
		observability.RecordToolCall(name, string(out.Kind))
	}()

	t := d.Registry.Get(name)
	switch tool := t.(type) {
	case ReadTool:
		data, err := tool.Query(ctx, userID, input)
		if err != nil {
			return failure(name, err)
		}
		return Outcome{Tool: name, Kind: OutcomeData, Data: data}
	case WriteTool:
		args, err := tool.Narrow(ctx, userID, input)
		if err != nil {
			return failure(name, err)
		}
		p, err := d.buildPlan(ctx, userID, args)
		if err != nil {
			return failure(name, err)
		}
		d.Logger.LogPlan(userID, p.PlanID, string(p.Intent), len(p.Actions), p.MissingFields, p.RiskFlags)
		observability.RecordPlanProposed(string(p.Intent))
		return Outcome{Tool: name, Kind: OutcomePlan, Plan: p}
	default:
		return Outcome{Tool: name, Kind: OutcomeUnknownTool}
	}
}

func failure(name string, err error) Outcome {
	var argErr *ArgError
	if errors.As(err, &argErr) {
		return Outcome{Tool: name, Kind: OutcomeInvalidArgs, Err: argErr.Error(), Fields: argErr.Fields}
	}
	return Outcome{Tool: name, Kind: OutcomeError, Err: err.Error()}
}

func (d *Dispatcher) buildPlan(ctx context.Context, userID string, args IntentArgs) (*plan.ActionPlan, error) {
	m := args.meta()
	entities := args.Entities()

	missing := []string{}
	for _, key := range args.Required() {
		if isMissing(entities[key]) {
			missing = append(missing, key)
		}
	}

	p := &plan.ActionPlan{
		PlanID:            d.NewPlanID(),
		Intent:            args.Intent(),
		Confidence:        m.score(),
		Entities:          entities,
		Actions:           args.Steps(),
		NeedsConfirmation: true,
		MissingFields:     missing,
		RiskFlags:         append([]string{}, m.risks...),
	}
	if len(m.candidates) > 0 {
		p.Entities["client_candidates"] = m.candidates
	}

	if p.Intent == plan.IntentCreateClient && d.Duplicates != nil {
		name, _ := entities["company_name"].(string)
		cands, err := d.Duplicates.FindDuplicates(ctx, name, userID)
		if err != nil {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		dedup.Annotate(p, cands)
	}
	return p, nil
}

func isMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}
