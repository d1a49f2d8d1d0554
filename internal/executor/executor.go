// Package executor applies an approved plan to the store as one atomic unit.
package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/danielohoh/sales-ai-agent/internal/governance"
	"github.com/danielohoh/sales-ai-agent/internal/observability"
	"github.com/danielohoh/sales-ai-agent/internal/plan"
	"github.com/danielohoh/sales-ai-agent/internal/store"
)

// Request is the input of Execute.
type Request struct {
	Plan          *plan.ActionPlan `json:"plan" validate:"required"`
	UserID        string           `json:"user_id" validate:"required"`
	Modifications map[string]any   `json:"modifications,omitempty"`
}

// PlanStore is the atomic multi-step write path.
type PlanStore interface {
	ExecutePlan(ctx context.Context, userID string, steps []plan.ActionStep) (*store.ExecReport, error)
}

// ExactMatcher finds an existing client with exactly the given name.
type ExactMatcher interface {
	FindExact(ctx context.Context, name string, userID string) (*plan.Candidate, error)
}

// Executor has no lock of its own; the store serializes concurrent writes.
type Executor struct {
	Store     PlanStore
	Validator governance.Validator
	Matcher   ExactMatcher
	Logger    *observability.Logger

	replay *replayGuard
}

type Option func(*Executor)

// WithReplayGuard refuses a plan_id that already executed successfully within
// ttl. Failed and refused plans are not remembered.
func WithReplayGuard(ttl time.Duration) Option {
	return func(e *Executor) {
		e.replay = newReplayGuard(ttl)
	}
}

func New(s PlanStore, v governance.Validator, m ExactMatcher, logger *observability.Logger, opts ...Option) *Executor {
	e := &Executor{
		Store:     s,
		Validator: v,
		Matcher:   m,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Execute runs req.Plan for req.UserID. It always returns a non-nil result
// with a non-empty message.
func (e *Executor) Execute(ctx context.Context, req Request) *plan.Result {
	res := e.execute(ctx, req)

	planID := ""
	if req.Plan != nil {
		planID = req.Plan.PlanID
	}
	e.Logger.LogExecution(req.UserID, planID, string(res.Status), res.Code, res.Message)
	for _, sr := range res.StepResults {
		e.Logger.LogStep(req.UserID, planID, sr.StepIndex, sr.Table, string(sr.Status), sr.Error)
	}
	observability.RecordExecution(string(res.Status), res.Code)
	return res
}

func (e *Executor) execute(ctx context.Context, req Request) *plan.Result {
	if msg := checkRequest(req); msg != "" {
		planID := ""
		if req.Plan != nil {
			planID = req.Plan.PlanID
		}
		return plan.Fail(planID, plan.CodeInvalidInput, msg)
	}

	p := req.Plan.WithModifications(req.Modifications)

	if e.replay != nil && e.replay.seen(p.PlanID) {
		return plan.Fail(p.PlanID, plan.CodeAlreadyExecuted,
			fmt.Sprintf("Plan %s was already executed. Ask again to prepare a new plan.", p.PlanID))
	}

	if e.Validator != nil {
		if err := e.Validator.Validate(p.Actions); err != nil {
			return plan.Fail(p.PlanID, plan.CodeValidation,
				fmt.Sprintf("The plan was not executed: %v.", err))
		}
	}

	if p.Intent == plan.IntentCreateClient && e.Matcher != nil {
		if res := e.checkDuplicate(ctx, p, req.UserID); res != nil {
			return res
		}
	}

	report, err := e.Store.ExecutePlan(ctx, req.UserID, p.Actions)
	if err != nil {
		return failure(p, report, err)
	}

	if e.replay != nil {
		e.replay.remember(p.PlanID)
	}
	return success(p, report)
}

func checkRequest(req Request) string {
	err := requestValidator.Struct(req)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request: " + err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		switch fe.Tag() {
		case "min":
			fields = append(fields, ns+" must not be empty")
		default:
			fields = append(fields, ns+" is required")
		}
	}
	return "Invalid request: " + strings.Join(fields, "; ") + "."
}

func (e *Executor) checkDuplicate(ctx context.Context, p *plan.ActionPlan, userID string) *plan.Result {
	name, _ := p.Entities["company_name"].(string)
	if strings.TrimSpace(name) == "" {
		return nil
	}
	match, err := e.Matcher.FindExact(ctx, name, userID)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return plan.Fail(p.PlanID, plan.CodeStoreUnavailable,
				"The database is unavailable, nothing was changed. Please try again shortly.")
		}
		return plan.Fail(p.PlanID, plan.CodeStoreUnavailable,
			fmt.Sprintf("Could not check for existing clients, nothing was changed: %v.", err))
	}
	if match == nil {
		return nil
	}
	res := plan.Fail(p.PlanID, plan.CodeDuplicateClient,
		fmt.Sprintf("A client named '%s' already exists (id %d). Nothing was created; update the existing client instead.",
			match.CompanyName, match.ID))
	res.Data = map[string]any{
		"duplicate_client_id":   match.ID,
		"duplicate_client_name": match.CompanyName,
	}
	return res
}

func success(p *plan.ActionPlan, report *store.ExecReport) *plan.Result {
	var notes, skipped []string
	for i, sr := range report.Results {
		note := stepNote(p, i)
		switch sr.Status {
		case plan.StepSkipped:
			skipped = append(skipped, note)
		default:
			if p.Actions[i].Notes != "" {
				notes = append(notes, p.Actions[i].Notes)
			}
		}
	}

	msg := plan.JoinNotes(notes)
	if len(skipped) > 0 {
		msg += fmt.Sprintf(" (skipped: %s)", strings.Join(skipped, "; "))
	}

	res := &plan.Result{
		PlanID:      p.PlanID,
		Status:      plan.StatusSuccess,
		Message:     msg,
		StepResults: report.Results,
	}
	if len(report.Produced) > 0 {
		res.Data = make(map[string]any, len(report.Produced))
		for k, v := range report.Produced {
			res.Data[k] = v
		}
	}
	return res
}

func failure(p *plan.ActionPlan, report *store.ExecReport, err error) *plan.Result {
	var stepErr *store.StepError
	switch {
	case errors.As(err, &stepErr):
		var results []plan.StepResult
		if report != nil {
			results = report.Results
		}
		if !hasResult(results, stepErr.Index) {
			results = append(results, plan.StepResult{
				StepIndex:  stepErr.Index,
				ActionType: p.Actions[stepErr.Index-1].Type,
				Table:      stepErr.Table,
				Status:     plan.StepError,
				Error:      stepErr.Err.Error(),
			})
		}
		k := stepErr.Index
		return &plan.Result{
			PlanID:      p.PlanID,
			Status:      plan.StatusRolledBack,
			Code:        plan.CodeStepFailed,
			Message:     fmt.Sprintf("Step %d (%s) failed: %s. All changes were rolled back.", k, stepNote(p, k-1), stepErr.Err),
			RolledBack:  true,
			FailedStep:  &k,
			StepResults: results,
		}

	case errors.Is(err, store.ErrUnavailable):
		return plan.Fail(p.PlanID, plan.CodeStoreUnavailable,
			"The database is unavailable, nothing was changed. Please try again shortly.")

	default:
		// commit failed after every step ran; the store rolled back the whole unit
		return &plan.Result{
			PlanID:     p.PlanID,
			Status:     plan.StatusRolledBack,
			Code:       plan.CodeStepFailed,
			Message:    fmt.Sprintf("The changes could not be saved and were rolled back: %v.", err),
			RolledBack: true,
		}
	}
}

func hasResult(results []plan.StepResult, idx int) bool {
	for _, r := range results {
		if r.StepIndex == idx {
			return true
		}
	}
	return false
}

func stepNote(p *plan.ActionPlan, i int) string {
	if i < 0 || i >= len(p.Actions) {
		return ""
	}
	s := p.Actions[i]
	if s.Notes != "" {
		return s.Table + ": " + s.Notes
	}
	return s.Table
}

type replayGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	done map[string]time.Time
	now  func() time.Time
}

func newReplayGuard(ttl time.Duration) *replayGuard {
	return &replayGuard{ttl: ttl, done: make(map[string]time.Time), now: time.Now}
}

func (g *replayGuard) seen(planID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.done[planID]
	if !ok {
		return false
	}
	if g.ttl > 0 && g.now().Sub(at) > g.ttl {
		delete(g.done, planID)
		return false
	}
	return true
}

func (g *replayGuard) remember(planID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.done[planID] = now
	if g.ttl <= 0 {
		return
	}
	for id, at := range g.done {
		if now.Sub(at) > g.ttl {
			delete(g.done, id)
		}
	}
}
