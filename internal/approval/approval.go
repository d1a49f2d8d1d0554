// Package approval holds proposed plans until a human accepts, edits or
// rejects them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danielohoh/sales-ai-agent/internal/plan"
)

// State of one plan instance in the approval flow.
type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateExecuting State = "executing"
	StateExecuted  State = "executed"
	StateFailed    State = "failed"
)

var (
	ErrInvalidTransition = errors.New("invalid approval transition")
	ErrUnknownPlan       = errors.New("unknown or expired plan")
	ErrNotOwner          = errors.New("plan belongs to another user")
	ErrDuplicatePlan     = errors.New("plan already proposed")
)

var transitions = map[State][]State{
	StatePending:   {StateApproved, StateRejected},
	StateApproved:  {StateExecuting},
	StateExecuting: {StateExecuted, StateFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Project maps an execution result onto the approval states. Both error and
// rolled_back results show as failed.
func Project(res *plan.Result) State {
	if res.Succeeded() {
		return StateExecuted
	}
	return StateFailed
}

// Approval tracks one proposed plan.
type Approval struct {
	Plan          *plan.ActionPlan
	UserID        string
	State         State
	Modifications map[string]any
	Result        *plan.Result
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewApproval(p *plan.ActionPlan, userID string) *Approval {
	now := time.Now()
	return &Approval{
		Plan:      p,
		UserID:    userID,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the approval to the given state.
func (a *Approval) Transition(to State) error {
	if !CanTransition(a.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, to)
	}
	a.State = to
	a.UpdatedAt = time.Now()
	return nil
}

// Edit overrides entity values. Later edits of the same key win.
func (a *Approval) Edit(mods map[string]any) error {
	if a.State != StatePending {
		return fmt.Errorf("%w: edits are only accepted while pending, plan is %s", ErrInvalidTransition, a.State)
	}
	if len(mods) == 0 {
		return nil
	}
	if a.Modifications == nil {
		a.Modifications = make(map[string]any, len(mods))
	}
	for k, v := range mods {
		a.Modifications[k] = v
	}
	a.UpdatedAt = time.Now()
	return nil
}

// Preview is the plan as it would execute with the current edits.
func (a *Approval) Preview() *plan.ActionPlan {
	return a.Plan.WithModifications(a.Modifications)
}

func (a *Approval) snapshot() *Approval {
	out := *a
	out.Plan = a.Plan.Clone()
	if a.Modifications != nil {
		out.Modifications = make(map[string]any, len(a.Modifications))
		for k, v := range a.Modifications {
			out.Modifications[k] = v
		}
	}
	return &out
}

// ExecuteFunc forwards an approved plan to the executor.
type ExecuteFunc func(ctx context.Context, p *plan.ActionPlan, userID string, mods map[string]any) *plan.Result

// Gate keeps pending approvals in memory, keyed by plan_id. An approval
// leaves the gate when it reaches a terminal state, so a plan_id is never
// submitted twice through it.
type Gate struct {
	mu      sync.Mutex
	items   map[string]*Approval
	execute ExecuteFunc
	ttl     time.Duration
	now     func() time.Time
}

// NewGate returns a gate whose pending approvals expire after ttl; zero keeps them forever.
func NewGate(execute ExecuteFunc, ttl time.Duration) *Gate {
	return &Gate{
		items:   make(map[string]*Approval),
		execute: execute,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Propose registers a new pending plan.
func (g *Gate) Propose(p *plan.ActionPlan, userID string) (*Approval, error) {
	if p == nil || p.PlanID == "" {
		return nil, fmt.Errorf("%w: plan has no id", ErrUnknownPlan)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.items[p.PlanID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePlan, p.PlanID)
	}
	a := NewApproval(p.Clone(), userID)
	a.CreatedAt = g.now()
	g.items[p.PlanID] = a
	return a.snapshot(), nil
}

// Get returns a copy of the approval for planID.
func (g *Gate) Get(planID, userID string) (*Approval, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, err := g.lookup(planID, userID)
	if err != nil {
		return nil, err
	}
	return a.snapshot(), nil
}

// Edit records modifications on a pending plan.
func (g *Gate) Edit(planID, userID string, mods map[string]any) (*Approval, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, err := g.lookup(planID, userID)
	if err != nil {
		return nil, err
	}
	if err := a.Edit(mods); err != nil {
		return nil, err
	}
	return a.snapshot(), nil
}

// Reject discards a pending plan.
func (g *Gate) Reject(planID, userID string) (*Approval, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, err := g.lookup(planID, userID)
	if err != nil {
		return nil, err
	}
	if err := a.Transition(StateRejected); err != nil {
		return nil, err
	}
	delete(g.items, planID)
	return a.snapshot(), nil
}

// Approve applies any last modifications and executes the plan. A second
// Approve for the same plan_id fails with ErrInvalidTransition while the first
// is running and ErrUnknownPlan after it finished.
func (g *Gate) Approve(ctx context.Context, planID, userID string, mods map[string]any) (*Approval, error) {
	g.mu.Lock()
	a, err := g.lookup(planID, userID)
	if err == nil {
		err = a.Edit(mods)
	}
	if err == nil {
		err = a.Transition(StateApproved)
	}
	if err == nil {
		err = a.Transition(StateExecuting)
	}
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	p, owner, edits := a.Plan, a.UserID, a.Modifications
	g.mu.Unlock()

	res := g.execute(ctx, p, owner, edits)

	g.mu.Lock()
	defer g.mu.Unlock()
	a.Result = res
	_ = a.Transition(Project(res))
	delete(g.items, planID)
	return a.snapshot(), nil
}

// Sweep drops pending approvals older than the gate's ttl.
func (g *Gate) Sweep() int {
	if g.ttl <= 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := g.now().Add(-g.ttl)
	n := 0
	for id, a := range g.items {
		if a.State == StatePending && a.CreatedAt.Before(cutoff) {
			delete(g.items, id)
			n++
		}
	}
	return n
}

// Len returns the number of approvals held.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.items)
}

func (g *Gate) lookup(planID, userID string) (*Approval, error) {
	a, ok := g.items[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	if a.UserID != userID {
		return nil, ErrNotOwner
	}
	if g.ttl > 0 && a.State == StatePending && g.now().Sub(a.CreatedAt) > g.ttl {
		delete(g.items, planID)
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	return a, nil
}
