package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielohoh/sales-ai-agent/internal/dedup"
	"github.com/danielohoh/sales-ai-agent/internal/governance"
	"github.com/danielohoh/sales-ai-agent/internal/plan"
	"github.com/danielohoh/sales-ai-agent/internal/store"
	"github.com/danielohoh/sales-ai-agent/internal/tools"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestExecutor(s *store.Store, opts ...Option) *Executor {
	return New(s, governance.NewDefaultPolicy(), dedup.NewDetector(s), nil, opts...)
}

func seedClient(t *testing.T, s *store.Store, userID, name string) int64 {
	t.Helper()
	report, err := s.ExecutePlan(context.Background(), userID, []plan.ActionStep{{
		Type:      plan.StepInsert,
		Table:     "clients",
		Values:    map[string]any{"company_name": name, "stage": "lead"},
		ResultKey: "client_id",
	}})
	require.NoError(t, err)
	return report.Produced["client_id"]
}

func countRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func createClientPlan(id, name string) *plan.ActionPlan {
	return &plan.ActionPlan{
		PlanID:   id,
		Intent:   plan.IntentCreateClient,
		Entities: map[string]any{"company_name": name, "contact_name": nil},
		Actions: []plan.ActionStep{
			{
				Type:      plan.StepInsert,
				Table:     "clients",
				Values:    map[string]any{"company_name": name, "stage": "lead"},
				ResultKey: "client_id",
				Notes:     "Register client " + name,
			},
			{
				Type:      plan.StepInsert,
				Table:     "contacts",
				Values:    map[string]any{"contact_name": nil},
				ValueRefs: map[string]string{"client_id": "client_id"},
				Notes:     "Add contact",
			},
		},
	}
}

// recordingStore fails the test if anything reaches the write path.
type recordingStore struct {
	calls  int
	report *store.ExecReport
	err    error
}

func (r *recordingStore) ExecutePlan(ctx context.Context, userID string, steps []plan.ActionStep) (*store.ExecReport, error) {
	r.calls++
	return r.report, r.err
}

func TestExecute_RejectsInvalidInputBeforeTheStore(t *testing.T) {
	valid := createClientPlan("p1", "Acme")
	noID := createClientPlan("", "Acme")
	noActions := createClientPlan("p1", "Acme")
	noActions.Actions = nil

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"missing plan", Request{UserID: "u1"}, "plan is required"},
		{"missing plan id", Request{Plan: noID, UserID: "u1"}, "plan.plan_id is required"},
		{"missing user", Request{Plan: valid}, "user_id is required"},
		{"empty actions", Request{Plan: noActions, UserID: "u1"}, "plan.actions must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &recordingStore{}
			res := New(rs, governance.NewDefaultPolicy(), nil, nil).Execute(context.Background(), tt.req)
			assert.Equal(t, plan.StatusError, res.Status)
			assert.Equal(t, plan.CodeInvalidInput, res.Code)
			assert.Contains(t, res.Message, tt.want)
			assert.Empty(t, res.StepResults)
			assert.Zero(t, rs.calls)
		})
	}
}

func TestExecute_ValidationFailureAttemptsNothing(t *testing.T) {
	tests := []struct {
		name string
		step plan.ActionStep
		want string
	}{
		{
			"table outside allow-list",
			plan.ActionStep{Type: plan.StepInsert, Table: "users", Values: map[string]any{"name": "x"}},
			"table 'users' is not allowed",
		},
		{
			"stage outside enumeration",
			plan.ActionStep{Type: plan.StepUpdate, Table: "clients", Values: map[string]any{"stage": "bogus"}, Where: map[string]any{"id": 1}},
			"value 'bogus' is not allowed for stage",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &recordingStore{}
			p := &plan.ActionPlan{PlanID: "p1", Intent: plan.IntentUpdateClient, Actions: []plan.ActionStep{tt.step}}
			res := New(rs, governance.NewDefaultPolicy(), nil, nil).Execute(context.Background(), Request{Plan: p, UserID: "u1"})
			assert.Equal(t, plan.StatusError, res.Status)
			assert.Equal(t, plan.CodeValidation, res.Code)
			assert.Contains(t, res.Message, tt.want)
			assert.Nil(t, res.StepResults)
			assert.Nil(t, res.FailedStep)
			assert.Zero(t, rs.calls)
		})
	}
}

func TestExecute_ExactDuplicateIsAConflict(t *testing.T) {
	s := newTestStore(t)
	existing := seedClient(t, s, "u1", "Acme Co")
	e := newTestExecutor(s)

	res := e.Execute(context.Background(), Request{Plan: createClientPlan("p1", "  acme co  "), UserID: "u1"})
	assert.Equal(t, plan.StatusError, res.Status)
	assert.Equal(t, plan.CodeDuplicateClient, res.Code)
	assert.Equal(t, existing, res.Data["duplicate_client_id"])
	assert.Contains(t, res.Message, "already exists")
	assert.Empty(t, res.StepResults)
	assert.Equal(t, 1, countRows(t, s, "clients"))
}

func TestExecute_SimilarNameProceeds(t *testing.T) {
	s := newTestStore(t)
	seedClient(t, s, "u1", "Acme Co")
	e := newTestExecutor(s)

	p := createClientPlan("p1", "Acme Corp")
	p.RiskFlags = []string{plan.RiskDuplicateClient}
	res := e.Execute(context.Background(), Request{Plan: p, UserID: "u1"})
	require.Equal(t, plan.StatusSuccess, res.Status, res.Message)
	assert.Equal(t, 2, countRows(t, s, "clients"))
}

func TestExecute_ExactDuplicateOfAnotherUserIsAllowed(t *testing.T) {
	s := newTestStore(t)
	seedClient(t, s, "u2", "Acme Co")
	e := newTestExecutor(s)

	res := e.Execute(context.Background(), Request{Plan: createClientPlan("p1", "Acme Co"), UserID: "u1"})
	assert.Equal(t, plan.StatusSuccess, res.Status, res.Message)
}

func TestExecute_AppliesModifications(t *testing.T) {
	s := newTestStore(t)
	e := newTestExecutor(s)

	p := createClientPlan("p1", "Acme")
	res := e.Execute(context.Background(), Request{
		Plan:          p,
		UserID:        "u1",
		Modifications: map[string]any{"company_name": "Acme International"},
	})
	require.Equal(t, plan.StatusSuccess, res.Status, res.Message)

	id, ok := res.Data["client_id"].(int64)
	require.True(t, ok)
	detail, err := s.GetClient(context.Background(), "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "Acme International", detail.CompanyName)
	assert.Equal(t, "Acme", p.Actions[0].Values["company_name"], "the submitted plan is not changed")
}

func TestExecute_ModifiedNameIsCheckedForDuplicates(t *testing.T) {
	s := newTestStore(t)
	seedClient(t, s, "u1", "Acme International")
	e := newTestExecutor(s)

	res := e.Execute(context.Background(), Request{
		Plan:          createClientPlan("p1", "Acme"),
		UserID:        "u1",
		Modifications: map[string]any{"company_name": "acme international"},
	})
	assert.Equal(t, plan.CodeDuplicateClient, res.Code)
}

func TestExecute_SkippedStepIsReported(t *testing.T) {
	s := newTestStore(t)
	e := newTestExecutor(s)

	res := e.Execute(context.Background(), Request{Plan: createClientPlan("p1", "Globex"), UserID: "u1"})
	require.Equal(t, plan.StatusSuccess, res.Status, res.Message)
	require.Len(t, res.StepResults, 2)
	assert.Equal(t, plan.StepSuccess, res.StepResults[0].Status)
	assert.Equal(t, plan.StepSkipped, res.StepResults[1].Status)
	assert.Contains(t, res.Message, "Register client Globex")
	assert.Contains(t, res.Message, "skipped: contacts: Add contact")
	assert.False(t, res.RolledBack)
	assert.Nil(t, res.FailedStep)
	assert.Equal(t, 0, countRows(t, s, "contacts"))
}

// stagePlan logs an activity for client 1 and then moves client 1 on. With
// no client 1 the second step fails after the first one wrote a row.
func stagePlan(id string) *plan.ActionPlan {
	return &plan.ActionPlan{
		PlanID:   id,
		Intent:   plan.IntentChangeStage,
		Entities: map[string]any{"client_id": 1, "stage": "proposal"},
		Actions: []plan.ActionStep{
			{
				Type:   plan.StepInsert,
				Table:  "activity_logs",
				Values: map[string]any{"client_id": 1, "activity_type": "note", "content": "Stage changed"},
				Notes:  "Record the stage change",
			},
			{
				Type:   plan.StepUpdate,
				Table:  "clients",
				Values: map[string]any{"stage": "proposal"},
				Where:  map[string]any{"id": 1},
				Notes:  "Move to proposal",
			},
		},
	}
}

func TestExecute_FailureRollsBackEveryStep(t *testing.T) {
	s := newTestStore(t)
	e := newTestExecutor(s)
	p := stagePlan("p1")

	res := e.Execute(context.Background(), Request{Plan: p, UserID: "u1"})
	assert.Equal(t, plan.StatusRolledBack, res.Status)
	assert.True(t, res.RolledBack)
	require.NotNil(t, res.FailedStep)
	assert.Equal(t, 2, *res.FailedStep)
	require.Len(t, res.StepResults, 2)
	assert.Equal(t, plan.StepError, res.StepResults[1].Status)
	assert.Contains(t, res.Message, "Step 2 (clients: Move to proposal) failed")
	assert.Equal(t, 0, countRows(t, s, "activity_logs"), "step 1 must not be observable")

	// once the client exists the same plan replays cleanly
	seedClient(t, s, "u1", "Acme Co")
	res = e.Execute(context.Background(), Request{Plan: p, UserID: "u1"})
	require.Equal(t, plan.StatusSuccess, res.Status, res.Message)
	assert.Equal(t, 1, countRows(t, s, "activity_logs"))
}

func TestExecute_SynthesizesMissingStepResult(t *testing.T) {
	rs := &recordingStore{
		report: &store.ExecReport{Results: []plan.StepResult{{StepIndex: 1, Table: "activity_logs", Status: plan.StepSuccess}}},
		err:    &store.StepError{Index: 2, Table: "clients", Err: errors.New("constraint failed")},
	}
	res := New(rs, governance.NewDefaultPolicy(), nil, nil).Execute(context.Background(), Request{Plan: stagePlan("p1"), UserID: "u1"})

	assert.Equal(t, plan.StatusRolledBack, res.Status)
	require.Len(t, res.StepResults, 2)
	assert.Equal(t, 2, res.StepResults[1].StepIndex)
	assert.Equal(t, plan.StepUpdate, res.StepResults[1].ActionType)
	assert.Equal(t, plan.StepError, res.StepResults[1].Status)
	assert.Equal(t, "constraint failed", res.StepResults[1].Error)
}

func TestExecute_StoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	res := newTestExecutor(s).Execute(context.Background(), Request{Plan: stagePlan("p1"), UserID: "u1"})
	assert.Equal(t, plan.StatusError, res.Status)
	assert.Equal(t, plan.CodeStoreUnavailable, res.Code)
	assert.False(t, res.RolledBack)
	assert.Nil(t, res.FailedStep)
	assert.NotEmpty(t, res.Message)
}

func TestExecute_UpdateIsScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	seedClient(t, s, "u2", "Someone Else Inc")

	res := newTestExecutor(s).Execute(context.Background(), Request{Plan: stagePlan("p1"), UserID: "u1"})
	assert.Equal(t, plan.StatusRolledBack, res.Status)
}

func TestExecute_ReplayGuard(t *testing.T) {
	t.Run("off by default", func(t *testing.T) {
		s := newTestStore(t)
		e := newTestExecutor(s)
		p := createClientPlan("p1", "Initech")
		require.Equal(t, plan.StatusSuccess, e.Execute(context.Background(), Request{Plan: p, UserID: "u1"}).Status)

		// a second run reaches the duplicate check instead of a replay refusal
		res := e.Execute(context.Background(), Request{Plan: p, UserID: "u1"})
		assert.Equal(t, plan.CodeDuplicateClient, res.Code)
	})

	t.Run("refuses a second success", func(t *testing.T) {
		s := newTestStore(t)
		e := newTestExecutor(s, WithReplayGuard(time.Hour))
		p := stagePlan("p1")

		res := e.Execute(context.Background(), Request{Plan: p, UserID: "u1"})
		require.Equal(t, plan.StatusRolledBack, res.Status)

		seedClient(t, s, "u1", "Acme Co")
		res = e.Execute(context.Background(), Request{Plan: p, UserID: "u1"})
		require.Equal(t, plan.StatusSuccess, res.Status, "a rolled back plan is not remembered")

		res = e.Execute(context.Background(), Request{Plan: p, UserID: "u1"})
		assert.Equal(t, plan.StatusError, res.Status)
		assert.Equal(t, plan.CodeAlreadyExecuted, res.Code)
		assert.Equal(t, 1, countRows(t, s, "activity_logs"))
	})

	t.Run("forgets after ttl", func(t *testing.T) {
		g := newReplayGuard(time.Minute)
		now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
		g.now = func() time.Time { return now }
		g.remember("p1")
		assert.True(t, g.seen("p1"))
		now = now.Add(2 * time.Minute)
		assert.False(t, g.seen("p1"))
	})
}

func TestEndToEnd_RegisterClientWithContact(t *testing.T) {
	s := newTestStore(t)
	reg := tools.NewRegistry()
	tools.RegisterCRM(reg, s)
	d := tools.NewDispatcher(reg, dedup.NewDetector(s), nil)

	out := d.Dispatch(context.Background(), "create_client",
		`{"company_name":"Acme Co","contact_name":"Jane","contact_phone":"555-0100"}`, "u1")
	require.True(t, out.NeedsApproval(), out.Content())
	p := out.Plan
	require.Len(t, p.Actions, 2)
	assert.Empty(t, p.MissingFields)
	assert.Equal(t, 0, countRows(t, s, "clients"), "proposing writes nothing")

	res := newTestExecutor(s).Execute(context.Background(), Request{Plan: p, UserID: "u1"})
	require.Equal(t, plan.StatusSuccess, res.Status, res.Message)
	require.Len(t, res.StepResults, 2)
	assert.Equal(t, plan.StepSuccess, res.StepResults[0].Status)
	assert.Equal(t, plan.StepSuccess, res.StepResults[1].Status)
	assert.Contains(t, res.Message, p.Actions[0].Notes)
	assert.Contains(t, res.Message, p.Actions[1].Notes)

	contacts, err := s.ListContacts(context.Background(), "u1", res.Data["client_id"].(int64))
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "555-0100", contacts[0].Phone)
}

func TestEndToEnd_ChangeStageByName(t *testing.T) {
	s := newTestStore(t)
	id := seedClient(t, s, "u1", "Globex Corporation")
	reg := tools.NewRegistry()
	tools.RegisterCRM(reg, s)
	d := tools.NewDispatcher(reg, dedup.NewDetector(s), nil)

	out := d.Dispatch(context.Background(), "change_stage", `{"client_name":"globex","stage":"negotiation"}`, "u1")
	require.True(t, out.NeedsApproval(), out.Content())

	res := newTestExecutor(s).Execute(context.Background(), Request{Plan: out.Plan, UserID: "u1"})
	require.Equal(t, plan.StatusSuccess, res.Status, res.Message)

	detail, err := s.GetClient(context.Background(), "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "negotiation", detail.Stage)
	assert.Equal(t, 1, countRows(t, s, "activity_logs"))
}

func TestEndToEnd_ChangeStageClientChosenAtApproval(t *testing.T) {
	s := newTestStore(t)
	id := seedClient(t, s, "u1", "Initech")
	reg := tools.NewRegistry()
	tools.RegisterCRM(reg, s)
	d := tools.NewDispatcher(reg, dedup.NewDetector(s), nil)

	out := d.Dispatch(context.Background(), "change_stage", `{"stage":"won"}`, "u1")
	require.True(t, out.NeedsApproval(), out.Content())
	require.Contains(t, out.Plan.MissingFields, "client_id")

	res := newTestExecutor(s).Execute(context.Background(), Request{
		Plan:          out.Plan,
		UserID:        "u1",
		Modifications: map[string]any{"client_id": float64(id)},
	})
	require.Equal(t, plan.StatusSuccess, res.Status, res.Message)

	detail, err := s.GetClient(context.Background(), "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "won", detail.Stage)
	assert.Equal(t, 1, countRows(t, s, "activity_logs"))
}

func TestExecute_ExactDuplicateBeyondSimilarNames(t *testing.T) {
	s := newTestStore(t)
	id := seedClient(t, s, "u1", "acme co")
	for i := 0; i < 10; i++ {
		seedClient(t, s, "u1", fmt.Sprintf("Big Acme Co %d", i))
	}

	res := newTestExecutor(s).Execute(context.Background(), Request{Plan: createClientPlan("p-many", "Acme Co"), UserID: "u1"})

	require.Equal(t, plan.StatusError, res.Status, res.Message)
	assert.Equal(t, plan.CodeDuplicateClient, res.Code)
	assert.Equal(t, id, res.Data["duplicate_client_id"])
	assert.Equal(t, 11, countRows(t, s, "clients"))
}
