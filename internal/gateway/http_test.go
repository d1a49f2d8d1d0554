package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/danielohoh/sales-ai-agent/internal/agent"
	"github.com/danielohoh/sales-ai-agent/internal/approval"
	"github.com/danielohoh/sales-ai-agent/internal/dedup"
	"github.com/danielohoh/sales-ai-agent/internal/executor"
	"github.com/danielohoh/sales-ai-agent/internal/governance"
	"github.com/danielohoh/sales-ai-agent/internal/plan"
	"github.com/danielohoh/sales-ai-agent/internal/service"
	"github.com/danielohoh/sales-ai-agent/internal/store"
)

type stubRunner struct {
	result *agent.Result
}

func (r *stubRunner) Run(ctx context.Context, conversation []llms.MessageContent, userID string) (*agent.Result, error) {
	return r.result, nil
}

func newTestServer(t *testing.T, result *agent.Result) (*gin.Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ex := executor.New(s, governance.NewDefaultPolicy(), dedup.NewDetector(s), nil)
	svc := service.New(&stubRunner{result: result}, nil, ex, nil, service.WithGate(0))
	return NewRouter(svc, false), s
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func clientPlan(id, name string) *plan.ActionPlan {
	return &plan.ActionPlan{
		PlanID:   id,
		Intent:   plan.IntentCreateClient,
		Entities: map[string]any{"company_name": name},
		Actions: []plan.ActionStep{{
			Type:      plan.StepInsert,
			Table:     "clients",
			Values:    map[string]any{"company_name": name, "stage": "lead"},
			ResultKey: "client_id",
			Notes:     "Register client " + name,
		}},
		NeedsConfirmation: true,
	}
}

func TestConverseEndpoint(t *testing.T) {
	r, _ := newTestServer(t, &agent.Result{Content: "I've prepared a plan", Plan: clientPlan("plan-1", "Acme")})

	w := post(t, r, "/v1/converse", map[string]any{
		"user_id":  "u1",
		"messages": []map[string]string{{"role": "user", "content": "register Acme"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp service.ConverseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "I've prepared a plan", resp.Content)
	require.NotNil(t, resp.ActionPlan)
	assert.Equal(t, "plan-1", resp.ActionPlan.PlanID)

	w = post(t, r, "/v1/converse", map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user_id is required")
}

func TestExecuteEndpoint(t *testing.T) {
	r, s := newTestServer(t, &agent.Result{Content: "ok"})

	w := post(t, r, "/v1/execute", map[string]any{"plan": clientPlan("p1", "Acme Co"), "user_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res plan.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, plan.StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "Register client Acme Co")

	// same name again is a conflict
	w = post(t, r, "/v1/execute", map[string]any{"plan": clientPlan("p2", " ACME CO "), "user_id": "u1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), plan.CodeDuplicateClient)

	w = post(t, r, "/v1/execute", map[string]any{"plan": clientPlan("p3", "Other"), "user_id": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := clientPlan("p4", "Other")
	bad.Actions[0].Table = "users"
	w = post(t, r, "/v1/execute", map[string]any{"plan": bad, "user_id": "u1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var n int
	require.NoError(t, s.DB.QueryRow("SELECT COUNT(*) FROM clients").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestExecuteEndpoint_MalformedBody(t *testing.T) {
	r, _ := newTestServer(t, &agent.Result{Content: "ok"})

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), plan.CodeInvalidInput)
}

func TestApproveAndRejectEndpoints(t *testing.T) {
	r, _ := newTestServer(t, &agent.Result{Content: "plan", Plan: clientPlan("plan-1", "Acme")})
	converse := map[string]any{
		"user_id":  "u1",
		"messages": []map[string]string{{"role": "user", "content": "register Acme"}},
	}

	require.Equal(t, http.StatusOK, post(t, r, "/v1/converse", converse).Code)

	w := post(t, r, "/v1/plans/plan-1/approve", DecisionRequest{UserID: "intruder"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = post(t, r, "/v1/plans/plan-1/approve", DecisionRequest{
		UserID:        "u1",
		Modifications: map[string]any{"company_name": "Acme International"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ApprovalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, approval.StateExecuted, resp.State)
	assert.Contains(t, resp.Result.Message, "Register client Acme")

	w = post(t, r, "/v1/plans/plan-1/approve", DecisionRequest{UserID: "u1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the stub proposes plan-1 again; this time it is rejected
	require.Equal(t, http.StatusOK, post(t, r, "/v1/converse", converse).Code)
	w = post(t, r, "/v1/plans/plan-1/reject", DecisionRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(approval.StateRejected))
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestServer(t, &agent.Result{Content: "ok"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	post(t, r, "/v1/execute", map[string]any{"plan": clientPlan("p1", "Acme"), "user_id": "u1"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "salesagent_plans_executions_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(&plan.Result{Status: plan.StatusSuccess}))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(&plan.Result{Status: plan.StatusRolledBack, Code: plan.CodeStepFailed}))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(plan.Fail("p", plan.CodeStoreUnavailable, "down")))
	assert.Equal(t, http.StatusConflict, StatusFor(plan.Fail("p", plan.CodeAlreadyExecuted, "again")))
}
