package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielohoh/sales-ai-agent/internal/plan"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedClient(t *testing.T, s *Store, userID, name string) int64 {
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

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestExecutePlan_InsertWithReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report, err := s.ExecutePlan(ctx, "u1", []plan.ActionStep{
		{Type: plan.StepInsert, Table: "clients", Values: map[string]any{"company_name": "Acme Co"}, ResultKey: "client_id"},
		{Type: plan.StepInsert, Table: "contacts", Values: map[string]any{"contact_name": "Jane", "contact_phone": "555-0100"}, ValueRefs: map[string]string{"client_id": "client_id"}},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, plan.StepSuccess, report.Results[0].Status)
	assert.Equal(t, plan.StepSuccess, report.Results[1].Status)
	assert.Equal(t, 2, report.Results[1].StepIndex)

	clientID := report.Produced["client_id"]
	detail, err := s.GetClient(ctx, "u1", clientID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Co", detail.CompanyName)
	require.Len(t, detail.Contacts, 1)
	assert.Equal(t, "Jane", detail.Contacts[0].Name)
	assert.Equal(t, clientID, detail.Contacts[0].ClientID)
}

func TestExecutePlan_SkipsEmptyStep(t *testing.T) {
	s := newTestStore(t)

	report, err := s.ExecutePlan(context.Background(), "u1", []plan.ActionStep{
		{Type: plan.StepInsert, Table: "clients", Values: map[string]any{"company_name": "Acme Co"}, ResultKey: "client_id"},
		{Type: plan.StepInsert, Table: "contacts", Values: map[string]any{"contact_name": nil, "contact_phone": ""}, ValueRefs: map[string]string{"client_id": "client_id"}},
	})
	require.NoError(t, err)
	assert.Equal(t, plan.StepSkipped, report.Results[1].Status)
	assert.Equal(t, 0, countRows(t, s, "contacts"))
}

func TestExecutePlan_RollsBackEarlierSteps(t *testing.T) {
	s := newTestStore(t)

	steps := []plan.ActionStep{
		{Type: plan.StepInsert, Table: "clients", Values: map[string]any{"company_name": "Acme Co"}, ResultKey: "client_id"},
		{Type: plan.StepInsert, Table: "contacts", Values: map[string]any{"contact_name": "Jane"}, ValueRefs: map[string]string{"client_id": "client_id"}},
		// activity_logs.client_id is NOT NULL
		{Type: plan.StepInsert, Table: "activity_logs", Values: map[string]any{"content": "hello", "client_id": nil}, Notes: "Log the first call"},
	}

	report, err := s.ExecutePlan(context.Background(), "u1", steps)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr), "expected StepError, got %v", err)
	assert.Equal(t, 3, stepErr.Index)
	assert.Equal(t, "activity_logs", stepErr.Table)
	require.Len(t, report.Results, 3)
	assert.Equal(t, plan.StepError, report.Results[2].Status)

	assert.Equal(t, 0, countRows(t, s, "clients"))
	assert.Equal(t, 0, countRows(t, s, "contacts"))
}

func TestExecutePlan_UpdateIsOwnerScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seedClient(t, s, "owner", "Acme Co")

	_, err := s.ExecutePlan(ctx, "intruder", []plan.ActionStep{{
		Type:   plan.StepUpdate,
		Table:  "clients",
		Values: map[string]any{"stage": "won"},
		Where:  map[string]any{"id": id},
	}})
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))

	report, err := s.ExecutePlan(ctx, "owner", []plan.ActionStep{{
		Type:   plan.StepUpdate,
		Table:  "clients",
		Values: map[string]any{"stage": "won"},
		Where:  map[string]any{"id": float64(id)},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Results[0].Data["rows_affected"])

	detail, err := s.GetClient(ctx, "owner", id)
	require.NoError(t, err)
	assert.Equal(t, "won", detail.Stage)

	_, err = s.GetClient(ctx, "intruder", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecutePlan_RejectsUnknownColumn(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ExecutePlan(context.Background(), "u1", []plan.ActionStep{{
		Type:   plan.StepInsert,
		Table:  "clients",
		Values: map[string]any{"company_name": "Acme", "user_id": "someone-else"},
	}})
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Contains(t, stepErr.Error(), "user_id")
}

func TestExecutePlan_ClosedStoreIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.ExecutePlan(context.Background(), "u1", []plan.ActionStep{{
		Type: plan.StepInsert, Table: "clients", Values: map[string]any{"company_name": "Acme"},
	}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSearchClients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedClient(t, s, "u1", "Acme Co")
	seedClient(t, s, "u1", "Globex")
	seedClient(t, s, "u2", "Acme Co")

	got, err := s.SearchClients(ctx, "u1", "  ACME  ", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme Co", got[0].CompanyName)

	// the existing name is contained in the query
	got, err = s.SearchClients(ctx, "u1", "Acme Corp", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.SearchClients(ctx, "u1", "Initech", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.SearchClients(ctx, "u1", "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchClients_ShortNamesAreNotContained(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedClient(t, s, "u1", "Co")
	seedClient(t, s, "u1", "Acme")

	got, err := s.SearchClients(ctx, "u1", "Acme Co", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].CompanyName)

	// a short name still matches a query it contains
	got, err = s.SearchClients(ctx, "u1", "co", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFindClientsByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seedClient(t, s, "u1", "acme co")
	for i := 0; i < 12; i++ {
		seedClient(t, s, "u1", fmt.Sprintf("Big Acme Co %d", i))
	}
	seedClient(t, s, "u2", "Acme Co")

	got, err := s.FindClientsByName(ctx, "u1", "  ACME CO ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)

	got, err = s.FindClientsByName(ctx, "u1", "Acme")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.FindClientsByName(ctx, "u1", " ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestActivitiesAndSchedules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seedClient(t, s, "u1", "Acme Co")

	_, err := s.ExecutePlan(ctx, "u1", []plan.ActionStep{
		{Type: plan.StepInsert, Table: "activity_logs", Values: map[string]any{"client_id": id, "activity_type": "call", "content": "intro call"}},
		{Type: plan.StepInsert, Table: "schedules", Values: map[string]any{"client_id": id, "title": "Demo", "start_at": "2026-10-20T10:00"}},
		{Type: plan.StepInsert, Table: "schedules", Values: map[string]any{"title": "Review", "start_at": "2026-11-02T09:00"}},
	})
	require.NoError(t, err)

	acts, err := s.ListActivities(ctx, "u1", id, 0)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "intro call", acts[0].Content)

	scheds, err := s.ListSchedules(ctx, "u1", "2026-10-01", "2026-10-31")
	require.NoError(t, err)
	require.Len(t, scheds, 1)
	assert.Equal(t, "Demo", scheds[0].Title)

	all, err := s.ListSchedules(ctx, "u1", "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddMessage(ctx, "chat", "human", "one"))
	require.NoError(t, s.AddMessage(ctx, "chat", "ai", "two"))
	require.NoError(t, s.AddMessage(ctx, "chat", "human", "three"))

	got, err := s.GetHistory(ctx, "chat", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Content)
	assert.Equal(t, "three", got[1].Content)

	require.NoError(t, s.ClearHistory(ctx, "chat"))
	got, err = s.GetHistory(ctx, "chat", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
