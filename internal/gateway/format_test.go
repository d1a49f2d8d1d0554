package gateway

import (
	"testing"

	"github.com/danielohoh/sales-ai-agent/internal/plan"
)

func TestFormatPlan(t *testing.T) {
	p := &plan.ActionPlan{
		Intent: plan.IntentCreateClient,
		Actions: []plan.ActionStep{
			{Type: plan.StepInsert, Table: "clients", Values: map[string]any{"company_name": "Acme Corp", "industry": nil}, Notes: "Register client Acme Corp"},
			{Type: plan.StepInsert, Table: "contacts", Values: map[string]any{}},
		},
		MissingFields:       []string{"contact_name"},
		RiskFlags:           []string{plan.RiskDuplicateClient},
		DuplicateCandidates: []plan.Candidate{{ID: 7, CompanyName: "Acme Co"}},
	}

	got := FormatPlan(p)
	want := "Proposed plan (create_client):\n" +
		"1. Register client Acme Corp\n" +
		"   company_name: Acme Corp\n" +
		"2. insert contacts\n" +
		"Missing: contact_name\n" +
		"Similar existing clients: Acme Co (#7)\n" +
		"Warnings: duplicate_client"
	if got != want {
		t.Errorf("FormatPlan() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		res  *plan.Result
		want string
	}{
		{&plan.Result{Status: plan.StatusSuccess, Message: "Register client Acme"}, "Done: Register client Acme"},
		{&plan.Result{Status: plan.StatusRolledBack, Message: "Step 2 failed."}, "Nothing was saved. Step 2 failed."},
		{&plan.Result{Status: plan.StatusError, Message: "Duplicate."}, "Not executed. Duplicate."},
	}
	for _, tt := range tests {
		if got := FormatResult(tt.res); got != tt.want {
			t.Errorf("FormatResult(%s) = %q, want %q", tt.res.Status, got, tt.want)
		}
	}
}

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		data       string
		action, id string
		ok         bool
	}{
		{callbackData(actionApprove, "plan-1"), actionApprove, "plan-1", true},
		{callbackData(actionReject, "plan-1"), actionReject, "plan-1", true},
		{"delete:plan-1", "", "", false},
		{"approve:", "", "", false},
		{"garbage", "", "", false},
	}
	for _, tt := range tests {
		action, id, ok := parseCallbackData(tt.data)
		if action != tt.action || id != tt.id || ok != tt.ok {
			t.Errorf("parseCallbackData(%q) = %q, %q, %v", tt.data, action, id, ok)
		}
	}
}
