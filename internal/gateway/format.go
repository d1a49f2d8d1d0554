package gateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielohoh/sales-ai-agent/internal/plan"
)

// FormatPlan renders a pending plan for a chat surface.
func FormatPlan(p *plan.ActionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposed plan (%s):\n", p.Intent)
	for i, s := range p.Actions {
		note := s.Notes
		if note == "" {
			note = fmt.Sprintf("%s %s", s.Type, s.Table)
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, note)
		for _, k := range sortedKeys(s.Values) {
			if v := s.Values[k]; v != nil && v != "" {
				fmt.Fprintf(&b, "   %s: %v\n", k, v)
			}
		}
	}
	if len(p.MissingFields) > 0 {
		fmt.Fprintf(&b, "Missing: %s\n", strings.Join(p.MissingFields, ", "))
	}
	if len(p.DuplicateCandidates) > 0 {
		names := make([]string, 0, len(p.DuplicateCandidates))
		for _, c := range p.DuplicateCandidates {
			label := fmt.Sprintf("%s (#%d)", c.CompanyName, c.ID)
			if c.Exact {
				label += " exact match"
			}
			names = append(names, label)
		}
		fmt.Fprintf(&b, "Similar existing clients: %s\n", strings.Join(names, ", "))
	}
	if len(p.RiskFlags) > 0 {
		fmt.Fprintf(&b, "Warnings: %s\n", strings.Join(p.RiskFlags, ", "))
	}
	return strings.TrimSpace(b.String())
}

// FormatResult renders an execution result for a chat surface.
func FormatResult(res *plan.Result) string {
	switch res.Status {
	case plan.StatusSuccess:
		return "Done: " + res.Message
	case plan.StatusRolledBack:
		return "Nothing was saved. " + res.Message
	default:
		return "Not executed. " + res.Message
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
