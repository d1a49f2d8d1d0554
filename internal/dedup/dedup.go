// Package dedup finds existing clients that a creation request may duplicate.
package dedup

import (
	"context"
	"strings"

	"github.com/danielohoh/sales-ai-agent/internal/plan"
	"github.com/danielohoh/sales-ai-agent/internal/store"
)

// ClientSearcher is the read path the detector needs. SearchClients is a
// capped similarity search; FindClientsByName returns every exact match.
type ClientSearcher interface {
	SearchClients(ctx context.Context, userID string, query string, limit int) ([]store.Client, error)
	FindClientsByName(ctx context.Context, userID string, name string) ([]store.Client, error)
}

const maxCandidates = 5

type Detector struct {
	Clients ClientSearcher
}

func NewDetector(clients ClientSearcher) *Detector {
	return &Detector{Clients: clients}
}

// FindDuplicates returns the user's clients resembling name, exact matches first.
func (d *Detector) FindDuplicates(ctx context.Context, name string, userID string) ([]plan.Candidate, error) {
	if Normalize(name) == "" {
		return nil, nil
	}
	exact, err := d.Clients.FindClientsByName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	similar, err := d.Clients.SearchClients(ctx, userID, name, maxCandidates*2)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(exact))
	var out []plan.Candidate
	for _, c := range exact {
		seen[c.ID] = true
		out = append(out, candidate(name, c))
	}
	for _, c := range similar {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, candidate(name, c))
	}

	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out, nil
}

// FindExact returns the first exact match for name, or nil. It does not go
// through the capped similarity search.
func (d *Detector) FindExact(ctx context.Context, name string, userID string) (*plan.Candidate, error) {
	if Normalize(name) == "" {
		return nil, nil
	}
	clients, err := d.Clients.FindClientsByName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	for _, c := range clients {
		if cand := candidate(name, c); cand.Exact {
			return &cand, nil
		}
	}
	return nil, nil
}

func candidate(name string, c store.Client) plan.Candidate {
	return plan.Candidate{
		ID:          c.ID,
		CompanyName: c.CompanyName,
		Alias:       c.Alias,
		Stage:       c.Stage,
		Exact:       IsExact(name, c.CompanyName) || (c.Alias != "" && IsExact(name, c.Alias)),
	}
}

// Annotate flags p as a possible duplicate when candidates exist.
func Annotate(p *plan.ActionPlan, cands []plan.Candidate) {
	if len(cands) == 0 {
		return
	}
	p.DuplicateCandidates = cands
	if !p.HasRisk(plan.RiskDuplicateClient) {
		p.RiskFlags = append(p.RiskFlags, plan.RiskDuplicateClient)
	}
}

// Normalize trims and lower-cases a name for comparison.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsExact reports a case- and surrounding-whitespace-insensitive full match.
func IsExact(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}
