package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielohoh/sales-ai-agent/internal/store"
)

// SearchClientsTool looks clients up by name or alias.
type SearchClientsTool struct {
	Reader CRMReader
}

func NewSearchClientsTool(r CRMReader) *SearchClientsTool { return &SearchClientsTool{Reader: r} }

func (t *SearchClientsTool) Name() string { return "search_clients" }

func (t *SearchClientsTool) Kind() Kind { return KindRead }

func (t *SearchClientsTool) Description() string {
	return "Search the user's clients by company name or alias. Use it before creating a client or when a name is ambiguous."
}

func (t *SearchClientsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": stringProperty("Part of a company name or alias"),
			"limit": map[string]any{"type": "integer", "description": "Maximum number of results (default 20)"},
		},
		"required": []string{"query"},
	}
}

func (t *SearchClientsTool) Query(ctx context.Context, userID string, input string) (any, error) {
	args, err := parseArgs[struct {
		Query string `json:"query" validate:"required"`
		Limit int    `json:"limit" validate:"gte=0,lte=100"`
	}](t.Name(), input)
	if err != nil {
		return nil, err
	}

	clients, err := t.Reader.SearchClients(ctx, userID, args.Query, args.Limit)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []store.Client{}
	}
	return map[string]any{"clients": clients, "count": len(clients)}, nil
}

// GetClientTool returns one client with its contacts.
type GetClientTool struct {
	Reader CRMReader
}

func NewGetClientTool(r CRMReader) *GetClientTool { return &GetClientTool{Reader: r} }

func (t *GetClientTool) Name() string { return "get_client" }

func (t *GetClientTool) Kind() Kind { return KindRead }

func (t *GetClientTool) Description() string {
	return "Get a client's profile, stage and contacts by id or by name."
}

func (t *GetClientTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": clientRefProperties,
	}
}

func (t *GetClientTool) Query(ctx context.Context, userID string, input string) (any, error) {
	args, err := parseArgs[struct {
		ClientID   int64  `json:"client_id"`
		ClientName string `json:"client_name" validate:"required_without=ClientID"`
	}](t.Name(), input)
	if err != nil {
		return nil, err
	}

	id, err := lookupClientID(ctx, t.Reader, userID, args.ClientID, args.ClientName)
	if err != nil {
		return nil, err
	}
	detail, err := t.Reader.GetClient(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("client %d not found", id)
	}
	return detail, err
}

// ListActivitiesTool returns the activity history, newest first.
type ListActivitiesTool struct {
	Reader CRMReader
}

func NewListActivitiesTool(r CRMReader) *ListActivitiesTool { return &ListActivitiesTool{Reader: r} }

func (t *ListActivitiesTool) Name() string { return "list_activities" }

func (t *ListActivitiesTool) Kind() Kind { return KindRead }

func (t *ListActivitiesTool) Description() string {
	return "List recent activities, newest first, for one client or across all clients."
}

func (t *ListActivitiesTool) Parameters() map[string]any {
	props := map[string]any{
		"limit": map[string]any{"type": "integer", "description": "Maximum number of results (default 20)"},
	}
	for k, v := range clientRefProperties {
		props[k] = v
	}
	return map[string]any{"type": "object", "properties": props}
}

func (t *ListActivitiesTool) Query(ctx context.Context, userID string, input string) (any, error) {
	args, err := parseArgs[struct {
		ClientID   int64  `json:"client_id"`
		ClientName string `json:"client_name"`
		Limit      int    `json:"limit" validate:"gte=0,lte=100"`
	}](t.Name(), input)
	if err != nil {
		return nil, err
	}

	var clientID int64
	if args.ClientID > 0 || args.ClientName != "" {
		if clientID, err = lookupClientID(ctx, t.Reader, userID, args.ClientID, args.ClientName); err != nil {
			return nil, err
		}
	}
	acts, err := t.Reader.ListActivities(ctx, userID, clientID, args.Limit)
	if err != nil {
		return nil, err
	}
	if acts == nil {
		acts = []store.Activity{}
	}
	return map[string]any{"activities": acts, "count": len(acts)}, nil
}

// ListSchedulesTool returns calendar entries in a date range.
type ListSchedulesTool struct {
	Reader CRMReader
}

func NewListSchedulesTool(r CRMReader) *ListSchedulesTool { return &ListSchedulesTool{Reader: r} }

func (t *ListSchedulesTool) Name() string { return "list_schedules" }

func (t *ListSchedulesTool) Kind() Kind { return KindRead }

func (t *ListSchedulesTool) Description() string {
	return "List calendar entries starting within an optional date range."
}

func (t *ListSchedulesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"from": stringProperty("Earliest start, YYYY-MM-DD"),
			"to":   stringProperty("Latest start, YYYY-MM-DD"),
		},
	}
}

func (t *ListSchedulesTool) Query(ctx context.Context, userID string, input string) (any, error) {
	args, err := parseArgs[struct {
		From string `json:"from" validate:"omitempty,timestamp"`
		To   string `json:"to" validate:"omitempty,timestamp"`
	}](t.Name(), input)
	if err != nil {
		return nil, err
	}

	// a bare end date includes that whole day
	to := args.To
	if len(to) == len("2006-01-02") {
		to += "T23:59:59"
	}
	scheds, err := t.Reader.ListSchedules(ctx, userID, args.From, to)
	if err != nil {
		return nil, err
	}
	if scheds == nil {
		scheds = []store.Schedule{}
	}
	return map[string]any{"schedules": scheds, "count": len(scheds)}, nil
}

// lookupClientID resolves an id or a name to exactly one client id.
func lookupClientID(ctx context.Context, r CRMReader, userID string, id int64, name string) (int64, error) {
	var m argMeta
	ref, err := resolveClient(ctx, r, userID, id, name, &m)
	if err != nil {
		return 0, err
	}
	if ref.ID > 0 {
		return ref.ID, nil
	}
	if len(m.candidates) > 0 {
		names := make([]string, 0, len(m.candidates))
		for _, c := range m.candidates {
			names = append(names, fmt.Sprintf("%s (id %d)", c.CompanyName, c.ID))
		}
		return 0, fmt.Errorf("'%s' matches several clients: %s", name, strings.Join(names, ", "))
	}
	if id > 0 {
		return 0, fmt.Errorf("client %d not found", id)
	}
	return 0, fmt.Errorf("no client named '%s'", name)
}
