package tools

import (
	"context"
)

var clientRefProperties = map[string]any{
	"client_id": map[string]any{
		"type":        "integer",
		"description": "Id of an existing client, when known",
	},
	"client_name": map[string]any{
		"type":        "string",
		"description": "Name of an existing client, used when the id is not known",
	},
}

var confidenceProperty = map[string]any{
	"type":        "number",
	"description": "How sure you are that this is what the user asked for, between 0 and 1",
}

func withClientRef(props map[string]any) map[string]any {
	for k, v := range clientRefProperties {
		props[k] = v
	}
	props["confidence"] = confidenceProperty
	return props
}

func enumProperty(description string, values ...string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// CreateClientTool proposes registering a new client.
type CreateClientTool struct{}

func NewCreateClientTool() *CreateClientTool { return &CreateClientTool{} }

func (t *CreateClientTool) Name() string { return "create_client" }

func (t *CreateClientTool) Kind() Kind { return KindWrite }

func (t *CreateClientTool) Description() string {
	return "Propose registering a new client company, optionally with its first contact person. " +
		"Nothing is saved until the user approves the plan."
}

func (t *CreateClientTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"company_name":     stringProperty("Company name"),
			"alias":            stringProperty("Short or informal name"),
			"industry":         stringProperty("Industry"),
			"website":          stringProperty("Company website URL"),
			"notes":            stringProperty("Free-form notes"),
			"contact_name":     stringProperty("Contact person's name"),
			"contact_phone":    stringProperty("Contact person's phone number"),
			"contact_email":    stringProperty("Contact person's email address"),
			"contact_position": stringProperty("Contact person's job title"),
			"confidence":       confidenceProperty,
		},
		"required": []string{"company_name"},
	}
}

func (t *CreateClientTool) Narrow(ctx context.Context, userID string, input string) (IntentArgs, error) {
	args, err := parseArgs[CreateClientArgs](t.Name(), input)
	if err != nil {
		return nil, err
	}
	return args, nil
}

// LogActivityTool proposes recording an interaction with a client.
type LogActivityTool struct {
	Reader CRMReader
}

func NewLogActivityTool(r CRMReader) *LogActivityTool { return &LogActivityTool{Reader: r} }

func (t *LogActivityTool) Name() string { return "log_activity" }

func (t *LogActivityTool) Kind() Kind { return KindWrite }

func (t *LogActivityTool) Description() string {
	return "Propose logging a call, email, meeting, visit or note against an existing client."
}

func (t *LogActivityTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": withClientRef(map[string]any{
			"activity_type": enumProperty("Kind of activity", "call", "email", "meeting", "visit", "note"),
			"content":       stringProperty("What happened"),
			"activity_date": stringProperty("When it happened, YYYY-MM-DD or YYYY-MM-DDTHH:MM"),
		}),
		"required": []string{"activity_type", "content"},
	}
}

func (t *LogActivityTool) Narrow(ctx context.Context, userID string, input string) (IntentArgs, error) {
	args, err := parseArgs[LogActivityArgs](t.Name(), input)
	if err != nil {
		return nil, err
	}
	args.client, err = resolveClient(ctx, t.Reader, userID, args.ClientID, args.ClientName, &args.argMeta)
	if err != nil {
		return nil, err
	}
	return args, nil
}

// ChangeStageTool proposes moving a client to another pipeline stage.
type ChangeStageTool struct {
	Reader CRMReader
}

func NewChangeStageTool(r CRMReader) *ChangeStageTool { return &ChangeStageTool{Reader: r} }

func (t *ChangeStageTool) Name() string { return "change_stage" }

func (t *ChangeStageTool) Kind() Kind { return KindWrite }

func (t *ChangeStageTool) Description() string {
	return "Propose moving an existing client to another sales pipeline stage. The change is also logged as a note."
}

func (t *ChangeStageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": withClientRef(map[string]any{
			"stage": enumProperty("Target stage", "lead", "contact", "proposal", "negotiation", "contract", "won", "lost"),
			"note":  stringProperty("Why the stage changed"),
		}),
		"required": []string{"stage"},
	}
}

func (t *ChangeStageTool) Narrow(ctx context.Context, userID string, input string) (IntentArgs, error) {
	args, err := parseArgs[ChangeStageArgs](t.Name(), input)
	if err != nil {
		return nil, err
	}
	args.client, err = resolveClient(ctx, t.Reader, userID, args.ClientID, args.ClientName, &args.argMeta)
	if err != nil {
		return nil, err
	}
	return args, nil
}

// CreateScheduleTool proposes a calendar entry.
type CreateScheduleTool struct {
	Reader CRMReader
}

func NewCreateScheduleTool(r CRMReader) *CreateScheduleTool { return &CreateScheduleTool{Reader: r} }

func (t *CreateScheduleTool) Name() string { return "create_schedule" }

func (t *CreateScheduleTool) Kind() Kind { return KindWrite }

func (t *CreateScheduleTool) Description() string {
	return "Propose adding a meeting, call, visit, demo or deadline to the calendar, optionally tied to a client."
}

func (t *CreateScheduleTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": withClientRef(map[string]any{
			"title":         stringProperty("Short title"),
			"schedule_type": enumProperty("Kind of entry", "meeting", "call", "visit", "demo", "deadline", "other"),
			"start_at":      stringProperty("Start, YYYY-MM-DDTHH:MM or YYYY-MM-DD"),
			"end_at":        stringProperty("End, YYYY-MM-DDTHH:MM or YYYY-MM-DD"),
			"location":      stringProperty("Where"),
			"notes":         stringProperty("Free-form notes"),
		}),
		"required": []string{"title", "start_at"},
	}
}

func (t *CreateScheduleTool) Narrow(ctx context.Context, userID string, input string) (IntentArgs, error) {
	args, err := parseArgs[CreateScheduleArgs](t.Name(), input)
	if err != nil {
		return nil, err
	}
	args.client, err = resolveClient(ctx, t.Reader, userID, args.ClientID, args.ClientName, &args.argMeta)
	if err != nil {
		return nil, err
	}
	return args, nil
}

// UpdateClientTool proposes editing a client's profile.
type UpdateClientTool struct {
	Reader CRMReader
}

func NewUpdateClientTool(r CRMReader) *UpdateClientTool { return &UpdateClientTool{Reader: r} }

func (t *UpdateClientTool) Name() string { return "update_client" }

func (t *UpdateClientTool) Kind() Kind { return KindWrite }

func (t *UpdateClientTool) Description() string {
	return "Propose changing an existing client's name, alias, industry, website or notes. Use change_stage for the pipeline stage."
}

func (t *UpdateClientTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": withClientRef(map[string]any{
			"company_name": stringProperty("New company name"),
			"alias":        stringProperty("New alias"),
			"industry":     stringProperty("New industry"),
			"website":      stringProperty("New website URL"),
			"notes":        stringProperty("New notes"),
		}),
	}
}

func (t *UpdateClientTool) Narrow(ctx context.Context, userID string, input string) (IntentArgs, error) {
	args, err := parseArgs[UpdateClientArgs](t.Name(), input)
	if err != nil {
		return nil, err
	}
	if !args.hasChanges() {
		return nil, &ArgError{Tool: t.Name(), Cause: "at least one field to change is required"}
	}
	args.client, err = resolveClient(ctx, t.Reader, userID, args.ClientID, args.ClientName, &args.argMeta)
	if err != nil {
		return nil, err
	}
	return args, nil
}
