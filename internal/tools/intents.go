package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielohoh/sales-ai-agent/internal/dedup"
	"github.com/danielohoh/sales-ai-agent/internal/plan"
	"github.com/danielohoh/sales-ai-agent/internal/store"
)

// IntentArgs is the typed form of a write tool's arguments. There is one
// variant per intent.
type IntentArgs interface {
	Intent() plan.Intent
	// Entities are the extracted values; unresolved ones are nil.
	Entities() map[string]any
	// Required lists the entity keys a complete plan needs.
	Required() []string
	Steps() []plan.ActionStep
	meta() *argMeta
}

// argMeta is embedded in every intent variant.
type argMeta struct {
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`

	risks      []string
	candidates []plan.Candidate
}

func (m *argMeta) meta() *argMeta { return m }

func (m *argMeta) score() float64 {
	if m.Confidence == nil {
		return 1
	}
	return *m.Confidence
}

func (m *argMeta) flag(risk string) {
	for _, r := range m.risks {
		if r == risk {
			return
		}
	}
	m.risks = append(m.risks, risk)
}

// CRMReader is the read path of the store used by tools.
type CRMReader interface {
	SearchClients(ctx context.Context, userID string, query string, limit int) ([]store.Client, error)
	GetClient(ctx context.Context, userID string, id int64) (*store.ClientDetail, error)
	ListActivities(ctx context.Context, userID string, clientID int64, limit int) ([]store.Activity, error)
	ListSchedules(ctx context.Context, userID string, from, to string) ([]store.Schedule, error)
}

// clientRef is an existing client resolved from an id or a name.
type clientRef struct {
	ID    int64
	Name  string
	Stage string
}

// resolveClient looks up the client a write intent refers to. An id wins over
// a name. Failures to resolve are recorded on m, not returned.
func resolveClient(ctx context.Context, r CRMReader, userID string, id int64, name string, m *argMeta) (clientRef, error) {
	ref := clientRef{Name: strings.TrimSpace(name)}
	if id > 0 {
		d, err := r.GetClient(ctx, userID, id)
		if errors.Is(err, store.ErrNotFound) {
			m.flag(plan.RiskUnknownClient)
			return ref, nil
		}
		if err != nil {
			return ref, fmt.Errorf("resolve client %d: %w", id, err)
		}
		return clientRef{ID: d.ID, Name: d.CompanyName, Stage: d.Stage}, nil
	}
	if ref.Name == "" {
		return ref, nil
	}

	found, err := r.SearchClients(ctx, userID, ref.Name, 10)
	if err != nil {
		return ref, fmt.Errorf("resolve client %q: %w", ref.Name, err)
	}
	for _, c := range found {
		if dedup.IsExact(ref.Name, c.CompanyName) || (c.Alias != "" && dedup.IsExact(ref.Name, c.Alias)) {
			return clientRef{ID: c.ID, Name: c.CompanyName, Stage: c.Stage}, nil
		}
	}
	switch len(found) {
	case 0:
		m.flag(plan.RiskUnknownClient)
	case 1:
		return clientRef{ID: found[0].ID, Name: found[0].CompanyName, Stage: found[0].Stage}, nil
	default:
		m.flag(plan.RiskAmbiguousClient)
		for i, c := range found {
			if i == 5 {
				break
			}
			m.candidates = append(m.candidates, plan.Candidate{ID: c.ID, CompanyName: c.CompanyName, Alias: c.Alias, Stage: c.Stage})
		}
	}
	return ref, nil
}

// CreateClientArgs registers a new client and, optionally, its first contact.
type CreateClientArgs struct {
	CompanyName     string `json:"company_name"`
	Alias           string `json:"alias"`
	Industry        string `json:"industry"`
	Website         string `json:"website" validate:"omitempty,url"`
	Notes           string `json:"notes"`
	ContactName     string `json:"contact_name"`
	ContactPhone    string `json:"contact_phone"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email"`
	ContactPosition string `json:"contact_position"`
	argMeta
}

func (a *CreateClientArgs) Intent() plan.Intent { return plan.IntentCreateClient }

func (a *CreateClientArgs) Entities() map[string]any {
	return map[string]any{
		"company_name":     nullable(a.CompanyName),
		"alias":            nullable(a.Alias),
		"industry":         nullable(a.Industry),
		"website":          nullable(a.Website),
		"notes":            nullable(a.Notes),
		"contact_name":     nullable(a.ContactName),
		"contact_phone":    nullable(a.ContactPhone),
		"contact_email":    nullable(a.ContactEmail),
		"contact_position": nullable(a.ContactPosition),
	}
}

func (a *CreateClientArgs) Required() []string { return []string{"company_name"} }

func (a *CreateClientArgs) Steps() []plan.ActionStep {
	e := a.Entities()
	client := pick(e, "company_name", "alias", "industry", "website", "notes")
	client["stage"] = "lead"

	contactNote := "Add contact"
	if n := strings.TrimSpace(a.ContactName); n != "" {
		contactNote = "Add contact " + n
	}
	return []plan.ActionStep{
		{
			Type:      plan.StepInsert,
			Table:     "clients",
			Values:    client,
			ResultKey: "client_id",
			Notes:     "Register client " + strings.TrimSpace(a.CompanyName),
		},
		{
			Type:      plan.StepInsert,
			Table:     "contacts",
			Values:    pick(e, "contact_name", "contact_phone", "contact_email", "contact_position"),
			ValueRefs: map[string]string{"client_id": "client_id"},
			Notes:     contactNote,
		},
	}
}

// LogActivityArgs records a call, email, meeting, visit or note.
type LogActivityArgs struct {
	ClientID     int64  `json:"client_id"`
	ClientName   string `json:"client_name"`
	ActivityType string `json:"activity_type" validate:"omitempty,oneof=call email meeting visit note"`
	Content      string `json:"content"`
	ActivityDate string `json:"activity_date" validate:"omitempty,timestamp"`
	argMeta

	client clientRef
}

func (a *LogActivityArgs) Intent() plan.Intent { return plan.IntentLogActivity }

func (a *LogActivityArgs) Entities() map[string]any {
	return map[string]any{
		"client_id":     nullableID(a.client.ID),
		"client_name":   nullable(a.client.Name),
		"activity_type": nullable(a.ActivityType),
		"content":       nullable(a.Content),
		"activity_date": nullable(a.ActivityDate),
	}
}

func (a *LogActivityArgs) Required() []string {
	return []string{"client_id", "activity_type", "content"}
}

func (a *LogActivityArgs) Steps() []plan.ActionStep {
	kind := a.ActivityType
	if kind == "" {
		kind = "activity"
	}
	return []plan.ActionStep{{
		Type:   plan.StepInsert,
		Table:  "activity_logs",
		Values: pick(a.Entities(), "client_id", "activity_type", "content", "activity_date"),
		Notes:  fmt.Sprintf("Log %s with %s", kind, displayName(a.client.Name)),
	}}
}

// ChangeStageArgs moves a client through the pipeline.
type ChangeStageArgs struct {
	ClientID   int64  `json:"client_id"`
	ClientName string `json:"client_name"`
	Stage      string `json:"stage" validate:"omitempty,oneof=lead contact proposal negotiation contract won lost"`
	Note       string `json:"note"`
	argMeta

	client clientRef
}

func (a *ChangeStageArgs) Intent() plan.Intent { return plan.IntentChangeStage }

func (a *ChangeStageArgs) Entities() map[string]any {
	return map[string]any{
		"client_id":      nullableID(a.client.ID),
		"client_name":    nullable(a.client.Name),
		"stage":          nullable(a.Stage),
		"previous_stage": nullable(a.client.Stage),
		"note":           nullable(a.Note),
	}
}

func (a *ChangeStageArgs) Required() []string { return []string{"client_id", "stage"} }

func (a *ChangeStageArgs) Steps() []plan.ActionStep {
	e := a.Entities()
	content := strings.TrimSpace(a.Note)
	if content == "" {
		from := a.client.Stage
		if from == "" {
			from = "unknown"
		}
		content = fmt.Sprintf("Stage changed from %s to %s", from, a.Stage)
	}
	return []plan.ActionStep{
		{
			Type:   plan.StepUpdate,
			Table:  "clients",
			Values: pick(e, "stage"),
			Where:  map[string]any{"id": e["client_id"]},
			Notes:  fmt.Sprintf("Move %s to %s", displayName(a.client.Name), a.Stage),
		},
		{
			Type:   plan.StepInsert,
			Table:  "activity_logs",
			Values: map[string]any{"client_id": e["client_id"], "activity_type": "note", "content": content},
			Notes:  "Record the stage change",
		},
	}
}

// CreateScheduleArgs puts an appointment or deadline on the calendar.
type CreateScheduleArgs struct {
	Title        string `json:"title"`
	ScheduleType string `json:"schedule_type" validate:"omitempty,oneof=meeting call visit demo deadline other"`
	StartAt      string `json:"start_at" validate:"omitempty,timestamp"`
	EndAt        string `json:"end_at" validate:"omitempty,timestamp"`
	Location     string `json:"location"`
	Notes        string `json:"notes"`
	ClientID     int64  `json:"client_id"`
	ClientName   string `json:"client_name"`
	argMeta

	client clientRef
}

func (a *CreateScheduleArgs) Intent() plan.Intent { return plan.IntentCreateSchedule }

func (a *CreateScheduleArgs) Entities() map[string]any {
	return map[string]any{
		"title":         nullable(a.Title),
		"schedule_type": nullable(a.ScheduleType),
		"start_at":      nullable(a.StartAt),
		"end_at":        nullable(a.EndAt),
		"location":      nullable(a.Location),
		"notes":         nullable(a.Notes),
		"client_id":     nullableID(a.client.ID),
		"client_name":   nullable(a.client.Name),
	}
}

func (a *CreateScheduleArgs) Required() []string { return []string{"title", "start_at"} }

func (a *CreateScheduleArgs) Steps() []plan.ActionStep {
	note := fmt.Sprintf("Schedule '%s'", strings.TrimSpace(a.Title))
	if a.StartAt != "" {
		note += " at " + a.StartAt
	}
	return []plan.ActionStep{{
		Type:   plan.StepInsert,
		Table:  "schedules",
		Values: pick(a.Entities(), "client_id", "title", "schedule_type", "start_at", "end_at", "location", "notes"),
		Notes:  note,
	}}
}

// UpdateClientArgs edits an existing client's profile fields.
type UpdateClientArgs struct {
	ClientID    int64  `json:"client_id"`
	ClientName  string `json:"client_name"`
	CompanyName string `json:"company_name"`
	Alias       string `json:"alias"`
	Industry    string `json:"industry"`
	Website     string `json:"website" validate:"omitempty,url"`
	Notes       string `json:"notes"`
	argMeta

	client clientRef
}

var updatableClientFields = []string{"company_name", "alias", "industry", "website", "notes"}

func (a *UpdateClientArgs) Intent() plan.Intent { return plan.IntentUpdateClient }

func (a *UpdateClientArgs) Entities() map[string]any {
	return map[string]any{
		"client_id":    nullableID(a.client.ID),
		"client_name":  nullable(a.client.Name),
		"company_name": nullable(a.CompanyName),
		"alias":        nullable(a.Alias),
		"industry":     nullable(a.Industry),
		"website":      nullable(a.Website),
		"notes":        nullable(a.Notes),
	}
}

func (a *UpdateClientArgs) Required() []string { return []string{"client_id"} }

func (a *UpdateClientArgs) Steps() []plan.ActionStep {
	e := a.Entities()
	values := make(map[string]any)
	var changed []string
	for _, k := range updatableClientFields {
		if e[k] != nil {
			values[k] = e[k]
			changed = append(changed, k)
		}
	}
	return []plan.ActionStep{{
		Type:   plan.StepUpdate,
		Table:  "clients",
		Values: values,
		Where:  map[string]any{"id": e["client_id"]},
		Notes:  fmt.Sprintf("Update %s of %s", strings.Join(changed, ", "), displayName(a.client.Name)),
	}}
}

func (a *UpdateClientArgs) hasChanges() bool {
	for _, s := range []string{a.CompanyName, a.Alias, a.Industry, a.Website, a.Notes} {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

func displayName(name string) string {
	if name == "" {
		return "the client"
	}
	return name
}
