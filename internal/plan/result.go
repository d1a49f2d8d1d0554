package plan

import "strings"

// StepStatus is the outcome of one executed or skipped step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepSkipped StepStatus = "skipped"
	StepError   StepStatus = "error"
)

// StepResult reports one attempted step. StepIndex is 1-based.
type StepResult struct {
	StepIndex  int            `json:"step_index"`
	ActionType StepType       `json:"action_type"`
	Table      string         `json:"table"`
	Status     StepStatus     `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Status is the overall outcome of a plan execution.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusRolledBack Status = "rolled_back"
)

// Result codes distinguishing error classes on the Execute path.
const (
	CodeInvalidInput     = "invalid_input"
	CodeValidation       = "validation_failed"
	CodeDuplicateClient  = "duplicate_client"
	CodeStoreUnavailable = "store_unavailable"
	CodeStepFailed       = "step_failed"
	CodeAlreadyExecuted  = "already_executed"
)

// Result is the overall outcome of executing one plan.
type Result struct {
	PlanID      string         `json:"plan_id"`
	Status      Status         `json:"status"`
	Code        string         `json:"code,omitempty"`
	Message     string         `json:"message"`
	RolledBack  bool           `json:"rolled_back"`
	FailedStep  *int           `json:"failed_step"`
	StepResults []StepResult   `json:"step_results,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Succeeded reports whether the plan committed.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Fail builds an error result with no step attempted.
func Fail(planID, code, message string) *Result {
	return &Result{
		PlanID:  planID,
		Status:  StatusError,
		Code:    code,
		Message: message,
	}
}

// JoinNotes composes the human-readable success message.
func JoinNotes(notes []string) string {
	if len(notes) == 0 {
		return "Done."
	}
	return strings.Join(notes, "; ")
}
