package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/danielohoh/sales-ai-agent/internal/plan"
)

// writable columns per table; user_id and timestamps are stamped by the store
var tableColumns = map[string]map[string]bool{
	"clients":       set("company_name", "alias", "industry", "stage", "website", "notes"),
	"contacts":      set("client_id", "contact_name", "contact_phone", "contact_email", "contact_position"),
	"activity_logs": set("client_id", "activity_type", "content", "activity_date"),
	"schedules":     set("client_id", "title", "schedule_type", "start_at", "end_at", "location", "notes"),
}

var touchesUpdatedAt = set("clients")

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i] = true
	}
	return m
}

// StepError reports the step at which a transaction failed. The transaction
// has been rolled back when it is returned.
type StepError struct {
	Index int // 1-based
	Table string
	Notes string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Table, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ExecReport carries per-step results and the ids produced under result keys.
type ExecReport struct {
	Results  []plan.StepResult
	Produced map[string]int64
}

// ExecutePlan runs steps in order inside one transaction, scoped to userID.
// Either every step commits or none does. On a step failure the returned
// report holds the results up to and including the failed step and the error
// is a *StepError. If no transaction could be opened the error wraps
// ErrUnavailable.
func (s *Store) ExecutePlan(ctx context.Context, userID string, steps []plan.ActionStep) (*ExecReport, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	report := &ExecReport{Produced: make(map[string]int64)}
	for i, step := range steps {
		idx := i + 1
		res, err := execStep(ctx, tx, userID, step, report.Produced)
		res.StepIndex = idx
		res.ActionType = step.Type
		res.Table = step.Table
		if err != nil {
			_ = tx.Rollback()
			res.Status = plan.StepError
			res.Error = err.Error()
			report.Results = append(report.Results, res)
			return report, &StepError{Index: idx, Table: step.Table, Notes: step.Notes, Err: err}
		}
		report.Results = append(report.Results, res)
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("commit: %w", err)
	}
	return report, nil
}

func execStep(ctx context.Context, tx *sql.Tx, userID string, step plan.ActionStep, produced map[string]int64) (plan.StepResult, error) {
	if step.IsEmpty() {
		return plan.StepResult{Status: plan.StepSkipped}, nil
	}

	allowed, ok := tableColumns[step.Table]
	if !ok {
		return plan.StepResult{}, fmt.Errorf("unknown table %s", step.Table)
	}

	cols, args, err := columnValues(allowed, step, produced)
	if err != nil {
		return plan.StepResult{}, err
	}

	switch step.Type {
	case plan.StepInsert:
		return insert(ctx, tx, userID, step, cols, args, produced)
	case plan.StepUpdate:
		return update(ctx, tx, userID, step, allowed, cols, args)
	default:
		return plan.StepResult{}, fmt.Errorf("unsupported step type %s", step.Type)
	}
}

func columnValues(allowed map[string]bool, step plan.ActionStep, produced map[string]int64) ([]string, []any, error) {
	merged := make(map[string]any, len(step.Values)+len(step.ValueRefs))
	for col, v := range step.Values {
		merged[col] = v
	}
	for col, key := range step.ValueRefs {
		id, ok := produced[key]
		if !ok {
			return nil, nil, fmt.Errorf("result '%s' is not available", key)
		}
		merged[col] = id
	}

	cols := make([]string, 0, len(merged))
	for col := range merged {
		if !allowed[col] {
			return nil, nil, fmt.Errorf("column %s is not writable on %s", col, step.Table)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	for _, col := range cols {
		v, err := sqlValue(merged[col])
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", col, err)
		}
		args = append(args, v)
	}
	return cols, args, nil
}

func sqlValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, int, int64, float64:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func insert(ctx context.Context, tx *sql.Tx, userID string, step plan.ActionStep, cols []string, args []any, produced map[string]int64) (plan.StepResult, error) {
	cols = append(cols, "user_id")
	args = append(args, userID)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		step.Table, strings.Join(cols, ", "), placeholders(len(cols)))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return plan.StepResult{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return plan.StepResult{}, err
	}
	if step.ResultKey != "" {
		produced[step.ResultKey] = id
	}

	data := map[string]any{"id": id}
	if step.ResultKey != "" {
		data[step.ResultKey] = id
	}
	return plan.StepResult{Status: plan.StepSuccess, Data: data}, nil
}

func update(ctx context.Context, tx *sql.Tx, userID string, step plan.ActionStep, allowed map[string]bool, cols []string, args []any) (plan.StepResult, error) {
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
	}
	if touchesUpdatedAt[step.Table] {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	}

	whereCols := make([]string, 0, len(step.Where))
	for col := range step.Where {
		if col != "id" && !allowed[col] {
			return plan.StepResult{}, fmt.Errorf("column %s cannot be used in a predicate on %s", col, step.Table)
		}
		whereCols = append(whereCols, col)
	}
	if len(whereCols) == 0 {
		return plan.StepResult{}, fmt.Errorf("update on %s has no predicate", step.Table)
	}
	sort.Strings(whereCols)

	conds := make([]string, 0, len(whereCols)+1)
	for _, col := range whereCols {
		v, err := sqlValue(step.Where[col])
		if err != nil {
			return plan.StepResult{}, fmt.Errorf("predicate %s: %w", col, err)
		}
		if v == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		conds = append(conds, col+" = ?")
		args = append(args, v)
	}
	conds = append(conds, "user_id = ?")
	args = append(args, userID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		step.Table, strings.Join(sets, ", "), strings.Join(conds, " AND "))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return plan.StepResult{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return plan.StepResult{}, err
	}
	if n == 0 {
		return plan.StepResult{}, fmt.Errorf("no matching %s record owned by this user", step.Table)
	}
	return plan.StepResult{Status: plan.StepSuccess, Data: map[string]any{"rows_affected": n}}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
