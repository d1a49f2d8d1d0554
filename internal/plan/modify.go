package plan

import (
	"reflect"
)

// RecordKeys names the entity that identifies a row of each table, so an
// update's "id" predicate follows edits to that entity.
var RecordKeys = map[string]string{
	"clients":       "client_id",
	"contacts":      "contact_id",
	"activity_logs": "activity_id",
	"schedules":     "schedule_id",
}

// WithModifications returns a copy of p whose entities carry mods and whose
// steps are re-stamped: a step value or where predicate equal to the original
// entity under the same key is replaced by the edited value. A where "id"
// predicate is matched against the table's record key. p itself is not changed.
func (p *ActionPlan) WithModifications(mods map[string]any) *ActionPlan {
	out := p.Clone()
	if len(mods) == 0 {
		return out
	}
	if out.Entities == nil {
		out.Entities = make(map[string]any, len(mods))
	}

	original := p.Entities
	for key, edited := range mods {
		out.Entities[key] = edited

		orig, known := original[key]
		if !known {
			continue
		}
		for i := range out.Actions {
			cur, ok := out.Actions[i].Values[key]
			if ok && sameValue(cur, orig) {
				out.Actions[i].Values[key] = edited
			}
			restampWhere(&out.Actions[i], key, orig, edited)
		}
	}

	out.MissingFields = remainingMissing(out.MissingFields, out.Entities)
	return out
}

func restampWhere(step *ActionStep, key string, orig, edited any) {
	for col, cur := range step.Where {
		if col != key && !(col == "id" && RecordKeys[step.Table] == key) {
			continue
		}
		if sameValue(cur, orig) {
			step.Where[col] = edited
		}
	}
}

func remainingMissing(missing []string, entities map[string]any) []string {
	var left []string
	for _, f := range missing {
		if isBlank(entities[f]) {
			left = append(left, f)
		}
	}
	return left
}

// sameValue compares entity values that may have crossed a JSON boundary,
// where every number decodes as float64.
func sameValue(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
