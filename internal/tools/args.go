package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FieldError names one argument that failed to parse or validate.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ArgError is returned when a tool's raw arguments cannot be narrowed into
// its typed form. It is fed back to the model so it can correct the call.
type ArgError struct {
	Tool   string
	Cause  string
	Fields []FieldError
}

func (e *ArgError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid arguments for %s", e.Tool)
	if e.Cause != "" {
		b.WriteString(": " + e.Cause)
	}
	for i, f := range e.Fields {
		if i == 0 && e.Cause == "" {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s %s", f.Field, f.Reason)
	}
	return b.String()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		_, ok := ParseTimestamp(fl.Field().String())
		return ok
	})
	return v
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts a date or a date-time in the layouts tools advertise.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseArgs decodes input into T and validates it. An empty input decodes as
// an empty object.
func parseArgs[T any](tool, input string) (*T, error) {
	if strings.TrimSpace(input) == "" {
		input = "{}"
	}

	args := new(T)
	if err := json.Unmarshal([]byte(input), args); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ArgError{Tool: tool, Fields: []FieldError{{
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("must be a %s, got %s", typeErr.Type.Kind(), typeErr.Value),
			}}}
		}
		return nil, &ArgError{Tool: tool, Cause: "malformed JSON: " + err.Error()}
	}

	if err := validate.Struct(args); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, &ArgError{Tool: tool, Cause: err.Error()}
		}
		argErr := &ArgError{Tool: tool}
		for _, fe := range verrs {
			argErr.Fields = append(argErr.Fields, FieldError{Field: fe.Field(), Reason: reason(fe)})
		}
		return nil, argErr
	}
	return args, nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "timestamp":
		return "must be a date (YYYY-MM-DD) or date-time (YYYY-MM-DDTHH:MM)"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// nullable turns a blank string into nil so unresolved entities serialize as null.
func nullable(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func pick(entities map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = entities[k]
	}
	return out
}
