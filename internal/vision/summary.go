package vision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Summary is the structured reading of an attachment, e.g. a business card
// or a meeting note.
type Summary struct {
	CompanyName string   `json:"company_name,omitempty"`
	ContactName string   `json:"contact_name,omitempty"`
	Position    string   `json:"position,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Email       string   `json:"email,omitempty"`
	Website     string   `json:"website,omitempty"`
	Dates       []string `json:"dates,omitempty"`
	Text        string   `json:"text,omitempty"`
}

// IsEmpty reports whether nothing usable was read.
func (s Summary) IsEmpty() bool {
	return strings.TrimSpace(s.Text) == "" && s.CompanyName == "" && s.ContactName == "" &&
		s.Phone == "" && s.Email == "" && s.Website == "" && len(s.Dates) == 0
}

var (
	emailRe   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe   = regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{2,4}\)[\s.\-]?|\d{2,4}[\s.\-])\d{3,4}[\s.\-]\d{4}\b|\b\d{3}-\d{4}\b`)
	isoDateRe = regexp.MustCompile(`\b(\d{4})[-./](\d{1,2})[-./](\d{1,2})\b`)
	usDateRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	urlRe     = regexp.MustCompile(`\b(?:https?://|www\.)[^\s,;]+`)
	companyRe = regexp.MustCompile(`(?m)^\s*(.{2,60}?\b(?:Inc|Corp|Corporation|Co|Company|Ltd|LLC|GmbH|AG|PLC|Group|Holdings)\.?)\s*$`)
)

// HeuristicExtract scans raw text for contact details and dates. It does not
// call any model.
func HeuristicExtract(text string) Summary {
	s := Summary{Text: strings.TrimSpace(text)}
	if s.Text == "" {
		return s
	}

	s.Email = emailRe.FindString(text)
	if m := phoneRe.FindString(text); m != "" {
		s.Phone = strings.TrimSpace(m)
	}
	if m := urlRe.FindString(text); m != "" {
		s.Website = strings.TrimRight(m, ".")
	}
	if m := companyRe.FindStringSubmatch(text); m != nil {
		s.CompanyName = strings.TrimSpace(m[1])
	}

	seen := make(map[string]bool)
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			s.Dates = append(s.Dates, d)
		}
	}
	for _, m := range isoDateRe.FindAllStringSubmatch(text, -1) {
		if d, ok := isoDate(m[1], m[2], m[3]); ok {
			add(d)
		}
	}
	for _, m := range usDateRe.FindAllStringSubmatch(text, -1) {
		if d, ok := isoDate(m[3], m[1], m[2]); ok {
			add(d)
		}
	}
	return s
}

func isoDate(y, m, d string) (string, bool) {
	var year, month, day int
	if _, err := fmt.Sscanf(y+" "+m+" "+d, "%d %d %d", &year, &month, &day); err != nil {
		return "", false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// ParseModelSummary reads the JSON object in a model reply, tolerating code
// fences and surrounding prose.
func ParseModelSummary(raw string) (Summary, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Summary{}, fmt.Errorf("no JSON object in model reply")
	}
	var s Summary
	if err := json.Unmarshal([]byte(raw[start:end+1]), &s); err != nil {
		return Summary{}, fmt.Errorf("decode model summary: %w", err)
	}
	return s, nil
}

// Merge prefers the model's fields and fills its gaps from the heuristic.
// Dates are the union of both, model first.
func Merge(model, heuristic Summary) Summary {
	out := model
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&out.CompanyName, heuristic.CompanyName)
	fill(&out.ContactName, heuristic.ContactName)
	fill(&out.Position, heuristic.Position)
	fill(&out.Phone, heuristic.Phone)
	fill(&out.Email, heuristic.Email)
	fill(&out.Website, heuristic.Website)
	fill(&out.Text, heuristic.Text)

	seen := make(map[string]bool, len(out.Dates))
	dates := make([]string, 0, len(model.Dates)+len(heuristic.Dates))
	for _, d := range append(append([]string{}, model.Dates...), heuristic.Dates...) {
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	out.Dates = dates
	if len(out.Dates) == 0 {
		out.Dates = nil
	}
	return out
}

// Render formats a summary as plain text for the conversation.
func (s Summary) Render() string {
	var b strings.Builder
	if t := strings.TrimSpace(s.Text); t != "" {
		b.WriteString(t)
		b.WriteString("\n")
	}

	var details []string
	add := func(label, v string) {
		if v != "" {
			details = append(details, label+": "+v)
		}
	}
	add("company", s.CompanyName)
	add("contact", s.ContactName)
	add("position", s.Position)
	add("phone", s.Phone)
	add("email", s.Email)
	add("website", s.Website)
	if len(s.Dates) > 0 {
		add("dates", strings.Join(s.Dates, ", "))
	}
	if len(details) > 0 {
		b.WriteString("Details: ")
		b.WriteString(strings.Join(details, "; "))
	}
	return strings.TrimSpace(b.String())
}
