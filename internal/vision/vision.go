// Package vision reads image and document attachments before a turn reaches
// the completion loop.
package vision

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tmc/langchaingo/llms"

	"github.com/danielohoh/sales-ai-agent/internal/observability"
)

// ErrNoText means the vision service answered but nothing usable was read.
var ErrNoText = errors.New("no text extracted")

// DegradedNotice is added to the user's message when attachments could not be read.
const DegradedNotice = "[Note: the attached file could not be read, so only the text of this message is available.]"

const extractionPrompt = `Read the attached files. They are usually business cards, meeting notes, quotes or schedules.
Reply with one JSON object only:
{"text": "<all readable text, line by line>", "company_name": "", "contact_name": "", "position": "", "phone": "", "email": "", "website": "", "dates": ["YYYY-MM-DD"]}
Leave a field empty when it does not appear.`

var supportedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Supported reports whether the vision service accepts mediaType.
func Supported(mediaType string) bool {
	return supportedTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

// Attachment is one file sent along with a message. Data is base64 in JSON.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// Preprocessor extracts text from attachments with a multimodal model.
type Preprocessor struct {
	Model     llms.Model
	Logger    *observability.Logger
	MaxBytes  int
	sanitizer *bluemonday.Policy
}

func NewPreprocessor(model llms.Model, logger *observability.Logger) *Preprocessor {
	return &Preprocessor{
		Model:     model,
		Logger:    logger,
		MaxBytes:  10 << 20,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Extract reads the supported attachments and returns the merged summary.
func (p *Preprocessor) Extract(ctx context.Context, atts []Attachment) (Summary, error) {
	parts := []llms.ContentPart{llms.TextPart(extractionPrompt)}
	for _, a := range atts {
		if p.MaxBytes > 0 && len(a.Data) > p.MaxBytes {
			return Summary{}, fmt.Errorf("attachment %s is larger than %d bytes", a.Name, p.MaxBytes)
		}
		parts = append(parts, llms.BinaryPart(strings.ToLower(a.MediaType), a.Data))
	}

	resp, err := p.Model.GenerateContent(ctx, []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: parts,
	}})
	if err != nil {
		return Summary{}, fmt.Errorf("vision request: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Summary{}, ErrNoText
	}
	raw := resp.Choices[0].Content

	model, err := ParseModelSummary(raw)
	if err != nil {
		// plain text reply; the heuristic still gets to read it
		model = Summary{}
	}
	source := model.Text
	if strings.TrimSpace(source) == "" && err != nil {
		source = raw
	}

	merged := p.clean(Merge(model, HeuristicExtract(source)))
	if merged.IsEmpty() {
		return Summary{}, ErrNoText
	}
	return merged, nil
}

// clean strips markup the model may have echoed from a document.
func (p *Preprocessor) clean(s Summary) Summary {
	policy := p.sanitizer
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}
	strip := func(v string) string {
		return strings.TrimSpace(html.UnescapeString(policy.Sanitize(v)))
	}
	s.CompanyName = strip(s.CompanyName)
	s.ContactName = strip(s.ContactName)
	s.Position = strip(s.Position)
	s.Phone = strip(s.Phone)
	s.Email = strip(s.Email)
	s.Website = strip(s.Website)
	s.Text = strip(s.Text)
	return s
}

// Apply returns a copy of conversation whose last user message carries the
// text read from atts, or a degradation notice when nothing could be read.
// The turn never fails because of an attachment.
func (p *Preprocessor) Apply(ctx context.Context, userID string, conversation []llms.MessageContent, atts []Attachment) []llms.MessageContent {
	if len(atts) == 0 {
		return conversation
	}

	var logger *observability.Logger
	maxBytes := 0
	if p != nil {
		logger = p.Logger
		maxBytes = p.MaxBytes
	}

	var readable []Attachment
	var unsupported, tooLarge []string
	for _, a := range atts {
		switch {
		case !Supported(a.MediaType):
			unsupported = append(unsupported, fmt.Sprintf("%s (%s)", a.Name, a.MediaType))
		case maxBytes > 0 && len(a.Data) > maxBytes:
			tooLarge = append(tooLarge, fmt.Sprintf("%s (%d bytes, limit %d)", a.Name, len(a.Data), maxBytes))
		default:
			readable = append(readable, a)
		}
	}
	skipped := skipNotes(unsupported, tooLarge)

	var prefix, suffix string
	switch {
	case len(readable) == 0:
		suffix = skipped
		logger.LogVision(userID, len(atts), "skipped")
	case p == nil || p.Model == nil:
		suffix = strings.TrimSpace(DegradedNotice + " " + skipped)
		logger.LogVision(userID, len(atts), "unavailable")
	default:
		summary, err := p.Extract(ctx, readable)
		if err != nil {
			suffix = DegradedNotice
			logger.LogVision(userID, len(readable), "degraded: "+err.Error())
		} else {
			prefix = "[Read from attachment]\n" + summary.Render()
			logger.LogVision(userID, len(readable), "ok")
		}
		suffix = strings.TrimSpace(suffix + " " + skipped)
	}
	return annotateLastUserMessage(conversation, prefix, suffix)
}

func skipNotes(unsupported, tooLarge []string) string {
	var notes []string
	if len(unsupported) > 0 {
		notes = append(notes, fmt.Sprintf("[Note: unsupported attachment skipped: %s]", strings.Join(unsupported, ", ")))
	}
	if len(tooLarge) > 0 {
		notes = append(notes, fmt.Sprintf("[Note: attachment too large, skipped: %s]", strings.Join(tooLarge, ", ")))
	}
	return strings.Join(notes, " ")
}

func annotateLastUserMessage(conversation []llms.MessageContent, prefix, suffix string) []llms.MessageContent {
	out := make([]llms.MessageContent, len(conversation))
	copy(out, conversation)

	idx := -1
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == llms.ChatMessageTypeHuman {
			idx = i
			break
		}
	}
	if idx < 0 {
		out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeHuman})
		idx = len(out) - 1
	}

	msg := out[idx]
	var text []string
	var rest []llms.ContentPart
	for _, part := range msg.Parts {
		if tc, ok := part.(llms.TextContent); ok {
			text = append(text, tc.Text)
			continue
		}
		rest = append(rest, part)
	}

	body := strings.Join(text, "\n")
	if prefix != "" {
		body = prefix + "\n\n" + body
	}
	if suffix != "" {
		body = strings.TrimSpace(body + "\n\n" + suffix)
	}

	parts := append([]llms.ContentPart{llms.TextPart(strings.TrimSpace(body))}, rest...)
	out[idx] = llms.MessageContent{Role: msg.Role, Parts: parts}
	return out
}
