package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultSystemPrompt is used when no prompt directory is configured or it holds no files.
const DefaultSystemPrompt = `You are a sales operations assistant working on top of the user's CRM.

- Answer questions about clients, activities and schedules with the read tools. Never guess record contents.
- When the user asks to record or change something, call exactly one write tool with the details you extracted.
  Write tools do not save anything; they prepare a plan the user reviews and approves.
- Search for an existing client before registering a new one.
- Leave a field out rather than inventing a value. Missing details are shown to the user for review.
- Keep answers short and concrete.`

// PromptManager assembles the system prompt from markdown files.
type PromptManager struct {
	Directory string
	Now       func() time.Time
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir, Now: time.Now}
}

// fixed ordering for known files; others follow alphabetically
var promptOrder = map[string]int{
	"identity.md": 1,
	"tools.md":    2,
	"rules.md":    3,
	"user.md":     4,
}

// SystemPrompt joins the prompt files and appends today's date, which the
// model needs to resolve relative dates like "next Tuesday".
func (pm *PromptManager) SystemPrompt() string {
	body, err := pm.load()
	if err != nil {
		if pm != nil && pm.Directory != "" {
			log.Printf("Warning: using default system prompt: %v", err)
		}
		body = DefaultSystemPrompt
	}

	now := time.Now
	if pm != nil && pm.Now != nil {
		now = pm.Now
	}
	today := now()
	return fmt.Sprintf("%s\n\nToday is %s (%s).", body, today.Format("2006-01-02"), today.Weekday())
}

func (pm *PromptManager) load() (string, error) {
	if pm == nil || pm.Directory == "" {
		return "", fmt.Errorf("no prompt directory")
	}
	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		oi, okI := promptOrder[entries[i].Name()]
		oj, okJ := promptOrder[entries[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI != okJ {
			return okI
		}
		return entries[i].Name() < entries[j].Name()
	})

	var contents []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(pm.Directory, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		if s := strings.TrimSpace(string(data)); s != "" {
			contents = append(contents, s)
		}
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}
