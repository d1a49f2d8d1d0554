package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypePlan       EventType = "plan"
	EventTypeStep       EventType = "step"
	EventTypeExecution  EventType = "execution"
	EventTypeRetry      EventType = "retry"
	EventTypeVision     EventType = "vision"
	EventTypeLLM        EventType = "llm"
	EventTypeTurn       EventType = "turn"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	PlanID    string    `json:"plan_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger discards everything.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, filepath.Join("logs", "llm.jsonl"))
}

// NewLoggerTo writes events to w. An empty llmLogPath disables the LLM transcript file.
func NewLoggerTo(w io.Writer, llmLogPath string) *Logger {
	return &Logger{
		out:        w,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogToolCall(userID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		UserID: userID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(userID, tool, outcome, planID string) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		UserID: userID,
		PlanID: planID,
		Data: map[string]string{
			"tool":    tool,
			"outcome": outcome,
		},
	})
}

func (l *Logger) LogPlan(userID, planID, intent string, steps int, missing, risks []string) {
	l.Log(Event{
		Type:   EventTypePlan,
		UserID: userID,
		PlanID: planID,
		Data: map[string]any{
			"intent":         intent,
			"steps":          steps,
			"missing_fields": missing,
			"risk_flags":     risks,
		},
	})
}

func (l *Logger) LogStep(userID, planID string, index int, table, status, errMsg string) {
	l.Log(Event{
		Type:   EventTypeStep,
		UserID: userID,
		PlanID: planID,
		Data: map[string]any{
			"step":   index,
			"table":  table,
			"status": status,
			"error":  errMsg,
		},
	})
}

func (l *Logger) LogExecution(userID, planID, status, code, message string) {
	l.Log(Event{
		Type:   EventTypeExecution,
		UserID: userID,
		PlanID: planID,
		Data: map[string]string{
			"status":  status,
			"code":    code,
			"message": message,
		},
	})
}

func (l *Logger) LogRetry(userID string, attempt int, mode, reason string) {
	l.Log(Event{
		Type:   EventTypeRetry,
		UserID: userID,
		Data: map[string]any{
			"attempt": attempt,
			"mode":    mode,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogVision(userID string, attachments int, status string) {
	l.Log(Event{
		Type:   EventTypeVision,
		UserID: userID,
		Data: map[string]any{
			"attachments": attachments,
			"status":      status,
		},
	})
}

func (l *Logger) LogLLM(userID string, iteration int, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		UserID: userID,
		Data: map[string]any{
			"iteration":  iteration,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}

func (l *Logger) LogTurn(userID, result string, elapsed time.Duration, errMsg string) {
	l.Log(Event{
		Type:   EventTypeTurn,
		UserID: userID,
		Data: map[string]any{
			"result":     result,
			"elapsed_ms": elapsed.Milliseconds(),
			"error":      errMsg,
		},
	})
}
