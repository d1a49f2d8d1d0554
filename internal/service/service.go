// Package service is the boundary shared by the HTTP API, the Telegram bot
// and the terminal REPL: one Converse turn and one Execute call.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tmc/langchaingo/llms"

	"github.com/danielohoh/sales-ai-agent/internal/agent"
	"github.com/danielohoh/sales-ai-agent/internal/approval"
	"github.com/danielohoh/sales-ai-agent/internal/executor"
	"github.com/danielohoh/sales-ai-agent/internal/observability"
	"github.com/danielohoh/sales-ai-agent/internal/plan"
	"github.com/danielohoh/sales-ai-agent/internal/store"
	"github.com/danielohoh/sales-ai-agent/internal/vision"
)

const (
	DefaultTurnTimeout  = 30 * time.Second
	DefaultHistoryLimit = 20
)

// User-facing replies for turns that could not complete.
const (
	TimeoutMessage  = "That took too long and was stopped. Nothing was changed; please try again, perhaps with a shorter request."
	UpstreamMessage = "The assistant service is not responding right now. Nothing was changed; please try again in a moment."
)

// ErrInvalidRequest marks a Converse request rejected before any work.
var ErrInvalidRequest = errors.New("invalid request")

// Message is one conversation entry as clients send it.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

type ConverseRequest struct {
	Messages    []Message           `json:"messages" validate:"required,min=1,dive"`
	UserID      string              `json:"user_id" validate:"required"`
	Attachments []vision.Attachment `json:"attachments,omitempty"`
}

// ConverseResponse carries a final answer, or a plan awaiting approval.
type ConverseResponse struct {
	Content    string           `json:"content"`
	ActionPlan *plan.ActionPlan `json:"action_plan,omitempty"`
}

// Runner is the completion loop.
type Runner interface {
	Run(ctx context.Context, conversation []llms.MessageContent, userID string) (*agent.Result, error)
}

// Reader prepares attachments for the loop.
type Reader interface {
	Apply(ctx context.Context, userID string, conversation []llms.MessageContent, atts []vision.Attachment) []llms.MessageContent
}

type PlanExecutor interface {
	Execute(ctx context.Context, req executor.Request) *plan.Result
}

// History persists chat turns for the stateful gateways.
type History interface {
	AddMessage(ctx context.Context, chatID string, role string, content string) error
	GetHistory(ctx context.Context, chatID string, limit int) ([]store.Message, error)
}

type Service struct {
	Loop         Runner
	Vision       Reader
	Executor     PlanExecutor
	Gate         *approval.Gate
	History      History
	HistoryLimit int
	TurnTimeout  time.Duration
	Logger       *observability.Logger
}

type Option func(*Service)

func WithTurnTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.TurnTimeout = d
		}
	}
}

// WithHistory enables Chat, which keeps the conversation in h.
func WithHistory(h History, limit int) Option {
	return func(s *Service) {
		s.History = h
		if limit > 0 {
			s.HistoryLimit = limit
		}
	}
}

// WithGate holds proposed plans server side until they are approved or
// rejected; pending plans expire after ttl.
func WithGate(ttl time.Duration) Option {
	return func(s *Service) {
		s.Gate = approval.NewGate(s.executeApproved, ttl)
	}
}

func New(loop Runner, reader Reader, exec PlanExecutor, logger *observability.Logger, opts ...Option) *Service {
	s := &Service{
		Loop:         loop,
		Vision:       reader,
		Executor:     exec,
		HistoryLimit: DefaultHistoryLimit,
		TurnTimeout:  DefaultTurnTimeout,
		Logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Converse runs one turn. Upstream failures and timeouts come back as a
// response with a user-facing message; the error is for invalid requests.
func (s *Service) Converse(ctx context.Context, req ConverseRequest) (*ConverseResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}

	conv := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		conv = append(conv, llms.TextParts(roleOf(m.Role), m.Content))
	}
	return s.turn(ctx, req.UserID, conv, req.Attachments), nil
}

// Chat runs one turn of a stored conversation identified by chatID.
func (s *Service) Chat(ctx context.Context, chatID, userID, text string, atts []vision.Attachment) (*ConverseResponse, error) {
	if s.History == nil {
		return nil, errors.New("chat history is not configured")
	}
	if strings.TrimSpace(text) == "" && len(atts) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidRequest)
	}

	past, err := s.History.GetHistory(ctx, chatID, s.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	conv := make([]llms.MessageContent, 0, len(past)+1)
	for _, m := range past {
		conv = append(conv, llms.TextParts(roleOf(m.Role), m.Content))
	}
	conv = append(conv, llms.TextParts(llms.ChatMessageTypeHuman, text))

	resp := s.turn(ctx, userID, conv, atts)

	if err := s.History.AddMessage(ctx, chatID, "user", text); err != nil {
		return resp, fmt.Errorf("save history: %w", err)
	}
	if err := s.History.AddMessage(ctx, chatID, "assistant", resp.Content); err != nil {
		return resp, fmt.Errorf("save history: %w", err)
	}
	return resp, nil
}

type turnResult struct {
	res *agent.Result
	err error
}

func (s *Service) turn(ctx context.Context, userID string, conv []llms.MessageContent, atts []vision.Attachment) *ConverseResponse {
	start := time.Now()
	defer observability.BeginTurn()()
	ctx, cancel := context.WithTimeout(ctx, s.TurnTimeout)
	defer cancel()

	if len(atts) > 0 && s.Vision != nil {
		conv = s.Vision.Apply(ctx, userID, conv, atts)
	}

	done := make(chan turnResult, 1)
	go func() {
		res, err := s.Loop.Run(ctx, conv, userID)
		done <- turnResult{res, err}
	}()

	var out turnResult
	select {
	case out = <-done:
	case <-ctx.Done():
		out = turnResult{err: ctx.Err()}
	}

	// a plan finished after the deadline is dropped with the rest of the turn
	if ctx.Err() != nil {
		s.finish(userID, "timeout", start, ctx.Err())
		return &ConverseResponse{Content: TimeoutMessage}
	}
	if out.err != nil {
		s.finish(userID, "error", start, out.err)
		return &ConverseResponse{Content: UpstreamMessage}
	}

	if out.res == nil {
		out.res = &agent.Result{}
	}
	resp := &ConverseResponse{Content: out.res.Content, ActionPlan: out.res.Plan}
	if resp.ActionPlan == nil {
		if strings.TrimSpace(resp.Content) == "" {
			resp.Content = agent.FallbackMessage
		}
		s.finish(userID, "answer", start, nil)
		return resp
	}

	if s.Gate != nil {
		if _, err := s.Gate.Propose(resp.ActionPlan, userID); err != nil {
			s.finish(userID, "error", start, err)
			return &ConverseResponse{Content: fmt.Sprintf("The plan could not be held for approval: %v. Please ask again.", err)}
		}
	}
	s.finish(userID, "plan", start, nil)
	return resp
}

func (s *Service) finish(userID, result string, start time.Time, err error) {
	elapsed := time.Since(start)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.Logger.LogTurn(userID, result, elapsed, msg)
	observability.RecordTurn(result, elapsed.Seconds())
}

// Execute runs an approved plan that the client holds.
func (s *Service) Execute(ctx context.Context, req executor.Request) *plan.Result {
	return s.Executor.Execute(ctx, req)
}

// Approve executes a plan held by the gate.
func (s *Service) Approve(ctx context.Context, planID, userID string, mods map[string]any) (*approval.Approval, error) {
	if s.Gate == nil {
		return nil, errors.New("approval gate is not configured")
	}
	return s.Gate.Approve(ctx, planID, userID, mods)
}

// Reject discards a plan held by the gate.
func (s *Service) Reject(planID, userID string) (*approval.Approval, error) {
	if s.Gate == nil {
		return nil, errors.New("approval gate is not configured")
	}
	return s.Gate.Reject(planID, userID)
}

func (s *Service) executeApproved(ctx context.Context, p *plan.ActionPlan, userID string, mods map[string]any) *plan.Result {
	return s.Executor.Execute(ctx, executor.Request{Plan: p, UserID: userID, Modifications: mods})
}

func roleOf(role string) llms.ChatMessageType {
	switch role {
	case "assistant":
		return llms.ChatMessageTypeAI
	case "system":
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, ns+" is required")
		case "min":
			parts = append(parts, ns+" must not be empty")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", ns, fe.Param()))
		default:
			parts = append(parts, ns+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
