package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"

	"github.com/danielohoh/sales-ai-agent/internal/observability"
	"github.com/danielohoh/sales-ai-agent/internal/plan"
	"github.com/danielohoh/sales-ai-agent/internal/tools"
)

const (
	DefaultMaxIterations = 10
	maxParallelTools     = 4
)

// FallbackMessage is returned when the iteration cap is reached without a final answer.
const FallbackMessage = "I couldn't finish that within the allowed number of steps. Please try a simpler or more specific request."

var errNoChoices = errors.New("completion returned no choices")

// Dispatcher runs one tool call. *tools.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, input string, userID string) tools.Outcome
}

// Result is what one run of the loop produced: a final answer, or a plan
// awaiting approval together with a short message about it.
type Result struct {
	Content    string
	Plan       *plan.ActionPlan
	Iterations int
}

// Loop drives a bounded tool-calling conversation with the completion service.
type Loop struct {
	Model         llms.Model
	Registry      *tools.Registry
	Dispatcher    Dispatcher
	Prompts       *PromptManager
	Retry         RetryPolicy
	MaxIterations int
	Logger        *observability.Logger
}

func NewLoop(model llms.Model, registry *tools.Registry, dispatcher Dispatcher, prompts *PromptManager, logger *observability.Logger) *Loop {
	return &Loop{
		Model:         model,
		Registry:      registry,
		Dispatcher:    dispatcher,
		Prompts:       prompts,
		Retry:         DefaultRetryPolicy(),
		MaxIterations: DefaultMaxIterations,
		Logger:        logger,
	}
}

// Run sends the conversation and tool catalog to the model and executes the
// tool calls it asks for until it answers in text, a tool yields a plan, or
// the iteration cap is reached. Errors are upstream failures only; tool
// failures are fed back to the model.
func (l *Loop) Run(ctx context.Context, conversation []llms.MessageContent, userID string) (*Result, error) {
	messages := make([]llms.MessageContent, 0, len(conversation)+1)
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(l.Prompts.SystemPrompt())},
	})
	messages = append(messages, conversation...)

	var defs []llms.Tool
	if l.Registry != nil {
		defs = l.Registry.Definitions()
	}

	maxSteps := l.MaxIterations
	if maxSteps <= 0 {
		maxSteps = DefaultMaxIterations
	}

	for i := 0; i < maxSteps; i++ {
		iteration := i + 1
		choice, err := l.complete(ctx, userID, messages, defs)
		if err != nil {
			observability.RecordLoopIterations(iteration)
			return nil, err
		}
		l.Logger.LogLLM(userID, iteration, choice.Content, choice.ToolCalls)

		// Add Assistant's message to the conversation
		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: assistantParts,
		})

		// If no tool calls, this is the final answer
		if len(choice.ToolCalls) == 0 {
			observability.RecordLoopIterations(iteration)
			return &Result{Content: choice.Content, Iterations: iteration}, nil
		}

		outcomes := l.dispatchAll(ctx, userID, choice.ToolCalls)
		for j, tc := range choice.ToolCalls {
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       outcomes[j].Tool,
						Content:    outcomes[j].Content(),
					},
				},
			})
		}

		for _, out := range outcomes {
			if out.NeedsApproval() {
				observability.RecordLoopIterations(iteration)
				content := strings.TrimSpace(choice.Content)
				if content == "" {
					content = PlanSummary(out.Plan)
				}
				return &Result{Content: content, Plan: out.Plan, Iterations: iteration}, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	observability.RecordLoopIterations(maxSteps)
	return &Result{Content: FallbackMessage, Iterations: maxSteps}, nil
}

// complete sends one request under the retry policy.
func (l *Loop) complete(ctx context.Context, userID string, messages []llms.MessageContent, defs []llms.Tool) (*llms.ContentChoice, error) {
	withTools := len(defs) > 0
	attempts := l.Retry.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var opts []llms.CallOption
		if withTools {
			opts = append(opts, llms.WithTools(defs))
		}

		resp, err := l.Model.GenerateContent(ctx, messages, opts...)
		if err == nil && (resp == nil || len(resp.Choices) == 0) {
			err = errNoChoices
		}
		if err == nil {
			return resp.Choices[0], nil
		}
		lastErr = err

		if attempt == attempts || ctx.Err() != nil || !l.Retry.ShouldRetry(err) {
			break
		}
		mode := string(FallbackNone)
		if l.Retry.Fallback == FallbackWithoutTools && withTools {
			withTools = false
			mode = string(FallbackWithoutTools)
		}
		l.Logger.LogRetry(userID, attempt, mode, err.Error())
		observability.RecordCompletionRetry(mode)
	}
	return nil, fmt.Errorf("completion request: %w", lastErr)
}

// dispatchAll runs one iteration's tool calls concurrently. Outcomes are
// indexed like calls, whatever order they finish in.
func (l *Loop) dispatchAll(ctx context.Context, userID string, calls []llms.ToolCall) []tools.Outcome {
	outcomes := make([]tools.Outcome, len(calls))

	var g errgroup.Group
	g.SetLimit(maxParallelTools)
	for i, tc := range calls {
		g.Go(func() error {
			var name, args string
			if tc.FunctionCall != nil {
				name, args = tc.FunctionCall.Name, tc.FunctionCall.Arguments
			}
			outcomes[i] = l.Dispatcher.Dispatch(ctx, name, args, userID)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// PlanSummary describes a pending plan for the human reviewing it.
func PlanSummary(p *plan.ActionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I've prepared a plan (%s): %s.", p.Intent, plan.JoinNotes(p.Notes()))
	if len(p.MissingFields) > 0 {
		fmt.Fprintf(&b, " Missing: %s.", strings.Join(p.MissingFields, ", "))
	}
	if p.HasRisk(plan.RiskDuplicateClient) {
		names := make([]string, 0, len(p.DuplicateCandidates))
		for _, c := range p.DuplicateCandidates {
			names = append(names, c.CompanyName)
		}
		fmt.Fprintf(&b, " Similar existing clients: %s.", strings.Join(names, ", "))
	}
	b.WriteString(" Approve to apply it, or edit the details first.")
	return b.String()
}
