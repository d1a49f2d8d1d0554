package tools

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// Kind separates tools that answer from the store or the web from tools that
// only ever propose a plan.
type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Kind() Kind
}

// ReadTool answers a query. It never mutates the store.
type ReadTool interface {
	Tool
	Query(ctx context.Context, userID string, input string) (any, error)
}

// WriteTool narrows raw arguments into a typed intent. The dispatcher turns
// the intent into a plan; nothing is written.
type WriteTool interface {
	Tool
	Narrow(ctx context.Context, userID string, input string) (IntentArgs, error)
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.Tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.Tools[name])
	}
	return out
}

// Definitions renders the catalog in the shape the model expects.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.order))
	for _, t := range r.List() {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
