package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher is satisfied by langchaingo's search tools.
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// WebSearchTool researches prospects on the public web.
type WebSearchTool struct {
	client Searcher
}

func NewWebSearchTool() (*WebSearchTool, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &WebSearchTool{client: ddg}, nil
}

// NewWebSearchToolWith wraps any searcher, e.g. a fake in tests.
func NewWebSearchToolWith(s Searcher) *WebSearchTool {
	return &WebSearchTool{client: s}
}

func (s *WebSearchTool) Name() string {
	return "web_search"
}

func (s *WebSearchTool) Kind() Kind { return KindRead }

func (s *WebSearchTool) Description() string {
	return "Search the web with DuckDuckGo for public information about a company or person, e.g. before a first meeting."
}

func (s *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

func (s *WebSearchTool) Query(ctx context.Context, userID string, input string) (any, error) {
	args, err := parseArgs[struct {
		Query string `json:"query" validate:"required"`
	}](s.Name(), input)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Call(ctx, strings.TrimSpace(args.Query))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return map[string]any{"query": args.Query, "results": res}, nil
}
