package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxPageChars = 20000

// CompanyPageTool reads a company's web page as clean text.
type CompanyPageTool struct {
	UserAgent string
	Client    *http.Client
}

func NewCompanyPageTool() *CompanyPageTool {
	return &CompanyPageTool{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *CompanyPageTool) Name() string {
	return "fetch_company_page"
}

func (s *CompanyPageTool) Kind() Kind { return KindRead }

func (s *CompanyPageTool) Description() string {
	return "Fetch a company web page (home, about, news) and extract the main content as clean text."
}

func (s *CompanyPageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL of the page (e.g., https://example.com/about)",
			},
		},
		"required": []string{"url"},
	}
}

func (s *CompanyPageTool) Query(ctx context.Context, userID string, input string) (any, error) {
	args, err := parseArgs[struct {
		URL string `json:"url" validate:"required,http_url"`
	}](s.Name(), input)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	parsedURL, err := url.Parse(args.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	content := bluemonday.StrictPolicy().Sanitize(article.TextContent)
	truncated := false
	if r := []rune(content); len(r) > maxPageChars {
		content = string(r[:maxPageChars])
		truncated = true
	}

	return map[string]any{
		"url":       args.URL,
		"title":     article.Title,
		"excerpt":   article.Excerpt,
		"content":   content,
		"truncated": truncated,
	}, nil
}
