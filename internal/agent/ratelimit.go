package agent

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// RateLimitedModel spaces out requests to the completion service.
type RateLimitedModel struct {
	llms.Model
	limiter *rate.Limiter
}

// NewRateLimitedModel wraps m. A non-positive rps returns m unchanged.
func NewRateLimitedModel(m llms.Model, rps float64, burst int) llms.Model {
	if rps <= 0 {
		return m
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedModel{Model: m, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (m *RateLimitedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return m.Model.GenerateContent(ctx, messages, options...)
}

func (m *RateLimitedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return m.Model.Call(ctx, prompt, options...)
}
