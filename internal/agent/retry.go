package agent

import (
	"strings"
)

// FallbackMode is what the retry loop changes before the next attempt.
type FallbackMode string

const (
	// FallbackNone repeats the identical request.
	FallbackNone FallbackMode = "none"
	// FallbackWithoutTools drops the tool catalog so the model answers in plain text.
	FallbackWithoutTools FallbackMode = "without_tools"
)

// RetryPolicy decides how a rejected completion request is retried.
type RetryPolicy struct {
	MaxAttempts int // including the first attempt
	Fallback    FallbackMode
	Retryable   func(err error) bool
}

// DefaultRetryPolicy retries once without tools when the model fails to
// produce a well-formed tool call.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Fallback:    FallbackWithoutTools,
		Retryable:   IsStructuredOutputError,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ShouldRetry reports whether err qualifies for another attempt.
func (p RetryPolicy) ShouldRetry(err error) bool {
	if err == nil || p.Retryable == nil {
		return false
	}
	return p.Retryable(err)
}

// markers upstream providers use when a model produced an unusable tool call
var structuredOutputMarkers = []string{
	"tool_use_failed",
	"failed_generation",
	"failed to call a function",
	"tool call validation failed",
	"invalid tool call",
	"could not parse tool call",
}

// IsStructuredOutputError reports whether err is the upstream's
// "failed to follow structured output" class of rejection.
func IsStructuredOutputError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range structuredOutputMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
