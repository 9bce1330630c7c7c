package agent

import (
	"errors"
	"strings"

	"github.com/Imdavyking/PayperAI/pkg/session"
)

// ErrValidation marks turn input rejected before any model call. The
// session is untouched when this is returned.
var ErrValidation = errors.New("invalid turn input")

// ErrModelInvocation marks a language-model collaborator failure. The
// session keeps the human message but no assistant message, so a retry
// cannot duplicate history.
var ErrModelInvocation = errors.New("model invocation failed")

// TurnParams is the input for one agent turn.
type TurnParams struct {
	SessionID string `json:"session_id"`
	Task      string `json:"task"`
	// Model overrides the configured default when set.
	Model string `json:"model,omitempty"`
}

// TurnResult is the output of one agent turn: assistant content plus
// the full tool-call list, QUERY results inlined.
type TurnResult struct {
	Content   string             `json:"content"`
	ToolCalls []session.ToolCall `json:"tool_calls,omitempty"`
	Usage     *TokenUsage        `json:"usage,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Profile represents authentication credentials for one LLM provider.
// Lower priority wins; failures put a profile into escalating cooldown.
type Profile struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"` // "openai", "anthropic"
	APIKey        string `json:"api_key"`
	Model         string `json:"model,omitempty"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty"`
	FailureCount  int    `json:"failure_count"`
	Priority      int    `json:"priority"`
}

// ChatMessage is a provider-neutral conversation message.
type ChatMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	ToolCalls  []session.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
}

// DefaultModel is used when neither the turn nor the profile names one.
const DefaultModel = "gpt-4o-mini"

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") ||
		strings.Contains(msg, "connection refused") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}

	return false
}
