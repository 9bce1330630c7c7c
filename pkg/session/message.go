package session

import (
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleHuman is an end-user message.
	RoleHuman Role = "human"
	// RoleAssistant is a model-produced message, possibly carrying tool calls.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool outcome attached to a prior assistant tool call.
	RoleTool Role = "tool"
)

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message is a single conversation turn.
type Message struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Validate checks role-specific structural requirements.
func (m Message) Validate() error {
	switch m.Role {
	case RoleHuman:
		if m.Text == "" {
			return fmt.Errorf("human message text cannot be empty")
		}
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
			return fmt.Errorf("human message cannot carry tool fields")
		}
	case RoleAssistant:
		if m.Text == "" && len(m.ToolCalls) == 0 {
			return fmt.Errorf("assistant message needs text or tool calls")
		}
		for i, tc := range m.ToolCalls {
			if tc.ID == "" {
				return fmt.Errorf("assistant tool call %d missing id", i)
			}
			if tc.Name == "" {
				return fmt.Errorf("assistant tool call %d missing name", i)
			}
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return fmt.Errorf("tool message missing tool call id")
		}
	default:
		return fmt.Errorf("unknown message role %q", m.Role)
	}
	return nil
}

// NewHuman builds a human message stamped now.
func NewHuman(text string) Message {
	return Message{Role: RoleHuman, Text: text, Timestamp: time.Now()}
}

// NewAssistant builds an assistant message stamped now.
func NewAssistant(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls, Timestamp: time.Now()}
}

// NewToolResult builds a tool outcome message stamped now.
func NewToolResult(toolCallID, payload string) Message {
	return Message{Role: RoleTool, Text: payload, ToolCallID: toolCallID, Timestamp: time.Now()}
}
