package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownToolCall is returned when a tool message references a tool
// call ID no prior assistant message in the session produced.
var ErrUnknownToolCall = errors.New("tool message references unknown tool call")

// Store is the session persistence boundary. Appends to the same
// session are serialized; History returns messages in append order and
// reports an empty history, not an error, for session IDs that were
// never written. Clear is idempotent.
type Store interface {
	Append(ctx context.Context, sessionID string, msg Message) error
	History(ctx context.Context, sessionID string) ([]Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// ValidateSessionID rejects IDs that could escape the session namespace.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if strings.Contains(sessionID, "..") {
		return fmt.Errorf("session ID cannot contain '..'")
	}
	if strings.ContainsAny(sessionID, "/\\") {
		return fmt.Errorf("session ID cannot contain path separators")
	}
	if strings.Contains(sessionID, "\x00") {
		return fmt.Errorf("session ID cannot contain null bytes")
	}
	return nil
}

// checkToolReference enforces that a tool message points at a tool call
// some earlier assistant message in history actually made.
func checkToolReference(history []Message, msg Message) error {
	if msg.Role != RoleTool {
		return nil
	}
	for _, prev := range history {
		if prev.Role != RoleAssistant {
			continue
		}
		for _, tc := range prev.ToolCalls {
			if tc.ID == msg.ToolCallID {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownToolCall, msg.ToolCallID)
}
