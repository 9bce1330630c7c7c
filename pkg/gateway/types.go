package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Imdavyking/PayperAI/pkg/session"
)

// TurnRequest is the body of a turn endpoint call.
type TurnRequest struct {
	Task  string `json:"task"`
	Model string `json:"model,omitempty"`
}

// TurnResponse carries the assistant reply back to the caller. Tool
// calls of kind COMMAND are surfaced unexecuted; the client decides
// whether to run them.
type TurnResponse struct {
	Content   string             `json:"content"`
	ToolCalls []session.ToolCall `json:"toolCalls,omitempty"`
	Usage     *UsageInfo         `json:"usage,omitempty"`
}

// UsageInfo reports token consumption for a turn.
type UsageInfo struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// HistoryResponse is the full transcript of a session.
type HistoryResponse struct {
	SessionID string            `json:"sessionId"`
	Messages  []session.Message `json:"messages"`
}

// OutcomesRequest is a batch of tool execution outcomes the client
// posts back after running surfaced commands.
type OutcomesRequest struct {
	Outcomes  []string `json:"outcomes"`
	RequestID string   `json:"requestId,omitempty"`
}

// ModelInfo describes a priced agent tier in the catalog.
type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Event names broadcast on the websocket stream.
const (
	EventTurnStarted   = "turn.started"
	EventTurnCompleted = "turn.completed"
	EventTurnFailed    = "turn.failed"
	EventToolSurfaced  = "tool.surfaced"
	EventOutcomes      = "outcomes.appended"
	EventSessionClear  = "session.cleared"
)

// EventMessage represents a server-initiated event on the stream.
type EventMessage struct {
	Event     string      `json:"event"`
	Seq       int64       `json:"seq"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	Session   string      `json:"sessionId,omitempty"`
}

// ClientInfo represents information about a connected client.
type ClientInfo struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	Idle         bool      `json:"idle"`
}

// Client represents a connected WebSocket client.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string

	// writeMu serializes writes; gorilla permits one concurrent writer.
	writeMu sync.Mutex
}

// WriteJSON sends a JSON payload to the client.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}
