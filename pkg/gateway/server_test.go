package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Imdavyking/PayperAI/pkg/agent"
	"github.com/Imdavyking/PayperAI/pkg/payment"
	"github.com/Imdavyking/PayperAI/pkg/session"
)

type fakeEngine struct {
	mu       sync.Mutex
	result   agent.TurnResult
	err      error
	turns    []agent.TurnParams
	outcomes [][]string
}

func (f *fakeEngine) Turn(ctx context.Context, params agent.TurnParams) (agent.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, params)
	if f.err != nil {
		return agent.TurnResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeEngine) AppendOutcomes(ctx context.Context, sessionID string, outcomes []string, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.outcomes = append(f.outcomes, outcomes)
	return nil
}

func (f *fakeEngine) lastTurn() agent.TurnParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.turns[len(f.turns)-1]
}

type allowAllFacilitator struct{}

func (allowAllFacilitator) Verify(ctx context.Context, proof string, requirement payment.Requirement) (payment.VerifyResult, error) {
	return payment.VerifyResult{IsValid: true, Payer: "0xpayer"}, nil
}

func newTestServer(t *testing.T, engine *fakeEngine, gate *payment.Gate) (*Server, session.Store) {
	t.Helper()

	store := session.NewMemoryStore()
	server, err := NewServer(ServerConfig{
		Addr:   "127.0.0.1:0",
		Engine: engine,
		Store:  store,
		Gate:   gate,
		Models: []ModelInfo{
			{Name: "standard", Description: "Pay-per-call agent", Price: "10000"},
			{Name: "premium", Description: "Premium agent tier", Price: "50000"},
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return server, store
}

func postTurn(t *testing.T, handler http.Handler, route, sessionID, task string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(TurnRequest{Task: task})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, route, bytes.NewReader(body))
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServerTurn(t *testing.T) {
	t.Run("should return assistant content and surfaced tool calls", func(t *testing.T) {
		engine := &fakeEngine{result: agent.TurnResult{
			Content: "Sending now.",
			ToolCalls: []session.ToolCall{
				{ID: "tc1", Name: "sendMove", Arguments: map[string]interface{}{"to": "0xdead", "amount": "1"}},
			},
			Usage: &agent.TokenUsage{InputTokens: 12, OutputTokens: 5},
		}}
		server, _ := newTestServer(t, engine, nil)

		rec := postTurn(t, server.Handler(), RouteAgent, "sess-1", "send 1 MOVE to 0xdead")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp TurnResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Sending now.", resp.Content)
		require.Len(t, resp.ToolCalls, 1)
		assert.Equal(t, "sendMove", resp.ToolCalls[0].Name)
		require.NotNil(t, resp.Usage)
		assert.Equal(t, 12, resp.Usage.InputTokens)

		assert.Equal(t, "sess-1", engine.lastTurn().SessionID)
	})

	t.Run("should force the premium model on the premium route", func(t *testing.T) {
		engine := &fakeEngine{result: agent.TurnResult{Content: "ok"}}
		server, _ := newTestServer(t, engine, nil)

		rec := postTurn(t, server.Handler(), RouteAgentPremium, "sess-1", "hello")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "gpt-4o", engine.lastTurn().Model)
	})

	t.Run("should require the session header", func(t *testing.T) {
		engine := &fakeEngine{result: agent.TurnResult{Content: "ok"}}
		server, _ := newTestServer(t, engine, nil)

		rec := postTurn(t, server.Handler(), RouteAgent, "", "hello")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), HeaderSessionID)
	})

	t.Run("should map validation errors to 400", func(t *testing.T) {
		engine := &fakeEngine{err: fmt.Errorf("%w: task cannot be empty", agent.ErrValidation)}
		server, _ := newTestServer(t, engine, nil)

		rec := postTurn(t, server.Handler(), RouteAgent, "sess-1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should map model invocation failures to 502", func(t *testing.T) {
		engine := &fakeEngine{err: fmt.Errorf("%w: all providers exhausted", agent.ErrModelInvocation)}
		server, _ := newTestServer(t, engine, nil)

		rec := postTurn(t, server.Handler(), RouteAgent, "sess-1", "hello")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "all providers exhausted")
	})

	t.Run("should reject malformed bodies", func(t *testing.T) {
		engine := &fakeEngine{result: agent.TurnResult{Content: "ok"}}
		server, _ := newTestServer(t, engine, nil)

		req := httptest.NewRequest(http.MethodPost, RouteAgent, strings.NewReader("{not json"))
		req.Header.Set(HeaderSessionID, "sess-1")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServerPaymentGate(t *testing.T) {
	newGate := func(t *testing.T) *payment.Gate {
		gate, err := payment.NewGate(payment.GateConfig{
			PayTo:       "0xmerchant",
			Facilitator: allowAllFacilitator{},
			Consumed:    payment.NewMemoryConsumedStore(),
			Prices: map[string]payment.RoutePrice{
				RouteAgent:        {Amount: "10000", Description: "AI agent call"},
				RouteAgentPremium: {Amount: "50000", Description: "Premium AI agent call"},
			},
		})
		require.NoError(t, err)
		return gate
	}

	t.Run("should challenge unpaid turn requests with 402", func(t *testing.T) {
		engine := &fakeEngine{result: agent.TurnResult{Content: "ok"}}
		server, _ := newTestServer(t, engine, newGate(t))

		rec := postTurn(t, server.Handler(), RouteAgent, "sess-1", "hello")
		require.Equal(t, http.StatusPaymentRequired, rec.Code)

		var challenge payment.Challenge
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))
		require.Len(t, challenge.Accepts, 1)
		assert.Equal(t, "10000", challenge.Accepts[0].MaxAmountRequired)
	})

	t.Run("should pass paid requests through to the engine", func(t *testing.T) {
		engine := &fakeEngine{result: agent.TurnResult{Content: "ok"}}
		server, _ := newTestServer(t, engine, newGate(t))

		body, _ := json.Marshal(TurnRequest{Task: "hello"})
		req := httptest.NewRequest(http.MethodPost, RouteAgent, bytes.NewReader(body))
		req.Header.Set(HeaderSessionID, "sess-1")
		req.Header.Set(payment.HeaderPayment, "proof-1")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should leave unpriced routes open", func(t *testing.T) {
		engine := &fakeEngine{result: agent.TurnResult{Content: "ok"}}
		server, _ := newTestServer(t, engine, newGate(t))

		req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServerSessionEndpoints(t *testing.T) {
	t.Run("should return session history", func(t *testing.T) {
		engine := &fakeEngine{}
		server, store := newTestServer(t, engine, nil)

		ctx := context.Background()
		require.NoError(t, store.Append(ctx, "sess-1", session.NewHuman("hi")))
		require.NoError(t, store.Append(ctx, "sess-1", session.NewAssistant("hello", nil)))

		req := httptest.NewRequest(http.MethodGet, "/api/ai-user", nil)
		req.Header.Set(HeaderSessionID, "sess-1")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HistoryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "sess-1", resp.SessionID)
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, session.RoleHuman, resp.Messages[0].Role)
	})

	t.Run("should reject invalid session ids", func(t *testing.T) {
		engine := &fakeEngine{}
		server, _ := newTestServer(t, engine, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/ai-user", nil)
		req.Header.Set(HeaderSessionID, "../etc")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should clear a session", func(t *testing.T) {
		engine := &fakeEngine{}
		server, store := newTestServer(t, engine, nil)

		ctx := context.Background()
		require.NoError(t, store.Append(ctx, "sess-1", session.NewHuman("hi")))

		req := httptest.NewRequest(http.MethodDelete, "/api/ai-user", nil)
		req.Header.Set(HeaderSessionID, "sess-1")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		history, err := store.History(ctx, "sess-1")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("should append tool outcomes", func(t *testing.T) {
		engine := &fakeEngine{}
		server, _ := newTestServer(t, engine, nil)

		body, _ := json.Marshal(OutcomesRequest{
			Outcomes:  []string{"Sent 1 MOVE to 0xdead. Transaction hash: 0xabc"},
			RequestID: "batch-1",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/tool-results", bytes.NewReader(body))
		req.Header.Set(HeaderSessionID, "sess-1")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, engine.outcomes, 1)
		assert.Len(t, engine.outcomes[0], 1)
	})
}

func TestServerCatalogAndHealth(t *testing.T) {
	t.Run("should list priced model tiers", func(t *testing.T) {
		engine := &fakeEngine{}
		server, _ := newTestServer(t, engine, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var models []ModelInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
		require.Len(t, models, 2)
		assert.Equal(t, "standard", models[0].Name)
		assert.Equal(t, "10000", models[0].Price)
	})

	t.Run("should report health", func(t *testing.T) {
		engine := &fakeEngine{}
		server, _ := newTestServer(t, engine, nil)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})
}

func TestServerEventStream(t *testing.T) {
	t.Run("should broadcast turn lifecycle events to stream clients", func(t *testing.T) {
		engine := &fakeEngine{result: agent.TurnResult{
			Content: "done",
			ToolCalls: []session.ToolCall{
				{ID: "tc1", Name: "sendMove", Arguments: map[string]interface{}{"to": "0xdead"}},
			},
		}}
		server, _ := newTestServer(t, engine, nil)

		ts := httptest.NewServer(server.Handler())
		defer ts.Close()

		wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Let the server register the client before the turn fires.
		require.Eventually(t, func() bool {
			return server.clients.Count() == 1
		}, time.Second, 10*time.Millisecond)

		rec := postTurn(t, server.Handler(), RouteAgent, "sess-1", "send it")
		require.Equal(t, http.StatusOK, rec.Code)

		events := make([]string, 0, 3)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for i := 0; i < 3; i++ {
			var msg EventMessage
			require.NoError(t, conn.ReadJSON(&msg))
			events = append(events, msg.Event)
			assert.Equal(t, "sess-1", msg.Session)
			assert.NotZero(t, msg.Seq)
		}

		assert.Equal(t, []string{EventTurnStarted, EventToolSurfaced, EventTurnCompleted}, events)
	})
}
