package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/Imdavyking/PayperAI/internal/observability"
	"github.com/Imdavyking/PayperAI/internal/tracing"
	"github.com/Imdavyking/PayperAI/pkg/agent"
	"github.com/Imdavyking/PayperAI/pkg/payment"
	"github.com/Imdavyking/PayperAI/pkg/session"
)

// HeaderSessionID carries the caller's session identity on API calls.
const HeaderSessionID = "X-Session-ID"

// Priced turn routes. Each tier maps to its own route so the payment
// gate can quote a distinct price per tier.
const (
	RouteAgent        = "/api/ai-agent"
	RouteAgentPremium = "/api/ai-agent/premium"
)

// TurnEngine is the slice of the agent engine the gateway depends on.
type TurnEngine interface {
	Turn(ctx context.Context, params agent.TurnParams) (agent.TurnResult, error)
	AppendOutcomes(ctx context.Context, sessionID string, outcomes []string, requestID string) error
}

// Server exposes the agent over HTTP: priced turn endpoints behind the
// payment gate, session management, and a websocket event stream.
type Server struct {
	addr         string
	engine       TurnEngine
	store        session.Store
	gate         *payment.Gate
	models       []ModelInfo
	premiumModel string
	logger       zerolog.Logger
	clients      *ClientRegistry
	broadcaster  *EventBroadcaster
	limiter      *IPRateLimiter
	upgrader     websocket.Upgrader
	server       *http.Server
	handler      http.Handler
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr   string
	Engine TurnEngine
	Store  session.Store
	// Gate is optional; without it the turn routes are unpriced.
	Gate   *payment.Gate
	Models []ModelInfo
	// PremiumModel is forced on the premium route. Defaults to gpt-4o.
	PremiumModel      string
	RequestsPerMinute int
	MaxConcurrent     int
	Logger            zerolog.Logger
}

// NewServer creates a new gateway server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("turn engine is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.PremiumModel == "" {
		cfg.PremiumModel = "gpt-4o"
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}

	observability.EnsureRegistered()

	clients := NewClientRegistry()
	s := &Server{
		addr:         cfg.Addr,
		engine:       cfg.Engine,
		store:        cfg.Store,
		gate:         cfg.Gate,
		models:       cfg.Models,
		premiumModel: cfg.PremiumModel,
		logger:       cfg.Logger.With().Str("component", "gateway").Logger(),
		clients:      clients,
		broadcaster:  NewEventBroadcaster(clients, cfg.Logger),
		limiter:      NewIPRateLimiter(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.handler = s.routes()

	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.limiter.Middleware)

	r.With(s.priced(RouteAgent)).Post(RouteAgent, s.handleTurn(""))
	r.With(s.priced(RouteAgentPremium)).Post(RouteAgentPremium, s.handleTurn(s.premiumModel))

	r.Get("/api/ai-user", s.handleHistory)
	r.Delete("/api/ai-user", s.handleClear)
	r.Post("/api/tool-results", s.handleOutcomes)
	r.Get("/api/models", s.handleModels)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	r.Get("/ws", s.handleWebSocket)

	return r
}

// priced wraps a route with the payment gate when one is configured.
func (s *Server) priced(route string) func(http.Handler) http.Handler {
	if s.gate == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.gate.Middleware(route)
}

// Handler returns the HTTP handler, for embedding in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Broadcaster returns the event broadcaster so other components can
// publish onto the stream.
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Gateway server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes stream clients.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Gateway server stopping")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
	}

	return err
}

func (s *Server) handleTurn(modelOverride string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := tracing.FromRequest(r)

		sessionID := r.Header.Get(HeaderSessionID)
		if sessionID == "" {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s header is required", HeaderSessionID))
			return
		}

		var req TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		model := req.Model
		if modelOverride != "" {
			model = modelOverride
		}

		s.broadcaster.Broadcast(EventTurnStarted, sessionID, map[string]interface{}{
			"task": req.Task,
		})

		result, err := s.engine.Turn(ctx, agent.TurnParams{
			SessionID: sessionID,
			Task:      req.Task,
			Model:     model,
		})
		if err != nil {
			s.broadcaster.Broadcast(EventTurnFailed, sessionID, map[string]interface{}{
				"error": err.Error(),
			})
			s.writeTurnError(w, err)
			return
		}

		for _, call := range result.ToolCalls {
			s.broadcaster.Broadcast(EventToolSurfaced, sessionID, map[string]interface{}{
				"tool":      call.Name,
				"arguments": call.Arguments,
			})
		}
		s.broadcaster.Broadcast(EventTurnCompleted, sessionID, map[string]interface{}{
			"content":   result.Content,
			"toolCalls": len(result.ToolCalls),
		})

		resp := TurnResponse{
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		}
		if result.Usage != nil {
			resp.Usage = &UsageInfo{
				InputTokens:  result.Usage.InputTokens,
				OutputTokens: result.Usage.OutputTokens,
			}
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := tracing.FromRequest(r)

	sessionID := r.Header.Get(HeaderSessionID)
	if err := session.ValidateSessionID(sessionID); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	s.writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		Messages:  history,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx := tracing.FromRequest(r)

	sessionID := r.Header.Get(HeaderSessionID)
	if err := session.ValidateSessionID(sessionID); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.Clear(ctx, sessionID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}

	observability.RecordSessionAudit(ctx, sessionID, "clear", nil)
	s.broadcaster.Broadcast(EventSessionClear, sessionID, nil)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	ctx := tracing.FromRequest(r)

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s header is required", HeaderSessionID))
		return
	}

	var req OutcomesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.engine.AppendOutcomes(ctx, sessionID, req.Outcomes, req.RequestID); err != nil {
		s.writeTurnError(w, err)
		return
	}

	s.broadcaster.Broadcast(EventOutcomes, sessionID, map[string]interface{}{
		"count": len(req.Outcomes),
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "appended",
		"appended": len(req.Outcomes),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.models
	if models == nil {
		models = []ModelInfo{}
	}
	s.writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.clients.Count(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		conn.Close()
		return
	}

	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    clientIP(r),
	}
	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", client.IPAddress).
		Int("clients", s.clients.Count()).
		Msg("Stream client connected")

	go s.readLoop(client)
}

// readLoop drains the connection so pings and close frames are
// processed. The stream is one-way; inbound payloads are discarded.
func (s *Server) readLoop(client *Client) {
	defer func() {
		s.clients.Remove(client.ID)
		client.Conn.Close()
		s.logger.Info().Str("clientId", client.ID).Msg("Stream client disconnected")
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
		s.clients.UpdateActivity(client.ID)
	}
}

// writeTurnError maps engine errors onto HTTP status codes: validation
// failures are the caller's fault, model invocation failures are a bad
// upstream.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, agent.ErrModelInvocation):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
