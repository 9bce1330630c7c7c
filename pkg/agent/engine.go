package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Imdavyking/PayperAI/internal/observability"
	"github.com/Imdavyking/PayperAI/internal/tracing"
	"github.com/Imdavyking/PayperAI/pkg/commandqueue"
	"github.com/Imdavyking/PayperAI/pkg/session"
	"github.com/Imdavyking/PayperAI/pkg/tools"
)

// DefaultSystemPrompt positions the model as a Movement Network
// specialist that searches documentation before answering and offers
// transactions through the registered tools.
const DefaultSystemPrompt = `You are an expert AI assistant for the Movement Network blockchain ecosystem.

**Your Capabilities:**
1. **Movement Documentation Expert** - Use searchMovementDocs to answer questions about Movement
2. **Transaction Executor** - Send MOVE, deploy tokens, transfer fungible assets
3. **Educator** - Explain blockchain concepts at appropriate knowledge levels
4. **Helpful Guide** - Remember conversation context and guide users step-by-step

**When to Use Each Tool:**
- searchMovementDocs: User asks "how to", "what is", needs technical info about Movement
- sendMove: Transfer MOVE tokens only
- transferFA: Transfer any fungible asset token (NOT MOVE)
- deployMemeCoin: Create new fungible asset tokens

**Best Practices:**
1. When users ask technical questions, ALWAYS search docs first before answering
2. Cite sources when providing information from documentation
3. Offer to execute actions after explaining them
4. Be educational - teach users while helping them
5. If unsure, search the documentation rather than guessing

Remember: You're both a teacher and a doer. Educate users while executing their requests.`

// QueryResolver resolves one QUERY tool call to its textual result.
type QueryResolver func(ctx context.Context, args map[string]interface{}) (string, error)

// EngineConfig wires a turn engine.
type EngineConfig struct {
	Store    session.Store
	Registry *tools.Registry
	Queue    *commandqueue.CommandQueue
	Logger   zerolog.Logger

	Profiles        []Profile
	ProviderFactory ProviderCreator

	// Resolvers maps QUERY tool names to their server-side resolution.
	Resolvers map[string]QueryResolver

	SystemPrompt     string
	Model            string
	Temperature      float64
	MaxTokens        int
	MaxContextTokens int
	MaxRetries       int
}

// Engine runs agent turns: append the human message, call the model
// with system prompt and full history, resolve QUERY calls inline,
// append exactly one assistant message, and surface COMMAND calls
// unexecuted.
type Engine struct {
	store     session.Store
	registry  *tools.Registry
	queue     *commandqueue.CommandQueue
	logger    zerolog.Logger
	factory   ProviderCreator
	resolvers map[string]QueryResolver

	systemPrompt     string
	model            string
	temperature      float64
	maxTokens        int
	maxContextTokens int
	maxRetries       int

	profiles []Profile
	authMu   sync.RWMutex
}

// NewEngine validates configuration and builds the engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	factory := cfg.ProviderFactory
	if factory == nil {
		factory = &ProviderFactory{}
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Engine{
		store:            cfg.Store,
		registry:         cfg.Registry,
		queue:            cfg.Queue,
		logger:           cfg.Logger,
		factory:          factory,
		resolvers:        cfg.Resolvers,
		systemPrompt:     systemPrompt,
		model:            model,
		temperature:      cfg.Temperature,
		maxTokens:        maxTokens,
		maxContextTokens: cfg.MaxContextTokens,
		maxRetries:       maxRetries,
		profiles:         cfg.Profiles,
	}, nil
}

// Turn runs one agent turn for a session. Turns for the same session
// serialize through the session lane; independent sessions proceed
// concurrently.
func (e *Engine) Turn(ctx context.Context, params TurnParams) (TurnResult, error) {
	if err := session.ValidateSessionID(params.SessionID); err != nil {
		return TurnResult{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if strings.TrimSpace(params.Task) == "" {
		return TurnResult{}, fmt.Errorf("%w: task cannot be empty", ErrValidation)
	}

	ctx = tracing.NewTurnContext(ctx, params.SessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"payperai.agent",
		"agent.turn",
		attribute.String("session_id", params.SessionID),
	)
	defer span.End()

	lane := commandqueue.SessionLane(params.SessionID)
	result, err := e.queue.EnqueueWithContext(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		return e.executeTurn(taskCtx, params)
	}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TurnResult{}, err
	}

	return result.(TurnResult), nil
}

// AppendOutcomes records a batch of tool-outcome strings for a session
// as assistant-attributed messages, in order, before the next turn. A
// non-empty requestID makes the batch idempotent: a retried post with
// the same ID is absorbed by the queue's dedup cache.
func (e *Engine) AppendOutcomes(ctx context.Context, sessionID string, outcomes []string, requestID string) error {
	if err := session.ValidateSessionID(sessionID); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if len(outcomes) == 0 {
		return nil
	}
	for i, outcome := range outcomes {
		if strings.TrimSpace(outcome) == "" {
			return fmt.Errorf("%w: outcome %d is empty", ErrValidation, i)
		}
	}

	var opts *commandqueue.TaskOptions
	if requestID != "" {
		opts = &commandqueue.TaskOptions{RequestID: requestID}
	}

	lane := commandqueue.SessionLane(sessionID)
	_, err := e.queue.EnqueueWithContext(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		for _, outcome := range outcomes {
			if err := e.store.Append(taskCtx, sessionID, session.NewAssistant(outcome, nil)); err != nil {
				return nil, fmt.Errorf("failed to append outcome: %w", err)
			}
		}
		return len(outcomes), nil
	}, opts)
	return err
}

func (e *Engine) executeTurn(ctx context.Context, params TurnParams) (TurnResult, error) {
	logger := tracing.PropagateToLogger(ctx, e.logger).With().Str("session_id", params.SessionID).Logger()

	// Step 1: the human message is durable before any model work so a
	// failed turn still shows what was asked.
	if err := e.store.Append(ctx, params.SessionID, session.NewHuman(params.Task)); err != nil {
		logger.Error().Err(err).Msg("Failed to persist human message")
		return TurnResult{}, fmt.Errorf("failed to save human message: %w", err)
	}

	history, err := e.store.History(ctx, params.SessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to load session history: %w", err)
	}

	model := params.Model
	if model == "" {
		model = e.model
	}

	messages := e.buildMessages(history)
	messages = compactIfNeeded(model, messages, e.maxContextTokens)

	response, err := e.callWithFailover(ctx, model, messages)
	if err != nil {
		// Atomic failure: no assistant message is appended, so retry
		// does not duplicate history.
		logger.Error().Err(err).Msg("Model invocation failed")
		return TurnResult{}, fmt.Errorf("%w: %s", ErrModelInvocation, err)
	}

	if response.Content == "" && len(response.ToolCalls) == 0 {
		return TurnResult{}, fmt.Errorf("%w: model returned an empty response", ErrModelInvocation)
	}

	resolved := e.resolveQueries(ctx, response.ToolCalls)

	if err := e.store.Append(ctx, params.SessionID, session.NewAssistant(response.Content, resolved)); err != nil {
		logger.Error().Err(err).Msg("Failed to persist assistant message")
		return TurnResult{}, fmt.Errorf("failed to save assistant message: %w", err)
	}

	return TurnResult{
		Content:   response.Content,
		ToolCalls: resolved,
		Usage:     response.Usage,
	}, nil
}

// buildMessages maps the session history to provider-neutral messages
// behind the system prompt.
func (e *Engine) buildMessages(history []session.Message) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: "system", Content: e.systemPrompt})

	for _, msg := range history {
		switch msg.Role {
		case session.RoleHuman:
			messages = append(messages, ChatMessage{Role: "user", Content: msg.Text})
		case session.RoleAssistant:
			messages = append(messages, ChatMessage{
				Role:      "assistant",
				Content:   msg.Text,
				ToolCalls: msg.ToolCalls,
			})
		case session.RoleTool:
			messages = append(messages, ChatMessage{
				Role:       "tool",
				Content:    msg.Text,
				ToolCallID: msg.ToolCallID,
			})
		}
	}

	return messages
}

// resolveQueries resolves QUERY calls inline, writing each result into
// the call's reserved result argument. Unknown tools and COMMAND calls
// pass through untouched; resolution failures degrade to result text.
func (e *Engine) resolveQueries(ctx context.Context, calls []session.ToolCall) []session.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	resolved := make([]session.ToolCall, 0, len(calls))
	for _, call := range calls {
		def, known := e.registry.Resolve(call.Name)
		if !known || def.Kind != tools.KindQuery {
			resolved = append(resolved, call)
			continue
		}

		args := make(map[string]interface{}, len(call.Arguments)+1)
		for k, v := range call.Arguments {
			args[k] = v
		}

		// The result field is caller-injected only. A model that
		// populates it is overridden, never trusted.
		if _, present := args[tools.ResultField]; present {
			e.logger.Warn().
				Str("tool", call.Name).
				Msg("Model populated reserved result field, discarding")
			delete(args, tools.ResultField)
		}

		start := time.Now()
		result, err := e.resolveOne(ctx, call.Name, args)
		observability.RecordToolResolution(call.Name, time.Since(start), err == nil)
		if err != nil {
			result = fmt.Sprintf("Error resolving %s: %s", call.Name, err)
		}
		args[tools.ResultField] = result

		resolved = append(resolved, session.ToolCall{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: args,
		})
	}
	return resolved
}

func (e *Engine) resolveOne(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	resolver, ok := e.resolvers[name]
	if !ok {
		return "", fmt.Errorf("no resolver bound")
	}
	return resolver(ctx, args)
}

// callWithFailover walks auth profiles in priority order, skipping
// those in cooldown, until one succeeds.
func (e *Engine) callWithFailover(ctx context.Context, model string, messages []ChatMessage) (*LLMResponse, error) {
	e.authMu.RLock()
	profiles := make([]Profile, len(e.profiles))
	copy(profiles, e.profiles)
	e.authMu.RUnlock()

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})

	logger := tracing.PropagateToLogger(ctx, e.logger)

	var lastErr error

	for _, profile := range profiles {
		profileStart := time.Now()

		if profile.CooldownUntil != nil && time.Now().UnixMilli() < *profile.CooldownUntil {
			observability.SetProviderCooldown(profile.Provider, true)
			logger.Debug().Str("profileId", profile.ID).Msg("Skipping profile in cooldown")
			continue
		}

		observability.SetProviderCooldown(profile.Provider, false)

		provider, err := e.factory.NewProvider(profile)
		if err != nil {
			observability.RecordTurn(profile.Provider, time.Since(profileStart), false)
			logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Failed to create provider")
			lastErr = err
			continue
		}

		profileModel := model
		if profile.Model != "" {
			profileModel = profile.Model
		}

		response, err := e.callWithRetry(ctx, provider, LLMRequest{
			Model:        profileModel,
			Messages:     messages,
			Tools:        e.registry.Schemas(),
			Temperature:  e.temperature,
			MaxTokens:    e.maxTokens,
			SystemPrompt: e.systemPrompt,
		})
		if err == nil {
			e.updateProfileSuccess(profile.ID)
			observability.RecordTurn(profile.Provider, time.Since(profileStart), true)
			return response, nil
		}

		lastErr = err
		observability.RecordTurn(profile.Provider, time.Since(profileStart), false)
		logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Auth profile failed")
		e.updateProfileFailure(profile.ID)

		if !IsRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("all auth profiles failed: %w", lastErr)
}

// callWithRetry retries a single provider with exponential backoff.
func (e *Engine) callWithRetry(ctx context.Context, provider LLMProvider, request LLMRequest) (*LLMResponse, error) {
	var lastErr error

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		response, err := provider.Call(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == e.maxRetries-1 {
			break
		}

		// 1s, 2s, 4s
		delay := time.Duration(1000*(1<<attempt)) * time.Millisecond
		e.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", e.maxRetries, lastErr)
}

func (e *Engine) updateProfileSuccess(profileID string) {
	e.authMu.Lock()
	defer e.authMu.Unlock()

	for i := range e.profiles {
		if e.profiles[i].ID == profileID {
			e.profiles[i].FailureCount = 0
			e.profiles[i].CooldownUntil = nil
			observability.SetProviderCooldown(e.profiles[i].Provider, false)
			break
		}
	}
}

func (e *Engine) updateProfileFailure(profileID string) {
	e.authMu.Lock()
	defer e.authMu.Unlock()

	for i := range e.profiles {
		if e.profiles[i].ID == profileID {
			e.profiles[i].FailureCount++
			cooldownMs := time.Now().UnixMilli() + int64(60000*e.profiles[i].FailureCount)
			e.profiles[i].CooldownUntil = &cooldownMs
			observability.SetProviderCooldown(e.profiles[i].Provider, true)
			break
		}
	}
}
