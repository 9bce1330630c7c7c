package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Imdavyking/PayperAI/pkg/commandqueue"
	"github.com/Imdavyking/PayperAI/pkg/session"
	"github.com/Imdavyking/PayperAI/pkg/tools"
)

type fakeProvider struct {
	name     string
	response *LLMResponse
	err      error
	calls    int
}

func (p *fakeProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.response, nil
}

func (p *fakeProvider) Provider() string {
	return p.name
}

type fakeFactory struct {
	providers map[string]LLMProvider
}

func (f *fakeFactory) NewProvider(profile Profile) (LLMProvider, error) {
	provider, ok := f.providers[profile.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
	return provider, nil
}

func engineRegistry(t *testing.T) *tools.Registry {
	t.Helper()

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Definition{
		Name:        "searchMovementDocs",
		Kind:        tools.KindQuery,
		Description: "Search Movement documentation",
		Parameters: []tools.Parameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
		},
	}))
	require.NoError(t, registry.Register(tools.Definition{
		Name:        "sendMove",
		Kind:        tools.KindCommand,
		Description: "Send MOVE tokens",
		Parameters: []tools.Parameter{
			{Name: "recipientAddress", Type: "string", Description: "Recipient", Required: true},
			{Name: "amount", Type: "string", Description: "Amount", Required: true},
		},
	}))
	return registry
}

func newTestEngine(t *testing.T, provider LLMProvider, resolvers map[string]QueryResolver) (*Engine, session.Store) {
	t.Helper()

	store := session.NewMemoryStore()
	queue := commandqueue.New()
	t.Cleanup(func() { queue.Close() })

	engine, err := NewEngine(EngineConfig{
		Store:           store,
		Registry:        engineRegistry(t),
		Queue:           queue,
		Logger:          zerolog.Nop(),
		Profiles:        []Profile{{ID: "p1", Provider: "fake", APIKey: "k"}},
		ProviderFactory: &fakeFactory{providers: map[string]LLMProvider{"fake": provider}},
		Resolvers:       resolvers,
	})
	require.NoError(t, err)
	return engine, store
}

func TestEngineTurn(t *testing.T) {
	t.Run("should append human and assistant messages in order", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{Content: "MoveVM is the runtime."}}
		engine, store := newTestEngine(t, provider, nil)

		result, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "what is movevm"})
		require.NoError(t, err)
		assert.Equal(t, "MoveVM is the runtime.", result.Content)

		history, err := store.History(context.Background(), "s1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, session.RoleHuman, history[0].Role)
		assert.Equal(t, "what is movevm", history[0].Text)
		assert.Equal(t, session.RoleAssistant, history[1].Role)
	})

	t.Run("should leave only the human message on model failure", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", err: errors.New("boom")}
		engine, store := newTestEngine(t, provider, nil)

		_, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "hello"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrModelInvocation)

		history, err := store.History(context.Background(), "s1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, session.RoleHuman, history[0].Role)
	})

	t.Run("should reject empty tasks without touching the session", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{Content: "hi"}}
		engine, store := newTestEngine(t, provider, nil)

		_, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "   "})
		assert.ErrorIs(t, err, ErrValidation)

		history, err := store.History(context.Background(), "s1")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("should reject malformed session ids", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{Content: "hi"}}
		engine, _ := newTestEngine(t, provider, nil)

		_, err := engine.Turn(context.Background(), TurnParams{SessionID: "../etc", Task: "hello"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestEngineQueryResolution(t *testing.T) {
	t.Run("should resolve query calls inline before the append", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{
			Content: "Let me check the docs.",
			ToolCalls: []session.ToolCall{{
				ID:        "t1",
				Name:      "searchMovementDocs",
				Arguments: map[string]interface{}{"query": "movevm"},
			}},
		}}
		engine, store := newTestEngine(t, provider, map[string]QueryResolver{
			"searchMovementDocs": func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "MoveVM executes Move bytecode.", nil
			},
		})

		result, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "what is movevm"})
		require.NoError(t, err)
		require.Len(t, result.ToolCalls, 1)
		assert.Equal(t, "MoveVM executes Move bytecode.", result.ToolCalls[0].Arguments[tools.ResultField])

		history, err := store.History(context.Background(), "s1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "MoveVM executes Move bytecode.",
			history[1].ToolCalls[0].Arguments[tools.ResultField])
	})

	t.Run("should override a model-populated result field", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{
			Content: "checking",
			ToolCalls: []session.ToolCall{{
				ID:   "t1",
				Name: "searchMovementDocs",
				Arguments: map[string]interface{}{
					"query":           "movevm",
					tools.ResultField: "hallucinated answer",
				},
			}},
		}}
		engine, _ := newTestEngine(t, provider, map[string]QueryResolver{
			"searchMovementDocs": func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "real answer", nil
			},
		})

		result, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "q"})
		require.NoError(t, err)
		assert.Equal(t, "real answer", result.ToolCalls[0].Arguments[tools.ResultField])
	})

	t.Run("should degrade resolution failure to result text", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{
			Content: "checking",
			ToolCalls: []session.ToolCall{{
				ID:        "t1",
				Name:      "searchMovementDocs",
				Arguments: map[string]interface{}{"query": "movevm"},
			}},
		}}
		engine, _ := newTestEngine(t, provider, map[string]QueryResolver{
			"searchMovementDocs": func(ctx context.Context, args map[string]interface{}) (string, error) {
				return "", errors.New("index offline")
			},
		})

		result, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "q"})
		require.NoError(t, err)
		assert.Contains(t, result.ToolCalls[0].Arguments[tools.ResultField], "index offline")
	})

	t.Run("should surface command calls unexecuted", func(t *testing.T) {
		args := map[string]interface{}{"recipientAddress": "0xdead", "amount": "1"}
		provider := &fakeProvider{name: "fake", response: &LLMResponse{
			Content:   "Ready to send.",
			ToolCalls: []session.ToolCall{{ID: "t1", Name: "sendMove", Arguments: args}},
		}}
		engine, _ := newTestEngine(t, provider, nil)

		result, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "send 1 move"})
		require.NoError(t, err)
		require.Len(t, result.ToolCalls, 1)
		_, hasResult := result.ToolCalls[0].Arguments[tools.ResultField]
		assert.False(t, hasResult, "COMMAND calls must not be executed server-side")
	})

	t.Run("should surface unknown tools unresolved instead of failing", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{
			Content:   "trying something",
			ToolCalls: []session.ToolCall{{ID: "t1", Name: "launchRocket", Arguments: map[string]interface{}{}}},
		}}
		engine, store := newTestEngine(t, provider, nil)

		result, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "go"})
		require.NoError(t, err)
		require.Len(t, result.ToolCalls, 1)
		assert.Equal(t, "launchRocket", result.ToolCalls[0].Name)

		history, err := store.History(context.Background(), "s1")
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})
}

func TestEngineFailover(t *testing.T) {
	t.Run("should fail over to the next profile on retryable errors", func(t *testing.T) {
		failing := &fakeProvider{name: "openai", err: errors.New("429 rate limit")}
		healthy := &fakeProvider{name: "anthropic", response: &LLMResponse{Content: "ok"}}

		store := session.NewMemoryStore()
		queue := commandqueue.New()
		t.Cleanup(func() { queue.Close() })

		engine, err := NewEngine(EngineConfig{
			Store:    store,
			Registry: engineRegistry(t),
			Queue:    queue,
			Logger:   zerolog.Nop(),
			Profiles: []Profile{
				{ID: "p1", Provider: "openai", APIKey: "k", Priority: 0},
				{ID: "p2", Provider: "anthropic", APIKey: "k", Priority: 1},
			},
			ProviderFactory: &fakeFactory{providers: map[string]LLMProvider{
				"openai":    failing,
				"anthropic": healthy,
			}},
			MaxRetries: 1,
		})
		require.NoError(t, err)

		result, err := engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "ok", result.Content)
		assert.Positive(t, failing.calls)
	})

	t.Run("should stop immediately on permanent errors", func(t *testing.T) {
		failing := &fakeProvider{name: "openai", err: errors.New("401 unauthorized")}
		healthy := &fakeProvider{name: "anthropic", response: &LLMResponse{Content: "ok"}}

		store := session.NewMemoryStore()
		queue := commandqueue.New()
		t.Cleanup(func() { queue.Close() })

		engine, err := NewEngine(EngineConfig{
			Store:    store,
			Registry: engineRegistry(t),
			Queue:    queue,
			Logger:   zerolog.Nop(),
			Profiles: []Profile{
				{ID: "p1", Provider: "openai", APIKey: "k", Priority: 0},
				{ID: "p2", Provider: "anthropic", APIKey: "k", Priority: 1},
			},
			ProviderFactory: &fakeFactory{providers: map[string]LLMProvider{
				"openai":    failing,
				"anthropic": healthy,
			}},
			MaxRetries: 1,
		})
		require.NoError(t, err)

		_, err = engine.Turn(context.Background(), TurnParams{SessionID: "s1", Task: "hello"})
		require.Error(t, err)
		assert.Zero(t, healthy.calls, "permanent errors must not fail over")
	})
}

func TestAppendOutcomes(t *testing.T) {
	t.Run("should append outcomes as assistant messages in order", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{Content: "hi"}}
		engine, store := newTestEngine(t, provider, nil)

		outcomes := []string{
			"Sent 1 MOVE to 0xdead. Transaction hash: 0xabc",
			"Rejected: deploy token?",
		}
		require.NoError(t, engine.AppendOutcomes(context.Background(), "s1", outcomes, ""))

		history, err := store.History(context.Background(), "s1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		for i, msg := range history {
			assert.Equal(t, session.RoleAssistant, msg.Role)
			assert.Equal(t, outcomes[i], msg.Text)
		}
	})

	t.Run("should accept an empty batch as a no-op", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{Content: "hi"}}
		engine, store := newTestEngine(t, provider, nil)

		require.NoError(t, engine.AppendOutcomes(context.Background(), "s1", nil, ""))

		history, err := store.History(context.Background(), "s1")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("should reject blank outcome strings", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{Content: "hi"}}
		engine, _ := newTestEngine(t, provider, nil)

		err := engine.AppendOutcomes(context.Background(), "s1", []string{"ok", "  "}, "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("should absorb a retried batch with the same request id", func(t *testing.T) {
		provider := &fakeProvider{name: "fake", response: &LLMResponse{Content: "hi"}}
		engine, store := newTestEngine(t, provider, nil)

		outcomes := []string{"Sent 1 MOVE to 0xdead. Transaction hash: 0xabc"}
		require.NoError(t, engine.AppendOutcomes(context.Background(), "s1", outcomes, "batch-7"))
		require.NoError(t, engine.AppendOutcomes(context.Background(), "s1", outcomes, "batch-7"))

		history, err := store.History(context.Background(), "s1")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}
