package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("should create session lazily on first append", func(t *testing.T) {
		store := NewMemoryStore()

		err := store.Append(ctx, "s1", NewHuman("hello"))
		require.NoError(t, err)

		history, err := store.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, RoleHuman, history[0].Role)
		assert.Equal(t, "hello", history[0].Text)
	})

	t.Run("should return empty history for unknown session", func(t *testing.T) {
		store := NewMemoryStore()

		history, err := store.History(ctx, "never-written")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("should preserve append order", func(t *testing.T) {
		store := NewMemoryStore()

		require.NoError(t, store.Append(ctx, "s1", NewHuman("one")))
		require.NoError(t, store.Append(ctx, "s1", NewAssistant("two", nil)))
		require.NoError(t, store.Append(ctx, "s1", NewHuman("three")))

		history, err := store.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "one", history[0].Text)
		assert.Equal(t, "two", history[1].Text)
		assert.Equal(t, "three", history[2].Text)
	})

	t.Run("should keep sessions independent", func(t *testing.T) {
		store := NewMemoryStore()

		require.NoError(t, store.Append(ctx, "a", NewHuman("for a")))
		require.NoError(t, store.Append(ctx, "b", NewHuman("for b")))

		historyA, err := store.History(ctx, "a")
		require.NoError(t, err)
		historyB, err := store.History(ctx, "b")
		require.NoError(t, err)

		require.Len(t, historyA, 1)
		require.Len(t, historyB, 1)
		assert.Equal(t, "for a", historyA[0].Text)
		assert.Equal(t, "for b", historyB[0].Text)
	})

	t.Run("should reject invalid session IDs", func(t *testing.T) {
		store := NewMemoryStore()

		for _, id := range []string{"", "..", "a/b", "a\\b", "a\x00b"} {
			err := store.Append(ctx, id, NewHuman("x"))
			assert.Error(t, err, "id %q", id)
		}
	})
}

func TestMemoryStoreToolReference(t *testing.T) {
	ctx := context.Background()

	t.Run("should accept tool message referencing prior assistant call", func(t *testing.T) {
		store := NewMemoryStore()

		calls := []ToolCall{{ID: "call-1", Name: "sendMove", Arguments: map[string]interface{}{"amount": "1"}}}
		require.NoError(t, store.Append(ctx, "s1", NewHuman("send 1 move")))
		require.NoError(t, store.Append(ctx, "s1", NewAssistant("", calls)))

		err := store.Append(ctx, "s1", NewToolResult("call-1", "Sent 1 MOVE to 0xabc. Transaction hash: 0x1"))
		require.NoError(t, err)
	})

	t.Run("should reject tool message with unknown call id", func(t *testing.T) {
		store := NewMemoryStore()

		require.NoError(t, store.Append(ctx, "s1", NewHuman("hi")))

		err := store.Append(ctx, "s1", NewToolResult("call-ghost", "output"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownToolCall)
	})
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()

	t.Run("should empty the session", func(t *testing.T) {
		store := NewMemoryStore()

		require.NoError(t, store.Append(ctx, "s1", NewHuman("hello")))
		require.NoError(t, store.Clear(ctx, "s1"))

		history, err := store.History(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("should tolerate clearing unknown session", func(t *testing.T) {
		store := NewMemoryStore()
		assert.NoError(t, store.Clear(ctx, "missing"))
	})
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s-%d", w)
			for i := 0; i < perWorker; i++ {
				_ = store.Append(ctx, sessionID, NewHuman(fmt.Sprintf("msg-%d", i)))
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		history, err := store.History(ctx, fmt.Sprintf("s-%d", w))
		require.NoError(t, err)
		require.Len(t, history, perWorker)
		for i, msg := range history {
			assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Text)
		}
	}
}
