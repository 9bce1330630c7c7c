package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJSONLStore(t *testing.T) *JSONLStore {
	t.Helper()
	store, err := NewJSONLStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestJSONLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist messages across store instances", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewJSONLStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Append(ctx, "s1", NewHuman("hello")))
		require.NoError(t, store.Append(ctx, "s1", NewAssistant("hi there", nil)))

		reopened, err := NewJSONLStore(dir)
		require.NoError(t, err)

		history, err := reopened.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, RoleHuman, history[0].Role)
		assert.Equal(t, RoleAssistant, history[1].Role)
	})

	t.Run("should return empty history for unknown session", func(t *testing.T) {
		store := setupJSONLStore(t)

		history, err := store.History(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("should persist tool calls on assistant messages", func(t *testing.T) {
		store := setupJSONLStore(t)

		calls := []ToolCall{{
			ID:   "call-1",
			Name: "deployMemeCoin",
			Arguments: map[string]interface{}{
				"name":   "Doge",
				"symbol": "DOGE",
			},
		}}
		require.NoError(t, store.Append(ctx, "s1", NewHuman("deploy a coin")))
		require.NoError(t, store.Append(ctx, "s1", NewAssistant("", calls)))

		history, err := store.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		require.Len(t, history[1].ToolCalls, 1)
		assert.Equal(t, "deployMemeCoin", history[1].ToolCalls[0].Name)
		assert.Equal(t, "Doge", history[1].ToolCalls[0].Arguments["name"])
	})
}

func TestJSONLStoreCorruptLines(t *testing.T) {
	ctx := context.Background()

	t.Run("should skip corrupted lines on load", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewJSONLStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Append(ctx, "s1", NewHuman("first")))

		path := filepath.Join(dir, "s1.jsonl")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		require.NoError(t, err)
		_, err = f.WriteString("{not json\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		require.NoError(t, store.Append(ctx, "s1", NewAssistant("second", nil)))

		history, err := store.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "first", history[0].Text)
		assert.Equal(t, "second", history[1].Text)
	})

	t.Run("should drop corrupted lines on repair", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewJSONLStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Append(ctx, "s1", NewHuman("keep me")))

		path := filepath.Join(dir, "s1.jsonl")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		require.NoError(t, err)
		_, err = f.WriteString("garbage line\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		require.NoError(t, store.Repair(ctx, "s1"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "garbage")
		assert.Contains(t, string(data), "keep me")
	})
}

func TestJSONLStoreClearAndList(t *testing.T) {
	ctx := context.Background()

	t.Run("should remove session file on clear", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewJSONLStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Append(ctx, "s1", NewHuman("hello")))
		require.NoError(t, store.Clear(ctx, "s1"))

		_, statErr := os.Stat(filepath.Join(dir, "s1.jsonl"))
		assert.True(t, os.IsNotExist(statErr))

		assert.NoError(t, store.Clear(ctx, "s1"))
	})

	t.Run("should list persisted sessions", func(t *testing.T) {
		store := setupJSONLStore(t)

		require.NoError(t, store.Append(ctx, "alpha", NewHuman("a")))
		require.NoError(t, store.Append(ctx, "beta", NewHuman("b")))

		sessions, err := store.List()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"alpha", "beta"}, sessions)
	})

	t.Run("should reject tool message with unknown call id", func(t *testing.T) {
		store := setupJSONLStore(t)

		require.NoError(t, store.Append(ctx, "s1", NewHuman("hi")))
		err := store.Append(ctx, "s1", NewToolResult("nope", "output"))
		assert.ErrorIs(t, err, ErrUnknownToolCall)
	})
}
