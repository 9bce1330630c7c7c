package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Imdavyking/PayperAI/pkg/session"
)

func TestCompactIfNeeded(t *testing.T) {
	t.Run("should leave contexts under the limit untouched", func(t *testing.T) {
		messages := []ChatMessage{
			{Role: "system", Content: "You are a Movement specialist."},
			{Role: "user", Content: "hi"},
		}

		assert.Equal(t, messages, compactIfNeeded("gpt-4o-mini", messages, 8192))
	})

	t.Run("should never open the kept window on a tool message", func(t *testing.T) {
		// Place an assistant tool call and its result exactly around
		// the compaction cut so a naive slice would keep the result
		// but drop the call it references.
		messages := []ChatMessage{{Role: "system", Content: "You are a Movement specialist."}}
		for i := 0; i < 30; i++ {
			switch i {
			case 30 - recentKeep - 1:
				messages = append(messages, ChatMessage{
					Role:      "assistant",
					Content:   "Sending now.",
					ToolCalls: []session.ToolCall{{ID: "tc1", Name: "sendMove"}},
				})
			case 30 - recentKeep:
				messages = append(messages, ChatMessage{
					Role:       "tool",
					ToolCallID: "tc1",
					Content:    "Sent 1 MOVE to 0xdead. Transaction hash: 0xabc",
				})
			default:
				messages = append(messages, ChatMessage{Role: "user", Content: fmt.Sprintf("message %d", i)})
			}
		}

		compacted := compactIfNeeded("gpt-4o-mini", messages, 10)

		require.NotEmpty(t, compacted)
		for _, msg := range compacted {
			if msg.Role == "system" {
				continue
			}
			assert.NotEqual(t, "tool", msg.Role, "context opens on an orphan tool result")
			break
		}

		// The orphan result folded into the summary together with its
		// owning assistant message.
		require.GreaterOrEqual(t, len(compacted), 2)
		assert.Contains(t, compacted[1].Content, "11 messages")
	})

	t.Run("should keep system messages and count the rest into the summary", func(t *testing.T) {
		messages := []ChatMessage{{Role: "system", Content: "You are a Movement specialist."}}
		for i := 0; i < 30; i++ {
			messages = append(messages, ChatMessage{Role: "user", Content: fmt.Sprintf("message %d", i)})
		}

		compacted := compactIfNeeded("gpt-4o-mini", messages, 10)

		require.Len(t, compacted, 2+recentKeep)
		assert.Equal(t, "system", compacted[0].Role)
		assert.Contains(t, compacted[1].Content, fmt.Sprintf("%d messages", 30-recentKeep))
		assert.Equal(t, "message 10", compacted[2].Content)
	})
}
