package agent

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

const (
	fallbackEncoding = "cl100k_base"
	// recentKeep is how many conversation messages survive compaction.
	recentKeep = 20
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// countTokens estimates the token footprint of a message list. Falls
// back to a character heuristic if the encoder cannot be loaded.
func countTokens(model string, messages []ChatMessage) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel(model)
		if err != nil {
			enc, err = tiktoken.GetEncoding(fallbackEncoding)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Token encoder unavailable, using character heuristic")
			return
		}
		encoder = enc
	})

	if encoder == nil {
		totalChars := 0
		for _, msg := range messages {
			totalChars += len(msg.Content)
		}
		return (totalChars + 3) / 4
	}

	total := 0
	for _, msg := range messages {
		total += len(encoder.Encode(msg.Content, nil, nil))
		// Per-message framing overhead.
		total += 4
	}
	return total
}

// compactIfNeeded shrinks the context when it exceeds maxTokens:
// system messages and the most recent exchanges survive, everything
// older collapses into a summary marker.
func compactIfNeeded(model string, messages []ChatMessage, maxTokens int) []ChatMessage {
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	tokenCount := countTokens(model, messages)
	if tokenCount <= maxTokens {
		return messages
	}

	log.Info().
		Int("tokenCount", tokenCount).
		Int("maxTokens", maxTokens).
		Msg("Compacting context")

	systemMessages := []ChatMessage{}
	conversationMessages := []ChatMessage{}

	for _, msg := range messages {
		if msg.Role == "system" {
			systemMessages = append(systemMessages, msg)
		} else {
			conversationMessages = append(conversationMessages, msg)
		}
	}

	if len(conversationMessages) <= recentKeep {
		return messages
	}

	start := len(conversationMessages) - recentKeep
	// A cut landing between an assistant tool-call message and its
	// tool results would leave orphan tool messages, which providers
	// reject. Advance past them so the window opens on a clean turn.
	for start < len(conversationMessages) && conversationMessages[start].Role == "tool" {
		start++
	}

	recent := conversationMessages[start:]
	olderCount := start

	summary := ChatMessage{
		Role:    "system",
		Content: fmt.Sprintf("[Previous conversation summary: %d messages exchanged]", olderCount),
	}

	result := append(systemMessages, summary)
	result = append(result, recent...)

	return result
}
