// Package docs answers Movement Network documentation queries. Lookups
// try a fixed quick-answer table first and fall back to hybrid
// vector/keyword search over a locally indexed docs corpus.
package docs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Imdavyking/PayperAI/internal/observability"
)

// Searcher resolves documentation queries to formatted markdown.
type Searcher interface {
	Search(ctx context.Context, query string, detailed bool) (string, error)
}

// Service fronts the index with the quick-answer table.
type Service struct {
	index *Index
}

// NewService wires a Service over an index. A nil index degrades to
// quick answers only.
func NewService(index *Index) *Service {
	return &Service{index: index}
}

// Search implements Searcher.
func (s *Service) Search(ctx context.Context, query string, detailed bool) (string, error) {
	start := time.Now()

	if answer, ok := QuickAnswer(query); ok {
		observability.RecordDocsSearch(time.Since(start), true)
		return answer, nil
	}

	defer func() {
		observability.RecordDocsSearch(time.Since(start), false)
	}()

	if s.index == nil {
		return "Documentation not available. Please try again later.", nil
	}

	limit := 3
	if detailed {
		limit = 5
	}

	results, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return "", fmt.Errorf("docs search: %w", err)
	}

	if len(results) == 0 {
		return "No relevant documentation found for this query.", nil
	}

	return formatResults(results, detailed), nil
}

// formatResults renders search hits as markdown result blocks.
func formatResults(results []SearchResult, detailed bool) string {
	const briefLimit = 300

	blocks := make([]string, 0, len(results))
	for i, r := range results {
		content := r.Content
		if !detailed && len(content) > briefLimit {
			content = content[:briefLimit] + "..."
		}

		blocks = append(blocks, fmt.Sprintf("\n### Result %d - %s\n%s\n\n**Source:** %s\n---", i+1, r.Title, content, r.SourceURL))
	}

	return strings.Join(blocks, "\n\n")
}
