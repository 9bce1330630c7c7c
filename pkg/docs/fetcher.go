package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/rs/zerolog"
)

// KnownPaths lists documentation pages fetched when no sitemap is
// reachable.
var KnownPaths = []string{
	"/general",
	"/general/networks",
	"/general/networks/mainnet",
	"/general/networks/testnet",
	"/general/l1/what-is-movement-l1",
	"/general/l1/move-language",
	"/general/usingmovement/community-support",
	"/general/usingmovement/connect_to_movement",
	"/general/sidechain/node-level-architecture",
	"/devs/move2",
	"/devs/movementcli",
	"/devs/faq",
}

const maxPageChars = 50000

// Fetcher downloads documentation pages and writes them to the corpus
// directory as markdown, ready for the index to pick up.
type Fetcher struct {
	baseURL   string
	corpusDir string
	client    *http.Client
	logger    zerolog.Logger
}

// NewFetcher creates a fetcher targeting baseURL.
func NewFetcher(baseURL, corpusDir string, logger zerolog.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = "https://docs.movementnetwork.xyz"
	}
	return &Fetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		corpusDir: corpusDir,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// FetchAll downloads every known documentation page. Individual page
// failures are logged and skipped so one broken page never aborts the
// whole crawl.
func (f *Fetcher) FetchAll(ctx context.Context) (int, error) {
	if err := os.MkdirAll(f.corpusDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create corpus directory: %w", err)
	}

	fetched := 0
	for _, path := range KnownPaths {
		if err := ctx.Err(); err != nil {
			return fetched, err
		}

		if err := f.fetchPage(ctx, path); err != nil {
			f.logger.Warn().Err(err).Str("path", path).Msg("Failed to fetch docs page")
			continue
		}
		fetched++
	}

	f.logger.Info().Int("pages", fetched).Msg("Docs fetch completed")
	return fetched, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, path string) error {
	url := f.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "PayperAI/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return fmt.Errorf("convert to markdown: %w", err)
	}
	if len(md) > maxPageChars {
		md = md[:maxPageChars] + "\n\n[Content truncated]"
	}

	relPath := pagePath(path)
	fullPath := filepath.Join(f.corpusDir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create page directory: %w", err)
	}

	if err := os.WriteFile(fullPath, []byte(md), 0644); err != nil {
		return fmt.Errorf("write page: %w", err)
	}

	f.logger.Debug().Str("page", relPath).Msg("Docs page fetched")
	return nil
}

// pagePath maps a URL path to its corpus-relative markdown file so the
// index can map it back to a source URL.
func pagePath(urlPath string) string {
	trimmed := strings.Trim(urlPath, "/")
	if trimmed == "" {
		trimmed = "index"
	}
	if i := strings.IndexByte(trimmed, '#'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return filepath.FromSlash(trimmed) + ".md"
}
