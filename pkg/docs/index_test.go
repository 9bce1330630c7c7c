package docs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIndex(t *testing.T) (*Index, string) {
	t.Helper()

	corpusDir := t.TempDir()
	idx, err := NewIndex(IndexConfig{
		CorpusDir: corpusDir,
		DBPath:    filepath.Join(t.TempDir(), "docs.db"),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	return idx, corpusDir
}

func writePage(t *testing.T, corpusDir, relPath, content string) {
	t.Helper()
	fullPath := filepath.Join(corpusDir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
}

func TestIndexSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("should find pages by keyword", func(t *testing.T) {
		idx, corpusDir := setupIndex(t)

		writePage(t, corpusDir, "general/l1/move-language.md",
			"# Move Language\n\nMove is a resource-oriented programming language with formal verification support.\n")
		writePage(t, corpusDir, "general/networks/testnet.md",
			"# Testnet\n\nThe Bardock testnet provides a faucet and an explorer for developers.\n")

		results, err := idx.Search(ctx, "faucet", 3)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "Testnet", results[0].Title)
		assert.Equal(t, "https://docs.movementnetwork.xyz/general/networks/testnet", results[0].SourceURL)
		assert.NotNil(t, results[0].KeywordScore)
	})

	t.Run("should return empty for empty query", func(t *testing.T) {
		idx, _ := setupIndex(t)

		results, err := idx.Search(ctx, "", 3)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("should resync after pages change", func(t *testing.T) {
		idx, corpusDir := setupIndex(t)

		writePage(t, corpusDir, "devs/movementcli.md", "# CLI\n\nInstall the movement command line interface.\n")
		require.NoError(t, idx.Sync(ctx))

		status := idx.Status()
		assert.Equal(t, 1, status.TotalPages)
		assert.False(t, status.IsDirty)

		writePage(t, corpusDir, "devs/faq.md", "# FAQ\n\nFrequently asked questions about gasless transactions.\n")
		idx.MarkDirty()

		results, err := idx.Search(ctx, "gasless", 3)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "FAQ", results[0].Title)
	})

	t.Run("should skip unchanged pages on resync", func(t *testing.T) {
		idx, corpusDir := setupIndex(t)

		writePage(t, corpusDir, "general.md", "# General\n\nOverview of the network.\n")
		require.NoError(t, idx.Sync(ctx))

		before := idx.Status()
		idx.MarkDirty()
		require.NoError(t, idx.Sync(ctx))
		after := idx.Status()

		assert.Equal(t, before.TotalChunks, after.TotalChunks)
	})

	t.Run("should prune deleted pages", func(t *testing.T) {
		idx, corpusDir := setupIndex(t)

		writePage(t, corpusDir, "stale.md", "# Stale\n\nThis page will be removed.\n")
		require.NoError(t, idx.Sync(ctx))
		require.Equal(t, 1, idx.Status().TotalPages)

		require.NoError(t, os.Remove(filepath.Join(corpusDir, "stale.md")))
		idx.MarkDirty()
		require.NoError(t, idx.Sync(ctx))

		assert.Equal(t, 0, idx.Status().TotalPages)
	})
}
