package docs

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Imdavyking/PayperAI/internal/observability"
	"github.com/Imdavyking/PayperAI/internal/tracing"
)

func init() {
	sqlite_vec.Auto()
}

// SearchResult is one scored documentation chunk.
type SearchResult struct {
	ChunkID      string   `json:"chunk_id"`
	Title        string   `json:"title"`
	SourceURL    string   `json:"source_url"`
	Content      string   `json:"content"`
	Score        float64  `json:"score"`
	VectorScore  *float64 `json:"vector_score,omitempty"`
	KeywordScore *float64 `json:"keyword_score,omitempty"`
}

// IndexStatus reports corpus and sync state.
type IndexStatus struct {
	TotalPages   int        `json:"total_pages"`
	TotalChunks  int        `json:"total_chunks"`
	IsDirty      bool       `json:"is_dirty"`
	IsSyncing    bool       `json:"is_syncing"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

// IndexConfig holds index configuration.
type IndexConfig struct {
	CorpusDir         string
	DBPath            string
	BaseURL           string
	Logger            zerolog.Logger
	EmbeddingProvider EmbeddingProvider // optional; nil skips vector search
}

// Index maintains an FTS5 + vector index over a directory of markdown
// documentation pages and serves hybrid searches against it.
type Index struct {
	db                *sql.DB
	corpusDir         string
	baseURL           string
	logger            zerolog.Logger
	embeddingProvider EmbeddingProvider
	watcher           *corpusWatcher
	mu                sync.RWMutex
	isDirty           bool
	isSyncing         bool
	lastSyncTime      *time.Time
}

// NewIndex opens the index database and starts watching the corpus dir.
func NewIndex(cfg IndexConfig) (*Index, error) {
	observability.EnsureRegistered()

	if cfg.CorpusDir == "" {
		return nil, errors.New("corpus directory is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://docs.movementnetwork.xyz"
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	idx := &Index{
		db:                db,
		corpusDir:         cfg.CorpusDir,
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		logger:            cfg.Logger,
		embeddingProvider: cfg.EmbeddingProvider,
		isDirty:           true, // force initial sync
	}

	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	watcher, err := newCorpusWatcher(cfg.Logger, idx.MarkDirty)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create corpus watcher: %w", err)
	}
	if err := watcher.Watch(cfg.CorpusDir); err != nil {
		watcher.Stop()
		db.Close()
		return nil, fmt.Errorf("failed to watch corpus: %w", err)
	}
	idx.watcher = watcher

	idx.logger.Info().Str("corpus", cfg.CorpusDir).Msg("Docs index initialized")
	return idx, nil
}

func (idx *Index) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS pages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			source_url TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pages_path ON pages(path);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			page_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			FOREIGN KEY (page_id) REFERENCES pages(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_page ON chunks(page_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`

	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	if idx.embeddingProvider != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
				chunk_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, idx.embeddingProvider.Dimension())

		if _, err := idx.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

// Search runs vector and keyword searches in parallel and merges them.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"payperai.docs",
		"docs.search",
		attribute.String("query", query),
	)
	defer span.End()

	logger := tracing.PropagateToLogger(ctx, idx.logger)

	if query == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 3
	}

	idx.mu.RLock()
	dirty := idx.isDirty
	idx.mu.RUnlock()
	if dirty {
		if err := idx.Sync(ctx); err != nil {
			logger.Warn().Err(err).Msg("Sync failed before search")
		}
	}

	var vectorResults []vectorHit
	var keywordResults []keywordHit
	var vectorErr, keywordErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if idx.embeddingProvider != nil {
			vectorResults, vectorErr = idx.vectorSearch(ctx, query, 200)
		}
	}()

	go func() {
		defer wg.Done()
		keywordResults, keywordErr = idx.keywordSearch(query, 200)
	}()

	wg.Wait()

	if vectorErr != nil {
		logger.Warn().Err(vectorErr).Msg("Vector search failed, using keyword only")
	}
	if keywordErr != nil {
		logger.Warn().Err(keywordErr).Msg("Keyword search failed, using vector only")
	}
	if vectorErr != nil && keywordErr != nil {
		span.RecordError(vectorErr)
		span.RecordError(keywordErr)
		span.SetStatus(codes.Error, "both search methods failed")
		return nil, fmt.Errorf("both search methods failed")
	}

	results := idx.mergeResults(vectorResults, keywordResults)
	if len(results) > limit {
		results = results[:limit]
	}

	logger.Debug().
		Str("query", query).
		Int("results", len(results)).
		Msg("Docs search completed")

	return results, nil
}

type vectorHit struct {
	chunkID    string
	similarity float64
}

type keywordHit struct {
	chunkID   string
	bm25Score float64
}

func (idx *Index) vectorSearch(ctx context.Context, query string, limit int) ([]vectorHit, error) {
	embedding, err := idx.embeddingProvider.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT chunk_id, vec_distance_cosine(embedding, ?) as distance
		FROM embeddings
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []vectorHit
	for rows.Next() {
		var chunkID string
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, err
		}
		hits = append(hits, vectorHit{chunkID: chunkID, similarity: 1.0 - distance})
	}

	return hits, nil
}

func (idx *Index) keywordSearch(query string, limit int) ([]keywordHit, error) {
	rows, err := idx.db.Query(`
		SELECT chunk_id, bm25(chunks_fts) as score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []keywordHit
	for rows.Next() {
		var chunkID string
		var score float64
		if err := rows.Scan(&chunkID, &score); err != nil {
			return nil, err
		}
		// bm25 reports negative scores, flip to positive
		hits = append(hits, keywordHit{chunkID: chunkID, bm25Score: -score})
	}

	return hits, nil
}

const (
	vectorWeight  = 0.7
	keywordWeight = 0.3
)

func (idx *Index) mergeResults(vectorResults []vectorHit, keywordResults []keywordHit) []SearchResult {
	vectorMap := make(map[string]float64)
	keywordMap := make(map[string]float64)

	var maxKeyword float64
	for _, h := range vectorResults {
		vectorMap[h.chunkID] = h.similarity
	}
	for _, h := range keywordResults {
		keywordMap[h.chunkID] = h.bm25Score
		if h.bm25Score > maxKeyword {
			maxKeyword = h.bm25Score
		}
	}

	chunkIDs := make(map[string]bool)
	for id := range vectorMap {
		chunkIDs[id] = true
	}
	for id := range keywordMap {
		chunkIDs[id] = true
	}

	type scoredHit struct {
		chunkID      string
		score        float64
		vectorScore  *float64
		keywordScore *float64
	}

	var scored []scoredHit
	for chunkID := range chunkIDs {
		var normalizedVector, normalizedKeyword float64

		// similarity [-1, 1] mapped to [0, 1]
		if v, ok := vectorMap[chunkID]; ok {
			normalizedVector = (v + 1) / 2
		}
		if k, ok := keywordMap[chunkID]; ok && maxKeyword > 0 {
			normalizedKeyword = k / maxKeyword
		}

		combined := normalizedVector*vectorWeight + normalizedKeyword*keywordWeight

		var vecPtr, keyPtr *float64
		if _, ok := vectorMap[chunkID]; ok {
			v := normalizedVector
			vecPtr = &v
		}
		if _, ok := keywordMap[chunkID]; ok {
			k := normalizedKeyword
			keyPtr = &k
		}

		scored = append(scored, scoredHit{
			chunkID:      chunkID,
			score:        combined,
			vectorScore:  vecPtr,
			keywordScore: keyPtr,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	results := make([]SearchResult, 0, len(scored))
	for _, s := range scored {
		var content, title, sourceURL string
		err := idx.db.QueryRow(`
			SELECT c.content, p.title, p.source_url
			FROM chunks c
			JOIN pages p ON c.page_id = p.id
			WHERE c.id = ?
		`, s.chunkID).Scan(&content, &title, &sourceURL)
		if err != nil {
			idx.logger.Warn().Err(err).Str("chunk_id", s.chunkID).Msg("Failed to fetch chunk details")
			continue
		}

		results = append(results, SearchResult{
			ChunkID:      s.chunkID,
			Title:        title,
			SourceURL:    sourceURL,
			Content:      content,
			Score:        s.score,
			VectorScore:  s.vectorScore,
			KeywordScore: s.keywordScore,
		})
	}

	return results
}

// Sync reindexes changed corpus pages and prunes deleted ones.
func (idx *Index) Sync(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(ctx, "payperai.docs", "docs.sync")
	defer span.End()
	logger := tracing.PropagateToLogger(ctx, idx.logger)

	idx.mu.Lock()
	if idx.isSyncing {
		idx.mu.Unlock()
		span.SetStatus(codes.Error, "sync already in progress")
		return errors.New("sync already in progress")
	}
	idx.isSyncing = true
	idx.mu.Unlock()

	defer func() {
		idx.mu.Lock()
		idx.isSyncing = false
		idx.isDirty = false
		now := time.Now()
		idx.lastSyncTime = &now
		idx.mu.Unlock()
	}()

	logger.Info().Msg("Starting docs sync")
	start := time.Now()

	var mdFiles []string
	err := filepath.WalkDir(idx.corpusDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			relPath, _ := filepath.Rel(idx.corpusDir, path)
			mdFiles = append(mdFiles, relPath)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to walk corpus: %w", err)
	}

	pagesIndexed := 0
	pagesSkipped := 0
	chunksCreated := 0

	for _, relPath := range mdFiles {
		indexed, chunks, err := idx.indexPage(ctx, filepath.Join(idx.corpusDir, relPath), relPath)
		if err != nil {
			logger.Warn().Err(err).Str("page", relPath).Msg("Failed to index page")
			span.RecordError(err)
			continue
		}
		if indexed {
			pagesIndexed++
			chunksCreated += chunks
		} else {
			pagesSkipped++
		}
	}

	pruned, err := idx.pruneDeletedPages(mdFiles)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to prune deleted pages")
		span.RecordError(err)
	}

	logger.Info().
		Int("pages_indexed", pagesIndexed).
		Int("pages_skipped", pagesSkipped).
		Int("chunks_created", chunksCreated).
		Int("pages_pruned", pruned).
		Dur("duration", time.Since(start)).
		Msg("Docs sync completed")

	observability.SetDocsChunks(idx.Status().TotalChunks)
	return nil
}

func (idx *Index) indexPage(ctx context.Context, fullPath, relPath string) (bool, int, error) {
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return false, 0, err
	}

	hash := sha256.Sum256(content)
	contentHash := hex.EncodeToString(hash[:])

	var existingHash string
	err = idx.db.QueryRow("SELECT content_hash FROM pages WHERE path = ?", relPath).Scan(&existingHash)
	if err == nil && existingHash == contentHash {
		return false, 0, nil
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM pages WHERE path = ?", relPath); err != nil {
		return false, 0, err
	}

	title := pageTitle(relPath, string(content))
	sourceURL := idx.sourceURL(relPath)

	result, err := tx.Exec(
		"INSERT INTO pages (path, title, source_url, content_hash, indexed_at) VALUES (?, ?, ?, ?, ?)",
		relPath, title, sourceURL, contentHash, time.Now().Unix(),
	)
	if err != nil {
		return false, 0, err
	}
	pageID, _ := result.LastInsertId()

	chunks := chunkContent(string(content))
	for i, c := range chunks {
		chunkID := fmt.Sprintf("%s#%d", relPath, i)

		if _, err := tx.Exec(
			"INSERT INTO chunks (id, page_id, content, start_offset, end_offset) VALUES (?, ?, ?, ?, ?)",
			chunkID, pageID, c.content, c.startOffset, c.endOffset,
		); err != nil {
			return false, 0, err
		}

		if _, err := tx.Exec(
			"INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)",
			chunkID, c.content,
		); err != nil {
			return false, 0, err
		}

		if idx.embeddingProvider != nil {
			if err := idx.storeEmbedding(ctx, tx, chunkID, c.content); err != nil {
				idx.logger.Warn().Err(err).Str("chunk", chunkID).Msg("Failed to store embedding")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, 0, err
	}

	return true, len(chunks), nil
}

func (idx *Index) storeEmbedding(ctx context.Context, tx *sql.Tx, chunkID, content string) error {
	contentHashBytes := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(contentHashBytes[:])

	var cachedEmbedding []byte
	err := tx.QueryRow("SELECT embedding FROM embedding_cache WHERE content_hash = ?", contentHash).Scan(&cachedEmbedding)

	var embedding []float32
	if err == nil {
		if err := json.Unmarshal(cachedEmbedding, &embedding); err != nil {
			return fmt.Errorf("failed to unmarshal cached embedding: %w", err)
		}
	} else {
		embedding, err = idx.embeddingProvider.GenerateEmbedding(ctx, content)
		if err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}

		embeddingJSON, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}

		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO embedding_cache (content_hash, embedding, dimension, created_at) VALUES (?, ?, ?, ?)",
			contentHash, embeddingJSON, len(embedding), time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("failed to cache embedding: %w", err)
		}
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding for storage: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO embeddings (chunk_id, embedding) VALUES (?, ?)",
		chunkID, string(embeddingJSON),
	); err != nil {
		return fmt.Errorf("failed to store embedding in vector table: %w", err)
	}

	return nil
}

// pageTitle prefers the first markdown heading, falling back to the
// file name.
func pageTitle(relPath, content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// sourceURL maps a corpus-relative path back to the docs site URL.
func (idx *Index) sourceURL(relPath string) string {
	urlPath := strings.TrimSuffix(filepath.ToSlash(relPath), ".md")
	return idx.baseURL + "/" + urlPath
}

type contentChunk struct {
	content     string
	startOffset int
	endOffset   int
}

// chunkContent splits page content into overlapping chunks.
func chunkContent(content string) []contentChunk {
	const minSize = 500
	const maxSize = 1000
	const overlap = 50

	var chunks []contentChunk
	lines := strings.Split(content, "\n")

	var current strings.Builder
	startOffset := 0
	currentOffset := 0

	for _, line := range lines {
		lineLen := len(line) + 1

		if current.Len() > 0 && current.Len()+lineLen > maxSize {
			chunks = append(chunks, contentChunk{
				content:     strings.TrimSpace(current.String()),
				startOffset: startOffset,
				endOffset:   currentOffset,
			})

			chunkText := current.String()
			if len(chunkText) > overlap {
				overlapText := chunkText[len(chunkText)-overlap:]
				current.Reset()
				current.WriteString(overlapText)
				startOffset = currentOffset - overlap
			} else {
				current.Reset()
				startOffset = currentOffset
			}
		}

		current.WriteString(line)
		current.WriteString("\n")
		currentOffset += lineLen
	}

	if current.Len() >= minSize || len(chunks) == 0 {
		if strings.TrimSpace(current.String()) != "" {
			chunks = append(chunks, contentChunk{
				content:     strings.TrimSpace(current.String()),
				startOffset: startOffset,
				endOffset:   currentOffset,
			})
		}
	}

	return chunks
}

func (idx *Index) pruneDeletedPages(existingPages []string) (int, error) {
	rows, err := idx.db.Query("SELECT path FROM pages")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	existingSet := make(map[string]bool)
	for _, p := range existingPages {
		existingSet[p] = true
	}

	var toDelete []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return 0, err
		}
		if !existingSet[path] {
			toDelete = append(toDelete, path)
		}
	}

	for _, path := range toDelete {
		if _, err := idx.db.Exec("DELETE FROM pages WHERE path = ?", path); err != nil {
			return 0, err
		}
	}

	return len(toDelete), nil
}

// Status returns current index state.
func (idx *Index) Status() IndexStatus {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var status IndexStatus
	status.IsDirty = idx.isDirty
	status.IsSyncing = idx.isSyncing
	status.LastSyncTime = idx.lastSyncTime

	idx.db.QueryRow("SELECT COUNT(*) FROM pages").Scan(&status.TotalPages)
	idx.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&status.TotalChunks)

	return status
}

// MarkDirty flags the index for resync before the next search.
func (idx *Index) MarkDirty() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.isDirty = true
}

// Close stops the watcher and closes the database.
func (idx *Index) Close() error {
	idx.logger.Info().Msg("Closing docs index")
	if idx.watcher != nil {
		idx.watcher.Stop()
	}
	return idx.db.Close()
}
