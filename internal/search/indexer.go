package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/azyu/folioseek/internal/metrics"
	"github.com/azyu/folioseek/internal/storage"
)

// DefaultChunkSize is the default number of characters per indexed chunk.
const DefaultChunkSize = 600

// DefaultChunkOverlap is the default overlap fraction between chunks, so a
// phrase crossing a chunk boundary is still found.
const DefaultChunkOverlap = 0.15

// IndexStats summarizes an indexing pass.
type IndexStats struct {
	Indexed   int
	Unchanged int
	Removed   int
	Skipped   int
	Chunks    int
}

// Indexer keeps the full-text index in step with a book's chapters.
type Indexer struct {
	engine       *FTSEngine
	db           *storage.SQLiteDB
	loader       TextLoader
	chunkSize    int
	chunkOverlap float64
	log          zerolog.Logger
	metrics      *metrics.Metrics
}

// NewIndexer creates a new indexer with the specified configuration.
func NewIndexer(engine *FTSEngine, db *storage.SQLiteDB, loader TextLoader, chunkSize int, overlap float64) *Indexer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= 1 {
		overlap = DefaultChunkOverlap
	}

	return &Indexer{
		engine:       engine,
		db:           db,
		loader:       loader,
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
		log:          zerolog.Nop(),
	}
}

// SetLogger sets the indexer logger.
func (idx *Indexer) SetLogger(log zerolog.Logger) {
	idx.log = log
}

// SetMetrics sets the metrics sink.
func (idx *Indexer) SetMetrics(m *metrics.Metrics) {
	idx.metrics = m
}

// Sync reindexes chapters whose text changed since they were last indexed
// and drops chapters no longer in the book.
func (idx *Indexer) Sync(ctx context.Context, source ChapterSource) (IndexStats, error) {
	var stats IndexStats

	tracked, err := idx.db.GetAllTrackedChapters(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get tracked chapters: %w", err)
	}
	trackedMap := make(map[string]storage.ChapterTrackingInfo, len(tracked))
	for _, tc := range tracked {
		trackedMap[tc.Href] = tc
	}

	current := make(map[string]struct{})
	for _, ch := range source.Chapters() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		current[ch.Href] = struct{}{}

		text, err := idx.loader.LoadPlainText(ctx, ch.Href)
		if err != nil {
			idx.log.Warn().Err(err).Str("href", ch.Href).Msg("skipping chapter")
			stats.Skipped++
			continue
		}

		hash := contentHash(text)
		if prev, ok := trackedMap[ch.Href]; ok && prev.ContentHash == hash {
			stats.Unchanged++
			continue
		}

		chunks := ChunkText(text, idx.chunkSize, idx.chunkOverlap)
		for i := range chunks {
			chunks[i].Href = ch.Href
			chunks[i].ChapterIndex = ch.Index
		}
		if err := idx.engine.ReplaceChapter(ctx, ch.Href, chunks); err != nil {
			return stats, fmt.Errorf("failed to index %s: %w", ch.Href, err)
		}
		if err := idx.db.UpdateChapterTracking(ctx, ch.Href, hash); err != nil {
			return stats, err
		}

		stats.Indexed++
		stats.Chunks += len(chunks)
		idx.metrics.IndexedChunks(len(chunks))
	}

	for href := range trackedMap {
		if _, ok := current[href]; ok {
			continue
		}
		if err := idx.engine.DeleteChapter(ctx, href); err != nil {
			return stats, fmt.Errorf("failed to delete chunks for removed chapter %s: %w", href, err)
		}
		if err := idx.db.DeleteChapterTracking(ctx, href); err != nil {
			return stats, fmt.Errorf("failed to delete tracking for %s: %w", href, err)
		}
		stats.Removed++
	}

	idx.log.Info().
		Int("indexed", stats.Indexed).
		Int("unchanged", stats.Unchanged).
		Int("removed", stats.Removed).
		Int("skipped", stats.Skipped).
		Int("chunks", stats.Chunks).
		Msg("index synced")
	return stats, nil
}

// Rebuild clears the index and its tracking, then indexes every chapter.
func (idx *Indexer) Rebuild(ctx context.Context, source ChapterSource) (IndexStats, error) {
	if err := idx.engine.Clear(ctx); err != nil {
		return IndexStats{}, fmt.Errorf("failed to clear index: %w", err)
	}
	if err := idx.db.ClearChapterTracking(ctx); err != nil {
		return IndexStats{}, fmt.Errorf("failed to clear tracking: %w", err)
	}
	return idx.Sync(ctx, source)
}

// ChunkText splits text into chunks of about size characters that start and
// end on word boundaries. Consecutive chunks overlap by the given fraction.
// Chunk positions are character offsets into text.
func ChunkText(text string, size int, overlap float64) []ChapterChunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	step := max(1, int(float64(size)*(1-overlap)))

	var chunks []ChapterChunk
	for start := 0; start < n; {
		for start < n && unicode.IsSpace(runes[start]) {
			start++
		}
		if start >= n {
			break
		}

		end := min(n, start+size)
		for end < n && !unicode.IsSpace(runes[end]) {
			end++
		}
		chunks = append(chunks, ChapterChunk{
			Position: start,
			Content:  strings.TrimRightFunc(string(runes[start:end]), unicode.IsSpace),
		})
		if end >= n {
			break
		}

		next := start + step
		for next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return chunks
}

// ChunkSize returns the current chunk size setting.
func (idx *Indexer) ChunkSize() int {
	return idx.chunkSize
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
