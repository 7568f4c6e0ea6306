package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/azyu/folioseek/internal/storage"
)

// DefaultIndexLimit caps the chapters a single index query may narrow a
// search to. Broader queries scan the whole book.
const DefaultIndexLimit = 1000

// ChapterChunk is a slice of chapter text stored in the full-text index.
type ChapterChunk struct {
	Href         string
	ChapterIndex int
	// Position is the character offset of the chunk inside the chapter.
	Position int
	Content  string
}

// FTSEngine is the SQLite FTS5 index over chapter text.
type FTSEngine struct {
	db    *storage.SQLiteDB
	limit int
}

// NewFTSEngine creates a new FTS5-backed index.
func NewFTSEngine(db *storage.SQLiteDB) *FTSEngine {
	return &FTSEngine{
		db:    db,
		limit: DefaultIndexLimit,
	}
}

// QueryIndex implements IndexLookup. It returns one hit per chapter holding
// a word starting with term, best matches first, positioned at the chapter's
// earliest matching chunk. ErrIndexUnavailable is returned when nothing has
// been indexed, term has no indexable word, or more chapters match than the
// limit.
func (e *FTSEngine) QueryIndex(ctx context.Context, term string) ([]IndexHit, error) {
	match := prefixPhraseQuery(term)
	if match == "" {
		return nil, fmt.Errorf("%w: query %q has no indexable text", ErrIndexUnavailable, term)
	}

	count, err := e.ChunkCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrIndexUnavailable
	}

	rows, err := e.db.DB().QueryContext(ctx, `
		SELECT href, chapter_index, MIN(position)
		FROM (
			SELECT
				chapter_meta.href AS href,
				chapter_meta.chapter_index AS chapter_index,
				chapter_meta.position AS position,
				bm25(chapters_fts) AS score
			FROM chapters_fts
			JOIN chapter_meta ON chapters_fts.rowid = chapter_meta.rowid
			WHERE chapters_fts MATCH ?
		)
		GROUP BY href, chapter_index
		ORDER BY MIN(score)
		LIMIT ?`,
		match,
		e.limit+1,
	)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	defer rows.Close()

	var hits []IndexHit
	for rows.Next() {
		var h IndexHit
		if err := rows.Scan(&h.Href, &h.ChapterIndex, &h.PositionHint); err != nil {
			return nil, fmt.Errorf("failed to scan index hit: %w", err)
		}
		hits = append(hits, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index hits: %w", err)
	}
	if len(hits) > e.limit {
		return nil, fmt.Errorf("%w: more than %d chapters match %q", ErrIndexUnavailable, e.limit, term)
	}

	return hits, nil
}

// ReplaceChapter atomically replaces the indexed chunks of one chapter.
func (e *FTSEngine) ReplaceChapter(ctx context.Context, href string, chunks []ChapterChunk) error {
	tx, err := e.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteChapterTx(ctx, tx, href); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, chunk := range chunks {
		result, err := tx.ExecContext(ctx,
			"INSERT INTO chapters_fts (content, href) VALUES (?, ?)",
			chunk.Content, chunk.Href,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s into FTS index: %w", chunk.Href, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get row ID for %s: %w", chunk.Href, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO chapter_meta
				(rowid, href, chapter_index, position, length, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rowID,
			chunk.Href,
			chunk.ChapterIndex,
			chunk.Position,
			len([]rune(chunk.Content)),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert metadata for %s: %w", chunk.Href, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chapter %s: %w", href, err)
	}

	return nil
}

// DeleteChapter removes all chunks of href from the index.
func (e *FTSEngine) DeleteChapter(ctx context.Context, href string) error {
	tx, err := e.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteChapterTx(ctx, tx, href); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deletion: %w", err)
	}

	return nil
}

func deleteChapterTx(ctx context.Context, tx *sql.Tx, href string) error {
	rows, err := tx.QueryContext(ctx, "SELECT rowid FROM chapter_meta WHERE href = ?", href)
	if err != nil {
		return fmt.Errorf("failed to query chunks for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan row ID: %w", err)
		}
		rowIDs = append(rowIDs, id)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating row IDs: %w", err)
	}

	for _, id := range rowIDs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chapters_fts WHERE rowid = ?", id); err != nil {
			return fmt.Errorf("failed to delete from FTS index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chapter_meta WHERE rowid = ?", id); err != nil {
			return fmt.Errorf("failed to delete from metadata table: %w", err)
		}
	}
	return nil
}

// Clear removes all entries from the index.
func (e *FTSEngine) Clear(ctx context.Context) error {
	tx, err := e.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chapters_fts"); err != nil {
		return fmt.Errorf("failed to clear FTS index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chapter_meta"); err != nil {
		return fmt.Errorf("failed to clear metadata table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear operation: %w", err)
	}

	return nil
}

// ChunkCount returns the total number of indexed chunks.
func (e *FTSEngine) ChunkCount(ctx context.Context) (int64, error) {
	var count int64
	err := e.db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM chapter_meta").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// ChapterChunkCount returns the number of indexed chunks of href.
func (e *FTSEngine) ChapterChunkCount(ctx context.Context, href string) (int64, error) {
	var count int64
	err := e.db.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chapter_meta WHERE href = ?",
		href,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for %s: %w", href, err)
	}
	return count, nil
}

// prefixPhraseQuery builds an FTS5 MATCH expression that finds term as a
// phrase whose last word may be a prefix. It returns "" when term holds no
// letters or digits, which FTS5 would reject.
func prefixPhraseQuery(term string) string {
	term = strings.TrimSpace(term)
	if strings.IndexFunc(term, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) < 0 {
		return ""
	}
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
}
