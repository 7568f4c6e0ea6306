package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/azyu/folioseek/pkg/types"
)

var (
	// ErrHighlightNotFound is returned when an update targets an unknown highlight.
	ErrHighlightNotFound = errors.New("highlight not found")

	// ErrHighlightRetired is returned when a save targets the id of a
	// soft-deleted highlight, or of a highlight owned by another book.
	ErrHighlightRetired = errors.New("highlight id belongs to a retired record")
)

// HighlightStore persists the highlights of one book.
type HighlightStore struct {
	db     *SQLiteDB
	bookID string
}

// NewHighlightStore returns a store for bookID's highlights in db.
func NewHighlightStore(db *SQLiteDB, bookID string) *HighlightStore {
	return &HighlightStore{db: db, bookID: bookID}
}

const highlightColumns = `id, book_id, chapter_index, content, content_pre, content_post,
	rangy, style, note, server_id, synced, deleted, created_at, updated_at`

// Save inserts a highlight or updates the live record with the same id.
// Soft-deleted rows are never overwritten. A zero CreatedAt is set to now.
func (s *HighlightStore) Save(ctx context.Context, h *types.Highlight) error {
	now := time.Now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	if h.BookID == "" {
		h.BookID = s.bookID
	}

	res, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO highlights (`+highlightColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chapter_index = excluded.chapter_index,
			content = excluded.content,
			content_pre = excluded.content_pre,
			content_post = excluded.content_post,
			rangy = excluded.rangy,
			style = excluded.style,
			note = excluded.note,
			server_id = excluded.server_id,
			synced = excluded.synced,
			deleted = excluded.deleted,
			updated_at = excluded.updated_at
		WHERE highlights.deleted = 0 AND highlights.book_id = excluded.book_id`,
		h.ID,
		h.BookID,
		h.ChapterIndex,
		h.Content,
		h.ContentPre,
		h.ContentPost,
		h.Rangy,
		int(h.Style),
		h.Note,
		h.ServerID,
		h.Synced,
		h.Deleted,
		h.CreatedAt.Unix(),
		h.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save highlight %s: %w", h.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrHighlightRetired, h.ID)
	}
	return nil
}

// SoftDelete marks a highlight deleted. The row and its sync fields are kept.
func (s *HighlightStore) SoftDelete(ctx context.Context, id string) error {
	res, err := s.db.DB().ExecContext(ctx,
		"UPDATE highlights SET deleted = 1, updated_at = ? WHERE id = ? AND book_id = ?",
		time.Now().Unix(), id, s.bookID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete highlight %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrHighlightNotFound, id)
	}
	return nil
}

// FindByID returns the highlight with id, deleted or not, or nil if unknown.
func (s *HighlightStore) FindByID(ctx context.Context, id string) (*types.Highlight, error) {
	row := s.db.DB().QueryRowContext(ctx,
		"SELECT "+highlightColumns+" FROM highlights WHERE id = ? AND book_id = ?",
		id, s.bookID,
	)
	h, err := scanHighlight(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get highlight %s: %w", id, err)
	}
	return h, nil
}

// FindByChapter returns the live highlights of a chapter in creation order.
func (s *HighlightStore) FindByChapter(ctx context.Context, chapter int) ([]*types.Highlight, error) {
	return s.query(ctx, `
		SELECT `+highlightColumns+` FROM highlights
		WHERE book_id = ? AND chapter_index = ? AND deleted = 0
		ORDER BY created_at, rowid`,
		s.bookID, chapter,
	)
}

// List returns the book's highlights in reading order.
func (s *HighlightStore) List(ctx context.Context, includeDeleted bool) ([]*types.Highlight, error) {
	q := `SELECT ` + highlightColumns + ` FROM highlights WHERE book_id = ?`
	if !includeDeleted {
		q += ` AND deleted = 0`
	}
	q += ` ORDER BY chapter_index, created_at, rowid`
	return s.query(ctx, q, s.bookID)
}

// LegacyChapters returns the chapters holding live highlights without an
// anchor, in ascending order.
func (s *HighlightStore) LegacyChapters(ctx context.Context) ([]int, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT DISTINCT chapter_index FROM highlights
		WHERE book_id = ? AND deleted = 0 AND rangy = ''
		ORDER BY chapter_index`,
		s.bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy chapters: %w", err)
	}
	defer rows.Close()

	var chapters []int
	for rows.Next() {
		var ch int
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

func (s *HighlightStore) query(ctx context.Context, q string, args ...any) ([]*types.Highlight, error) {
	rows, err := s.db.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("highlight query failed: %w", err)
	}
	defer rows.Close()

	var out []*types.Highlight
	for rows.Next() {
		h, err := scanHighlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan highlight: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHighlight(r rowScanner) (*types.Highlight, error) {
	var h types.Highlight
	var style int
	var createdAt, updatedAt int64
	if err := r.Scan(
		&h.ID,
		&h.BookID,
		&h.ChapterIndex,
		&h.Content,
		&h.ContentPre,
		&h.ContentPost,
		&h.Rangy,
		&style,
		&h.Note,
		&h.ServerID,
		&h.Synced,
		&h.Deleted,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	h.Style = types.HighlightStyle(style)
	h.CreatedAt = time.Unix(createdAt, 0)
	h.UpdatedAt = time.Unix(updatedAt, 0)
	return &h, nil
}
