// Package storage provides file and database handling.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the name of the per-book database inside its data directory.
const DBFileName = "book.db"

// SQLiteDB manages the SQLite database of one book.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// NewSQLiteDB opens or creates the database in dataDir.
func NewSQLiteDB(dataDir string) (*SQLiteDB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqliteDB := &SQLiteDB{
		db:   db,
		path: dbPath,
	}

	if err := sqliteDB.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return sqliteDB, nil
}

// initialize creates the required tables if they don't exist.
func (s *SQLiteDB) initialize() error {
	schema := `
	-- FTS5 virtual table over chapter text chunks
	CREATE VIRTUAL TABLE IF NOT EXISTS chapters_fts USING fts5(
		content,
		href UNINDEXED,
		tokenize='unicode61'
	);

	-- Metadata for each chunk, sharing the FTS rowid
	CREATE TABLE IF NOT EXISTS chapter_meta (
		rowid INTEGER PRIMARY KEY,
		href TEXT NOT NULL,
		chapter_index INTEGER NOT NULL,
		position INTEGER NOT NULL,
		length INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chapter_meta_href
	ON chapter_meta(href);

	-- Content hashes for incremental indexing
	CREATE TABLE IF NOT EXISTS chapter_tracking (
		href TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		indexed_at INTEGER NOT NULL
	);

	-- User highlights; rows are soft-deleted, never removed
	CREATE TABLE IF NOT EXISTS highlights (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		chapter_index INTEGER NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		content_pre TEXT NOT NULL DEFAULT '',
		content_post TEXT NOT NULL DEFAULT '',
		rangy TEXT NOT NULL DEFAULT '',
		style INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT '',
		server_id INTEGER NOT NULL DEFAULT 0,
		synced INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_highlights_chapter
	ON highlights(book_id, chapter_index, deleted);

	-- Schema version for migrations
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ChapterTrackingInfo records the content a chapter was indexed from.
type ChapterTrackingInfo struct {
	Href        string
	ContentHash string
	IndexedAt   time.Time
}

// UpdateChapterTracking records that href was indexed with the given hash.
func (s *SQLiteDB) UpdateChapterTracking(ctx context.Context, href, contentHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chapter_tracking (href, content_hash, indexed_at)
		VALUES (?, ?, ?)
	`, href, contentHash, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to update tracking for %s: %w", href, err)
	}
	return nil
}

// GetChapterTracking returns the tracking info for href, or nil if untracked.
func (s *SQLiteDB) GetChapterTracking(ctx context.Context, href string) (*ChapterTrackingInfo, error) {
	var info ChapterTrackingInfo
	var indexedAtUnix int64

	err := s.db.QueryRowContext(ctx,
		"SELECT href, content_hash, indexed_at FROM chapter_tracking WHERE href = ?",
		href,
	).Scan(&info.Href, &info.ContentHash, &indexedAtUnix)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	info.IndexedAt = time.Unix(indexedAtUnix, 0)
	return &info, nil
}

// DeleteChapterTracking removes tracking for href.
func (s *SQLiteDB) DeleteChapterTracking(ctx context.Context, href string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chapter_tracking WHERE href = ?", href)
	return err
}

// GetAllTrackedChapters returns all tracked chapters.
func (s *SQLiteDB) GetAllTrackedChapters(ctx context.Context) ([]ChapterTrackingInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT href, content_hash, indexed_at FROM chapter_tracking")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []ChapterTrackingInfo
	for rows.Next() {
		var info ChapterTrackingInfo
		var indexedAtUnix int64
		if err := rows.Scan(&info.Href, &info.ContentHash, &indexedAtUnix); err != nil {
			return nil, err
		}
		info.IndexedAt = time.Unix(indexedAtUnix, 0)
		chapters = append(chapters, info)
	}

	return chapters, rows.Err()
}

// ClearChapterTracking removes all tracking rows.
func (s *SQLiteDB) ClearChapterTracking(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chapter_tracking")
	return err
}

// SchemaVersion returns the highest applied schema version.
func (s *SQLiteDB) SchemaVersion() (int, error) {
	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *SQLiteDB) Path() string {
	return s.path
}
