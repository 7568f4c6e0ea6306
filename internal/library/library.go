// Package library opens books together with their index and highlight store.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/azyu/folioseek/internal/anchor"
	"github.com/azyu/folioseek/internal/book"
	"github.com/azyu/folioseek/internal/logger"
	"github.com/azyu/folioseek/internal/metrics"
	"github.com/azyu/folioseek/internal/search"
	"github.com/azyu/folioseek/internal/storage"
	"github.com/azyu/folioseek/pkg/types"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrNoChapters   = errors.New("book has no chapters")
	ErrChapterRange = errors.New("chapter index out of range")
	ErrInvalidRange = errors.New("invalid highlight range")
)

// Manager handles the per-book data directories below the library directory.
type Manager struct {
	libraryDir string
	cfg        types.GlobalConfig
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewManager creates a manager for cfg.LibraryDir, creating it if needed.
// A nil log discards output; a nil m disables metrics.
func NewManager(cfg *types.GlobalConfig, log *logger.Logger, m *metrics.Metrics) (*Manager, error) {
	if cfg == nil {
		cfg = types.DefaultGlobalConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	libraryDir := cfg.LibraryDir
	if strings.HasPrefix(libraryDir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		libraryDir = filepath.Join(home, libraryDir[1:])
	}

	if err := os.MkdirAll(libraryDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	return &Manager{
		libraryDir: libraryDir,
		cfg:        *cfg,
		log:        log,
		metrics:    m,
	}, nil
}

// Dir returns the library directory.
func (m *Manager) Dir() string {
	return m.libraryDir
}

// Volume is an opened book with its search index and highlights.
type Volume struct {
	Book       *book.Book
	DB         *storage.SQLiteDB
	Index      *search.FTSEngine
	Indexer    *search.Indexer
	Highlights *storage.HighlightStore
	Migrator   *anchor.Migrator

	dataDir string
	search  types.SearchConfig
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Open opens the book at bookPath and its data directory, creating the
// directory and database on first use.
func (m *Manager) Open(bookPath string) (*Volume, error) {
	if _, err := os.Stat(bookPath); os.IsNotExist(err) {
		return nil, ErrBookNotFound
	}

	b, err := book.Open(bookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open book: %w", err)
	}
	if len(b.Chapters()) == 0 {
		b.Close()
		return nil, ErrNoChapters
	}

	dataDir := filepath.Join(m.libraryDir, b.ID())
	db, err := storage.NewSQLiteDB(dataDir)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	abs, err := filepath.Abs(bookPath)
	if err != nil {
		abs = bookPath
	}
	meta := b.Metadata()
	entry := &Entry{
		ID:       b.ID(),
		Title:    meta.Title,
		Author:   meta.Author,
		Path:     abs,
		OpenedAt: time.Now(),
	}
	if err := SaveEntry(dataDir, entry); err != nil {
		db.Close()
		b.Close()
		return nil, err
	}

	index := search.NewFTSEngine(db)
	indexer := search.NewIndexer(index, db, b.Loader(), m.cfg.Index.ChunkSize, search.DefaultChunkOverlap)
	indexer.SetLogger(m.log.SearchLogger(b.ID()))
	indexer.SetMetrics(m.metrics)

	store := storage.NewHighlightStore(db, b.ID())

	return &Volume{
		Book:       b,
		DB:         db,
		Index:      index,
		Indexer:    indexer,
		Highlights: store,
		Migrator:   anchor.NewMigrator(store, m.log.AnchorLogger(b.ID()), m.metrics),
		dataDir:    dataDir,
		search:     m.cfg.Search,
		log:        m.log,
		metrics:    m.metrics,
	}, nil
}

// List returns the books opened before, most recent first.
func (m *Manager) List() ([]*Entry, error) {
	entries, err := os.ReadDir(m.libraryDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Entry{}, nil
		}
		return nil, err
	}

	var books []*Entry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		entry, err := LoadEntry(filepath.Join(m.libraryDir, e.Name()))
		if err != nil {
			continue // not a book directory
		}
		books = append(books, entry)
	}
	sortEntries(books)
	return books, nil
}

// Delete removes the data directory of the book with id. The book file
// itself is left alone.
func (m *Manager) Delete(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return ErrBookNotFound
	}
	dataDir := filepath.Join(m.libraryDir, id)
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return ErrBookNotFound
	}
	if err := os.RemoveAll(dataDir); err != nil {
		return err
	}
	dblog := m.log.DbLogger("delete")
	dblog.Info().Str("book", id).Msg("book data removed")
	return nil
}

// ID returns the book id.
func (v *Volume) ID() string {
	return v.Book.ID()
}

// DataDir returns the book's data directory.
func (v *Volume) DataDir() string {
	return v.dataDir
}

// NewSession creates a search session over the book. With useIndex the
// session narrows queries through the full-text index; it scans every
// chapter when the index has not been built.
func (v *Volume) NewSession(useIndex bool, options ...search.SessionOption) *search.Session {
	opts := search.OptionsFromConfig(v.search)
	sched := search.NewScheduler(v.Book.Loader(), v.Book, search.NewResultSet(), opts,
		search.WithLogger(v.log.SearchLogger(v.ID())),
		search.WithMetrics(v.metrics),
	)
	if useIndex {
		options = append([]search.SessionOption{search.WithIndex(v.Index)}, options...)
	}
	return search.NewSession(sched, options...)
}

// SearchSession syncs the index and returns a session narrowed by it. When
// useIndex is false or the sync fails the session scans every chapter.
func (v *Volume) SearchSession(ctx context.Context, useIndex bool, options ...search.SessionOption) *search.Session {
	if useIndex {
		if _, err := v.Sync(ctx); err != nil {
			log := v.log.SearchLogger(v.ID())
			log.Warn().Err(err).Msg("index sync failed, searching without index")
			useIndex = false
		}
	}
	return v.NewSession(useIndex, options...)
}

// UseIndex reports whether sessions should use the index by default.
func (v *Volume) UseIndex() bool {
	return v.search.UseIndex
}

// Sync brings the full-text index up to date with the book.
func (v *Volume) Sync(ctx context.Context) (search.IndexStats, error) {
	start := time.Now()
	stats, err := v.Indexer.Sync(ctx, v.Book)
	v.log.LogDbOperation("index_sync", time.Since(start), stats.Chunks, err)
	return stats, err
}

// Rebuild drops and rebuilds the full-text index.
func (v *Volume) Rebuild(ctx context.Context) (search.IndexStats, error) {
	start := time.Now()
	stats, err := v.Indexer.Rebuild(ctx, v.Book)
	v.log.LogDbOperation("index_rebuild", time.Since(start), stats.Chunks, err)
	return stats, err
}

// ChapterText returns the plain text of the chapter at index.
func (v *Volume) ChapterText(ctx context.Context, index int) (string, error) {
	ch, ok := v.Book.Chapter(index)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrChapterRange, index)
	}
	return v.Book.Loader().LoadPlainText(ctx, ch.Href)
}

// Close releases the database and the book container.
func (v *Volume) Close() error {
	var errs []error
	if v.DB != nil {
		errs = append(errs, v.DB.Close())
	}
	if v.Book != nil {
		errs = append(errs, v.Book.Close())
	}
	return errors.Join(errs...)
}
