// Package book opens ePub books and exposes their chapters in reading order.
package book

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/azyu/folioseek/internal/storage"
	"github.com/azyu/folioseek/pkg/types"
)

// chapterExts are the document types read from books without a package document.
var chapterExts = []string{".xhtml", ".html", ".htm", ".md", ".markdown", ".txt"}

// Metadata describes a book.
type Metadata struct {
	Identifier string
	Title      string
	Author     string
	Language   string
}

// Book is an opened ePub container or a directory of chapter documents.
type Book struct {
	id       string
	meta     Metadata
	fs       *storage.FileSystem
	loader   *storage.ChapterLoader
	chapters []types.Chapter
	toc      map[string]string

	mu     sync.Mutex
	titles map[int]string
}

// Open opens the book at p: a .epub file, an unpacked ePub directory, or a
// directory of XHTML, Markdown and text chapters.
func Open(p string) (*Book, error) {
	fs, err := storage.OpenFileSystem(p)
	if err != nil {
		return nil, err
	}

	b := &Book{
		fs:     fs,
		loader: storage.NewChapterLoader(fs),
		toc:    make(map[string]string),
		titles: make(map[int]string),
	}

	var spine []string
	if fs.Exists(containerPath) {
		pkg, err := readEPUB(fs)
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		b.meta = Metadata{
			Identifier: pkg.Identifier,
			Title:      pkg.Title,
			Author:     pkg.Author,
			Language:   pkg.Language,
		}
		b.toc = pkg.TOC
		spine = pkg.Spine
	} else {
		files, err := fs.ListFiles(chapterExts...)
		if err != nil {
			fs.Close()
			return nil, err
		}
		for _, f := range files {
			spine = append(spine, f.Path)
		}
		sort.Strings(spine)
	}

	if b.meta.Title == "" {
		b.meta.Title = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	}
	b.id = bookID(b.meta.Identifier, p)

	b.chapters = make([]types.Chapter, len(spine))
	for i, href := range spine {
		b.chapters[i] = types.Chapter{Index: i, Href: href}
	}
	return b, nil
}

// bookID derives a stable, filesystem-safe id from the package identifier,
// falling back to the absolute path.
func bookID(identifier, p string) string {
	key := identifier
	if key == "" {
		if abs, err := filepath.Abs(p); err == nil {
			key = abs
		} else {
			key = p
		}
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// ID returns the book's stable id.
func (b *Book) ID() string {
	return b.id
}

// Metadata returns the book metadata.
func (b *Book) Metadata() Metadata {
	return b.meta
}

// Loader returns the chapter text loader.
func (b *Book) Loader() *storage.ChapterLoader {
	return b.loader
}

// Chapters returns the spine in reading order.
func (b *Book) Chapters() []types.Chapter {
	out := make([]types.Chapter, len(b.chapters))
	copy(out, b.chapters)
	return out
}

// Chapter returns the chapter at index.
func (b *Book) Chapter(index int) (types.Chapter, bool) {
	if index < 0 || index >= len(b.chapters) {
		return types.Chapter{}, false
	}
	return b.chapters[index], true
}

// Title returns the display title of a chapter: its table-of-contents label,
// else the document's own title, else its href. The result is cached.
func (b *Book) Title(ctx context.Context, index int) string {
	ch, ok := b.Chapter(index)
	if !ok {
		return ""
	}

	b.mu.Lock()
	title, ok := b.titles[index]
	b.mu.Unlock()
	if ok {
		return title
	}

	title = b.toc[ch.Href]
	if title == "" {
		docTitle, err := b.loader.DocumentTitle(ctx, ch.Href)
		if err != nil && ctx.Err() != nil {
			return ch.Href
		}
		title = docTitle
	}
	if title == "" {
		title = ch.Href
	}

	b.mu.Lock()
	b.titles[index] = title
	b.mu.Unlock()
	return title
}

// Close releases the book container.
func (b *Book) Close() error {
	return b.fs.Close()
}
