package storage

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

// FileInfo contains file metadata.
type FileInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// FileSystem provides read access to a book container: a zipped .epub file
// or an unpacked directory. Paths are slash-separated and relative to the
// container root.
type FileSystem struct {
	basePath string
	fsys     iofs.FS
	closer   io.Closer
	md       goldmark.Markdown
}

// OpenFileSystem opens the container at basePath.
func OpenFileSystem(basePath string) (*FileSystem, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open book: %w", err)
	}

	if info.IsDir() {
		return &FileSystem{
			basePath: basePath,
			fsys:     os.DirFS(basePath),
			md:       goldmark.New(),
		}, nil
	}

	zr, err := zip.OpenReader(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open book archive: %w", err)
	}
	return &FileSystem{
		basePath: basePath,
		fsys:     zr,
		closer:   zr,
		md:       goldmark.New(),
	}, nil
}

// NewFileSystem wraps an existing fs.FS.
func NewFileSystem(fsys iofs.FS) *FileSystem {
	return &FileSystem{
		fsys: fsys,
		md:   goldmark.New(),
	}
}

// CleanPath turns an href into a container path. The fragment is dropped
// and the result is cleaned.
func CleanPath(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimPrefix(path.Clean("/"+href), "/")
	if href == "" {
		return "."
	}
	return href
}

// ReadFile reads a file from the container.
func (fs *FileSystem) ReadFile(name string) ([]byte, error) {
	data, err := iofs.ReadFile(fs.fsys, CleanPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// Exists checks if a file exists in the container.
func (fs *FileSystem) Exists(name string) bool {
	_, err := fs.Stat(name)
	return err == nil
}

// Stat returns file metadata.
func (fs *FileSystem) Stat(name string) (*FileInfo, error) {
	clean := CleanPath(name)
	info, err := iofs.Stat(fs.fsys, clean)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Path:    clean,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, nil
}

// ListFiles lists the files whose extension is one of exts, in lexical order.
func (fs *FileSystem) ListFiles(exts ...string) ([]FileInfo, error) {
	var files []FileInfo
	err := iofs.WalkDir(fs.fsys, ".", func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(path.Ext(p))
		for _, want := range exts {
			if ext != want {
				continue
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, FileInfo{
				Path:    p,
				ModTime: info.ModTime(),
				Size:    info.Size(),
			})
			break
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

// Markdown returns the markdown parser used by the filesystem.
func (fs *FileSystem) Markdown() goldmark.Markdown {
	return fs.md
}

// BasePath returns the path the container was opened from.
func (fs *FileSystem) BasePath() string {
	return fs.basePath
}

// IsArchive reports whether the container is a zip archive.
func (fs *FileSystem) IsArchive() bool {
	return fs.closer != nil
}

// Close releases the container.
func (fs *FileSystem) Close() error {
	if fs.closer == nil {
		return nil
	}
	return fs.closer.Close()
}

// ResolveHref resolves href relative to the directory of base, both container paths.
func ResolveHref(base, href string) string {
	if strings.HasPrefix(href, "/") {
		return CleanPath(href)
	}
	return CleanPath(path.Join(path.Dir(base), href))
}
