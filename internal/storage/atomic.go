package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AtomicWriter writes to a temporary file next to the target and moves it
// into place on Commit, so readers never observe a partial file.
type AtomicWriter struct {
	target string
	perm   os.FileMode
	tmp    *os.File
	done   bool
}

// NewAtomicWriter starts an atomic write of target with mode 0644. Missing
// parent directories are created.
func NewAtomicWriter(target string) (*AtomicWriter, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &AtomicWriter{target: target, perm: 0644, tmp: tmp}, nil
}

// Write implements io.Writer.
func (w *AtomicWriter) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

// Commit flushes the data and renames the temp file over the target.
// The temp file is removed on any failure.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return fmt.Errorf("atomic write of %s already finished", w.target)
	}
	w.done = true
	name := w.tmp.Name()

	err := w.tmp.Sync()
	if err == nil {
		err = w.tmp.Chmod(w.perm)
	}
	if cerr := w.tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(name, w.target)
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace %s: %w", w.target, err)
	}
	return nil
}

// Abort discards the write. It is a no-op after Commit.
func (w *AtomicWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	return os.Remove(w.tmp.Name())
}

// AtomicWriteFile replaces path with data.
func AtomicWriteFile(path string, data []byte) error {
	w, err := NewAtomicWriter(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}

// WriteYAML encodes v as YAML and replaces path with it.
func WriteYAML(path string, v any) error {
	w, err := NewAtomicWriter(path)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		w.Abort()
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := enc.Close(); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}
