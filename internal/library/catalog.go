package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/azyu/folioseek/internal/storage"
	"gopkg.in/yaml.v3"
)

// entryFileName is the catalog record kept in each book's data directory.
const entryFileName = "book.yaml"

var (
	ErrEntryNotFound = errors.New("catalog entry not found")
)

// Entry is the catalog record of an opened book.
type Entry struct {
	ID       string    `yaml:"id"`
	Title    string    `yaml:"title"`
	Author   string    `yaml:"author,omitempty"`
	Path     string    `yaml:"path"`
	OpenedAt time.Time `yaml:"opened_at"`
}

// LoadEntry loads the catalog entry from a book data directory.
func LoadEntry(dataDir string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, entryFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to read catalog entry: %w", err)
	}

	var entry Entry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse catalog entry: %w", err)
	}

	return &entry, nil
}

// SaveEntry writes the catalog entry into a book data directory.
func SaveEntry(dataDir string, entry *Entry) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := storage.WriteYAML(filepath.Join(dataDir, entryFileName), entry); err != nil {
		return fmt.Errorf("failed to write catalog entry: %w", err)
	}

	return nil
}

func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OpenedAt.After(entries[j].OpenedAt)
	})
}
