package library

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/azyu/folioseek/internal/anchor"
	"github.com/azyu/folioseek/pkg/types"
)

// snapshotContext is the number of characters stored on each side of a new
// highlight, matching what legacy records carried.
const snapshotContext = 40

// AddHighlight anchors a new highlight over [start, end) of a chapter's text.
func (v *Volume) AddHighlight(ctx context.Context, chapter, start, end int, style types.HighlightStyle, note string) (*types.Highlight, error) {
	text, err := v.ChapterText(ctx, chapter)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	if start < 0 || end > len(runes) || start >= end {
		return nil, fmt.Errorf("%w: [%d, %d) in chapter of %d characters", ErrInvalidRange, start, end, len(runes))
	}

	id, err := anchor.ClaimID(ctx, v.Highlights, anchor.NewAnchorID(v.ID(), chapter, start, end))
	if err != nil {
		return nil, err
	}
	h := &types.Highlight{
		ID:           id,
		BookID:       v.ID(),
		ChapterIndex: chapter,
		Content:      string(runes[start:end]),
		ContentPre:   string(runes[max(0, start-snapshotContext):start]),
		ContentPost:  string(runes[end:min(len(runes), end+snapshotContext)]),
		Rangy:        anchor.Encode(start, end, id, style.Class()),
		Style:        style,
		Note:         note,
	}
	if err := v.Highlights.Save(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// ImportLegacy reads a YAML list of highlights and stores them. Records
// without an anchor are kept as legacy records for migration. Ids already
// present in the book, live or retired, are skipped.
func (v *Volume) ImportLegacy(ctx context.Context, r io.Reader) (int, error) {
	var records []*types.Highlight
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to parse highlights: %w", err)
	}

	chapters := len(v.Book.Chapters())
	dblog := v.log.DbLogger("import")
	imported := 0
	for i, h := range records {
		if h == nil {
			continue
		}
		if h.ChapterIndex < 0 || h.ChapterIndex >= chapters {
			return imported, fmt.Errorf("highlight %d: %w: %d", i, ErrChapterRange, h.ChapterIndex)
		}
		if h.Rangy != "" && !anchor.IsValid(h.Rangy) {
			return imported, fmt.Errorf("highlight %d: invalid anchor %q", i, h.Rangy)
		}
		if h.ID == "" {
			h.ID = anchor.DefaultIDGenerator()
		} else {
			existing, err := v.Highlights.FindByID(ctx, h.ID)
			if err != nil {
				return imported, err
			}
			if existing != nil {
				dblog.Debug().Str("highlight", h.ID).Msg("skipping known highlight")
				continue
			}
		}
		h.BookID = v.ID()
		h.Deleted = false
		if err := v.Highlights.Save(ctx, h); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// MigrateChapter migrates the legacy highlights of one chapter against its
// current text and returns the chapter's anchors.
func (v *Volume) MigrateChapter(ctx context.Context, chapter int) (anchor.ChapterAnchors, error) {
	text, err := v.ChapterText(ctx, chapter)
	if err != nil {
		return anchor.ChapterAnchors{}, err
	}
	return v.Migrator.MigrateChapter(ctx, chapter, anchor.NewTextLocator(text))
}

// MigrationReport summarizes a migration over the whole book.
type MigrationReport struct {
	Chapters int
	Migrated int
	Failed   []anchor.Failure
}

// MigrateAll migrates every chapter that still holds legacy highlights.
func (v *Volume) MigrateAll(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport

	chapters, err := v.Highlights.LegacyChapters(ctx)
	if err != nil {
		return report, err
	}

	for _, chapter := range chapters {
		if _, ok := v.Book.Chapter(chapter); !ok {
			continue
		}
		out, err := v.MigrateChapter(ctx, chapter)
		if err != nil {
			return report, fmt.Errorf("chapter %d: %w", chapter, err)
		}
		report.Chapters++
		report.Migrated += len(out.Migrated)
		report.Failed = append(report.Failed, out.Failed...)
	}
	return report, nil
}
