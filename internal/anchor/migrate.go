package anchor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/azyu/folioseek/internal/metrics"
	"github.com/azyu/folioseek/pkg/types"
)

var (
	// ErrNotLocated is returned when a legacy highlight's text cannot be
	// found in the live chapter. The legacy record is left untouched.
	ErrNotLocated = errors.New("anchor: highlight text not located")

	// ErrAlreadyMigrated is returned for records that carry an anchor or
	// were soft-deleted by an earlier migration.
	ErrAlreadyMigrated = errors.New("anchor: highlight already migrated")
)

// HighlightStore persists highlights of one book.
type HighlightStore interface {
	Save(ctx context.Context, h *types.Highlight) error
	// SoftDelete marks a record removed without dropping it.
	SoftDelete(ctx context.Context, id string) error
	// FindByID returns nil and no error when the id is unknown.
	FindByID(ctx context.Context, id string) (*types.Highlight, error)
	// FindByChapter returns the records of a chapter that are not deleted.
	FindByChapter(ctx context.Context, chapter int) ([]*types.Highlight, error)
}

// ClaimID returns preferred when no record holds it, and a fresh random id
// otherwise, so a new highlight never lands on an existing or retired row.
func ClaimID(ctx context.Context, store HighlightStore, preferred string) (string, error) {
	existing, err := store.FindByID(ctx, preferred)
	if err != nil {
		return "", fmt.Errorf("failed to check highlight id %s: %w", preferred, err)
	}
	if existing == nil {
		return preferred, nil
	}
	return DefaultIDGenerator(), nil
}

// Migrator rebuilds offset anchors for legacy highlights.
type Migrator struct {
	store   HighlightStore
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewMigrator creates a migrator writing to store.
func NewMigrator(store HighlightStore, log zerolog.Logger, m *metrics.Metrics) *Migrator {
	return &Migrator{
		store:   store,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Migrate converts one legacy highlight. On success the new anchored record
// is saved and the legacy record soft-deleted. Any failure leaves the legacy
// record as it was.
func (m *Migrator) Migrate(ctx context.Context, h *types.Highlight, loc Locator) (*types.Highlight, error) {
	if !h.IsLegacy() || h.Deleted {
		return nil, ErrAlreadyMigrated
	}
	current, err := m.store.FindByID(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load highlight %s: %w", h.ID, err)
	}
	if current == nil || current.Deleted || !current.IsLegacy() {
		return nil, ErrAlreadyMigrated
	}

	if strings.TrimSpace(h.Content) == "" {
		return nil, fmt.Errorf("%w: empty content", ErrNotLocated)
	}
	scope, ok := loc.Locate(h.ContentPre+h.Content+h.ContentPost, nil)
	if !ok {
		return nil, fmt.Errorf("%w: surrounding text", ErrNotLocated)
	}
	inner, ok := loc.Locate(h.Content, contentScope(loc, scope, h.ContentPre))
	if !ok {
		return nil, fmt.Errorf("%w: content", ErrNotLocated)
	}

	id, err := ClaimID(ctx, m.store, NewAnchorID(h.BookID, h.ChapterIndex, inner.Start, inner.End))
	if err != nil {
		return nil, err
	}
	migrated := &types.Highlight{
		ID:           id,
		BookID:       h.BookID,
		ChapterIndex: h.ChapterIndex,
		Content:      h.Content,
		Rangy:        Encode(inner.Start, inner.End, id, h.Style.Class()),
		Style:        h.Style,
		Note:         h.Note,
		CreatedAt:    m.now(),
	}
	if err := m.store.Save(ctx, migrated); err != nil {
		return nil, fmt.Errorf("failed to save migrated highlight: %w", err)
	}
	if err := m.store.SoftDelete(ctx, h.ID); err != nil {
		return nil, fmt.Errorf("failed to retire legacy highlight %s: %w", h.ID, err)
	}
	return migrated, nil
}

// contentScope narrows the located context to the part after pre, so the
// content found is the highlighted occurrence rather than one inside pre.
func contentScope(loc Locator, scope Range, pre string) *Range {
	before, ok := loc.Locate(pre, &scope)
	if !ok {
		return &scope
	}
	return &Range{Start: before.End, End: scope.End}
}

// Failure records a highlight that could not be migrated.
type Failure struct {
	ID  string
	Err error
}

// ChapterAnchors is the outcome of migrating a chapter's highlights.
type ChapterAnchors struct {
	// Anchors holds every renderable anchor of the chapter, normalized.
	Anchors []string
	// Migrated lists the records created on this attempt.
	Migrated []*types.Highlight
	// Failed lists legacy records left for a later attempt.
	Failed []Failure
	// Skipped lists records whose anchor could not be decoded.
	Skipped []string
}

// Blob joins the anchors for the renderer.
func (c ChapterAnchors) Blob() string {
	return Join(c.Anchors...)
}

// MigrateChapter collects the anchors of a chapter about to be displayed,
// migrating legacy highlights on the way. Failures are per highlight.
func (m *Migrator) MigrateChapter(ctx context.Context, chapter int, loc Locator) (ChapterAnchors, error) {
	var out ChapterAnchors

	records, err := m.store.FindByChapter(ctx, chapter)
	if err != nil {
		return out, fmt.Errorf("failed to load highlights for chapter %d: %w", chapter, err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		if !rec.IsLegacy() {
			if _, err := Decode(rec.Rangy); err != nil {
				m.log.Warn().Str("highlight", rec.ID).Err(err).Msg("skipping undecodable anchor")
				out.Skipped = append(out.Skipped, rec.ID)
				continue
			}
			out.Anchors = append(out.Anchors, Normalize(rec.Rangy))
			continue
		}

		migrated, err := m.Migrate(ctx, rec, loc)
		switch {
		case err == nil:
			m.metrics.Migration(metrics.MigrationSucceeded)
			m.log.Info().Str("legacy", rec.ID).Str("highlight", migrated.ID).Msg("migrated legacy highlight")
			out.Migrated = append(out.Migrated, migrated)
			out.Anchors = append(out.Anchors, migrated.Rangy)
		case errors.Is(err, ErrAlreadyMigrated):
			m.metrics.Migration(metrics.MigrationSkipped)
		default:
			m.metrics.Migration(metrics.MigrationFailed)
			m.log.Debug().Str("legacy", rec.ID).Err(err).Msg("legacy highlight not migrated")
			out.Failed = append(out.Failed, Failure{ID: rec.ID, Err: err})
		}
	}
	return out, nil
}
