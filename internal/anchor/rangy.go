// Package anchor encodes text ranges inside a chapter and migrates legacy
// highlights to them.
//
// An anchor is serialized as
//
//	type:textContent|start$end$id$style
//
// where start and end are character offsets into the chapter text. Several
// anchors of one chapter may be joined into a single blob by repeating the
// "|start$end$id$style" component after the type tag.
package anchor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TypeTag is the literal first component of every serialized anchor.
const TypeTag = "type:textContent"

const (
	rangeSep = "|"
	fieldSep = "$"
)

var (
	// ErrMissingTypeTag is returned when a string lacks the type tag prefix.
	ErrMissingTypeTag = errors.New("anchor: missing type tag")

	// ErrMalformed is returned when the range fields cannot be parsed.
	ErrMalformed = errors.New("anchor: malformed range")

	// ErrNotFound is returned when no range in a blob carries the requested id.
	ErrNotFound = errors.New("anchor: range not found")
)

// Range is a decoded anchor.
type Range struct {
	Start int
	End   int
	ID    string
	Style string
}

// Degenerate reports whether the range has zero width.
func (r Range) Degenerate() bool {
	return r.Start == r.End
}

// String encodes the range.
func (r Range) String() string {
	return Encode(r.Start, r.End, r.ID, r.Style)
}

// IDGenerator produces opaque anchor identifiers.
type IDGenerator func() string

// DefaultIDGenerator returns random UUIDs.
var DefaultIDGenerator IDGenerator = uuid.NewString

// Encode joins the fields into a serialized anchor.
func Encode(start, end int, id, style string) string {
	return TypeTag + rangeSep + strings.Join([]string{
		strconv.Itoa(start),
		strconv.Itoa(end),
		id,
		style,
	}, fieldSep)
}

// Decode parses a serialized anchor. When the string holds several ranges
// the last one is decoded.
func Decode(s string) (Range, error) {
	if !strings.HasPrefix(s, TypeTag+rangeSep) {
		return Range{}, ErrMissingTypeTag
	}
	fields := strings.Split(lastComponent(s), fieldSep)
	if len(fields) < 2 {
		return Range{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	start, err := strconv.Atoi(fields[0])
	if err != nil {
		return Range{}, fmt.Errorf("%w: start offset: %v", ErrMalformed, err)
	}
	end, err := strconv.Atoi(fields[1])
	if err != nil {
		return Range{}, fmt.Errorf("%w: end offset: %v", ErrMalformed, err)
	}

	r := Range{Start: start, End: end}
	if len(fields) > 2 {
		r.ID = fields[2]
	}
	if len(fields) > 3 {
		r.Style = fields[3]
	}
	return r, nil
}

// IsValid reports whether s carries at least two offset fields that describe
// a non-empty range. Ranges over non-text content such as images serialize
// with start == end and are invalid.
func IsValid(s string) bool {
	fields := strings.Split(lastComponent(s), fieldSep)
	if len(fields) < 2 {
		return false
	}
	start, err := strconv.Atoi(fields[0])
	if err != nil {
		return false
	}
	end, err := strconv.Atoi(fields[1])
	if err != nil {
		return false
	}
	return start != end
}

// Normalize repairs a degenerate anchor by widening it to one character.
// The repaired range is not a reconstruction of the original selection.
// Anchors that are valid, or too malformed to repair, are returned unchanged.
func Normalize(s string) string {
	if IsValid(s) {
		return s
	}
	fields := strings.Split(lastComponent(s), fieldSep)
	if len(fields) < 2 {
		return s
	}
	end, err := strconv.Atoi(fields[1])
	if err != nil {
		return s
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return s
	}
	fields[1] = strconv.Itoa(end + 1)
	return TypeTag + rangeSep + strings.Join(fields, fieldSep)
}

// ExtractByID returns the single anchor whose id field equals id from a blob
// of joined anchors.
func ExtractByID(blob, id string) (string, error) {
	parts := strings.Split(blob, rangeSep)
	if len(parts) > 0 && parts[0] == TypeTag {
		parts = parts[1:]
	}
	for _, part := range parts {
		fields := strings.Split(part, fieldSep)
		if len(fields) > 2 && fields[2] == id {
			return TypeTag + rangeSep + part, nil
		}
	}
	return "", fmt.Errorf("%w: id %q", ErrNotFound, id)
}

// Join combines anchors into one blob. Strings without the type tag are
// skipped.
func Join(anchors ...string) string {
	var b strings.Builder
	b.WriteString(TypeTag)
	for _, a := range anchors {
		if !strings.HasPrefix(a, TypeTag+rangeSep) {
			continue
		}
		for _, part := range strings.Split(a, rangeSep)[1:] {
			if part == "" {
				continue
			}
			b.WriteString(rangeSep)
			b.WriteString(part)
		}
	}
	return b.String()
}

// NewAnchorID builds the deterministic id of a highlight created from a
// located range: bookID_chapter_start_end.
func NewAnchorID(bookID string, chapter, start, end int) string {
	return strings.Join([]string{
		bookID,
		strconv.Itoa(chapter),
		strconv.Itoa(start),
		strconv.Itoa(end),
	}, "_")
}

func lastComponent(s string) string {
	if i := strings.LastIndex(s, rangeSep); i >= 0 {
		return s[i+1:]
	}
	return s
}
