package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	unicodeenc "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ChapterLoader loads chapter documents from a book container as plain
// text. Converted text is cached, so repeated loads of an href return
// identical text and offsets into it stay valid.
type ChapterLoader struct {
	fs *FileSystem

	mu    sync.Mutex
	cache map[string]string
}

// NewChapterLoader creates a loader reading from fs.
func NewChapterLoader(fs *FileSystem) *ChapterLoader {
	return &ChapterLoader{
		fs:    fs,
		cache: make(map[string]string),
	}
}

// LoadPlainText returns the plain text of the document at href. A document
// that does not exist yields empty text and no error.
func (l *ChapterLoader) LoadPlainText(ctx context.Context, href string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := CleanPath(href)

	l.mu.Lock()
	cached, ok := l.cache[name]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := iofs.ReadFile(l.fs.fsys, name)
	if errors.Is(err, iofs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read chapter %s: %w", href, err)
	}

	plain, err := l.convert(name, data)
	if err != nil {
		return "", fmt.Errorf("failed to convert chapter %s: %w", href, err)
	}

	l.mu.Lock()
	l.cache[name] = plain
	l.mu.Unlock()
	return plain, nil
}

// DocumentTitle returns the title declared by the document at href: the
// <title> element of an XHTML document or the first H1 of a Markdown one.
func (l *ChapterLoader) DocumentTitle(ctx context.Context, href string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := CleanPath(href)

	data, err := iofs.ReadFile(l.fs.fsys, name)
	if errors.Is(err, iofs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read chapter %s: %w", href, err)
	}

	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		fm, body := SplitFrontmatter(DecodeText(data))
		if fm.Title != "" {
			return NormalizeText(fm.Title), nil
		}
		return MarkdownTitle(l.fs.md, []byte(body)), nil
	case ".txt":
		return "", nil
	default:
		return HTMLTitle(data)
	}
}

func (l *ChapterLoader) convert(name string, data []byte) (string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		_, body := SplitFrontmatter(DecodeText(data))
		return MarkdownToText(l.fs.md, []byte(body)), nil
	case ".txt":
		return NormalizeText(DecodeText(data)), nil
	default:
		return HTMLToText(data)
	}
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

func hasUnicodeBOM(data []byte) bool {
	return bytes.HasPrefix(data, bomUTF8) ||
		bytes.HasPrefix(data, bomUTF16LE) ||
		bytes.HasPrefix(data, bomUTF16BE)
}

// DecodeText converts document bytes to a string. A byte order mark selects
// UTF-8 or UTF-16; otherwise the bytes are read as UTF-8.
func DecodeText(data []byte) string {
	out, _, err := transform.Bytes(unicodeenc.BOMOverride(unicodeenc.UTF8.NewDecoder()), data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// decodeHTML converts an HTML document to UTF-8, honouring a declared
// legacy charset when the bytes are not already Unicode.
func decodeHTML(data []byte) []byte {
	if hasUnicodeBOM(data) || utf8.Valid(data) {
		return []byte(DecodeText(data))
	}
	enc, _, _ := charset.DetermineEncoding(data, "")
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}

// blockTags separate words; every other tag joins its text to its neighbours.
var blockTags = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Caption: true, atom.Dd: true, atom.Div: true, atom.Dl: true,
	atom.Dt: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true,
	atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true,
	atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true,
	atom.Table: true, atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

// skipTags hold no reading text.
var skipTags = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Template: true,
	atom.Noscript: true,
}

// HTMLToText extracts the reading text of an (X)HTML document. Block
// elements become a single space, inline elements are joined to the
// surrounding text, and whitespace is collapsed.
func HTMLToText(data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(decodeHTML(data)))

	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return NormalizeText(b.String()), nil

		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)
			if skipTags[tag] {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if blockTags[tag] && skip == 0 {
				b.WriteByte(' ')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)
			if skipTags[tag] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if blockTags[tag] && skip == 0 {
				b.WriteByte(' ')
			}
		}
	}
}

// HTMLTitle returns the text of the first <title> element.
func HTMLTitle(data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(decodeHTML(data)))

	var b strings.Builder
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return NormalizeText(b.String()), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Title {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && atom.Lookup(name) == atom.Title {
				return NormalizeText(b.String()), nil
			}
		case html.TextToken:
			if inTitle {
				b.Write(z.Text())
			}
		}
	}
}

// NormalizeText collapses whitespace runs, including no-break spaces, into
// single spaces, trims the ends and composes the text to NFC.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}
