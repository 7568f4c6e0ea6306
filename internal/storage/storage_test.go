package storage

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// TestAtomicWriteFile
// =============================================================================

func TestAtomicWriteFile(t *testing.T) {
	t.Run("writes file and verifies content", func(t *testing.T) {
		targetPath := filepath.Join(t.TempDir(), "test.txt")
		expectedContent := []byte("Hello, World!")

		err := AtomicWriteFile(targetPath, expectedContent)
		require.NoError(t, err)

		actualContent, err := os.ReadFile(targetPath)
		require.NoError(t, err)
		assert.Equal(t, expectedContent, actualContent)

		info, err := os.Stat(targetPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		targetPath := filepath.Join(t.TempDir(), "overwrite.txt")

		require.NoError(t, AtomicWriteFile(targetPath, []byte("original content")))
		require.NoError(t, AtomicWriteFile(targetPath, []byte("new content")))

		actualContent, err := os.ReadFile(targetPath)
		require.NoError(t, err)
		assert.Equal(t, "new content", string(actualContent))
	})

	t.Run("creates parent directories if they do not exist", func(t *testing.T) {
		targetPath := filepath.Join(t.TempDir(), "nested", "dirs", "test.txt")

		require.NoError(t, AtomicWriteFile(targetPath, []byte("content")))

		actualContent, err := os.ReadFile(targetPath)
		require.NoError(t, err)
		assert.Equal(t, []byte("content"), actualContent)
	})
}

// =============================================================================
// TestAtomicWriter
// =============================================================================

func TestAtomicWriter(t *testing.T) {
	t.Run("Write and Commit flow", func(t *testing.T) {
		targetPath := filepath.Join(t.TempDir(), "atomic.txt")

		writer, err := NewAtomicWriter(targetPath)
		require.NoError(t, err)

		_, err = writer.Write([]byte("Hello, "))
		require.NoError(t, err)
		_, err = writer.Write([]byte("World!"))
		require.NoError(t, err)

		// The target does not exist until Commit
		_, err = os.Stat(targetPath)
		assert.True(t, os.IsNotExist(err))

		require.NoError(t, writer.Commit())

		content, err := os.ReadFile(targetPath)
		require.NoError(t, err)
		assert.Equal(t, "Hello, World!", string(content))

		assert.Error(t, writer.Commit(), "a writer commits once")
		assert.NoError(t, writer.Abort(), "abort after commit is a no-op")
	})

	t.Run("Abort cleans up temp file", func(t *testing.T) {
		tempDir := t.TempDir()
		targetPath := filepath.Join(tempDir, "aborted.txt")

		writer, err := NewAtomicWriter(targetPath)
		require.NoError(t, err)

		_, err = writer.Write([]byte("should be aborted"))
		require.NoError(t, err)
		require.NoError(t, writer.Abort())

		_, err = os.Stat(targetPath)
		assert.True(t, os.IsNotExist(err), "target file should not exist after abort")

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		assert.Empty(t, entries, "temp file should be cleaned up after abort")
	})
}

func TestWriteYAML(t *testing.T) {
	type entry struct {
		Title string   `yaml:"title"`
		Tags  []string `yaml:"tags"`
	}
	targetPath := filepath.Join(t.TempDir(), "entry.yaml")

	require.NoError(t, WriteYAML(targetPath, entry{Title: "Moby Dick", Tags: []string{"sea", "whale"}}))

	data, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "title: Moby Dick")

	var got entry
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, []string{"sea", "whale"}, got.Tags)
}

// =============================================================================
// TestFileSystem
// =============================================================================

func TestCleanPath(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{href: "OEBPS/ch1.xhtml", want: "OEBPS/ch1.xhtml"},
		{href: "OEBPS/ch1.xhtml#sec2", want: "OEBPS/ch1.xhtml"},
		{href: "/OEBPS/./text/../ch1.xhtml", want: "OEBPS/ch1.xhtml"},
		{href: "../../escape.xhtml", want: "escape.xhtml"},
		{href: "", want: "."},
		{href: "#only", want: "."},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPath(tt.href))
		})
	}
}

func TestResolveHref(t *testing.T) {
	assert.Equal(t, "OEBPS/text/ch1.xhtml", ResolveHref("OEBPS/content.opf", "text/ch1.xhtml"))
	assert.Equal(t, "OEBPS/ch1.xhtml", ResolveHref("OEBPS/text/nav.xhtml", "../ch1.xhtml#top"))
	assert.Equal(t, "root.xhtml", ResolveHref("OEBPS/content.opf", "/root.xhtml"))
}

func TestFileSystem(t *testing.T) {
	files := fstest.MapFS{
		"mimetype":                {Data: []byte("application/epub+zip")},
		"OEBPS/content.opf":       {Data: []byte("<package/>")},
		"OEBPS/text/ch1.xhtml":    {Data: []byte("<p>One</p>")},
		"OEBPS/text/ch2.XHTML":    {Data: []byte("<p>Two</p>")},
		"OEBPS/styles/style.css":  {Data: []byte("p {}")},
		"OEBPS/text/notes.md":     {Data: []byte("# Notes")},
		"OEBPS/images/cover.jpeg": {Data: []byte{0xFF, 0xD8}},
	}

	t.Run("ReadFile cleans hrefs", func(t *testing.T) {
		fs := NewFileSystem(files)

		data, err := fs.ReadFile("/OEBPS/text/ch1.xhtml#start")
		require.NoError(t, err)
		assert.Equal(t, "<p>One</p>", string(data))

		_, err = fs.ReadFile("OEBPS/missing.xhtml")
		assert.Error(t, err)
	})

	t.Run("Exists and Stat", func(t *testing.T) {
		fs := NewFileSystem(files)

		assert.True(t, fs.Exists("OEBPS/content.opf"))
		assert.False(t, fs.Exists("OEBPS/other.opf"))

		info, err := fs.Stat("OEBPS/text/ch1.xhtml")
		require.NoError(t, err)
		assert.Equal(t, "OEBPS/text/ch1.xhtml", info.Path)
		assert.Equal(t, int64(len("<p>One</p>")), info.Size)
	})

	t.Run("ListFiles filters by extension case-insensitively", func(t *testing.T) {
		fs := NewFileSystem(files)

		list, err := fs.ListFiles(".xhtml", ".md")
		require.NoError(t, err)

		paths := make([]string, len(list))
		for i, f := range list {
			paths[i] = f.Path
		}
		assert.Equal(t, []string{
			"OEBPS/text/ch1.xhtml",
			"OEBPS/text/ch2.XHTML",
			"OEBPS/text/notes.md",
		}, paths)
	})

	t.Run("wrapped filesystems are not archives", func(t *testing.T) {
		fs := NewFileSystem(files)

		assert.False(t, fs.IsArchive())
		assert.Empty(t, fs.BasePath())
		assert.NoError(t, fs.Close())
	})
}

func TestOpenFileSystem(t *testing.T) {
	t.Run("opens a directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, AtomicWriteFile(filepath.Join(dir, "OEBPS", "ch1.xhtml"), []byte("<p>Dir</p>")))

		fs, err := OpenFileSystem(dir)
		require.NoError(t, err)
		defer fs.Close()

		assert.False(t, fs.IsArchive())
		assert.Equal(t, dir, fs.BasePath())
		assert.True(t, fs.Exists("OEBPS/ch1.xhtml"))
	})

	t.Run("opens a zip archive", func(t *testing.T) {
		bookPath := filepath.Join(t.TempDir(), "book.epub")
		writeZip(t, bookPath, map[string]string{
			"mimetype":        "application/epub+zip",
			"OEBPS/ch1.xhtml": "<p>Zipped</p>",
		})

		fs, err := OpenFileSystem(bookPath)
		require.NoError(t, err)
		defer fs.Close()

		assert.True(t, fs.IsArchive())
		data, err := fs.ReadFile("OEBPS/ch1.xhtml")
		require.NoError(t, err)
		assert.Equal(t, "<p>Zipped</p>", string(data))
	})

	t.Run("rejects missing paths and non-archives", func(t *testing.T) {
		dir := t.TempDir()

		_, err := OpenFileSystem(filepath.Join(dir, "missing.epub"))
		assert.Error(t, err)

		plain := filepath.Join(dir, "plain.epub")
		require.NoError(t, os.WriteFile(plain, []byte("not a zip"), 0644))
		_, err = OpenFileSystem(plain)
		assert.Error(t, err)
	})
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestMarkdownTitle(t *testing.T) {
	md := goldmark.New()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{name: "simple H1", content: "# Hello World", expected: "Hello World"},
		{name: "H1 with content after", content: "# My Title\n\nSome content here.", expected: "My Title"},
		{name: "inline markup", content: "# The *Fox* Returns", expected: "The Fox Returns"},
		{name: "no H1", content: "## H2 Title\n\nContent", expected: ""},
		{name: "H1 after other content", content: "Some text\n\n# Title", expected: "Title"},
		{name: "empty content", content: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MarkdownTitle(md, []byte(tt.content)))
		})
	}
}

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantTitle string
		wantBody  string
	}{
		{
			name:      "title in frontmatter",
			content:   "---\ntitle: Chapter One\nauthor: x\n---\n\n# One\n\nText.",
			wantTitle: "Chapter One",
			wantBody:  "# One\n\nText.",
		},
		{
			name:     "no frontmatter",
			content:  "# Just Content",
			wantBody: "# Just Content",
		},
		{
			name:     "no closing delimiter",
			content:  "---\ntitle: Test\nbody",
			wantBody: "---\ntitle: Test\nbody",
		},
		{
			name:     "invalid yaml is dropped",
			content:  "---\ntitle: [oops\n---\nBody",
			wantBody: "Body",
		},
		{
			name:      "closing delimiter at end",
			content:   "---\ntitle: Only\n---",
			wantTitle: "Only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body := SplitFrontmatter(tt.content)
			assert.Equal(t, tt.wantTitle, fm.Title)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

// =============================================================================
// TestPlainText
// =============================================================================

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "blocks become spaces",
			html: "<p>Hello</p><p>World</p>",
			want: "Hello World",
		},
		{
			name: "inline elements join their text",
			html: "<p>The <i>qu</i>ick fox</p>",
			want: "The quick fox",
		},
		{
			name: "head and scripts are skipped",
			html: "<html><head><title>T</title><style>p{}</style></head>" +
				"<body><p>Text</p><script>var x = 1;</script></body></html>",
			want: "Text",
		},
		{
			name: "whitespace and entities are collapsed",
			html: "<p>one&nbsp;&nbsp;two\n\t three &amp; four</p>",
			want: "one two three & four",
		},
		{
			name: "self closing breaks separate words",
			html: "<p>line<br/>break</p>",
			want: "line break",
		},
		{
			name: "text is composed to NFC",
			html: "<p>cafe\u0301</p>",
			want: "caf\u00e9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLToText([]byte(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTMLToText_LegacyCharset(t *testing.T) {
	doc := []byte(`<html><head><meta charset="iso-8859-1"></head><body><p>caf` + "\xe9" + `</p></body></html>`)

	got, err := HTMLToText(doc)
	require.NoError(t, err)
	assert.Equal(t, "café", got)
}

func TestHTMLTitle(t *testing.T) {
	title, err := HTMLTitle([]byte("<html><head><title>\n  Chapter  One </title></head><body>x</body></html>"))
	require.NoError(t, err)
	assert.Equal(t, "Chapter One", title)

	title, err = HTMLTitle([]byte("<p>No title</p>"))
	require.NoError(t, err)
	assert.Empty(t, title)
}

func TestDecodeText(t *testing.T) {
	t.Run("plain UTF-8", func(t *testing.T) {
		assert.Equal(t, "héllo", DecodeText([]byte("héllo")))
	})

	t.Run("UTF-8 BOM is dropped", func(t *testing.T) {
		assert.Equal(t, "héllo", DecodeText(append([]byte{0xEF, 0xBB, 0xBF}, "héllo"...)))
	})

	t.Run("UTF-16 with BOM", func(t *testing.T) {
		data := []byte{0xFF, 0xFE}
		for _, u := range utf16.Encode([]rune("héllo")) {
			data = append(data, byte(u), byte(u>>8))
		}
		assert.Equal(t, "héllo", DecodeText(data))
	})
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeText("  a \n\n b \tc  "))
	assert.Equal(t, "\u00e9", NormalizeText("e\u0301"))
	assert.Empty(t, NormalizeText(" \n\t "))
}

func TestMarkdownToText(t *testing.T) {
	fs := NewFileSystem(fstest.MapFS{})
	src := "# Heading\n\nSome *emphasis* text.\n\n```\ncode line\n```\n"

	got := MarkdownToText(fs.Markdown(), []byte(src))

	assert.Equal(t, "Heading Some emphasis text. code line", got)
}

func TestChapterLoader(t *testing.T) {
	ctx := context.Background()
	files := fstest.MapFS{
		"OEBPS/ch1.xhtml": {Data: []byte("<html><head><title>First</title></head><body><p>The quick brown fox</p></body></html>")},
		"OEBPS/notes.md":  {Data: []byte("---\nauthor: x\n---\n# Notes\n\nA note.")},
		"OEBPS/plain.txt": {Data: []byte("plain\n\ntext")},
		"OEBPS/titled.md": {Data: []byte("---\ntitle: From  Header\n---\n# Heading\n")},
	}

	t.Run("loads and caches chapter text", func(t *testing.T) {
		loader := NewChapterLoader(NewFileSystem(files))

		text, err := loader.LoadPlainText(ctx, "OEBPS/ch1.xhtml#frag")
		require.NoError(t, err)
		assert.Equal(t, "The quick brown fox", text)

		files["OEBPS/ch1.xhtml"] = &fstest.MapFile{Data: []byte("<p>changed</p>")}
		defer func() {
			files["OEBPS/ch1.xhtml"] = &fstest.MapFile{Data: []byte("<html><head><title>First</title></head><body><p>The quick brown fox</p></body></html>")}
		}()

		again, err := loader.LoadPlainText(ctx, "OEBPS/ch1.xhtml")
		require.NoError(t, err)
		assert.Equal(t, text, again, "loads within a session return identical text")
	})

	t.Run("markdown and plain text", func(t *testing.T) {
		loader := NewChapterLoader(NewFileSystem(files))

		text, err := loader.LoadPlainText(ctx, "OEBPS/notes.md")
		require.NoError(t, err)
		assert.Equal(t, "Notes A note.", text)

		text, err = loader.LoadPlainText(ctx, "OEBPS/plain.txt")
		require.NoError(t, err)
		assert.Equal(t, "plain text", text)
	})

	t.Run("missing chapters are empty", func(t *testing.T) {
		loader := NewChapterLoader(NewFileSystem(files))

		text, err := loader.LoadPlainText(ctx, "OEBPS/missing.xhtml")
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("document titles", func(t *testing.T) {
		loader := NewChapterLoader(NewFileSystem(files))

		title, err := loader.DocumentTitle(ctx, "OEBPS/ch1.xhtml")
		require.NoError(t, err)
		assert.Equal(t, "First", title)

		title, err = loader.DocumentTitle(ctx, "OEBPS/notes.md")
		require.NoError(t, err)
		assert.Equal(t, "Notes", title)

		title, err = loader.DocumentTitle(ctx, "OEBPS/titled.md")
		require.NoError(t, err)
		assert.Equal(t, "From Header", title, "frontmatter title wins")

		title, err = loader.DocumentTitle(ctx, "OEBPS/plain.txt")
		require.NoError(t, err)
		assert.Empty(t, title)
	})

	t.Run("cancelled context", func(t *testing.T) {
		loader := NewChapterLoader(NewFileSystem(files))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := loader.LoadPlainText(cctx, "OEBPS/ch1.xhtml")
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, strings.Contains(err.Error(), "convert"))
	})
}
