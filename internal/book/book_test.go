package book

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const containerDoc = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const packageDoc = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="isbn">978-0-00-000000-0</dc:identifier>
    <dc:identifier id="uid">urn:uuid:5a1c7d52-3a0e-4c8f-9a5e-0d8b0f1e2a11</dc:identifier>
    <dc:title> The Fox Book </dc:title>
    <dc:creator>A. Writer</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch%202.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch3" href="text/ch3.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="missing"/>
    <itemref idref="ch2"/>
    <itemref idref="ch3" linear="no"/>
  </spine>
</package>`

const navDoc = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
  <nav epub:type="landmarks"><ol><li><a href="text/ch3.xhtml">Landmark</a></li></ol></nav>
  <nav epub:type="toc">
    <ol>
      <li><a href="text/ch1.xhtml">Opening</a></li>
      <li><a href="text/ch%202.xhtml#part">Second
        Part</a></li>
    </ol>
  </nav>
</body>
</html>`

const ncxDoc = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="p1">
      <navLabel><text>NCX Opening</text></navLabel>
      <content src="text/ch1.xhtml"/>
      <navPoint id="p1a">
        <navLabel><text>NCX Nested</text></navLabel>
        <content src="text/ch3.xhtml#end"/>
      </navPoint>
    </navPoint>
  </navMap>
</ncx>`

func chapterDoc(title, body string) string {
	head := ""
	if title != "" {
		head = "<head><title>" + title + "</title></head>"
	}
	return `<html xmlns="http://www.w3.org/1999/xhtml">` + head + "<body>" + body + "</body></html>"
}

func epubFiles() map[string]string {
	return map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": containerDoc,
		"OEBPS/content.opf":      packageDoc,
		"OEBPS/nav.xhtml":        navDoc,
		"OEBPS/toc.ncx":          ncxDoc,
		"OEBPS/text/ch1.xhtml":   chapterDoc("", "<h1>One</h1><p>The quick brown fox.</p>"),
		"OEBPS/text/ch 2.xhtml":  chapterDoc("Two", "<p>Jumps over the lazy dog.</p>"),
		"OEBPS/text/ch3.xhtml":   chapterDoc("Appendix", "<p>Notes.</p>"),
	}
}

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func writeEPUB(t *testing.T, files map[string]string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "fox.epub")
	f, err := os.Create(p)
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
	return p
}

func openBook(t *testing.T, p string) *Book {
	t.Helper()

	b, err := Open(p)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestOpen_EPUB(t *testing.T) {
	for name, path := range map[string]func(*testing.T) string{
		"unpacked": func(t *testing.T) string { return writeDir(t, epubFiles()) },
		"archive":  func(t *testing.T) string { return writeEPUB(t, epubFiles()) },
	} {
		t.Run(name, func(t *testing.T) {
			b := openBook(t, path(t))

			assert.Equal(t, Metadata{
				Identifier: "urn:uuid:5a1c7d52-3a0e-4c8f-9a5e-0d8b0f1e2a11",
				Title:      "The Fox Book",
				Author:     "A. Writer",
				Language:   "en",
			}, b.Metadata())

			chapters := b.Chapters()
			require.Len(t, chapters, 3)
			assert.Equal(t, "OEBPS/text/ch1.xhtml", chapters[0].Href)
			assert.Equal(t, "OEBPS/text/ch 2.xhtml", chapters[1].Href)
			assert.Equal(t, "OEBPS/text/ch3.xhtml", chapters[2].Href)
			for i, ch := range chapters {
				assert.Equal(t, i, ch.Index)
			}
		})
	}
}

func TestBook_Title(t *testing.T) {
	ctx := context.Background()
	b := openBook(t, writeDir(t, epubFiles()))

	assert.Equal(t, "Opening", b.Title(ctx, 0), "navigation label")
	assert.Equal(t, "Second Part", b.Title(ctx, 1), "fragment dropped and label collapsed")
	assert.Equal(t, "Appendix", b.Title(ctx, 2), "document title when not in contents")
	assert.Empty(t, b.Title(ctx, 3))
	assert.Empty(t, b.Title(ctx, -1))
}

func TestBook_TitleFromNCX(t *testing.T) {
	ctx := context.Background()
	files := epubFiles()
	delete(files, "OEBPS/nav.xhtml")

	b := openBook(t, writeDir(t, files))

	assert.Equal(t, "NCX Opening", b.Title(ctx, 0))
	assert.Equal(t, "Two", b.Title(ctx, 1))
	assert.Equal(t, "NCX Nested", b.Title(ctx, 2))
}

func TestBook_TitleFallsBackToHref(t *testing.T) {
	ctx := context.Background()
	files := epubFiles()
	delete(files, "OEBPS/nav.xhtml")
	delete(files, "OEBPS/toc.ncx")
	files["OEBPS/text/ch1.xhtml"] = chapterDoc("", "<p>untitled</p>")

	b := openBook(t, writeDir(t, files))

	assert.Equal(t, "OEBPS/text/ch1.xhtml", b.Title(ctx, 0))
}

func TestBook_ID(t *testing.T) {
	one := openBook(t, writeDir(t, epubFiles()))
	two := openBook(t, writeEPUB(t, epubFiles()))

	assert.Len(t, one.ID(), 16)
	assert.Equal(t, one.ID(), two.ID(), "same package identifier")

	files := epubFiles()
	files["OEBPS/content.opf"] = `<package unique-identifier="x"><metadata></metadata><manifest></manifest><spine></spine></package>`
	a := openBook(t, writeDir(t, files))
	c := openBook(t, writeDir(t, files))
	assert.NotEqual(t, a.ID(), c.ID(), "path identifies books without an identifier")
}

func TestBook_Loader(t *testing.T) {
	b := openBook(t, writeDir(t, epubFiles()))

	ch, ok := b.Chapter(0)
	require.True(t, ok)

	text, err := b.Loader().LoadPlainText(context.Background(), ch.Href)
	require.NoError(t, err)
	assert.Contains(t, text, "The quick brown fox.")

	_, ok = b.Chapter(9)
	assert.False(t, ok)
}

func TestOpen_Directory(t *testing.T) {
	ctx := context.Background()
	dir := writeDir(t, map[string]string{
		"b.md":        "# Beginnings\n\nSome text.",
		"a.txt":       "plain text",
		"cover.png":   "not a chapter",
		"sub/c.xhtml": chapterDoc("Third", "<p>c</p>"),
	})

	b := openBook(t, dir)

	assert.Equal(t, filepath.Base(dir), b.Metadata().Title)
	chapters := b.Chapters()
	require.Len(t, chapters, 3)
	assert.Equal(t, "a.txt", chapters[0].Href)
	assert.Equal(t, "b.md", chapters[1].Href)
	assert.Equal(t, "sub/c.xhtml", chapters[2].Href)

	assert.Equal(t, "a.txt", b.Title(ctx, 0))
	assert.Equal(t, "Beginnings", b.Title(ctx, 1))
	assert.Equal(t, "Third", b.Title(ctx, 2))
}

func TestOpen_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.epub"))
		assert.Error(t, err)
	})

	t.Run("container without package", func(t *testing.T) {
		dir := writeDir(t, map[string]string{
			"META-INF/container.xml": `<container><rootfiles></rootfiles></container>`,
		})
		_, err := Open(dir)
		assert.ErrorIs(t, err, ErrNoPackage)
	})

	t.Run("unreadable package document", func(t *testing.T) {
		files := epubFiles()
		files["OEBPS/content.opf"] = "<package><metadata>"
		_, err := Open(writeDir(t, files))
		assert.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "OEBPS/text/ch 2.xhtml", resolve("OEBPS/content.opf", "text/ch%202.xhtml"))
	assert.Equal(t, "OEBPS/img/a.png", resolve("OEBPS/text/ch1.xhtml", "../img/a.png"))
	assert.Equal(t, "root.xhtml", resolve("OEBPS/content.opf", "/root.xhtml"))
}
