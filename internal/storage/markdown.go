package storage

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// Frontmatter is the YAML header of a Markdown chapter.
type Frontmatter struct {
	Title string `yaml:"title"`
}

// SplitFrontmatter separates a leading YAML block, fenced by "---" lines,
// from the Markdown body. A missing closing fence means there is no block.
// A block that is not valid YAML is dropped from the body all the same.
func SplitFrontmatter(content string) (Frontmatter, string) {
	var fm Frontmatter

	first, rest, ok := strings.Cut(content, "\n")
	if !ok || strings.TrimSpace(first) != frontmatterDelim {
		return fm, content
	}

	offset := 0
	for offset <= len(rest) {
		line, _, more := strings.Cut(rest[offset:], "\n")
		if strings.TrimSpace(line) == frontmatterDelim {
			if err := yaml.Unmarshal([]byte(rest[:offset]), &fm); err != nil {
				fm = Frontmatter{}
			}
			body := ""
			if more {
				body = rest[offset+len(line)+1:]
			}
			return fm, strings.TrimSpace(body)
		}
		if !more {
			break
		}
		offset += len(line) + 1
	}
	return Frontmatter{}, content
}

// MarkdownTitle returns the text of the first level-1 heading of src.
func MarkdownTitle(md goldmark.Markdown, src []byte) string {
	doc := md.Parser().Parse(text.NewReader(src))

	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering && h.Level == 1 {
			title = NormalizeText(markdownNodeText(h, src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// MarkdownToText extracts the reading text of a Markdown document.
func MarkdownToText(md goldmark.Markdown, src []byte) string {
	doc := md.Parser().Parse(text.NewReader(src))
	return NormalizeText(markdownNodeText(doc, src))
}

func markdownNodeText(root ast.Node, src []byte) string {
	var b strings.Builder
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte(' ')
				}
			}
			return ast.WalkContinue, nil
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
			return ast.WalkContinue, nil
		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				b.WriteByte(' ')
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		if !entering && n.Type() == ast.TypeBlock {
			b.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
