package book

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/azyu/folioseek/internal/storage"
)

// containerPath is the fixed location of the EPUB container document.
const containerPath = "META-INF/container.xml"

// ErrNoPackage is returned when an EPUB declares no package document.
var ErrNoPackage = errors.New("book: no package document")

type containerXML struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageXML struct {
	UniqueIdentifier string `xml:"unique-identifier,attr"`
	Metadata         struct {
		Titles      []string `xml:"title"`
		Creators    []string `xml:"creator"`
		Language    string   `xml:"language"`
		Identifiers []struct {
			ID    string `xml:"id,attr"`
			Value string `xml:",chardata"`
		} `xml:"identifier"`
	} `xml:"metadata"`
	Manifest []struct {
		ID         string `xml:"id,attr"`
		Href       string `xml:"href,attr"`
		MediaType  string `xml:"media-type,attr"`
		Properties string `xml:"properties,attr"`
	} `xml:"manifest>item"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

type navPoint struct {
	Label    string     `xml:"navLabel>text"`
	Content  navContent `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

type ncxXML struct {
	NavPoints []navPoint `xml:"navMap>navPoint"`
}

// epubPackage is the parsed content of an EPUB package document.
type epubPackage struct {
	Identifier string
	Title      string
	Author     string
	Language   string
	// Spine holds container paths of the reading-order documents.
	Spine []string
	// TOC maps container paths to their first table-of-contents label.
	TOC map[string]string
}

func readEPUB(fs *storage.FileSystem) (*epubPackage, error) {
	data, err := fs.ReadFile(containerPath)
	if err != nil {
		return nil, err
	}
	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", containerPath, err)
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return nil, ErrNoPackage
	}
	opfPath := storage.CleanPath(c.Rootfiles[0].FullPath)

	data, err = fs.ReadFile(opfPath)
	if err != nil {
		return nil, err
	}
	var opf packageXML
	if err := xml.Unmarshal(data, &opf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", opfPath, err)
	}

	pkg := &epubPackage{
		Language: strings.TrimSpace(opf.Metadata.Language),
		TOC:      make(map[string]string),
	}
	if len(opf.Metadata.Titles) > 0 {
		pkg.Title = strings.TrimSpace(opf.Metadata.Titles[0])
	}
	if len(opf.Metadata.Creators) > 0 {
		pkg.Author = strings.TrimSpace(opf.Metadata.Creators[0])
	}
	for _, id := range opf.Metadata.Identifiers {
		if pkg.Identifier == "" || id.ID == opf.UniqueIdentifier {
			pkg.Identifier = strings.TrimSpace(id.Value)
		}
	}

	hrefs := make(map[string]string, len(opf.Manifest))
	var ncxPath, navPath string
	for _, item := range opf.Manifest {
		p := resolve(opfPath, item.Href)
		hrefs[item.ID] = p
		if item.ID == opf.Spine.Toc || item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = p
		}
		if hasProperty(item.Properties, "nav") {
			navPath = p
		}
	}

	for _, ref := range opf.Spine.ItemRefs {
		p, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		pkg.Spine = append(pkg.Spine, p)
	}

	// EPUB 3 navigation documents take precedence over the legacy NCX.
	if navPath != "" {
		readNavTOC(fs, navPath, pkg.TOC)
	}
	if len(pkg.TOC) == 0 && ncxPath != "" {
		readNCXTOC(fs, ncxPath, pkg.TOC)
	}
	return pkg, nil
}

func readNCXTOC(fs *storage.FileSystem, ncxPath string, toc map[string]string) {
	data, err := fs.ReadFile(ncxPath)
	if err != nil {
		return
	}
	var ncx ncxXML
	if err := xml.Unmarshal(data, &ncx); err != nil {
		return
	}
	var walk func(points []navPoint)
	walk = func(points []navPoint) {
		for _, np := range points {
			addTOCEntry(toc, resolve(ncxPath, np.Content.Src), np.Label)
			walk(np.Children)
		}
	}
	walk(ncx.NavPoints)
}

func readNavTOC(fs *storage.FileSystem, navPath string, toc map[string]string) {
	data, err := fs.ReadFile(navPath)
	if err != nil {
		return
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return
	}

	var nav *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if nav != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav && attr(n, "epub:type") == "toc" {
			nav = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if nav == nil {
		return
	}

	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href := attr(n, "href"); href != "" {
				addTOCEntry(toc, resolve(navPath, href), nodeText(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(nav)
}

func addTOCEntry(toc map[string]string, target, label string) {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return
	}
	if _, ok := toc[target]; !ok {
		toc[target] = label
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		if name == key || a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func hasProperty(properties, want string) bool {
	for _, p := range strings.Fields(properties) {
		if p == want {
			return true
		}
	}
	return false
}

// resolve turns an href found in the document at base into a container path.
func resolve(base, href string) string {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	return storage.ResolveHref(base, href)
}
