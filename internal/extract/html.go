package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitebot/internal/document"
)

// Subtrees that never contribute content.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Iframe:   true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
}

var (
	adMarker   = regexp.MustCompile(`(?i)(^|[\s_-])(ad|ads|advert|advertisement|adsbygoogle|sponsored|sponsor)($|[\s_-])`)
	whitespace = regexp.MustCompile(`\s+`)
	wordRegexp = regexp.MustCompile(`\b\w+\b`)
)

// Meta tags checked for a publication date, in priority order.
var dateMetaKeys = []string{
	"article:published_time",
	"og:published_time",
	"datepublished",
	"date",
	"pubdate",
	"publishdate",
	"dc.date",
	"dc.date.issued",
	"article:modified_time",
}

// ExtractHTML turns an HTML page into a document. The content root is <main>
// when present, else <body>. Boilerplate subtrees are dropped and whitespace
// runs are collapsed to single spaces.
func ExtractHTML(source string, raw []byte) (*document.Document, error) {
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html %s failed: %w", source, err)
	}

	contentRoot := findFirst(root, atom.Main)
	if contentRoot == nil {
		contentRoot = findFirst(root, atom.Body)
	}
	if contentRoot == nil {
		contentRoot = root
	}

	var b strings.Builder
	collectText(contentRoot, &b)
	content := normalizeSpace(b.String())

	return &document.Document{
		PageContent: content,
		Metadata: document.Metadata{
			Source:        source,
			Title:         extractTitle(root, contentRoot),
			Date:          extractDate(root),
			ContentLength: CountWords(content),
		},
	}, nil
}

// CountWords counts word-boundary matches.
func CountWords(s string) int {
	return len(wordRegexp.FindAllStringIndex(s, -1))
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] || isAd(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func isAd(n *html.Node) bool {
	for _, a := range n.Attr {
		if (a.Key == "class" || a.Key == "id") && adMarker.MatchString(a.Val) {
			return true
		}
	}
	return false
}

// extractTitle prefers the first <h1> of the content root, then the first of
// the page, then <title>.
func extractTitle(root, contentRoot *html.Node) string {
	for _, scope := range []*html.Node{contentRoot, root} {
		if h1 := findFirst(scope, atom.H1); h1 != nil {
			if t := normalizeSpace(textOf(h1)); t != "" {
				return t
			}
		}
	}
	if title := findFirst(root, atom.Title); title != nil {
		return normalizeSpace(textOf(title))
	}
	return ""
}

func extractDate(root *html.Node) string {
	found := map[string]string{}
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Meta {
			return true
		}
		key := strings.ToLower(firstNonEmpty(attr(n, "property"), attr(n, "name"), attr(n, "itemprop")))
		if content := strings.TrimSpace(attr(n, "content")); key != "" && content != "" {
			if _, ok := found[key]; !ok {
				found[key] = content
			}
		}
		return true
	})
	for _, key := range dateMetaKeys {
		if v, ok := found[key]; ok {
			return v
		}
	}

	var date string
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Time {
			if v := strings.TrimSpace(attr(n, "datetime")); v != "" {
				date = v
				return false
			}
		}
		return true
	})
	return date
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return b.String()
}

func findFirst(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits nodes depth-first until visit returns false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
