package page

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"
)

// Document is a parsed HTML page.
type Document struct {
	root *html.Node
}

// Parse parses body as HTML. The parser is forgiving; real-world markup with
// unclosed tags still yields a usable tree.
func Parse(body []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("page: parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// Text extracts the visible text of the page with script and style contents
// stripped. Text nodes are trimmed and joined with newlines, one line per
// node, so line-level diffs stay stable across whitespace-only markup edits.
func (d *Document) Text() string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return strings.Join(lines, "\n")
}

// Matches reports whether any element in the document matches the CSS
// selector. An unparseable selector is an error, distinct from "no match".
func (d *Document) Matches(selector string) (bool, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return false, fmt.Errorf("page: selector %q: %w", selector, err)
	}
	return cascadia.Query(d.root, sel) != nil, nil
}

// MetaContent returns the content attribute of the first <meta> element whose
// attrKey attribute equals attrVal, or "" when absent.
func (d *Document) MetaContent(attrKey, attrVal string) string {
	var found string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var match bool
			var content string
			for _, a := range n.Attr {
				if a.Key == attrKey && strings.EqualFold(a.Val, attrVal) {
					match = true
				}
				if a.Key == "content" {
					content = a.Val
				}
			}
			if match && content != "" {
				found = content
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(d.root)
	return found
}

// LastModified reads a modified-time signal from page metadata:
// <meta property="article:modified_time"> first, then
// <meta name="last-modified">. The second return is false when no parseable
// signal exists.
func (d *Document) LastModified() (time.Time, bool) {
	raw := d.MetaContent("property", "article:modified_time")
	if raw == "" {
		raw = d.MetaContent("name", "last-modified")
	}
	if raw == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
