// Package markup wraps an HTML tree behind the small selector-based surface
// the Overcast scraper needs: query by CSS selector, read text and attributes.
package markup

import (
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Document is a parsed HTML page.
type Document struct {
	root *html.Node
}

// Element is a single node matched by a selector.
type Element struct {
	node *html.Node
}

// Parse reads an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Query returns every element matching selector in document order.
// An invalid selector matches nothing.
func (d *Document) Query(selector string) []*Element {
	if d == nil {
		return nil
	}
	return query(d.root, selector)
}

// First returns the first element matching selector, or nil.
func (d *Document) First(selector string) *Element {
	return first(d.Query(selector))
}

// Query returns every descendant of e matching selector.
func (e *Element) Query(selector string) []*Element {
	if e == nil {
		return nil
	}
	return query(e.node, selector)
}

// First returns the first descendant of e matching selector, or nil.
func (e *Element) First(selector string) *Element {
	return first(e.Query(selector))
}

// Text returns the concatenated text content of e and its descendants.
func (e *Element) Text() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	collectText(e.node, &b)
	return b.String()
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, attr := range e.node.Attr {
		if attr.Namespace == "" && strings.EqualFold(attr.Key, name) {
			return attr.Val, true
		}
	}
	return "", false
}

// AttrOr returns the named attribute or fallback when it is absent.
func (e *Element) AttrOr(name, fallback string) string {
	if value, ok := e.Attr(name); ok {
		return value
	}
	return fallback
}

// HasClass reports whether the class attribute contains name.
func (e *Element) HasClass(name string) bool {
	classes, ok := e.Attr("class")
	if !ok {
		return false
	}
	for _, class := range strings.Fields(classes) {
		if class == name {
			return true
		}
	}
	return false
}

var (
	selectorMu    sync.RWMutex
	selectorCache = make(map[string]cascadia.Sel)
)

func compile(selector string) (cascadia.Sel, bool) {
	selectorMu.RLock()
	sel, ok := selectorCache[selector]
	selectorMu.RUnlock()
	if ok {
		return sel, sel != nil
	}

	compiled, err := cascadia.Parse(selector)
	if err != nil {
		compiled = nil
	}

	selectorMu.Lock()
	selectorCache[selector] = compiled
	selectorMu.Unlock()
	return compiled, compiled != nil
}

func query(root *html.Node, selector string) []*Element {
	sel, ok := compile(selector)
	if !ok || root == nil {
		return nil
	}
	nodes := cascadia.QueryAll(root, sel)
	elements := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &Element{node: n})
	}
	return elements
}

func first(elements []*Element) *Element {
	if len(elements) == 0 {
		return nil
	}
	return elements[0]
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
