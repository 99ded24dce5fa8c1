package dom

import (
	"bytes"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLDocument is a Document backed by a parsed HTML tree. All access goes
// through one mutex, so callers on different goroutines see a consistent
// tree. Structural changes (children added, removed or replaced) emit a
// coalesced notification on Changes; attribute writes do not.
type HTMLDocument struct {
	mu      sync.Mutex
	root    *html.Node
	url     *url.URL
	changes chan struct{}
}

// ParseHTML parses r as the page at rawURL.
func ParseHTML(rawURL string, r io.Reader) (*HTMLDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "dom: parse url %s", rawURL)
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "dom: parse html")
	}
	return &HTMLDocument{root: root, url: u, changes: make(chan struct{}, 1)}, nil
}

// MustParseHTML is ParseHTML for fixtures known to be valid.
func MustParseHTML(rawURL, src string) *HTMLDocument {
	d, err := ParseHTML(rawURL, strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return d
}

func (d *HTMLDocument) URL() string      { return d.url.String() }
func (d *HTMLDocument) Hostname() string { return d.url.Hostname() }
func (d *HTMLDocument) Path() string     { return d.url.Path }

// Changes implements Document.
func (d *HTMLDocument) Changes() <-chan struct{} { return d.changes }

func (d *HTMLDocument) notify() {
	select {
	case d.changes <- struct{}{}:
	default:
	}
}

// Query implements Document.
func (d *HTMLDocument) Query(selector string) Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.first(d.root, selector)
}

// QueryAll implements Document.
func (d *HTMLDocument) QueryAll(selector string) []Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.all(d.root, selector)
}

// CreateElement returns a detached element.
func (d *HTMLDocument) CreateElement(tag string, classes ...string) Element {
	tag = strings.ToLower(tag)
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	if len(classes) > 0 {
		n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: strings.Join(classes, " ")})
	}
	return &htmlElement{doc: d, n: n}
}

// AppendHTML parses fragment and appends it to every element matching
// selector, the way a storefront injects content after load. Returns the
// number of elements updated.
func (d *HTMLDocument) AppendHTML(selector, fragment string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel, err := compileSelector(selector)
	if err != nil {
		return 0, err
	}
	targets := sel.MatchAll(d.root)
	for _, t := range targets {
		nodes, err := html.ParseFragment(strings.NewReader(fragment), t)
		if err != nil {
			return 0, eris.Wrap(err, "dom: parse fragment")
		}
		for _, n := range nodes {
			t.AppendChild(n)
		}
	}
	if len(targets) > 0 {
		d.notify()
	}
	return len(targets), nil
}

// Render serialises the current tree.
func (d *HTMLDocument) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", eris.Wrap(err, "dom: render")
	}
	return buf.String(), nil
}

func (d *HTMLDocument) first(scope *html.Node, selector string) Element {
	sel, err := compileSelector(selector)
	if err != nil {
		zap.L().Debug("dom: bad selector", zap.String("selector", selector), zap.Error(err))
		return nil
	}
	var found *html.Node
	walkUntil(scope, func(n *html.Node) bool {
		if n != scope && sel.Match(n) {
			found = n
			return true
		}
		return false
	})
	if found == nil {
		return nil
	}
	return &htmlElement{doc: d, n: found}
}

func (d *HTMLDocument) all(scope *html.Node, selector string) []Element {
	sel, err := compileSelector(selector)
	if err != nil {
		zap.L().Debug("dom: bad selector", zap.String("selector", selector), zap.Error(err))
		return nil
	}
	var out []Element
	for _, n := range sel.MatchAll(scope) {
		if n != scope {
			out = append(out, &htmlElement{doc: d, n: n})
		}
	}
	return out
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func walkUntil(n *html.Node, fn func(*html.Node) bool) bool {
	if fn(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if walkUntil(c, fn) {
			return true
		}
	}
	return false
}

type htmlElement struct {
	doc *HTMLDocument
	n   *html.Node
}

func (e *htmlElement) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var b strings.Builder
	walk(e.n, func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	})
	return b.String()
}

func (e *htmlElement) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	if e.attached() {
		e.doc.notify()
	}
}

func (e *htmlElement) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.n, name)
}

func (e *htmlElement) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

func (e *htmlElement) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == name {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
}

func (e *htmlElement) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	attrs := e.n.Attr[:0]
	for _, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		attrs = append(attrs, a)
	}
	e.n.Attr = attrs
}

func (e *htmlElement) HasClass(class string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return hasClass(e.n, class)
}

// Hidden approximates "has no layout box": the element or an ancestor carries
// the hidden attribute or an inline display:none.
func (e *htmlElement) Hidden() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for n := e.n; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if _, ok := attr(n, "hidden"); ok {
			return true
		}
		if style, ok := attr(n, "style"); ok {
			compact := strings.ToLower(strings.ReplaceAll(style, " ", ""))
			if strings.Contains(compact, "display:none") {
				return true
			}
		}
	}
	return false
}

func (e *htmlElement) Detached() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return !e.attached()
}

func (e *htmlElement) attached() bool {
	n := e.n
	for n.Parent != nil {
		n = n.Parent
	}
	return n == e.doc.root
}

func (e *htmlElement) Closest(selector string) Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	sel, err := compileSelector(selector)
	if err != nil {
		return nil
	}
	for n := e.n; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && sel.Match(n) {
			return &htmlElement{doc: e.doc, n: n}
		}
	}
	return nil
}

func (e *htmlElement) Parent() Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	p := parentElement(e.n)
	if p == nil {
		return nil
	}
	return &htmlElement{doc: e.doc, n: p}
}

func (e *htmlElement) Query(selector string) Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.first(e.n, selector)
}

func (e *htmlElement) QueryAll(selector string) []Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.all(e.n, selector)
}

func (e *htmlElement) AppendChild(child Element) {
	c, ok := child.(*htmlElement)
	if !ok || c.doc != e.doc {
		zap.L().Warn("dom: cannot append foreign element")
		return
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if c.n.Parent != nil {
		c.n.Parent.RemoveChild(c.n)
	}
	e.n.AppendChild(c.n)
	if e.attached() {
		e.doc.notify()
	}
}

func (e *htmlElement) Remove() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.n.Parent == nil {
		return
	}
	wasAttached := e.attached()
	e.n.Parent.RemoveChild(e.n)
	if wasAttached {
		e.doc.notify()
	}
}
