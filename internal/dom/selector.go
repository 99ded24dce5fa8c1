package dom

import (
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// Storefront selectors are a small fixed set queried on every scan, so
// compiled selectors are cached by source text.
var (
	selectorCacheMu sync.Mutex
	selectorCache   = map[string]cascadia.Selector{}
)

func compileSelector(s string) (cascadia.Selector, error) {
	selectorCacheMu.Lock()
	defer selectorCacheMu.Unlock()
	if sel, ok := selectorCache[s]; ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(s)
	if err != nil {
		return nil, eris.Wrapf(err, "dom: compile selector %q", s)
	}
	selectorCache[s] = sel
	return sel, nil
}

func parentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, f := range strings.Fields(v) {
		if f == class {
			return true
		}
	}
	return false
}
