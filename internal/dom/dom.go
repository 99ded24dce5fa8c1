// Package dom defines the host document the engine reads prices from and
// writes badges into, plus an HTML-backed implementation.
package dom

// Element is a node in the host document.
type Element interface {
	// Text returns the concatenated text content of the element.
	Text() string
	SetText(text string)

	Attr(name string) (string, bool)
	HasAttr(name string) bool
	SetAttr(name, value string)
	RemoveAttr(name string)
	HasClass(class string) bool

	// Hidden reports whether the element or an ancestor is not rendered.
	Hidden() bool
	// Detached reports whether the element is no longer in the document.
	Detached() bool

	// Closest returns the element itself or its nearest ancestor matching
	// selector, or nil.
	Closest(selector string) Element
	// Parent returns the parent element, or nil at the root.
	Parent() Element
	Query(selector string) Element
	QueryAll(selector string) []Element

	AppendChild(child Element)
	Remove()
}

// Document is the page the engine runs against.
type Document interface {
	URL() string
	Hostname() string
	Path() string

	Query(selector string) Element
	QueryAll(selector string) []Element
	CreateElement(tag string, classes ...string) Element

	// Changes delivers one notification per batch of structural mutations.
	Changes() <-chan struct{}
}
