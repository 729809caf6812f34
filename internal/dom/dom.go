// Package dom abstracts a queryable document tree. The live implementation
// is backed by a browser page (internal/browser); the static implementation
// below is backed by goquery and is what tests and HTML-snapshot tooling use.
package dom

import "errors"

// ErrNoSuchNode is returned by Find when the selector matches nothing.
var ErrNoSuchNode = errors.New("no such node")

// Node is a single element inside a document tree.
type Node interface {
	// Find returns the first descendant matching the CSS selector, or
	// ErrNoSuchNode.
	Find(selector string) (Node, error)

	// FindAll returns all descendants matching the CSS selector, in document
	// order. An empty result is valid and not an error.
	FindAll(selector string) ([]Node, error)

	// Text returns the visible text of the subtree rooted at this node.
	Text() (string, error)

	// OwnText returns only the text nodes that are direct children of this
	// node, excluding descendant element text.
	OwnText() (string, error)

	// Attribute returns the value of the named attribute, or "" when absent.
	Attribute(name string) (string, error)

	// TagName returns the lower-cased tag name.
	TagName() (string, error)

	// Parent returns the parent element, or ErrNoSuchNode at the root.
	Parent() (Node, error)
}
