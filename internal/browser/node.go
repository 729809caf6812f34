package browser

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/solver-ai/market-crawler/internal/dom"
)

// node adapts a playwright locator to the dom.Node interface.
type node struct {
	loc playwright.Locator
}

func (n *node) Find(selector string) (dom.Node, error) {
	child := n.loc.Locator(selector).First()
	count, err := child.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve selector %q: %w", selector, err)
	}
	if count == 0 {
		return nil, dom.ErrNoSuchNode
	}
	return &node{loc: child}, nil
}

func (n *node) FindAll(selector string) ([]dom.Node, error) {
	matches := n.loc.Locator(selector)
	count, err := matches.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve selector %q: %w", selector, err)
	}
	nodes := make([]dom.Node, 0, count)
	for i := 0; i < count; i++ {
		nodes = append(nodes, &node{loc: matches.Nth(i)})
	}
	return nodes, nil
}

func (n *node) Text() (string, error) {
	text, err := n.loc.InnerText()
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return text, nil
}

func (n *node) OwnText() (string, error) {
	const script = `el => Array.from(el.childNodes)
		.filter(c => c.nodeType === Node.TEXT_NODE)
		.map(c => c.textContent)
		.join('')`
	result, err := n.loc.Evaluate(script, nil)
	if err != nil {
		return "", fmt.Errorf("failed to read own text: %w", err)
	}
	text, _ := result.(string)
	return text, nil
}

func (n *node) Attribute(name string) (string, error) {
	val, err := n.loc.GetAttribute(name)
	if err != nil {
		// Absent attributes read as empty, matching the static backend.
		return "", nil
	}
	return val, nil
}

func (n *node) TagName() (string, error) {
	result, err := n.loc.Evaluate("el => el.tagName", nil)
	if err != nil {
		return "", fmt.Errorf("failed to read tag name: %w", err)
	}
	tag, _ := result.(string)
	return strings.ToLower(tag), nil
}

func (n *node) Parent() (dom.Node, error) {
	parent := n.loc.Locator("xpath=..")
	count, err := parent.Count()
	if err != nil || count == 0 {
		return nil, dom.ErrNoSuchNode
	}
	return &node{loc: parent}, nil
}
