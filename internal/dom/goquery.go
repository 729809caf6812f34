package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// StaticNode is a Node over a parsed, immutable HTML document.
type StaticNode struct {
	sel *goquery.Selection
}

// ParseHTML parses an HTML document and returns its root node.
func ParseHTML(raw string) (*StaticNode, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &StaticNode{sel: doc.Selection}, nil
}

func (n *StaticNode) Find(selector string) (Node, error) {
	found := n.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, ErrNoSuchNode
	}
	return &StaticNode{sel: found}, nil
}

func (n *StaticNode) FindAll(selector string) ([]Node, error) {
	var nodes []Node
	n.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &StaticNode{sel: s})
	})
	return nodes, nil
}

func (n *StaticNode) Text() (string, error) {
	return n.sel.Text(), nil
}

func (n *StaticNode) OwnText() (string, error) {
	var b strings.Builder
	for _, node := range n.sel.Nodes {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String(), nil
}

func (n *StaticNode) Attribute(name string) (string, error) {
	val, _ := n.sel.Attr(name)
	return val, nil
}

func (n *StaticNode) TagName() (string, error) {
	if len(n.sel.Nodes) == 0 {
		return "", ErrNoSuchNode
	}
	return strings.ToLower(n.sel.Nodes[0].Data), nil
}

func (n *StaticNode) Parent() (Node, error) {
	parent := n.sel.Parent()
	if parent.Length() == 0 {
		return nil, ErrNoSuchNode
	}
	return &StaticNode{sel: parent}, nil
}
