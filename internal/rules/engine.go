package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/solver-ai/market-crawler/internal/dom"
)

var hasChildPattern = regexp.MustCompile(`^(.+):has\(([a-z][a-z0-9]*)\)$`)

// Engine evaluates extraction rules against document subtrees. FreeWords are
// marker tokens (e.g. "무료") that map to the literal zero before a numeric
// cast, so "free shipping" style values normalize cleanly.
type Engine struct {
	FreeWords []string
}

// Evaluate resolves exactly one node via the rule's selector and returns the
// typed value it describes. When the selector matches nothing the rule's
// policy applies: Required rules fail with ElementNotFoundError, others
// return the rule's default.
func (e *Engine) Evaluate(root dom.Node, r Rule) (any, error) {
	node, err := findOne(root, r.Selector)
	if err != nil {
		if errors.Is(err, dom.ErrNoSuchNode) {
			if r.Required {
				return nil, &ElementNotFoundError{Selector: r.Selector}
			}
			return r.Default, nil
		}
		return nil, err
	}

	if r.Mode == ModeElement {
		return node, nil
	}

	raw, err := readRaw(node, r)
	if err != nil {
		return nil, err
	}

	text := e.transform(raw, r)
	return e.cast(text, r)
}

// Text evaluates a rule expected to yield a string.
func (e *Engine) Text(root dom.Node, r Rule) (string, error) {
	r.Mode, r.Cast = ModeText, CastString
	v, err := e.Evaluate(root, r)
	if err != nil || v == nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("rule %q: expected string default, got %T", r.Selector, v)
	}
	return s, nil
}

// Int evaluates a rule expected to yield an int.
func (e *Engine) Int(root dom.Node, r Rule) (int, error) {
	r.Mode, r.Cast = ModeText, CastInt
	v, err := e.Evaluate(root, r)
	if err != nil || v == nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("rule %q: expected numeric default, got %T", r.Selector, v)
}

// Float evaluates a rule expected to yield a float64.
func (e *Engine) Float(root dom.Node, r Rule) (float64, error) {
	r.Mode, r.Cast = ModeText, CastFloat
	v, err := e.Evaluate(root, r)
	if err != nil || v == nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("rule %q: expected numeric default, got %T", r.Selector, v)
}

// Date evaluates a rule expected to yield a timestamp. The zero time is
// returned when the element is absent and the rule is not required.
func (e *Engine) Date(root dom.Node, r Rule) (time.Time, error) {
	r.Mode, r.Cast = ModeText, CastDate
	v, err := e.Evaluate(root, r)
	if err != nil || v == nil {
		return time.Time{}, err
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("rule %q: expected time default, got %T", r.Selector, v)
	}
	return t, nil
}

// URL evaluates a rule in url mode: href first, then src, then text.
func (e *Engine) URL(root dom.Node, r Rule) (string, error) {
	r.Mode, r.Cast = ModeURL, CastString
	v, err := e.Evaluate(root, r)
	if err != nil || v == nil {
		return "", err
	}
	return v.(string), nil
}

// Attr reads a named attribute from the first node matching selector.
func (e *Engine) Attr(root dom.Node, selector, name string) (string, error) {
	v, err := e.Evaluate(root, Rule{Selector: selector, Mode: ModeAttribute, Attribute: name})
	if err != nil || v == nil {
		return "", err
	}
	return v.(string), nil
}

// Element returns the first node matching selector without extraction, or
// nil when absent.
func (e *Engine) Element(root dom.Node, selector string) (dom.Node, error) {
	v, err := e.Evaluate(root, Rule{Selector: selector, Mode: ModeElement})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(dom.Node), nil
}

// EvaluateMany returns all nodes matching selector, in document order. It
// never fails; an empty page yields an empty slice.
func EvaluateMany(root dom.Node, selector string) []dom.Node {
	if m := hasChildPattern.FindStringSubmatch(selector); m != nil {
		children, err := root.FindAll(m[1] + " > " + m[2])
		if err != nil {
			return nil
		}
		parents := make([]dom.Node, 0, len(children))
		for _, child := range children {
			if parent, err := child.Parent(); err == nil {
				parents = append(parents, parent)
			}
		}
		return parents
	}
	nodes, err := root.FindAll(selector)
	if err != nil {
		return nil
	}
	return nodes
}

// FindByText locates the single element whose direct text contains target,
// optionally restricted to a tag name. Multiple matches are a deliberate
// failure: the full candidate list (with inferred selectors) is surfaced via
// AmbiguousMatchError so a human can disambiguate, instead of the engine
// silently picking one.
func FindByText(root dom.Node, target, tag string) (dom.Node, error) {
	query := "*"
	if tag != "" {
		query = tag
	}
	nodes, err := root.FindAll(query)
	if err != nil {
		return nil, err
	}

	var matched []dom.Node
	for _, n := range nodes {
		own, err := n.OwnText()
		if err != nil || !strings.Contains(own, target) {
			continue
		}
		if text, err := n.Text(); err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		matched = append(matched, n)
	}

	switch len(matched) {
	case 0:
		return nil, &ElementNotFoundError{Selector: fmt.Sprintf("text=%q tag=%q", target, tag)}
	case 1:
		return matched[0], nil
	}

	candidates := make([]Candidate, len(matched))
	for i, n := range matched {
		text, _ := n.Text()
		candidates[i] = Candidate{
			Text:     strings.TrimSpace(text),
			Selector: InferSelector(n, 0),
			Node:     n,
		}
	}
	return nil, &AmbiguousMatchError{TargetText: target, Candidates: candidates}
}

// InferSelector reconstructs a CSS path for a node by walking its ancestors.
// nTags limits the path to the innermost n segments; 0 means unlimited.
func InferSelector(node dom.Node, nTags int) string {
	var path []string
	current := node
	for current != nil {
		tag, err := current.TagName()
		if err != nil || tag == "" {
			break
		}
		id, _ := current.Attribute("id")
		class, _ := current.Attribute("class")

		switch {
		case id != "":
			path = append(path, tag+"#"+id)
		case class != "":
			classes := strings.Fields(class)
			if len(classes) == 1 {
				path = append(path, tag+"."+class)
			} else {
				path = append(path, fmt.Sprintf("%s[class='%s']", tag, class))
			}
		default:
			path = append(path, tag)
		}

		parent, err := current.Parent()
		if err != nil {
			break
		}
		current = parent
	}

	if nTags > 0 && len(path) > nTags {
		path = path[:nTags]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, " > ")
}

// findOne resolves the first node for a selector, rewriting trailing
// ":has(x)" filters into a child query followed by a step to the parent.
func findOne(root dom.Node, selector string) (dom.Node, error) {
	if m := hasChildPattern.FindStringSubmatch(selector); m != nil {
		child, err := root.Find(m[1] + " > " + m[2])
		if err != nil {
			return nil, err
		}
		return child.Parent()
	}
	return root.Find(selector)
}

func readRaw(node dom.Node, r Rule) (string, error) {
	switch r.Mode {
	case ModeAttribute:
		return node.Attribute(r.Attribute)
	case ModeURL:
		for _, attr := range []string{"href", "src"} {
			if url, err := node.Attribute(attr); err == nil && url != "" {
				return url, nil
			}
		}
		return node.Text()
	default:
		return node.Text()
	}
}

func (e *Engine) transform(raw string, r Rule) string {
	text := strings.TrimSpace(raw)
	if !r.KeepSeparators {
		text = strings.ReplaceAll(text, ",", "") // 10,000원 -> 10000원
	}
	if r.Pattern != nil {
		if m := r.Pattern.FindStringSubmatch(text); m != nil {
			text = m[1]
		}
	} else {
		text = strings.TrimPrefix(text, r.RemovePrefix)
		text = strings.TrimSuffix(text, r.RemoveSuffix)
	}
	return strings.TrimSpace(text)
}

func (e *Engine) cast(text string, r Rule) (any, error) {
	switch r.Cast {
	case CastInt, CastFloat:
		if text == "" {
			return r.Default, nil
		}
		for _, word := range e.FreeWords {
			if strings.Contains(text, word) {
				text = "0"
				break
			}
		}
		val, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %q as number: %w", text, err)
		}
		if r.ScaleFactor != 0 && r.ScaleFactor != 1 {
			val /= r.ScaleFactor
		}
		if r.Cast == CastInt {
			return int(val), nil
		}
		return val, nil
	case CastDate:
		if text == "" {
			return r.Default, nil
		}
		t, err := time.Parse(r.DateLayout, text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %q with layout %q: %w", text, r.DateLayout, err)
		}
		return t, nil
	default:
		return text, nil
	}
}
