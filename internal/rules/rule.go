package rules

import (
	"fmt"
	"regexp"
)

// Mode selects what Evaluate reads from the resolved node.
type Mode int

const (
	// ModeText extracts the node's visible text (default).
	ModeText Mode = iota
	// ModeElement returns the node handle unconverted.
	ModeElement
	// ModeAttribute reads a named attribute.
	ModeAttribute
	// ModeURL reads href, then src, whichever is present first.
	ModeURL
)

// Cast selects the type of the extracted value.
type Cast int

const (
	// CastString returns the transformed text unchanged (default).
	CastString Cast = iota
	// CastInt parses a float, applies the scale factor, then narrows to int.
	CastInt
	// CastFloat parses a float and applies the scale factor.
	CastFloat
	// CastDate parses against DateLayout and yields a time.Time.
	CastDate
)

// Rule is an immutable descriptor of how to pull one typed value out of a
// document subtree. Selectors may end in ":has(x)" to locate the parent of a
// matching child element instead of the element itself.
type Rule struct {
	Selector  string
	Mode      Mode
	Attribute string

	// Text transforms, applied in order: trim, thousands-separator strip
	// (unless KeepSeparators), then either the regex capture or the
	// prefix/suffix strip, then trim again. Pattern and RemovePrefix/Suffix
	// are mutually exclusive; Pattern wins.
	KeepSeparators bool
	RemovePrefix   string
	RemoveSuffix   string
	Pattern        *regexp.Regexp

	Cast        Cast
	DateLayout  string
	ScaleFactor float64

	// Default is returned when the selector matches nothing and the rule is
	// not Required. A Required rule that matches nothing fails instead.
	Default  any
	Required bool
}

// MustCapture compiles a pattern for Rule.Pattern and panics unless it has at
// least one capture group. Rule tables are package-level data, so a bad
// pattern fails at authoring time, not during a crawl.
func MustCapture(pattern string) *regexp.Regexp {
	re := regexp.MustCompile(pattern)
	if re.NumSubexp() < 1 {
		panic(fmt.Sprintf("rules: pattern %q has no capture group", pattern))
	}
	return re
}
