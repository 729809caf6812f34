package rules

import (
	"fmt"
	"strings"
)

// ElementNotFoundError reports a selector that matched nothing where the
// page structure guaranteed at least one node.
type ElementNotFoundError struct {
	URL      string
	Selector string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: url=%q selector=%q", e.URL, e.Selector)
}

// Candidate is one of several nodes that matched a text-based lookup.
type Candidate struct {
	Text     string
	Selector string
	Node     any
}

// AmbiguousMatchError reports a text-based lookup that matched more than one
// node. All candidates are carried for diagnostic logging; the engine never
// guesses among them.
type AmbiguousMatchError struct {
	TargetText string
	Candidates []Candidate
}

func (e *AmbiguousMatchError) Error() string {
	sels := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		sels[i] = c.Selector
	}
	return fmt.Sprintf("ambiguous match for text %q: %d candidates [%s]",
		e.TargetText, len(e.Candidates), strings.Join(sels, ", "))
}
