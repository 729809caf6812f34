package scraper

import (
	"fmt"
	"time"

	"github.com/solver-ai/market-crawler/internal/dom"
)

// Surface is the slice of the rendering session the drivers and the crawler
// template need. browser.Session implements it; tests substitute fakes.
type Surface interface {
	Navigate(url string) error
	CurrentURL() string
	Root() dom.Node
	FindAll(selector string) ([]dom.Node, error)
	WaitClickable(selector string, timeout time.Duration) (dom.Node, error)
	ClickNode(n dom.Node) error
	ScrollIntoView(n dom.Node) error
	AcceptNextDialog()
	DismissNextDialog()
	Close() error
}

// UnsupportedMarkupVersionError reports a detail-page URL matching no entry
// in a profile's version-dispatch table. A new, un-handled markup version is
// a design gap, not a transient fault; it is fatal for that listing's review
// extraction but never for the run.
type UnsupportedMarkupVersionError struct {
	Marketplace string
	URL         string
}

func (e *UnsupportedMarkupVersionError) Error() string {
	return fmt.Sprintf("no ruleset version for %s url %q", e.Marketplace, e.URL)
}
