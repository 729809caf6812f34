package scraper

import (
	"fmt"
	"log/slog"
	"time"
)

// Paginator advances classic numbered result pages. Mobile result pages show
// a window of page numbers; once the window is exhausted a "view more pages"
// control reveals the next window.
type Paginator struct {
	Surface        Surface
	Settle         time.Duration
	ControlTimeout time.Duration
	Logger         *slog.Logger
}

func (p *Paginator) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default().With("component", "paginator")
}

// Advance moves from page current to page current+1. pageControl is a format
// template taking the 1-based page number; overflowControl reveals the next
// window of page numbers when the direct control is off-screen. It returns
// the new page number and whether another page existed.
func (p *Paginator) Advance(current int, pageControl, overflowControl string) (int, bool) {
	log := p.logger()
	next := current + 1
	selector := fmt.Sprintf(pageControl, next)

	if p.click(selector) {
		time.Sleep(p.Settle)
		return next, true
	}
	if overflowControl == "" || !p.click(overflowControl) {
		log.Info("no further pages", "page", current, "url", p.Surface.CurrentURL())
		return current, false
	}
	time.Sleep(p.Settle)
	// The next window of page numbers is now visible; the direct control
	// should resolve on the second attempt.
	if p.click(selector) {
		time.Sleep(p.Settle)
		return next, true
	}
	log.Info("no further pages", "page", current, "url", p.Surface.CurrentURL())
	return current, false
}

func (p *Paginator) click(selector string) bool {
	control, err := p.Surface.WaitClickable(selector, p.ControlTimeout)
	if err != nil {
		return false
	}
	if err := p.Surface.ClickNode(control); err != nil {
		p.logger().Warn("failed to click page control", "selector", selector, "error", err)
		return false
	}
	return true
}
