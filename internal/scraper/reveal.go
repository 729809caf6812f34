package scraper

import (
	"log/slog"
	"time"

	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/rules"
)

// Unbounded asks a reveal pass to keep going until the page stops growing.
const Unbounded = -1

// TerminationReason says why a reveal pass stopped.
type TerminationReason string

const (
	// ReasonTargetReached means at least the requested number of elements
	// became visible.
	ReasonTargetReached TerminationReason = "target_reached"
	// ReasonStable means the visible count stopped growing before the target
	// was met. The page simply has no more to give.
	ReasonStable TerminationReason = "stable"
	// ReasonControlTimeout means the reveal control never became clickable
	// again. Treated as exhaustion, not failure.
	ReasonControlTimeout TerminationReason = "control_timeout"
)

// Revealer grows a lazily-rendered collection until enough of it is visible.
// Marketplaces reveal more items either through an explicit "view more"
// control or by scrolling to the bottom of the list; the loop supports both.
type Revealer struct {
	Surface        Surface
	Settle         time.Duration
	ControlTimeout time.Duration
	Logger         *slog.Logger
}

func (r *Revealer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default().With("component", "revealer")
}

// Reveal grows the collection matched by targetSelector until targetCount
// elements are visible, the count stops changing, or the reveal control stops
// responding. revealControl may be empty, in which case the last visible
// element is scrolled into view instead. targetCount may be Unbounded.
//
// Zero matches on the first look is a hard failure: the selector is wrong or
// the page did not load.
func (r *Revealer) Reveal(targetSelector, revealControl string, targetCount int) ([]dom.Node, TerminationReason, error) {
	return r.reveal(targetSelector, revealControl, targetCount, nil)
}

// RevealVisit behaves like Reveal but additionally hands every newly visible
// slice of elements to visit as soon as it appears. Live-page backends
// invalidate old handles as the list grows, so callers that extract per
// element must do it incrementally rather than over the final slice.
func (r *Revealer) RevealVisit(targetSelector, revealControl string, targetCount int, visit func(unseen []dom.Node) error) (int, TerminationReason, error) {
	elems, reason, err := r.reveal(targetSelector, revealControl, targetCount, visit)
	return len(elems), reason, err
}

func (r *Revealer) reveal(targetSelector, revealControl string, targetCount int, visit func([]dom.Node) error) ([]dom.Node, TerminationReason, error) {
	log := r.logger()
	seen := 0
	for {
		elems, err := r.Surface.FindAll(targetSelector)
		if err != nil {
			return nil, "", err
		}
		n := len(elems)
		log.Debug("reveal iteration", "selector", targetSelector, "visible", n, "target", targetCount)

		if n == 0 {
			return nil, "", &rules.ElementNotFoundError{
				URL:      r.Surface.CurrentURL(),
				Selector: targetSelector,
			}
		}
		if visit != nil && n > seen {
			if err := visit(elems[seen:]); err != nil {
				return nil, "", err
			}
		}
		if n == seen {
			return elems, ReasonStable, nil
		}
		if targetCount != Unbounded && n >= targetCount {
			return elems[:targetCount], ReasonTargetReached, nil
		}
		seen = n

		if revealControl != "" {
			control, err := r.Surface.WaitClickable(revealControl, r.ControlTimeout)
			if err != nil {
				log.Debug("reveal control unavailable, stopping", "selector", revealControl)
				return elems, ReasonControlTimeout, nil
			}
			if err := r.Surface.ClickNode(control); err != nil {
				log.Warn("failed to click reveal control", "selector", revealControl, "error", err)
				return elems, ReasonControlTimeout, nil
			}
		} else {
			if err := r.Surface.ScrollIntoView(elems[n-1]); err != nil {
				log.Warn("failed to scroll to last element", "error", err)
				return elems, ReasonStable, nil
			}
		}
		time.Sleep(r.Settle)
	}
}
