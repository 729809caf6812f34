package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/models"
	"github.com/solver-ai/market-crawler/internal/pool"
	"github.com/solver-ai/market-crawler/internal/ratelimit"
	"github.com/solver-ai/market-crawler/internal/rules"
	"github.com/solver-ai/market-crawler/internal/storage"
)

// State tracks where a crawl is in its lifecycle. Transitions are linear;
// any phase can divert to StateFailed.
type State string

const (
	StateCreated           State = "created"
	StateSessionAcquired   State = "session_acquired"
	StateListingsExtracted State = "listings_extracted"
	StateReviewsExtracted  State = "reviews_extracted"
	StatePersisted         State = "persisted"
	StateClosed            State = "closed"
	StateFailed            State = "failed"
)

// Diagnostic is a structured note about something that went sideways without
// stopping the run: count shortfalls, ambiguous anchors, unknown markup.
type Diagnostic struct {
	Kind       string `json:"kind"`
	ListingURL string `json:"listing_url,omitempty"`
	Detail     string `json:"detail"`
}

const (
	DiagListingCountMismatch = "listing_count_mismatch"
	DiagReviewCountMismatch  = "review_count_mismatch"
	DiagAmbiguousMatch       = "ambiguous_match"
	DiagUnsupportedMarkup    = "unsupported_markup_version"
	DiagElementNotFound      = "element_not_found"
	DiagReviewsFailed        = "review_extraction_failed"
	DiagDistributionFailed   = "distribution_extraction_failed"
)

// Result is what a run produced, complete or not. A run that hit per-listing
// trouble still returns everything it got, with the trouble on record.
type Result struct {
	Listings    []*models.Listing `json:"listings"`
	Reviews     []*models.Review  `json:"reviews"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
}

// Crawler drives one marketplace crawl end to end: search, grow and page the
// result list, extract listings, walk their review pages, persist. The site
// specifics come from the profile; everything else is shared.
type Crawler struct {
	profile Profile
	surface Surface
	store   storage.Gateway
	meta    config.Marketplace
	cfg     config.CrawlerConfig

	session     models.Session
	productName string
	brandName   string

	revealer  Revealer
	paginator Paginator
	pace      *ratelimit.Adaptive
	logger    *slog.Logger

	state     State
	closeOnce sync.Once
	closeErr  error
}

// New wires a crawler for one product on one marketplace. The session id may
// be empty; one is generated.
func New(profile Profile, surface Surface, store storage.Gateway, meta config.Marketplace, cfg config.CrawlerConfig, sessionID, productName, brandName string) *Crawler {
	session := models.NewSession(sessionID)
	session.Query = strings.TrimSpace(brandName + " " + productName)

	logger := slog.Default().With(
		"component", "crawler",
		"marketplace", profile.Marketplace,
		"session_id", session.ID,
	)
	return &Crawler{
		profile:     profile,
		surface:     surface,
		store:       store,
		meta:        meta,
		cfg:         cfg,
		session:     session,
		productName: productName,
		brandName:   brandName,
		revealer: Revealer{
			Surface:        surface,
			Settle:         cfg.SettleInterval,
			ControlTimeout: cfg.ControlTimeout,
			Logger:         logger.With("component", "revealer"),
		},
		paginator: Paginator{
			Surface:        surface,
			Settle:         cfg.SettleInterval,
			ControlTimeout: cfg.ControlTimeout,
			Logger:         logger.With("component", "paginator"),
		},
		pace:   ratelimit.NewAdaptive(cfg.NavigateDelayMin, cfg.NavigateDelayMax),
		logger: logger,
		state:  StateCreated,
	}
}

// Session exposes the run's identity for callers that report on it.
func (c *Crawler) Session() models.Session { return c.session }

// State returns the current lifecycle state.
func (c *Crawler) State() State { return c.state }

func (c *Crawler) setState(s State) {
	c.state = s
	c.logger.Info("state transition", "state", s)
}

// Run executes the whole crawl. maxListings and maxReviews may be Unbounded.
// Per-listing failures are absorbed into the result's diagnostics; only a
// failure to reach the search page at all, or to persist, is returned as an
// error. The partial result is returned either way.
func (c *Crawler) Run(ctx context.Context, maxListings, maxReviews int) (*Result, error) {
	defer c.Close()
	res := &Result{}

	searchURL := fmt.Sprintf(c.profile.SearchURL, url.QueryEscape(c.session.Query))
	c.session.SearchURL = searchURL
	if err := c.pace.Wait(ctx); err != nil {
		c.setState(StateFailed)
		return res, err
	}
	if err := c.surface.Navigate(searchURL); err != nil {
		c.pace.RecordError()
		c.setState(StateFailed)
		return res, fmt.Errorf("failed to load search page: %w", err)
	}
	c.pace.RecordSuccess()
	c.setState(StateSessionAcquired)
	c.logger.Info("search page loaded", "query", c.session.Query, "url", searchURL)

	res.Listings = c.extractListings(ctx, maxListings, res)
	c.setState(StateListingsExtracted)
	c.logger.Info("listings extracted", "count", len(res.Listings))

	res.Reviews = c.extractReviews(ctx, res.Listings, maxReviews, res)
	c.setState(StateReviewsExtracted)
	c.logger.Info("reviews extracted", "count", len(res.Reviews))

	if err := c.persist(ctx, res); err != nil {
		c.setState(StateFailed)
		return res, fmt.Errorf("failed to persist results: %w", err)
	}
	c.setState(StatePersisted)
	return res, nil
}

// extractListings walks result pages, growing each one until the remaining
// target is visible, and extracts cards concurrently.
func (c *Crawler) extractListings(ctx context.Context, max int, res *Result) []*models.Listing {
	var collected []*models.Listing
	page := 1
	for ctx.Err() == nil {
		remaining := Unbounded
		if max != Unbounded {
			remaining = max - len(collected)
		}
		elems, reason, err := c.revealer.Reveal(c.profile.ListingSelector, c.profile.ListingRevealControl, remaining)
		if err != nil {
			c.logger.Error("no listings on result page", "page", page, "error", err)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:   DiagElementNotFound,
				Detail: err.Error(),
			})
			break
		}
		cards := c.nonEmpty(elems)

		listings, errs := pool.Map(cards, c.cfg.ConcurrentLimit, func(card dom.Node) (*models.Listing, error) {
			l := models.NewListing(c.session, c.profile.Marketplace, c.productName, c.brandName)
			if err := c.profile.ExtractListing(card, l); err != nil {
				return nil, err
			}
			return l, nil
		})

		kept := 0
		for i, l := range listings {
			if errs[i] != nil {
				c.logger.Warn("failed to extract listing card", "page", page, "error", errs[i])
				continue
			}
			if reasons := l.Validate(); len(reasons) > 0 {
				c.logger.Warn("dropping invalid listing", "reasons", reasons, "url", l.ListingURL)
				continue
			}
			if c.profile.KeepListing != nil && !c.profile.KeepListing(l, c.productName) {
				c.logger.Debug("filtered out listing", "title", l.ListingTitle, "seller", l.SellerName)
				continue
			}
			collected = append(collected, l)
			kept++
		}
		if kept < len(cards) {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:   DiagListingCountMismatch,
				Detail: fmt.Sprintf("page %d: %d cards visible, %d listings kept", page, len(cards), kept),
			})
		}
		c.logger.Info("result page extracted", "page", page, "cards", len(cards), "kept", kept, "reason", reason)

		if max != Unbounded && len(collected) >= max {
			collected = collected[:max]
			break
		}
		next, ok := c.paginator.Advance(page, c.profile.PageControl, c.profile.OverflowControl)
		if !ok {
			break
		}
		page = next
	}
	return collected
}

// nonEmpty drops placeholder cards that render without any text.
func (c *Crawler) nonEmpty(elems []dom.Node) []dom.Node {
	cards := make([]dom.Node, 0, len(elems))
	for _, e := range elems {
		text, err := e.Text()
		if err == nil && strings.TrimSpace(text) != "" {
			cards = append(cards, e)
		}
	}
	return cards
}

// extractReviews visits each listing's detail page in turn. Trouble with one
// listing never stops the others.
func (c *Crawler) extractReviews(ctx context.Context, listings []*models.Listing, max int, res *Result) []*models.Review {
	if len(c.profile.Versions) == 0 {
		c.logger.Info("marketplace exposes no readable review surface, skipping review phase")
		for _, l := range listings {
			attachDistribution(l, models.NewDistribution())
		}
		return nil
	}

	var all []*models.Review
	for _, l := range listings {
		if ctx.Err() != nil {
			break
		}
		if l.ReviewCount == 0 {
			attachDistribution(l, models.NewDistribution())
			continue
		}
		reviews, err := c.extractListingReviews(ctx, l, max, res)
		if err != nil {
			kind := DiagReviewsFailed
			var unsupported *UnsupportedMarkupVersionError
			var ambiguous *rules.AmbiguousMatchError
			var notFound *rules.ElementNotFoundError
			switch {
			case errors.As(err, &unsupported):
				kind = DiagUnsupportedMarkup
			case errors.As(err, &ambiguous):
				kind = DiagAmbiguousMatch
			case errors.As(err, &notFound):
				kind = DiagElementNotFound
			}
			c.logger.Error("review extraction failed for listing", "url", l.ListingURL, "error", err)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:       kind,
				ListingURL: l.ListingURL,
				Detail:     err.Error(),
			})
			continue
		}

		expected := l.ReviewCount
		if max != Unbounded && max < expected {
			expected = max
		}
		if len(reviews) != expected {
			c.logger.Warn("review count mismatch", "url", l.ListingURL, "expected", expected, "extracted", len(reviews))
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:       DiagReviewCountMismatch,
				ListingURL: l.ListingURL,
				Detail:     fmt.Sprintf("expected %d reviews, extracted %d", expected, len(reviews)),
			})
		}
		all = append(all, reviews...)
	}
	return all
}

func (c *Crawler) extractListingReviews(ctx context.Context, l *models.Listing, max int, res *Result) ([]*models.Review, error) {
	if err := c.pace.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.surface.Navigate(l.ListingURL); err != nil {
		c.pace.RecordError()
		return nil, fmt.Errorf("failed to open detail page: %w", err)
	}
	c.pace.RecordSuccess()
	// Dispatch on the URL the page settled on, not the one we requested:
	// redirects are how these sites route between markup generations.
	landed := c.surface.CurrentURL()
	ruleset := c.profile.DispatchRuleset(landed)
	if ruleset == nil {
		return nil, &UnsupportedMarkupVersionError{Marketplace: c.profile.Marketplace, URL: landed}
	}
	if err := ruleset.Open(c.surface); err != nil {
		return nil, fmt.Errorf("failed to open review section: %w", err)
	}

	dist, err := ruleset.ExtractDistribution(c.surface, l)
	if err != nil {
		c.logger.Warn("failed to extract rating distribution", "url", l.ListingURL, "error", err)
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Kind:       DiagDistributionFailed,
			ListingURL: l.ListingURL,
			Detail:     err.Error(),
		})
		dist = models.NewDistribution()
	}
	attachDistribution(l, dist)

	var reviews []*models.Review
	visit := func(unseen []dom.Node) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		extracted, errs := pool.Map(unseen, c.cfg.ConcurrentLimit, func(card dom.Node) (*models.Review, error) {
			return ruleset.ExtractReview(c.surface.Root(), card, l)
		})
		for i, r := range extracted {
			if errs[i] != nil {
				c.logger.Warn("failed to extract review card", "url", l.ListingURL, "error", errs[i])
				continue
			}
			if reasons := r.Validate(); len(reasons) > 0 {
				c.logger.Debug("dropping non-review card", "reasons", reasons)
				continue
			}
			reviews = append(reviews, r)
		}
		return nil
	}
	if _, _, err := c.revealer.RevealVisit(ruleset.ReviewSelector(), ruleset.RevealControl(), max, visit); err != nil {
		return nil, err
	}
	if max != Unbounded && len(reviews) > max {
		reviews = reviews[:max]
	}
	return reviews, nil
}

func attachDistribution(l *models.Listing, dist models.Distribution) {
	l.Optional["ratings_distribution"] = dist.Ratings
	l.Optional["options_distribution"] = dist.Options
}

// persist writes the run's records grouped by kind.
func (c *Crawler) persist(ctx context.Context, res *Result) error {
	listingDocs := make([]any, len(res.Listings))
	for i, l := range res.Listings {
		listingDocs[i] = l
	}
	if err := c.store.InsertDocuments(ctx, listingDocs, c.meta.ListingsIndex); err != nil {
		return fmt.Errorf("failed to store listings: %w", err)
	}
	reviewDocs := make([]any, len(res.Reviews))
	for i, r := range res.Reviews {
		reviewDocs[i] = r
	}
	if err := c.store.InsertDocuments(ctx, reviewDocs, c.meta.ReviewsIndex); err != nil {
		return fmt.Errorf("failed to store reviews: %w", err)
	}
	c.logger.Info("results persisted", "listings", len(res.Listings), "reviews", len(res.Reviews))
	return nil
}

// Close releases the rendering session. Safe to call from every exit path;
// the release happens once.
func (c *Crawler) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.surface.Close()
		if c.state != StateFailed {
			c.state = StateClosed
		}
		c.logger.Info("session released")
	})
	return c.closeErr
}
