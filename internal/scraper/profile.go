package scraper

import (
	"fmt"
	"regexp"

	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/models"
	"github.com/solver-ai/market-crawler/internal/rules"
)

// ReviewRuleset is one version of a marketplace's review markup. Detail
// pages of the same site coexist in several generations; each generation
// gets its own ruleset and the crawler picks one per listing by URL.
type ReviewRuleset interface {
	// Open brings the review section of the current detail page on screen,
	// clicking through whatever tabs or consent dialogs are in the way.
	Open(s Surface) error
	// ReviewSelector matches one review card.
	ReviewSelector() string
	// RevealControl matches the "view more reviews" control, or "" when the
	// site reveals more by scrolling.
	RevealControl() string
	// ExtractDistribution reads the aggregate rating histogram of the page.
	ExtractDistribution(s Surface, parent *models.Listing) (models.Distribution, error)
	// ExtractReview reads one review card. root is the page root, for the
	// rare fields that live outside the card.
	ExtractReview(root, card dom.Node, parent *models.Listing) (*models.Review, error)
}

// RulesetVersion binds a detail-page URL shape to the ruleset that can read
// it. Dispatch is first match wins, in declaration order.
type RulesetVersion struct {
	Pattern *regexp.Regexp
	Rules   ReviewRuleset
}

// Profile is everything site-specific about a marketplace: where to search,
// how its result list grows and paginates, and how to read its records. The
// crawler itself is generic; a profile plugs a site into it.
type Profile struct {
	Marketplace string
	// SearchURL is a format template taking the escaped query.
	SearchURL string

	ListingSelector      string
	ListingRevealControl string
	// PageControl is a format template taking the 1-based page number.
	PageControl     string
	OverflowControl string

	// ExtractListing fills a pre-initialized listing record from one result
	// card. It runs concurrently across cards.
	ExtractListing func(card dom.Node, listing *models.Listing) error
	// KeepListing drops result cards that are not offers of the requested
	// product (ads, accessories, unrelated sellers). Nil keeps everything.
	KeepListing func(listing *models.Listing, productName string) bool

	// Versions is the review markup dispatch table. Empty means the site
	// exposes no review surface the crawler can read.
	Versions []RulesetVersion
}

// ProfileFor returns the profile registered for a marketplace name.
func ProfileFor(name string, engine *rules.Engine, meta config.Marketplace, cfg config.CrawlerConfig) (Profile, error) {
	switch name {
	case "danawa":
		return NewDanawaProfile(engine, meta), nil
	case "m11st":
		return NewM11stProfile(engine, meta), nil
	case "navershopping":
		return NewNaverProfile(engine, meta, cfg.KnownMarketplaces), nil
	}
	return Profile{}, fmt.Errorf("unknown marketplace %q", name)
}

// DispatchRuleset picks the ruleset for a detail-page URL, observed after
// redirects. Nil means no version understands this page.
func (p *Profile) DispatchRuleset(url string) ReviewRuleset {
	for _, v := range p.Versions {
		if v.Pattern.MatchString(url) {
			return v.Rules
		}
	}
	return nil
}
