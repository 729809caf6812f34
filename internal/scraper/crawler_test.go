package scraper

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/models"
	"github.com/solver-ai/market-crawler/internal/rules"
)

// testRuleset is a minimal review ruleset for a synthetic marketplace.
type testRuleset struct {
	engine  *rules.Engine
	openErr error
}

func (r *testRuleset) Open(s Surface) error   { return r.openErr }
func (r *testRuleset) ReviewSelector() string { return "li.review" }
func (r *testRuleset) RevealControl() string  { return "" }

func (r *testRuleset) ExtractDistribution(s Surface, parent *models.Listing) (models.Distribution, error) {
	dist := models.NewDistribution()
	for _, bar := range rules.EvaluateMany(s.Root(), "ul.dist > li") {
		rating, err := r.engine.Int(bar, rules.Rule{Selector: "span.score", Required: true})
		if err != nil {
			return dist, err
		}
		share, err := r.engine.Float(bar, rules.Rule{Selector: "span.share", RemoveSuffix: "%", ScaleFactor: 100, Required: true})
		if err != nil {
			return dist, err
		}
		dist.Ratings[rating] = share
	}
	return dist, nil
}

func (r *testRuleset) ExtractReview(root, card dom.Node, parent *models.Listing) (*models.Review, error) {
	review := models.NewReview(parent)
	var err error
	if review.ReviewerID, err = r.engine.Text(card, rules.Rule{Selector: "span.nick"}); err != nil {
		return nil, err
	}
	if review.Rating, err = r.engine.Float(card, rules.Rule{Selector: "span.stars", ScaleFactor: 5}); err != nil {
		return nil, err
	}
	if review.Content, err = r.engine.Text(card, rules.Rule{Selector: "p.body"}); err != nil {
		return nil, err
	}
	return review, nil
}

func testProfile(engine *rules.Engine) Profile {
	return Profile{
		Marketplace:     "shoptest",
		SearchURL:       "https://shop.test/search?q=%s",
		ListingSelector: "li.card",
		PageControl:     "a.page-%d",
		ExtractListing: func(card dom.Node, l *models.Listing) error {
			var err error
			if l.ListingTitle, err = engine.Text(card, rules.Rule{Selector: "span.title"}); err != nil {
				return err
			}
			if l.ListingURL, err = engine.URL(card, rules.Rule{Selector: "a.link"}); err != nil {
				return err
			}
			if l.ReviewCount, err = engine.Int(card, rules.Rule{Selector: "span.reviews", Default: 0}); err != nil {
				return err
			}
			l.SellerName = "shoptest"
			return nil
		},
		Versions: []RulesetVersion{
			{Pattern: regexp.MustCompile(`^https://shop\.test/item/`), Rules: &testRuleset{engine: engine}},
		},
	}
}

func card(title, url string, reviews int) string {
	return fmt.Sprintf(
		`<li class="card"><span class="title">%s</span><a class="link" href="%s"></a><span class="reviews">%d</span></li>`,
		title, url, reviews)
}

func reviewCard(nick, stars, body string) string {
	return fmt.Sprintf(
		`<li class="review"><span class="nick">%s</span><span class="stars">%s</span><p class="body">%s</p></li>`,
		nick, stars, body)
}

func testConfig() config.CrawlerConfig {
	return config.CrawlerConfig{
		MaxListings:     10,
		MaxReviews:      10,
		ConcurrentLimit: 2,
	}
}

func TestCrawlerRunEndToEnd(t *testing.T) {
	searchHTML := `<ul>` +
		card("Widget A", "https://shop.test/item/a", 3) +
		card("Widget B", "https://shop.test/item/b", 0) +
		card("Widget C", "https://other.test/item/c", 5) +
		`</ul>`

	detailA := `<ul class="dist"><li><span class="score">5</span><span class="share">60%</span></li>` +
		`<li><span class="score">4</span><span class="share">40%</span></li></ul>` +
		`<ul class="list">` +
		reviewCard("buyer-1", "4.0", "good") +
		reviewCard("buyer-2", "5.0", "great") +
		reviewCard("", "3.0", "promo card") +
		`</ul>`

	engine := &rules.Engine{}
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search?q=acme+widget": {searchHTML},
		"https://shop.test/item/a":               {detailA},
		"https://other.test/item/c":              {`<div>legacy markup</div>`},
	})
	store := newMemStore()
	meta := config.Marketplace{ListingsIndex: "listings", ReviewsIndex: "reviews"}

	c := New(testProfile(engine), surface, store, meta, testConfig(), "run-1", "widget", "acme")
	result, err := c.Run(context.Background(), 10, 10)
	require.NoError(t, err)

	// All three cards are valid listings; reviews only from the supported one.
	require.Len(t, result.Listings, 3)
	require.Len(t, result.Reviews, 2)
	assert.Equal(t, "buyer-1", result.Reviews[0].ReviewerID)
	assert.Equal(t, 0.8, result.Reviews[0].Rating)
	assert.Equal(t, "Widget A", result.Reviews[0].ListingTitle)
	assert.Equal(t, "run-1", result.Reviews[0].SessionID)

	// Distribution rides on the listing record.
	a := result.Listings[0]
	assert.Equal(t, map[int]float64{5: 0.6, 4: 0.4}, a.Optional["ratings_distribution"])

	// The zero-review listing is skipped with an empty distribution.
	b := result.Listings[1]
	assert.Equal(t, map[int]float64{}, b.Optional["ratings_distribution"])
	assert.NotContains(t, surface.navigated, "https://shop.test/item/b")

	// The unknown markup version is a diagnostic, not a run failure. The
	// dropped promo card shows up as a review count shortfall.
	kinds := map[string]int{}
	for _, d := range result.Diagnostics {
		kinds[d.Kind]++
	}
	assert.Equal(t, 1, kinds[DiagUnsupportedMarkup])
	assert.Equal(t, 1, kinds[DiagReviewCountMismatch])

	// Persistence groups records by kind.
	assert.Len(t, store.docs["listings"], 3)
	assert.Len(t, store.docs["reviews"], 2)

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, surface.closeCalls)
}

func TestCrawlerRunSearchFailureIsFatal(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{})
	store := newMemStore()

	c := New(testProfile(&rules.Engine{}), surface, store, config.Marketplace{}, testConfig(), "", "widget", "acme")
	result, err := c.Run(context.Background(), 5, 5)
	require.Error(t, err)
	assert.Empty(t, result.Listings)
	assert.Equal(t, 1, surface.closeCalls)
}

func TestCrawlerListingTargetTrims(t *testing.T) {
	searchHTML := `<ul>` +
		card("Widget A", "https://shop.test/item/a", 0) +
		card("Widget B", "https://shop.test/item/b", 0) +
		card("Widget C", "https://shop.test/item/c", 0) +
		`</ul>`

	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search?q=acme+widget": {searchHTML},
	})
	store := newMemStore()

	c := New(testProfile(&rules.Engine{}), surface, store, config.Marketplace{ListingsIndex: "listings"}, testConfig(), "", "widget", "acme")
	result, err := c.Run(context.Background(), 2, Unbounded)
	require.NoError(t, err)
	assert.Len(t, result.Listings, 2)
	assert.Equal(t, "Widget A", result.Listings[0].ListingTitle)
	assert.Equal(t, "Widget B", result.Listings[1].ListingTitle)
}

func TestCrawlerKeepListingFilter(t *testing.T) {
	searchHTML := `<ul>` +
		card("Acme Widget Pro", "https://shop.test/item/a", 0) +
		card("Unrelated Gadget", "https://shop.test/item/b", 0) +
		`</ul>`

	profile := testProfile(&rules.Engine{})
	profile.KeepListing = func(l *models.Listing, productName string) bool {
		return keepNaverListing(l, productName, nil)
	}

	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search?q=acme+widget": {searchHTML},
	})
	c := New(profile, surface, newMemStore(), config.Marketplace{}, testConfig(), "", "widget", "acme")
	result, err := c.Run(context.Background(), 10, 10)
	require.NoError(t, err)

	require.Len(t, result.Listings, 1)
	assert.Equal(t, "Acme Widget Pro", result.Listings[0].ListingTitle)

	// The filtered card counts as a shortfall on the page.
	var mismatches int
	for _, d := range result.Diagnostics {
		if d.Kind == DiagListingCountMismatch {
			mismatches++
		}
	}
	assert.Equal(t, 1, mismatches)
}

func TestCrawlerNoReviewSurface(t *testing.T) {
	searchHTML := `<ul>` + card("Widget A", "https://shop.test/item/a", 7) + `</ul>`

	profile := testProfile(&rules.Engine{})
	profile.Versions = nil

	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search?q=acme+widget": {searchHTML},
	})
	c := New(profile, surface, newMemStore(), config.Marketplace{}, testConfig(), "", "widget", "acme")
	result, err := c.Run(context.Background(), 10, 10)
	require.NoError(t, err)

	assert.Empty(t, result.Reviews)
	require.Len(t, result.Listings, 1)
	assert.Equal(t, map[int]float64{}, result.Listings[0].Optional["ratings_distribution"])
	// Detail pages are never visited.
	assert.Equal(t, []string{"https://shop.test/search?q=acme+widget"}, surface.navigated)
}

func TestCrawlerBacksOffAfterNavigationFailures(t *testing.T) {
	searchHTML := `<ul>` +
		card("Widget A", "https://shop.test/item/a", 2) +
		card("Widget B", "https://shop.test/item/b", 2) +
		card("Widget C", "https://shop.test/item/c", 2) +
		`</ul>`

	// Only the search page resolves; every detail navigation fails.
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search?q=acme+widget": {searchHTML},
	})

	cfg := testConfig()
	cfg.NavigateDelayMin = 10 * time.Millisecond
	cfg.NavigateDelayMax = 20 * time.Millisecond

	c := New(testProfile(&rules.Engine{}), surface, newMemStore(), config.Marketplace{}, cfg, "", "widget", "acme")
	result, err := c.Run(context.Background(), 10, 10)
	require.NoError(t, err)
	require.Len(t, result.Listings, 3)
	assert.Empty(t, result.Reviews)

	// Three consecutive failed navigations widen the pacing window by 1.5x.
	min, max := c.pace.Delay()
	assert.Equal(t, 15*time.Millisecond, min)
	assert.Equal(t, 30*time.Millisecond, max)
}

func TestDispatchRulesetFirstMatchWins(t *testing.T) {
	first := &testRuleset{}
	second := &testRuleset{}
	p := Profile{Versions: []RulesetVersion{
		{Pattern: regexp.MustCompile(`^https://shop\.test/item/`), Rules: first},
		{Pattern: regexp.MustCompile(`^https://shop\.test/`), Rules: second},
	}}

	assert.Same(t, first, p.DispatchRuleset("https://shop.test/item/1").(*testRuleset))
	assert.Same(t, second, p.DispatchRuleset("https://shop.test/other").(*testRuleset))
	assert.Nil(t, p.DispatchRuleset("https://elsewhere.test/item/1"))
}
