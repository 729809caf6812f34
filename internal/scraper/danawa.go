package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/models"
	"github.com/solver-ai/market-crawler/internal/rules"
)

// Danawa is a price aggregator: a result card is the cheapest offer across
// malls, and its review page federates reviews from the malls themselves.

var (
	danawaReviewCountPattern  = rules.MustCapture(`\((\d+)\)`)
	danawaStarPattern         = rules.MustCapture(`별 (\d)점`)
	danawaReviewIDPattern     = rules.MustCapture(`^productBlog-opinion-mall-list-listItem-(.*)$`)
	danawaPricePerUnitPattern = rules.MustCapture(`([\d.]+)원?\s*/\s*([^)\s]+)`)
	danawaDetailURLPattern    = regexp.MustCompile(`^https?://(prod|m)\.danawa\.com/`)
)

// NewDanawaProfile builds the danawa crawl profile.
func NewDanawaProfile(engine *rules.Engine, meta config.Marketplace) Profile {
	return Profile{
		Marketplace:     "danawa",
		SearchURL:       meta.SearchURL,
		ListingSelector: "ul.goods-list > li.goods-list__item",
		PageControl:     "div.paging__wrap a[data-page='%d']",
		OverflowControl: "div.paging__wrap button.paging__more",
		ExtractListing: func(card dom.Node, l *models.Listing) error {
			return extractDanawaListing(engine, meta, card, l)
		},
		Versions: []RulesetVersion{
			{Pattern: danawaDetailURLPattern, Rules: &danawaReviews{engine: engine, meta: meta}},
		},
	}
}

func extractDanawaListing(e *rules.Engine, meta config.Marketplace, card dom.Node, l *models.Listing) error {
	title, err := e.Text(card, rules.Rule{Selector: "span.goods-list__title"})
	if err != nil {
		return fmt.Errorf("failed to extract title: %w", err)
	}
	l.ListingTitle = title

	// A card without a mall logo is danawa's own lowest-price aggregate.
	seller, err := e.Attr(card, "div.goods-list__info img", "alt")
	if err != nil {
		return fmt.Errorf("failed to extract seller: %w", err)
	}
	if seller == "" {
		l.SellerName = "group"
		l.Optional.AppendBadges("lowest_price")
	} else {
		l.Marketplace = seller
		l.SellerName = seller
	}

	price, err := e.Float(card, rules.Rule{Selector: "div.goods-list__price > em"})
	if err != nil {
		return fmt.Errorf("failed to extract price: %w", err)
	}
	l.Price = price

	count, err := e.Int(card, rules.Rule{
		Selector: "div.goods-list__review > span.count",
		Pattern:  danawaReviewCountPattern,
		Default:  0,
	})
	if err != nil {
		return fmt.Errorf("failed to extract review count: %w", err)
	}
	l.ReviewCount = count

	rating, err := e.Float(card, rules.Rule{
		Selector:    "div.goods-list__review > span.point",
		ScaleFactor: meta.MaxListingRating,
	})
	if err != nil {
		return fmt.Errorf("failed to extract rating: %w", err)
	}
	l.Optional["average_rating"] = rating

	sub, err := e.Text(card, rules.Rule{Selector: "div.goods-list__sub", KeepSeparators: true})
	if err != nil {
		return fmt.Errorf("failed to extract unit price: %w", err)
	}
	l.Optional["price_per_unit"] = parsePricePerUnit(sub)

	date, err := e.Date(card, rules.Rule{
		Selector:     "span.goods-list__date",
		RemovePrefix: "등록월 ",
		DateLayout:   "2006.01.",
	})
	if err != nil {
		return fmt.Errorf("failed to extract date: %w", err)
	}
	l.Date = date

	if l.ThumbnailURL, err = e.URL(card, rules.Rule{Selector: "span.thumb > img"}); err != nil {
		return fmt.Errorf("failed to extract thumbnail: %w", err)
	}
	if l.ListingURL, err = e.URL(card, rules.Rule{Selector: "div.goods-list__wrap > a"}); err != nil {
		return fmt.Errorf("failed to extract listing url: %w", err)
	}
	return nil
}

// parsePricePerUnit reads texts like "(100원/10ml)" into value and unit.
// Unparseable texts are kept raw rather than dropped.
func parsePricePerUnit(text string) any {
	if text == "" {
		return nil
	}
	m := danawaPricePerUnitPattern.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return text
	}
	return map[string]any{"value": value, "unit": m[2]}
}

// danawaReviews reads the federated mall-review tab of a danawa detail page.
type danawaReviews struct {
	engine *rules.Engine
	meta   config.Marketplace
}

// Open clicks through to the mall-review tab. The anchors carry no stable
// selector, so they are located by their visible text; an ambiguous match
// aborts the listing with the candidate list on record.
func (d *danawaReviews) Open(s Surface) error {
	tab, err := rules.FindByText(s.Root(), "의견/리뷰", "a")
	if err != nil {
		return fmt.Errorf("failed to locate review tab: %w", err)
	}
	if err := s.ClickNode(tab); err != nil {
		return fmt.Errorf("failed to open review tab: %w", err)
	}
	time.Sleep(500 * time.Millisecond)

	mallTab, err := rules.FindByText(s.Root(), "쇼핑몰 상품리뷰", "")
	if err != nil {
		return fmt.Errorf("failed to locate mall review tab: %w", err)
	}
	if err := s.ClickNode(mallTab); err != nil {
		return fmt.Errorf("failed to open mall review tab: %w", err)
	}
	time.Sleep(500 * time.Millisecond)
	return nil
}

func (d *danawaReviews) ReviewSelector() string {
	return "li[id^='productBlog-opinion-mall-list-listItem-']"
}

func (d *danawaReviews) RevealControl() string {
	return "div.bottom_view_more > button"
}

func (d *danawaReviews) ExtractDistribution(s Surface, parent *models.Listing) (models.Distribution, error) {
	dist := models.NewDistribution()
	bars := rules.EvaluateMany(s.Root(),
		"#productBlog-opinion-mall-tabContent-container > div.new_mark_nums > div.right_nums_parea > ul > li")
	for _, bar := range bars {
		rating, err := d.engine.Int(bar, rules.Rule{Selector: "span.tit", RemoveSuffix: "점", Required: true})
		if err != nil {
			return dist, fmt.Errorf("failed to read rating bar: %w", err)
		}
		percent, err := d.engine.Float(bar, rules.Rule{Selector: "span.percent", RemoveSuffix: "%", Required: true})
		if err != nil {
			return dist, fmt.Errorf("failed to read rating percent: %w", err)
		}
		dist.Ratings[rating] = percent
	}
	return dist, nil
}

func (d *danawaReviews) ExtractReview(root, card dom.Node, parent *models.Listing) (*models.Review, error) {
	r := models.NewReview(parent)

	rawID, err := card.Attribute("id")
	if err != nil {
		return nil, fmt.Errorf("failed to read card id: %w", err)
	}
	m := danawaReviewIDPattern.FindStringSubmatch(rawID)
	if m == nil {
		return nil, fmt.Errorf("unexpected review card id %q", rawID)
	}
	id := m[1]

	e := d.engine
	if r.ReviewerID, err = e.Text(card, rules.Rule{Selector: "span.best_mall_nic01"}); err != nil {
		return nil, err
	}
	if r.Rating, err = e.Float(card, rules.Rule{
		Selector:    "div.star_mark_type1",
		Pattern:     danawaStarPattern,
		ScaleFactor: d.meta.MaxReviewRating,
	}); err != nil {
		return nil, err
	}
	if r.Content, err = e.Text(card, rules.Rule{Selector: "p.txt_best_rvw"}); err != nil {
		return nil, err
	}
	if r.Date, err = e.Date(card, rules.Rule{
		Selector:   "span.best_mall_date01",
		DateLayout: "2006.01.02.",
	}); err != nil {
		return nil, err
	}

	// The review really lives on some mall; danawa is only the aggregator.
	mall, err := e.Attr(card, "span.best_mall_mall01 > img", "alt")
	if err != nil {
		return nil, err
	}
	if mall != "" {
		r.Marketplace = mall
		r.SellerName = mall
	}

	// Review images are rendered outside the card, keyed by the card id.
	imageURL, err := e.URL(root, rules.Rule{
		Selector: fmt.Sprintf("#productBlog-opinion-mall-list-image-item-1-%s", id),
	})
	if err != nil {
		return nil, err
	}
	r.Optional["image_url"] = imageURL
	return r, nil
}
