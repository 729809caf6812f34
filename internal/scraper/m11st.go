package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/models"
	"github.com/solver-ai/market-crawler/internal/rules"
)

// 11st serves two generations of detail-page markup side by side, routed by
// URL path: /products/ma/ is the newer card-based layout, /products/m/ the
// older one. Listings pages are shared; only the review surface differs.

var (
	m11stSatisfactionPattern = rules.MustCapture(`만족도 : (\d+)%`)
	m11stRatingBarPattern    = rules.MustCapture(`([1-5])점 리뷰 (\d+)개`)
	m11stV1URLPattern        = regexp.MustCompile(`^https://m\.11st\.co\.kr/products/ma/.+`)
	m11stV2URLPattern        = regexp.MustCompile(`^https://m\.11st\.co\.kr/products/m/.+`)
)

// NewM11stProfile builds the 11st crawl profile.
func NewM11stProfile(engine *rules.Engine, meta config.Marketplace) Profile {
	return Profile{
		Marketplace:     "m11st",
		SearchURL:       meta.SearchURL,
		ListingSelector: "div[class='l-grid l-grid--nobg'] > ul > li > div.c-card-item > a",
		PageControl:     "div.c-paging a[data-page='%d']",
		OverflowControl: "div.c-paging button.c-paging__more",
		ExtractListing: func(card dom.Node, l *models.Listing) error {
			return extractM11stListing(engine, meta, card, l)
		},
		Versions: []RulesetVersion{
			{Pattern: m11stV1URLPattern, Rules: &m11stReviewsV1{engine: engine, meta: meta}},
			{Pattern: m11stV2URLPattern, Rules: &m11stReviewsV2{engine: engine, meta: meta}},
		},
	}
}

func extractM11stListing(e *rules.Engine, meta config.Marketplace, card dom.Node, l *models.Listing) error {
	info, err := e.Element(card, "div.c-card-item__info > dl")
	if err != nil {
		return fmt.Errorf("failed to locate card info: %w", err)
	}
	if info == nil {
		return fmt.Errorf("card has no info block")
	}

	// Overseas listings carry an inline badge inside the title; the badge
	// text is stripped off the title and kept on its own.
	overseas, err := e.Text(info, rules.Rule{Selector: "div.c-card-item__name > dd > em"})
	if err != nil {
		return err
	}
	title, err := e.Text(info, rules.Rule{
		Selector:     "div.c-card-item__name > dd",
		RemovePrefix: overseas,
	})
	if err != nil {
		return err
	}
	l.ListingTitle = title

	seller, err := e.Text(info, rules.Rule{
		Selector: "div.c-card-item__brand > dd > span",
		Default:  l.Marketplace,
	})
	if err != nil {
		return err
	}
	l.SellerName = seller

	price, err := e.Float(info, rules.Rule{Selector: "dd.c-card-item__price > strong"})
	if err != nil {
		return err
	}
	l.Price = price

	count, err := e.Int(info, rules.Rule{
		Selector:     "div.c-starrate > dd.c-starrate__review",
		RemovePrefix: "리뷰",
		Default:      0,
	})
	if err != nil {
		return err
	}
	l.ReviewCount = count

	rating, err := e.Float(info, rules.Rule{
		Selector:    "div.c-starrate > dd.c-starrate__sati",
		Pattern:     m11stSatisfactionPattern,
		ScaleFactor: meta.MaxListingRating,
	})
	if err != nil {
		return err
	}
	l.Optional["average_rating"] = rating

	deliveryFee, err := e.Int(info, rules.Rule{
		Selector:     "div.c-card-item__delivery > dd",
		RemovePrefix: "배송비",
		RemoveSuffix: meta.Currency,
	})
	if err != nil {
		return err
	}
	l.Optional["delivery_fee"] = deliveryFee

	for key, r := range map[string]rules.Rule{
		"promotion1":                {Selector: "div.c-flag-box > dd"},
		"official_seller_badge":     {Selector: "div.c-card-item__brand > dd > em"},
		"lowest_price_badge":        {Selector: "dd.c-card-item__lowest > span > span"},
		"price_per_unit":            {Selector: "dd.c-card-item__price-per"},
		"estimated_time_of_arrival": {Selector: "div.c-card-item__delivery > dd > em"},
	} {
		val, err := e.Text(info, r)
		if err != nil {
			return err
		}
		l.Optional[key] = val
	}
	discount, err := e.Float(info, rules.Rule{Selector: "dd.c-card-item__rate > strong", Default: 0.0})
	if err != nil {
		return err
	}
	l.Optional["discount_rate"] = discount
	promo, err := e.Int(info, rules.Rule{Selector: "dd.c-card-item__price-special > strong", Default: 0})
	if err != nil {
		return err
	}
	l.Optional["promotion2"] = promo

	if l.ThumbnailURL, err = e.URL(card, rules.Rule{Selector: "div.c-card-item__thumb > span img"}); err != nil {
		return err
	}
	if l.ListingURL, err = card.Attribute("href"); err != nil {
		return err
	}
	return nil
}

// openM11stReviews scrolls the review tab into view and clicks it, with the
// app-install popup dismissed out of the way.
func openM11stReviews(s Surface, reviewTab string) error {
	s.DismissNextDialog()
	tab, err := s.WaitClickable(reviewTab, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to locate review tab: %w", err)
	}
	if err := s.ScrollIntoView(tab); err != nil {
		return fmt.Errorf("failed to scroll to review tab: %w", err)
	}
	if err := s.ClickNode(tab); err != nil {
		return fmt.Errorf("failed to open review tab: %w", err)
	}
	time.Sleep(500 * time.Millisecond)
	return nil
}

// percentFraction parses "95%" into 0.95.
func percentFraction(text string) (float64, error) {
	val, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(text), "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse percentage %q: %w", text, err)
	}
	return val / 100, nil
}

// m11stReviewsV1 reads the card-based review markup under /products/ma/.
type m11stReviewsV1 struct {
	engine *rules.Engine
	meta   config.Marketplace
}

func (v *m11stReviewsV1) Open(s Surface) error {
	return openM11stReviews(s, "ul.c-tab__list > li:nth-child(3) > button")
}

func (v *m11stReviewsV1) ReviewSelector() string {
	return "ul.c-review-list > li > article.c-card-review"
}

func (v *m11stReviewsV1) RevealControl() string { return "" }

func (v *m11stReviewsV1) ExtractDistribution(s Surface, parent *models.Listing) (models.Distribution, error) {
	dist := models.NewDistribution()
	panel := "div#wrap > section#cts > div.c-tabpanel.active > div:nth-child(2) > div.l-grid__row"

	// The expander may be absent when there are few reviews.
	if more, err := s.WaitClickable(panel+" > button", 2*time.Second); err == nil {
		s.ClickNode(more)
		time.Sleep(500 * time.Millisecond)
	}

	root := s.Root()
	bars := rules.EvaluateMany(root, panel+" > ul.c-contents-review__point > li > div > ul > li")
	for _, bar := range bars {
		text, err := bar.Text()
		if err != nil {
			return dist, err
		}
		m := m11stRatingBarPattern.FindStringSubmatch(text)
		if m == nil {
			return dist, fmt.Errorf("unexpected rating bar text %q", text)
		}
		score, _ := strconv.Atoi(m[1])
		count, _ := strconv.ParseFloat(m[2], 64)
		dist.Ratings[score] = count
	}

	stats := rules.EvaluateMany(root, panel+" > dl.c-contents-review__stat > div.c-stat")
	for _, stat := range stats {
		key, err := v.engine.Text(stat, rules.Rule{Selector: "dt", Required: true})
		if err != nil {
			return dist, err
		}
		dist.Options[key] = map[string]float64{}
		for _, opt := range rules.EvaluateMany(stat, "dd.c-stat__detail > ul > li") {
			text, err := opt.Text()
			if err != nil {
				return dist, err
			}
			lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
			if len(lines) != 2 {
				return dist, fmt.Errorf("unexpected option stat text %q", text)
			}
			frac, err := percentFraction(lines[1])
			if err != nil {
				return dist, err
			}
			dist.Options[key][strings.TrimSpace(lines[0])] = frac
		}
	}
	return dist, nil
}

func (v *m11stReviewsV1) ExtractReview(root, card dom.Node, parent *models.Listing) (*models.Review, error) {
	e := v.engine
	r := models.NewReview(parent)

	var err error
	if r.ReviewerID, err = e.Text(card, rules.Rule{Selector: "header > div.c-profile [class='c-profile__name']"}); err != nil {
		return nil, err
	}
	if r.Rating, err = e.Float(card, rules.Rule{
		Selector:    "strong.c-starrate__review",
		ScaleFactor: v.meta.MaxReviewRating,
	}); err != nil {
		return nil, err
	}
	if r.Content, err = e.Text(card, rules.Rule{Selector: "p.c-card-review__text"}); err != nil {
		return nil, err
	}
	if r.Date, err = e.Date(card, rules.Rule{
		Selector:   "div.c-card-review__other",
		DateLayout: "2006.01.02",
	}); err != nil {
		return nil, err
	}

	summary := map[string]string{}
	for _, item := range rules.EvaluateMany(card, "ul.c-card-review__sumup > li") {
		key, err := e.Text(item, rules.Rule{Selector: "em"})
		if err != nil || key == "" {
			continue
		}
		val, _ := e.Text(item, rules.Rule{Selector: "span"})
		summary[key] = val
	}
	r.Optional["summary"] = summary

	options := map[string]string{}
	for _, item := range rules.EvaluateMany(card, "ul.c-personal-info > li") {
		key, err := e.Text(item, rules.Rule{Selector: "strong"})
		if err != nil || key == "" {
			continue
		}
		val, _ := e.Text(item, rules.Rule{Selector: "span"})
		if val == "" {
			text, _ := item.Text()
			val = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), key))
		}
		options[key] = val
	}
	r.Optional["options"] = options

	upvotes, err := e.Int(card, rules.Rule{Selector: "footer em", Default: 0})
	if err != nil {
		return nil, err
	}
	r.Optional["upvotes"] = upvotes

	badge, _ := e.Text(card, rules.Rule{Selector: "header > div.c-profile [class='c-profile__other']"})
	r.Optional["reviewer_badge"] = badge

	imageURL, _ := e.URL(card, rules.Rule{Selector: "img"})
	r.Optional["image_url"] = imageURL
	return r, nil
}

// m11stReviewsV2 reads the older review markup under /products/m/.
type m11stReviewsV2 struct {
	engine *rules.Engine
	meta   config.Marketplace
}

func (v *m11stReviewsV2) Open(s Surface) error {
	return openM11stReviews(s, "div.b_product_tab a.review")
}

func (v *m11stReviewsV2) ReviewSelector() string {
	return "div#review-list-page-area ul.lst_review > li"
}

func (v *m11stReviewsV2) RevealControl() string { return "" }

func (v *m11stReviewsV2) ExtractDistribution(s Surface, parent *models.Listing) (models.Distribution, error) {
	dist := models.NewDistribution()

	if more, err := s.WaitClickable("section#satisfyReviewTapWrap > div.satisfy_dtl > button", 2*time.Second); err == nil {
		s.ClickNode(more)
		time.Sleep(500 * time.Millisecond)
	}

	root := s.Root()
	for _, bar := range rules.EvaluateMany(root, "ul#scorePercentage > li") {
		text, err := bar.Text()
		if err != nil {
			return dist, err
		}
		lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
		if len(lines) != 2 {
			return dist, fmt.Errorf("unexpected score bar text %q", text)
		}
		score, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(lines[0]), "점"))
		if err != nil {
			return dist, fmt.Errorf("failed to parse score %q: %w", lines[0], err)
		}
		frac, err := percentFraction(lines[1])
		if err != nil {
			return dist, err
		}
		dist.Ratings[score] = frac
	}

	// Option stats render as alternating dt/dd pairs under one dl.
	graph, err := v.engine.Element(root, "dl#itemGraph")
	if err != nil {
		return dist, err
	}
	if graph != nil {
		for idx := 1; ; idx += 2 {
			key, err := v.engine.Text(graph, rules.Rule{Selector: fmt.Sprintf("dt:nth-child(%d)", idx)})
			if err != nil {
				return dist, err
			}
			if key == "" {
				break
			}
			raw, err := v.engine.Text(graph, rules.Rule{Selector: fmt.Sprintf("dd:nth-child(%d)", idx+1)})
			if err != nil {
				return dist, err
			}
			dist.Options[key] = map[string]float64{}
			lines := strings.Split(strings.TrimSpace(raw), "\n")
			for i := 0; i+1 < len(lines); i += 2 {
				frac, err := percentFraction(lines[i+1])
				if err != nil {
					return dist, err
				}
				dist.Options[key][strings.TrimSpace(lines[i])] = frac
			}
		}
	}
	return dist, nil
}

func (v *m11stReviewsV2) ExtractReview(root, card dom.Node, parent *models.Listing) (*models.Review, error) {
	e := v.engine
	r := models.NewReview(parent)

	var err error
	if r.ReviewerID, err = e.Text(card, rules.Rule{Selector: ".reviewer_info_name dd"}); err != nil {
		return nil, err
	}
	// The old markup reports percent satisfaction, not stars.
	if r.Rating, err = e.Float(card, rules.Rule{
		Selector:     ".reviewer_info_star .b_satisfy.per100",
		RemovePrefix: "만족도",
		RemoveSuffix: "%",
		ScaleFactor:  100,
	}); err != nil {
		return nil, err
	}
	if r.Content, err = e.Text(card, rules.Rule{Selector: ".con_wrp .con"}); err != nil {
		return nil, err
	}
	if r.Date, err = e.Date(card, rules.Rule{
		Selector:   ".reviewer_info_sub .date",
		DateLayout: "2006.01.02",
	}); err != nil {
		return nil, err
	}

	summary := map[string]string{}
	for _, item := range rules.EvaluateMany(card, ".reviewer_info_simple dd") {
		key, err := e.Text(item, rules.Rule{Selector: "strong"})
		if err != nil || key == "" {
			continue
		}
		text, _ := item.Text()
		summary[key] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), key))
	}
	r.Optional["summary"] = summary

	options := map[string]string{}
	for _, item := range rules.EvaluateMany(card, ".c-personal-info__item") {
		key, err := e.Text(item, rules.Rule{Selector: ".c-personal-info__title"})
		if err != nil || key == "" {
			continue
		}
		val, _ := e.Text(item, rules.Rule{Selector: ".c-personal-info__lock"})
		if val == "" {
			text, _ := item.Text()
			val = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), key))
		}
		options[key] = val
	}
	r.Optional["options"] = options

	upvotes, err := e.Int(card, rules.Rule{Selector: ".opinion .count", Default: 0})
	if err != nil {
		return nil, err
	}
	r.Optional["upvotes"] = upvotes

	badge, _ := e.Text(card, rules.Rule{Selector: ".reviewer_info_sub dd"})
	r.Optional["reviewer_badge"] = badge

	imageURL, _ := e.URL(card, rules.Rule{Selector: "ul.photo > li > a > img"})
	r.Optional["image_url"] = imageURL
	videoURL, _ := e.URL(card, rules.Rule{Selector: "ul.photo > li > a:has(span.mov)"})
	r.Optional["video_url"] = videoURL
	return r, nil
}
