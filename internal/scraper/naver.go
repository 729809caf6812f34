package scraper

import (
	"fmt"
	"strings"

	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/models"
	"github.com/solver-ai/market-crawler/internal/rules"
)

// Naver Shopping is a meta-search: its result cards link out to other malls,
// so reviews are not readable from here and the profile carries no review
// rulesets. Cards that merely redirect to marketplaces crawled directly are
// filtered out to avoid double counting.

// NewNaverProfile builds the naver shopping crawl profile.
func NewNaverProfile(engine *rules.Engine, meta config.Marketplace, knownMarketplaces []string) Profile {
	return Profile{
		Marketplace:     "navershopping",
		SearchURL:       meta.SearchURL,
		ListingSelector: "div[class^='listContainer_list_inner'] > div",
		PageControl:     "div[class^='paginator_paginator'] a[data-page='%d']",
		ExtractListing: func(card dom.Node, l *models.Listing) error {
			return extractNaverListing(engine, meta, card, l)
		},
		KeepListing: func(l *models.Listing, productName string) bool {
			return keepNaverListing(l, productName, knownMarketplaces)
		},
	}
}

func extractNaverListing(e *rules.Engine, meta config.Marketplace, card dom.Node, l *models.Listing) error {
	main, err := e.Element(card, "div[class^='product_info_main']")
	if err != nil {
		return fmt.Errorf("failed to locate card body: %w", err)
	}
	if main == nil {
		return fmt.Errorf("card has no body")
	}

	label, err := e.Text(main, rules.Rule{
		Selector: "span[class^='product_info_tit'] > span[class^='product_label']",
	})
	if err != nil {
		return err
	}
	l.Optional["label"] = label

	title, err := e.Text(main, rules.Rule{
		Selector:     "span[class^='product_info_tit']",
		RemovePrefix: label,
	})
	if err != nil {
		return err
	}
	l.ListingTitle = title

	rating, err := e.Float(main, rules.Rule{
		Selector: "div[class^='product_info_count'] > span[class^='product_grade'] > strong",
	})
	if err != nil {
		return err
	}
	l.Optional["average_rating"] = rating

	count, err := e.Int(main, rules.Rule{
		Selector: "div[class^='product_info_count'] > span[class^='product_grade'] > em",
		Default:  0,
	})
	if err != nil {
		return err
	}
	l.ReviewCount = count

	price, err := e.Float(main, rules.Rule{
		Selector:     "div[class^='product_price'] > span[class^='product_num']",
		RemoveSuffix: meta.Currency,
	})
	if err != nil {
		return err
	}
	l.Price = price

	deliveryTag, err := e.Text(main, rules.Rule{
		Selector: "div[class^='product_price'] > span[class^='product_delivery'] > span[class^='blind']",
	})
	if err != nil {
		return err
	}
	deliveryFee, err := e.Int(main, rules.Rule{
		Selector:     "div[class^='product_price'] > span[class^='product_delivery']",
		RemovePrefix: deliveryTag,
		RemoveSuffix: meta.Currency,
		Default:      0,
	})
	if err != nil {
		return err
	}
	l.Optional["delivery_fee"] = deliveryFee

	seller, err := e.Text(main, rules.Rule{
		Selector: "div[class^='product_info_area'] > div[class^='product_link_mall']",
	})
	if err != nil {
		return err
	}
	l.SellerName = seller

	if l.ThumbnailURL, err = e.URL(main, rules.Rule{Selector: "span[class^='product_img_area'] > img"}); err != nil {
		return err
	}
	if l.ListingURL, err = e.URL(main, rules.Rule{Selector: "a"}); err != nil {
		return err
	}

	// Expanded spec rows (origin, model year and the like) ride along as
	// open key-value pairs.
	etc := map[string]string{}
	for _, row := range rules.EvaluateMany(card,
		"div[class^='productExpandSub_info_sub'] > div[class^='expandList_info_sub_list'] > dl") {
		key, err := e.Text(row, rules.Rule{Selector: "dt"})
		if err != nil || key == "" {
			continue
		}
		val, _ := e.Text(row, rules.Rule{Selector: "dd"})
		etc[key] = val
	}
	l.Optional["etc"] = etc
	return nil
}

// keepNaverListing keeps cards whose title contains every word of the
// product name and whose seller is not a marketplace crawled directly.
// Comparison is case-insensitive with spaces removed.
func keepNaverListing(l *models.Listing, productName string, knownMarketplaces []string) bool {
	normalize := func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, " ", ""))
	}
	title := normalize(l.ListingTitle)
	for _, word := range strings.Fields(strings.ToLower(productName)) {
		if !strings.Contains(title, word) {
			return false
		}
	}
	seller := normalize(l.SellerName)
	for _, known := range knownMarketplaces {
		if normalize(known) != "" && strings.Contains(seller, normalize(known)) {
			return false
		}
	}
	return true
}
