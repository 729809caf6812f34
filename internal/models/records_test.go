package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionGeneratesID(t *testing.T) {
	s := NewSession("")
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.CurrentTime.IsZero())

	fixed := NewSession("run-42")
	assert.Equal(t, "run-42", fixed.ID)
}

func TestNewListingInheritsSessionFields(t *testing.T) {
	s := NewSession("run-1")
	s.Query = "센카 퍼펙트휩"

	l := NewListing(s, "danawa", "퍼펙트휩", "센카")
	assert.Equal(t, "run-1", l.SessionID)
	assert.Equal(t, "danawa", l.Marketplace)
	assert.Equal(t, "퍼펙트휩", l.ProductName)
	assert.Equal(t, "센카", l.BrandName)
	assert.Equal(t, s.Query, l.Query)
	assert.Equal(t, s.CurrentTime, l.UpdatedAt)
	require.NotNil(t, l.Optional)
}

func TestNewReviewInheritsParentFields(t *testing.T) {
	s := NewSession("run-1")
	l := NewListing(s, "m11st", "p", "b")
	l.ListingTitle = "title"
	l.SellerName = "seller"
	l.ListingURL = "https://x.test/1"

	r := NewReview(l)
	assert.Equal(t, l.SessionID, r.SessionID)
	assert.Equal(t, l.Marketplace, r.Marketplace)
	assert.Equal(t, l.ListingTitle, r.ListingTitle)
	assert.Equal(t, l.SellerName, r.SellerName)
	assert.Equal(t, l.ListingURL, r.ListingURL)
	assert.Equal(t, l.UpdatedAt, r.UpdatedAt)
	require.NotNil(t, r.Optional)

	// The pair relating reviews back to their listing.
	assert.Equal(t, l.ListingURL, r.ListingURL)
	assert.Equal(t, l.SessionID, r.SessionID)
}

func TestAppendBadges(t *testing.T) {
	o := Optional{}
	o.AppendBadges()
	assert.NotContains(t, o, "badges")

	o.AppendBadges("lowest_price")
	o.AppendBadges("official", "lowest_price")
	assert.Equal(t, []string{"lowest_price", "official", "lowest_price"}, o["badges"])
}

func TestListingValidate(t *testing.T) {
	valid := &Listing{ListingTitle: "t", ListingURL: "https://x.test", ReviewCount: 3}
	assert.Empty(t, valid.Validate())

	invalid := &Listing{ReviewCount: -1}
	reasons := invalid.Validate()
	assert.Len(t, reasons, 3)
}

func TestReviewValidateRejectsAnonymous(t *testing.T) {
	r := &Review{ListingURL: "https://x.test", Rating: 0.8, Date: time.Now()}
	assert.NotEmpty(t, r.Validate())

	r.ReviewerID = "buyer-1"
	assert.Empty(t, r.Validate())
}

func TestNewDistributionIsEmptyNotNil(t *testing.T) {
	d := NewDistribution()
	require.NotNil(t, d.Ratings)
	require.NotNil(t, d.Options)
	assert.Empty(t, d.Ratings)
	assert.Empty(t, d.Options)
}
