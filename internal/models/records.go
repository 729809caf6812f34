package models

import (
	"time"

	"github.com/google/uuid"
)

// Optional is the open mapping of marketplace-specific attributes carried by
// listings and reviews. Keys are additive only; no consumer may require one.
type Optional map[string]any

// AppendBadges appends badge annotations, lazily initializing the sequence
// on first append. Duplicates are allowed.
func (o Optional) AppendBadges(badges ...string) {
	if len(badges) == 0 {
		return
	}
	existing, _ := o["badges"].([]string)
	o["badges"] = append(existing, badges...)
}

// Listing is one product offer discovered on a marketplace results page.
type Listing struct {
	SessionID    string    `json:"session_id" bson:"session_id"`
	Marketplace  string    `json:"marketplace" bson:"marketplace"`
	ProductName  string    `json:"product_name" bson:"product_name"`
	BrandName    string    `json:"brand_name" bson:"brand_name"`
	Query        string    `json:"query" bson:"query"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
	ListingTitle string    `json:"listing_title" bson:"listing_title"`
	SellerName   string    `json:"seller_name" bson:"seller_name"`
	ReviewCount  int       `json:"review_count" bson:"review_count"`
	Price        float64   `json:"price" bson:"price"`
	ThumbnailURL string    `json:"thumbnail_url" bson:"thumbnail_url"`
	ListingURL   string    `json:"listing_url" bson:"listing_url"`
	Date         time.Time `json:"date,omitempty" bson:"date,omitempty"`
	Optional     Optional  `json:"optional" bson:"optional"`
}

// Review is one user-submitted review attached to a listing. Common fields
// are copied from the parent listing at creation time; the pair
// (listing_url, session_id) relates the two record kinds.
type Review struct {
	SessionID    string    `json:"session_id" bson:"session_id"`
	Marketplace  string    `json:"marketplace" bson:"marketplace"`
	ProductName  string    `json:"product_name" bson:"product_name"`
	BrandName    string    `json:"brand_name" bson:"brand_name"`
	Query        string    `json:"query" bson:"query"`
	ListingTitle string    `json:"listing_title" bson:"listing_title"`
	SellerName   string    `json:"seller_name" bson:"seller_name"`
	ListingURL   string    `json:"listing_url" bson:"listing_url"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
	ReviewerID   string    `json:"reviewer_id" bson:"reviewer_id"`
	Rating       float64   `json:"rating" bson:"rating"`
	Content      string    `json:"content" bson:"content"`
	Date         time.Time `json:"date,omitempty" bson:"date,omitempty"`
	Optional     Optional  `json:"optional" bson:"optional"`
}

// Distribution is the per-listing aggregate histogram. Both maps are empty
// when the listing exposes none.
type Distribution struct {
	Ratings map[int]float64               `json:"ratings_distribution" bson:"ratings_distribution"`
	Options map[string]map[string]float64 `json:"options_distribution" bson:"options_distribution"`
}

// NewDistribution returns an empty distribution with both maps initialized.
func NewDistribution() Distribution {
	return Distribution{
		Ratings: map[int]float64{},
		Options: map[string]map[string]float64{},
	}
}

// Session is the ephemeral state of a single crawl run.
type Session struct {
	ID          string
	CurrentTime time.Time
	SearchURL   string
	Query       string
}

// NewSession generates a session id when none is supplied.
func NewSession(id string) Session {
	if id == "" {
		id = uuid.New().String()
	}
	return Session{ID: id, CurrentTime: time.Now()}
}

// NewListing creates a listing record with the session-scoped common fields
// populated and an empty optional map.
func NewListing(s Session, marketplace, productName, brandName string) *Listing {
	return &Listing{
		SessionID:   s.ID,
		Marketplace: marketplace,
		ProductName: productName,
		BrandName:   brandName,
		Query:       s.Query,
		UpdatedAt:   s.CurrentTime,
		Optional:    Optional{},
	}
}

// NewReview creates a review record inheriting its parent listing's common
// fields.
func NewReview(parent *Listing) *Review {
	return &Review{
		SessionID:    parent.SessionID,
		Marketplace:  parent.Marketplace,
		ProductName:  parent.ProductName,
		BrandName:    parent.BrandName,
		Query:        parent.Query,
		ListingTitle: parent.ListingTitle,
		SellerName:   parent.SellerName,
		ListingURL:   parent.ListingURL,
		UpdatedAt:    parent.UpdatedAt,
		Optional:     Optional{},
	}
}

// Validate reports the reasons a listing is unfit for persistence.
func (l *Listing) Validate() []string {
	var reasons []string
	if l.ListingTitle == "" {
		reasons = append(reasons, "listing title is required")
	}
	if l.ListingURL == "" {
		reasons = append(reasons, "listing URL is required")
	}
	if l.ReviewCount < 0 {
		reasons = append(reasons, "review count must be non-negative")
	}
	return reasons
}

// Validate reports the reasons a review is unfit for persistence. A review
// with no reviewer identity is a non-review artifact (e.g. a promotional
// card) and is always rejected.
func (r *Review) Validate() []string {
	var reasons []string
	if r.ReviewerID == "" {
		reasons = append(reasons, "reviewer identity is required")
	}
	if r.ListingURL == "" {
		reasons = append(reasons, "listing URL is required")
	}
	return reasons
}
