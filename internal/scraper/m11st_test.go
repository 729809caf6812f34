package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solver-ai/market-crawler/internal/config"
	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/models"
	"github.com/solver-ai/market-crawler/internal/rules"
)

const m11stV1ReviewCard = `
<ul class="c-review-list">
	<li>
		<article class="c-card-review">
			<header>
				<div class="c-profile">
					<span class="c-profile__name">buy***er</span>
					<span class="c-profile__other">톡톡 리뷰어</span>
				</div>
			</header>
			<strong class="c-starrate__review">4.5</strong>
			<p class="c-card-review__text">거품이 잘 나요</p>
			<div class="c-card-review__other">2024.07.15</div>
			<ul class="c-card-review__sumup">
				<li><em>세정력</em><span>만족해요</span></li>
			</ul>
			<ul class="c-personal-info">
				<li><strong>피부타입</strong><span>복합성</span></li>
			</ul>
			<footer><em>3</em></footer>
		</article>
	</li>
</ul>`

const m11stV2ReviewCard = `
<div id="review-list-page-area">
	<ul class="lst_review">
		<li>
			<div class="reviewer_info_name"><dt>구매자</dt><dd>review_user</dd></div>
			<div class="reviewer_info_star"><span class="b_satisfy per100">만족도 95%</span></div>
			<div class="reviewer_info_sub"><span class="date">2023.12.01</span><dd>일반구매</dd></div>
			<div class="con_wrp"><div class="con">배송이 빨라요</div></div>
		</li>
	</ul>
</div>`

func m11stMeta() config.Marketplace {
	return config.Marketplace{Currency: "원", MaxListingRating: 100, MaxReviewRating: 5}
}

func m11stParent(t *testing.T) *models.Listing {
	l := models.NewListing(models.NewSession("run-1"), "m11st", "퍼펙트휩", "센카")
	l.ListingTitle = "센카 퍼펙트휩 120g"
	l.ListingURL = "https://m.11st.co.kr/products/ma/1"
	return l
}

func TestM11stV1ExtractReview(t *testing.T) {
	root, err := dom.ParseHTML(m11stV1ReviewCard)
	require.NoError(t, err)
	card, err := root.Find("article.c-card-review")
	require.NoError(t, err)

	ruleset := &m11stReviewsV1{engine: &rules.Engine{}, meta: m11stMeta()}
	r, err := ruleset.ExtractReview(root, card, m11stParent(t))
	require.NoError(t, err)

	assert.Equal(t, "buy***er", r.ReviewerID)
	// Stars out of five normalize to the common [0,1] scale.
	assert.Equal(t, 0.9, r.Rating)
	assert.Equal(t, "거품이 잘 나요", r.Content)
	assert.Equal(t, 2024, r.Date.Year())
	assert.Equal(t, 7, int(r.Date.Month()))
	assert.Equal(t, 15, r.Date.Day())
	assert.Equal(t, map[string]string{"세정력": "만족해요"}, r.Optional["summary"])
	assert.Equal(t, map[string]string{"피부타입": "복합성"}, r.Optional["options"])
	assert.Equal(t, 3, r.Optional["upvotes"])
	assert.Equal(t, "톡톡 리뷰어", r.Optional["reviewer_badge"])
	assert.Empty(t, r.Validate())
}

func TestM11stV2ExtractReview(t *testing.T) {
	root, err := dom.ParseHTML(m11stV2ReviewCard)
	require.NoError(t, err)
	card, err := root.Find("ul.lst_review > li")
	require.NoError(t, err)

	ruleset := &m11stReviewsV2{engine: &rules.Engine{}, meta: m11stMeta()}
	r, err := ruleset.ExtractReview(root, card, m11stParent(t))
	require.NoError(t, err)

	assert.Equal(t, "review_user", r.ReviewerID)
	// Percent satisfaction lands on the same [0,1] scale as the star ratings.
	assert.Equal(t, 0.95, r.Rating)
	assert.Equal(t, "배송이 빨라요", r.Content)
	assert.Equal(t, 2023, r.Date.Year())
	assert.Equal(t, 12, int(r.Date.Month()))
	assert.Equal(t, 1, r.Date.Day())
	assert.Equal(t, "일반구매", r.Optional["reviewer_badge"])
	assert.Empty(t, r.Validate())
}

func TestM11stVersionDispatch(t *testing.T) {
	p := NewM11stProfile(&rules.Engine{}, m11stMeta())

	assert.IsType(t, &m11stReviewsV1{}, p.DispatchRuleset("https://m.11st.co.kr/products/ma/1234567"))
	assert.IsType(t, &m11stReviewsV2{}, p.DispatchRuleset("https://m.11st.co.kr/products/m/1234567"))
	assert.Nil(t, p.DispatchRuleset("https://m.11st.co.kr/browsing/1234567"))
}

func TestPercentFraction(t *testing.T) {
	frac, err := percentFraction("95%")
	require.NoError(t, err)
	assert.Equal(t, 0.95, frac)

	frac, err = percentFraction(" 100% ")
	require.NoError(t, err)
	assert.Equal(t, 1.0, frac)

	_, err = percentFraction("만족")
	assert.Error(t, err)
}
