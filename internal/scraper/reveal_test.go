package scraper

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solver-ai/market-crawler/internal/dom"
	"github.com/solver-ai/market-crawler/internal/rules"
)

func itemsPage(n int) string {
	var b strings.Builder
	b.WriteString(`<ul class="goods">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<li class="item">item %d</li>`, i)
	}
	b.WriteString(`</ul><button class="more">more</button>`)
	return b.String()
}

func TestRevealTargetReached(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {itemsPage(3), itemsPage(6), itemsPage(9)},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	r := &Revealer{Surface: surface}
	elems, reason, err := r.Reveal("li.item", "button.more", 5)
	require.NoError(t, err)
	assert.Equal(t, ReasonTargetReached, reason)
	assert.Len(t, elems, 5)
	assert.Equal(t, 1, surface.clicks)
}

func TestRevealStableBelowTarget(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {itemsPage(3), itemsPage(4)},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	r := &Revealer{Surface: surface}
	elems, reason, err := r.Reveal("li.item", "button.more", 50)
	require.NoError(t, err)
	assert.Equal(t, ReasonStable, reason)
	assert.Len(t, elems, 4)
}

func TestRevealScrollFallbackWithoutControl(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {itemsPage(2), itemsPage(4)},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	r := &Revealer{Surface: surface}
	elems, reason, err := r.Reveal("li.item", "", 4)
	require.NoError(t, err)
	assert.Equal(t, ReasonTargetReached, reason)
	assert.Len(t, elems, 4)
	assert.Equal(t, 1, surface.scrolls)
	assert.Zero(t, surface.clicks)
}

func TestRevealControlTimeoutReturnsPartial(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {itemsPage(3), itemsPage(6)},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))
	surface.unclickable["button.more"] = true

	r := &Revealer{Surface: surface}
	elems, reason, err := r.Reveal("li.item", "button.more", 50)
	require.NoError(t, err)
	assert.Equal(t, ReasonControlTimeout, reason)
	assert.Len(t, elems, 3)
}

func TestRevealNothingVisibleIsFailure(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {`<div class="empty"></div>`},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	r := &Revealer{Surface: surface}
	_, _, err := r.Reveal("li.item", "", 5)
	var notFound *rules.ElementNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "li.item", notFound.Selector)
	assert.Equal(t, "https://shop.test/search", notFound.URL)
}

func TestRevealUnboundedStopsWhenStable(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {itemsPage(3), itemsPage(6), itemsPage(6)},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	r := &Revealer{Surface: surface}
	elems, reason, err := r.Reveal("li.item", "button.more", Unbounded)
	require.NoError(t, err)
	assert.Equal(t, ReasonStable, reason)
	assert.Len(t, elems, 6)
}

func TestRevealVisitSeesEachElementOnce(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {itemsPage(2), itemsPage(5), itemsPage(5)},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	var texts []string
	visit := func(unseen []dom.Node) error {
		for _, n := range unseen {
			text, err := n.Text()
			if err != nil {
				return err
			}
			texts = append(texts, text)
		}
		return nil
	}

	r := &Revealer{Surface: surface}
	n, reason, err := r.RevealVisit("li.item", "button.more", Unbounded, visit)
	require.NoError(t, err)
	assert.Equal(t, ReasonStable, reason)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"item 0", "item 1", "item 2", "item 3", "item 4"}, texts)
}
