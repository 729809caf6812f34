package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pagingWindow = `
	<div class="paging">
		<a class="page-1">1</a>
		<a class="page-2">2</a>
		<button class="more-pages">next window</button>
	</div>`

const pagingWindowExpanded = `
	<div class="paging">
		<a class="page-2">2</a>
		<a class="page-3">3</a>
	</div>`

func TestAdvanceDirectControl(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {pagingWindow},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	p := &Paginator{Surface: surface}
	page, ok := p.Advance(1, "a.page-%d", "button.more-pages")
	assert.True(t, ok)
	assert.Equal(t, 2, page)
	assert.Equal(t, 1, surface.clicks)
}

func TestAdvanceThroughOverflowWindow(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {pagingWindow, pagingWindowExpanded},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	p := &Paginator{Surface: surface}
	// Page 3's control is outside the first window; the overflow control
	// reveals it and the direct control resolves on the retry.
	page, ok := p.Advance(2, "a.page-%d", "button.more-pages")
	assert.True(t, ok)
	assert.Equal(t, 3, page)
	assert.Equal(t, 2, surface.clicks)
}

func TestAdvanceExhausted(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {pagingWindowExpanded},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	p := &Paginator{Surface: surface}
	page, ok := p.Advance(3, "a.page-%d", "button.more-pages")
	assert.False(t, ok)
	assert.Equal(t, 3, page)
}

func TestAdvanceWithoutOverflowControl(t *testing.T) {
	surface := newFakeSurface(t, map[string][]string{
		"https://shop.test/search": {pagingWindowExpanded},
	})
	require.NoError(t, surface.Navigate("https://shop.test/search"))

	p := &Paginator{Surface: surface}
	_, ok := p.Advance(3, "a.page-%d", "")
	assert.False(t, ok)
	assert.Zero(t, surface.clicks)
}
