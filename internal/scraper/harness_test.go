package scraper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solver-ai/market-crawler/internal/dom"
)

// fakeSurface serves canned HTML snapshots per URL. Each click or scroll
// advances the current URL's snapshot, imitating lazily growing pages.
type fakeSurface struct {
	t     *testing.T
	pages map[string][]string

	current string
	idx     int

	navigated   []string
	clicks      int
	scrolls     int
	closeCalls  int
	navigateErr map[string]error
	// selectors that never become clickable on any page
	unclickable map[string]bool
}

func newFakeSurface(t *testing.T, pages map[string][]string) *fakeSurface {
	return &fakeSurface{
		t:           t,
		pages:       pages,
		navigateErr: map[string]error{},
		unclickable: map[string]bool{},
	}
}

func (f *fakeSurface) Navigate(url string) error {
	if err := f.navigateErr[url]; err != nil {
		return err
	}
	if _, ok := f.pages[url]; !ok {
		return fmt.Errorf("no page for %s", url)
	}
	f.current = url
	f.idx = 0
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeSurface) CurrentURL() string { return f.current }

func (f *fakeSurface) Root() dom.Node {
	snapshots := f.pages[f.current]
	require.NotEmpty(f.t, snapshots, "no snapshots for %s", f.current)
	idx := f.idx
	if idx >= len(snapshots) {
		idx = len(snapshots) - 1
	}
	root, err := dom.ParseHTML(snapshots[idx])
	require.NoError(f.t, err)
	return root
}

func (f *fakeSurface) FindAll(selector string) ([]dom.Node, error) {
	return f.Root().FindAll(selector)
}

func (f *fakeSurface) WaitClickable(selector string, timeout time.Duration) (dom.Node, error) {
	if f.unclickable[selector] {
		return nil, fmt.Errorf("element %q not clickable within %s", selector, timeout)
	}
	n, err := f.Root().Find(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q not clickable within %s", selector, timeout)
	}
	return n, nil
}

func (f *fakeSurface) ClickNode(n dom.Node) error {
	f.clicks++
	f.advance()
	return nil
}

func (f *fakeSurface) ScrollIntoView(n dom.Node) error {
	f.scrolls++
	f.advance()
	return nil
}

func (f *fakeSurface) advance() {
	if f.idx < len(f.pages[f.current])-1 {
		f.idx++
	}
}

func (f *fakeSurface) AcceptNextDialog()  {}
func (f *fakeSurface) DismissNextDialog() {}

func (f *fakeSurface) Close() error {
	f.closeCalls++
	return nil
}

// memStore collects inserted documents per index.
type memStore struct {
	mu   sync.Mutex
	docs map[string][]any
	err  error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]any{}}
}

func (s *memStore) InsertDocument(ctx context.Context, doc any, index string) error {
	return s.InsertDocuments(ctx, []any{doc}, index)
}

func (s *memStore) InsertDocuments(ctx context.Context, docs []any, index string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[index] = append(s.docs[index], docs...)
	return nil
}

func (s *memStore) Close(ctx context.Context) error { return nil }
