// Package browser owns the live rendering session: a single playwright page
// whose document tree is exposed through the dom.Node abstraction. All
// navigation is sequential through one session; it is never shared.
package browser

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/solver-ai/market-crawler/internal/dom"
)

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	TimezoneID     string
	ProxyServer    string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  412,
		ViewportHeight: 915,
		Locale:         "ko-KR",
		TimezoneID:     "Asia/Seoul",
	}
}

// Session is a controllable handle to the browser engine. It is a scoped
// resource: acquired once per crawl, released exactly once via Close.
type Session struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	context   playwright.BrowserContext
	page      playwright.Page
	logger    *slog.Logger
	timeout   time.Duration
	closeOnce sync.Once
	closeErr  error

	dialogMu     sync.Mutex
	dialogAction string
}

// New acquires a rendering session. Any failure here is fatal for the whole
// crawl: nothing can be extracted without a live session.
func New(opts *Options) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-gpu",
			"--user-agent=" + opts.UserAgent,
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:  playwright.String(opts.UserAgent),
		Locale:     playwright.String(opts.Locale),
		TimezoneId: playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	})
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	s := &Session{
		pw:      pw,
		browser: b,
		context: context,
		page:    page,
		logger:  slog.Default().With("component", "browser"),
		timeout: opts.Timeout,
	}
	page.OnDialog(s.handleDialog)
	return s, nil
}

// Navigate loads a URL and waits for the DOM to be ready.
func (s *Session) Navigate(url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the URL of the current page.
func (s *Session) CurrentURL() string {
	return s.page.URL()
}

// Root returns the document root of the current page.
func (s *Session) Root() dom.Node {
	return &node{loc: s.page.Locator("html")}
}

// Find returns the first element matching selector on the current page.
func (s *Session) Find(selector string) (dom.Node, error) {
	return s.Root().Find(selector)
}

// FindAll returns every element matching selector on the current page.
func (s *Session) FindAll(selector string) ([]dom.Node, error) {
	return s.Root().FindAll(selector)
}

// WaitClickable waits until the first element matching selector is visible,
// bounded by timeout. A timeout is reported as an error; callers treat it as
// "not available" rather than hanging.
func (s *Session) WaitClickable(selector string, timeout time.Duration) (dom.Node, error) {
	loc := s.page.Locator(selector).First()
	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("element %q not clickable within %s: %w", selector, timeout, err)
	}
	return &node{loc: loc}, nil
}

// Click waits for the selector to be clickable, then clicks it.
func (s *Session) Click(selector string, timeout time.Duration) error {
	n, err := s.WaitClickable(selector, timeout)
	if err != nil {
		return err
	}
	return s.ClickNode(n)
}

// ClickNode clicks an element. When a regular click is intercepted by an
// overlay, a script click is issued instead.
func (s *Session) ClickNode(n dom.Node) error {
	pn, ok := n.(*node)
	if !ok {
		return fmt.Errorf("cannot click node of type %T", n)
	}
	err := pn.loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		if _, evalErr := pn.loc.Evaluate("el => el.click()", nil); evalErr != nil {
			return fmt.Errorf("failed to click element: %w", err)
		}
	}
	return nil
}

// ScrollIntoView scrolls an element into the viewport.
func (s *Session) ScrollIntoView(n dom.Node) error {
	pn, ok := n.(*node)
	if !ok {
		return fmt.Errorf("cannot scroll node of type %T", n)
	}
	err := pn.loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to scroll element into view: %w", err)
	}
	return nil
}

// AcceptNextDialog accepts the next alert/confirm dialog the page raises.
func (s *Session) AcceptNextDialog() {
	s.setDialogAction("accept")
}

// DismissNextDialog dismisses the next alert/confirm dialog the page raises.
func (s *Session) DismissNextDialog() {
	s.setDialogAction("dismiss")
}

func (s *Session) setDialogAction(action string) {
	s.dialogMu.Lock()
	s.dialogAction = action
	s.dialogMu.Unlock()
}

func (s *Session) handleDialog(d playwright.Dialog) {
	s.dialogMu.Lock()
	action := s.dialogAction
	s.dialogAction = ""
	s.dialogMu.Unlock()

	s.logger.Debug("dialog raised", "type", d.Type(), "message", d.Message(), "action", action)
	if action == "accept" {
		d.Accept()
		return
	}
	d.Dismiss()
}

// Close releases the session. It is safe to call from multiple exit paths;
// the underlying resources are released exactly once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.context != nil {
			if err := s.context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close context: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
		}
		if s.pw != nil {
			if err := s.pw.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
			}
		}
		if len(errs) > 0 {
			s.closeErr = fmt.Errorf("errors during close: %v", errs)
		}
	})
	return s.closeErr
}
