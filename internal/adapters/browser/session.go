// Package browser drives a Chromium page through playwright and reports what each
// operation left on screen.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/bnema/xhs-pilot/internal/adapters/session/file"
	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/logging"
	"github.com/bnema/xhs-pilot/internal/ports"
)

const (
	DefaultTimeout        = 60 * time.Second
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080

	networkIdleTimeout = 8 * time.Second
	feedScrollAttempts = 3
	feedScrollDelta    = 800
	feedScrollPause    = 1500 * time.Millisecond
)

type Options struct {
	Headless bool
	Timeout  time.Duration
	// Install downloads the playwright driver and Chromium before starting.
	Install bool
	Logger  *slog.Logger
}

// Session owns one browser, one context and one page for the lifetime of a command.
// Cookies are loaded from the session store on start and written back on Close.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	sessions ports.SessionStore
	logger   *slog.Logger
}

var (
	_ ports.Browser    = (*Session)(nil)
	_ ports.FeedSource = (*Session)(nil)
)

func Start(ctx context.Context, sessions ports.SessionStore, opts Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	s := &Session{pw: pw, browser: browser, context: browserContext, sessions: sessions, logger: logger}
	if err := s.loadCookies(ctx); err != nil {
		s.shutdown()
		return nil, err
	}

	page, err := browserContext.NewPage()
	if err != nil {
		s.shutdown()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
	s.page = page

	return s, nil
}

// Close saves the current cookies and releases the browser.
func (s *Session) Close(ctx context.Context) error {
	err := s.saveCookies(ctx)
	s.shutdown()
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) (domain.PageSignal, error) {
	if err := ctx.Err(); err != nil {
		return domain.PageSignal{}, err
	}

	waitUntil := playwright.WaitUntilState("domcontentloaded")
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{WaitUntil: &waitUntil}); err != nil {
		return s.signal(), fmt.Errorf("navigate to %s: %w", url, err)
	}

	idle := playwright.LoadState("networkidle")
	// Pages with long-polling never go idle; the wait is best effort.
	_ = s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &idle,
		Timeout: playwright.Float(float64(networkIdleTimeout.Milliseconds())),
	})

	return s.signal(), nil
}

func (s *Session) Click(ctx context.Context, selector string) (domain.PageSignal, error) {
	if err := ctx.Err(); err != nil {
		return domain.PageSignal{}, err
	}

	if err := s.page.Locator(selector).First().Click(); err != nil {
		return s.signal(), fmt.Errorf("click %s: %w", selector, err)
	}

	return s.signal(), nil
}

func (s *Session) TypeText(ctx context.Context, selector string, text string, perRune time.Duration) (domain.PageSignal, error) {
	if err := ctx.Err(); err != nil {
		return domain.PageSignal{}, err
	}

	field := s.page.Locator(selector).First()
	if err := field.Click(); err != nil {
		return s.signal(), fmt.Errorf("focus %s: %w", selector, err)
	}

	err := field.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(float64(perRune.Milliseconds())),
	})
	if err != nil {
		return s.signal(), fmt.Errorf("type into %s: %w", selector, err)
	}

	return s.signal(), nil
}

func (s *Session) Submit(ctx context.Context, selector string) (domain.PageSignal, error) {
	return s.Click(ctx, selector)
}

func (s *Session) UploadFiles(ctx context.Context, selector string, paths []string) (domain.PageSignal, error) {
	if err := ctx.Err(); err != nil {
		return domain.PageSignal{}, err
	}

	if err := s.page.Locator(selector).First().SetInputFiles(paths); err != nil {
		return s.signal(), fmt.Errorf("upload %d files: %w", len(paths), err)
	}

	return s.signal(), nil
}

func (s *Session) InteractState(ctx context.Context, feedID string) (domain.InteractState, error) {
	if err := ctx.Err(); err != nil {
		return domain.InteractState{}, err
	}

	raw, err := s.page.Evaluate(interactStateScript, feedID)
	if err == nil {
		if text, ok := raw.(string); ok {
			if state, ok := parseInteractState(text); ok {
				return state, nil
			}
		}
	}

	html, err := s.page.Content()
	if err != nil {
		s.logger.Debug("read interact state", "feed", feedID, "error", err)
		return domain.InteractState{}, nil
	}
	return interactStateFromHTML(html), nil
}

// Feeds reads note references from the page that is currently open, scrolling a
// few times when fewer than limit are visible.
func (s *Session) Feeds(ctx context.Context, limit int) ([]domain.FeedRef, error) {
	feeds, err := s.visibleFeeds()
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < feedScrollAttempts && len(feeds) < limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.page.Mouse().Wheel(0, feedScrollDelta); err != nil {
			break
		}
		s.page.WaitForTimeout(float64(feedScrollPause.Milliseconds()))

		more, err := s.visibleFeeds()
		if err != nil {
			return nil, err
		}
		if len(more) > len(feeds) {
			feeds = more
		}
	}

	if limit >= 0 && len(feeds) > limit {
		feeds = feeds[:limit]
	}
	s.logger.Debug("feeds collected", "count", len(feeds), "limit", limit)
	return feeds, nil
}

func (s *Session) visibleFeeds() ([]domain.FeedRef, error) {
	raw, err := s.page.Evaluate(feedStateScript)
	if err == nil {
		if text, ok := raw.(string); ok {
			feeds, parseErr := parseStateFeeds(text)
			if parseErr == nil && len(feeds) > 0 {
				return feeds, nil
			}
		}
	}

	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("read explore page: %w", err)
	}
	return feedsFromHTML(html)
}

// signal never fails: a page that cannot be read yields only its URL.
func (s *Session) signal() domain.PageSignal {
	url := s.page.URL()
	title, _ := s.page.Title()

	html, err := s.page.Content()
	if err != nil {
		s.logger.Debug("read page content", "url", url, "error", err)
		return domain.PageSignal{URL: url, Title: title}
	}

	signal, err := signalFromHTML(url, title, html)
	if err != nil {
		s.logger.Debug("parse page content", "url", url, "error", err)
	}
	return signal
}

func (s *Session) loadCookies(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}

	raw, err := s.sessions.Get(ctx, file.CookiesKey)
	if err != nil {
		if errors.Is(err, file.ErrSessionNotFound) {
			s.logger.Info("no saved session, starting logged out")
			return nil
		}
		return fmt.Errorf("load session cookies: %w", err)
	}

	cookies, err := ParseCookies([]byte(raw))
	if err != nil {
		return fmt.Errorf("load session cookies: %w", err)
	}
	if len(cookies) == 0 {
		return nil
	}

	if err := s.context.AddCookies(toOptionalCookies(cookies)); err != nil {
		return fmt.Errorf("add session cookies: %w", err)
	}
	s.logger.Info("session cookies loaded", "count", len(cookies))
	return nil
}

func (s *Session) saveCookies(ctx context.Context) error {
	if s.sessions == nil || s.context == nil {
		return nil
	}

	cookies, err := s.context.Cookies()
	if err != nil {
		return fmt.Errorf("read session cookies: %w", err)
	}

	data, err := EncodeCookies(fromPlaywrightCookies(cookies))
	if err != nil {
		return err
	}

	if err := s.sessions.Put(ctx, file.CookiesKey, data); err != nil {
		return fmt.Errorf("save session cookies: %w", err)
	}
	s.logger.Info("session cookies saved", "count", len(cookies))
	return nil
}

func (s *Session) shutdown() {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.context != nil {
		_ = s.context.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pw != nil {
		_ = s.pw.Stop()
	}
}
