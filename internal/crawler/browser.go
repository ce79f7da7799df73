package crawler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"djeworker/internal/config"
	"djeworker/internal/logger"
	"djeworker/pkg/utils"
)

// ErrBrowserClosed is returned when a closed session is used.
var ErrBrowserClosed = errors.New("browser session closed")

// BrowserSession owns one headless Chrome instance. It is used to obtain the
// session cookies the DJE expects and to render pages whose text cannot be
// fetched directly.
type BrowserSession struct {
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	logger        *logger.Logger
	timeout       time.Duration
	mu            sync.Mutex
	started       bool
	closed        bool
}

// NewBrowserSession starts the browser allocator. Chrome itself is launched
// lazily by the first action.
func NewBrowserSession(cfg config.BrowserConfig, userAgent string, log *logger.Logger) *BrowserSession {
	if userAgent == "" {
		userAgent = utils.DefaultUserAgent
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	timeout := cfg.GetTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &BrowserSession{
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		logger:        log,
		timeout:       timeout,
	}
}

// run executes actions in the browser, bounded by the session timeout and ctx.
func (b *BrowserSession) run(ctx context.Context, actions ...chromedp.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrowserClosed
	}

	// The browser lives as long as the context of its first Run.
	if !b.started {
		if err := chromedp.Run(b.browserCtx); err != nil {
			return fmt.Errorf("browser start: %w", err)
		}

		b.started = true
	}

	runCtx, cancel := context.WithTimeout(b.browserCtx, b.timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("browser: %w", err)
	}

	return nil
}

// Cookies opens pageURL and returns the cookies the site set for it.
func (b *BrowserSession) Cookies(ctx context.Context, pageURL string) ([]*http.Cookie, error) {
	var cdpCookies []*network.Cookie

	err := b.run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cdpCookies, err = network.GetCookies().WithURLs([]string{pageURL}).Do(ctx)

			return err
		}),
	)
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(cdpCookies))
	for _, c := range cdpCookies {
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}

		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			cookie.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}

		cookies = append(cookies, cookie)
	}

	if b.logger != nil {
		b.logger.Debug("Browser session cookies collected", "url", pageURL, "count", len(cookies))
	}

	return cookies, nil
}

// RenderHTML navigates to pageURL and returns the rendered document.
func (b *BrowserSession) RenderHTML(ctx context.Context, pageURL string) (string, error) {
	var html string

	err := b.run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}

	return html, nil
}

// RenderText renders pageURL and extracts its readable text.
func (b *BrowserSession) RenderText(ctx context.Context, pageURL string) (string, error) {
	html, err := b.RenderHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}

	return ExtractHTMLText(html, pageURL)
}

// Close shuts the browser down. It is safe to call more than once.
func (b *BrowserSession) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.cancelBrowser()
	b.cancelAlloc()
}
