package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"djeworker/internal/config"
	"djeworker/internal/logger"
	"djeworker/internal/models"
)

// Text strategy names, in fallback order.
const (
	StrategyPDF     = "pdf"
	StrategyHTML    = "html"
	StrategyBrowser = "browser"
)

// ErrTextTooShort marks an extraction whose text is too short to hold a record.
var ErrTextTooShort = errors.New("extracted text too short")

type textStrategy struct {
	fetch func(ctx context.Context, loc models.Locator) (string, int, error)
	name  string
}

// DJESource fetches pages from the DJE-SP website. Each page is tried as a
// single-page PDF, then as the HTML viewer, then rendered by the browser when
// a session is available.
type DJESource struct {
	scraper       *Scraper
	endpoints     *Endpoints
	browser       *BrowserSession
	attempts      *AttemptLog
	logger        *logger.Logger
	strategies    []textStrategy
	minTextLength int
	maxPages      int
	delay         time.Duration
	lastFetch     time.Time
}

// NewDJESource creates a DJE source. browser may be nil.
func NewDJESource(cfg *config.SourceConfig, scraper *Scraper, browser *BrowserSession, log *logger.Logger) (*DJESource, error) {
	endpoints, err := NewEndpoints(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	s := &DJESource{
		scraper:       scraper,
		endpoints:     endpoints,
		browser:       browser,
		attempts:      NewAttemptLog(),
		logger:        log,
		minTextLength: cfg.MinTextLength,
		maxPages:      cfg.MaxPagesPerIssue,
		delay:         cfg.GetRequestDelay(),
	}

	s.strategies = []textStrategy{
		{name: StrategyPDF, fetch: s.fromPDF},
		{name: StrategyHTML, fetch: s.fromHTML},
	}

	if browser != nil {
		s.strategies = append(s.strategies, textStrategy{name: StrategyBrowser, fetch: s.fromBrowser})
	}

	return s, nil
}

// Endpoints returns the URL builder of the source.
func (s *DJESource) Endpoints() *Endpoints {
	return s.endpoints
}

// Attempts returns the extraction attempt log.
func (s *DJESource) Attempts() *AttemptLog {
	return s.attempts
}

// Open primes the HTTP client with the cookies of a browser session.
func (s *DJESource) Open(ctx context.Context) error {
	if s.browser == nil {
		return nil
	}

	cookies, err := s.browser.Cookies(ctx, s.endpoints.Index())
	if err != nil {
		return fmt.Errorf("collect session cookies: %w", err)
	}

	s.scraper.SetCookies(s.endpoints.Base(), cookies)

	return nil
}

// FetchPage returns the text of the page at loc, trying each strategy in order.
func (s *DJESource) FetchPage(ctx context.Context, loc models.Locator) (string, error) {
	if loc.IsLocal() {
		return "", fmt.Errorf("%w: %s is not a DJE page", ErrPageAbsent, loc)
	}

	if err := s.throttle(ctx); err != nil {
		return "", err
	}

	key := loc.Key()
	absent := false

	var lastErr error

	for _, st := range s.strategies {
		start := time.Now()
		text, status, err := st.fetch(ctx, loc)

		if err == nil && utf8.RuneCountInString(strings.TrimSpace(text)) < s.minTextLength {
			err = ErrTextTooShort
		}

		s.attempts.RecordAttempt(key, s.endpoints.Page(loc), st.name, err == nil, err, status, time.Since(start))

		if err == nil {
			if s.logger != nil {
				s.logger.Debug("Page text extracted", "page", loc.String(), "strategy", st.name, "chars", len(text))
			}

			return text, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", fmt.Errorf("%w: %s answered %d", ErrUnrecoverable, st.name, status)
		case http.StatusNotFound:
			absent = true
		}

		if errors.Is(err, ErrTextTooShort) {
			absent = true
		}

		lastErr = err
	}

	if absent {
		return "", fmt.Errorf("%w: %s: %w", ErrPageAbsent, loc, lastErr)
	}

	return "", fmt.Errorf("fetch %s: %w", loc, lastErr)
}

// Advance moves to the next page of the same issue, within the page window.
func (s *DJESource) Advance(loc models.Locator) (models.Locator, bool) {
	if loc.IsLocal() {
		return models.Locator{}, false
	}

	next := Next(loc)

	return next, next.Page <= s.maxPages
}

func (s *DJESource) fromPDF(ctx context.Context, loc models.Locator) (string, int, error) {
	res, err := s.scraper.Fetch(ctx, s.endpoints.PDF(loc))
	if err != nil {
		return "", res.StatusCode, err
	}

	text, err := ExtractPDFText(res.Body)

	return text, res.StatusCode, err
}

func (s *DJESource) fromHTML(ctx context.Context, loc models.Locator) (string, int, error) {
	pageURL := s.endpoints.Page(loc)

	res, err := s.scraper.Fetch(ctx, pageURL)
	if err != nil {
		return "", res.StatusCode, err
	}

	html := string(res.Body)

	// The viewer may point at a PDF other than the canonical one.
	if link, ok := FramePDFLink(html); ok {
		if abs, err := s.endpoints.Resolve(link); err == nil && abs != s.endpoints.PDF(loc) {
			if framed, ferr := s.scraper.Fetch(ctx, abs); ferr == nil {
				if text, perr := ExtractPDFText(framed.Body); perr == nil {
					return text, framed.StatusCode, nil
				}
			}
		}
	}

	text, err := ExtractHTMLText(html, pageURL)

	return text, res.StatusCode, err
}

func (s *DJESource) fromBrowser(ctx context.Context, loc models.Locator) (string, int, error) {
	text, err := s.browser.RenderText(ctx, s.endpoints.Page(loc))

	return text, 0, err
}

// throttle keeps at least delay between consecutive page fetches.
func (s *DJESource) throttle(ctx context.Context) error {
	if s.delay <= 0 || s.lastFetch.IsZero() {
		s.lastFetch = time.Now()

		return nil
	}

	wait := s.delay - time.Since(s.lastFetch)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.lastFetch = time.Now()

	return nil
}
