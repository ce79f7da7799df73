package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"djeworker/internal/config"
	"djeworker/pkg/utils"
)

// ErrUnexpectedStatusCode indicates an HTTP response with unexpected status.
var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// Response is the outcome of one fetch, retries included.
type Response struct {
	ContentType string
	Body        []byte
	StatusCode  int
	Duration    time.Duration
	Attempts    int
}

// Scraper handles HTTP operations with config-driven retry logic.
type Scraper struct {
	client       *http.Client
	retryPolicy  *config.RetryPolicy
	headers      *utils.HTTPHelper
	bufferSizeKb int
}

// NewScraper creates a new scraper instance with default config.
func NewScraper() *Scraper {
	return NewScraperWithConfig(&config.RetryPolicy{
		MaxAttempts:       3,
		InitialDelayMs:    500,
		MaxDelayMs:        30000,
		BackoffMultiplier: 2.0,
		TimeoutSec:        30,
	}, 8192, "")
}

// NewScraperWithConfig creates a new scraper with custom retry policy. The
// client keeps cookies so a browser session can be shared with it.
func NewScraperWithConfig(retryPolicy *config.RetryPolicy, bufferSizeKb int, userAgent string) *Scraper {
	jar, _ := cookiejar.New(nil)

	return &Scraper{
		client: &http.Client{
			Timeout: retryPolicy.GetTimeout(),
			Jar:     jar,
		},
		retryPolicy:  retryPolicy,
		headers:      utils.NewHTTPHelper(userAgent),
		bufferSizeKb: bufferSizeKb,
	}
}

// Client returns the underlying HTTP client.
func (s *Scraper) Client() *http.Client {
	return s.client
}

// SetCookies stores cookies for u in the client jar.
func (s *Scraper) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if s.client.Jar != nil {
		s.client.Jar.SetCookies(u, cookies)
	}
}

// Fetch performs a GET request.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (Response, error) {
	return s.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	})
}

// PostForm submits an urlencoded form.
func (s *Scraper) PostForm(ctx context.Context, rawURL string, form url.Values) (Response, error) {
	encoded := form.Encode()

	return s.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return req, nil
	})
}

func (s *Scraper) do(ctx context.Context, build func() (*http.Request, error)) (Response, error) {
	var lastErr error

	var res Response

	for attempt := 1; attempt <= s.retryPolicy.MaxAttempts; attempt++ {
		res.Attempts = attempt

		if attempt > 1 {
			if err := s.wait(ctx, attempt); err != nil {
				return res, err
			}
		}

		req, err := build()
		if err != nil {
			return res, fmt.Errorf("failed to create request: %w", err)
		}

		for k, v := range s.headers.BuildHeaders(nil) {
			if req.Header.Get(k) == "" {
				req.Header[k] = v
			}
		}

		startTime := time.Now()
		resp, err := s.client.Do(req)
		res.Duration += time.Since(startTime)

		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}

			lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt, s.retryPolicy.MaxAttempts, err)

			continue
		}

		res.StatusCode = resp.StatusCode
		res.ContentType = resp.Header.Get("Content-Type")

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)

			// Only retry on specific status codes
			if !isRetryableStatus(resp.StatusCode) {
				return res, lastErr
			}

			continue
		}

		// bufferSizeKb is in KB, convert to bytes
		limit := int64(s.bufferSizeKb) * 1024
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		_ = resp.Body.Close()

		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)

			continue
		}

		res.Body = body

		return res, nil
	}

	return res, lastErr
}

func (s *Scraper) wait(ctx context.Context, attempt int) error {
	delay := s.retryPolicy.GetRetryDelay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	// Retry on temporary failures
	switch statusCode {
	case http.StatusServiceUnavailable: // 503
		return true
	case http.StatusGatewayTimeout: // 504
		return true
	case http.StatusTooManyRequests: // 429
		return true
	case http.StatusRequestTimeout: // 408
		return true
	}

	return false
}
