package crawler

import (
	"context"
	"fmt"
	"time"

	"djeworker/internal/config"
	"djeworker/internal/logger"
)

// Client wires the acquisition pieces configured for a run: the page
// source, and for the DJE the searcher and optional browser session.
type Client struct {
	source   PageSource
	dje      *DJESource
	files    *FileSource
	searcher *Searcher
	browser  *BrowserSession
	cfg      *config.SourceConfig
	logger   *logger.Logger
}

// NewClient creates a crawler client for cfg.
func NewClient(cfg *config.SourceConfig, log *logger.Logger) (*Client, error) {
	c := &Client{cfg: cfg, logger: log}

	if cfg.IsLocalFile() {
		files, err := NewFileSource(cfg.Directory)
		if err != nil {
			return nil, err
		}

		c.files = files
		c.source = files

		return c, nil
	}

	scraper := NewScraperWithConfig(&cfg.Retry, cfg.BufferSizeKb, cfg.UserAgent)

	if cfg.Browser.Enabled {
		c.browser = NewBrowserSession(cfg.Browser, cfg.UserAgent, log)
	}

	dje, err := NewDJESource(cfg, scraper, c.browser, log)
	if err != nil {
		c.Close()

		return nil, err
	}

	c.dje = dje
	c.source = dje
	c.searcher = NewSearcher(scraper, dje.Endpoints(), cfg.MaxSearchPages, log)

	return c, nil
}

// NewClientWithDeps creates a crawler client around an existing source.
func NewClientWithDeps(source PageSource, searcher *Searcher) *Client {
	c := &Client{source: source, searcher: searcher}

	switch s := source.(type) {
	case *DJESource:
		c.dje = s
	case *FileSource:
		c.files = s
	}

	return c
}

// Source returns the page source.
func (c *Client) Source() PageSource {
	return c.source
}

// Files returns the file source, or nil for DJE clients.
func (c *Client) Files() *FileSource {
	return c.files
}

// Open prepares the source for fetching.
func (c *Client) Open(ctx context.Context) error {
	if c.dje == nil {
		return nil
	}

	if err := c.dje.Open(ctx); err != nil {
		// Cookies are a courtesy; direct requests usually work without them.
		if c.logger != nil {
			c.logger.Warn("Browser session unavailable", "error", err)
		}
	}

	return nil
}

// Search runs the DJE search over the given days.
func (c *Client) Search(ctx context.Context, from, to time.Time) ([]Hit, error) {
	if c.searcher == nil {
		return nil, fmt.Errorf("%w: search needs a DJE source", ErrUnrecoverable)
	}

	section := 0
	terms := ""

	if c.cfg != nil {
		section = c.cfg.Section
		terms = c.cfg.Query
	}

	return c.searcher.Search(ctx, SearchQuery{
		From:    from,
		To:      to,
		Section: section,
		Terms:   terms,
	})
}

// LogAttemptSummary logs the extraction attempts of the DJE source.
func (c *Client) LogAttemptSummary(l *logger.Logger) {
	if c.dje != nil {
		c.dje.Attempts().LogSummary(l)
	}
}

// Close releases the browser session, if any.
func (c *Client) Close() {
	if c.browser != nil {
		c.browser.Close()
	}
}
