package parser

import (
	"context"
	"errors"
	"fmt"

	"djeworker/internal/logger"
	"djeworker/internal/models"
)

// DefaultMaxContinuationPages bounds how many pages one record may spill into.
const DefaultMaxContinuationPages = 5

// Continuation errors. They explain why a stitch ended INCOMPLETE.
var (
	ErrNoNextPage         = errors.New("no next page")
	ErrContinuationCycle  = errors.New("continuation revisits a page")
	ErrContinuationDepth  = errors.New("continuation depth exhausted")
	ErrBoundaryWithoutEnd = errors.New("next record starts before end anchor")
)

// PageFetcher is the slice of the acquisition collaborator the resolver needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, loc models.Locator) (string, error)
	Advance(loc models.Locator) (models.Locator, bool)
}

// Visited records the pages a run has already fetched.
type Visited map[string]struct{}

// Seen reports whether loc was already fetched.
func (v Visited) Seen(loc models.Locator) bool {
	_, ok := v[loc.Key()]

	return ok
}

// Mark records loc as fetched.
func (v Visited) Mark(loc models.Locator) {
	v[loc.Key()] = struct{}{}
}

// Stitch is the outcome of one continuation attempt.
type Stitch struct {
	// Err explains an INCOMPLETE result; nil when Span is COMPLETE.
	Err error
	// Last is the last locator the resolver advanced to, fetched or not.
	Last  models.Locator
	Span  models.RecordSpan
	Pages []models.Page
	// FetchFailed is set when Last could not be fetched.
	FetchFailed bool
}

// Remainder returns the last fetched page. Its text after the continuation
// still has to go through the segmenter.
func (s Stitch) Remainder() (models.Page, bool) {
	if len(s.Pages) == 0 || s.FetchFailed {
		return models.Page{}, false
	}

	return s.Pages[len(s.Pages)-1], true
}

// Resolver completes a page's trailing record with text from following pages.
type Resolver struct {
	anchors  *Anchors
	fetcher  PageFetcher
	logger   *logger.Logger
	maxPages int
}

// NewResolver creates a resolver. maxPages <= 0 selects DefaultMaxContinuationPages.
func NewResolver(anchors *Anchors, fetcher PageFetcher, maxPages int, log *logger.Logger) *Resolver {
	if anchors == nil {
		anchors = DefaultAnchors()
	}

	if maxPages <= 0 {
		maxPages = DefaultMaxContinuationPages
	}

	return &Resolver{
		anchors:  anchors,
		fetcher:  fetcher,
		logger:   log,
		maxPages: maxPages,
	}
}

// Resolve tries to complete tail, which ends the page at from. The text of
// each following page up to its first start anchor is appended; a page
// without any start anchor is appended whole and the next one is tried. The
// first start anchor found is always the continuation boundary. Fetched pages
// are marked in visited and returned so the caller never fetches them twice.
func (r *Resolver) Resolve(ctx context.Context, tail models.RecordSpan, from models.Locator, visited Visited) Stitch {
	st := Stitch{Last: from}

	pages := tail.Pages
	if len(pages) == 0 {
		pages = []models.Locator{from}
	}

	span := models.RecordSpan{
		Start: tail.Start,
		Text:  tail.Text,
		State: models.SpanIncomplete,
		Pages: append([]models.Locator(nil), pages...),
	}

	loc := from

	for hop := 1; hop <= r.maxPages; hop++ {
		if err := ctx.Err(); err != nil {
			st.Err = err
			st.Span = span

			return st
		}

		next, ok := r.fetcher.Advance(loc)
		if !ok {
			st.Err = ErrNoNextPage
			st.Span = span

			return st
		}

		if visited.Seen(next) {
			st.Err = fmt.Errorf("%w: %s", ErrContinuationCycle, next)
			st.Span = span

			return st
		}

		st.Last = next
		visited.Mark(next)

		text, err := r.fetcher.FetchPage(ctx, next)
		if err != nil {
			st.Err = fmt.Errorf("fetch continuation %s: %w", next, err)
			st.FetchFailed = true
			st.Span = span

			return st
		}

		st.Pages = append(st.Pages, models.Page{Locator: next, Text: text, Sequence: hop})
		span.Pages = append(span.Pages, next)

		boundary := r.anchors.FirstStart(text)

		continuation := text
		if boundary >= 0 {
			continuation = text[:boundary]
		}

		span.Text += continuation

		if r.anchors.HasEnd(span.Text) {
			span.State = models.SpanComplete
			st.Span = span

			if r.logger != nil {
				r.logger.Debug("Continuation resolved", "from", from.String(), "to", next.String(), "hops", hop)
			}

			return st
		}

		if boundary >= 0 {
			st.Err = ErrBoundaryWithoutEnd
			st.Span = span

			return st
		}

		loc = next
	}

	st.Err = ErrContinuationDepth
	st.Span = span

	return st
}
