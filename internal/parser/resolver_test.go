package parser

import (
	"context"
	"errors"
	"testing"

	"djeworker/internal/models"
)

// MockFetcher is a mock implementation of PageFetcher.
type MockFetcher struct {
	FetchPageFunc func(ctx context.Context, loc models.Locator) (string, error)
	AdvanceFunc   func(loc models.Locator) (models.Locator, bool)
	Fetched       []models.Locator
}

func (m *MockFetcher) FetchPage(ctx context.Context, loc models.Locator) (string, error) {
	m.Fetched = append(m.Fetched, loc)
	if m.FetchPageFunc != nil {
		return m.FetchPageFunc(ctx, loc)
	}

	return "", nil
}

func (m *MockFetcher) Advance(loc models.Locator) (models.Locator, bool) {
	if m.AdvanceFunc != nil {
		return m.AdvanceFunc(loc)
	}

	return models.Locator{}, false
}

func pageAt(n int) models.Locator {
	return models.Locator{Volume: 1, Issue: 4000, Section: 12, Page: n}
}

// bookFetcher serves pages 1..len(pages) in order.
func bookFetcher(pages map[int]string) *MockFetcher {
	return &MockFetcher{
		FetchPageFunc: func(_ context.Context, loc models.Locator) (string, error) {
			return pages[loc.Page], nil
		},
		AdvanceFunc: func(loc models.Locator) (models.Locator, bool) {
			next := loc
			next.Page++
			_, ok := pages[next.Page]

			return next, ok
		},
	}
}

func tailOf(text string) models.RecordSpan {
	return models.RecordSpan{Text: text, State: models.SpanIncomplete}
}

func TestResolver_Resolve_SingleHop(t *testing.T) {
	fetcher := bookFetcher(map[int]string{
		2: " continua. ADV: Z (OAB 3/SP) Processo 4 - Davi",
	})
	r := NewResolver(nil, fetcher, 0, nil)
	visited := Visited{}
	visited.Mark(pageAt(1))

	st := r.Resolve(context.Background(), tailOf("Processo 3 - Caio"), pageAt(1), visited)

	if st.Err != nil {
		t.Fatalf("Unexpected error: %v", st.Err)
	}

	if !st.Span.Complete() {
		t.Fatalf("Expected COMPLETE span")
	}

	if st.Span.Text != "Processo 3 - Caio continua. ADV: Z (OAB 3/SP) " {
		t.Errorf("Unexpected stitched text: %q", st.Span.Text)
	}

	if len(st.Span.Pages) != 2 || st.Span.Pages[1] != pageAt(2) {
		t.Errorf("Expected span pages [1 2], got %v", st.Span.Pages)
	}

	rem, ok := st.Remainder()
	if !ok || rem.Locator != pageAt(2) {
		t.Errorf("Expected remainder on page 2")
	}

	if !visited.Seen(pageAt(2)) {
		t.Errorf("Expected page 2 to be marked visited")
	}
}

func TestResolver_Resolve_MultiHop(t *testing.T) {
	fetcher := bookFetcher(map[int]string{
		2: " texto longo sem marcadores",
		3: " ADV: Z (OAB 3/SP)",
	})
	r := NewResolver(nil, fetcher, 0, nil)

	st := r.Resolve(context.Background(), tailOf("Processo 3"), pageAt(1), Visited{})

	if st.Err != nil {
		t.Fatalf("Unexpected error: %v", st.Err)
	}

	if len(st.Span.Pages) != 3 {
		t.Errorf("Expected 3 pages, got %d", len(st.Span.Pages))
	}

	if st.Span.Text != "Processo 3 texto longo sem marcadores ADV: Z (OAB 3/SP)" {
		t.Errorf("Unexpected stitched text: %q", st.Span.Text)
	}
}

func TestResolver_Resolve_BoundaryWithoutEnd(t *testing.T) {
	fetcher := bookFetcher(map[int]string{
		2: " sem fim Processo 9 ADV: Q (OAB 9/SP)",
	})
	r := NewResolver(nil, fetcher, 0, nil)

	st := r.Resolve(context.Background(), tailOf("Processo 3"), pageAt(1), Visited{})

	if !errors.Is(st.Err, ErrBoundaryWithoutEnd) {
		t.Errorf("Expected ErrBoundaryWithoutEnd, got %v", st.Err)
	}

	if st.Span.Complete() {
		t.Errorf("Expected INCOMPLETE span")
	}

	if st.Span.Text != "Processo 3 sem fim " {
		t.Errorf("Unexpected text: %q", st.Span.Text)
	}

	if _, ok := st.Remainder(); !ok {
		t.Errorf("Expected remainder to be available")
	}
}

func TestResolver_Resolve_NoNextPage(t *testing.T) {
	r := NewResolver(nil, &MockFetcher{}, 0, nil)

	st := r.Resolve(context.Background(), tailOf("Processo 3"), pageAt(1), Visited{})

	if !errors.Is(st.Err, ErrNoNextPage) {
		t.Errorf("Expected ErrNoNextPage, got %v", st.Err)
	}

	if _, ok := st.Remainder(); ok {
		t.Errorf("Expected no remainder")
	}
}

func TestResolver_Resolve_Cycle(t *testing.T) {
	fetcher := &MockFetcher{
		AdvanceFunc: func(loc models.Locator) (models.Locator, bool) {
			return pageAt(1), true
		},
	}
	r := NewResolver(nil, fetcher, 0, nil)
	visited := Visited{}
	visited.Mark(pageAt(1))

	st := r.Resolve(context.Background(), tailOf("Processo 3"), pageAt(1), visited)

	if !errors.Is(st.Err, ErrContinuationCycle) {
		t.Errorf("Expected ErrContinuationCycle, got %v", st.Err)
	}

	if len(fetcher.Fetched) != 0 {
		t.Errorf("Expected no fetches, got %d", len(fetcher.Fetched))
	}
}

func TestResolver_Resolve_DepthExhausted(t *testing.T) {
	fetcher := &MockFetcher{
		FetchPageFunc: func(context.Context, models.Locator) (string, error) {
			return " mais texto", nil
		},
		AdvanceFunc: func(loc models.Locator) (models.Locator, bool) {
			loc.Page++

			return loc, true
		},
	}
	r := NewResolver(nil, fetcher, 2, nil)

	st := r.Resolve(context.Background(), tailOf("Processo 3"), pageAt(1), Visited{})

	if !errors.Is(st.Err, ErrContinuationDepth) {
		t.Errorf("Expected ErrContinuationDepth, got %v", st.Err)
	}

	if len(fetcher.Fetched) != 2 {
		t.Errorf("Expected 2 fetches, got %d", len(fetcher.Fetched))
	}
}

func TestResolver_Resolve_FetchFailure(t *testing.T) {
	fetchErr := errors.New("timeout")
	fetcher := &MockFetcher{
		FetchPageFunc: func(context.Context, models.Locator) (string, error) {
			return "", fetchErr
		},
		AdvanceFunc: func(loc models.Locator) (models.Locator, bool) {
			loc.Page++

			return loc, true
		},
	}
	r := NewResolver(nil, fetcher, 0, nil)

	st := r.Resolve(context.Background(), tailOf("Processo 3"), pageAt(1), Visited{})

	if !errors.Is(st.Err, fetchErr) {
		t.Errorf("Expected wrapped fetch error, got %v", st.Err)
	}

	if !st.FetchFailed {
		t.Errorf("Expected FetchFailed")
	}

	if st.Last != pageAt(2) {
		t.Errorf("Expected last locator page 2, got %v", st.Last)
	}

	if _, ok := st.Remainder(); ok {
		t.Errorf("Expected no remainder after failed fetch")
	}
}

func TestResolver_Resolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(nil, bookFetcher(map[int]string{2: "ADV: Z (OAB 3/SP)"}), 0, nil)

	st := r.Resolve(ctx, tailOf("Processo 3"), pageAt(1), Visited{})

	if !errors.Is(st.Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", st.Err)
	}
}
