package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"djeworker/internal/models"
	"djeworker/internal/scheduler"
	"djeworker/internal/storage"
	"djeworker/pkg/metadata"
)

func TestRunWindowFlags(t *testing.T) {
	now := time.Date(2024, 11, 5, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		from, to string
		firstRun bool
		window   string
		explicit bool
		wantErr  bool
	}{
		{name: "scheduler decides"},
		{name: "first run", firstRun: true, window: "05/10/2024..05/11/2024", explicit: true},
		{name: "single day", from: "2024-11-01", window: "01/11/2024..01/11/2024", explicit: true},
		{name: "range", from: "2024-11-01", to: "2024-11-04", window: "01/11/2024..04/11/2024", explicit: true},
		{name: "to without from", to: "2024-11-04", wantErr: true},
		{name: "bad date", from: "01/11/2024", wantErr: true},
		{name: "reversed", from: "2024-11-04", to: "2024-11-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, explicit, err := runWindowFlags(tt.from, tt.to, tt.firstRun, 31, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}

			if tt.wantErr {
				return
			}

			if explicit != tt.explicit {
				t.Errorf("Expected explicit %v, got %v", tt.explicit, explicit)
			}

			if explicit && w.String() != tt.window {
				t.Errorf("Expected window %s, got %s", tt.window, w)
			}
		})
	}
}

func TestWindowFilingDate(t *testing.T) {
	day := time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC)

	single := windowFilingDate(scheduler.Window{From: day, To: day})
	if got := single(); !got.Equal(day) {
		t.Errorf("Expected filing date %s, got %s", day, got)
	}

	before := time.Now()
	wide := windowFilingDate(scheduler.Window{From: day, To: day.AddDate(0, 0, 3)})

	if got := wide(); got.Before(before) {
		t.Errorf("Expected the current time for a wider window, got %s", got)
	}
}

func TestExportOptions_Query(t *testing.T) {
	q, err := (&exportOptions{format: "md", status: "lida", from: "2024-11-01"}).query()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if q.Status != models.StatusRead || q.From.Format(time.DateOnly) != "2024-11-01" || !q.To.IsZero() {
		t.Errorf("Unexpected query %+v", q)
	}

	if _, err := (&exportOptions{format: "pdf"}).query(); err == nil {
		t.Errorf("Expected error for unknown format")
	}

	if _, err := (&exportOptions{format: "xlsx", status: "arquivada"}).query(); err == nil {
		t.Errorf("Expected error for invalid status")
	}
}

type mockLister struct {
	pages [][]models.Publication
	calls int
}

func (m *mockLister) List(_ context.Context, q storage.ListQuery) (*storage.ListResult, error) {
	m.calls++

	return &storage.ListResult{Items: m.pages[q.Page-1], Page: q.Page, Pages: len(m.pages)}, nil
}

func TestCollect(t *testing.T) {
	repo := &mockLister{pages: [][]models.Publication{
		{{ID: 1}, {ID: 2}},
		{{ID: 3}},
	}}

	pubs, err := collect(context.Background(), repo, storage.ListQuery{Limit: 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(pubs) != 3 || repo.calls != 2 {
		t.Errorf("Expected 3 publications in 2 calls, got %d in %d", len(pubs), repo.calls)
	}
}

func TestRender_Markdown(t *testing.T) {
	number := "0001234-56.2024.8.26.0053"

	var buf bytes.Buffer

	err := render(&buf, "md", []models.Publication{{CaseNumber: &number, Status: models.StatusNew}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), number) {
		t.Errorf("Expected report to list %s", number)
	}

	if ok, err := metadata.Verify(buf.String()); !ok || err != nil {
		t.Errorf("Expected signed report, got %v (%v)", ok, err)
	}
}
