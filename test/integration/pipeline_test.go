package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"djeworker/internal/crawler"
	"djeworker/internal/export"
	"djeworker/internal/logger"
	"djeworker/internal/models"
	"djeworker/internal/normalizer"
	"djeworker/internal/parser"
	"djeworker/internal/pipeline"
	"djeworker/internal/storage"
	"djeworker/internal/validator"
	"djeworker/pkg/metadata"
)

var filed = time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC)

func fixtureSource(t *testing.T) *crawler.FileSource {
	t.Helper()

	source, err := crawler.NewFileSource(filepath.Join("..", "fixtures", "dje"))
	if err != nil {
		t.Fatalf("Failed to load fixture pages: %v", err)
	}

	if source.Len() != 2 {
		t.Fatalf("Expected 2 fixture pages, got %d", source.Len())
	}

	return source
}

func newOrchestrator(t *testing.T, source crawler.PageSource, sink pipeline.Sink) *pipeline.Orchestrator {
	t.Helper()

	return newOrchestratorFiled(t, source, sink, filed)
}

func newOrchestratorFiled(t *testing.T, source crawler.PageSource, sink pipeline.Sink, day time.Time) *pipeline.Orchestrator {
	t.Helper()

	keywords, err := validator.NewKeywordValidator(nil)
	if err != nil {
		t.Fatalf("Failed to create keyword validator: %v", err)
	}

	log := logger.Discard()

	return pipeline.NewOrchestrator(pipeline.Components{
		Source:    source,
		Anchors:   parser.DefaultAnchors(),
		Processor: normalizer.NewProcessor(parser.NewExtractor(log)),
		Keywords:  keywords,
		Sink:      sink,
	}, 5, log, pipeline.WithFilingDate(func() time.Time { return day }))
}

func TestPipeline_FixturePages(t *testing.T) {
	source := fixtureSource(t)
	sink := pipeline.NewMemorySink()

	report, err := newOrchestrator(t, source, sink).Run(context.Background(), source.First())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.State != pipeline.StateDone {
		t.Errorf("Expected state done, got %s", report.State)
	}

	if report.PagesFetched != 2 {
		t.Errorf("Expected 2 pages fetched, got %d", report.PagesFetched)
	}

	if report.Inserted != 2 || report.Rejected != 1 {
		t.Errorf("Expected 2 inserted and 1 rejected, got %s", report)
	}

	pubs := sink.Publications()
	if len(pubs) != 2 {
		t.Fatalf("Expected 2 publications, got %d", len(pubs))
	}

	first := pubs[0]

	if first.CaseNumberOrEmpty() != "1234567-89.2024.8.26.0100" {
		t.Errorf("Expected case number 1234567-89.2024.8.26.0100, got %s", first.CaseNumberOrEmpty())
	}

	if first.Plaintiff == nil || *first.Plaintiff != "João Silva" {
		t.Errorf("Expected plaintiff João Silva, got %v", first.Plaintiff)
	}

	if !first.Principal.Valid || !first.Principal.Decimal.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected principal 1500, got %v", first.Principal)
	}

	if first.Interest.Valid {
		t.Errorf("Expected no interest, got %v", first.Interest.Decimal)
	}

	if !first.Fees.Valid || !first.Fees.Decimal.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected fees 300, got %v", first.Fees)
	}

	if first.Attorney == nil || *first.Attorney != "Maria Souza (OAB 123456/SP)" {
		t.Errorf("Expected attorney Maria Souza (OAB 123456/SP), got %v", first.Attorney)
	}

	if first.Defendant != models.DefaultDefendant || first.Status != models.StatusNew {
		t.Errorf("Unexpected defaults: %s, %s", first.Defendant, first.Status)
	}

	if !first.FilingDate.Equal(filed) {
		t.Errorf("Expected filing date %s, got %s", filed, first.FilingDate)
	}

	second := pubs[1]

	if second.CaseNumberOrEmpty() != "7654321-00.2024.8.26.0053" {
		t.Errorf("Expected the spilled record 7654321-00.2024.8.26.0053, got %s", second.CaseNumberOrEmpty())
	}

	if !second.Principal.Valid || !second.Principal.Decimal.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected principal 2000, got %v", second.Principal)
	}

	if !second.Interest.Valid || !second.Interest.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected interest 100, got %v", second.Interest)
	}

	if second.Attorney == nil || *second.Attorney != "Carlos Lima (OAB 654321/SP)" {
		t.Errorf("Expected attorney Carlos Lima (OAB 654321/SP), got %v", second.Attorney)
	}
}

func TestPipeline_SQLiteIdempotent(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "dje.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer db.Close()

	repo := storage.NewRepository(db, 1000000, logger.Discard())
	ctx := context.Background()

	source := fixtureSource(t)

	first, err := newOrchestrator(t, source, repo).Run(ctx, source.First())
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	second, err := newOrchestrator(t, source, repo).Run(ctx, source.First())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if first.Inserted != 2 {
		t.Errorf("Expected 2 inserted on the first run, got %d", first.Inserted)
	}

	if second.Inserted != 0 || second.Duplicate != 2 {
		t.Errorf("Expected 2 duplicates and no insert on the second run, got %s", second)
	}

	res, err := repo.List(ctx, storage.ListQuery{Sort: "numeroProcesso", Order: "asc"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if res.Total != 2 {
		t.Fatalf("Expected 2 stored publications, got %d", res.Total)
	}

	report, err := export.MarkdownReport(res.Items, metadata.Metadata{Source: "fixtures"})
	if err != nil {
		t.Fatalf("MarkdownReport failed: %v", err)
	}

	if ok, err := metadata.Verify(report); !ok || err != nil {
		t.Errorf("Expected a verifiable report, got %v (%v)", ok, err)
	}

	meta, _ := metadata.Extract(report)
	if meta.Records != 2 {
		t.Errorf("Expected 2 records in the signature, got %d", meta.Records)
	}
}

func TestPipeline_SQLiteIdempotentAcrossDays(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "dje.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer db.Close()

	log := logger.Discard()
	repo := storage.NewRepository(db, 1000000, log)
	store := storage.NewRetryingStore(repo, 3, 0, log)
	ctx := context.Background()

	source := fixtureSource(t)

	for i, day := range []time.Time{filed, filed.AddDate(0, 0, 1)} {
		report, err := newOrchestratorFiled(t, source, store, day).Run(ctx, source.First())
		if err != nil {
			t.Fatalf("Run on %s failed: %v", day.Format(time.DateOnly), err)
		}

		wantInserted, wantDuplicate := 2, 0
		if i > 0 {
			wantInserted, wantDuplicate = 0, 2
		}

		if report.Inserted != wantInserted || report.Duplicate != wantDuplicate {
			t.Errorf("Expected %d inserted and %d duplicates on %s, got %s",
				wantInserted, wantDuplicate, day.Format(time.DateOnly), report)
		}
	}

	res, err := repo.List(ctx, storage.ListQuery{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if res.Total != 2 {
		t.Errorf("Expected 2 stored publications, got %d", res.Total)
	}
}
