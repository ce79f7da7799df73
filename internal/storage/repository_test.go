package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"djeworker/internal/logger"
	"djeworker/internal/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(db, 0, logger.Discard())
}

func strPtr(s string) *string {
	return &s
}

func samplePublication(caseNumber string, filed time.Time) *models.Publication {
	return &models.Publication{
		CaseNumber: strPtr(caseNumber),
		FilingDate: filed,
		Plaintiff:  strPtr("João Silva"),
		Attorney:   strPtr("Maria Souza (OAB 123456/SP)"),
		Principal:  decimal.NewNullDecimal(decimal.RequireFromString("1500.00")),
		Fees:       decimal.NewNullDecimal(decimal.RequireFromString("300.00")),
		FullText:   "Processo " + caseNumber + " - RPV pagamento pelo INSS",
	}
}

var filed = time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC)

func TestRepository_InsertAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	empty, err := repo.IsEmpty(ctx)
	if err != nil || !empty {
		t.Fatalf("Expected empty database, got %v (%v)", empty, err)
	}

	id, err := repo.Insert(ctx, samplePublication("1234567-89.2024.8.26.0100", filed))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.CaseNumberOrEmpty() != "1234567-89.2024.8.26.0100" {
		t.Errorf("Expected case number, got %s", got.CaseNumberOrEmpty())
	}

	if got.Status != models.StatusNew {
		t.Errorf("Expected status nova, got %s", got.Status)
	}

	if got.Defendant != models.DefaultDefendant {
		t.Errorf("Expected default defendant, got %s", got.Defendant)
	}

	if !got.Principal.Valid || !got.Principal.Decimal.Equal(decimal.RequireFromString("1500")) {
		t.Errorf("Expected principal 1500, got %v", got.Principal)
	}

	if got.Interest.Valid {
		t.Errorf("Expected no interest, got %v", got.Interest)
	}

	if !got.FilingDate.Equal(filed) {
		t.Errorf("Expected filing date %v, got %v", filed, got.FilingDate)
	}

	if got.UpdatedAt != nil {
		t.Errorf("Expected no update time, got %v", got.UpdatedAt)
	}
}

func TestRepository_InsertDuplicate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.Insert(ctx, samplePublication("0001", filed)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	_, err := repo.Insert(ctx, samplePublication("0001", filed))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	exists, err := repo.Exists(ctx, "0001", filed.Add(15*time.Hour))
	if err != nil || !exists {
		t.Errorf("Expected natural key to exist regardless of clock, got %v (%v)", exists, err)
	}

	exists, _ = repo.Exists(ctx, "0001", filed.AddDate(0, 0, 1))
	if exists {
		t.Errorf("Expected a different day not to match")
	}
}

func TestRepository_ExistsByContent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	p := samplePublication("", filed)
	p.CaseNumber = nil

	if _, err := repo.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	exists, err := repo.ExistsByContent(ctx, p.FullText)
	if err != nil || !exists {
		t.Errorf("Expected content match, got %v (%v)", exists, err)
	}

	exists, _ = repo.ExistsByContent(ctx, p.FullText+" ")
	if exists {
		t.Errorf("Expected different text not to match")
	}
}

func TestRepository_InsertTruncatesText(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()

	repo := NewRepository(db, 10, logger.Discard())

	p := samplePublication("0002", filed)
	p.FullText = strings.Repeat("x", 50)

	id, err := repo.Insert(context.Background(), p)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := repo.Get(context.Background(), id)
	if got.FullText != strings.Repeat("x", 10)+"... (truncado)" {
		t.Errorf("Expected truncated text, got %q", got.FullText)
	}
}

func TestRepository_List(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i, number := range []string{"1000", "2000", "3000"} {
		p := samplePublication(number, filed.AddDate(0, 0, i))
		if number == "2000" {
			p.Plaintiff = strPtr("Ana Lima")
		}

		if _, err := repo.Insert(ctx, p); err != nil {
			t.Fatalf("Insert %s failed: %v", number, err)
		}
	}

	res, err := repo.List(ctx, ListQuery{Limit: 2, Sort: "numeroProcesso", Order: "asc"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if res.Total != 3 || res.Pages != 2 || len(res.Items) != 2 {
		t.Errorf("Unexpected page meta: total=%d pages=%d items=%d", res.Total, res.Pages, len(res.Items))
	}

	if res.Items[0].CaseNumberOrEmpty() != "1000" {
		t.Errorf("Expected ascending order, got %s first", res.Items[0].CaseNumberOrEmpty())
	}

	res, _ = repo.List(ctx, ListQuery{Search: "ana lima"})
	if res.Total != 1 || res.Items[0].CaseNumberOrEmpty() != "2000" {
		t.Errorf("Expected search to find 2000, got %+v", res.Items)
	}

	res, _ = repo.FindByDateRange(ctx, filed.AddDate(0, 0, 1), filed.AddDate(0, 0, 2), 1, 10)
	if res.Total != 2 || res.Items[0].CaseNumberOrEmpty() != "3000" {
		t.Errorf("Expected 2 publications newest first, got %+v", res.Items)
	}

	res, _ = repo.List(ctx, ListQuery{Sort: "id; DROP TABLE publicacoes"})
	if res == nil || res.Total != 3 {
		t.Errorf("Expected unknown sort to fall back to the default")
	}
}

func TestRepository_UpdateStatusAndDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	id, _ := repo.Insert(ctx, samplePublication("4000", filed))

	got, err := repo.UpdateStatus(ctx, id, models.StatusRead)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	if got.Status != models.StatusRead || got.UpdatedAt == nil {
		t.Errorf("Expected status lida with update time, got %s %v", got.Status, got.UpdatedAt)
	}

	if _, err := repo.UpdateStatus(ctx, id, "arquivada"); !errors.Is(err, models.ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}

	res, _ := repo.List(ctx, ListQuery{Status: models.StatusRead})
	if res.Total != 1 {
		t.Errorf("Expected 1 publication with status lida, got %d", res.Total)
	}

	stats, err := repo.Stats(ctx)
	if err != nil || stats.Total != 1 || stats.LastMonth != 1 {
		t.Errorf("Unexpected stats %+v (%v)", stats, err)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := repo.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := repo.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRepository_FindByCaseNumber(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, _ = repo.Insert(ctx, samplePublication("1234567-89.2024.8.26.0100", filed))
	_, _ = repo.Insert(ctx, samplePublication("7654321-00.2024.8.26.0053", filed))

	items, err := repo.FindByCaseNumber(ctx, "8.26.0100")
	if err != nil {
		t.Fatalf("FindByCaseNumber failed: %v", err)
	}

	if len(items) != 1 {
		t.Errorf("Expected 1 match, got %d", len(items))
	}

	n, err := repo.CleanupIdleConnections(ctx, 5*time.Minute)
	if err != nil || n != 0 {
		t.Errorf("Expected no-op cleanup on sqlite, got %d (%v)", n, err)
	}
}

func TestContentHash(t *testing.T) {
	if got := ContentHash("abc"); got != "900150983cd24fb0d6963f7d28e17f72" {
		t.Errorf("Expected md5 of abc, got %s", got)
	}
}
