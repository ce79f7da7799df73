package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"djeworker/internal/logger"
	"djeworker/internal/models"
)

// MockStore is a Store with overridable operations.
type MockStore struct {
	ExistsFunc          func(ctx context.Context, caseNumber string, filingDate time.Time) (bool, error)
	ExistsByContentFunc func(ctx context.Context, text string) (bool, error)
	InsertFunc          func(ctx context.Context, p *models.Publication) (int64, error)
	IsEmptyFunc         func(ctx context.Context) (bool, error)
}

func (m *MockStore) Exists(ctx context.Context, caseNumber string, filingDate time.Time) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, caseNumber, filingDate)
	}

	return false, nil
}

func (m *MockStore) ExistsByContent(ctx context.Context, text string) (bool, error) {
	if m.ExistsByContentFunc != nil {
		return m.ExistsByContentFunc(ctx, text)
	}

	return false, nil
}

func (m *MockStore) Insert(ctx context.Context, p *models.Publication) (int64, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, p)
	}

	return 1, nil
}

func (m *MockStore) IsEmpty(ctx context.Context) (bool, error) {
	if m.IsEmptyFunc != nil {
		return m.IsEmptyFunc(ctx)
	}

	return true, nil
}

func (m *MockStore) CleanupIdleConnections(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

var errConnLost = errors.New("connection reset by peer")

func TestRetryingStore_Insert_RetriesTransientErrors(t *testing.T) {
	calls := 0

	mock := &MockStore{
		InsertFunc: func(ctx context.Context, p *models.Publication) (int64, error) {
			calls++
			if calls < 3 {
				return 0, errConnLost
			}

			return 42, nil
		},
	}

	s := NewRetryingStore(mock, 3, time.Millisecond, logger.Discard())

	id, err := s.Insert(context.Background(), samplePublication("0001", filed))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if id != 42 || calls != 3 {
		t.Errorf("Expected id 42 after 3 calls, got %d after %d", id, calls)
	}
}

func TestRetryingStore_Insert_GivesUp(t *testing.T) {
	calls := 0

	mock := &MockStore{
		InsertFunc: func(ctx context.Context, p *models.Publication) (int64, error) {
			calls++

			return 0, errConnLost
		},
	}

	s := NewRetryingStore(mock, 3, time.Millisecond, logger.Discard())

	_, err := s.Insert(context.Background(), samplePublication("0001", filed))
	if !errors.Is(err, errConnLost) {
		t.Errorf("Expected wrapped connection error, got %v", err)
	}

	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetryingStore_Insert_DuplicateNotRetried(t *testing.T) {
	inserts := 0

	mock := &MockStore{
		ExistsFunc: func(ctx context.Context, caseNumber string, filingDate time.Time) (bool, error) {
			return true, nil
		},
		InsertFunc: func(ctx context.Context, p *models.Publication) (int64, error) {
			inserts++

			return 1, nil
		},
	}

	s := NewRetryingStore(mock, 3, time.Millisecond, logger.Discard())

	_, err := s.Insert(context.Background(), samplePublication("0001", filed))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	if inserts != 0 {
		t.Errorf("Expected no insert for a stored key, got %d", inserts)
	}
}

func TestRetryingStore_Insert_ContentHashWithoutKey(t *testing.T) {
	var checked string

	mock := &MockStore{
		ExistsFunc: func(ctx context.Context, caseNumber string, filingDate time.Time) (bool, error) {
			t.Errorf("Expected no natural key lookup without a case number")

			return false, nil
		},
		ExistsByContentFunc: func(ctx context.Context, text string) (bool, error) {
			checked = text

			return false, nil
		},
	}

	s := NewRetryingStore(mock, 1, 0, logger.Discard())

	p := samplePublication("", filed)
	p.CaseNumber = nil

	if _, err := s.Insert(context.Background(), p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if checked != p.FullText {
		t.Errorf("Expected content lookup of the full text, got %q", checked)
	}
}

func TestRetryingStore_Insert_ContentHashAfterKeyMiss(t *testing.T) {
	inserts := 0

	mock := &MockStore{
		ExistsByContentFunc: func(ctx context.Context, text string) (bool, error) {
			return true, nil
		},
		InsertFunc: func(ctx context.Context, p *models.Publication) (int64, error) {
			inserts++

			return 1, nil
		},
	}

	s := NewRetryingStore(mock, 1, 0, logger.Discard())

	_, err := s.Insert(context.Background(), samplePublication("0001", filed.AddDate(0, 0, 1)))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for the same text under another date, got %v", err)
	}

	if inserts != 0 {
		t.Errorf("Expected no insert, got %d", inserts)
	}
}

func TestRetryingStore_Cancelled(t *testing.T) {
	mock := &MockStore{
		IsEmptyFunc: func(ctx context.Context) (bool, error) {
			return false, errConnLost
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewRetryingStore(mock, 3, time.Hour, logger.Discard())

	if _, err := s.IsEmpty(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRetryingStore_Idempotent(t *testing.T) {
	repo := newTestRepository(t)
	s := NewRetryingStore(repo, 3, time.Millisecond, logger.Discard())
	ctx := context.Background()

	if _, err := s.Insert(ctx, samplePublication("1234567-89.2024.8.26.0100", filed)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := s.Insert(ctx, samplePublication("1234567-89.2024.8.26.0100", filed)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate on second insert, got %v", err)
	}

	res, _ := repo.List(ctx, ListQuery{})
	if res.Total != 1 {
		t.Errorf("Expected exactly one row, got %d", res.Total)
	}
}
