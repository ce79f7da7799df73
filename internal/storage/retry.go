package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"djeworker/internal/logger"
	"djeworker/internal/models"
)

// Store is the set of repository operations the worker depends on.
type Store interface {
	Exists(ctx context.Context, caseNumber string, filingDate time.Time) (bool, error)
	ExistsByContent(ctx context.Context, text string) (bool, error)
	Insert(ctx context.Context, p *models.Publication) (int64, error)
	IsEmpty(ctx context.Context) (bool, error)
	CleanupIdleConnections(ctx context.Context, olderThan time.Duration) (int, error)
}

// RetryingStore serializes access to a Store and retries failed operations a
// bounded number of times with a fixed delay. Duplicates, missing rows and
// context errors are returned immediately.
type RetryingStore struct {
	store    Store
	logger   *logger.Logger
	attempts int
	delay    time.Duration
	mu       sync.Mutex
}

// NewRetryingStore wraps store. attempts below one means a single try.
func NewRetryingStore(store Store, attempts int, delay time.Duration, log *logger.Logger) *RetryingStore {
	return &RetryingStore{
		store:    store,
		logger:   log,
		attempts: max(attempts, 1),
		delay:    delay,
	}
}

// Exists reports whether a publication with the natural key is stored.
func (s *RetryingStore) Exists(ctx context.Context, caseNumber string, filingDate time.Time) (bool, error) {
	return retry(ctx, s, "exists", func() (bool, error) {
		return s.store.Exists(ctx, caseNumber, filingDate)
	})
}

// ExistsByContent reports whether a publication with the same text is stored.
func (s *RetryingStore) ExistsByContent(ctx context.Context, text string) (bool, error) {
	return retry(ctx, s, "exists_by_content", func() (bool, error) {
		return s.store.ExistsByContent(ctx, text)
	})
}

// Insert stores p unless it is already present, by natural key when both key
// fields are set and by content hash when the key misses or is incomplete. A
// present publication yields ErrDuplicate.
func (s *RetryingStore) Insert(ctx context.Context, p *models.Publication) (int64, error) {
	var (
		exists bool
		err    error
	)

	if p.CaseNumber != nil && *p.CaseNumber != "" && !p.FilingDate.IsZero() {
		exists, err = s.Exists(ctx, *p.CaseNumber, p.FilingDate)
	}

	if err == nil && !exists {
		exists, err = s.ExistsByContent(ctx, p.FullText)
	}

	if err != nil {
		return 0, err
	}

	if exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, p.CaseNumberOrEmpty())
	}

	return retry(ctx, s, "insert", func() (int64, error) {
		return s.store.Insert(ctx, p)
	})
}

// IsEmpty reports whether no publication is stored yet.
func (s *RetryingStore) IsEmpty(ctx context.Context) (bool, error) {
	return retry(ctx, s, "is_empty", func() (bool, error) {
		return s.store.IsEmpty(ctx)
	})
}

// CleanupIdleConnections terminates sessions idle in a transaction. It is not retried.
func (s *RetryingStore) CleanupIdleConnections(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.CleanupIdleConnections(ctx, olderThan)
}

func retry[T any](ctx context.Context, s *RetryingStore, op string, fn func() (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}

		if permanent(err) {
			return zero, err
		}

		lastErr = err

		s.logger.Warn("Store operation failed", "op", op, "attempt", attempt, "max_attempts", s.attempts, "error", err)

		if attempt == s.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, s.attempts, lastErr)
}

func permanent(err error) bool {
	return errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, models.ErrInvalidStatus) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
