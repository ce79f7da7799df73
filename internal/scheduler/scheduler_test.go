package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"djeworker/internal/config"
	"djeworker/internal/logger"
)

// MockStore is a mock implementation of Store.
type MockStore struct {
	IsEmptyFunc  func(ctx context.Context) (bool, error)
	CleanupCalls int
}

func (m *MockStore) IsEmpty(ctx context.Context) (bool, error) {
	if m.IsEmptyFunc != nil {
		return m.IsEmptyFunc(ctx)
	}

	return false, nil
}

func (m *MockStore) CleanupIdleConnections(context.Context, time.Duration) (int, error) {
	m.CleanupCalls++

	return 0, nil
}

var saoPaulo = mustLocation("America/Sao_Paulo")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}

	return loc
}

func scheduleConfig(exprs ...string) *config.ScheduleConfig {
	return &config.ScheduleConfig{
		Timezone:      "America/Sao_Paulo",
		Expressions:   exprs,
		SkipWeekends:  true,
		LockTTLSec:    60,
		RunTimeoutMin: 1,
	}
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestNew_InvalidExpression(t *testing.T) {
	_, err := New(scheduleConfig("not a cron"), 31, &MockStore{}, nil, nil, logger.Discard())
	if !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("Expected ErrInvalidExpression, got %v", err)
	}

	_, err = New(scheduleConfig(), 31, &MockStore{}, nil, nil, logger.Discard())
	if !errors.Is(err, config.ErrNoSchedule) {
		t.Errorf("Expected ErrNoSchedule, got %v", err)
	}
}

func TestScheduler_Next(t *testing.T) {
	s, err := New(scheduleConfig("0 7,12,20 * * 1-5"), 31, &MockStore{}, nil, nil, logger.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			name: "same day",
			from: time.Date(2024, 11, 4, 8, 0, 0, 0, saoPaulo),
			want: time.Date(2024, 11, 4, 12, 0, 0, 0, saoPaulo),
		},
		{
			name: "friday night to monday",
			from: time.Date(2024, 11, 8, 20, 30, 0, 0, saoPaulo),
			want: time.Date(2024, 11, 11, 7, 0, 0, 0, saoPaulo),
		},
		{
			name: "utc input",
			from: time.Date(2024, 11, 4, 14, 30, 0, 0, time.UTC),
			want: time.Date(2024, 11, 4, 12, 0, 0, 0, saoPaulo),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Next(tt.from)
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}

			if !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestScheduler_Next_SkipsWeekendTicks(t *testing.T) {
	s, err := New(scheduleConfig("0 9 * * *"), 31, &MockStore{}, nil, nil, logger.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got, err := s.Next(time.Date(2024, 11, 8, 10, 0, 0, 0, saoPaulo))
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	want := time.Date(2024, 11, 11, 9, 0, 0, 0, saoPaulo)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestScheduler_RunOnce_FirstRunWindow(t *testing.T) {
	store := &MockStore{IsEmptyFunc: func(context.Context) (bool, error) { return true, nil }}
	now := time.Date(2024, 11, 4, 7, 0, 0, 0, saoPaulo)

	var got Window

	job := func(ctx context.Context, w Window) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("Expected the job context to carry the run timeout")
		}

		got = w

		return nil
	}

	s, err := New(scheduleConfig("0 7 * * 1-5"), 31, store, nil, job, logger.Discard(), fixedClock(now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	wantFrom := time.Date(2024, 10, 4, 0, 0, 0, 0, saoPaulo)
	if !got.From.Equal(wantFrom) {
		t.Errorf("Expected window from %v, got %v", wantFrom, got.From)
	}

	if got.Days() != 32 {
		t.Errorf("Expected 32 days, got %d", got.Days())
	}

	if store.CleanupCalls != 1 {
		t.Errorf("Expected idle connection cleanup before the run, got %d calls", store.CleanupCalls)
	}
}

func TestScheduler_RunOnce_DailyWindow(t *testing.T) {
	now := time.Date(2024, 11, 5, 12, 0, 0, 0, saoPaulo)

	var got Window

	s, err := New(scheduleConfig("0 12 * * 1-5"), 31, &MockStore{}, nil, func(_ context.Context, w Window) error {
		got = w

		return nil
	}, logger.Discard(), fixedClock(now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if got.String() != "05/11/2024..05/11/2024" {
		t.Errorf("Expected a single-day window, got %s", got)
	}
}

func TestScheduler_RunOnce_Weekend(t *testing.T) {
	called := false
	saturday := time.Date(2024, 11, 9, 12, 0, 0, 0, saoPaulo)

	s, err := New(scheduleConfig("0 12 * * *"), 31, &MockStore{}, nil, func(context.Context, Window) error {
		called = true

		return nil
	}, logger.Discard(), fixedClock(saturday))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if called {
		t.Errorf("Expected no run on a weekend")
	}
}

func TestScheduler_RunOnce_Locked(t *testing.T) {
	locker := NewLocalLocker()
	now := time.Date(2024, 11, 4, 12, 0, 0, 0, saoPaulo)
	calls := 0

	s, err := New(scheduleConfig("0 12 * * 1-5"), 31, &MockStore{}, locker, func(context.Context, Window) error {
		calls++

		return nil
	}, logger.Discard(), fixedClock(now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	unlock, err := locker.TryLock(context.Background(), DefaultJobName, time.Minute)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	if err := s.RunOnce(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked, got %v", err)
	}

	_ = unlock(context.Background())

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce after unlock failed: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("Expected the lock released after a run, got %v", err)
	}

	if calls != 2 {
		t.Errorf("Expected 2 runs, got %d", calls)
	}
}

func TestScheduler_RunOnce_JobError(t *testing.T) {
	boom := errors.New("search failed")
	now := time.Date(2024, 11, 4, 12, 0, 0, 0, saoPaulo)

	s, err := New(scheduleConfig("0 12 * * 1-5"), 31, &MockStore{}, nil, func(context.Context, Window) error {
		return boom
	}, logger.Discard(), fixedClock(now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected job error, got %v", err)
	}
}

func TestScheduler_Start_Cancelled(t *testing.T) {
	s, err := New(scheduleConfig("0 7 * * 1-5"), 31, &MockStore{}, nil, nil, logger.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestLocalLocker_Expiry(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2024, 11, 4, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	first, err := l.TryLock(context.Background(), "job", time.Minute)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	if _, err := l.TryLock(context.Background(), "job", time.Minute); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked while held, got %v", err)
	}

	now = now.Add(2 * time.Minute)

	second, err := l.TryLock(context.Background(), "job", time.Minute)
	if err != nil {
		t.Fatalf("Expected expired lock to be taken over, got %v", err)
	}

	// The stale holder must not release the new lock.
	_ = first(context.Background())

	if _, err := l.TryLock(context.Background(), "job", time.Minute); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected lock still held by the second holder, got %v", err)
	}

	_ = second(context.Background())

	if _, err := l.TryLock(context.Background(), "job", time.Minute); err != nil {
		t.Errorf("Expected lock free after release, got %v", err)
	}
}
