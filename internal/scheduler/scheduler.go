// Package scheduler triggers gazette runs on cron expressions, one run at a
// time across every replica sharing the lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"

	"djeworker/internal/config"
	"djeworker/internal/logger"
)

// DefaultJobName names the lock of the RPV search run.
const DefaultJobName = "dje-rpv"

// Scheduler errors.
var (
	ErrInvalidExpression = errors.New("invalid cron expression")
	ErrNoNextTick        = errors.New("schedule has no future tick")
)

// Window is the filing date range a run searches, inclusive.
type Window struct {
	From time.Time
	To   time.Time
}

// Days returns the number of calendar days covered.
func (w Window) Days() int {
	return int(math.Round(w.To.Sub(w.From).Hours()/24)) + 1
}

// String formats the window as dd/mm/yyyy..dd/mm/yyyy.
func (w Window) String() string {
	return w.From.Format("02/01/2006") + ".." + w.To.Format("02/01/2006")
}

// Job performs one run over a window.
type Job func(ctx context.Context, w Window) error

// Store is the slice of the publication store the scheduler consults.
type Store interface {
	IsEmpty(ctx context.Context) (bool, error)
	CleanupIdleConnections(ctx context.Context, olderThan time.Duration) (int, error)
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJobName sets the lock name.
func WithJobName(name string) Option {
	return func(s *Scheduler) {
		if name != "" {
			s.name = name
		}
	}
}

// WithIdleTimeout sets how long a session may idle in a transaction before
// the pre-run cleanup terminates it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// Scheduler runs a Job at every tick of its cron expressions.
type Scheduler struct {
	exprs        []*cronexpr.Expression
	loc          *time.Location
	store        Store
	locker       Locker
	job          Job
	logger       *logger.Logger
	now          func() time.Time
	name         string
	lookbackDays int
	lockTTL      time.Duration
	runTimeout   time.Duration
	idleTimeout  time.Duration
	skipWeekends bool
}

// New parses the schedule. A nil locker selects a LocalLocker.
func New(cfg *config.ScheduleConfig, lookbackDays int, store Store, locker Locker, job Job, log *logger.Logger, opts ...Option) (*Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	exprs := make([]*cronexpr.Expression, 0, len(cfg.Expressions))

	for _, raw := range cfg.Expressions {
		expr, err := cronexpr.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidExpression, raw, err)
		}

		exprs = append(exprs, expr)
	}

	if len(exprs) == 0 {
		return nil, config.ErrNoSchedule
	}

	if locker == nil {
		locker = NewLocalLocker()
	}

	s := &Scheduler{
		exprs:        exprs,
		loc:          loc,
		store:        store,
		locker:       locker,
		job:          job,
		logger:       log,
		now:          time.Now,
		name:         DefaultJobName,
		lookbackDays: lookbackDays,
		lockTTL:      cfg.GetLockTTL(),
		runTimeout:   cfg.GetRunTimeout(),
		idleTimeout:  5 * time.Minute,
		skipWeekends: cfg.SkipWeekends,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.lockTTL <= 0 {
		s.lockTTL = time.Hour
	}

	return s, nil
}

// Next returns the first tick strictly after t in the schedule timezone.
// Weekend ticks are skipped when configured.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	from := t.In(s.loc)

	// A week of candidate ticks always reaches a weekday.
	for range 7 * 24 * 60 {
		var next time.Time

		for _, expr := range s.exprs {
			n := expr.Next(from)
			if n.IsZero() {
				continue
			}

			if next.IsZero() || n.Before(next) {
				next = n
			}
		}

		if next.IsZero() {
			return time.Time{}, ErrNoNextTick
		}

		if !s.skipWeekends || !isWeekend(next) {
			return next, nil
		}

		from = next
	}

	return time.Time{}, ErrNoNextTick
}

// Start waits for each tick and runs the job until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Scheduler started", "job", s.name, "expressions", len(s.exprs), "timezone", s.loc.String())

	for {
		next, err := s.Next(s.now())
		if err != nil {
			return err
		}

		wait := time.Until(next)
		s.logger.Info("Next run scheduled", "at", next.Format(time.RFC3339), "in", wait.Round(time.Second).String())

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Scheduler stopped")

			return ctx.Err()
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrLocked) {
			s.logger.Error("Scheduled run failed", "error", err)
		}
	}
}

// RunOnce runs the job now unless it is a skipped weekend day or another run
// holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.now().In(s.loc)
	log := s.logger.With("tick_id", uuid.NewString())

	if s.skipWeekends && isWeekend(now) {
		log.Info("Weekend, run skipped", "day", now.Weekday().String())

		return nil
	}

	unlock, err := s.locker.TryLock(ctx, s.name, s.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			log.Info("Another run is in progress, tick skipped", "job", s.name)
		}

		return err
	}

	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release run lock", "error", err)
		}
	}()

	if n, err := s.store.CleanupIdleConnections(ctx, s.idleTimeout); err != nil {
		log.Warn("Idle connection cleanup failed", "error", err)
	} else if n > 0 {
		log.Info("Terminated idle connections", "count", n)
	}

	window, err := s.Window(ctx)
	if err != nil {
		return err
	}

	runCtx := ctx

	if s.runTimeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	log.Info("Run triggered", "window", window.String(), "days", window.Days())

	start := time.Now()
	if err := s.job(runCtx, window); err != nil {
		return fmt.Errorf("job %s: %w", s.name, err)
	}

	log.Info("Run completed", "duration", time.Since(start).Round(time.Millisecond).String())

	return nil
}

// Window returns today's search window. An empty store widens it back by the
// lookback days so the first run catches up.
func (s *Scheduler) Window(ctx context.Context) (Window, error) {
	today := Day(s.now().In(s.loc))

	empty, err := s.store.IsEmpty(ctx)
	if err != nil {
		return Window{}, fmt.Errorf("check store: %w", err)
	}

	if empty && s.lookbackDays > 0 {
		s.logger.Info("Store is empty, searching back", "days", s.lookbackDays)

		return Window{From: today.AddDate(0, 0, -s.lookbackDays), To: today}, nil
	}

	return Window{From: today, To: today}, nil
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()

	return wd == time.Saturday || wd == time.Sunday
}
